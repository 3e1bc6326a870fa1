package controller

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/AARTI756/bank/domain"
	"github.com/AARTI756/bank/repository/database"
	"github.com/AARTI756/bank/repository/messaging"
	"github.com/AARTI756/bank/service"
	"github.com/AARTI756/bank/wire"
)

// startBranch brings up one complete branch on a loopback listener and
// returns a client for it.
func startBranch(t *testing.T, name string, accountNo int64, balance int64) (*messaging.BranchClient, string, *database.MemoryStore) {
	t.Helper()

	store := database.NewMemoryStore()
	if err := store.Create(accountNo, name+"-holder", balance); err != nil {
		t.Fatalf("create: %v", err)
	}

	oplog, err := database.NewOperationLog(&database.OperationLogConfig{
		Dir: t.TempDir(), MaxFileSize: 100, Prefix: name,
	})
	if err != nil {
		t.Fatalf("open oplog: %v", err)
	}

	engine := service.NewEngine(store, oplog)
	participant := service.NewTxParticipant(store, store, oplog, 10*time.Second)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { lis.Close() })
	addr := lis.Addr().String()

	coordinator := service.NewTxCoordinator(participant, engine, &service.CoordinatorConfig{
		Branch:         name,
		SelfAddrs:      []string{addr},
		PrepareTimeout: 2 * time.Second,
		RetryBackoff:   10 * time.Millisecond,
		MaxRetries:     3,
		NewPeer: func(peerAddr string) service.Peer {
			return messaging.NewBranchClient(peerAddr)
		},
		Unresolved: store,
	})

	go NewBranchServer(engine, participant, coordinator).Serve(lis)

	return messaging.NewBranchClient(addr), addr, store
}

func callOK(t *testing.T, client *messaging.BranchClient, operation string, fields map[string]any) map[string]any {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, operation, fields)
	if err != nil {
		t.Fatalf("%s: %v", operation, err)
	}

	return resp
}

// splitAddr breaks host:port apart with the port as a number, the way
// the transfer operation wants it.
func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("port %q: %v", portStr, err)
	}

	return host, port
}

// asInt64 unpicks JSON's float64 numbers from a response field.
func asInt64(t *testing.T, fields map[string]any, key string) int64 {
	t.Helper()

	f, ok := fields[key].(float64)
	if !ok {
		t.Fatalf("field %q = %v (%T), want a number", key, fields[key], fields[key])
	}

	return int64(f)
}

func TestDepositAndBalanceOverWire(t *testing.T) {
	client, _, _ := startBranch(t, "mumbai", 1001, 1000)

	resp := callOK(t, client, wire.OpDeposit, map[string]any{"account_no": 1001, "amount": 200})
	if got := asInt64(t, resp, "new_balance"); got != 1200 {
		t.Errorf("new_balance = %d, want 1200", got)
	}

	resp = callOK(t, client, wire.OpBalance, map[string]any{"account_no": 1001})
	if got := asInt64(t, resp, "balance"); got != 1200 {
		t.Errorf("balance = %d, want 1200", got)
	}
}

func TestOverdraftReportsInsufficientFunds(t *testing.T) {
	client, _, _ := startBranch(t, "mumbai", 1001, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Call(ctx, wire.OpWithdraw, map[string]any{"account_no": 1001, "amount": 500})

	var remote *wire.RemoteError
	if !errors.As(err, &remote) || remote.Kind != domain.KindInsufficientFunds {
		t.Fatalf("err = %v, want remote insufficient_funds", err)
	}

	resp := callOK(t, client, wire.OpBalance, map[string]any{"account_no": 1001})
	if got := asInt64(t, resp, "balance"); got != 100 {
		t.Errorf("balance = %d, want untouched 100", got)
	}
}

func TestUnknownOperationIsProtocolViolation(t *testing.T) {
	client, _, _ := startBranch(t, "mumbai", 1001, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Call(ctx, "rob_the_vault", nil)

	var remote *wire.RemoteError
	if !errors.As(err, &remote) || remote.Kind != domain.KindProtocolViolation {
		t.Fatalf("err = %v, want remote protocol_violation", err)
	}
}

func TestInterBranchTransferOverWire(t *testing.T) {
	srcClient, _, srcStore := startBranch(t, "mumbai", 1001, 1000)
	_, dstAddr, dstStore := startBranch(t, "delhi", 1002, 300)

	dstHost, dstPort := splitAddr(t, dstAddr)

	resp := callOK(t, srcClient, wire.OpInterBranchTransfer, map[string]any{
		"src_account": 1001,
		"dst_host":    dstHost,
		"dst_port":    dstPort,
		"dst_account": 1002,
		"amount":      500,
	})

	if outcome, _ := resp["outcome"].(string); outcome != string(domain.OutcomeCommitted) {
		t.Fatalf("outcome = %v (reason %v), want committed", resp["outcome"], resp["reason"])
	}

	srcAcc, _ := srcStore.Get(1001)
	dstAcc, _ := dstStore.Get(1002)
	if srcAcc.Balance != 500 || dstAcc.Balance != 800 {
		t.Errorf("balances = %d/%d, want 500/800", srcAcc.Balance, dstAcc.Balance)
	}
}

func TestInterBranchTransferToDeadPeerAborts(t *testing.T) {
	srcClient, _, srcStore := startBranch(t, "mumbai", 1001, 1000)

	// Reserve a port and close it again so nothing is listening there.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	deadAddr := lis.Addr().String()
	lis.Close()

	deadHost, deadPort := splitAddr(t, deadAddr)

	resp := callOK(t, srcClient, wire.OpInterBranchTransfer, map[string]any{
		"src_account": 1001,
		"dst_host":    deadHost,
		"dst_port":    deadPort,
		"dst_account": 1002,
		"amount":      500,
	})

	if outcome, _ := resp["outcome"].(string); outcome != string(domain.OutcomeAborted) {
		t.Fatalf("outcome = %v, want aborted", resp["outcome"])
	}

	srcAcc, _ := srcStore.Get(1001)
	if srcAcc.Balance != 1000 || srcAcc.Reserved != 0 {
		t.Errorf("balance = %d, reserved = %d, want full rollback", srcAcc.Balance, srcAcc.Reserved)
	}
}

func TestSlowReaderDoesNotPinHandler(t *testing.T) {
	store := database.NewMemoryStore()
	if err := store.Create(1001, "alice", 1000); err != nil {
		t.Fatalf("create: %v", err)
	}

	oplog, err := database.NewOperationLog(&database.OperationLogConfig{
		Dir: t.TempDir(), MaxFileSize: 100, Prefix: "mumbai",
	})
	if err != nil {
		t.Fatalf("open oplog: %v", err)
	}

	engine := service.NewEngine(store, oplog)
	participant := service.NewTxParticipant(store, store, oplog, 10*time.Second)
	coordinator := service.NewTxCoordinator(participant, engine, &service.CoordinatorConfig{
		Branch:     "mumbai",
		Unresolved: store,
	})

	server := NewBranchServer(engine, participant, coordinator)
	server.writeTimeout = 50 * time.Millisecond

	// net.Pipe is unbuffered: the response write blocks until the
	// client reads, which this client never does.
	client, srv := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		server.handleConn(srv)
		close(done)
	}()

	if err := wire.WriteFrame(client, &wire.Request{Operation: wire.OpListAccounts}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler still blocked writing to a client that stopped reading")
	}
}

func TestListAccountsAndLogsOverWire(t *testing.T) {
	client, _, _ := startBranch(t, "mumbai", 1001, 1000)

	callOK(t, client, wire.OpCreateAccount, map[string]any{"account_no": 1005, "name": "new", "balance": 50})
	callOK(t, client, wire.OpDeposit, map[string]any{"account_no": 1001, "amount": 100})

	resp := callOK(t, client, wire.OpListAccounts, nil)
	accounts, ok := resp["accounts"].([]any)
	if !ok || len(accounts) != 2 {
		t.Fatalf("accounts = %v, want 2 entries", resp["accounts"])
	}

	resp = callOK(t, client, wire.OpGetLogs, map[string]any{"account_no": 1001})
	entries, ok := resp["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("entries = %v, want the single deposit", resp["entries"])
	}

	entry, _ := entries[0].(map[string]any)
	if kind, _ := entry["kind"].(string); kind != string(domain.OpDeposit) {
		t.Errorf("entry kind = %v, want deposit", entry["kind"])
	}
}
