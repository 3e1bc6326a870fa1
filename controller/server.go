package controller

import (
	"context"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/AARTI756/bank/domain"
	"github.com/AARTI756/bank/service"
	"github.com/AARTI756/bank/wire"
)

// defaultReadTimeout bounds how long an accepted connection may take to
// send its request frame; defaultWriteTimeout bounds how long a client
// may take to drain the response.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
)

// BranchServer accepts client and peer connections, decodes one
// request frame, dispatches it and writes exactly one response frame.
// Each connection is served on its own goroutine so no request blocks
// another.
type BranchServer struct {
	engine      *service.Engine
	participant service.Participant
	coordinator service.Coordinator

	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewBranchServer(engine *service.Engine, participant service.Participant, coordinator service.Coordinator) *BranchServer {
	return &BranchServer{
		engine:       engine,
		participant:  participant,
		coordinator:  coordinator,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
	}
}

// Serve accepts connections until the listener closes.
func (s *BranchServer) Serve(lis net.Listener) error {
	for {
		conn, err := lis.Accept()
		if err != nil {
			return err
		}

		go s.handleConn(conn)
	}
}

func (s *BranchServer) handleConn(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	req, err := wire.ReadRequest(conn)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		_ = wire.WriteFrame(conn, wire.Error(&domain.ProtocolError{Reason: err.Error()}))
		return
	}

	// Dispatch may drive a full 2PC round; the read deadline must not
	// cut the response short.
	_ = conn.SetReadDeadline(time.Time{})

	resp := s.dispatch(req)

	// A client that never drains its response must not pin this
	// goroutine.
	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))

	if err := wire.WriteFrame(conn, resp); err != nil {
		log.Printf("writing response for %s: %v", req.Operation, err)
	}
}

// dispatch routes over the closed operation set. Anything outside it
// is a protocol violation, not a lookup miss.
func (s *BranchServer) dispatch(req *wire.Request) *wire.Response {
	switch req.Operation {
	case wire.OpBalance:
		return s.handleBalance(req)
	case wire.OpDeposit:
		return s.handleDeposit(req)
	case wire.OpWithdraw:
		return s.handleWithdraw(req)
	case wire.OpTransferLocal:
		return s.handleTransferLocal(req)
	case wire.OpPrepare:
		return s.handlePrepare(req)
	case wire.OpCommit:
		return s.handleCommit(req)
	case wire.OpAbort:
		return s.handleAbort(req)
	case wire.OpInterBranchTransfer:
		return s.handleInterBranchTransfer(req)
	case wire.OpListAccounts:
		return s.handleListAccounts(req)
	case wire.OpCreateAccount:
		return s.handleCreateAccount(req)
	case wire.OpGetLogs:
		return s.handleGetLogs(req)
	case wire.OpUnresolved:
		return s.handleUnresolved(req)
	}

	return wire.Error(&domain.ProtocolError{Reason: "unknown operation " + req.Operation})
}

func (s *BranchServer) handleBalance(req *wire.Request) *wire.Response {
	accountNo, err := req.Int64Field("account_no")
	if err != nil {
		return wire.Error(err)
	}

	acc, err := s.engine.Balance(accountNo)
	if err != nil {
		return wire.Error(err)
	}

	return wire.OK(map[string]any{"balance": acc.Balance, "name": acc.Name})
}

func (s *BranchServer) handleDeposit(req *wire.Request) *wire.Response {
	accountNo, err := req.Int64Field("account_no")
	if err != nil {
		return wire.Error(err)
	}
	amount, err := req.Int64Field("amount")
	if err != nil {
		return wire.Error(err)
	}

	newBalance, err := s.engine.Deposit(accountNo, amount)
	if err != nil {
		return wire.Error(err)
	}

	return wire.OK(map[string]any{"new_balance": newBalance})
}

func (s *BranchServer) handleWithdraw(req *wire.Request) *wire.Response {
	accountNo, err := req.Int64Field("account_no")
	if err != nil {
		return wire.Error(err)
	}
	amount, err := req.Int64Field("amount")
	if err != nil {
		return wire.Error(err)
	}

	newBalance, err := s.engine.Withdraw(accountNo, amount)
	if err != nil {
		return wire.Error(err)
	}

	return wire.OK(map[string]any{"new_balance": newBalance})
}

func (s *BranchServer) handleTransferLocal(req *wire.Request) *wire.Response {
	srcAccount, err := req.Int64Field("src_account")
	if err != nil {
		return wire.Error(err)
	}
	dstAccount, err := req.Int64Field("dst_account")
	if err != nil {
		return wire.Error(err)
	}
	amount, err := req.Int64Field("amount")
	if err != nil {
		return wire.Error(err)
	}

	srcBalance, dstBalance, err := s.engine.TransferLocal(srcAccount, dstAccount, amount)
	if err != nil {
		return wire.Error(err)
	}

	return wire.OK(map[string]any{"src_balance": srcBalance, "dst_balance": dstBalance})
}

func (s *BranchServer) handlePrepare(req *wire.Request) *wire.Response {
	txID, err := req.StringField("tx_id")
	if err != nil {
		return wire.Error(err)
	}
	accountNo, err := req.Int64Field("account_no")
	if err != nil {
		return wire.Error(err)
	}
	amount, err := req.Int64Field("amount")
	if err != nil {
		return wire.Error(err)
	}
	side, err := req.StringField("side")
	if err != nil {
		return wire.Error(err)
	}

	if err := s.participant.Prepare(txID, accountNo, amount, domain.Side(side)); err != nil {
		return wire.Error(err)
	}

	return wire.OK(map[string]any{"prepared": true})
}

func (s *BranchServer) handleCommit(req *wire.Request) *wire.Response {
	txID, err := req.StringField("tx_id")
	if err != nil {
		return wire.Error(err)
	}

	if err := s.participant.Commit(txID); err != nil {
		return wire.Error(err)
	}

	return wire.OK(map[string]any{"committed": true})
}

func (s *BranchServer) handleAbort(req *wire.Request) *wire.Response {
	txID, err := req.StringField("tx_id")
	if err != nil {
		return wire.Error(err)
	}

	if err := s.participant.Abort(txID); err != nil {
		return wire.Error(err)
	}

	return wire.OK(map[string]any{"aborted": true})
}

func (s *BranchServer) handleInterBranchTransfer(req *wire.Request) *wire.Response {
	srcAccount, err := req.Int64Field("src_account")
	if err != nil {
		return wire.Error(err)
	}
	dstHost, err := req.StringField("dst_host")
	if err != nil {
		return wire.Error(err)
	}
	dstPort, err := req.Int64Field("dst_port")
	if err != nil {
		return wire.Error(err)
	}
	dstAccount, err := req.Int64Field("dst_account")
	if err != nil {
		return wire.Error(err)
	}
	amount, err := req.Int64Field("amount")
	if err != nil {
		return wire.Error(err)
	}

	result := s.coordinator.Transfer(context.Background(), &service.TransferRequest{
		TxID:       req.OptionalString("tx_id"),
		SrcAccount: srcAccount,
		DstAddr:    net.JoinHostPort(dstHost, itoa(dstPort)),
		DstAccount: dstAccount,
		Amount:     amount,
	})

	fields := map[string]any{"outcome": string(result.Outcome), "tx_id": result.TxID}
	if result.Reason != "" {
		fields["reason"] = result.Reason
	}

	return wire.OK(fields)
}

func (s *BranchServer) handleListAccounts(req *wire.Request) *wire.Response {
	accounts, err := s.engine.ListAccounts()
	if err != nil {
		return wire.Error(err)
	}

	summaries := make([]map[string]any, 0, len(accounts))
	for _, acc := range accounts {
		summaries = append(summaries, map[string]any{
			"account_no": acc.AccountNo,
			"name":       acc.Name,
			"balance":    acc.Balance,
		})
	}

	return wire.OK(map[string]any{"accounts": summaries})
}

func (s *BranchServer) handleCreateAccount(req *wire.Request) *wire.Response {
	accountNo, err := req.Int64Field("account_no")
	if err != nil {
		return wire.Error(err)
	}
	balance, err := req.Int64Field("balance")
	if err != nil {
		return wire.Error(err)
	}

	if err := s.engine.CreateAccount(accountNo, req.OptionalString("name"), balance); err != nil {
		return wire.Error(err)
	}

	return wire.OK(map[string]any{"created": true})
}

func (s *BranchServer) handleGetLogs(req *wire.Request) *wire.Response {
	var accountNo int64
	if _, ok := req.Fields["account_no"]; ok {
		var err error
		accountNo, err = req.Int64Field("account_no")
		if err != nil {
			return wire.Error(err)
		}
	}

	return wire.OK(map[string]any{"entries": s.engine.Logs(accountNo)})
}

func (s *BranchServer) handleUnresolved(req *wire.Request) *wire.Response {
	pending := s.coordinator.Unresolved()

	transactions := make([]map[string]any, 0, len(pending))
	for _, res := range pending {
		transactions = append(transactions, map[string]any{
			"tx_id":  res.TxID,
			"reason": res.Reason,
		})
	}

	return wire.OK(map[string]any{"transactions": transactions})
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
