// Demo driver: starts two in-process branches and walks through the
// interesting transfer scenarios against them over the real wire
// protocol.
package main

import (
	"context"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/AARTI756/bank/controller"
	"github.com/AARTI756/bank/repository/database"
	"github.com/AARTI756/bank/repository/messaging"
	"github.com/AARTI756/bank/service"
	"github.com/AARTI756/bank/wire"
)

func main() {
	mumbai := startBranch("mumbai")
	delhi := startBranch("delhi")

	log.Println("This demo will:")
	log.Println("1. Deposit into a mumbai account")
	log.Println("2. Reject an overdraft withdrawal")
	log.Println("3. Run a committed inter-branch transfer mumbai -> delhi")
	log.Println("4. Abort a transfer to an unreachable branch")
	log.Println()

	call(mumbai, wire.OpDeposit, map[string]any{"account_no": 1001, "amount": 20000})
	call(mumbai, wire.OpWithdraw, map[string]any{"account_no": 1001, "amount": 1000000})

	_, dstPort, _ := net.SplitHostPort(delhi)
	port, _ := strconv.ParseInt(dstPort, 10, 64)

	call(mumbai, wire.OpInterBranchTransfer, map[string]any{
		"src_account": 1001,
		"dst_host":    "127.0.0.1",
		"dst_port":    port,
		"dst_account": 1002,
		"amount":      50000,
	})

	call(mumbai, wire.OpInterBranchTransfer, map[string]any{
		"src_account": 1001,
		"dst_host":    "127.0.0.1",
		"dst_port":    1, // nothing listens here
		"dst_account": 1002,
		"amount":      10000,
	})

	call(mumbai, wire.OpListAccounts, nil)
	call(delhi, wire.OpListAccounts, nil)
	call(mumbai, wire.OpGetLogs, map[string]any{"account_no": 1001})
}

func startBranch(name string) string {
	store := database.NewMemoryStore()
	for _, accountNo := range []int64{1001, 1002} {
		if err := store.Create(accountNo, "User_"+name, 100000); err != nil {
			log.Fatalln("preload: ", err.Error())
		}
	}

	dir, err := os.MkdirTemp("", "bank-demo-"+name)
	if err != nil {
		log.Fatalln("tempdir: ", err.Error())
	}

	oplog, err := database.NewOperationLog(&database.OperationLogConfig{Dir: dir, MaxFileSize: 100, Prefix: name})
	if err != nil {
		log.Fatalln("oplog: ", err.Error())
	}

	engine := service.NewEngine(store, oplog)
	participant := service.NewTxParticipant(store, store, oplog, 10*time.Second)
	go participant.RunExpiry(context.Background(), time.Second)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalln("listen: ", err.Error())
	}

	coordinator := service.NewTxCoordinator(participant, engine, &service.CoordinatorConfig{
		Branch:         name,
		SelfAddrs:      []string{lis.Addr().String()},
		PrepareTimeout: 2 * time.Second,
		RetryBackoff:   100 * time.Millisecond,
		MaxRetries:     3,
		NewPeer: func(addr string) service.Peer {
			return messaging.NewBranchClient(addr)
		},
		Unresolved: store,
	})

	server := controller.NewBranchServer(engine, participant, coordinator)
	go server.Serve(lis)

	log.Printf("branch %s listening on %s", name, lis.Addr())

	return lis.Addr().String()
}

func call(addr string, operation string, fields map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := messaging.NewBranchClient(addr)
	result, err := client.Call(ctx, operation, fields)
	if err != nil {
		log.Printf("%s %s -> %v", addr, operation, err)
		return
	}

	log.Printf("%s %s -> %v", addr, operation, result)
}
