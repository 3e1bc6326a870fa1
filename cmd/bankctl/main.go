// bankctl issues one wire operation against a branch and prints the
// response as JSON.
//
// Usage:
//
//	bankctl -port 9000 balance -account 1001
//	bankctl -port 9000 deposit -account 1001 -amount 20000
//	bankctl -port 9000 inter_branch_transfer -src-account 1001 \
//	    -dst-host 127.0.0.1 -dst-port 9001 -dst-account 1002 -amount 50000
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/AARTI756/bank/repository/messaging"
	"github.com/AARTI756/bank/wire"
)

func main() {
	host := flag.String("host", "127.0.0.1", "branch host")
	port := flag.String("port", "9000", "branch port")
	account := flag.Int64("account", 0, "account number")
	name := flag.String("name", "", "account holder name (create_account)")
	amount := flag.Int64("amount", 0, "amount in minor units")
	balance := flag.Int64("balance", 0, "opening balance in minor units (create_account)")
	srcAccount := flag.Int64("src-account", 0, "source account (transfers)")
	dstAccount := flag.Int64("dst-account", 0, "destination account (transfers)")
	dstHost := flag.String("dst-host", "", "destination branch host (inter_branch_transfer)")
	dstPort := flag.Int64("dst-port", 0, "destination branch port (inter_branch_transfer)")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: bankctl [flags] <operation>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	operation := flag.Arg(0)
	fields := map[string]any{}

	switch operation {
	case wire.OpBalance, wire.OpGetLogs:
		if *account != 0 {
			fields["account_no"] = *account
		}
	case wire.OpDeposit, wire.OpWithdraw:
		fields["account_no"] = *account
		fields["amount"] = *amount
	case wire.OpCreateAccount:
		fields["account_no"] = *account
		fields["name"] = *name
		fields["balance"] = *balance
	case wire.OpTransferLocal:
		fields["src_account"] = *srcAccount
		fields["dst_account"] = *dstAccount
		fields["amount"] = *amount
	case wire.OpInterBranchTransfer:
		fields["src_account"] = *srcAccount
		fields["dst_host"] = *dstHost
		fields["dst_port"] = *dstPort
		fields["dst_account"] = *dstAccount
		fields["amount"] = *amount
	case wire.OpListAccounts, wire.OpUnresolved:
	default:
		log.Fatalf("unknown operation %q", operation)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := messaging.NewBranchClient(net.JoinHostPort(*host, *port))
	result, err := client.Call(ctx, operation, fields)
	if err != nil {
		log.Fatalln(err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println(string(out))
}
