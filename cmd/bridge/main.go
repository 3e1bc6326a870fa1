// bridge exposes the branch wire operations over HTTP for the
// dashboard. It keeps no state of its own: every request is translated
// into one wire call against the branch named in the form values.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/AARTI756/bank/repository/messaging"
	"github.com/AARTI756/bank/wire"
	"github.com/gorilla/mux"
)

const requestTimeout = 30 * time.Second

func main() {
	listen := flag.String("listen", ":5000", "address to serve HTTP on")
	flag.Parse()

	r := mux.NewRouter()
	r.HandleFunc("/balance", forward(wire.OpBalance, "account_no")).Methods(http.MethodPost)
	r.HandleFunc("/deposit", forward(wire.OpDeposit, "account_no", "amount")).Methods(http.MethodPost)
	r.HandleFunc("/withdraw", forward(wire.OpWithdraw, "account_no", "amount")).Methods(http.MethodPost)
	r.HandleFunc("/create_account", forward(wire.OpCreateAccount, "account_no", "balance")).Methods(http.MethodPost)
	r.HandleFunc("/list_accounts", forward(wire.OpListAccounts)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logs", forward(wire.OpGetLogs)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/unresolved", forward(wire.OpUnresolved)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/transfer", transfer).Methods(http.MethodPost)

	log.Println("bridge listening on", *listen)
	log.Fatalln(http.ListenAndServe(*listen, r))
}

// forward builds a handler that relays one wire operation to the
// branch at host/port from the request, copying the named numeric
// fields and any optional name field.
func forward(operation string, numeric ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields := map[string]any{}

		for _, field := range numeric {
			raw := r.FormValue(field)
			if raw == "" {
				continue
			}
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid "+field)
				return
			}
			fields[field] = n
		}

		if operation == wire.OpGetLogs {
			if raw := r.FormValue("account_no"); raw != "" {
				n, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid account_no")
					return
				}
				fields["account_no"] = n
			}
		}
		if name := r.FormValue("name"); name != "" {
			fields["name"] = name
		}

		relay(w, r.FormValue("host"), r.FormValue("port"), operation, fields)
	}
}

// transfer picks local vs inter-branch the way the dashboard expects:
// same source and destination branch means a local transfer.
func transfer(w http.ResponseWriter, r *http.Request) {
	srcHost, srcPort := r.FormValue("src_host"), r.FormValue("src_port")
	dstHost, dstPort := r.FormValue("dst_host"), r.FormValue("dst_port")

	srcAccount, err1 := strconv.ParseInt(r.FormValue("src_account"), 10, 64)
	dstAccount, err2 := strconv.ParseInt(r.FormValue("dst_account"), 10, 64)
	amount, err3 := strconv.ParseInt(r.FormValue("amount"), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		writeError(w, http.StatusBadRequest, "src_account, dst_account and amount must be integers")
		return
	}

	if srcHost == dstHost && srcPort == dstPort {
		relay(w, srcHost, srcPort, wire.OpTransferLocal, map[string]any{
			"src_account": srcAccount,
			"dst_account": dstAccount,
			"amount":      amount,
		})
		return
	}

	port, err := strconv.ParseInt(dstPort, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dst_port")
		return
	}

	relay(w, srcHost, srcPort, wire.OpInterBranchTransfer, map[string]any{
		"src_account": srcAccount,
		"dst_host":    dstHost,
		"dst_port":    port,
		"dst_account": dstAccount,
		"amount":      amount,
	})
}

func relay(w http.ResponseWriter, host, port, operation string, fields map[string]any) {
	if host == "" || port == "" {
		writeError(w, http.StatusBadRequest, "host and port are required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	client := messaging.NewBranchClient(net.JoinHostPort(host, port))
	result, err := client.Call(ctx, operation, fields)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"status": "error", "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "result": result})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"status": "error", "error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("encoding response:", err)
	}
}
