// Package messaging holds the client side of the branch wire protocol.
// It is used for branch-to-branch 2PC traffic and by the CLI and the
// HTTP bridge.
package messaging

import (
	"context"
	"net"

	"github.com/AARTI756/bank/domain"
	"github.com/AARTI756/bank/wire"
)

// BranchClient talks to one branch. Following the protocol convention,
// every call dials a fresh connection, exchanges exactly one
// request/response pair and closes.
type BranchClient struct {
	Addr string

	dialer net.Dialer
}

func NewBranchClient(addr string) *BranchClient {
	return &BranchClient{Addr: addr}
}

// Call performs one operation against the branch. The context deadline
// bounds dialing and the whole exchange.
func (c *BranchClient) Call(ctx context.Context, operation string, fields map[string]any) (map[string]any, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		if isTimeout(err) {
			return nil, &domain.TimeoutError{Op: operation + " to " + c.Addr}
		}
		return nil, &domain.PeerUnreachableError{Addr: c.Addr, Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := wire.WriteFrame(conn, &wire.Request{Operation: operation, Fields: fields}); err != nil {
		return nil, &domain.PeerUnreachableError{Addr: c.Addr, Err: err}
	}

	resp, err := wire.ReadResponse(conn)
	if err != nil {
		if isTimeout(err) {
			return nil, &domain.TimeoutError{Op: operation + " to " + c.Addr}
		}
		return nil, &domain.PeerUnreachableError{Addr: c.Addr, Err: err}
	}

	if !resp.IsOK() {
		return nil, resp.Err()
	}

	return resp.Fields, nil
}

func isTimeout(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}

// Prepare asks the branch to prepare its side of tx. A nil error means
// the participant answered PREPARED.
func (c *BranchClient) Prepare(ctx context.Context, tx *domain.Transaction) error {
	_, err := c.Call(ctx, wire.OpPrepare, map[string]any{
		"tx_id":      tx.TxID,
		"account_no": tx.AccountNo,
		"amount":     tx.Amount,
		"side":       string(tx.Side),
	})
	return err
}

// Commit drives the branch's side of txID to COMMITTED.
func (c *BranchClient) Commit(ctx context.Context, txID string) error {
	_, err := c.Call(ctx, wire.OpCommit, map[string]any{"tx_id": txID})
	return err
}

// Abort drives the branch's side of txID to ABORTED.
func (c *BranchClient) Abort(ctx context.Context, txID string) error {
	_, err := c.Call(ctx, wire.OpAbort, map[string]any{"tx_id": txID})
	return err
}
