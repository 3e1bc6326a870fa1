package service

import (
	"context"

	"github.com/AARTI756/bank/domain"
)

// Peer is one side of an inter-branch transfer as the coordinator sees
// it: the local participant and the remote branch are driven through
// the same interface so the two legs stay symmetric.
type Peer interface {
	Prepare(ctx context.Context, tx *domain.Transaction) error
	Commit(ctx context.Context, txID string) error
	Abort(ctx context.Context, txID string) error
}

// TransferRequest describes one inter-branch transfer. TxID is
// generated when empty.
type TransferRequest struct {
	TxID       string
	SrcAccount int64
	DstAddr    string
	DstAccount int64
	Amount     int64
}

// TransferResult is the coordinator's answer. Unresolved is the only
// non-final outcome: the decision is known but could not be confirmed
// to both participants, and the transaction is kept for reconciliation.
type TransferResult struct {
	TxID    string
	Outcome domain.Outcome
	Reason  string
}

// Coordinator drives 2PC transfers initiated at this branch.
type Coordinator interface {
	Transfer(ctx context.Context, req *TransferRequest) *TransferResult

	// Unresolved lists transfers awaiting operator reconciliation.
	Unresolved() []*TransferResult
}
