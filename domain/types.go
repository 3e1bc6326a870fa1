package domain

import "time"

// Side says which half of an inter-branch transfer a participant holds.
type Side string

const (
	Debit  Side = "debit"
	Credit Side = "credit"
)

// TxState is the participant-side state of one transaction.
type TxState int32

const (
	Idle TxState = iota
	Prepared
	Committed
	Aborted
)

func (s TxState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Prepared:
		return "prepared"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// Outcome is what a coordinator reports back for one transfer.
type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeAborted    Outcome = "aborted"
	OutcomeUnresolved Outcome = "unresolved"
)

// Account is one row of a branch's ledger. Balance and Reserved are in
// minor units. Reserved is never negative and never exceeds Balance;
// ReservedTx names the transaction holding the reservation, if any.
type Account struct {
	AccountNo  int64  `json:"account_no"`
	Name       string `json:"name"`
	Balance    int64  `json:"balance"`
	Reserved   int64  `json:"reserved"`
	ReservedTx string `json:"reserved_tx,omitempty"`
	Version    int64  `json:"version"`
}

// Available is the part of the balance not held by a reservation.
func (a *Account) Available() int64 {
	return a.Balance - a.Reserved
}

// OpKind tags one operation log entry.
type OpKind string

const (
	OpDeposit         OpKind = "deposit"
	OpWithdraw        OpKind = "withdraw"
	OpTransferLocal   OpKind = "transfer_local"
	OpTransferPrepare OpKind = "transfer_prepare"
	OpTransferCommit  OpKind = "transfer_commit"
	OpTransferAbort   OpKind = "transfer_abort"
)

// OperationLogEntry is one immutable line of the branch's append-only
// operation log. Seq is assigned by the log itself.
type OperationLogEntry struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Kind      OpKind    `json:"kind"`
	AccountNo int64     `json:"account_no"`
	Amount    int64     `json:"amount"`
	TxID      string    `json:"tx_id,omitempty"`
}

// Transaction is one branch's view of an in-flight inter-branch
// transfer. A participant owns one record per tx_id it prepared; the
// coordinator keeps its own record tracking both sides. The two must
// never be confused.
type Transaction struct {
	TxID      string    `json:"tx_id"`
	Side      Side      `json:"side"`
	AccountNo int64     `json:"account_no"`
	Amount    int64     `json:"amount"`
	State     TxState   `json:"state"`
	Deadline  time.Time `json:"deadline"`
}

// Expired reports whether the transaction's deadline has passed.
func (t *Transaction) Expired(now time.Time) bool {
	return !t.Deadline.IsZero() && now.After(t.Deadline)
}
