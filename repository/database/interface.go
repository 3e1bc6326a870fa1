package database

import "github.com/AARTI756/bank/domain"

// Ledger is one branch's account table. Implementations serialize all
// mutating calls on one account; calls on different accounts proceed
// independently. At most one reservation may be live per account at a
// time, keyed by the transaction that placed it.
type Ledger interface {
	Get(accountNo int64) (*domain.Account, error)
	Create(accountNo int64, name string, balance int64) error
	List() ([]*domain.Account, error)

	// Reserve places a hold of amount on the account for txID. Fails
	// fast with InsufficientFundsError or TxConflictError; never queues.
	Reserve(accountNo int64, amount int64, txID string) error

	// Release returns txID's hold to the available balance. Releasing
	// a reservation the account does not hold is a no-op.
	Release(accountNo int64, txID string) error

	// ApplyDebit converts txID's reservation into a permanent balance
	// decrease.
	ApplyDebit(accountNo int64, amount int64, txID string) error

	// ApplyCredit permanently increases the balance. No prior
	// reservation is needed for credits.
	ApplyCredit(accountNo int64, amount int64, txID string) error
}

// PendingStore durably records prepared transactions so a branch
// restart can see which tx_ids were PREPARED and what they held.
type PendingStore interface {
	PutPending(tx *domain.Transaction) error
	DeletePending(txID string) error
	AllPending() ([]*domain.Transaction, error)
}

// UnresolvedStore durably records transfers whose decided outcome could
// not be confirmed to both participants, keyed by tx_id with the reason
// they are stuck. They outlive the restart that usually caused them.
type UnresolvedStore interface {
	PutUnresolved(txID string, reason string) error
	AllUnresolved() (map[string]string, error)
}

// Store is the full persistent state of one branch.
type Store interface {
	Ledger
	PendingStore
	UnresolvedStore
	Close() error
}
