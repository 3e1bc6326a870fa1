package service

import "github.com/AARTI756/bank/domain"

// Participant is the branch-local half of 2PC. It owns this branch's
// record of every transaction it prepared.
type Participant interface {
	// Prepare moves txID from IDLE to PREPARED, reserving funds for a
	// debit side or validating the target account for a credit side.
	Prepare(txID string, accountNo int64, amount int64, side domain.Side) error

	// Commit drives a PREPARED transaction to COMMITTED. Idempotent:
	// committing an already committed transaction is a no-op success.
	Commit(txID string) error

	// Abort drives a transaction to ABORTED, releasing any hold.
	// Idempotent, and a safe no-op for transactions this branch does
	// not know (covers retries that outlive a restart).
	Abort(txID string) error

	// Status reports the current state of txID; Idle if unknown.
	Status(txID string) domain.TxState

	// Recover replays durable prepared state after a restart.
	Recover() error
}
