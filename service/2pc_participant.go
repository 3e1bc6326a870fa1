package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/AARTI756/bank/domain"
	"github.com/AARTI756/bank/repository/database"
)

// TxParticipant implements the participant state machine
// IDLE -> PREPARED -> {COMMITTED | ABORTED}. Prepared state is written
// to the pending store before PREPARED is answered, so it survives a
// process restart. Recovery aborts every leftover prepared transaction
// instead of contacting the coordinator; a coordinator that already
// decided commit will get a tx_conflict on its retry and surface the
// transfer as unresolved rather than guessing.
type TxParticipant struct {
	ledger  database.Ledger
	pending database.PendingStore
	oplog   database.OpLog

	// deadline bounds how long PREPARED funds stay held without a
	// commit/abort before the participant unilaterally aborts.
	deadline time.Duration

	mu        sync.Mutex
	txs       map[string]*domain.Transaction
	byAccount map[int64]string
}

func NewTxParticipant(ledger database.Ledger, pending database.PendingStore, oplog database.OpLog, deadline time.Duration) *TxParticipant {
	return &TxParticipant{
		ledger:    ledger,
		pending:   pending,
		oplog:     oplog,
		deadline:  deadline,
		txs:       make(map[string]*domain.Transaction),
		byAccount: make(map[int64]string),
	}
}

func (t *TxParticipant) Prepare(txID string, accountNo int64, amount int64, side domain.Side) error {
	if amount <= 0 {
		return &domain.ProtocolError{Reason: "amount must be positive"}
	}
	if side != domain.Debit && side != domain.Credit {
		return &domain.ProtocolError{Reason: "side must be debit or credit"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.txs[txID]; ok {
		// A coordinator retrying a lost prepare response gets the
		// same answer again.
		if existing.State == domain.Prepared &&
			existing.AccountNo == accountNo &&
			existing.Amount == amount &&
			existing.Side == side {
			return nil
		}
		return &domain.TxConflictError{TxID: txID, Reason: "transaction already " + existing.State.String()}
	}

	if holder, ok := t.byAccount[accountNo]; ok && holder != txID {
		return &domain.TxConflictError{TxID: txID, HeldBy: holder}
	}

	tx := &domain.Transaction{
		TxID:      txID,
		Side:      side,
		AccountNo: accountNo,
		Amount:    amount,
		State:     domain.Prepared,
		Deadline:  time.Now().Add(t.deadline),
	}

	switch side {
	case domain.Debit:
		if err := t.ledger.Reserve(accountNo, amount, txID); err != nil {
			return err
		}
	case domain.Credit:
		// No funds move before commit; the account just has to exist.
		if _, err := t.ledger.Get(accountNo); err != nil {
			return err
		}
	}

	if err := t.pending.PutPending(tx); err != nil {
		if side == domain.Debit {
			_ = t.ledger.Release(accountNo, txID)
		}
		return err
	}

	if err := t.oplog.Append(domain.OpTransferPrepare, accountNo, amount, txID); err != nil {
		if side == domain.Debit {
			_ = t.ledger.Release(accountNo, txID)
		}
		_ = t.pending.DeletePending(txID)
		return err
	}

	t.txs[txID] = tx
	t.byAccount[accountNo] = txID

	log.Printf("prepared tx %s (%s %d on account %d)", txID, side, amount, accountNo)

	return nil
}

func (t *TxParticipant) Commit(txID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, ok := t.txs[txID]
	if !ok {
		return &domain.ProtocolError{Reason: "commit for unknown transaction " + txID}
	}

	switch tx.State {
	case domain.Committed:
		return nil
	case domain.Aborted:
		return &domain.TxConflictError{TxID: txID, Reason: "already aborted"}
	}

	switch tx.Side {
	case domain.Debit:
		if err := t.ledger.ApplyDebit(tx.AccountNo, tx.Amount, txID); err != nil {
			return err
		}
	case domain.Credit:
		if err := t.ledger.ApplyCredit(tx.AccountNo, tx.Amount, txID); err != nil {
			return err
		}
	}

	// The commit is decided and applied. Journal failures past this
	// point are logged, not surfaced: funds already moved.
	t.resolve(tx, domain.Committed, domain.OpTransferCommit)

	return nil
}

func (t *TxParticipant) Abort(txID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, ok := t.txs[txID]
	if !ok {
		return nil
	}

	switch tx.State {
	case domain.Aborted:
		return nil
	case domain.Committed:
		return &domain.TxConflictError{TxID: txID, Reason: "already committed"}
	}

	if tx.Side == domain.Debit {
		if err := t.ledger.Release(tx.AccountNo, txID); err != nil {
			return err
		}
	}

	t.resolve(tx, domain.Aborted, domain.OpTransferAbort)

	return nil
}

// resolve finalizes a prepared transaction. Callers hold t.mu.
func (t *TxParticipant) resolve(tx *domain.Transaction, state domain.TxState, kind domain.OpKind) {
	if err := t.pending.DeletePending(tx.TxID); err != nil {
		log.Printf("tx %s: could not clear pending record: %v", tx.TxID, err)
	}
	if err := t.oplog.Append(kind, tx.AccountNo, tx.Amount, tx.TxID); err != nil {
		log.Printf("tx %s: could not journal %s: %v", tx.TxID, kind, err)
	}

	tx.State = state
	if t.byAccount[tx.AccountNo] == tx.TxID {
		delete(t.byAccount, tx.AccountNo)
	}

	log.Printf("tx %s %s (%s %d on account %d)", tx.TxID, state, tx.Side, tx.Amount, tx.AccountNo)
}

func (t *TxParticipant) Status(txID string) domain.TxState {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, ok := t.txs[txID]
	if !ok {
		return domain.Idle
	}

	return tx.State
}

// Recover aborts every transaction that was still PREPARED when the
// process went down, releasing its hold. Safe because nothing was
// applied for a prepared transaction yet.
func (t *TxParticipant) Recover() error {
	leftover, err := t.pending.AllPending()
	if err != nil {
		return err
	}

	if len(leftover) == 0 {
		return nil
	}

	log.Printf("recovering %d pending transactions (aborting them)", len(leftover))

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tx := range leftover {
		log.Printf("aborting leftover tx %s (%s %d on account %d)", tx.TxID, tx.Side, tx.Amount, tx.AccountNo)

		if tx.Side == domain.Debit {
			if err := t.ledger.Release(tx.AccountNo, tx.TxID); err != nil {
				return err
			}
		}

		t.resolve(tx, domain.Aborted, domain.OpTransferAbort)
		// Keep the terminal record so a late commit retry is answered
		// with a conflict instead of an unknown-transaction error.
		t.txs[tx.TxID] = tx
	}

	return nil
}

// RunExpiry aborts PREPARED transactions whose deadline passed. This is
// the bounded mitigation for the classic 2PC blocking problem: a
// coordinator that dies between prepare and decision strands the hold
// only until the deadline, not forever.
func (t *TxParticipant) RunExpiry(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, txID := range t.expired(now) {
				log.Printf("tx %s: deadline passed without a decision, aborting", txID)
				if err := t.Abort(txID); err != nil {
					log.Printf("tx %s: expiry abort failed: %v", txID, err)
				}
			}
		}
	}
}

func (t *TxParticipant) expired(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []string
	for txID, tx := range t.txs {
		if tx.State == domain.Prepared && tx.Expired(now) {
			ids = append(ids, txID)
		}
	}

	return ids
}
