package service

import (
	"github.com/AARTI756/bank/domain"
	"github.com/AARTI756/bank/repository/database"
	"github.com/google/uuid"
)

// Engine executes single-branch operations against the ledger. Every
// successful mutation appends exactly one operation log entry, and the
// entry is written before funds move, so a crash never loses the record
// of an applied mutation.
type Engine struct {
	ledger database.Ledger
	oplog  database.OpLog
}

func NewEngine(ledger database.Ledger, oplog database.OpLog) *Engine {
	return &Engine{ledger: ledger, oplog: oplog}
}

func (e *Engine) Balance(accountNo int64) (*domain.Account, error) {
	return e.ledger.Get(accountNo)
}

func (e *Engine) ListAccounts() ([]*domain.Account, error) {
	return e.ledger.List()
}

func (e *Engine) CreateAccount(accountNo int64, name string, balance int64) error {
	if balance < 0 {
		return &domain.ProtocolError{Reason: "opening balance must not be negative"}
	}
	return e.ledger.Create(accountNo, name, balance)
}

func (e *Engine) Logs(accountNo int64) []*domain.OperationLogEntry {
	if accountNo == 0 {
		return e.oplog.All()
	}
	return e.oplog.ByAccount(accountNo)
}

// Deposit credits the account and returns the new balance.
func (e *Engine) Deposit(accountNo int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, &domain.ProtocolError{Reason: "amount must be positive"}
	}

	if _, err := e.ledger.Get(accountNo); err != nil {
		return 0, err
	}

	if err := e.oplog.Append(domain.OpDeposit, accountNo, amount, ""); err != nil {
		return 0, err
	}

	if err := e.ledger.ApplyCredit(accountNo, amount, ""); err != nil {
		return 0, err
	}

	acc, err := e.ledger.Get(accountNo)
	if err != nil {
		return 0, err
	}

	return acc.Balance, nil
}

// Withdraw debits the account, rejecting overdrafts, and returns the
// new balance. The account lock is released between Reserve and
// ApplyDebit, but the reservation itself keeps the funds out of reach
// of competing operations for that window.
func (e *Engine) Withdraw(accountNo int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, &domain.ProtocolError{Reason: "amount must be positive"}
	}

	txID := "local-" + uuid.NewString()

	if err := e.ledger.Reserve(accountNo, amount, txID); err != nil {
		return 0, err
	}

	if err := e.oplog.Append(domain.OpWithdraw, accountNo, amount, ""); err != nil {
		_ = e.ledger.Release(accountNo, txID)
		return 0, err
	}

	if err := e.ledger.ApplyDebit(accountNo, amount, txID); err != nil {
		return 0, err
	}

	acc, err := e.ledger.Get(accountNo)
	if err != nil {
		return 0, err
	}

	return acc.Balance, nil
}

// TransferLocal moves funds between two accounts of this branch as one
// atomic debit+credit pair. There is no partition risk inside one
// branch, so this never goes through 2PC.
func (e *Engine) TransferLocal(srcAccount, dstAccount, amount int64) (int64, int64, error) {
	if amount <= 0 {
		return 0, 0, &domain.ProtocolError{Reason: "amount must be positive"}
	}
	if srcAccount == dstAccount {
		return 0, 0, &domain.ProtocolError{Reason: "source and destination must differ"}
	}

	if _, err := e.ledger.Get(dstAccount); err != nil {
		return 0, 0, err
	}

	txID := "local-" + uuid.NewString()

	if err := e.ledger.Reserve(srcAccount, amount, txID); err != nil {
		return 0, 0, err
	}

	if err := e.oplog.Append(domain.OpTransferLocal, srcAccount, amount, ""); err != nil {
		_ = e.ledger.Release(srcAccount, txID)
		return 0, 0, err
	}

	if err := e.ledger.ApplyDebit(srcAccount, amount, txID); err != nil {
		return 0, 0, err
	}
	if err := e.ledger.ApplyCredit(dstAccount, amount, ""); err != nil {
		return 0, 0, err
	}

	src, err := e.ledger.Get(srcAccount)
	if err != nil {
		return 0, 0, err
	}
	dst, err := e.ledger.Get(dstAccount)
	if err != nil {
		return 0, 0, err
	}

	return src.Balance, dst.Balance, nil
}
