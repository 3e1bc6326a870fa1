package database

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/AARTI756/bank/domain"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	account_no  INTEGER PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	balance     INTEGER NOT NULL,
	reserved    INTEGER NOT NULL DEFAULT 0,
	reserved_tx TEXT NOT NULL DEFAULT '',
	version     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS pending_tx (
	tx_id      TEXT PRIMARY KEY,
	account_no INTEGER NOT NULL,
	amount     INTEGER NOT NULL,
	side       TEXT NOT NULL,
	deadline   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS unresolved_tx (
	tx_id  TEXT PRIMARY KEY,
	reason TEXT NOT NULL DEFAULT ''
);
`

// SQLiteStore is the durable branch store: one sqlite file per branch
// holding the account table and the prepared-transaction journal.
// Correctness of concurrent access does not rely on sqlite locking;
// every mutating call runs under an explicit per-account mutex.
type SQLiteStore struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema in %s: %w", path, err)
	}

	return &SQLiteStore{
		db:    db,
		locks: make(map[int64]*sync.Mutex),
	}, nil
}

func (s *SQLiteStore) accountLock(accountNo int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[accountNo]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[accountNo] = lock
	}

	return lock
}

func (s *SQLiteStore) lookup(accountNo int64) (*domain.Account, error) {
	acc := &domain.Account{}
	row := s.db.QueryRow(
		`SELECT account_no, name, balance, reserved, reserved_tx, version FROM accounts WHERE account_no = ?`,
		accountNo)

	err := row.Scan(&acc.AccountNo, &acc.Name, &acc.Balance, &acc.Reserved, &acc.ReservedTx, &acc.Version)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{AccountNo: accountNo}
	}
	if err != nil {
		return nil, fmt.Errorf("read account %d: %w", accountNo, err)
	}

	return acc, nil
}

func (s *SQLiteStore) writeBack(acc *domain.Account) error {
	_, err := s.db.Exec(
		`UPDATE accounts SET balance = ?, reserved = ?, reserved_tx = ?, version = ? WHERE account_no = ?`,
		acc.Balance, acc.Reserved, acc.ReservedTx, acc.Version, acc.AccountNo)
	if err != nil {
		return fmt.Errorf("update account %d: %w", acc.AccountNo, err)
	}

	return nil
}

func (s *SQLiteStore) Get(accountNo int64) (*domain.Account, error) {
	lock := s.accountLock(accountNo)
	lock.Lock()
	defer lock.Unlock()

	return s.lookup(accountNo)
}

func (s *SQLiteStore) Create(accountNo int64, name string, balance int64) error {
	lock := s.accountLock(accountNo)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.lookup(accountNo); err == nil {
		return &domain.TxConflictError{Reason: "account already exists"}
	}

	_, err := s.db.Exec(
		`INSERT INTO accounts (account_no, name, balance) VALUES (?, ?, ?)`,
		accountNo, name, balance)
	if err != nil {
		return fmt.Errorf("create account %d: %w", accountNo, err)
	}

	return nil
}

func (s *SQLiteStore) List() ([]*domain.Account, error) {
	rows, err := s.db.Query(
		`SELECT account_no, name, balance, reserved, reserved_tx, version FROM accounts ORDER BY account_no`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		acc := &domain.Account{}
		if err := rows.Scan(&acc.AccountNo, &acc.Name, &acc.Balance, &acc.Reserved, &acc.ReservedTx, &acc.Version); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}

	return accounts, rows.Err()
}

func (s *SQLiteStore) Reserve(accountNo int64, amount int64, txID string) error {
	lock := s.accountLock(accountNo)
	lock.Lock()
	defer lock.Unlock()

	acc, err := s.lookup(accountNo)
	if err != nil {
		return err
	}

	if acc.ReservedTx != "" && acc.ReservedTx != txID {
		return &domain.TxConflictError{TxID: txID, HeldBy: acc.ReservedTx}
	}

	if acc.Available() < amount {
		return &domain.InsufficientFundsError{
			AccountNo: accountNo,
			Requested: amount,
			Available: acc.Available(),
		}
	}

	acc.Reserved = amount
	acc.ReservedTx = txID
	acc.Version++

	return s.writeBack(acc)
}

func (s *SQLiteStore) Release(accountNo int64, txID string) error {
	lock := s.accountLock(accountNo)
	lock.Lock()
	defer lock.Unlock()

	acc, err := s.lookup(accountNo)
	if err != nil {
		return err
	}

	if acc.ReservedTx != txID {
		return nil
	}

	acc.Reserved = 0
	acc.ReservedTx = ""
	acc.Version++

	return s.writeBack(acc)
}

func (s *SQLiteStore) ApplyDebit(accountNo int64, amount int64, txID string) error {
	lock := s.accountLock(accountNo)
	lock.Lock()
	defer lock.Unlock()

	acc, err := s.lookup(accountNo)
	if err != nil {
		return err
	}

	if acc.ReservedTx != txID {
		return &domain.TxConflictError{TxID: txID, Reason: "debit without matching reservation"}
	}

	acc.Balance -= amount
	acc.Reserved = 0
	acc.ReservedTx = ""
	acc.Version++

	return s.writeBack(acc)
}

func (s *SQLiteStore) ApplyCredit(accountNo int64, amount int64, txID string) error {
	lock := s.accountLock(accountNo)
	lock.Lock()
	defer lock.Unlock()

	acc, err := s.lookup(accountNo)
	if err != nil {
		return err
	}

	acc.Balance += amount
	acc.Version++

	return s.writeBack(acc)
}

func (s *SQLiteStore) PutPending(tx *domain.Transaction) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO pending_tx (tx_id, account_no, amount, side, deadline) VALUES (?, ?, ?, ?, ?)`,
		tx.TxID, tx.AccountNo, tx.Amount, string(tx.Side), tx.Deadline.UnixMilli())
	if err != nil {
		return fmt.Errorf("record pending tx %s: %w", tx.TxID, err)
	}

	return nil
}

func (s *SQLiteStore) DeletePending(txID string) error {
	_, err := s.db.Exec(`DELETE FROM pending_tx WHERE tx_id = ?`, txID)
	if err != nil {
		return fmt.Errorf("delete pending tx %s: %w", txID, err)
	}

	return nil
}

func (s *SQLiteStore) AllPending() ([]*domain.Transaction, error) {
	rows, err := s.db.Query(`SELECT tx_id, account_no, amount, side, deadline FROM pending_tx`)
	if err != nil {
		return nil, fmt.Errorf("list pending tx: %w", err)
	}
	defer rows.Close()

	pending := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx := &domain.Transaction{State: domain.Prepared}
		var side string
		var deadline int64
		if err := rows.Scan(&tx.TxID, &tx.AccountNo, &tx.Amount, &side, &deadline); err != nil {
			return nil, fmt.Errorf("scan pending tx: %w", err)
		}
		tx.Side = domain.Side(side)
		tx.Deadline = time.UnixMilli(deadline)
		pending = append(pending, tx)
	}

	return pending, rows.Err()
}

func (s *SQLiteStore) PutUnresolved(txID string, reason string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO unresolved_tx (tx_id, reason) VALUES (?, ?)`,
		txID, reason)
	if err != nil {
		return fmt.Errorf("record unresolved tx %s: %w", txID, err)
	}

	return nil
}

func (s *SQLiteStore) AllUnresolved() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT tx_id, reason FROM unresolved_tx`)
	if err != nil {
		return nil, fmt.Errorf("list unresolved tx: %w", err)
	}
	defer rows.Close()

	unresolved := make(map[string]string)
	for rows.Next() {
		var txID, reason string
		if err := rows.Scan(&txID, &reason); err != nil {
			return nil, fmt.Errorf("scan unresolved tx: %w", err)
		}
		unresolved[txID] = reason
	}

	return unresolved, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
