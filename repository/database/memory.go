package database

import (
	"sync"

	"github.com/AARTI756/bank/domain"
)

// MemoryStore keeps a branch's ledger entirely in memory. It backs
// tests and throwaway demo branches; durable branches use SQLiteStore.
type MemoryStore struct {
	mu         sync.Mutex
	locks      map[int64]*sync.Mutex
	accounts   map[int64]*domain.Account
	pending    map[string]*domain.Transaction
	unresolved map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:      make(map[int64]*sync.Mutex),
		accounts:   make(map[int64]*domain.Account),
		pending:    make(map[string]*domain.Transaction),
		unresolved: make(map[string]string),
	}
}

// accountLock returns the mutex serializing operations on one account,
// creating it on first use.
func (m *MemoryStore) accountLock(accountNo int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[accountNo]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountNo] = lock
	}

	return lock
}

func (m *MemoryStore) lookup(accountNo int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[accountNo]
	if !ok {
		return nil, &domain.NotFoundError{AccountNo: accountNo}
	}

	return acc, nil
}

func (m *MemoryStore) Get(accountNo int64) (*domain.Account, error) {
	lock := m.accountLock(accountNo)
	lock.Lock()
	defer lock.Unlock()

	acc, err := m.lookup(accountNo)
	if err != nil {
		return nil, err
	}

	copied := *acc
	return &copied, nil
}

func (m *MemoryStore) Create(accountNo int64, name string, balance int64) error {
	lock := m.accountLock(accountNo)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[accountNo]; ok {
		return &domain.TxConflictError{Reason: "account already exists"}
	}

	m.accounts[accountNo] = &domain.Account{
		AccountNo: accountNo,
		Name:      name,
		Balance:   balance,
	}

	return nil
}

// List snapshots the account numbers under the store mutex, then copies
// each account under its own lock. Account fields are only ever written
// under the per-account lock, so copying them under m.mu alone would
// race with concurrent mutations.
func (m *MemoryStore) List() ([]*domain.Account, error) {
	m.mu.Lock()
	numbers := make([]int64, 0, len(m.accounts))
	for accountNo := range m.accounts {
		numbers = append(numbers, accountNo)
	}
	m.mu.Unlock()

	accounts := make([]*domain.Account, 0, len(numbers))
	for _, accountNo := range numbers {
		acc, err := m.Get(accountNo)
		if err != nil {
			continue
		}
		accounts = append(accounts, acc)
	}

	return accounts, nil
}

func (m *MemoryStore) Reserve(accountNo int64, amount int64, txID string) error {
	lock := m.accountLock(accountNo)
	lock.Lock()
	defer lock.Unlock()

	acc, err := m.lookup(accountNo)
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

	return nil
}

func (m *MemoryStore) Release(accountNo int64, txID string) error {
	lock := m.accountLock(accountNo)
	lock.Lock()
	defer lock.Unlock()

	acc, err := m.lookup(accountNo)
	if err != nil {
		return err
	}

	if acc.ReservedTx != txID {
		return nil
	}

	acc.Reserved = 0
	acc.ReservedTx = ""
	acc.Version++

	return nil
}

func (m *MemoryStore) ApplyDebit(accountNo int64, amount int64, txID string) error {
	lock := m.accountLock(accountNo)
	lock.Lock()
	defer lock.Unlock()

	acc, err := m.lookup(accountNo)
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

	return nil
}

func (m *MemoryStore) ApplyCredit(accountNo int64, amount int64, txID string) error {
	lock := m.accountLock(accountNo)
	lock.Lock()
	defer lock.Unlock()

	acc, err := m.lookup(accountNo)
	if err != nil {
		return err
	}

	acc.Balance += amount
	acc.Version++

	return nil
}

func (m *MemoryStore) PutPending(tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *tx
	m.pending[tx.TxID] = &copied

	return nil
}

func (m *MemoryStore) DeletePending(txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pending, txID)

	return nil
}

func (m *MemoryStore) AllPending() ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]*domain.Transaction, 0, len(m.pending))
	for _, tx := range m.pending {
		copied := *tx
		pending = append(pending, &copied)
	}

	return pending, nil
}

func (m *MemoryStore) PutUnresolved(txID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unresolved[txID] = reason

	return nil
}

func (m *MemoryStore) AllUnresolved() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	unresolved := make(map[string]string, len(m.unresolved))
	for txID, reason := range m.unresolved {
		unresolved[txID] = reason
	}

	return unresolved, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
