package database

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AARTI756/bank/domain"
)

// stores runs the same assertions against every Store implementation.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "branch.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestReserveAndApplyDebit(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(1001, "alice", 1000); err != nil {
				t.Fatalf("create: %v", err)
			}

			if err := store.Reserve(1001, 400, "tx-1"); err != nil {
				t.Fatalf("reserve: %v", err)
			}

			acc, err := store.Get(1001)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if acc.Reserved != 400 || acc.Available() != 600 {
				t.Errorf("reserved = %d, available = %d, want 400/600", acc.Reserved, acc.Available())
			}

			if err := store.ApplyDebit(1001, 400, "tx-1"); err != nil {
				t.Fatalf("apply debit: %v", err)
			}

			acc, _ = store.Get(1001)
			if acc.Balance != 600 || acc.Reserved != 0 || acc.ReservedTx != "" {
				t.Errorf("after debit: balance = %d, reserved = %d (%q)", acc.Balance, acc.Reserved, acc.ReservedTx)
			}
		})
	}
}

func TestReserveFailsFast(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(1001, "alice", 1000); err != nil {
				t.Fatalf("create: %v", err)
			}

			var insufficient *domain.InsufficientFundsError
			if err := store.Reserve(1001, 1500, "tx-1"); !errors.As(err, &insufficient) {
				t.Fatalf("overdraft reserve: err = %v, want insufficient funds", err)
			}

			if err := store.Reserve(1001, 400, "tx-1"); err != nil {
				t.Fatalf("reserve: %v", err)
			}

			var conflict *domain.TxConflictError
			if err := store.Reserve(1001, 100, "tx-2"); !errors.As(err, &conflict) {
				t.Fatalf("competing reserve: err = %v, want tx conflict", err)
			}

			// The hold counts against available balance.
			if err := store.Reserve(1001, 700, "tx-1"); !errors.As(err, &insufficient) {
				t.Fatalf("reserve beyond available: err = %v, want insufficient funds", err)
			}
		})
	}
}

func TestReleaseReturnsHold(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(1001, "alice", 1000); err != nil {
				t.Fatalf("create: %v", err)
			}

			if err := store.Reserve(1001, 400, "tx-1"); err != nil {
				t.Fatalf("reserve: %v", err)
			}

			// Releasing under the wrong transaction is a no-op.
			if err := store.Release(1001, "tx-other"); err != nil {
				t.Fatalf("foreign release: %v", err)
			}
			acc, _ := store.Get(1001)
			if acc.Reserved != 400 {
				t.Fatalf("foreign release dropped the hold")
			}

			if err := store.Release(1001, "tx-1"); err != nil {
				t.Fatalf("release: %v", err)
			}
			acc, _ = store.Get(1001)
			if acc.Reserved != 0 || acc.Balance != 1000 {
				t.Errorf("after release: balance = %d, reserved = %d, want 1000/0", acc.Balance, acc.Reserved)
			}
		})
	}
}

func TestDebitRequiresMatchingReservation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(1001, "alice", 1000); err != nil {
				t.Fatalf("create: %v", err)
			}

			var conflict *domain.TxConflictError
			if err := store.ApplyDebit(1001, 400, "tx-1"); !errors.As(err, &conflict) {
				t.Fatalf("debit without reservation: err = %v, want tx conflict", err)
			}
		})
	}
}

func TestCreditNeedsNoReservation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(1002, "bob", 300); err != nil {
				t.Fatalf("create: %v", err)
			}

			if err := store.ApplyCredit(1002, 500, "tx-1"); err != nil {
				t.Fatalf("credit: %v", err)
			}

			acc, _ := store.Get(1002)
			if acc.Balance != 800 {
				t.Errorf("balance = %d, want 800", acc.Balance)
			}
		})
	}
}

func TestUnknownAccount(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var notFound *domain.NotFoundError
			if _, err := store.Get(4242); !errors.As(err, &notFound) {
				t.Errorf("get: err = %v, want not found", err)
			}
			if err := store.Reserve(4242, 10, "tx-1"); !errors.As(err, &notFound) {
				t.Errorf("reserve: err = %v, want not found", err)
			}
			if err := store.ApplyCredit(4242, 10, ""); !errors.As(err, &notFound) {
				t.Errorf("credit: err = %v, want not found", err)
			}
		})
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(1001, "alice", 1000); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.Create(1001, "alice again", 0); err == nil {
				t.Fatal("duplicate create succeeded")
			}
		})
	}
}

func TestPendingRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			tx := &domain.Transaction{
				TxID:      "tx-1",
				Side:      domain.Debit,
				AccountNo: 1001,
				Amount:    400,
				State:     domain.Prepared,
				Deadline:  time.Now().Add(10 * time.Second).Truncate(time.Millisecond),
			}

			if err := store.PutPending(tx); err != nil {
				t.Fatalf("put pending: %v", err)
			}

			pending, err := store.AllPending()
			if err != nil {
				t.Fatalf("all pending: %v", err)
			}
			if len(pending) != 1 {
				t.Fatalf("pending count = %d, want 1", len(pending))
			}

			got := pending[0]
			if got.TxID != "tx-1" || got.Side != domain.Debit || got.AccountNo != 1001 || got.Amount != 400 {
				t.Errorf("pending = %+v", got)
			}

			if err := store.DeletePending("tx-1"); err != nil {
				t.Fatalf("delete pending: %v", err)
			}

			pending, _ = store.AllPending()
			if len(pending) != 0 {
				t.Errorf("pending count after delete = %d, want 0", len(pending))
			}
		})
	}
}

func TestUnresolvedRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.PutUnresolved("tx-1", "commit not acknowledged"); err != nil {
				t.Fatalf("put unresolved: %v", err)
			}
			// Re-recording the same transaction must not fail.
			if err := store.PutUnresolved("tx-1", "commit not acknowledged"); err != nil {
				t.Fatalf("repeated put unresolved: %v", err)
			}

			unresolved, err := store.AllUnresolved()
			if err != nil {
				t.Fatalf("all unresolved: %v", err)
			}
			if len(unresolved) != 1 || unresolved["tx-1"] != "commit not acknowledged" {
				t.Errorf("unresolved = %v", unresolved)
			}
		})
	}
}

func TestListConcurrentWithMutations(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Create(1001, "alice", 0); err != nil {
		t.Fatalf("create: %v", err)
	}

	const credits = 500

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < credits; i++ {
			if err := store.ApplyCredit(1001, 1, ""); err != nil {
				t.Errorf("credit: %v", err)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < credits; i++ {
			if _, err := store.List(); err != nil {
				t.Errorf("list: %v", err)
				return
			}
		}
	}()

	wg.Wait()

	acc, _ := store.Get(1001)
	if acc.Balance != credits {
		t.Errorf("balance = %d, want %d", acc.Balance, credits)
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "branch.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Create(1001, "alice", 1000); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Reserve(1001, 400, "tx-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.PutPending(&domain.Transaction{
		TxID: "tx-1", Side: domain.Debit, AccountNo: 1001, Amount: 400,
		State: domain.Prepared, Deadline: time.Now().Add(10 * time.Second),
	}); err != nil {
		t.Fatalf("put pending: %v", err)
	}
	if err := store.PutUnresolved("tx-0", "abort not acknowledged"); err != nil {
		t.Fatalf("put unresolved: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	acc, err := reopened.Get(1001)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if acc.Balance != 1000 || acc.Reserved != 400 || acc.ReservedTx != "tx-1" {
		t.Errorf("account after reopen = %+v", acc)
	}

	pending, err := reopened.AllPending()
	if err != nil {
		t.Fatalf("pending after reopen: %v", err)
	}
	if len(pending) != 1 || pending[0].TxID != "tx-1" {
		t.Errorf("pending after reopen = %+v", pending)
	}

	unresolved, err := reopened.AllUnresolved()
	if err != nil {
		t.Fatalf("unresolved after reopen: %v", err)
	}
	if unresolved["tx-0"] != "abort not acknowledged" {
		t.Errorf("unresolved after reopen = %v", unresolved)
	}
}
