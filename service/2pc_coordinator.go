package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/AARTI756/bank/domain"
	"github.com/AARTI756/bank/repository/database"
	"github.com/AARTI756/bank/wire"
	"github.com/google/uuid"
)

// CoordinatorConfig carries the knobs of the 2PC driver. SelfAddrs
// lists the addresses under which this branch is reachable, so a
// transfer whose destination is this same branch degrades to a local
// transfer instead of running 2PC against ourselves.
type CoordinatorConfig struct {
	Branch         string
	SelfAddrs      []string
	PrepareTimeout time.Duration
	RetryBackoff   time.Duration
	MaxRetries     int

	// NewPeer builds the client for a remote branch address. Tests
	// substitute in-process fakes here.
	NewPeer func(addr string) Peer

	// Unresolved persists stuck transfers so the reconciliation record
	// survives a restart. Optional; nil keeps them in memory only.
	Unresolved database.UnresolvedStore
}

// TxCoordinator runs the 2PC protocol for transfers initiated at this
// branch. It never touches a ledger itself; it only drives the local
// and remote participants, plus the engine for the degenerate
// same-branch case.
type TxCoordinator struct {
	branch         string
	self           map[string]struct{}
	local          Participant
	engine         *Engine
	newPeer        func(addr string) Peer
	prepareTimeout time.Duration
	retryBackoff   time.Duration
	maxRetries     int
	store          database.UnresolvedStore

	mu         sync.Mutex
	unresolved map[string]*TransferResult
}

func NewTxCoordinator(local Participant, engine *Engine, cfg *CoordinatorConfig) *TxCoordinator {
	self := make(map[string]struct{})
	for _, addr := range cfg.SelfAddrs {
		self[addr] = struct{}{}
	}

	c := &TxCoordinator{
		branch:         cfg.Branch,
		self:           self,
		local:          local,
		engine:         engine,
		newPeer:        cfg.NewPeer,
		prepareTimeout: cfg.PrepareTimeout,
		retryBackoff:   cfg.RetryBackoff,
		maxRetries:     cfg.MaxRetries,
		store:          cfg.Unresolved,
		unresolved:     make(map[string]*TransferResult),
	}

	if c.store != nil {
		recorded, err := c.store.AllUnresolved()
		if err != nil {
			log.Printf("could not load unresolved transactions: %v", err)
		}
		for txID, reason := range recorded {
			c.unresolved[txID] = &TransferResult{
				TxID:    txID,
				Outcome: domain.OutcomeUnresolved,
				Reason:  reason,
			}
		}
	}

	return c
}

// localPeer drives the in-process participant through the Peer
// interface. Participant calls never block on the network, so the
// context is not consulted.
type localPeer struct {
	p Participant
}

func (l *localPeer) Prepare(ctx context.Context, tx *domain.Transaction) error {
	return l.p.Prepare(tx.TxID, tx.AccountNo, tx.Amount, tx.Side)
}

func (l *localPeer) Commit(ctx context.Context, txID string) error {
	return l.p.Commit(txID)
}

func (l *localPeer) Abort(ctx context.Context, txID string) error {
	return l.p.Abort(txID)
}

func (c *TxCoordinator) Transfer(ctx context.Context, req *TransferRequest) *TransferResult {
	txID := req.TxID
	if txID == "" {
		txID = c.branch + "-" + uuid.NewString()
	}

	if req.Amount <= 0 {
		return &TransferResult{TxID: txID, Outcome: domain.OutcomeAborted, Reason: "amount must be positive"}
	}

	if _, same := c.self[req.DstAddr]; same {
		return c.transferSameBranch(txID, req)
	}

	legs := [2]Peer{&localPeer{c.local}, c.newPeer(req.DstAddr)}
	txs := [2]*domain.Transaction{
		{TxID: txID, Side: domain.Debit, AccountNo: req.SrcAccount, Amount: req.Amount},
		{TxID: txID, Side: domain.Credit, AccountNo: req.DstAccount, Amount: req.Amount},
	}

	prepared, reason := c.preparePhase(ctx, legs, txs)

	if reason == "" {
		if c.deliver(txID, legs, [2]bool{true, true}, true) {
			log.Printf("tx %s committed (%d from account %d to %s account %d)",
				txID, req.Amount, req.SrcAccount, req.DstAddr, req.DstAccount)
			return &TransferResult{TxID: txID, Outcome: domain.OutcomeCommitted}
		}
		return c.markUnresolved(txID, "commit decided but not acknowledged by both participants")
	}

	if c.deliver(txID, legs, prepared, false) {
		log.Printf("tx %s aborted: %s", txID, reason)
		return &TransferResult{TxID: txID, Outcome: domain.OutcomeAborted, Reason: reason}
	}

	return c.markUnresolved(txID, "abort decided but not acknowledged by every prepared participant")
}

// transferSameBranch handles a destination address that is this branch
// itself: no partition risk, so the engine's atomic pair is used.
func (c *TxCoordinator) transferSameBranch(txID string, req *TransferRequest) *TransferResult {
	if _, _, err := c.engine.TransferLocal(req.SrcAccount, req.DstAccount, req.Amount); err != nil {
		return &TransferResult{TxID: txID, Outcome: domain.OutcomeAborted, Reason: err.Error()}
	}
	return &TransferResult{TxID: txID, Outcome: domain.OutcomeCommitted}
}

// preparePhase sends both prepares concurrently under one shared
// timeout. The first failure decides abort without waiting for the
// other leg. It returns which legs confirmed PREPARED and, for an
// abort decision, the reason.
func (c *TxCoordinator) preparePhase(ctx context.Context, legs [2]Peer, txs [2]*domain.Transaction) ([2]bool, string) {
	prepCtx, cancel := context.WithTimeout(ctx, c.prepareTimeout)
	defer cancel()

	results := [2]error{}
	done := make(chan int, 2)

	for i := range legs {
		go func(i int) {
			results[i] = legs[i].Prepare(prepCtx, txs[i])
			done <- i
		}(i)
	}

	prepared := [2]bool{}
	for n := 0; n < 2; n++ {
		i := <-done
		if err := results[i]; err != nil {
			cancel()
			// The other leg may have prepared by now or may still be
			// in flight; the abort delivery covers it either way.
			return prepared, err.Error()
		}
		prepared[i] = true
	}

	return prepared, ""
}

// deliver pushes the decision to both legs in parallel with
// independent retry schedules. Legs listed in required must
// acknowledge; the rest are best-effort (an abort to a leg that never
// prepared has nothing to undo). Returns whether every required leg
// acknowledged.
func (c *TxCoordinator) deliver(txID string, legs [2]Peer, required [2]bool, commit bool) bool {
	acks := [2]bool{}
	var wg sync.WaitGroup

	for i := range legs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			attempts := c.maxRetries
			if !required[i] {
				attempts = 1
			}

			for attempt := 0; attempt < attempts; attempt++ {
				if attempt > 0 {
					time.Sleep(c.retryBackoff * time.Duration(attempt))
				}

				callCtx, cancel := context.WithTimeout(context.Background(), c.prepareTimeout)
				var err error
				if commit {
					err = legs[i].Commit(callCtx, txID)
				} else {
					err = legs[i].Abort(callCtx, txID)
				}
				cancel()

				if err == nil {
					acks[i] = true
					return
				}

				if isConflict(err) {
					// Deterministic refusal (e.g. the participant
					// already auto-aborted past its deadline); no
					// retry can change the answer.
					log.Printf("tx %s: participant refused decision: %v", txID, err)
					return
				}

				log.Printf("tx %s: decision delivery attempt %d/%d failed: %v", txID, attempt+1, attempts, err)
			}
		}(i)
	}

	wg.Wait()

	for i := range legs {
		if required[i] && !acks[i] {
			return false
		}
	}

	return true
}

func isConflict(err error) bool {
	var conflict *domain.TxConflictError
	if errors.As(err, &conflict) {
		return true
	}

	var remote *wire.RemoteError
	return errors.As(err, &remote) && remote.Kind == domain.KindTxConflict
}

func (c *TxCoordinator) markUnresolved(txID string, reason string) *TransferResult {
	res := &TransferResult{TxID: txID, Outcome: domain.OutcomeUnresolved, Reason: reason}

	c.mu.Lock()
	c.unresolved[txID] = res
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.PutUnresolved(txID, reason); err != nil {
			log.Printf("tx %s: could not persist unresolved record: %v", txID, err)
		}
	}

	log.Printf("tx %s UNRESOLVED: %s; operator reconciliation required", txID, reason)

	return res
}

func (c *TxCoordinator) Unresolved() []*TransferResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*TransferResult, 0, len(c.unresolved))
	for _, res := range c.unresolved {
		out = append(out, res)
	}

	return out
}
