package domain

import (
	"errors"
	"fmt"
)

// Error kinds as they appear on the wire in error responses.
const (
	KindNotFound          = "not_found"
	KindInsufficientFunds = "insufficient_funds"
	KindTxConflict        = "tx_conflict"
	KindTimeout           = "timeout"
	KindPeerUnreachable   = "peer_unreachable"
	KindProtocolViolation = "protocol_violation"
	KindUnresolved        = "unresolved"
	KindInternal          = "internal"
)

type NotFoundError struct {
	AccountNo int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("account %d not found", e.AccountNo)
}

type InsufficientFundsError struct {
	AccountNo int64
	Requested int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("account %d: insufficient funds (requested %d, available %d)",
		e.AccountNo, e.Requested, e.Available)
}

// TxConflictError covers both a competing reservation on an account and
// a commit/abort that contradicts a transaction's current state.
type TxConflictError struct {
	TxID   string
	HeldBy string
	Reason string
}

func (e *TxConflictError) Error() string {
	if e.HeldBy != "" {
		return fmt.Sprintf("tx %s: conflicting reservation held by %s", e.TxID, e.HeldBy)
	}
	return fmt.Sprintf("tx %s: %s", e.TxID, e.Reason)
}

type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out", e.Op)
}

type PeerUnreachableError struct {
	Addr string
	Err  error
}

func (e *PeerUnreachableError) Error() string {
	return fmt.Sprintf("peer %s unreachable: %v", e.Addr, e.Err)
}

func (e *PeerUnreachableError) Unwrap() error { return e.Err }

// ProtocolError marks a malformed frame or an out-of-order 2PC message.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Reason
}

// UnresolvedError is returned when a transfer's outcome could not be
// confirmed to both participants despite retries. It is not a failure
// of the transfer itself; the transaction is left for reconciliation.
type UnresolvedError struct {
	TxID string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("tx %s left unresolved after retries", e.TxID)
}

// Kind maps an error to its wire error_kind.
func Kind(err error) string {
	var (
		notFound     *NotFoundError
		insufficient *InsufficientFundsError
		conflict     *TxConflictError
		timeout      *TimeoutError
		unreachable  *PeerUnreachableError
		protocol     *ProtocolError
		unresolved   *UnresolvedError
	)
	switch {
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &insufficient):
		return KindInsufficientFunds
	case errors.As(err, &conflict):
		return KindTxConflict
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &unreachable):
		return KindPeerUnreachable
	case errors.As(err, &protocol):
		return KindProtocolViolation
	case errors.As(err, &unresolved):
		return KindUnresolved
	}
	return KindInternal
}
