package domain

import "errors"

// Sentinel errors shared by the ledger engine and its stores. Stores wrap these
// with context; callers match them with errors.Is.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidKind        = errors.New("invalid transaction kind")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrLockTimeout        = errors.New("account lock timeout")
	ErrInvariantViolation = errors.New("ledger invariant violated")
	ErrAccountExists      = errors.New("account already exists")
)
