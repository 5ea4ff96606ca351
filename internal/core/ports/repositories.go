package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"atm-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// LedgerStore is durable storage of account balances and the append-only
// transaction log. All balance mutations go through a Section.
type LedgerStore interface {
	// BeginSection acquires the exclusive per-account lock and returns a
	// handle bound to it. It blocks until the lock is free or the store's
	// lock timeout elapses (domain.ErrLockTimeout). A missing account
	// yields domain.ErrAccountNotFound and no lock is held.
	BeginSection(ctx context.Context, accountID uuid.UUID) (Section, error)
}

// Section is an open atomic read-modify-write unit on one account.
// Staged writes become visible only on Commit. The lock is released by
// Commit or Abort; Abort after Commit is a no-op.
type Section interface {
	AccountID() uuid.UUID
	// ReadBalance returns the committed balance. Repeated calls agree.
	ReadBalance(ctx context.Context) (domain.Money, error)
	// WriteBalance stages the new balance. Negative values are rejected
	// with domain.ErrInvariantViolation.
	WriteBalance(ctx context.Context, balance domain.Money) error
	// AppendRecord stages an immutable record. Its ID is assigned now,
	// its Sequence on Commit.
	AppendRecord(ctx context.Context, kind domain.TransactionKind, amount domain.Money, at time.Time) (*domain.Transaction, error)
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// AccountLocker serializes work on an account key across processes or
// goroutines. It sits in front of a store's own row lock.
type AccountLocker interface {
	// Acquire blocks until the key is held or ctx is done. release is
	// safe to call more than once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// AccountRepository provisions and reads accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
}

// TransactionRepository is the read side of the transaction log.
type TransactionRepository interface {
	// List returns records ordered by created_at DESC, sequence DESC.
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetStats(ctx context.Context, accountID uuid.UUID, since *time.Time) (*domain.TransactionStats, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	AccountID uuid.UUID
	Kind      *domain.TransactionKind
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// Offset returns the row offset for the requested page.
func (p TransactionListParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// IdempotencyCache is the Redis-layer replay cache for applied requests.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// EventPublisher emits committed ledger events to downstream consumers.
type EventPublisher interface {
	PublishTransactionApplied(ctx context.Context, event TransactionAppliedEvent) error
	Close() error
}

// TransactionAppliedEvent is published once per committed mutation.
type TransactionAppliedEvent struct {
	TransactionID uuid.UUID              `json:"transaction_id"`
	Sequence      int64                  `json:"sequence"`
	AccountID     uuid.UUID              `json:"account_id"`
	Kind          domain.TransactionKind `json:"type"`
	Amount        domain.Money           `json:"amount"`
	NewBalance    domain.Money           `json:"new_balance"`
	OccurredAt    time.Time              `json:"occurred_at"`
}
