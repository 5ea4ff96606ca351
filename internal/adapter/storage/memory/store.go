// Package memory is an in-process ledger store. It backs tests and the
// "memory" database driver; state does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"atm-ledger/internal/core/domain"
	"atm-ledger/internal/core/ports"
	"atm-ledger/pkg/keylock"

	"github.com/google/uuid"
)

const defaultLockTimeout = 5 * time.Second

// Store keeps accounts and the transaction log in maps guarded by mu.
// mu is only held for map access; the per-account section lock lives in
// locks and is held for the whole read-modify-write.
type Store struct {
	mu         sync.RWMutex
	accounts   map[uuid.UUID]*domain.Account
	byUsername map[string]uuid.UUID
	log        []domain.Transaction
	seq        int64

	locks       *keylock.KeyedMutex
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long BeginSection waits for an account.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithClock overrides the time source used for account timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		accounts:    make(map[uuid.UUID]*domain.Account),
		byUsername:  make(map[string]uuid.UUID),
		locks:       keylock.New(),
		lockTimeout: defaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BeginSection implements ports.LedgerStore.
func (s *Store) BeginSection(ctx context.Context, accountID uuid.UUID) (ports.Section, error) {
	s.mu.RLock()
	_, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory: begin section %s: %w", accountID, domain.ErrAccountNotFound)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	release, err := s.locks.Acquire(lockCtx, accountID.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("memory: lock account %s: %w", accountID, ctx.Err())
		}
		return nil, fmt.Errorf("memory: lock account %s after %s: %w", accountID, s.lockTimeout, domain.ErrLockTimeout)
	}

	return &section{store: s, accountID: accountID, release: release}, nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

// --- AccountRepository ---

// Create stores a new account. Usernames are unique case-insensitively.
func (s *Store) Create(ctx context.Context, account *domain.Account) error {
	if account.Balance < 0 {
		return fmt.Errorf("memory: create account: %w: negative opening balance", domain.ErrInvariantViolation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uname := strings.ToLower(account.Username)
	if _, exists := s.byUsername[uname]; exists {
		return fmt.Errorf("memory: create account %q: %w", account.Username, domain.ErrAccountExists)
	}
	if _, exists := s.accounts[account.ID]; exists {
		return fmt.Errorf("memory: create account %s: %w", account.ID, domain.ErrAccountExists)
	}

	now := s.now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	stored := *account
	s.accounts[account.ID] = &stored
	s.byUsername[uname] = account.ID
	return nil
}

// GetByID returns nil, nil when the account does not exist.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

// GetByUsername returns nil, nil when the account does not exist.
func (s *Store) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, nil
	}
	out := *s.accounts[id]
	return &out, nil
}

// --- TransactionRepository ---

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	s.mu.RLock()
	matched := make([]domain.Transaction, 0)
	for _, t := range s.log {
		if t.AccountID != params.AccountID {
			continue
		}
		if params.Kind != nil && t.Kind != *params.Kind {
			continue
		}
		if params.From != nil && t.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && t.CreatedAt.After(*params.To) {
			continue
		}
		matched = append(matched, t)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Sequence > matched[j].Sequence
	})

	total := int64(len(matched))
	offset := params.Offset()
	if offset >= len(matched) {
		return []domain.Transaction{}, total, nil
	}
	end := len(matched)
	if params.PageSize > 0 && offset+params.PageSize < end {
		end = offset + params.PageSize
	}
	return matched[offset:end], total, nil
}

// GetStats aggregates the account's log, optionally from since onwards.
func (s *Store) GetStats(ctx context.Context, accountID uuid.UUID, since *time.Time) (*domain.TransactionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.TransactionStats{}
	for _, t := range s.log {
		if t.AccountID != accountID {
			continue
		}
		if since != nil && t.CreatedAt.Before(*since) {
			continue
		}
		stats.TotalTransactions++
		switch t.Kind {
		case domain.TransactionKindDeposit:
			stats.Deposits++
			stats.TotalDeposited += t.Amount
		case domain.TransactionKindWithdraw:
			stats.Withdrawals++
			stats.TotalWithdrawn += t.Amount
		}
	}
	return stats, nil
}

// commit publishes a section's staged balance and record together.
func (s *Store) commit(accountID uuid.UUID, balance domain.Money, rec *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("memory: commit %s: %w", accountID, domain.ErrAccountNotFound)
	}

	s.seq++
	rec.Sequence = s.seq
	acct.Balance = balance
	acct.UpdatedAt = s.now().UTC()
	s.log = append(s.log, *rec)
	return nil
}

func (s *Store) balance(accountID uuid.UUID) (domain.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return 0, fmt.Errorf("memory: read balance %s: %w", accountID, domain.ErrAccountNotFound)
	}
	return acct.Balance, nil
}
