package memory

import (
	"context"
	"fmt"
	"time"

	"atm-ledger/internal/core/domain"

	"github.com/google/uuid"
)

var errSectionClosed = fmt.Errorf("%w: section already closed", domain.ErrInvariantViolation)

// section holds the account lock from BeginSection until Commit or Abort.
type section struct {
	store     *Store
	accountID uuid.UUID
	release   func()

	balance    domain.Money
	hasBalance bool
	record     *domain.Transaction
	closed     bool
}

func (s *section) AccountID() uuid.UUID { return s.accountID }

func (s *section) ReadBalance(ctx context.Context) (domain.Money, error) {
	if s.closed {
		return 0, errSectionClosed
	}
	return s.store.balance(s.accountID)
}

func (s *section) WriteBalance(ctx context.Context, balance domain.Money) error {
	if s.closed {
		return errSectionClosed
	}
	if balance < 0 {
		return fmt.Errorf("memory: write balance %s: %w: negative balance %s", s.accountID, domain.ErrInvariantViolation, balance)
	}
	s.balance = balance
	s.hasBalance = true
	return nil
}

func (s *section) AppendRecord(ctx context.Context, kind domain.TransactionKind, amount domain.Money, at time.Time) (*domain.Transaction, error) {
	if s.closed {
		return nil, errSectionClosed
	}
	if !kind.IsValid() || !amount.IsPositive() {
		return nil, fmt.Errorf("memory: append record: %w: kind=%q amount=%s", domain.ErrInvariantViolation, kind, amount)
	}
	if s.record != nil {
		return nil, fmt.Errorf("memory: append record: %w: record already staged", domain.ErrInvariantViolation)
	}

	s.record = &domain.Transaction{
		ID:        uuid.New(),
		AccountID: s.accountID,
		Kind:      kind,
		Amount:    amount,
		CreatedAt: at.UTC(),
	}
	return s.record, nil
}

func (s *section) Commit(ctx context.Context) error {
	if s.closed {
		return errSectionClosed
	}
	defer s.close()

	switch {
	case !s.hasBalance && s.record == nil:
		return nil
	case !s.hasBalance || s.record == nil:
		return fmt.Errorf("memory: commit %s: %w: balance and record must be staged together", s.accountID, domain.ErrInvariantViolation)
	}

	return s.store.commit(s.accountID, s.balance, s.record)
}

func (s *section) Abort(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.close()
	return nil
}

func (s *section) close() {
	s.closed = true
	s.hasBalance = false
	s.release()
}
