package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atm-ledger/internal/core/domain"
	"atm-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerStore implements ports.LedgerStore on PostgreSQL. The section lock is
// the account row lock (SELECT ... FOR UPDATE), and the balance update and
// record insert commit in the same database transaction.
type LedgerStore struct {
	pool        Pool
	locker      ports.AccountLocker
	lockTimeout time.Duration
	now         func() time.Time
}

// NewLedgerStore creates a LedgerStore. locker is optional and is acquired
// before the row lock.
func NewLedgerStore(pool Pool, lockTimeout time.Duration, locker ports.AccountLocker) *LedgerStore {
	return &LedgerStore{pool: pool, locker: locker, lockTimeout: lockTimeout, now: time.Now}
}

// BeginSection opens a transaction and locks the account row.
func (s *LedgerStore) BeginSection(ctx context.Context, accountID uuid.UUID) (ports.Section, error) {
	release, rowWait, err := s.acquire(ctx, accountID)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		release()
		return nil, classify(ctx, "begin", err)
	}

	locked := false
	defer func() {
		if !locked {
			tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck
			release()
		}
	}()

	// Scoped to this transaction; bounds the FOR UPDATE wait.
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, lockTimeoutSetting(rowWait)); err != nil {
		return nil, classify(ctx, "set lock_timeout", err)
	}

	var balance int64
	err = tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: lock account %s: %w", accountID, domain.ErrAccountNotFound)
		}
		return nil, classify(ctx, "lock account", err)
	}

	locked = true
	return &section{
		tx:        tx,
		accountID: accountID,
		committed: domain.Money(balance),
		release:   release,
	}, nil
}

// acquire takes the optional AccountLocker and returns what is left of the
// lock timeout for the row lock, so the two waits share one budget.
func (s *LedgerStore) acquire(ctx context.Context, accountID uuid.UUID) (func(), time.Duration, error) {
	if s.locker == nil {
		return func() {}, s.lockTimeout, nil
	}

	start := s.now()
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	release, err := s.locker.Acquire(lockCtx, LockKey(accountID))
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("postgres: acquire account lock: %w", ctx.Err())
		}
		if errors.Is(err, domain.ErrLockTimeout) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("postgres: acquire account lock %s: %w: %v", accountID, domain.ErrLockTimeout, err)
	}
	return release, s.lockTimeout - s.now().Sub(start), nil
}

// LockKey is the AccountLocker key for an account.
func LockKey(accountID uuid.UUID) string {
	return "ledger:account:" + accountID.String()
}

func lockTimeoutSetting(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("%dms", ms)
}

// section is an open transaction holding the account row lock.
type section struct {
	tx        pgx.Tx
	accountID uuid.UUID
	committed domain.Money
	release   func()

	balance    domain.Money
	hasBalance bool
	record     *domain.Transaction
	seq        int64
	closed     bool
}

var errSectionClosed = fmt.Errorf("%w: section already closed", domain.ErrInvariantViolation)

func (s *section) AccountID() uuid.UUID { return s.accountID }

// ReadBalance returns the balance read under the row lock. The lock keeps
// it current for the life of the section.
func (s *section) ReadBalance(ctx context.Context) (domain.Money, error) {
	if s.closed {
		return 0, errSectionClosed
	}
	return s.committed, nil
}

func (s *section) WriteBalance(ctx context.Context, balance domain.Money) error {
	if s.closed {
		return errSectionClosed
	}
	if balance < 0 {
		return fmt.Errorf("postgres: write balance %s: %w: negative balance %s", s.accountID, domain.ErrInvariantViolation, balance)
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
		return nil, fmt.Errorf("postgres: append record: %w: kind=%q amount=%s", domain.ErrInvariantViolation, kind, amount)
	}
	if s.record != nil {
		return nil, fmt.Errorf("postgres: append record: %w: record already staged", domain.ErrInvariantViolation)
	}

	s.record = &domain.Transaction{
		ID:        uuid.New(),
		AccountID: s.accountID,
		Kind:      kind,
		Amount:    amount,
		CreatedAt: at.UTC().Truncate(time.Microsecond),
	}
	return s.record, nil
}

// Commit writes the staged balance and record, then commits. On any error the
// transaction is rolled back and the lock released.
func (s *section) Commit(ctx context.Context) error {
	if s.closed {
		return errSectionClosed
	}

	if err := s.write(ctx); err != nil {
		s.close(ctx)
		return err
	}

	s.closed = true
	if err := s.tx.Commit(ctx); err != nil {
		s.release()
		return classify(ctx, "commit", err)
	}
	s.release()

	if s.record != nil {
		s.record.Sequence = s.seq
	}
	return nil
}

func (s *section) write(ctx context.Context) error {
	switch {
	case !s.hasBalance && s.record == nil:
		return nil
	case !s.hasBalance || s.record == nil:
		return fmt.Errorf("postgres: commit %s: %w: balance and record must be staged together", s.accountID, domain.ErrInvariantViolation)
	}

	tag, err := s.tx.Exec(ctx,
		`UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3`,
		int64(s.balance), s.record.CreatedAt, s.accountID,
	)
	if err != nil {
		return classify(ctx, "update balance", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update balance %s: %w", s.accountID, domain.ErrAccountNotFound)
	}

	err = s.tx.QueryRow(ctx,
		`INSERT INTO transactions (id, account_id, kind, amount, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING seq`,
		s.record.ID, s.accountID, string(s.record.Kind), int64(s.record.Amount), s.record.CreatedAt,
	).Scan(&s.seq)
	if err != nil {
		return classify(ctx, "insert transaction", err)
	}
	return nil
}

func (s *section) Abort(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.close(ctx)
	return nil
}

// close rolls back and releases the account lock. If the rollback itself
// fails pgx discards the connection, which drops the row lock with it.
func (s *section) close(ctx context.Context) {
	s.closed = true
	s.tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck
	s.release()
}
