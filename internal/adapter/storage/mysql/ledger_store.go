package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atm-ledger/internal/core/domain"
	"atm-ledger/internal/core/ports"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerStore implements ports.LedgerStore on MySQL/InnoDB. The section lock
// is the account row lock (SELECT ... FOR UPDATE); the balance update and the
// record insert commit in one transaction.
type LedgerStore struct {
	db          *gorm.DB
	locker      ports.AccountLocker
	lockTimeout time.Duration
	now         func() time.Time
}

// NewLedgerStore creates a LedgerStore. locker is optional and is acquired
// before the row lock.
func NewLedgerStore(db *gorm.DB, lockTimeout time.Duration, locker ports.AccountLocker) *LedgerStore {
	return &LedgerStore{db: db, locker: locker, lockTimeout: lockTimeout, now: time.Now}
}

// BeginSection opens a transaction and locks the account row.
func (s *LedgerStore) BeginSection(ctx context.Context, accountID uuid.UUID) (ports.Section, error) {
	release, rowWait, err := s.acquire(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// database/sql rolls a transaction back when its BeginTx context ends, so
	// the transaction itself must outlive the caller. Statements still use ctx.
	tx := s.db.WithContext(context.WithoutCancel(ctx)).Begin()
	if tx.Error != nil {
		release()
		return nil, classify(ctx, "begin", tx.Error)
	}

	locked := false
	defer func() {
		if !locked {
			tx.Rollback()
			release()
		}
	}()

	// The wait bound rides on the statement as an optimizer hint; a SET
	// SESSION would stay on the pooled connection after it is returned.
	var acc accountModel
	res := tx.WithContext(ctx).Raw(lockAccountQuery(rowWait), accountID.String()).Scan(&acc)
	if res.Error != nil {
		return nil, classify(ctx, "lock account", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("mysql: lock account %s: %w", accountID, domain.ErrAccountNotFound)
	}

	locked = true
	return &section{
		tx:        tx,
		accountID: accountID,
		committed: domain.Money(acc.Balance),
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
			return nil, 0, fmt.Errorf("mysql: acquire account lock: %w", ctx.Err())
		}
		if errors.Is(err, domain.ErrLockTimeout) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("mysql: acquire account lock %s: %w: %v", accountID, domain.ErrLockTimeout, err)
	}
	return release, s.lockTimeout - s.now().Sub(start), nil
}

// LockKey is the AccountLocker key for an account.
func LockKey(accountID uuid.UUID) string {
	return "ledger:account:" + accountID.String()
}

// innodb_lock_wait_timeout has whole-second resolution; round up.
func lockWaitSeconds(d time.Duration) int64 {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// SET_VAR scopes innodb_lock_wait_timeout to this one statement (MySQL 8.0.3+).
func lockAccountQuery(d time.Duration) string {
	return fmt.Sprintf("SELECT /*+ SET_VAR(innodb_lock_wait_timeout=%d) */ id, balance FROM accounts WHERE id = ? FOR UPDATE", lockWaitSeconds(d))
}

// section is an open transaction holding the account row lock.
type section struct {
	tx        *gorm.DB
	accountID uuid.UUID
	committed domain.Money
	release   func()

	balance    domain.Money
	hasBalance bool
	record     *domain.Transaction
	closed     bool
}

var errSectionClosed = fmt.Errorf("%w: section already closed", domain.ErrInvariantViolation)

func (s *section) AccountID() uuid.UUID { return s.accountID }

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
		return fmt.Errorf("mysql: write balance %s: %w: negative balance %s", s.accountID, domain.ErrInvariantViolation, balance)
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
		return nil, fmt.Errorf("mysql: append record: %w: kind=%q amount=%s", domain.ErrInvariantViolation, kind, amount)
	}
	if s.record != nil {
		return nil, fmt.Errorf("mysql: append record: %w: record already staged", domain.ErrInvariantViolation)
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

func (s *section) Commit(ctx context.Context) error {
	if s.closed {
		return errSectionClosed
	}

	seq, err := s.write(ctx)
	if err != nil {
		s.close()
		return err
	}

	s.closed = true
	err = s.tx.Commit().Error
	s.release()
	if err != nil {
		return classify(ctx, "commit", err)
	}

	if s.record != nil {
		s.record.Sequence = seq
	}
	return nil
}

func (s *section) write(ctx context.Context) (int64, error) {
	switch {
	case !s.hasBalance && s.record == nil:
		return 0, nil
	case !s.hasBalance || s.record == nil:
		return 0, fmt.Errorf("mysql: commit %s: %w: balance and record must be staged together", s.accountID, domain.ErrInvariantViolation)
	}

	tx := s.tx.WithContext(ctx)
	res := tx.Model(&accountModel{}).
		Where("id = ?", s.accountID.String()).
		Updates(map[string]any{
			"balance":    int64(s.balance),
			"updated_at": s.record.CreatedAt,
		})
	if res.Error != nil {
		return 0, classify(ctx, "update balance", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("mysql: update balance %s: %w", s.accountID, domain.ErrAccountNotFound)
	}

	row := fromDomainTransaction(s.record)
	if err := tx.Create(&row).Error; err != nil {
		return 0, classify(ctx, "insert transaction", err)
	}
	return row.Seq, nil
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
	s.tx.Rollback()
	s.release()
}
