package mysql

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"atm-ledger/internal/core/domain"
	"atm-ledger/internal/core/ports"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// newDryRunDB returns a GORM handle that never dials the server.
func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		DSN:                       "ledger:secret@tcp(127.0.0.1:3306)/atm_ledger?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"lock wait timeout", &gomysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, domain.ErrLockTimeout},
		{"nowait", &gomysql.MySQLError{Number: 3572}, domain.ErrLockTimeout},
		{"duplicate username", &gomysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, domain.ErrAccountExists},
		{"check constraint", &gomysql.MySQLError{Number: 3819, Message: "Check constraint 'chk_accounts_balance' is violated."}, domain.ErrInvariantViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(context.Background(), "op", tt.err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := classify(context.Background(), "op", cause)
		assert.ErrorIs(t, err, cause)
		assert.False(t, errors.Is(err, domain.ErrLockTimeout))
	})

	t.Run("context error wins", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := classify(ctx, "op", &gomysql.MySQLError{Number: 1205})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, errors.Is(err, domain.ErrLockTimeout))
	})
}

func TestLockWaitSeconds(t *testing.T) {
	assert.Equal(t, int64(1), lockWaitSeconds(0))
	assert.Equal(t, int64(1), lockWaitSeconds(200*time.Millisecond))
	assert.Equal(t, int64(5), lockWaitSeconds(5*time.Second))
	assert.Equal(t, int64(6), lockWaitSeconds(5*time.Second+time.Millisecond))
}

func TestLockAccountQuery_ScopesWaitToStatement(t *testing.T) {
	q := lockAccountQuery(2500 * time.Millisecond)
	assert.Equal(t, "SELECT /*+ SET_VAR(innodb_lock_wait_timeout=3) */ id, balance FROM accounts WHERE id = ? FOR UPDATE", q)
	assert.NotContains(t, q, "SET SESSION")
}

func TestModelSchema(t *testing.T) {
	cache := &sync.Map{}

	txSchema, err := schema.Parse(&transactionModel{}, cache, schema.NamingStrategy{})
	require.NoError(t, err)
	assert.Equal(t, "transactions", txSchema.Table)
	require.NotNil(t, txSchema.PrioritizedPrimaryField)
	assert.Equal(t, "seq", txSchema.PrioritizedPrimaryField.DBName)
	assert.True(t, txSchema.PrioritizedPrimaryField.AutoIncrement)

	accSchema, err := schema.Parse(&accountModel{}, cache, schema.NamingStrategy{})
	require.NoError(t, err)
	assert.Equal(t, "accounts", accSchema.Table)
	assert.Equal(t, "id", accSchema.PrioritizedPrimaryField.DBName)
}

func TestModelConversion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	acc := &domain.Account{
		ID:        uuid.New(),
		Username:  "alice",
		FullName:  "Alice Nguyen",
		Email:     "alice@example.com",
		Phone:     "0912345678",
		Balance:   12550,
		CreatedAt: now,
		UpdatedAt: now,
	}
	got, err := fromDomainAccount(acc).toDomain()
	require.NoError(t, err)
	assert.Equal(t, acc, got)

	txn := &domain.Transaction{
		ID:        uuid.New(),
		Sequence:  42,
		AccountID: acc.ID,
		Kind:      domain.TransactionKindWithdraw,
		Amount:    700,
		CreatedAt: now,
	}
	gotTxn, err := fromDomainTransaction(txn).toDomain()
	require.NoError(t, err)
	assert.Equal(t, *txn, gotTxn)

	_, err = transactionModel{ID: "not-a-uuid", AccountID: acc.ID.String()}.toDomain()
	assert.Error(t, err)
}

func TestListQuery(t *testing.T) {
	db := newDryRunDB(t)
	accountID := uuid.New()
	kind := domain.TransactionKindDeposit
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	params := ports.TransactionListParams{
		AccountID: accountID,
		Kind:      &kind,
		From:      &from,
		Page:      3,
		PageSize:  10,
	}
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []transactionModel
		return pageTransactions(filterTransactions(tx, params), params).Find(&rows)
	})

	assert.Contains(t, sql, "FROM `transactions`")
	assert.Contains(t, sql, "account_id = '"+accountID.String()+"'")
	assert.Contains(t, sql, "kind = 'DEPOSIT'")
	assert.Contains(t, sql, "created_at >= ")
	assert.NotContains(t, sql, "created_at <= ")
	assert.Contains(t, sql, "ORDER BY created_at DESC, seq DESC")
	assert.Contains(t, sql, "LIMIT 10 OFFSET 20")
}

func TestStatsQuery(t *testing.T) {
	db := newDryRunDB(t)
	accountID := uuid.New()
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []transactionStats
		return statsQuery(tx, accountID, &since).Find(&rows)
	})
	assert.Contains(t, sql, "COUNT(*) AS total")
	assert.Contains(t, sql, "AS withdrawn")
	assert.Contains(t, sql, "account_id = '"+accountID.String()+"'")
	assert.Contains(t, sql, "created_at >= ")

	sql = db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []transactionStats
		return statsQuery(tx, accountID, nil).Find(&rows)
	})
	assert.NotContains(t, sql, "created_at >= ")
}
