package mysql

import (
	"context"
	"time"

	"atm-ledger/internal/core/domain"
	"atm-ledger/internal/core/ports"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionRepo implements ports.TransactionRepository (read side of the log).
type TransactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepo(db *gorm.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// List fetches an account's records with filtering and pagination, newest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	db := r.db.WithContext(ctx)

	var total int64
	if err := filterTransactions(db, params).Count(&total).Error; err != nil {
		return nil, 0, classify(ctx, "count transactions", err)
	}

	var rows []transactionModel
	if err := pageTransactions(filterTransactions(db, params), params).Find(&rows).Error; err != nil {
		return nil, 0, classify(ctx, "list transactions", err)
	}

	txns := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := row.toDomain()
		if err != nil {
			return nil, 0, err
		}
		txns = append(txns, t)
	}
	return txns, total, nil
}

// transactionStats is the aggregate row of GetStats.
type transactionStats struct {
	Total       int64
	Deposits    int64
	Withdrawals int64
	Deposited   int64
	Withdrawn   int64
}

const statsSelect = `COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN kind = 'DEPOSIT' THEN 1 ELSE 0 END), 0) AS deposits,
	COALESCE(SUM(CASE WHEN kind = 'WITHDRAW' THEN 1 ELSE 0 END), 0) AS withdrawals,
	COALESCE(SUM(CASE WHEN kind = 'DEPOSIT' THEN amount ELSE 0 END), 0) AS deposited,
	COALESCE(SUM(CASE WHEN kind = 'WITHDRAW' THEN amount ELSE 0 END), 0) AS withdrawn`

// GetStats aggregates an account's records, optionally from since onwards.
func (r *TransactionRepo) GetStats(ctx context.Context, accountID uuid.UUID, since *time.Time) (*domain.TransactionStats, error) {
	var row transactionStats
	if err := statsQuery(r.db.WithContext(ctx), accountID, since).Scan(&row).Error; err != nil {
		return nil, classify(ctx, "get transaction stats", err)
	}
	return &domain.TransactionStats{
		TotalTransactions: row.Total,
		Deposits:          row.Deposits,
		Withdrawals:       row.Withdrawals,
		TotalDeposited:    domain.Money(row.Deposited),
		TotalWithdrawn:    domain.Money(row.Withdrawn),
	}, nil
}

func filterTransactions(db *gorm.DB, params ports.TransactionListParams) *gorm.DB {
	q := db.Model(&transactionModel{}).Where("account_id = ?", params.AccountID.String())
	if params.Kind != nil {
		q = q.Where("kind = ?", string(*params.Kind))
	}
	if params.From != nil {
		q = q.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		q = q.Where("created_at <= ?", *params.To)
	}
	return q
}

func pageTransactions(q *gorm.DB, params ports.TransactionListParams) *gorm.DB {
	return q.Order("created_at DESC, seq DESC").Limit(params.PageSize).Offset(params.Offset())
}

func statsQuery(db *gorm.DB, accountID uuid.UUID, since *time.Time) *gorm.DB {
	q := db.Model(&transactionModel{}).Select(statsSelect).Where("account_id = ?", accountID.String())
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	return q
}
