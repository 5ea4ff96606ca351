package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"atm-ledger/internal/core/domain"
	"atm-ledger/internal/core/ports"

	"github.com/google/uuid"
)

// TransactionRepo implements ports.TransactionRepository (read side of the log).
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// List fetches an account's records with filtering and pagination, newest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("account_id = $%d", argIdx))
	args = append(args, params.AccountID)
	argIdx++

	if params.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, string(*params.Kind))
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	dataQuery := fmt.Sprintf(`SELECT id, seq, account_id, kind, amount, created_at
		FROM transactions %s ORDER BY created_at DESC, seq DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, params.Offset())

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]domain.Transaction, 0, params.PageSize)
	for rows.Next() {
		var (
			t      domain.Transaction
			kind   string
			amount int64
		)
		if err := rows.Scan(&t.ID, &t.Sequence, &t.AccountID, &kind, &amount, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		t.Kind = domain.TransactionKind(kind)
		t.Amount = domain.Money(amount)
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// GetStats aggregates an account's records, optionally from since onwards.
func (r *TransactionRepo) GetStats(ctx context.Context, accountID uuid.UUID, since *time.Time) (*domain.TransactionStats, error) {
	args := []any{accountID}
	condition := "account_id = $1"
	if since != nil {
		condition += " AND created_at >= $2"
		args = append(args, *since)
	}

	query := fmt.Sprintf(`SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE kind = 'DEPOSIT') AS deposits,
		COUNT(*) FILTER (WHERE kind = 'WITHDRAW') AS withdrawals,
		COALESCE(SUM(amount) FILTER (WHERE kind = 'DEPOSIT'), 0) AS deposited,
		COALESCE(SUM(amount) FILTER (WHERE kind = 'WITHDRAW'), 0) AS withdrawn
		FROM transactions WHERE %s`, condition)

	stats := &domain.TransactionStats{}
	var deposited, withdrawn int64
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.TotalTransactions, &stats.Deposits, &stats.Withdrawals, &deposited, &withdrawn,
	)
	if err != nil {
		return nil, fmt.Errorf("get transaction stats: %w", err)
	}
	stats.TotalDeposited = domain.Money(deposited)
	stats.TotalWithdrawn = domain.Money(withdrawn)
	return stats, nil
}
