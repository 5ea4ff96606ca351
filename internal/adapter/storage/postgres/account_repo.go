package postgres

import (
	"context"
	"errors"
	"fmt"

	"atm-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, username, password_hash, full_name, email, phone, balance, created_at, updated_at`

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create inserts a new account. A taken username yields domain.ErrAccountExists.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Username, a.PasswordHash, a.FullName, a.Email, a.Phone,
		int64(a.Balance), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return classify(ctx, "insert account", err)
	}
	return nil
}

// GetByID fetches an account by its UUID. Returns nil, nil if absent.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

// GetByUsername fetches an account by username, case-insensitively.
func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(username) = lower($1)`
	return scanAccount(r.pool.QueryRow(ctx, query, username))
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	a := &domain.Account{}
	var balance int64
	err := row.Scan(
		&a.ID, &a.Username, &a.PasswordHash, &a.FullName, &a.Email, &a.Phone,
		&balance, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Balance = domain.Money(balance)
	return a, nil
}
