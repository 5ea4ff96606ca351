package postgres

import (
	"context"
	"errors"
	"fmt"

	"atm-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the store translates.
const (
	codeLockNotAvailable = "55P03"
	codeQueryCanceled    = "57014"
	codeUniqueViolation  = "23505"
	codeCheckViolation   = "23514"
)

// classify wraps err with the matching domain sentinel, if any.
func classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("postgres: %s: %w", op, ctxErr)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeQueryCanceled:
			return fmt.Errorf("postgres: %s: %w: %s", op, domain.ErrLockTimeout, pgErr.Message)
		case codeUniqueViolation:
			return fmt.Errorf("postgres: %s: %w: %s", op, domain.ErrAccountExists, pgErr.ConstraintName)
		case codeCheckViolation:
			return fmt.Errorf("postgres: %s: %w: %s", op, domain.ErrInvariantViolation, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
