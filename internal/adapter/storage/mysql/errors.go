package mysql

import (
	"context"
	"errors"
	"fmt"

	"atm-ledger/internal/core/domain"

	gomysql "github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the store translates.
const (
	errDupEntry         = 1062
	errLockWaitTimeout  = 1205
	errQueryInterrupted = 1317
	errLockNoWait       = 3572
	errCheckViolated    = 3819
)

// classify wraps err with the matching domain sentinel, if any.
func classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("mysql: %s: %w", op, ctxErr)
	}

	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errLockWaitTimeout, errLockNoWait, errQueryInterrupted:
			return fmt.Errorf("mysql: %s: %w: %s", op, domain.ErrLockTimeout, myErr.Message)
		case errDupEntry:
			return fmt.Errorf("mysql: %s: %w: %s", op, domain.ErrAccountExists, myErr.Message)
		case errCheckViolated:
			return fmt.Errorf("mysql: %s: %w: %s", op, domain.ErrInvariantViolation, myErr.Message)
		}
	}
	return fmt.Errorf("mysql: %s: %w", op, err)
}
