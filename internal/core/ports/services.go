package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"atm-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(accountID uuid.UUID, username string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID uuid.UUID
	Username  string
}

// --- Service Ports (Business Logic) ---

// LedgerService applies one balance mutation per call.
type LedgerService interface {
	Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error)
}

// ApplyRequest is a single deposit or withdrawal. IdempotencyKey is optional.
type ApplyRequest struct {
	AccountID      uuid.UUID
	Kind           domain.TransactionKind
	Amount         domain.Money
	IdempotencyKey string
}

// ApplyResult is the committed outcome of an ApplyRequest.
type ApplyResult struct {
	NewBalance  domain.Money        `json:"new_balance"`
	Transaction *domain.Transaction `json:"transaction"`
	Replayed    bool                `json:"replayed,omitempty"`
}

// AuthService defines account provisioning and login.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.Account, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for account registration.
type RegisterRequest struct {
	Username string
	Password string
	FullName string
	Email    string
	Phone    string
}

// ReportingService defines balance and history reads.
type ReportingService interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (domain.Money, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetDashboard(ctx context.Context, accountID uuid.UUID, period string) (*Dashboard, error)
}

// Dashboard is the account overview: profile, balance, latest activity, totals.
type Dashboard struct {
	Account            *domain.Account          `json:"account"`
	RecentTransactions []domain.Transaction     `json:"recent_transactions"`
	Stats              *domain.TransactionStats `json:"stats"`
	Period             string                   `json:"period"`
}
