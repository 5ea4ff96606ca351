package dto

import (
	"time"

	"atm-ledger/internal/core/domain"
)

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50,safe_id"`
	Password string `json:"password" binding:"required,min=8,max=128,strong_password" sanitize:"-"`
	FullName string `json:"full_name" binding:"required,min=1,max=100"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Phone    string `json:"phone" binding:"required,max=20,phone10"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required" sanitize:"-"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID        string       `json:"id"`
	Username  string       `json:"username"`
	FullName  string       `json:"full_name"`
	Email     string       `json:"email"`
	Phone     string       `json:"phone"`
	Balance   domain.Money `json:"balance"`
	CreatedAt string       `json:"created_at"`
}

// NewAccountResponse converts an account, dropping credentials.
func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID.String(),
		Username:  a.Username,
		FullName:  a.FullName,
		Email:     a.Email,
		Phone:     a.Phone,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	Expiry    int64  `json:"expiry"` // Unix timestamp
}

// TransactionRequest is the body of POST /transactions. Amount accepts
// "12.50" or 12.50; it is never decoded through a float.
type TransactionRequest struct {
	Type   string       `json:"type" binding:"required"`
	Amount domain.Money `json:"amount"`
}

// TransactionListQuery holds the query string of GET /transactions.
type TransactionListQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Type     string `form:"type" binding:"omitempty,oneof=DEPOSIT WITHDRAW deposit withdraw"`
	From     string `form:"from" binding:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To       string `form:"to" binding:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// DashboardQuery holds the query string of GET /dashboard.
type DashboardQuery struct {
	Period string `form:"period" binding:"omitempty,oneof=day week month all"`
}

// BalanceResponse is the response for the balance query.
type BalanceResponse struct {
	AccountID string       `json:"account_id"`
	Balance   domain.Money `json:"balance"`
}
