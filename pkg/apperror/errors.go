package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, machine-matchable category of an AppError.
type Kind string

const (
	KindInvalidAmount      Kind = "INVALID_AMOUNT"
	KindInvalidKind        Kind = "INVALID_KIND"
	KindAccountNotFound    Kind = "ACCOUNT_NOT_FOUND"
	KindInsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	KindLockTimeout        Kind = "LOCK_TIMEOUT"
	KindInvariantViolation Kind = "INVARIANT_VIOLATION"
	KindValidation         Kind = "VALIDATION"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindConflict           Kind = "CONFLICT"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindCanceled           Kind = "CANCELED"
	KindInternal           Kind = "INTERNAL"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Kind       Kind   `json:"error_kind"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, kind Kind, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, kind Kind, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// KindOf returns the kind of the first AppError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// ---- Ledger (LED) ----

func ErrInvalidAmount(err error) *AppError {
	return Wrap("LED_001", KindInvalidAmount, "Amount must be a positive value with at most two decimals", http.StatusBadRequest, err)
}

func ErrInvalidKind() *AppError {
	return New("LED_002", KindInvalidKind, "Transaction type must be DEPOSIT or WITHDRAW", http.StatusBadRequest)
}

func ErrAccountNotFound(err error) *AppError {
	return Wrap("LED_003", KindAccountNotFound, "Account not found", http.StatusNotFound, err)
}

func ErrInsufficientFunds() *AppError {
	return New("LED_004", KindInsufficientFunds, "Insufficient balance", http.StatusUnprocessableEntity)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", KindUnauthorized, "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists() *AppError {
	return New("AUTH_002", KindConflict, "Username already exists", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", KindUnauthorized, "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Validation (VAL) ----

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", KindValidation, message, http.StatusBadRequest)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", KindRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", KindInternal, "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", KindLockTimeout, "Account is busy, retry later", http.StatusServiceUnavailable, err)
}

func ErrRequestCanceled(err error) *AppError {
	return Wrap("SYS_003", KindCanceled, "Request canceled before completion", http.StatusRequestTimeout, err)
}

func ErrInvariantViolation(err error) *AppError {
	return Wrap("SYS_004", KindInvariantViolation, "Internal ledger error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", KindInternal, "Internal server error", http.StatusInternalServerError, err)
}
