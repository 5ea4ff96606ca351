package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionKind is the direction of a balance mutation.
type TransactionKind string

const (
	TransactionKindDeposit  TransactionKind = "DEPOSIT"
	TransactionKindWithdraw TransactionKind = "WITHDRAW"
)

// ParseTransactionKind accepts "deposit"/"withdraw" in any case.
func ParseTransactionKind(s string) (TransactionKind, bool) {
	k := TransactionKind(strings.ToUpper(strings.TrimSpace(s)))
	return k, k.IsValid()
}

// IsValid reports whether k is a known kind.
func (k TransactionKind) IsValid() bool {
	return k == TransactionKindDeposit || k == TransactionKindWithdraw
}

// Apply returns the balance after applying amount in direction k.
// ok is false when the result would overflow.
func (k TransactionKind) Apply(balance, amount Money) (Money, bool) {
	if k == TransactionKindWithdraw {
		return balance.Sub(amount)
	}
	return balance.Add(amount)
}

// Transaction is an immutable ledger record. Sequence is assigned at commit.
type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	Sequence  int64           `json:"sequence"`
	AccountID uuid.UUID       `json:"account_id"`
	Kind      TransactionKind `json:"type"`
	Amount    Money           `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// TransactionStats aggregates an account's committed records.
type TransactionStats struct {
	TotalTransactions int64 `json:"total_transactions"`
	Deposits          int64 `json:"deposits"`
	Withdrawals       int64 `json:"withdrawals"`
	TotalDeposited    Money `json:"total_deposited"`
	TotalWithdrawn    Money `json:"total_withdrawn"`
}
