package mysql

import (
	"fmt"
	"time"

	"atm-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// accountModel maps the accounts table. The default InnoDB collation makes
// the username index case-insensitive.
type accountModel struct {
	ID           string    `gorm:"column:id;type:char(36);primaryKey"`
	Username     string    `gorm:"column:username;type:varchar(64);not null;uniqueIndex:uq_accounts_username"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(255);not null"`
	FullName     string    `gorm:"column:full_name;type:varchar(128);not null"`
	Email        string    `gorm:"column:email;type:varchar(255);not null"`
	Phone        string    `gorm:"column:phone;type:varchar(20);not null"`
	Balance      int64     `gorm:"column:balance;not null;check:chk_accounts_balance,balance >= 0"`
	CreatedAt    time.Time `gorm:"column:created_at;type:datetime(6);not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:datetime(6);not null"`
}

func (*accountModel) TableName() string {
	return "accounts"
}

// transactionModel maps the transactions table. seq is the AUTO_INCREMENT
// key, so it is assigned when the row is inserted at commit.
type transactionModel struct {
	Seq       int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	ID        string    `gorm:"column:id;type:char(36);not null;uniqueIndex:uq_transactions_id"`
	AccountID string    `gorm:"column:account_id;type:char(36);not null;index:idx_transactions_account_created,priority:1"`
	Kind      string    `gorm:"column:kind;type:varchar(16);not null;check:chk_transactions_kind,kind IN ('DEPOSIT','WITHDRAW')"`
	Amount    int64     `gorm:"column:amount;not null;check:chk_transactions_amount,amount > 0"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime(6);not null;index:idx_transactions_account_created,priority:2,sort:desc"`
}

func (*transactionModel) TableName() string {
	return "transactions"
}

func fromDomainAccount(a *domain.Account) accountModel {
	return accountModel{
		ID:           a.ID.String(),
		Username:     a.Username,
		PasswordHash: a.PasswordHash,
		FullName:     a.FullName,
		Email:        a.Email,
		Phone:        a.Phone,
		Balance:      int64(a.Balance),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (m accountModel) toDomain() (*domain.Account, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse account id %q: %w", m.ID, err)
	}
	return &domain.Account{
		ID:           id,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		FullName:     m.FullName,
		Email:        m.Email,
		Phone:        m.Phone,
		Balance:      domain.Money(m.Balance),
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}, nil
}

func fromDomainTransaction(t *domain.Transaction) transactionModel {
	return transactionModel{
		Seq:       t.Sequence,
		ID:        t.ID.String(),
		AccountID: t.AccountID.String(),
		Kind:      string(t.Kind),
		Amount:    int64(t.Amount),
		CreatedAt: t.CreatedAt,
	}
}

func (m transactionModel) toDomain() (domain.Transaction, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("parse transaction id %q: %w", m.ID, err)
	}
	accountID, err := uuid.Parse(m.AccountID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("parse account id %q: %w", m.AccountID, err)
	}
	return domain.Transaction{
		ID:        id,
		Sequence:  m.Seq,
		AccountID: accountID,
		Kind:      domain.TransactionKind(m.Kind),
		Amount:    domain.Money(m.Amount),
		CreatedAt: m.CreatedAt.UTC(),
	}, nil
}
