package mysql

import (
	"context"
	"errors"

	"atm-ledger/internal/core/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	db *gorm.DB
}

func NewAccountRepo(db *gorm.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// Create inserts a new account. A taken username yields domain.ErrAccountExists.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	m := fromDomainAccount(a)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return classify(ctx, "insert account", err)
	}
	return nil
}

// GetByID returns nil, nil if the account does not exist.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.take(ctx, "id = ?", id.String())
}

// GetByUsername relies on the column collation for case-insensitive matching.
func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.take(ctx, "username = ?", username)
}

func (r *AccountRepo) take(ctx context.Context, cond string, arg any) (*domain.Account, error) {
	var m accountModel
	err := r.db.WithContext(ctx).Where(cond, arg).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(ctx, "get account", err)
	}
	return m.toDomain()
}
