package service

import (
	"context"
	"fmt"
	"time"

	"atm-ledger/internal/core/domain"
	"atm-ledger/internal/core/ports"
	"atm-ledger/pkg/apperror"

	"github.com/google/uuid"
)

const (
	defaultPageSize      = 20
	maxPageSize          = 100
	dashboardRecentLimit = 5
	dashboardPeriodAll   = "all"
	dashboardPeriodDay   = "day"
	dashboardPeriodWeek  = "week"
	dashboardPeriodMonth = "month"
)

// reportingService implements ports.ReportingService. All reads go to the
// committed state; nothing here takes an account lock.
type reportingService struct {
	accountRepo ports.AccountRepository
	txRepo      ports.TransactionRepository
	now         func() time.Time
}

func NewReportingService(accountRepo ports.AccountRepository, txRepo ports.TransactionRepository) ports.ReportingService {
	return &reportingService{
		accountRepo: accountRepo,
		txRepo:      txRepo,
		now:         time.Now,
	}
}

func (s *reportingService) GetBalance(ctx context.Context, accountID uuid.UUID) (domain.Money, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// ListTransactions returns one page of the account's records, newest first.
func (s *reportingService) ListTransactions(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, 0, apperror.Validation("from must not be after to")
	}

	txns, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(err)
	}
	return txns, total, nil
}

// GetDashboard returns the profile, the latest records and totals for period
// (day, week, month or all).
func (s *reportingService) GetDashboard(ctx context.Context, accountID uuid.UUID, period string) (*ports.Dashboard, error) {
	since, err := s.periodStart(period)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = dashboardPeriodAll
	}

	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	recent, _, err := s.txRepo.List(ctx, ports.TransactionListParams{
		AccountID: accountID,
		Page:      1,
		PageSize:  dashboardRecentLimit,
	})
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("recent transactions: %w", err))
	}

	stats, err := s.txRepo.GetStats(ctx, accountID, since)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("transaction stats: %w", err))
	}

	return &ports.Dashboard{
		Account:            account,
		RecentTransactions: recent,
		Stats:              stats,
		Period:             period,
	}, nil
}

func (s *reportingService) getAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if account == nil {
		return nil, apperror.ErrAccountNotFound(fmt.Errorf("account %s: %w", accountID, domain.ErrAccountNotFound))
	}
	return account, nil
}

func (s *reportingService) periodStart(period string) (*time.Time, error) {
	now := s.now().UTC()
	var t time.Time
	switch period {
	case dashboardPeriodDay:
		t = now.AddDate(0, 0, -1)
	case dashboardPeriodWeek:
		t = now.AddDate(0, 0, -7)
	case dashboardPeriodMonth:
		t = now.AddDate(0, -1, 0)
	case dashboardPeriodAll, "":
		return nil, nil
	default:
		return nil, apperror.Validation("invalid period: must be day, week, month, or all")
	}
	return &t, nil
}
