package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"atm-ledger/internal/core/domain"
	"atm-ledger/internal/core/ports"
	"atm-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

const defaultIdempotencyTTL = 24 * time.Hour

// LedgerServiceImpl implements ports.LedgerService. It is the only writer of
// account balances: every mutation runs inside one store Section.
type LedgerServiceImpl struct {
	store      ports.LedgerStore
	idempCache ports.IdempotencyCache
	events     ports.EventPublisher
	idempTTL   time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl. idempCache and events
// may be nil.
func NewLedgerService(
	store ports.LedgerStore,
	idempCache ports.IdempotencyCache,
	events ports.EventPublisher,
	idempTTL time.Duration,
	log zerolog.Logger,
) *LedgerServiceImpl {
	if idempTTL <= 0 {
		idempTTL = defaultIdempotencyTTL
	}
	return &LedgerServiceImpl{
		store:      store,
		idempCache: idempCache,
		events:     events,
		idempTTL:   idempTTL,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Apply validates req, then reads, updates and logs the account balance as one
// unit. It never retries; a LockTimeout is returned to the caller.
func (s *LedgerServiceImpl) Apply(ctx context.Context, req ports.ApplyRequest) (*ports.ApplyResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount(fmt.Errorf("amount %s: %w", req.Amount, domain.ErrInvalidAmount))
	}
	if !req.Kind.IsValid() {
		return nil, apperror.ErrInvalidKind()
	}

	var idempKey string
	if req.IdempotencyKey != "" && s.idempCache != nil {
		idempKey = domain.BuildIdempotencyKey(req.AccountID, req.IdempotencyKey)
		if res := s.replay(ctx, idempKey); res != nil {
			return res, nil
		}
	}

	sec, err := s.store.BeginSection(ctx, req.AccountID)
	if err != nil {
		return nil, s.mapStoreError(err, req)
	}

	// The lock is held from here on. Run to commit or abort even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)
	defer sec.Abort(ctx) //nolint:errcheck

	// Same-account requests are serialized, so this check cannot race with
	// a concurrent request carrying the same key.
	if idempKey != "" {
		if res := s.replay(ctx, idempKey); res != nil {
			return res, nil
		}
	}

	res, err := s.mutate(ctx, sec, req)
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, req, res, idempKey)
	return res, nil
}

func (s *LedgerServiceImpl) mutate(ctx context.Context, sec ports.Section, req ports.ApplyRequest) (*ports.ApplyResult, error) {
	balance, err := sec.ReadBalance(ctx)
	if err != nil {
		return nil, s.mapStoreError(err, req)
	}

	next, ok := req.Kind.Apply(balance, req.Amount)
	if !ok {
		return nil, apperror.ErrInvalidAmount(fmt.Errorf("%s of %s on balance %s overflows: %w", req.Kind, req.Amount, balance, domain.ErrInvalidAmount))
	}
	if next < 0 {
		s.log.Debug().
			Str("account_id", req.AccountID.String()).
			Str("amount", req.Amount.String()).
			Str("balance", balance.String()).
			Msg("withdrawal rejected: insufficient funds")
		return nil, apperror.ErrInsufficientFunds()
	}

	if err := sec.WriteBalance(ctx, next); err != nil {
		return nil, s.mapStoreError(err, req)
	}

	rec, err := sec.AppendRecord(ctx, req.Kind, req.Amount, s.now())
	if err != nil {
		return nil, s.mapStoreError(err, req)
	}

	if err := sec.Commit(ctx); err != nil {
		return nil, s.mapStoreError(err, req)
	}

	return &ports.ApplyResult{NewBalance: next, Transaction: rec}, nil
}

// afterCommit runs best-effort side effects. Failures are logged only; the
// mutation is already durable.
func (s *LedgerServiceImpl) afterCommit(ctx context.Context, req ports.ApplyRequest, res *ports.ApplyResult, idempKey string) {
	rec := res.Transaction

	if idempKey != "" {
		if payload, err := json.Marshal(res); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to encode result for idempotency cache")
		} else if err := s.idempCache.Set(ctx, idempKey, payload, s.idempTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	if s.events != nil {
		event := ports.TransactionAppliedEvent{
			TransactionID: rec.ID,
			Sequence:      rec.Sequence,
			AccountID:     rec.AccountID,
			Kind:          rec.Kind,
			Amount:        rec.Amount,
			NewBalance:    res.NewBalance,
			OccurredAt:    rec.CreatedAt,
		}
		if err := s.events.PublishTransactionApplied(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("tx_id", rec.ID.String()).Msg("failed to publish transaction event")
		}
	}

	s.log.Info().
		Str("tx_id", rec.ID.String()).
		Int64("seq", rec.Sequence).
		Str("account_id", req.AccountID.String()).
		Str("type", string(req.Kind)).
		Str("amount", req.Amount.String()).
		Str("new_balance", res.NewBalance.String()).
		Msg("transaction applied")
}

func (s *LedgerServiceImpl) replay(ctx context.Context, key string) *ports.ApplyResult {
	cached, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, applying normally")
		return nil
	}
	if cached == nil {
		return nil
	}

	var res ports.ApplyResult
	if err := json.Unmarshal(cached, &res); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("discarding unreadable idempotency entry")
		return nil
	}
	res.Replayed = true
	return &res
}

// mapStoreError translates store sentinels into AppErrors.
func (s *LedgerServiceImpl) mapStoreError(err error, req ports.ApplyRequest) error {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return apperror.ErrAccountNotFound(err)
	case errors.Is(err, domain.ErrLockTimeout):
		s.log.Warn().Err(err).Str("account_id", req.AccountID.String()).Msg("account lock timeout")
		return apperror.ErrLockTimeout(err)
	case errors.Is(err, domain.ErrInvariantViolation):
		s.log.Error().Err(err).
			Str("account_id", req.AccountID.String()).
			Str("type", string(req.Kind)).
			Str("amount", req.Amount.String()).
			Msg("ledger invariant violated")
		return apperror.ErrInvariantViolation(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperror.ErrRequestCanceled(err)
	default:
		return apperror.ErrDatabaseError(err)
	}
}
