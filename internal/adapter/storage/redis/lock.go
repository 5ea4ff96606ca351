package redis

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"atm-ledger/internal/core/domain"

	"github.com/go-redsync/redsync/v4"
	redsyncredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultLockExpiry     = 30 * time.Second
	defaultLockRetryDelay = 20 * time.Millisecond
	unlockTimeout         = 2 * time.Second
)

// AccountLocker implements ports.AccountLocker with a redsync mutex per key,
// so ledger writers in different processes serialize on the same account.
type AccountLocker struct {
	rs         *redsync.Redsync
	expiry     time.Duration
	retryDelay time.Duration
	log        zerolog.Logger
}

// LockerOption configures an AccountLocker.
type LockerOption func(*AccountLocker)

// WithLockExpiry bounds how long a crashed holder can keep an account locked.
func WithLockExpiry(d time.Duration) LockerOption {
	return func(l *AccountLocker) { l.expiry = d }
}

// WithLockRetryDelay sets the pause between attempts on a held key.
func WithLockRetryDelay(d time.Duration) LockerOption {
	return func(l *AccountLocker) { l.retryDelay = d }
}

// NewAccountLocker creates an AccountLocker on client. Locks expire after 30s
// and retry every 20ms unless overridden by opts.
func NewAccountLocker(client goredis.UniversalClient, log zerolog.Logger, opts ...LockerOption) *AccountLocker {
	l := &AccountLocker{
		rs:         redsync.New(redsyncredis.NewPool(client)),
		expiry:     defaultLockExpiry,
		retryDelay: defaultLockRetryDelay,
		log:        log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire retries until the key is free or ctx is done. The caller's
// deadline is the only bound on the wait.
func (l *AccountLocker) Acquire(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(math.MaxInt32),
		redsync.WithRetryDelay(l.retryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("redis lock %s: %w: %v", key, domain.ErrLockTimeout, ctxErr)
		}
		return nil, fmt.Errorf("redis lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()
			if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
				// The lock expires on its own after l.expiry.
				l.log.Warn().Err(err).Str("key", key).Msg("failed to release account lock")
			}
		})
	}, nil
}
