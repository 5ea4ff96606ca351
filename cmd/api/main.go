package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"atm-ledger/config"
	kafkaEvents "atm-ledger/internal/adapter/events/kafka"
	httpHandler "atm-ledger/internal/adapter/http/handler"
	"atm-ledger/internal/adapter/http/middleware"
	"atm-ledger/internal/adapter/storage/memory"
	mysqlStorage "atm-ledger/internal/adapter/storage/mysql"
	pgStorage "atm-ledger/internal/adapter/storage/postgres"
	redisStorage "atm-ledger/internal/adapter/storage/redis"
	"atm-ledger/internal/core/ports"
	"atm-ledger/internal/service"
	"atm-ledger/pkg/keylock"
	"atm-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// storage is the wired persistence layer for one database driver.
type storage struct {
	ledger   ports.LedgerStore
	accounts ports.AccountRepository
	txns     ports.TransactionRepository
	health   ports.HealthChecker
	close    func()
}

func main() {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("LEDGER_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Str("lock_backend", cfg.Ledger.LockBackend).
		Msg("Starting ATM ledger")

	ctx := context.Background()

	// Redis backs the idempotency cache, rate limiting and the optional
	// distributed account lock.
	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		rdb, err = redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")
	}

	locker := newLocker(cfg, rdb, log)

	store, err := openStorage(ctx, cfg, locker, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to initialize storage")
	}
	defer store.close()

	healthCheckers := []ports.HealthChecker{store.health}

	// Interfaces stay nil unless their backend is enabled.
	var (
		idempCache     ports.IdempotencyCache
		rateLimitStore middleware.RateLimitStore
		events         ports.EventPublisher
	)
	if rdb != nil {
		idempCache = redisStorage.NewIdempotencyCache(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	} else {
		log.Warn().Msg("Redis disabled: idempotency keys and rate limiting are off")
	}

	if cfg.Kafka.Enabled {
		publisher := kafkaEvents.NewPublisher(cfg.Kafka, log)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Kafka writer")
			}
		}()
		events = publisher
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka publisher enabled")
	}

	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	authSvc := service.NewAuthService(store.accounts, hashSvc, tokenSvc, log)
	ledgerSvc := service.NewLedgerService(store.ledger, idempCache, events, cfg.Ledger.IdempotencyTTL, log)
	reportingSvc := service.NewReportingService(store.accounts, store.txns)

	gin.SetMode(ginMode(cfg.Server.Mode))
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		LedgerSvc:      ledgerSvc,
		ReportingSvc:   reportingSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: healthCheckers,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// In-flight Apply calls detach from the request context once they hold
	// an account lock, so Shutdown lets them commit or abort.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// newLocker returns the account lock placed in front of the database row
// lock, or nil when ledger.lock_backend is "none".
func newLocker(cfg *config.Config, rdb *goredis.Client, log zerolog.Logger) ports.AccountLocker {
	switch cfg.Ledger.LockBackend {
	case config.LockBackendLocal:
		return keylock.New()
	case config.LockBackendRedis:
		return redisStorage.NewAccountLocker(rdb, log)
	default:
		return nil
	}
}

func openStorage(ctx context.Context, cfg *config.Config, locker ports.AccountLocker, log zerolog.Logger) (*storage, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		if cfg.Database.Migrate {
			if err := pgStorage.Migrate(cfg.Database, log); err != nil {
				return nil, err
			}
		}
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		return &storage{
			ledger:   pgStorage.NewLedgerStore(pool, cfg.Ledger.LockTimeout, locker),
			accounts: pgStorage.NewAccountRepo(pool),
			txns:     pgStorage.NewTransactionRepo(pool),
			health:   pgStorage.NewHealthCheck(pool),
			close:    pool.Close,
		}, nil

	case config.DriverMySQL:
		db, err := mysqlStorage.Open(ctx, cfg.Database, cfg.Log.Level, log)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := mysqlStorage.Migrate(db, log); err != nil {
				_ = mysqlStorage.Close(db)
				return nil, err
			}
		}
		return &storage{
			ledger:   mysqlStorage.NewLedgerStore(db, cfg.Ledger.LockTimeout, locker),
			accounts: mysqlStorage.NewAccountRepo(db),
			txns:     mysqlStorage.NewTransactionRepo(db),
			health:   mysqlStorage.NewHealthCheck(db),
			close: func() {
				if err := mysqlStorage.Close(db); err != nil {
					log.Error().Err(err).Msg("Failed to close MySQL pool")
				}
			},
		}, nil

	case config.DriverMemory:
		// The memory store serializes accounts with its own keyed mutex.
		log.Warn().Msg("Using in-memory storage: balances are lost on restart")
		store := memory.NewStore(memory.WithLockTimeout(cfg.Ledger.LockTimeout))
		return &storage{
			ledger:   store,
			accounts: store,
			txns:     store,
			health:   store,
			close:    func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	default:
		return gin.ReleaseMode
	}
}
