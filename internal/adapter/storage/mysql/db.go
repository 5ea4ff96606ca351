package mysql

import (
	"context"
	"fmt"
	"strings"

	"atm-ledger/config"

	"github.com/rs/zerolog"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to MySQL through GORM and sizes the connection pool.
func Open(ctx context.Context, cfg config.DatabaseConfig, logLevel string, log zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(cfg.MySQLDSN()), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(gormLogLevel(logLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("opening mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB: %w", err)
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(int(cfg.MinConns))
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck
		return nil, fmt.Errorf("pinging mysql: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("dbname", cfg.DBName).
		Int32("max_conns", cfg.MaxConns).
		Msg("MySQL connection pool established")

	return db, nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates the ledger tables.
func Migrate(db *gorm.DB, log zerolog.Logger) error {
	if err := db.AutoMigrate(&accountModel{}, &transactionModel{}); err != nil {
		return fmt.Errorf("auto-migrating mysql schema: %w", err)
	}
	log.Info().Msg("MySQL schema migrated")
	return nil
}

// GORM only logs SQL at debug; otherwise it stays at errors or quieter.
func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return logger.Info
	case "info", "warn":
		return logger.Warn
	case "disabled":
		return logger.Silent
	default:
		return logger.Error
	}
}
