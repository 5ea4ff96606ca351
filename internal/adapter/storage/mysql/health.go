package mysql

import (
	"context"

	"gorm.io/gorm"
)

// HealthCheck implements ports.HealthChecker for MySQL.
type HealthCheck struct {
	db *gorm.DB
}

func NewHealthCheck(db *gorm.DB) *HealthCheck {
	return &HealthCheck{db: db}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (h *HealthCheck) Name() string {
	return "mysql"
}
