package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"atm-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
)

const healthPingTimeout = 2 * time.Second

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthCheck handles GET /health. Dependencies are pinged concurrently, each
// bounded by healthPingTimeout; any failure reports 503 "degraded".
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses := make([]dependencyStatus, len(checkers))

		var wg sync.WaitGroup
		for i, checker := range checkers {
			wg.Add(1)
			go func(i int, checker ports.HealthChecker) {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
				defer cancel()
				if err := checker.Ping(ctx); err != nil {
					statuses[i] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
					return
				}
				statuses[i] = dependencyStatus{Status: "healthy"}
			}(i, checker)
		}
		wg.Wait()

		deps := make(map[string]dependencyStatus, len(checkers))
		code, overall := http.StatusOK, "healthy"
		for i, checker := range checkers {
			deps[checker.Name()] = statuses[i]
			if statuses[i].Status != "healthy" {
				code, overall = http.StatusServiceUnavailable, "degraded"
			}
		}

		c.JSON(code, gin.H{"status": overall, "dependencies": deps})
	}
}
