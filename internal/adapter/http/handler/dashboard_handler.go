package handler

import (
	"atm-ledger/internal/adapter/http/dto"
	"atm-ledger/internal/adapter/http/middleware"
	"atm-ledger/internal/core/ports"
	"atm-ledger/pkg/apperror"
	"atm-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the account overview.
type DashboardHandler struct {
	reportingSvc ports.ReportingService
}

func NewDashboardHandler(reportingSvc ports.ReportingService) *DashboardHandler {
	return &DashboardHandler{reportingSvc: reportingSvc}
}

// Get handles GET /api/v1/dashboard.
func (h *DashboardHandler) Get(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var q dto.DashboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	dash, err := h.reportingSvc.GetDashboard(c.Request.Context(), accountID, q.Period)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dash)
}
