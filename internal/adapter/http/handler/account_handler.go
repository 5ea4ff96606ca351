package handler

import (
	"atm-ledger/internal/adapter/http/dto"
	"atm-ledger/internal/adapter/http/middleware"
	"atm-ledger/internal/core/ports"
	"atm-ledger/pkg/apperror"
	"atm-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// AccountHandler serves reads on the caller's own account.
type AccountHandler struct {
	reportingSvc ports.ReportingService
}

func NewAccountHandler(reportingSvc ports.ReportingService) *AccountHandler {
	return &AccountHandler{reportingSvc: reportingSvc}
}

// GetBalance handles GET /api/v1/accounts/me/balance.
func (h *AccountHandler) GetBalance(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	balance, err := h.reportingSvc.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		AccountID: accountID.String(),
		Balance:   balance,
	})
}
