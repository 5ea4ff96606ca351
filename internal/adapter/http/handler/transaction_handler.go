package handler

import (
	"errors"
	"time"

	"atm-ledger/internal/adapter/http/dto"
	"atm-ledger/internal/adapter/http/middleware"
	"atm-ledger/internal/core/domain"
	"atm-ledger/internal/core/ports"
	"atm-ledger/pkg/apperror"
	"atm-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets a client retry POST /transactions safely.
const HeaderIdempotencyKey = "Idempotency-Key"

const defaultListPageSize = 20

// TransactionHandler serves deposits, withdrawals and the record listing.
type TransactionHandler struct {
	ledgerSvc    ports.LedgerService
	reportingSvc ports.ReportingService
}

func NewTransactionHandler(ledgerSvc ports.LedgerService, reportingSvc ports.ReportingService) *TransactionHandler {
	return &TransactionHandler{ledgerSvc: ledgerSvc, reportingSvc: reportingSvc}
}

// Apply handles POST /api/v1/transactions.
func (h *TransactionHandler) Apply(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			response.Error(c, apperror.ErrInvalidAmount(err))
			return
		}
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	// Unknown kinds go through unchanged and are rejected by the engine.
	kind, ok := domain.ParseTransactionKind(req.Type)
	if !ok {
		kind = domain.TransactionKind(req.Type)
	}

	key := c.GetHeader(HeaderIdempotencyKey)
	if key != "" && !dto.ValidIdempotencyKey(key) {
		response.Error(c, apperror.Validation("Idempotency-Key must be at most 128 characters of [A-Za-z0-9_.-]"))
		return
	}

	result, err := h.ledgerSvc.Apply(c.Request.Context(), ports.ApplyRequest{
		AccountID:      accountID,
		Kind:           kind,
		Amount:         req.Amount,
		IdempotencyKey: key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Replayed {
		response.OK(c, result)
		return
	}
	response.Created(c, result)
}

// List handles GET /api/v1/transactions.
func (h *TransactionHandler) List(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var q dto.TransactionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	params := ports.TransactionListParams{
		AccountID: accountID,
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultListPageSize
	}
	if q.Type != "" {
		kind, _ := domain.ParseTransactionKind(q.Type)
		params.Kind = &kind
	}
	if q.From != "" {
		from, err := time.Parse(time.RFC3339, q.From)
		if err != nil {
			response.Error(c, apperror.Validation("from must be an RFC 3339 timestamp"))
			return
		}
		params.From = &from
	}
	if q.To != "" {
		to, err := time.Parse(time.RFC3339, q.To)
		if err != nil {
			response.Error(c, apperror.Validation("to must be an RFC 3339 timestamp"))
			return
		}
		params.To = &to
	}

	txns, total, err := h.reportingSvc.ListTransactions(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, txns, total, params.Page, params.PageSize)
}

