package handler

import (
	"context"
	"strconv"
	"time"

	"shipcrowd-wallet/internal/adapter/http/dto"
	"shipcrowd-wallet/internal/adapter/http/middleware"
	"shipcrowd-wallet/internal/core/domain"
	"shipcrowd-wallet/internal/core/ports"
	"shipcrowd-wallet/pkg/apperror"
	"shipcrowd-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler exposes the wallet engine over HTTP. Every route is
// scoped to the JWT's company; no request may touch another tenant.
type WalletHandler struct {
	walletSvc ports.WalletService
}

func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	info, err := h.walletSvc.GetBalance(c.Request.Context(), companyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, info)
}

// Credit handles POST /api/v1/wallet/credit.
func (h *WalletHandler) Credit(c *gin.Context) {
	h.mutate(c, h.walletSvc.Credit)
}

// Debit handles POST /api/v1/wallet/debit.
func (h *WalletHandler) Debit(c *gin.Context) {
	h.mutate(c, h.walletSvc.Debit)
}

// mutate is the shared credit/debit path. The idempotency key comes
// from the Idempotency-Key header, scoped per company downstream.
func (h *WalletHandler) mutate(c *gin.Context, op func(ctx context.Context, req ports.MutationRequest) (*ports.MutationResult, error)) {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.MutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	reason, err := domain.ParseReason(req.Reason)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	var ref *domain.Reference
	if req.Reference != nil {
		ref = &domain.Reference{
			Type:       req.Reference.Type,
			ID:         req.Reference.ID,
			ExternalID: req.Reference.ExternalID,
		}
	}

	result, err := op(c.Request.Context(), ports.MutationRequest{
		CompanyID:      companyID,
		Amount:         req.Amount,
		Reason:         reason,
		Description:    req.Description,
		Reference:      ref,
		Actor:          middleware.Actor(c),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Duplicate {
		response.OK(c, result)
		return
	}
	response.Created(c, result)
}

// Refund handles POST /api/v1/wallet/transactions/:id/refund.
func (h *WalletHandler) Refund(c *gin.Context) {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return
	}

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.walletSvc.Refund(c.Request.Context(), companyID, txID, req.Reason, middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// GetHistory handles GET /api/v1/wallet/transactions.
// Query params: type, reason, from, to (RFC 3339), limit, offset.
func (h *WalletHandler) GetHistory(c *gin.Context) {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	params := ports.TransactionListParams{CompanyID: companyID}

	if s := c.Query("type"); s != "" {
		txType, err := domain.ParseTransactionType(s)
		if err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
		params.Type = &txType
	}
	if s := c.Query("reason"); s != "" {
		reason, err := domain.ParseReason(s)
		if err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
		params.Reason = &reason
	}

	var err error
	if params.From, err = parseTimeQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if params.To, err = parseTimeQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	params.Limit = intQuery(c, "limit", 0)
	params.Offset = intQuery(c, "offset", 0)

	result, err := h.walletSvc.GetTransactionHistory(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// GetStats handles GET /api/v1/wallet/stats.
func (h *WalletHandler) GetStats(c *gin.Context) {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	from, err := parseTimeQuery(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}

	stats, err := h.walletSvc.GetWalletStats(c.Request.Context(), companyID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toStatsResponse(stats))
}

// UpdateThreshold handles PUT /api/v1/wallet/threshold.
func (h *WalletHandler) UpdateThreshold(c *gin.Context) {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	info, err := h.walletSvc.UpdateLowBalanceThreshold(c.Request.Context(), companyID, *req.Threshold, middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, info)
}

// GetAutoRecharge handles GET /api/v1/wallet/auto-recharge.
func (h *WalletHandler) GetAutoRecharge(c *gin.Context) {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	settings, err := h.walletSvc.GetAutoRechargeSettings(c.Request.Context(), companyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, settings)
}

// UpdateAutoRecharge handles PUT /api/v1/wallet/auto-recharge.
func (h *WalletHandler) UpdateAutoRecharge(c *gin.Context) {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.AutoRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	settings, err := h.walletSvc.UpdateAutoRechargeSettings(c.Request.Context(), companyID, domain.AutoRechargeSettings{
		Enabled:          req.Enabled,
		ThresholdAmount:  req.ThresholdAmount,
		RechargeAmount:   req.RechargeAmount,
		PaymentMethodRef: req.PaymentMethodRef,
		DailyLimit:       req.DailyLimit,
		MonthlyLimit:     req.MonthlyLimit,
	}, middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, settings)
}

// GetForecast handles GET /api/v1/wallet/forecast.
func (h *WalletHandler) GetForecast(c *gin.Context) {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	forecast, err := h.walletSvc.GetCashFlowForecast(c.Request.Context(), companyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, forecast)
}

// GetProjectedOutflows handles GET /api/v1/wallet/outflows.
func (h *WalletHandler) GetProjectedOutflows(c *gin.Context) {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	days := intQuery(c, "days", 7)
	if days <= 0 || days > 90 {
		response.Error(c, apperror.Validation("days must be between 1 and 90"))
		return
	}

	total, err := h.walletSvc.GetProjectedOutflows(c.Request.Context(), companyID, days)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.OutflowResponse{Days: days, ProjectedOutflows: total})
}

func toStatsResponse(s *ports.WalletStats) dto.StatsResponse {
	resp := dto.StatsResponse{
		TotalCredits:    s.TotalCredits,
		TotalDebits:     s.TotalDebits,
		CreditCount:     s.CreditCount,
		DebitCount:      s.DebitCount,
		NetChange:       s.TotalCredits - s.TotalDebits,
		CreditsByReason: make(map[string]int64, len(s.CreditsByReason)),
		DebitsByReason:  make(map[string]int64, len(s.DebitsByReason)),
	}
	for reason, amount := range s.CreditsByReason {
		resp.CreditsByReason[string(reason)] = amount
	}
	for reason, amount := range s.DebitsByReason {
		resp.DebitsByReason[string(reason)] = amount
	}
	return resp
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	s := c.Query(name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, apperror.Validation(name + " must be RFC 3339")
	}
	return &t, nil
}

func intQuery(c *gin.Context, name string, def int) int {
	s := c.Query(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
