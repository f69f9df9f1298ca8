package handler

import (
	"shipcrowd-wallet/internal/adapter/http/dto"
	"shipcrowd-wallet/internal/adapter/http/middleware"
	"shipcrowd-wallet/internal/core/ports"
	"shipcrowd-wallet/pkg/apperror"
	"shipcrowd-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// RechargeHandler records captured payments and triggers auto-recharge.
type RechargeHandler struct {
	rechargeSvc ports.RechargeService
}

func NewRechargeHandler(rechargeSvc ports.RechargeService) *RechargeHandler {
	return &RechargeHandler{rechargeSvc: rechargeSvc}
}

// Record handles POST /api/v1/wallet/recharges. The payment is already
// captured externally; this endpoint only records the credit.
func (h *RechargeHandler) Record(c *gin.Context) {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.rechargeSvc.RecordRecharge(c.Request.Context(), companyID, req.Amount, req.PaymentRef, middleware.Actor(c))
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

// TriggerAuto handles POST /api/v1/wallet/recharges/auto. Runs one
// auto-recharge check for the company without waiting for the scan.
func (h *RechargeHandler) TriggerAuto(c *gin.Context) {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	recharged, err := h.rechargeSvc.TriggerAutoRecharge(c.Request.Context(), companyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"recharged": recharged})
}
