package handler

import (
	"shipcrowd-wallet/internal/adapter/http/dto"
	"shipcrowd-wallet/internal/adapter/http/middleware"
	"shipcrowd-wallet/internal/core/domain"
	"shipcrowd-wallet/internal/core/ports"
	"shipcrowd-wallet/pkg/apperror"
	"shipcrowd-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DisputeHandler exposes weight-dispute workflows. Creation and
// resolution are platform operations; the dispute record itself names
// the company whose wallet moves.
type DisputeHandler struct {
	disputeSvc ports.DisputeService
}

func NewDisputeHandler(disputeSvc ports.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputeSvc: disputeSvc}
}

// Create handles POST /api/v1/disputes.
func (h *DisputeHandler) Create(c *gin.Context) {
	var req dto.CreateDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	in := ports.CreateDisputeRequest{
		CompanyID:       req.CompanyID,
		ShipmentID:      req.ShipmentID,
		RefundAmount:    req.RefundAmount,
		DeductionAmount: req.DeductionAmount,
	}
	if req.RespondBy != nil {
		in.RespondBy = *req.RespondBy
	}

	dispute, err := h.disputeSvc.CreateDispute(c.Request.Context(), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dispute)
}

// Get handles GET /api/v1/disputes/:id.
func (h *DisputeHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid dispute id"))
		return
	}

	dispute, err := h.disputeSvc.GetDispute(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dispute)
}

// Resolve handles POST /api/v1/disputes/:id/resolve.
func (h *DisputeHandler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid dispute id"))
		return
	}

	var req dto.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	outcome, ok := domain.ParseOutcome(req.Outcome)
	if !ok {
		response.Error(c, apperror.ErrInvalidOutcome(req.Outcome))
		return
	}

	dispute, err := h.disputeSvc.ResolveDispute(c.Request.Context(), id, outcome, middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dispute)
}
