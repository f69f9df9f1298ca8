package dto

import "time"

// ReferenceRequest links a mutation to the business record causing it.
type ReferenceRequest struct {
	Type       string `json:"type" binding:"required,safe_id,max=50"`
	ID         string `json:"id" binding:"required,max=100"`
	ExternalID string `json:"external_id,omitempty" binding:"max=100"`
}

// MutationRequest is the request body for credit and debit.
type MutationRequest struct {
	Amount      int64             `json:"amount" binding:"required,gt=0"`
	Reason      string            `json:"reason" binding:"required,max=50"`
	Description string            `json:"description,omitempty" binding:"max=500"`
	Reference   *ReferenceRequest `json:"reference,omitempty"`
}

// RefundRequest is the request body for refunding a debit.
type RefundRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// ThresholdRequest is the request body for the low-balance threshold.
// Pointer so that an explicit 0 (disable warnings) binds.
type ThresholdRequest struct {
	Threshold *int64 `json:"threshold" binding:"required"`
}

// AutoRechargeRequest is the request body for auto-recharge settings.
type AutoRechargeRequest struct {
	Enabled          bool   `json:"enabled"`
	ThresholdAmount  int64  `json:"threshold_amount" binding:"gte=0"`
	RechargeAmount   int64  `json:"recharge_amount" binding:"gte=0"`
	PaymentMethodRef string `json:"payment_method_ref" binding:"max=100"`
	DailyLimit       int64  `json:"daily_limit" binding:"gte=0"`
	MonthlyLimit     int64  `json:"monthly_limit" binding:"gte=0"`
}

// RechargeRequest is the request body for recording a captured payment.
type RechargeRequest struct {
	Amount     int64  `json:"amount" binding:"required,gt=0"`
	PaymentRef string `json:"payment_ref" binding:"required,safe_id,max=100"`
}

// CreateDisputeRequest is the request body for opening a weight dispute.
type CreateDisputeRequest struct {
	CompanyID       string     `json:"company_id" binding:"required,safe_id,max=100"`
	ShipmentID      string     `json:"shipment_id" binding:"required,safe_id,max=100"`
	RefundAmount    int64      `json:"refund_amount" binding:"gte=0"`
	DeductionAmount int64      `json:"deduction_amount" binding:"gte=0"`
	RespondBy       *time.Time `json:"respond_by,omitempty"`
}

// ResolveDisputeRequest is the request body for resolving a dispute.
type ResolveDisputeRequest struct {
	Outcome string `json:"outcome" binding:"required,max=50"`
}

// StatsResponse is the wire shape of a wallet stats query.
type StatsResponse struct {
	TotalCredits    int64            `json:"total_credits"`
	TotalDebits     int64            `json:"total_debits"`
	CreditCount     int64            `json:"credit_count"`
	DebitCount      int64            `json:"debit_count"`
	NetChange       int64            `json:"net_change"`
	CreditsByReason map[string]int64 `json:"credits_by_reason"`
	DebitsByReason  map[string]int64 `json:"debits_by_reason"`
}

// OutflowResponse is the wire shape of a projected-outflow query.
type OutflowResponse struct {
	Days              int   `json:"days"`
	ProjectedOutflows int64 `json:"projected_outflows"`
}
