package domain

import (
	"time"

	"github.com/google/uuid"
)

// DisputeStatus is the lifecycle state of a weight dispute.
type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "open"
	DisputeStatusResolved DisputeStatus = "resolved"
)

// DisputePaymentStatus is the wallet-collection sub-state of a resolved
// dispute. A deduction that could not be debited (insufficient balance)
// is recorded as pending and collected after the next recharge instead
// of blocking the business resolution.
type DisputePaymentStatus string

const (
	DisputePaymentNone      DisputePaymentStatus = "none"
	DisputePaymentPending   DisputePaymentStatus = "pending"
	DisputePaymentCollected DisputePaymentStatus = "collected"
)

// DisputeOutcome is the resolved verdict of a weight dispute.
type DisputeOutcome string

const (
	OutcomeSellerFavor   DisputeOutcome = "seller_favor"   // courier overcharged; refund the seller
	OutcomePlatformFavor DisputeOutcome = "platform_favor" // claimed weight wrong; deduct the difference
	OutcomeSplit         DisputeOutcome = "split"          // partial refund and partial deduction
	OutcomeWaived        DisputeOutcome = "waived"         // no money moves
)

// Valid reports whether the outcome is a known enum value.
func (o DisputeOutcome) Valid() bool {
	_, ok := ParseOutcome(string(o))
	return ok
}

// ParseOutcome validates an outcome value at the boundary.
func ParseOutcome(s string) (DisputeOutcome, bool) {
	switch DisputeOutcome(s) {
	case OutcomeSellerFavor, OutcomePlatformFavor, OutcomeSplit, OutcomeWaived:
		return DisputeOutcome(s), true
	}
	return "", false
}

// WeightDispute is a courier weight-discrepancy dispute whose resolution
// moves wallet money.
type WeightDispute struct {
	ID              uuid.UUID      `json:"id"`
	CompanyID       string         `json:"company_id"`
	ShipmentID      string         `json:"shipment_id"`
	Status          DisputeStatus  `json:"status"`
	Outcome         DisputeOutcome `json:"outcome,omitempty"`
	RefundAmount    int64          `json:"refund_amount"`    // credited on seller_favor / split
	DeductionAmount int64          `json:"deduction_amount"` // debited on platform_favor / split

	PaymentStatus DisputePaymentStatus `json:"payment_status"`
	PendingAmount int64                `json:"pending_amount"` // owed when PaymentStatus == pending

	WalletTransactionID *uuid.UUID `json:"wallet_transaction_id,omitempty"`
	ResolvedBy          string     `json:"resolved_by,omitempty"`
	RespondBy           time.Time  `json:"respond_by"` // auto-resolve deadline
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsExpired returns true if the dispute is still open past its response
// deadline and eligible for the auto-resolve sweep.
func (d *WeightDispute) IsExpired(now time.Time) bool {
	return d.Status == DisputeStatusOpen && now.After(d.RespondBy)
}

// DisputeReference builds the ledger reference for a dispute-driven
// transaction.
func (d *WeightDispute) DisputeReference() *Reference {
	return &Reference{Type: "weight_dispute", ID: d.ID.String(), ExternalID: d.ShipmentID}
}
