package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the direction of a balance movement.
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// ParseTransactionType validates a type value at the boundary.
// Unknown values are a validation error, never silently accepted.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(s) {
	case TransactionTypeCredit, TransactionTypeDebit:
		return TransactionType(s), nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// TransactionReason classifies why money moved. Closed enumeration.
type TransactionReason string

const (
	ReasonRecharge      TransactionReason = "recharge"
	ReasonShippingCost  TransactionReason = "shipping_cost"
	ReasonRefund        TransactionReason = "refund"
	ReasonWeightDispute TransactionReason = "weight_dispute_adjustment"
	ReasonRTOCharge     TransactionReason = "rto_charge"
	ReasonCODReversal   TransactionReason = "cod_remittance_reversal"
	ReasonPromoCredit   TransactionReason = "promo_credit"
	ReasonOther         TransactionReason = "other"
)

var validReasons = map[TransactionReason]bool{
	ReasonRecharge:      true,
	ReasonShippingCost:  true,
	ReasonRefund:        true,
	ReasonWeightDispute: true,
	ReasonRTOCharge:     true,
	ReasonCODReversal:   true,
	ReasonPromoCredit:   true,
	ReasonOther:         true,
}

// Valid reports whether the reason is a known enum value.
func (r TransactionReason) Valid() bool {
	return validReasons[r]
}

// ParseReason validates a reason value at the boundary.
func ParseReason(s string) (TransactionReason, error) {
	r := TransactionReason(s)
	if !validReasons[r] {
		return "", fmt.Errorf("unknown transaction reason %q", s)
	}
	return r, nil
}

// Reference links a transaction to the business record that caused it
// (shipment, dispute, order, or another transaction for refunds).
type Reference struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
}

// Transaction is an immutable ledger entry. Rows are appended once and
// never updated or deleted; corrections are new offsetting transactions.
// Replaying a company's transactions from zero must reconstruct the
// current balance exactly.
type Transaction struct {
	ID             uuid.UUID         `json:"id"`
	CompanyID      string            `json:"company_id"`
	WalletID       uuid.UUID         `json:"wallet_id"`
	Type           TransactionType   `json:"type"`
	Reason         TransactionReason `json:"reason"`
	Amount         int64             `json:"amount"`        // always positive
	BalanceAfter   int64             `json:"balance_after"` // snapshot for audit
	Description    string            `json:"description,omitempty"`
	Reference      *Reference        `json:"reference,omitempty"`
	Actor          string            `json:"actor"` // user id or system identifier
	IdempotencyKey *string           `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// IsRefundable returns true if this transaction can be reversed by a
// refund credit. Only debits are refundable; whether a refund already
// exists is a storage-level check.
func (t *Transaction) IsRefundable() bool {
	return t.Type == TransactionTypeDebit
}

// SystemActor prefixes an automated process identity for the actor field.
func SystemActor(process string) string {
	return "system:" + process
}
