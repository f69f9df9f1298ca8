package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestParseTransactionType(t *testing.T) {
	tt, err := ParseTransactionType("credit")
	assert.NoError(t, err)
	assert.Equal(t, TransactionTypeCredit, tt)

	tt, err = ParseTransactionType("debit")
	assert.NoError(t, err)
	assert.Equal(t, TransactionTypeDebit, tt)

	_, err = ParseTransactionType("transfer")
	assert.Error(t, err)

	_, err = ParseTransactionType("")
	assert.Error(t, err)
}

func TestParseReason(t *testing.T) {
	for _, valid := range []string{
		"recharge", "shipping_cost", "refund", "weight_dispute_adjustment",
		"rto_charge", "cod_remittance_reversal", "promo_credit", "other",
	} {
		r, err := ParseReason(valid)
		assert.NoError(t, err, valid)
		assert.Equal(t, TransactionReason(valid), r)
	}

	_, err := ParseReason("chargeback")
	assert.Error(t, err)
	_, err = ParseReason("")
	assert.Error(t, err)
}

func TestTransaction_IsRefundable(t *testing.T) {
	debit := &Transaction{Type: TransactionTypeDebit, Reason: ReasonShippingCost}
	assert.True(t, debit.IsRefundable())

	credit := &Transaction{Type: TransactionTypeCredit, Reason: ReasonRecharge}
	assert.False(t, credit.IsRefundable())
}

func TestWallet_BelowThreshold(t *testing.T) {
	w := &Wallet{Balance: 4999, LowBalanceThreshold: 5000}
	assert.True(t, w.BelowThreshold())

	w.Balance = 5000
	assert.False(t, w.BelowThreshold())
}

func TestWallet_AutoRechargeDue(t *testing.T) {
	w := &Wallet{
		Balance: 900,
		AutoRecharge: AutoRechargeSettings{
			Enabled:         true,
			ThresholdAmount: 1000,
			RechargeAmount:  10000,
		},
	}
	assert.True(t, w.AutoRechargeDue())

	w.AutoRecharge.Enabled = false
	assert.False(t, w.AutoRechargeDue())

	w.AutoRecharge.Enabled = true
	w.Balance = 1000
	assert.False(t, w.AutoRechargeDue())
}

func TestWalletLockKey(t *testing.T) {
	assert.Equal(t, "lock:wallet:C1", WalletLockKey("C1"))
}

func TestParseOutcome(t *testing.T) {
	for _, valid := range []string{"seller_favor", "platform_favor", "split", "waived"} {
		o, ok := ParseOutcome(valid)
		assert.True(t, ok, valid)
		assert.Equal(t, DisputeOutcome(valid), o)
	}

	_, ok := ParseOutcome("draw")
	assert.False(t, ok)
}

func TestWeightDispute_IsExpired(t *testing.T) {
	now := time.Now()
	d := &WeightDispute{
		Status:    DisputeStatusOpen,
		RespondBy: now.Add(-time.Hour),
	}
	assert.True(t, d.IsExpired(now))

	d.RespondBy = now.Add(time.Hour)
	assert.False(t, d.IsExpired(now))

	// Resolved disputes never expire.
	d.Status = DisputeStatusResolved
	d.RespondBy = now.Add(-time.Hour)
	assert.False(t, d.IsExpired(now))
}

func TestWeightDispute_DisputeReference(t *testing.T) {
	id := uuid.New()
	d := &WeightDispute{ID: id, ShipmentID: "SHP-42"}

	ref := d.DisputeReference()
	assert.Equal(t, "weight_dispute", ref.Type)
	assert.Equal(t, id.String(), ref.ID)
	assert.Equal(t, "SHP-42", ref.ExternalID)
}

func TestSystemActor(t *testing.T) {
	assert.Equal(t, "system:auto-resolve", SystemActor("auto-resolve"))
}
