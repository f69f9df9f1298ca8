package domain

import (
	"time"

	"github.com/google/uuid"
)

// AutoRechargeSettings is the embedded top-up configuration for a wallet.
// When enabled, the recharge scan tops the wallet up by RechargeAmount
// whenever the balance falls below ThresholdAmount, within the caps.
type AutoRechargeSettings struct {
	Enabled          bool   `json:"enabled"`
	ThresholdAmount  int64  `json:"threshold_amount"` // minor units
	RechargeAmount   int64  `json:"recharge_amount"`  // minor units
	PaymentMethodRef string `json:"payment_method_ref"`
	DailyLimit       int64  `json:"daily_limit"`   // 0 = uncapped
	MonthlyLimit     int64  `json:"monthly_limit"` // 0 = uncapped
}

// Wallet is a company's prepaid balance. Amounts are int64 minor units
// (paise). Balance is never negative; the invariant is enforced inside
// the debit critical section, nowhere else. Created lazily on first credit.
type Wallet struct {
	ID                  uuid.UUID            `json:"id"`
	CompanyID           string               `json:"company_id"`
	Balance             int64                `json:"balance"`
	LowBalanceThreshold int64                `json:"low_balance_threshold"`
	AutoRecharge        AutoRechargeSettings `json:"auto_recharge"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// BelowThreshold returns true if the balance has fallen under the
// low-balance alert threshold.
func (w *Wallet) BelowThreshold() bool {
	return w.Balance < w.LowBalanceThreshold
}

// AutoRechargeDue returns true if auto-recharge is enabled and the
// balance has fallen under its trigger threshold.
func (w *Wallet) AutoRechargeDue() bool {
	return w.AutoRecharge.Enabled && w.Balance < w.AutoRecharge.ThresholdAmount
}

// WalletLockKey is the distributed lock key serializing all balance
// mutations for a company.
func WalletLockKey(companyID string) string {
	return "lock:wallet:" + companyID
}
