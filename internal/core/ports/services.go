package ports

import (
	"context"
	"time"

	"shipcrowd-wallet/internal/core/domain"

	"github.com/google/uuid"
)

// Locker is the keyed, TTL-based distributed mutual-exclusion primitive.
// At most one holder per key across all process instances; a crashed
// holder's lock self-heals when the TTL expires.
type Locker interface {
	// Acquire attempts to take the lock. ok is false both when another
	// holder owns it and when the store is unreachable: callers treat
	// "could not acquire" and "store error" identically (fail closed).
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool)
	// Release deletes the key only if it still holds token. Returns
	// whether the caller's own lock was actually removed.
	Release(ctx context.Context, key, token string) bool
	// WithLock retries Acquire until wait elapses, runs fn under the
	// lock, and attempts Release on every exit path. Returns
	// apperror.ErrLockNotAcquired if the lock was never obtained.
	WithLock(ctx context.Context, key string, ttl, wait time.Duration, fn func(ctx context.Context) error) error
	// IsLocked and TTL are read-only diagnostics; they degrade to
	// false / -1 on store error rather than failing.
	IsLocked(ctx context.Context, key string) bool
	TTL(ctx context.Context, key string) time.Duration
}

// IdempotencyCache is the Redis-layer replay check (fast path). The
// storage uniqueness constraint remains the authoritative guarantee.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil, nil on miss
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// --- Wallet Engine ---

// MutationRequest holds validated input for a credit or debit.
type MutationRequest struct {
	CompanyID      string
	Amount         int64 // minor units, must be > 0
	Reason         domain.TransactionReason
	Description    string
	Reference      *domain.Reference
	Actor          string
	IdempotencyKey string // optional; scoped per company
}

// MutationResult is the outcome of a successful credit/debit/refund.
type MutationResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	NewBalance    int64     `json:"new_balance"`
	Duplicate     bool      `json:"duplicate"` // true when replayed via idempotency key
}

// BalanceInfo is the read-only balance view. Reads take no lock and may
// trail an in-flight mutation; funds correctness lives in the write path.
type BalanceInfo struct {
	CompanyID           string    `json:"company_id"`
	Balance             int64     `json:"balance"`
	LowBalanceThreshold int64     `json:"low_balance_threshold"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// HistoryResult wraps a paginated transaction query.
type HistoryResult struct {
	Transactions []domain.Transaction `json:"transactions"`
	Total        int64                `json:"total"`
	Balance      int64                `json:"balance"`
}

// CashFlowForecast is a best-effort estimate. No balance-mutating
// decision may depend on it.
type CashFlowForecast struct {
	CurrentBalance    int64 `json:"current_balance"`
	ProjectedInflows  int64 `json:"projected_inflows"`
	ProjectedOutflows int64 `json:"projected_outflows"`
	NetPosition       int64 `json:"net_position"`
}

// WalletService is the core wallet engine: balance queries and atomic,
// idempotent balance mutation guarded by the per-company lock.
type WalletService interface {
	GetBalance(ctx context.Context, companyID string) (*BalanceInfo, error)
	Credit(ctx context.Context, req MutationRequest) (*MutationResult, error)
	Debit(ctx context.Context, req MutationRequest) (*MutationResult, error)
	Refund(ctx context.Context, companyID string, transactionID uuid.UUID, reason, actor string) (*MutationResult, error)
	GetTransactionHistory(ctx context.Context, params TransactionListParams) (*HistoryResult, error)
	GetWalletStats(ctx context.Context, companyID string, from, to *time.Time) (*WalletStats, error)
	UpdateLowBalanceThreshold(ctx context.Context, companyID string, threshold int64, actor string) (*BalanceInfo, error)
	UpdateAutoRechargeSettings(ctx context.Context, companyID string, settings domain.AutoRechargeSettings, actor string) (*domain.AutoRechargeSettings, error)
	GetAutoRechargeSettings(ctx context.Context, companyID string) (*domain.AutoRechargeSettings, error)
	GetProjectedOutflows(ctx context.Context, companyID string, days int) (int64, error)
	GetCashFlowForecast(ctx context.Context, companyID string) (*CashFlowForecast, error)
}

// --- Consumer Workflows ---

// CreateDisputeRequest holds input for opening a weight dispute.
type CreateDisputeRequest struct {
	CompanyID       string
	ShipmentID      string
	RefundAmount    int64
	DeductionAmount int64
	RespondBy       time.Time
}

// DisputeService resolves weight disputes and moves wallet money
// conditionally on the outcome. Insufficient balance is a branch
// (pending payment), not a failure.
type DisputeService interface {
	CreateDispute(ctx context.Context, req CreateDisputeRequest) (*domain.WeightDispute, error)
	GetDispute(ctx context.Context, id uuid.UUID) (*domain.WeightDispute, error)
	ResolveDispute(ctx context.Context, disputeID uuid.UUID, outcome domain.DisputeOutcome, actor string) (*domain.WeightDispute, error)
	// AutoResolveExpiredDisputes applies the default outcome to disputes
	// past their response deadline. Returns how many were resolved.
	AutoResolveExpiredDisputes(ctx context.Context) (int, error)
	// CollectPendingPayments retries pending deductions for a company,
	// typically after a successful recharge. Returns how many collected.
	CollectPendingPayments(ctx context.Context, companyID string) (int, error)
}

// RechargeService records confirmed recharges and drives auto-recharge.
type RechargeService interface {
	// RecordRecharge credits the wallet for an externally captured
	// payment, then collects any pending dispute deductions.
	RecordRecharge(ctx context.Context, companyID string, amount int64, paymentRef, actor string) (*MutationResult, error)
	// TriggerAutoRecharge tops up one wallet if due and within caps.
	TriggerAutoRecharge(ctx context.Context, companyID string) (bool, error)
	// ScanAndRecharge runs TriggerAutoRecharge over all enabled wallets.
	ScanAndRecharge(ctx context.Context) (int, error)
}

// PaymentProvider captures recharge payments. External collaborator:
// the wallet only records the credit once capture is confirmed.
type PaymentProvider interface {
	Charge(ctx context.Context, paymentMethodRef string, amount int64) (chargeID string, err error)
}

// SettlementSource reports scheduled incoming settlements (e.g., COD
// remittances) for cash-flow forecasting. External collaborator.
type SettlementSource interface {
	UpcomingSettlements(ctx context.Context, companyID string, within time.Duration) (int64, error)
}

// --- API seam ---

// TokenService handles JWT token operations for the HTTP layer.
type TokenService interface {
	Generate(companyID, actor string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	CompanyID string
	Actor     string
}
