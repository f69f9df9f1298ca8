package ports

import (
	"context"
	"time"

	"shipcrowd-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx run inside the mutation transaction, after
// the caller has entered the company's distributed-lock critical section.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByCompanyID(ctx context.Context, companyID string) (*domain.Wallet, error)
	GetByCompanyIDForUpdate(ctx context.Context, tx pgx.Tx, companyID string) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance int64) error
	UpdateLowBalanceThreshold(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, threshold int64) error
	UpdateAutoRecharge(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, settings domain.AutoRechargeSettings) error
	ListAutoRechargeEnabled(ctx context.Context) ([]domain.Wallet, error)
}

// TransactionRepository defines persistence for the append-only ledger.
// Create runs in the same pgx transaction as the balance write; the two
// are one atomic unit. The (company_id, idempotency_key) unique index is
// the authoritative idempotency constraint.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, companyID, key string) (*domain.Transaction, error)
	RefundExists(ctx context.Context, originalTxID uuid.UUID) (bool, error)
	// Reporting queries
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetStats(ctx context.Context, companyID string, from, to *time.Time) (*WalletStats, error)
	// SumDebits returns total debited since the given time (forecasting).
	SumDebits(ctx context.Context, companyID string, since time.Time) (int64, error)
	// SumRecharges returns total recharge credits by the given actor since
	// the given time (auto-recharge daily/monthly caps).
	SumRecharges(ctx context.Context, companyID, actor string, since time.Time) (int64, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	CompanyID string
	Type      *domain.TransactionType
	Reason    *domain.TransactionReason
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// WalletStats aggregates ledger movement for a company over a window.
type WalletStats struct {
	TotalCredits    int64
	TotalDebits     int64
	CreditCount     int64
	DebitCount      int64
	CreditsByReason map[domain.TransactionReason]int64
	DebitsByReason  map[domain.TransactionReason]int64
}

// DisputeRepository defines persistence for weight disputes.
type DisputeRepository interface {
	Create(ctx context.Context, dispute *domain.WeightDispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WeightDispute, error)
	Update(ctx context.Context, dispute *domain.WeightDispute) error
	// ListExpired returns open disputes whose response deadline passed.
	ListExpired(ctx context.Context, asOf time.Time, limit int) ([]domain.WeightDispute, error)
	// ListPendingPayments returns resolved disputes still owing a deduction.
	ListPendingPayments(ctx context.Context, companyID string) ([]domain.WeightDispute, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
