package postgres

import (
	"context"
	"errors"
	"fmt"

	"shipcrowd-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, company_id, balance, low_balance_threshold,
	auto_recharge_enabled, auto_recharge_threshold, auto_recharge_amount,
	auto_recharge_payment_ref, auto_recharge_daily_limit, auto_recharge_monthly_limit,
	created_at, updated_at`

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.CompanyID, &w.Balance, &w.LowBalanceThreshold,
		&w.AutoRecharge.Enabled, &w.AutoRecharge.ThresholdAmount, &w.AutoRecharge.RechargeAmount,
		&w.AutoRecharge.PaymentMethodRef, &w.AutoRecharge.DailyLimit, &w.AutoRecharge.MonthlyLimit,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

// Create inserts a new wallet within the mutation transaction. Wallets
// are created lazily on first credit, inside the company's lock.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (id, company_id, balance, low_balance_threshold,
		auto_recharge_enabled, auto_recharge_threshold, auto_recharge_amount,
		auto_recharge_payment_ref, auto_recharge_daily_limit, auto_recharge_monthly_limit,
		created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		w.ID, w.CompanyID, w.Balance, w.LowBalanceThreshold,
		w.AutoRecharge.Enabled, w.AutoRecharge.ThresholdAmount, w.AutoRecharge.RechargeAmount,
		w.AutoRecharge.PaymentMethodRef, w.AutoRecharge.DailyLimit, w.AutoRecharge.MonthlyLimit,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByCompanyID fetches a wallet by company ID (non-locking read).
func (r *WalletRepo) GetByCompanyID(ctx context.Context, companyID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE company_id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, companyID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by company id: %w", err)
	}
	return w, nil
}

// GetByCompanyIDForUpdate fetches a wallet with a row lock. This MUST be
// called within a transaction, inside the company's distributed lock.
func (r *WalletRepo) GetByCompanyIDForUpdate(ctx context.Context, tx pgx.Tx, companyID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE company_id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, companyID))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// UpdateBalance writes a wallet's new balance within a transaction. The
// caller appends the matching ledger row in the same transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance int64) error {
	query := `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, newBalance, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// UpdateLowBalanceThreshold updates the alert threshold within a transaction.
func (r *WalletRepo) UpdateLowBalanceThreshold(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, threshold int64) error {
	query := `UPDATE wallets SET low_balance_threshold = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, threshold, walletID)
	if err != nil {
		return fmt.Errorf("update low balance threshold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// UpdateAutoRecharge replaces the embedded auto-recharge settings within
// a transaction.
func (r *WalletRepo) UpdateAutoRecharge(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, s domain.AutoRechargeSettings) error {
	query := `UPDATE wallets SET auto_recharge_enabled = $1, auto_recharge_threshold = $2,
		auto_recharge_amount = $3, auto_recharge_payment_ref = $4,
		auto_recharge_daily_limit = $5, auto_recharge_monthly_limit = $6,
		updated_at = NOW() WHERE id = $7`

	tag, err := tx.Exec(ctx, query,
		s.Enabled, s.ThresholdAmount, s.RechargeAmount,
		s.PaymentMethodRef, s.DailyLimit, s.MonthlyLimit, walletID,
	)
	if err != nil {
		return fmt.Errorf("update auto recharge settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// ListAutoRechargeEnabled returns wallets with auto-recharge turned on,
// for the recharge scan.
func (r *WalletRepo) ListAutoRechargeEnabled(ctx context.Context) ([]domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE auto_recharge_enabled = true`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list auto recharge wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w := domain.Wallet{}
		err := rows.Scan(
			&w.ID, &w.CompanyID, &w.Balance, &w.LowBalanceThreshold,
			&w.AutoRecharge.Enabled, &w.AutoRecharge.ThresholdAmount, &w.AutoRecharge.RechargeAmount,
			&w.AutoRecharge.PaymentMethodRef, &w.AutoRecharge.DailyLimit, &w.AutoRecharge.MonthlyLimit,
			&w.CreatedAt, &w.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}
