package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shipcrowd-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DisputeRepo implements ports.DisputeRepository.
type DisputeRepo struct {
	pool Pool
}

// NewDisputeRepo creates a new DisputeRepo.
func NewDisputeRepo(pool Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

const disputeColumns = `id, company_id, shipment_id, status, outcome, refund_amount, deduction_amount,
	payment_status, pending_amount, wallet_transaction_id, resolved_by, respond_by, resolved_at, created_at, updated_at`

func scanDispute(row pgx.Row) (*domain.WeightDispute, error) {
	d := &domain.WeightDispute{}
	err := row.Scan(
		&d.ID, &d.CompanyID, &d.ShipmentID, &d.Status, &d.Outcome, &d.RefundAmount, &d.DeductionAmount,
		&d.PaymentStatus, &d.PendingAmount, &d.WalletTransactionID, &d.ResolvedBy, &d.RespondBy,
		&d.ResolvedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

// Create inserts a new dispute record.
func (r *DisputeRepo) Create(ctx context.Context, d *domain.WeightDispute) error {
	query := `INSERT INTO weight_disputes (id, company_id, shipment_id, status, outcome, refund_amount,
		deduction_amount, payment_status, pending_amount, wallet_transaction_id, resolved_by, respond_by,
		resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.CompanyID, d.ShipmentID, d.Status, d.Outcome, d.RefundAmount,
		d.DeductionAmount, d.PaymentStatus, d.PendingAmount, d.WalletTransactionID, d.ResolvedBy, d.RespondBy,
		d.ResolvedAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

// GetByID fetches a dispute by UUID. Returns nil, nil when not found.
func (r *DisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WeightDispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM weight_disputes WHERE id = $1`

	d, err := scanDispute(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get dispute by id: %w", err)
	}
	return d, nil
}

// Update persists resolution state for an existing dispute.
func (r *DisputeRepo) Update(ctx context.Context, d *domain.WeightDispute) error {
	query := `UPDATE weight_disputes SET status = $2, outcome = $3, refund_amount = $4, deduction_amount = $5,
		payment_status = $6, pending_amount = $7, wallet_transaction_id = $8, resolved_by = $9,
		resolved_at = $10, updated_at = $11
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		d.ID, d.Status, d.Outcome, d.RefundAmount, d.DeductionAmount,
		d.PaymentStatus, d.PendingAmount, d.WalletTransactionID, d.ResolvedBy,
		d.ResolvedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update dispute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update dispute: no rows affected")
	}
	return nil
}

// ListExpired returns open disputes whose response window has passed.
func (r *DisputeRepo) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]domain.WeightDispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM weight_disputes
		WHERE status = 'open' AND respond_by <= $1 ORDER BY respond_by ASC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired disputes: %w", err)
	}
	defer rows.Close()

	return collectDisputes(rows)
}

// ListPendingPayments returns resolved disputes for a company whose
// deduction could not be collected at resolution time.
func (r *DisputeRepo) ListPendingPayments(ctx context.Context, companyID string) ([]domain.WeightDispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM weight_disputes
		WHERE company_id = $1 AND payment_status = 'pending' ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	return collectDisputes(rows)
}

func collectDisputes(rows pgx.Rows) ([]domain.WeightDispute, error) {
	var disputes []domain.WeightDispute
	for rows.Next() {
		d := domain.WeightDispute{}
		err := rows.Scan(
			&d.ID, &d.CompanyID, &d.ShipmentID, &d.Status, &d.Outcome, &d.RefundAmount, &d.DeductionAmount,
			&d.PaymentStatus, &d.PendingAmount, &d.WalletTransactionID, &d.ResolvedBy, &d.RespondBy,
			&d.ResolvedAt, &d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan dispute: %w", err)
		}
		disputes = append(disputes, d)
	}
	return disputes, rows.Err()
}
