package postgres

import (
	"context"
	"testing"
	"time"

	"shipcrowd-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispute(companyID string) *domain.WeightDispute {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.WeightDispute{
		ID:              uuid.New(),
		CompanyID:       companyID,
		ShipmentID:      "ship_42",
		Status:          domain.DisputeStatusOpen,
		DeductionAmount: 12000,
		PaymentStatus:   domain.DisputePaymentNone,
		RespondBy:       now.Add(7 * 24 * time.Hour),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func disputeTestColumns() []string {
	return []string{
		"id", "company_id", "shipment_id", "status", "outcome", "refund_amount", "deduction_amount",
		"payment_status", "pending_amount", "wallet_transaction_id", "resolved_by", "respond_by",
		"resolved_at", "created_at", "updated_at",
	}
}

func disputeRow(d *domain.WeightDispute) *pgxmock.Rows {
	return pgxmock.NewRows(disputeTestColumns()).AddRow(
		d.ID, d.CompanyID, d.ShipmentID, d.Status, d.Outcome, d.RefundAmount, d.DeductionAmount,
		d.PaymentStatus, d.PendingAmount, d.WalletTransactionID, d.ResolvedBy, d.RespondBy,
		d.ResolvedAt, d.CreatedAt, d.UpdatedAt,
	)
}

func TestDisputeRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDisputeRepo(mock)
	d := newTestDispute("comp_1")

	mock.ExpectExec("INSERT INTO weight_disputes").
		WithArgs(d.ID, d.CompanyID, d.ShipmentID, d.Status, d.Outcome, d.RefundAmount,
			d.DeductionAmount, d.PaymentStatus, d.PendingAmount, d.WalletTransactionID, d.ResolvedBy,
			d.RespondBy, d.ResolvedAt, d.CreatedAt, d.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), d)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisputeRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDisputeRepo(mock)
	d := newTestDispute("comp_1")

	mock.ExpectQuery("SELECT .+ FROM weight_disputes WHERE id").
		WithArgs(d.ID).
		WillReturnRows(disputeRow(d))

	result, err := repo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, d.ID, result.ID)
	assert.Equal(t, domain.DisputeStatusOpen, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisputeRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDisputeRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM weight_disputes WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(disputeTestColumns()))

	result, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisputeRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDisputeRepo(mock)
	d := newTestDispute("comp_1")
	now := time.Now().UTC().Truncate(time.Microsecond)
	txID := uuid.New()
	d.Status = domain.DisputeStatusResolved
	d.Outcome = domain.OutcomeSellerFavor
	d.PaymentStatus = domain.DisputePaymentCollected
	d.WalletTransactionID = &txID
	d.ResolvedBy = "user:admin@acme.test"
	d.ResolvedAt = &now
	d.UpdatedAt = now

	mock.ExpectExec("UPDATE weight_disputes SET status").
		WithArgs(d.ID, d.Status, d.Outcome, d.RefundAmount, d.DeductionAmount,
			d.PaymentStatus, d.PendingAmount, d.WalletTransactionID, d.ResolvedBy,
			d.ResolvedAt, d.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.Update(context.Background(), d)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisputeRepo_ListExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDisputeRepo(mock)
	d := newTestDispute("comp_1")
	asOf := d.RespondBy.Add(time.Hour)

	mock.ExpectQuery("SELECT .+ FROM weight_disputes .+ respond_by").
		WithArgs(asOf, 100).
		WillReturnRows(disputeRow(d))

	disputes, err := repo.ListExpired(context.Background(), asOf, 100)
	require.NoError(t, err)
	require.Len(t, disputes, 1)
	assert.Equal(t, d.ID, disputes[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisputeRepo_ListPendingPayments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDisputeRepo(mock)
	d := newTestDispute("comp_1")
	d.Status = domain.DisputeStatusResolved
	d.PaymentStatus = domain.DisputePaymentPending
	d.PendingAmount = d.DeductionAmount

	mock.ExpectQuery("SELECT .+ FROM weight_disputes .+ payment_status").
		WithArgs(d.CompanyID).
		WillReturnRows(disputeRow(d))

	disputes, err := repo.ListPendingPayments(context.Background(), d.CompanyID)
	require.NoError(t, err)
	require.Len(t, disputes, 1)
	assert.Equal(t, domain.DisputePaymentPending, disputes[0].PaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
