package service

import (
	"context"
	"fmt"
	"time"

	"shipcrowd-wallet/internal/core/domain"
	"shipcrowd-wallet/internal/core/ports"
	"shipcrowd-wallet/internal/metrics"
	"shipcrowd-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// disputeResponseWindow is how long a seller has to respond before the
// sweep applies the default outcome.
const disputeResponseWindow = 7 * 24 * time.Hour

// sweepBatchSize bounds one auto-resolve pass.
const sweepBatchSize = 100

// autoResolveProcess names the system actor for swept disputes.
const autoResolveProcess = "auto-resolve"

// DisputeServiceImpl implements ports.DisputeService. It moves wallet
// money conditionally on the dispute outcome; insufficient balance on a
// deduction parks the dispute in a pending-payment state instead of
// failing the resolution.
type DisputeServiceImpl struct {
	disputeRepo ports.DisputeRepository
	walletSvc   ports.WalletService
	log         zerolog.Logger
}

// NewDisputeService creates a new DisputeServiceImpl.
func NewDisputeService(disputeRepo ports.DisputeRepository, walletSvc ports.WalletService, log zerolog.Logger) *DisputeServiceImpl {
	return &DisputeServiceImpl{
		disputeRepo: disputeRepo,
		walletSvc:   walletSvc,
		log:         log,
	}
}

// CreateDispute opens a weight dispute. No money moves until resolution.
func (s *DisputeServiceImpl) CreateDispute(ctx context.Context, req ports.CreateDisputeRequest) (*domain.WeightDispute, error) {
	if req.CompanyID == "" || req.ShipmentID == "" {
		return nil, apperror.Validation("company id and shipment id are required")
	}
	if req.RefundAmount < 0 || req.DeductionAmount < 0 {
		return nil, apperror.Validation("dispute amounts must not be negative")
	}

	now := time.Now().UTC()
	respondBy := req.RespondBy
	if respondBy.IsZero() {
		respondBy = now.Add(disputeResponseWindow)
	}

	dispute := &domain.WeightDispute{
		ID:              uuid.New(),
		CompanyID:       req.CompanyID,
		ShipmentID:      req.ShipmentID,
		Status:          domain.DisputeStatusOpen,
		RefundAmount:    req.RefundAmount,
		DeductionAmount: req.DeductionAmount,
		PaymentStatus:   domain.DisputePaymentNone,
		RespondBy:       respondBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.disputeRepo.Create(ctx, dispute); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create dispute: %w", err))
	}

	s.log.Info().
		Str("dispute_id", dispute.ID.String()).
		Str("company_id", req.CompanyID).
		Str("shipment_id", req.ShipmentID).
		Time("respond_by", respondBy).
		Msg("weight dispute opened")

	return dispute, nil
}

// GetDispute fetches a dispute by id.
func (s *DisputeServiceImpl) GetDispute(ctx context.Context, id uuid.UUID) (*domain.WeightDispute, error) {
	dispute, err := s.disputeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get dispute: %w", err))
	}
	if dispute == nil {
		return nil, apperror.ErrDisputeNotFound()
	}
	return dispute, nil
}

// ResolveDispute applies an outcome and moves wallet money accordingly.
func (s *DisputeServiceImpl) ResolveDispute(ctx context.Context, disputeID uuid.UUID, outcome domain.DisputeOutcome, actor string) (*domain.WeightDispute, error) {
	if !outcome.Valid() {
		return nil, apperror.ErrInvalidOutcome(string(outcome))
	}

	dispute, err := s.disputeRepo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get dispute: %w", err))
	}
	if dispute == nil {
		return nil, apperror.ErrDisputeNotFound()
	}
	if dispute.Status == domain.DisputeStatusResolved {
		return nil, apperror.ErrDisputeAlreadyResolved()
	}

	return s.resolve(ctx, dispute, outcome, actor)
}

// resolve applies the outcome to an already-loaded open dispute.
func (s *DisputeServiceImpl) resolve(ctx context.Context, dispute *domain.WeightDispute, outcome domain.DisputeOutcome, actor string) (*domain.WeightDispute, error) {
	// The financial delta per outcome. Split shares the disputed
	// amounts evenly; waived moves no money at all.
	var creditAmount, debitAmount int64
	switch outcome {
	case domain.OutcomeSellerFavor:
		creditAmount = dispute.RefundAmount
	case domain.OutcomePlatformFavor:
		debitAmount = dispute.DeductionAmount
	case domain.OutcomeSplit:
		creditAmount = dispute.RefundAmount / 2
		debitAmount = dispute.DeductionAmount / 2
	case domain.OutcomeWaived:
	}

	now := time.Now().UTC()
	dispute.Status = domain.DisputeStatusResolved
	dispute.Outcome = outcome
	dispute.ResolvedBy = actor
	dispute.ResolvedAt = &now
	dispute.UpdatedAt = now

	if creditAmount > 0 {
		// Credits cannot fail on balance grounds; apply unconditionally.
		result, err := s.walletSvc.Credit(ctx, ports.MutationRequest{
			CompanyID:      dispute.CompanyID,
			Amount:         creditAmount,
			Reason:         domain.ReasonWeightDispute,
			Description:    fmt.Sprintf("Weight dispute %s resolved %s", dispute.ID, outcome),
			Reference:      dispute.DisputeReference(),
			Actor:          actor,
			IdempotencyKey: fmt.Sprintf("dispute:%s:credit", dispute.ID),
		})
		if err != nil {
			return nil, err
		}
		dispute.WalletTransactionID = &result.TransactionID
	}

	if debitAmount > 0 {
		txID, collected, err := s.collectDeduction(ctx, dispute, debitAmount, actor)
		if err != nil {
			return nil, err
		}
		if collected {
			dispute.PaymentStatus = domain.DisputePaymentCollected
			dispute.WalletTransactionID = txID
		} else {
			// Insufficient funds: the business resolution proceeds and
			// the deduction is owed, collected on a later recharge.
			dispute.PaymentStatus = domain.DisputePaymentPending
			dispute.PendingAmount = debitAmount
		}
	}

	if err := s.disputeRepo.Update(ctx, dispute); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update dispute: %w", err))
	}

	metrics.DisputesResolvedTotal.WithLabelValues(string(outcome)).Inc()
	s.log.Info().
		Str("dispute_id", dispute.ID.String()).
		Str("company_id", dispute.CompanyID).
		Str("outcome", string(outcome)).
		Str("payment_status", string(dispute.PaymentStatus)).
		Str("actor", actor).
		Msg("weight dispute resolved")

	return dispute, nil
}

// collectDeduction attempts the debit for a platform-favor (or split)
// resolution. The outer balance check only picks the pending branch
// early; the debit's own in-lock check is the authoritative guard, so a
// concurrent drain between the check and the debit still lands here as
// an insufficient-balance outcome, never a negative balance.
func (s *DisputeServiceImpl) collectDeduction(ctx context.Context, dispute *domain.WeightDispute, amount int64, actor string) (*uuid.UUID, bool, error) {
	balance, err := s.walletSvc.GetBalance(ctx, dispute.CompanyID)
	if err != nil {
		if apperror.Code(err) == apperror.CodeWalletNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	if balance.Balance < amount {
		return nil, false, nil
	}

	result, err := s.walletSvc.Debit(ctx, ports.MutationRequest{
		CompanyID:      dispute.CompanyID,
		Amount:         amount,
		Reason:         domain.ReasonWeightDispute,
		Description:    fmt.Sprintf("Weight dispute %s deduction", dispute.ID),
		Reference:      dispute.DisputeReference(),
		Actor:          actor,
		IdempotencyKey: fmt.Sprintf("dispute:%s:debit", dispute.ID),
	})
	if err != nil {
		if apperror.IsInsufficientBalance(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &result.TransactionID, true, nil
}

// AutoResolveExpiredDisputes applies the default outcome to open
// disputes whose response window has passed, attributing the movement
// to a system actor.
func (s *DisputeServiceImpl) AutoResolveExpiredDisputes(ctx context.Context) (int, error) {
	expired, err := s.disputeRepo.ListExpired(ctx, time.Now().UTC(), sweepBatchSize)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("list expired disputes: %w", err))
	}

	actor := domain.SystemActor(autoResolveProcess)
	resolved := 0
	for i := range expired {
		dispute := expired[i]
		if _, err := s.resolve(ctx, &dispute, domain.OutcomeSellerFavor, actor); err != nil {
			// One stuck dispute must not stall the sweep.
			s.log.Error().Err(err).
				Str("dispute_id", dispute.ID.String()).
				Msg("auto-resolve failed, skipping")
			continue
		}
		metrics.DisputesAutoResolvedTotal.Inc()
		resolved++
	}

	if resolved > 0 {
		s.log.Info().Int("resolved", resolved).Msg("expired disputes auto-resolved")
	}
	return resolved, nil
}

// CollectPendingPayments retries owed deductions for a company, oldest
// first, stopping at the first insufficient balance.
func (s *DisputeServiceImpl) CollectPendingPayments(ctx context.Context, companyID string) (int, error) {
	pending, err := s.disputeRepo.ListPendingPayments(ctx, companyID)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("list pending payments: %w", err))
	}

	collected := 0
	for i := range pending {
		dispute := pending[i]
		result, err := s.walletSvc.Debit(ctx, ports.MutationRequest{
			CompanyID:      companyID,
			Amount:         dispute.PendingAmount,
			Reason:         domain.ReasonWeightDispute,
			Description:    fmt.Sprintf("Weight dispute %s pending deduction", dispute.ID),
			Reference:      dispute.DisputeReference(),
			Actor:          domain.SystemActor("pending-collection"),
			IdempotencyKey: fmt.Sprintf("dispute:%s:debit", dispute.ID),
		})
		if err != nil {
			if apperror.IsInsufficientBalance(err) {
				// Still short; stop rather than thrash the lock on the
				// remaining disputes.
				break
			}
			return collected, err
		}

		dispute.PaymentStatus = domain.DisputePaymentCollected
		dispute.PendingAmount = 0
		dispute.WalletTransactionID = &result.TransactionID
		dispute.UpdatedAt = time.Now().UTC()
		if err := s.disputeRepo.Update(ctx, &dispute); err != nil {
			return collected, apperror.InternalError(fmt.Errorf("update dispute: %w", err))
		}
		collected++
	}

	if collected > 0 {
		s.log.Info().
			Str("company_id", companyID).
			Int("collected", collected).
			Msg("pending dispute deductions collected")
	}
	return collected, nil
}
