package service

import (
	"context"
	"fmt"
	"time"

	"shipcrowd-wallet/config"
	"shipcrowd-wallet/internal/core/domain"
	"shipcrowd-wallet/internal/core/ports"
	"shipcrowd-wallet/internal/metrics"
	"shipcrowd-wallet/pkg/apperror"

	"github.com/rs/zerolog"
)

// autoRechargeProcess names the system actor for automatic top-ups.
// SumRecharges filters on this actor, so the daily/monthly caps bound
// only automatic recharges, never manual ones.
const autoRechargeProcess = "auto-recharge"

// RechargeServiceImpl implements ports.RechargeService.
type RechargeServiceImpl struct {
	walletSvc  ports.WalletService
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	disputeSvc ports.DisputeService
	provider   ports.PaymentProvider
	walletCfg  config.WalletConfig
	log        zerolog.Logger
}

// NewRechargeService creates a new RechargeServiceImpl.
func NewRechargeService(
	walletSvc ports.WalletService,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	disputeSvc ports.DisputeService,
	provider ports.PaymentProvider,
	walletCfg config.WalletConfig,
	log zerolog.Logger,
) *RechargeServiceImpl {
	return &RechargeServiceImpl{
		walletSvc:  walletSvc,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		disputeSvc: disputeSvc,
		provider:   provider,
		walletCfg:  walletCfg,
		log:        log,
	}
}

// RecordRecharge credits the wallet for an externally captured payment.
// The payment reference doubles as the idempotency key, so a replayed
// confirmation credits exactly once. Pending dispute deductions are
// collected right after, while the wallet is known to be funded.
func (s *RechargeServiceImpl) RecordRecharge(ctx context.Context, companyID string, amount int64, paymentRef, actor string) (*ports.MutationResult, error) {
	if amount < s.walletCfg.MinRechargeAmount {
		return nil, apperror.Validation(fmt.Sprintf("recharge amount must be at least %d", s.walletCfg.MinRechargeAmount))
	}
	if paymentRef == "" {
		return nil, apperror.Validation("payment reference is required")
	}

	result, err := s.walletSvc.Credit(ctx, ports.MutationRequest{
		CompanyID:   companyID,
		Amount:      amount,
		Reason:      domain.ReasonRecharge,
		Description: "Wallet recharge",
		Reference: &domain.Reference{
			Type: "payment",
			ID:   paymentRef,
		},
		Actor:          actor,
		IdempotencyKey: "recharge:" + paymentRef,
	})
	if err != nil {
		return nil, err
	}

	if !result.Duplicate {
		if collected, err := s.disputeSvc.CollectPendingPayments(ctx, companyID); err != nil {
			// The credit stands; collection retries on the next recharge.
			s.log.Warn().Err(err).Str("company_id", companyID).Msg("pending payment collection failed after recharge")
		} else if collected > 0 {
			s.log.Info().Str("company_id", companyID).Int("collected", collected).Msg("pending deductions collected after recharge")
		}
	}
	return result, nil
}

// TriggerAutoRecharge tops up one wallet if its balance has crossed the
// auto-recharge threshold and the daily/monthly caps permit.
func (s *RechargeServiceImpl) TriggerAutoRecharge(ctx context.Context, companyID string) (bool, error) {
	wallet, err := s.walletRepo.GetByCompanyID(ctx, companyID)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return false, apperror.ErrWalletNotFound()
	}
	if !wallet.AutoRechargeDue() {
		return false, nil
	}

	actor := domain.SystemActor(autoRechargeProcess)
	settings := wallet.AutoRecharge
	now := time.Now().UTC()

	if settings.DailyLimit > 0 {
		daily, err := s.txRepo.SumRecharges(ctx, companyID, actor, now.Add(-24*time.Hour))
		if err != nil {
			return false, apperror.InternalError(fmt.Errorf("sum daily recharges: %w", err))
		}
		if daily+settings.RechargeAmount > settings.DailyLimit {
			metrics.AutoRechargesTotal.WithLabelValues("daily_cap").Inc()
			s.log.Warn().Str("company_id", companyID).Int64("daily_total", daily).Msg("auto-recharge skipped, daily cap reached")
			return false, nil
		}
	}
	if settings.MonthlyLimit > 0 {
		monthly, err := s.txRepo.SumRecharges(ctx, companyID, actor, now.Add(-30*24*time.Hour))
		if err != nil {
			return false, apperror.InternalError(fmt.Errorf("sum monthly recharges: %w", err))
		}
		if monthly+settings.RechargeAmount > settings.MonthlyLimit {
			metrics.AutoRechargesTotal.WithLabelValues("monthly_cap").Inc()
			s.log.Warn().Str("company_id", companyID).Int64("monthly_total", monthly).Msg("auto-recharge skipped, monthly cap reached")
			return false, nil
		}
	}

	chargeID, err := s.provider.Charge(ctx, settings.PaymentMethodRef, settings.RechargeAmount)
	if err != nil {
		metrics.AutoRechargesTotal.WithLabelValues("charge_failed").Inc()
		return false, apperror.ErrPaymentCaptureFailed(err)
	}

	if _, err := s.RecordRecharge(ctx, companyID, settings.RechargeAmount, chargeID, actor); err != nil {
		// The charge succeeded but the credit did not land. The charge
		// id is the idempotency key, so a retried RecordRecharge with
		// the same id settles it without double-crediting.
		metrics.AutoRechargesTotal.WithLabelValues("credit_failed").Inc()
		s.log.Error().Err(err).
			Str("company_id", companyID).
			Str("charge_id", chargeID).
			Msg("auto-recharge captured but not credited, replay required")
		return false, err
	}

	metrics.AutoRechargesTotal.WithLabelValues("ok").Inc()
	s.log.Info().
		Str("company_id", companyID).
		Int64("amount", settings.RechargeAmount).
		Str("charge_id", chargeID).
		Msg("auto-recharge applied")
	return true, nil
}

// ScanAndRecharge runs TriggerAutoRecharge across all enabled wallets.
// One failing wallet does not stop the scan.
func (s *RechargeServiceImpl) ScanAndRecharge(ctx context.Context) (int, error) {
	wallets, err := s.walletRepo.ListAutoRechargeEnabled(ctx)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("list auto recharge wallets: %w", err))
	}

	recharged := 0
	for i := range wallets {
		companyID := wallets[i].CompanyID
		done, err := s.TriggerAutoRecharge(ctx, companyID)
		if err != nil {
			s.log.Error().Err(err).Str("company_id", companyID).Msg("auto-recharge failed, continuing scan")
			continue
		}
		if done {
			recharged++
		}
	}

	if recharged > 0 {
		s.log.Info().Int("recharged", recharged).Int("scanned", len(wallets)).Msg("auto-recharge scan complete")
	}
	return recharged, nil
}
