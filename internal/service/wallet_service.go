package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shipcrowd-wallet/config"
	"shipcrowd-wallet/internal/core/domain"
	"shipcrowd-wallet/internal/core/ports"
	"shipcrowd-wallet/internal/metrics"
	"shipcrowd-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// outflowWindow is the lookback used to estimate daily burn rate.
const outflowWindow = 30 * 24 * time.Hour

// forecastHorizon is the window for the cash-flow forecast.
const forecastHorizon = 7 * 24 * time.Hour

// WalletServiceImpl implements ports.WalletService. All balance
// mutations run inside the company's distributed lock and a single
// database transaction: the balance write and the ledger row commit or
// roll back together.
type WalletServiceImpl struct {
	walletRepo  ports.WalletRepository
	txRepo      ports.TransactionRepository
	idempCache  ports.IdempotencyCache
	locker      ports.Locker
	settlements ports.SettlementSource
	transactor  ports.DBTransactor
	lockCfg     config.LockConfig
	walletCfg   config.WalletConfig
	log         zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl. settlements may be
// nil; the forecast then assumes zero inflows.
func NewWalletService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	idempCache ports.IdempotencyCache,
	locker ports.Locker,
	settlements ports.SettlementSource,
	transactor ports.DBTransactor,
	lockCfg config.LockConfig,
	walletCfg config.WalletConfig,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo:  walletRepo,
		txRepo:      txRepo,
		idempCache:  idempCache,
		locker:      locker,
		settlements: settlements,
		transactor:  transactor,
		lockCfg:     lockCfg,
		walletCfg:   walletCfg,
		log:         log,
	}
}

// GetBalance returns the current balance without taking any lock. The
// value may trail an in-flight mutation; funds checks live in Debit.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, companyID string) (*ports.BalanceInfo, error) {
	wallet, err := s.walletRepo.GetByCompanyID(ctx, companyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return &ports.BalanceInfo{
		CompanyID:           wallet.CompanyID,
		Balance:             wallet.Balance,
		LowBalanceThreshold: wallet.LowBalanceThreshold,
		UpdatedAt:           wallet.UpdatedAt,
	}, nil
}

// Credit adds funds. A wallet is created lazily on a company's first
// credit.
func (s *WalletServiceImpl) Credit(ctx context.Context, req ports.MutationRequest) (*ports.MutationResult, error) {
	return s.mutate(ctx, req, domain.TransactionTypeCredit)
}

// Debit removes funds. Insufficient balance is a distinct outcome that
// callers branch on via apperror.IsInsufficientBalance; the wallet is
// left untouched in that case.
func (s *WalletServiceImpl) Debit(ctx context.Context, req ports.MutationRequest) (*ports.MutationResult, error) {
	return s.mutate(ctx, req, domain.TransactionTypeDebit)
}

func (s *WalletServiceImpl) mutate(ctx context.Context, req ports.MutationRequest, txType domain.TransactionType) (*ports.MutationResult, error) {
	op := string(txType)
	start := time.Now()

	if req.Amount <= 0 {
		metrics.ObserveOperation(op, "invalid", start)
		return nil, apperror.ErrInvalidAmount()
	}
	if !req.Reason.Valid() {
		metrics.ObserveOperation(op, "invalid", start)
		return nil, apperror.Validation(fmt.Sprintf("unknown transaction reason %q", req.Reason))
	}

	// Layer 1: Redis idempotency check (fast path, best-effort)
	cacheKey := idemCacheKey(req.CompanyID, req.IdempotencyKey)
	if req.IdempotencyKey != "" {
		cached, err := s.idempCache.Get(ctx, cacheKey)
		if err != nil {
			s.log.Warn().Err(err).Str("key", cacheKey).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			metrics.IdempotentReplaysTotal.Inc()
			metrics.ObserveOperation(op, "duplicate", start)
			return s.unmarshalCachedResult(cached)
		}
	}

	var result *ports.MutationResult
	lockKey := domain.WalletLockKey(req.CompanyID)
	err := s.locker.WithLock(ctx, lockKey, s.lockCfg.TTL, s.lockCfg.Wait, func(ctx context.Context) error {
		var err error
		result, err = s.mutateLocked(ctx, req, txType)
		return err
	})
	if err != nil {
		if apperror.IsLockNotAcquired(err) {
			metrics.LockTimeoutsTotal.Inc()
			metrics.ObserveOperation(op, "lock_timeout", start)
		} else if apperror.IsInsufficientBalance(err) {
			metrics.InsufficientBalanceTotal.Inc()
			metrics.ObserveOperation(op, "insufficient", start)
		} else {
			metrics.ObserveOperation(op, "error", start)
		}
		return nil, err
	}

	// Post-process: cache the result for replay (best-effort)
	if req.IdempotencyKey != "" && !result.Duplicate {
		respJSON, err := json.Marshal(result)
		if err == nil {
			if err := s.idempCache.Set(ctx, cacheKey, respJSON, idempotencyTTL); err != nil {
				s.log.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache idempotency in redis")
			}
		}
	}

	if result.Duplicate {
		metrics.IdempotentReplaysTotal.Inc()
		metrics.ObserveOperation(op, "duplicate", start)
	} else {
		metrics.ObserveOperation(op, "ok", start)
	}

	s.log.Info().
		Str("tx_id", result.TransactionID.String()).
		Str("company_id", req.CompanyID).
		Str("type", op).
		Str("reason", string(req.Reason)).
		Int64("amount", req.Amount).
		Int64("new_balance", result.NewBalance).
		Bool("duplicate", result.Duplicate).
		Msg("wallet mutation applied")

	return result, nil
}

// mutateLocked runs inside the company's lock critical section.
func (s *WalletServiceImpl) mutateLocked(ctx context.Context, req ports.MutationRequest, txType domain.TransactionType) (*ports.MutationResult, error) {
	// Layer 2: DB idempotency check, now race-free under the lock
	if req.IdempotencyKey != "" {
		prior, err := s.txRepo.GetByIdempotencyKey(ctx, req.CompanyID, req.IdempotencyKey)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
		}
		if prior != nil {
			return &ports.MutationResult{
				TransactionID: prior.ID,
				NewBalance:    prior.BalanceAfter,
				Duplicate:     true,
			}, nil
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByCompanyIDForUpdate(ctx, dbTx, req.CompanyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet row: %w", err))
	}
	now := time.Now().UTC()
	if wallet == nil {
		if txType == domain.TransactionTypeDebit {
			return nil, apperror.ErrWalletNotFound()
		}
		// First credit for this company: create the wallet in the same
		// transaction as the ledger row.
		wallet = &domain.Wallet{
			ID:                  uuid.New(),
			CompanyID:           req.CompanyID,
			Balance:             0,
			LowBalanceThreshold: s.walletCfg.DefaultLowThreshold,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := s.walletRepo.Create(ctx, dbTx, wallet); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
		}
	}

	var newBalance int64
	switch txType {
	case domain.TransactionTypeCredit:
		newBalance = wallet.Balance + req.Amount
	case domain.TransactionTypeDebit:
		if wallet.Balance < req.Amount {
			return nil, apperror.ErrInsufficientBalance()
		}
		newBalance = wallet.Balance - req.Amount
	}

	var idempKey *string
	if req.IdempotencyKey != "" {
		idempKey = &req.IdempotencyKey
	}
	txn := &domain.Transaction{
		ID:             uuid.New(),
		CompanyID:      req.CompanyID,
		WalletID:       wallet.ID,
		Type:           txType,
		Reason:         req.Reason,
		Amount:         req.Amount,
		BalanceAfter:   newBalance,
		Description:    req.Description,
		Reference:      req.Reference,
		Actor:          req.Actor,
		IdempotencyKey: idempKey,
		CreatedAt:      now,
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		// The unique index is the authoritative idempotency guard; a
		// duplicate here means a concurrent writer without the lock.
		if apperror.Code(err) == apperror.CodeDuplicateKey {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if wallet.LowBalanceThreshold > 0 && newBalance < wallet.LowBalanceThreshold {
		s.log.Warn().
			Str("company_id", req.CompanyID).
			Int64("balance", newBalance).
			Int64("threshold", wallet.LowBalanceThreshold).
			Msg("wallet balance below threshold")
	}

	return &ports.MutationResult{
		TransactionID: txn.ID,
		NewBalance:    newBalance,
	}, nil
}

// Refund credits back a previously debited transaction, exactly once.
func (s *WalletServiceImpl) Refund(ctx context.Context, companyID string, transactionID uuid.UUID, reason, actor string) (*ports.MutationResult, error) {
	original, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get original transaction: %w", err))
	}
	// Treat another tenant's transaction as nonexistent.
	if original == nil || original.CompanyID != companyID {
		return nil, apperror.ErrTransactionNotFound()
	}
	if !original.IsRefundable() {
		return nil, apperror.ErrInvalidRefund()
	}
	refunded, err := s.txRepo.RefundExists(ctx, original.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check refund exists: %w", err))
	}
	if refunded {
		return nil, apperror.ErrAlreadyRefunded()
	}

	description := reason
	if description == "" {
		description = "Refund of " + original.ID.String()
	}
	// The derived idempotency key makes the refund exactly-once even
	// under concurrent retries: the second attempt replays the first.
	return s.Credit(ctx, ports.MutationRequest{
		CompanyID:   companyID,
		Amount:      original.Amount,
		Reason:      domain.ReasonRefund,
		Description: description,
		Reference: &domain.Reference{
			Type: "transaction",
			ID:   original.ID.String(),
		},
		Actor:          actor,
		IdempotencyKey: "refund:" + original.ID.String(),
	})
}

// GetTransactionHistory returns a filtered, paginated ledger slice.
func (s *WalletServiceImpl) GetTransactionHistory(ctx context.Context, params ports.TransactionListParams) (*ports.HistoryResult, error) {
	wallet, err := s.walletRepo.GetByCompanyID(ctx, params.CompanyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	transactions, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	return &ports.HistoryResult{
		Transactions: transactions,
		Total:        total,
		Balance:      wallet.Balance,
	}, nil
}

// GetWalletStats aggregates ledger movement over an optional window.
func (s *WalletServiceImpl) GetWalletStats(ctx context.Context, companyID string, from, to *time.Time) (*ports.WalletStats, error) {
	stats, err := s.txRepo.GetStats(ctx, companyID, from, to)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet stats: %w", err))
	}
	return stats, nil
}

// UpdateLowBalanceThreshold sets the alert threshold.
func (s *WalletServiceImpl) UpdateLowBalanceThreshold(ctx context.Context, companyID string, threshold int64, actor string) (*ports.BalanceInfo, error) {
	if threshold < 0 {
		return nil, apperror.ErrInvalidSettings("low balance threshold must not be negative")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByCompanyIDForUpdate(ctx, dbTx, companyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet row: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if err := s.walletRepo.UpdateLowBalanceThreshold(ctx, dbTx, wallet.ID, threshold); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update threshold: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("company_id", companyID).
		Int64("threshold", threshold).
		Str("actor", actor).
		Msg("low balance threshold updated")

	return &ports.BalanceInfo{
		CompanyID:           companyID,
		Balance:             wallet.Balance,
		LowBalanceThreshold: threshold,
		UpdatedAt:           time.Now().UTC(),
	}, nil
}

// UpdateAutoRechargeSettings validates and replaces the auto-recharge
// configuration.
func (s *WalletServiceImpl) UpdateAutoRechargeSettings(ctx context.Context, companyID string, settings domain.AutoRechargeSettings, actor string) (*domain.AutoRechargeSettings, error) {
	if settings.Enabled {
		if settings.ThresholdAmount <= 0 {
			return nil, apperror.ErrInvalidSettings("auto-recharge threshold must be positive")
		}
		if settings.RechargeAmount < s.walletCfg.MinRechargeAmount {
			return nil, apperror.ErrInvalidSettings(fmt.Sprintf("recharge amount must be at least %d", s.walletCfg.MinRechargeAmount))
		}
		if settings.PaymentMethodRef == "" {
			return nil, apperror.ErrInvalidSettings("payment method reference is required")
		}
	}
	if settings.DailyLimit < 0 || settings.MonthlyLimit < 0 {
		return nil, apperror.ErrInvalidSettings("recharge limits must not be negative")
	}
	if settings.DailyLimit > 0 && settings.MonthlyLimit > 0 && settings.DailyLimit > settings.MonthlyLimit {
		return nil, apperror.ErrInvalidSettings("daily limit cannot exceed monthly limit")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByCompanyIDForUpdate(ctx, dbTx, companyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet row: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if err := s.walletRepo.UpdateAutoRecharge(ctx, dbTx, wallet.ID, settings); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update auto recharge: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("company_id", companyID).
		Bool("enabled", settings.Enabled).
		Int64("threshold", settings.ThresholdAmount).
		Int64("amount", settings.RechargeAmount).
		Str("actor", actor).
		Msg("auto-recharge settings updated")

	return &settings, nil
}

// GetAutoRechargeSettings returns the current auto-recharge configuration.
func (s *WalletServiceImpl) GetAutoRechargeSettings(ctx context.Context, companyID string) (*domain.AutoRechargeSettings, error) {
	wallet, err := s.walletRepo.GetByCompanyID(ctx, companyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	settings := wallet.AutoRecharge
	return &settings, nil
}

// GetProjectedOutflows estimates spend over the next `days` days from
// the trailing 30-day burn rate. Best-effort: never feeds a funds check.
func (s *WalletServiceImpl) GetProjectedOutflows(ctx context.Context, companyID string, days int) (int64, error) {
	if days <= 0 {
		return 0, apperror.Validation("days must be positive")
	}
	since := time.Now().UTC().Add(-outflowWindow)
	total, err := s.txRepo.SumDebits(ctx, companyID, since)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("sum debits: %w", err))
	}
	windowDays := int64(outflowWindow / (24 * time.Hour))
	return total / windowDays * int64(days), nil
}

// GetCashFlowForecast combines balance, upcoming settlements, and
// projected outflows over a 7-day horizon.
func (s *WalletServiceImpl) GetCashFlowForecast(ctx context.Context, companyID string) (*ports.CashFlowForecast, error) {
	balance, err := s.GetBalance(ctx, companyID)
	if err != nil {
		return nil, err
	}

	horizonDays := int(forecastHorizon / (24 * time.Hour))
	outflows, err := s.GetProjectedOutflows(ctx, companyID, horizonDays)
	if err != nil {
		return nil, err
	}

	var inflows int64
	if s.settlements != nil {
		inflows, err = s.settlements.UpcomingSettlements(ctx, companyID, forecastHorizon)
		if err != nil {
			// The forecast degrades rather than fails when the external
			// settlement source is down.
			s.log.Warn().Err(err).Str("company_id", companyID).Msg("settlement source unavailable, assuming zero inflows")
			inflows = 0
		}
	}

	return &ports.CashFlowForecast{
		CurrentBalance:    balance.Balance,
		ProjectedInflows:  inflows,
		ProjectedOutflows: outflows,
		NetPosition:       balance.Balance + inflows - outflows,
	}, nil
}

func (s *WalletServiceImpl) unmarshalCachedResult(data []byte) (*ports.MutationResult, error) {
	var result ports.MutationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached result: %w", err))
	}
	result.Duplicate = true
	return &result, nil
}

func idemCacheKey(companyID, key string) string {
	return companyID + ":" + key
}
