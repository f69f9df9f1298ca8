package service

import (
	"context"
	"testing"

	"shipcrowd-wallet/config"
	"shipcrowd-wallet/internal/core/domain"
	"shipcrowd-wallet/internal/core/ports"
	"shipcrowd-wallet/internal/core/ports/mocks"
	"shipcrowd-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type rechargeTestDeps struct {
	svc        *RechargeServiceImpl
	walletSvc  *mocks.MockWalletService
	walletRepo *mocks.MockWalletRepository
	txRepo     *mocks.MockTransactionRepository
	disputeSvc *mocks.MockDisputeService
	provider   *mocks.MockPaymentProvider
	ctrl       *gomock.Controller
}

func setupRechargeService(t *testing.T) *rechargeTestDeps {
	ctrl := gomock.NewController(t)
	d := &rechargeTestDeps{
		walletSvc:  mocks.NewMockWalletService(ctrl),
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		disputeSvc: mocks.NewMockDisputeService(ctrl),
		provider:   mocks.NewMockPaymentProvider(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewRechargeService(
		d.walletSvc, d.walletRepo, d.txRepo, d.disputeSvc, d.provider,
		config.WalletConfig{MinRechargeAmount: 10000, DefaultLowThreshold: 50000},
		zerolog.Nop(),
	)
	return d
}

func autoRechargeWallet(companyID string, balance int64) *domain.Wallet {
	return &domain.Wallet{
		ID:        uuid.New(),
		CompanyID: companyID,
		Balance:   balance,
		AutoRecharge: domain.AutoRechargeSettings{
			Enabled:          true,
			ThresholdAmount:  50000,
			RechargeAmount:   100000,
			PaymentMethodRef: "pm_card_123",
			DailyLimit:       300000,
			MonthlyLimit:     1000000,
		},
	}
}

func TestRechargeService_RecordRecharge_Success(t *testing.T) {
	d := setupRechargeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	txID := uuid.New()

	d.walletSvc.EXPECT().Credit(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req ports.MutationRequest) (*ports.MutationResult, error) {
			assert.Equal(t, domain.ReasonRecharge, req.Reason)
			assert.Equal(t, "recharge:pay_789", req.IdempotencyKey)
			require.NotNil(t, req.Reference)
			assert.Equal(t, "payment", req.Reference.Type)
			return &ports.MutationResult{TransactionID: txID, NewBalance: 120000}, nil
		})
	d.disputeSvc.EXPECT().CollectPendingPayments(ctx, "comp_1").Return(1, nil)

	result, err := d.svc.RecordRecharge(ctx, "comp_1", 100000, "pay_789", "user:ops@acme.test")
	require.NoError(t, err)
	assert.Equal(t, txID, result.TransactionID)
}

func TestRechargeService_RecordRecharge_DuplicateSkipsCollection(t *testing.T) {
	d := setupRechargeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()

	d.walletSvc.EXPECT().Credit(ctx, gomock.Any()).
		Return(&ports.MutationResult{TransactionID: uuid.New(), NewBalance: 120000, Duplicate: true}, nil)
	// No CollectPendingPayments on the replay path.

	result, err := d.svc.RecordRecharge(ctx, "comp_1", 100000, "pay_789", "user:ops@acme.test")
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
}

func TestRechargeService_RecordRecharge_BelowMinimum(t *testing.T) {
	d := setupRechargeService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.RecordRecharge(context.Background(), "comp_1", 500, "pay_789", "user:ops@acme.test")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err))
}

func TestRechargeService_TriggerAutoRecharge_Success(t *testing.T) {
	d := setupRechargeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	wallet := autoRechargeWallet("comp_1", 40000)
	actor := domain.SystemActor(autoRechargeProcess)

	d.walletRepo.EXPECT().GetByCompanyID(ctx, "comp_1").Return(wallet, nil)
	d.txRepo.EXPECT().SumRecharges(ctx, "comp_1", actor, gomock.Any()).Return(int64(0), nil)
	d.txRepo.EXPECT().SumRecharges(ctx, "comp_1", actor, gomock.Any()).Return(int64(200000), nil)
	d.provider.EXPECT().Charge(ctx, "pm_card_123", int64(100000)).Return("ch_456", nil)
	d.walletSvc.EXPECT().Credit(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req ports.MutationRequest) (*ports.MutationResult, error) {
			assert.Equal(t, actor, req.Actor)
			assert.Equal(t, "recharge:ch_456", req.IdempotencyKey)
			return &ports.MutationResult{TransactionID: uuid.New(), NewBalance: 140000}, nil
		})
	d.disputeSvc.EXPECT().CollectPendingPayments(ctx, "comp_1").Return(0, nil)

	done, err := d.svc.TriggerAutoRecharge(ctx, "comp_1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRechargeService_TriggerAutoRecharge_NotDue(t *testing.T) {
	d := setupRechargeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	wallet := autoRechargeWallet("comp_1", 200000) // well above threshold

	d.walletRepo.EXPECT().GetByCompanyID(ctx, "comp_1").Return(wallet, nil)

	done, err := d.svc.TriggerAutoRecharge(ctx, "comp_1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestRechargeService_TriggerAutoRecharge_DailyCap(t *testing.T) {
	d := setupRechargeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	wallet := autoRechargeWallet("comp_1", 40000)
	actor := domain.SystemActor(autoRechargeProcess)

	d.walletRepo.EXPECT().GetByCompanyID(ctx, "comp_1").Return(wallet, nil)
	// 250000 already recharged today; +100000 would breach the 300000 cap.
	d.txRepo.EXPECT().SumRecharges(ctx, "comp_1", actor, gomock.Any()).Return(int64(250000), nil)

	done, err := d.svc.TriggerAutoRecharge(ctx, "comp_1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestRechargeService_TriggerAutoRecharge_ChargeFails(t *testing.T) {
	d := setupRechargeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	wallet := autoRechargeWallet("comp_1", 40000)
	actor := domain.SystemActor(autoRechargeProcess)

	d.walletRepo.EXPECT().GetByCompanyID(ctx, "comp_1").Return(wallet, nil)
	d.txRepo.EXPECT().SumRecharges(ctx, "comp_1", actor, gomock.Any()).Return(int64(0), nil).Times(2)
	d.provider.EXPECT().Charge(ctx, "pm_card_123", int64(100000)).Return("", assert.AnError)

	done, err := d.svc.TriggerAutoRecharge(ctx, "comp_1")
	require.Error(t, err)
	assert.False(t, done)
	assert.Equal(t, apperror.CodePaymentCapture, apperror.Code(err))
}

func TestRechargeService_ScanAndRecharge_ContinuesPastFailures(t *testing.T) {
	d := setupRechargeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	w1 := autoRechargeWallet("comp_1", 40000)
	w2 := autoRechargeWallet("comp_2", 40000)
	actor := domain.SystemActor(autoRechargeProcess)

	d.walletRepo.EXPECT().ListAutoRechargeEnabled(ctx).Return([]domain.Wallet{*w1, *w2}, nil)

	// comp_1: charge fails.
	d.walletRepo.EXPECT().GetByCompanyID(ctx, "comp_1").Return(w1, nil)
	d.txRepo.EXPECT().SumRecharges(ctx, "comp_1", actor, gomock.Any()).Return(int64(0), nil).Times(2)
	d.provider.EXPECT().Charge(ctx, "pm_card_123", int64(100000)).Return("", assert.AnError)

	// comp_2: succeeds.
	d.walletRepo.EXPECT().GetByCompanyID(ctx, "comp_2").Return(w2, nil)
	d.txRepo.EXPECT().SumRecharges(ctx, "comp_2", actor, gomock.Any()).Return(int64(0), nil).Times(2)
	d.provider.EXPECT().Charge(ctx, "pm_card_123", int64(100000)).Return("ch_2", nil)
	d.walletSvc.EXPECT().Credit(ctx, gomock.Any()).
		Return(&ports.MutationResult{TransactionID: uuid.New(), NewBalance: 140000}, nil)
	d.disputeSvc.EXPECT().CollectPendingPayments(ctx, "comp_2").Return(0, nil)

	recharged, err := d.svc.ScanAndRecharge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recharged)
}
