package integration

import (
	"context"
	"testing"
	"time"

	"shipcrowd-wallet/config"
	httpHandler "shipcrowd-wallet/internal/adapter/http/handler"
	redisStorage "shipcrowd-wallet/internal/adapter/storage/redis"
	"shipcrowd-wallet/internal/core/ports"
	"shipcrowd-wallet/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// testEnv wires the full service stack against in-memory repositories
// and a real Redis lock backed by miniredis.
type testEnv struct {
	walletSvc   ports.WalletService
	disputeSvc  ports.DisputeService
	rechargeSvc ports.RechargeService
	tokenSvc    ports.TokenService
	router      *gin.Engine

	walletRepo  *inMemoryWalletRepo
	txRepo      *inMemoryTransactionRepo
	disputeRepo *inMemoryDisputeRepo
	provider    *stubPaymentProvider
	settlements *stubSettlementSource
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := zerolog.Nop()
	locker := redisStorage.NewLock(client, log)

	env := &testEnv{
		walletRepo:  newInMemoryWalletRepo(),
		txRepo:      newInMemoryTransactionRepo(),
		disputeRepo: newInMemoryDisputeRepo(),
		provider:    &stubPaymentProvider{},
		settlements: &stubSettlementSource{},
	}

	lockCfg := config.LockConfig{TTL: 30 * time.Second, Wait: 5 * time.Second}
	walletCfg := config.WalletConfig{MinRechargeAmount: 10000, DefaultLowThreshold: 50000}

	env.walletSvc = service.NewWalletService(
		env.walletRepo,
		env.txRepo,
		newInMemoryIdempotencyCache(),
		locker,
		env.settlements,
		newInMemoryTransactor(),
		lockCfg,
		walletCfg,
		log,
	)
	env.disputeSvc = service.NewDisputeService(env.disputeRepo, env.walletSvc, log)
	env.rechargeSvc = service.NewRechargeService(env.walletSvc, env.walletRepo, env.txRepo, env.disputeSvc, env.provider, walletCfg, log)
	env.tokenSvc = service.NewJWTTokenService("integration-test-secret", time.Hour, "shipcrowd-wallet")

	env.router = httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:   env.walletSvc,
		DisputeSvc:  env.disputeSvc,
		RechargeSvc: env.rechargeSvc,
		TokenSvc:    env.tokenSvc,
		Logger:      log,
	})

	return env
}

// seedWallet credits the company so a wallet exists with the given balance.
func (env *testEnv) seedWallet(t *testing.T, companyID string, balance int64) {
	t.Helper()
	_, err := env.walletSvc.Credit(context.Background(), ports.MutationRequest{
		CompanyID: companyID,
		Amount:    balance,
		Reason:    "recharge",
		Actor:     "test:seed",
	})
	require.NoError(t, err)
}

func (env *testEnv) token(t *testing.T, companyID, actor string) string {
	t.Helper()
	tok, _, err := env.tokenSvc.Generate(companyID, actor)
	require.NoError(t, err)
	return tok
}
