package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"shipcrowd-wallet/internal/core/ports"
	"shipcrowd-wallet/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two concurrent debits each equal to the full balance: exactly one
// may succeed, and the final balance is zero, never negative.
func TestConcurrentDebits_MutualExclusion(t *testing.T) {
	env := newTestEnv(t)
	env.seedWallet(t, "comp_1", 50000)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.walletSvc.Debit(context.Background(), ports.MutationRequest{
				CompanyID: "comp_1",
				Amount:    50000,
				Reason:    "shipping_cost",
				Actor:     fmt.Sprintf("user:racer-%d", i),
			})
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case apperror.IsInsufficientBalance(err):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	info, err := env.walletSvc.GetBalance(context.Background(), "comp_1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Balance)
}

// Hammer a wallet with concurrent credits and debits and verify the
// ledger replays exactly to the final balance.
func TestConcurrentMutations_BalanceConservation(t *testing.T) {
	env := newTestEnv(t)
	env.seedWallet(t, "comp_1", 1000000)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			if i%2 == 0 {
				_, err := env.walletSvc.Credit(ctx, ports.MutationRequest{
					CompanyID: "comp_1",
					Amount:    int64(1000 * (i + 1)),
					Reason:    "promo_credit",
					Actor:     "test:load",
				})
				assert.NoError(t, err)
			} else {
				_, err := env.walletSvc.Debit(ctx, ports.MutationRequest{
					CompanyID: "comp_1",
					Amount:    int64(500 * (i + 1)),
					Reason:    "shipping_cost",
					Actor:     "test:load",
				})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	info, err := env.walletSvc.GetBalance(context.Background(), "comp_1")
	require.NoError(t, err)
	assert.Equal(t, env.txRepo.ledgerSum("comp_1"), info.Balance,
		"replaying the ledger must reconstruct the balance")
}

// The same idempotency key fired concurrently produces exactly one
// ledger entry.
func TestConcurrentIdempotency_SingleWrite(t *testing.T) {
	env := newTestEnv(t)
	env.seedWallet(t, "comp_1", 100000)

	const attempts = 5
	var wg sync.WaitGroup
	results := make([]*ports.MutationResult, attempts)
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.walletSvc.Debit(context.Background(), ports.MutationRequest{
				CompanyID:      "comp_1",
				Amount:         30000,
				Reason:         "shipping_cost",
				Actor:          "user:ops@acme.test",
				IdempotencyKey: "ship-order-42",
			})
		}(i)
	}
	wg.Wait()

	var firstTxID string
	duplicates := 0
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, int64(70000), results[i].NewBalance)
		if firstTxID == "" {
			firstTxID = results[i].TransactionID.String()
		} else {
			assert.Equal(t, firstTxID, results[i].TransactionID.String())
		}
		if results[i].Duplicate {
			duplicates++
		}
	}
	assert.Equal(t, attempts-1, duplicates)
	assert.Equal(t, 2, env.txRepo.count("comp_1")) // seed + one debit

	info, err := env.walletSvc.GetBalance(context.Background(), "comp_1")
	require.NoError(t, err)
	assert.Equal(t, int64(70000), info.Balance)
}

// Mutations on different companies do not serialize on each other's
// locks and never cross balances.
func TestConcurrentCompanies_Independent(t *testing.T) {
	env := newTestEnv(t)

	const companies = 5
	var wg sync.WaitGroup
	for i := 0; i < companies; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			companyID := fmt.Sprintf("comp_%d", i)
			ctx := context.Background()
			_, err := env.walletSvc.Credit(ctx, ports.MutationRequest{
				CompanyID: companyID,
				Amount:    int64(10000 * (i + 1)),
				Reason:    "recharge",
				Actor:     "test:seed",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < companies; i++ {
		info, err := env.walletSvc.GetBalance(context.Background(), fmt.Sprintf("comp_%d", i))
		require.NoError(t, err)
		assert.Equal(t, int64(10000*(i+1)), info.Balance)
	}
}
