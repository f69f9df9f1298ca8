package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"shipcrowd-wallet/pkg/apperror"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*Lock, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	return NewLock(client, zerolog.Nop()), s
}

func TestLock_Acquire_EmptyStore(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	token, ok := lock.Acquire(ctx, "lock:wallet:C1", 30*time.Second)
	require.True(t, ok)
	assert.NotEmpty(t, token)
}

func TestLock_Acquire_AlreadyHeld(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	_, ok := lock.Acquire(ctx, "lock:wallet:C1", 30*time.Second)
	require.True(t, ok)

	_, ok = lock.Acquire(ctx, "lock:wallet:C1", 30*time.Second)
	assert.False(t, ok, "second acquire on a held lock must fail")
}

func TestLock_Acquire_StoreUnreachable(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lock := NewLock(client, zerolog.Nop())
	s.Close()

	// Store error and "held by someone else" look identical to callers.
	token, ok := lock.Acquire(context.Background(), "lock:wallet:C1", 30*time.Second)
	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestLock_Acquire_Concurrent(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	// Two callers race an empty lock store: exactly one wins.
	const callers = 2
	var wg sync.WaitGroup
	results := make([]bool, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, results[i] = lock.Acquire(ctx, "lock:wallet:C1", 30*time.Second)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one caller must receive a token")
}

func TestLock_Release_OwnToken(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	token, ok := lock.Acquire(ctx, "lock:wallet:C1", 30*time.Second)
	require.True(t, ok)

	assert.True(t, lock.Release(ctx, "lock:wallet:C1", token))
	assert.False(t, lock.IsLocked(ctx, "lock:wallet:C1"))

	// Released lock is acquirable again.
	_, ok = lock.Acquire(ctx, "lock:wallet:C1", 30*time.Second)
	assert.True(t, ok)
}

func TestLock_Release_ForeignToken(t *testing.T) {
	lock, s := newTestLock(t)
	ctx := context.Background()

	// Holder A acquires, its TTL expires, holder B acquires.
	tokenA, ok := lock.Acquire(ctx, "lock:wallet:C1", 1*time.Second)
	require.True(t, ok)

	s.FastForward(2 * time.Second)

	tokenB, ok := lock.Acquire(ctx, "lock:wallet:C1", 30*time.Second)
	require.True(t, ok)
	require.NotEqual(t, tokenA, tokenB)

	// A's late release must not remove B's lock.
	assert.False(t, lock.Release(ctx, "lock:wallet:C1", tokenA))
	assert.True(t, lock.IsLocked(ctx, "lock:wallet:C1"))

	// B's release still works.
	assert.True(t, lock.Release(ctx, "lock:wallet:C1", tokenB))
}

func TestLock_TTLExpiry(t *testing.T) {
	lock, s := newTestLock(t)
	ctx := context.Background()

	_, ok := lock.Acquire(ctx, "lock:wallet:C1", 1*time.Second)
	require.True(t, ok)
	assert.True(t, lock.IsLocked(ctx, "lock:wallet:C1"))

	s.FastForward(2 * time.Second)

	// Crashed holder's lock self-heals.
	assert.False(t, lock.IsLocked(ctx, "lock:wallet:C1"))
	_, ok = lock.Acquire(ctx, "lock:wallet:C1", 30*time.Second)
	assert.True(t, ok)
}

func TestLock_WithLock_RunsFn(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	ran := false
	err := lock.WithLock(ctx, "lock:wallet:C1", 30*time.Second, time.Second, func(ctx context.Context) error {
		ran = true
		// The lock is held while fn runs.
		assert.True(t, lock.IsLocked(ctx, "lock:wallet:C1"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// Released after fn returns.
	assert.False(t, lock.IsLocked(ctx, "lock:wallet:C1"))
}

func TestLock_WithLock_ReleasesOnError(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	wantErr := assert.AnError
	err := lock.WithLock(ctx, "lock:wallet:C1", 30*time.Second, time.Second, func(ctx context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, lock.IsLocked(ctx, "lock:wallet:C1"), "lock must be released when fn fails")
}

func TestLock_WithLock_Timeout(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	_, ok := lock.Acquire(ctx, "lock:wallet:C1", 30*time.Second)
	require.True(t, ok)

	err := lock.WithLock(ctx, "lock:wallet:C1", 30*time.Second, 150*time.Millisecond, func(ctx context.Context) error {
		t.Fatal("fn must not run when the lock was never acquired")
		return nil
	})
	require.Error(t, err)
	assert.True(t, apperror.IsLockNotAcquired(err))
}

func TestLock_TTLDiagnostic(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	// Missing key.
	assert.Equal(t, time.Duration(-1), lock.TTL(ctx, "lock:wallet:none"))

	_, ok := lock.Acquire(ctx, "lock:wallet:C1", 30*time.Second)
	require.True(t, ok)

	ttl := lock.TTL(ctx, "lock:wallet:C1")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 30*time.Second)
}

func TestLock_Diagnostics_StoreUnreachable(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lock := NewLock(client, zerolog.Nop())
	s.Close()

	ctx := context.Background()
	assert.False(t, lock.IsLocked(ctx, "lock:wallet:C1"))
	assert.Equal(t, time.Duration(-1), lock.TTL(ctx, "lock:wallet:C1"))
}
