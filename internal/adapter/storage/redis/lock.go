package redis

import (
	"context"
	"net/http"
	"time"

	"shipcrowd-wallet/internal/metrics"
	"shipcrowd-wallet/pkg/apperror"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the lock key only while it still holds the
// caller's token. Runs server-side as one script so there is no window
// between the read and the delete in which the lock could expire and be
// re-acquired by another holder.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// retry interval for WithLock acquisition attempts
const acquireRetryInterval = 50 * time.Millisecond

// Lock implements ports.Locker using Redis SET NX PX. The TTL bounds the
// blast radius of a crashed holder; the random token prevents a slow
// caller from releasing a lock it no longer owns. No fairness guarantee.
type Lock struct {
	client *goredis.Client
	log    zerolog.Logger
}

// NewLock creates a Redis-backed distributed lock.
func NewLock(client *goredis.Client, log zerolog.Logger) *Lock {
	return &Lock{client: client, log: log}
}

// Acquire attempts to set the lock key to a fresh random token, succeeding
// only if the key does not already exist. ok is false when another holder
// owns the lock and also when Redis is unreachable: callers must treat
// both identically (fail closed, no lock obtained).
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("lock acquire failed, treating as not acquired")
		return "", false
	}
	if !ok {
		return "", false
	}
	return token, true
}

// Release deletes the key only if its current value equals token.
// Returns whether the caller's own lock was actually removed; a lock
// that already expired (and was possibly re-acquired) is left alone.
func (l *Lock) Release(ctx context.Context, key, token string) bool {
	deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("lock release failed")
		return false
	}
	return deleted == 1
}

// WithLock retries Acquire until wait elapses, then runs fn while holding
// the lock. Release is attempted on every exit path of fn, including
// panics; the release itself is best-effort (nothing to release if the
// TTL already expired).
func (l *Lock) WithLock(ctx context.Context, key string, ttl, wait time.Duration, fn func(ctx context.Context) error) error {
	start := time.Now()
	deadline := start.Add(wait)

	var token string
	for {
		t, ok := l.Acquire(ctx, key, ttl)
		if ok {
			token = t
			break
		}
		if time.Now().After(deadline) {
			return apperror.ErrLockNotAcquired(key)
		}
		select {
		case <-ctx.Done():
			return apperror.Wrap(apperror.CodeLockNotAcquired, "Lock wait cancelled", http.StatusServiceUnavailable, ctx.Err())
		case <-time.After(acquireRetryInterval):
		}
	}
	metrics.LockWaitDuration.Observe(time.Since(start).Seconds())

	defer l.Release(ctx, key, token)
	return fn(ctx)
}

// IsLocked reports whether the key is currently held. Degrades to false
// on store error rather than failing.
func (l *Lock) IsLocked(ctx context.Context, key string) bool {
	n, err := l.client.Exists(ctx, key).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// TTL returns the remaining lifetime of the lock, or -1 if the key does
// not exist or the store errored.
func (l *Lock) TTL(ctx context.Context, key string) time.Duration {
	d, err := l.client.PTTL(ctx, key).Result()
	if err != nil || d < 0 {
		return -1
	}
	return d
}
