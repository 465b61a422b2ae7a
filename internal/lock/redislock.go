package lock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// release deletes the key only while it still holds our token, so a holder
// whose lease expired cannot drop a lock taken over by another replica.
var release = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

var (
	// ErrNotConfigured is returned when the locker has no redis client.
	ErrNotConfigured = errors.New("lock: redis client not configured")
	// ErrBusy is returned when ctx ends before the lock is acquired.
	ErrBusy = errors.New("lock: busy")
)

// Locker is a Redis lease lock serialising drawer transitions of one terminal
// across API replicas.
type Locker struct {
	R            redis.UniversalClient
	RetryBackoff time.Duration
	Prefix       string
}

// WithLock runs fn while holding the lease on key. The lease is released when
// fn returns, whatever its outcome. If ctx ends while waiting the error wraps
// both ErrBusy and the context error.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	key = l.Prefix + key
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer func() {
		_ = release.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
	}()
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s: %w", ErrBusy, key, ctx.Err())
			}
			return fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		// jitter keeps replicas retrying one terminal from stepping in lockstep
		wait := backoff + rand.N(backoff/2+1)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %w", ErrBusy, key, ctx.Err())
		case <-timer.C:
		}
	}
}
