// ratelimit.go -- Redis fixed-window rate limiter with lockout.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter counts attempts per key in Redis.
// Counter: ratelimit:<key>, expires after policy.Window.
// Lockout flag: ratelimit:lock:<key>, set once the counter passes MaxAttempts.
type RedisRateLimiter struct {
	rdb *redis.Client
}

// NewRedisRateLimiter wraps an existing client. Caller owns the client.
func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb}
}

// Allow records one attempt for key and reports whether it is within policy.
// Returns ErrRateLimitExceeded while locked out; other errors are Redis failures.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string, policy RateLimit) error {
	lockKey := "ratelimit:lock:" + key
	countKey := "ratelimit:" + key

	locked, err := l.rdb.Exists(ctx, lockKey).Result()
	if err != nil {
		return fmt.Errorf("checking lockout: %w", err)
	}
	if locked > 0 {
		return ErrRateLimitExceeded
	}

	// INCR + EXPIRE NX in one transaction; EXPIRE NX only arms the window on first hit.
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, countKey)
	pipe.ExpireNX(ctx, countKey, policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}

	if incr.Val() > int64(policy.MaxAttempts) {
		pipe := l.rdb.TxPipeline()
		pipe.Set(ctx, lockKey, 1, policy.LockoutTTL)
		pipe.Del(ctx, countKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("setting lockout: %w", err)
		}
		return ErrRateLimitExceeded
	}
	return nil
}
