// redis.go -- go-redis client for authorization attempts.
//
// Each attempt lives under attempt:<state> with a TTL equal to the attempt window.
// Consumption is a single GETDEL, so two concurrent callbacks for the same state
// cannot both succeed.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// attemptKeyPrefix namespaces attempt keys in a shared Redis.
const attemptKeyPrefix = "attempt:"

// NewRedisClient parses redisURL, connects, and pings.
// Returns a ready-to-use client shared by RedisStore and RedisRateLimiter.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// RedisStore wraps a Redis client for attempt storage.
// Safe for concurrent use.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client. Caller owns the client and closes it.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// SaveAttempt stores the attempt under its state with the given TTL.
// Uses SET NX so a (practically impossible) state collision fails instead of overwriting.
func (s *RedisStore) SaveAttempt(ctx context.Context, state string, attempt Attempt, ttl time.Duration) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshaling attempt: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, attemptKeyPrefix+state, raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("storing attempt: %w", err)
	}
	if !ok {
		return errors.New("storing attempt: state already in use")
	}
	return nil
}

// ConsumeAttempt atomically reads and deletes the attempt for state.
// Returns ErrAttemptNotFound if absent; a second call for the same state always misses.
func (s *RedisStore) ConsumeAttempt(ctx context.Context, state string) (*Attempt, error) {
	raw, err := s.rdb.GetDel(ctx, attemptKeyPrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("consuming attempt: %w", err)
	}

	var a Attempt
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("parsing attempt: %w", err)
	}
	return &a, nil
}

// CheckHealth pings Redis.
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}
