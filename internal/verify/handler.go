// handler.go -- Dependencies shared by the start-authorization and callback handlers.
package verify

import (
	"context"
	"time"

	"github.com/MGallo-Code/aadhaar-verify/internal/oauth"
	"github.com/MGallo-Code/aadhaar-verify/internal/store"
)

// AttemptStore defines ephemeral attempt storage needed by the registry.
// Satisfied by *store.RedisStore.
type AttemptStore interface {
	// SaveAttempt stores attempt under state, expiring after ttl.
	SaveAttempt(ctx context.Context, state string, attempt store.Attempt, ttl time.Duration) error

	// ConsumeAttempt atomically reads and deletes the attempt for state.
	// Returns store.ErrAttemptNotFound if absent.
	ConsumeAttempt(ctx context.Context, state string) (*store.Attempt, error)

	// CheckHealth reports whether the backing store is reachable.
	CheckHealth(ctx context.Context) error
}

// RecordStore defines durable storage needed by the handlers.
// Satisfied by *store.PostgresStore.
type RecordStore interface {
	// InsertIdentityRecord appends one identity record; there is no update path.
	InsertIdentityRecord(ctx context.Context, rec store.IdentityRecord) error

	// WriteAuditLog inserts one audit entry.
	WriteAuditLog(ctx context.Context, e store.AuditEntry) error

	CheckHealth(ctx context.Context) error
}

// RateLimiter checks and records rate limit state for a given key and policy.
// Satisfied by *store.RedisRateLimiter.
type RateLimiter interface {
	// Allow records an attempt; returns store.ErrRateLimitExceeded when locked out.
	Allow(ctx context.Context, key string, policy store.RateLimit) error
}

// DefaultExchangeTimeout bounds the token call plus the record insert after it.
const DefaultExchangeTimeout = 20 * time.Second

// VerifyHandler holds dependencies for the verification endpoints.
type VerifyHandler struct {
	Registry     *Registry
	PS           RecordStore
	RL           RateLimiter
	Provider     oauth.Provider
	Destinations Destinations

	// StartPolicy limits start-authorization calls per client IP.
	StartPolicy store.RateLimit
	// ExchangeTimeout <= 0 means DefaultExchangeTimeout.
	ExchangeTimeout time.Duration
}

func (h *VerifyHandler) exchangeTimeout() time.Duration {
	if h.ExchangeTimeout > 0 {
		return h.ExchangeTimeout
	}
	return DefaultExchangeTimeout
}
