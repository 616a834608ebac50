// registry.go -- State token registry.
//
// Every authorization attempt gets its own state token and PKCE pair. The verifier
// is stored with the role and subject under the state, so the callback never
// depends on process-wide values.
package verify

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/MGallo-Code/aadhaar-verify/internal/oauth"
	"github.com/MGallo-Code/aadhaar-verify/internal/store"
)

// DefaultAttemptTTL is how long a state token stays redeemable.
const DefaultAttemptTTL = 300 * time.Second

// Ticket is what Begin hands back: the public half of an attempt.
type Ticket struct {
	State         string
	CodeChallenge string
	ExpiresAt     time.Time
}

// Registry issues and resolves authorization attempts.
type Registry struct {
	Store AttemptStore
	TTL   time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewRegistry returns a Registry over s; ttl <= 0 means DefaultAttemptTTL.
func NewRegistry(s AttemptStore, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultAttemptTTL
	}
	return &Registry{Store: s, TTL: ttl}
}

func (g *Registry) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Begin validates role, mints a state token and PKCE pair, and stores
// {role, subject, verifier} under the state with the registry TTL.
func (g *Registry) Begin(ctx context.Context, role Role, subject string) (*Ticket, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown user type %q", ErrValidation, role)
	}

	state, err := newStateToken()
	if err != nil {
		return nil, err
	}
	verifier := oauth.GenerateVerifier()

	now := g.now().UTC()
	attempt := store.Attempt{
		Role:              string(role),
		SubjectIdentifier: subject,
		CodeVerifier:      verifier,
		CreatedAt:         now,
		ExpiresAt:         now.Add(g.TTL),
	}
	if err := g.Store.SaveAttempt(ctx, state, attempt, g.TTL); err != nil {
		return nil, fmt.Errorf("saving attempt: %w", err)
	}

	return &Ticket{
		State:         state,
		CodeChallenge: oauth.DeriveChallenge(verifier),
		ExpiresAt:     attempt.ExpiresAt,
	}, nil
}

// Resolve consumes the attempt for state. Single use: whatever the outcome, the
// entry is gone afterwards. Missing, consumed, or expired entries yield
// ErrAttemptExpiredOrUnknown.
func (g *Registry) Resolve(ctx context.Context, state string) (*store.Attempt, error) {
	if state == "" {
		return nil, ErrAttemptExpiredOrUnknown
	}

	a, err := g.Store.ConsumeAttempt(ctx, state)
	if err != nil {
		if errors.Is(err, store.ErrAttemptNotFound) {
			return nil, ErrAttemptExpiredOrUnknown
		}
		return nil, fmt.Errorf("resolving attempt: %w", err)
	}

	// Redis TTL normally evicts first; this covers clock skew and non-expiring stores.
	if !g.now().Before(a.ExpiresAt) {
		return nil, ErrAttemptExpiredOrUnknown
	}
	return a, nil
}

// newStateToken returns 256 bits from crypto/rand, base64url without padding.
func newStateToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating state with rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
