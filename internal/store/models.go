// models.go -- Shared domain types for the store package.
// Used by both Postgres (durable store) and Redis (ephemeral attempt store).
package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrAttemptNotFound is returned by ConsumeAttempt when no entry exists for the state:
// never issued, already consumed, or expired out of Redis.
var ErrAttemptNotFound = errors.New("attempt not found")

// ErrRateLimitExceeded is returned by Allow when the caller is locked out.
// Callers use errors.Is to distinguish rate limit rejections from Redis failures.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Attempt is the JSON shape stored in Redis for one authorization attempt, keyed by state.
// Written once at start-authorization, read-and-deleted at callback. Never updated.
// CodeVerifier is the PKCE secret; it never leaves this service except in the token call.
type Attempt struct {
	Role              string    `json:"role"`
	SubjectIdentifier string    `json:"subject_identifier"`
	CodeVerifier      string    `json:"code_verifier"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// IdentityRecord represents a row in the identity_records table.
// Append-only: inserted once per successful exchange, never updated.
// Payload holds the remaining non-secret provider fields as raw JSON.
type IdentityRecord struct {
	ID           uuid.UUID
	Provider     string
	DigiLockerID string
	Name         string
	DOB          string
	Gender       string
	UserRole     string
	TokenType    string
	ExpiresIn    int64
	Payload      []byte
	ReceivedAt   time.Time
}

// RateLimit defines the policy for a rate-limited action.
// All three fields required, zero values disable the respective behaviour.
type RateLimit struct {
	MaxAttempts int           // attempts allowed within Window before lockout
	Window      time.Duration // fixed window for attempt counting
	LockoutTTL  time.Duration // how long to block after MaxAttempts is hit
}

// AuditEntry represents a row in the audit_logs table.
// RequestID ties the entry to the request log line.
// Metadata holds optional event context as a raw JSON blob (e.g. role, reason).
type AuditEntry struct {
	Action    string
	RequestID *string
	IPAddress *string
	UserAgent *string
	Metadata  []byte
}
