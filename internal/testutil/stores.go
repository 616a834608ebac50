// stores.go
//
// Shared mock implementations of verify.AttemptStore, verify.RecordStore and verify.RateLimiter.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MGallo-Code/aadhaar-verify/internal/store"
)

// MockAttemptStore implements verify.AttemptStore for tests.
//
// Always stateful: attempts live in a map keyed by state, and consume deletes, like Redis GETDEL.
// TTL is recorded but not enforced; tests drive expiry through Attempt.ExpiresAt.
// Use *Err fields to inject errors for specific operations.
type MockAttemptStore struct {
	// Error injection, zero value means no error
	SaveErr    error
	ConsumeErr error
	HealthErr  error

	Attempts map[string]store.Attempt
	TTLs     map[string]time.Duration
	Saves    int

	mu sync.Mutex
}

// NewMockAttemptStore returns an empty MockAttemptStore.
func NewMockAttemptStore() *MockAttemptStore {
	return &MockAttemptStore{
		Attempts: make(map[string]store.Attempt),
		TTLs:     make(map[string]time.Duration),
	}
}

func (m *MockAttemptStore) SaveAttempt(_ context.Context, state string, attempt store.Attempt, ttl time.Duration) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Attempts == nil {
		m.Attempts = make(map[string]store.Attempt)
		m.TTLs = make(map[string]time.Duration)
	}
	if _, exists := m.Attempts[state]; exists {
		return errors.New("state already in use")
	}
	m.Attempts[state] = attempt
	m.TTLs[state] = ttl
	m.Saves++
	return nil
}

func (m *MockAttemptStore) ConsumeAttempt(_ context.Context, state string) (*store.Attempt, error) {
	if m.ConsumeErr != nil {
		return nil, m.ConsumeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Attempts[state]
	if !ok {
		return nil, store.ErrAttemptNotFound
	}
	delete(m.Attempts, state)
	return &a, nil
}

func (m *MockAttemptStore) CheckHealth(_ context.Context) error {
	return m.HealthErr
}

// SaveCount returns the number of successful saves.
func (m *MockAttemptStore) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Saves
}

// MockRecordStore implements verify.RecordStore for tests.
// Records and Audits capture every successful write in order.
type MockRecordStore struct {
	InsertErr error
	AuditErr  error
	HealthErr error

	Records []store.IdentityRecord
	Audits  []store.AuditEntry

	mu sync.Mutex
}

func (m *MockRecordStore) InsertIdentityRecord(_ context.Context, rec store.IdentityRecord) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, rec)
	return nil
}

func (m *MockRecordStore) WriteAuditLog(_ context.Context, e store.AuditEntry) error {
	if m.AuditErr != nil {
		return m.AuditErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Audits = append(m.Audits, e)
	return nil
}

func (m *MockRecordStore) CheckHealth(_ context.Context) error {
	return m.HealthErr
}

// RecordCount returns the number of stored identity records.
func (m *MockRecordStore) RecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Records)
}

// AuditActions returns recorded audit actions in write order.
func (m *MockRecordStore) AuditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, len(m.Audits))
	for i, a := range m.Audits {
		actions[i] = a.Action
	}
	return actions
}

// MockRateLimiter implements verify.RateLimiter for tests.
// AllowErr is returned from every call; Keys records the keys checked.
type MockRateLimiter struct {
	AllowErr error
	Keys     []string

	mu sync.Mutex
}

func (m *MockRateLimiter) Allow(_ context.Context, key string, _ store.RateLimit) error {
	m.mu.Lock()
	m.Keys = append(m.Keys, key)
	m.mu.Unlock()
	return m.AllowErr
}
