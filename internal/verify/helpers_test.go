// helpers_test.go -- shared fixtures for verify handler tests.
package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/MGallo-Code/aadhaar-verify/internal/oauth"
	"github.com/MGallo-Code/aadhaar-verify/internal/store"
	"github.com/MGallo-Code/aadhaar-verify/internal/testutil"
)

// mockProvider implements oauth.Provider for tests and records exchange calls.
type mockProvider struct {
	identity    *oauth.Identity
	exchangeErr error

	mu        sync.Mutex
	calls     int
	codes     []string
	verifiers []string
	// ctxErr captures ctx.Err() as seen by Exchange.
	ctxErr error
}

func (m *mockProvider) Name() string { return "digilocker" }

func (m *mockProvider) AuthCodeURL(state, codeChallenge string) string {
	v := url.Values{}
	v.Set("state", state)
	v.Set("code_challenge", codeChallenge)
	v.Set("code_challenge_method", "S256")
	return "https://provider.test/authorize?" + v.Encode()
}

func (m *mockProvider) Exchange(ctx context.Context, code, verifier string) (*oauth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.codes = append(m.codes, code)
	m.verifiers = append(m.verifiers, verifier)
	m.ctxErr = ctx.Err()
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	return m.identity, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// testIdentity mirrors the DigiLocker response used across callback tests.
func testIdentity() *oauth.Identity {
	return &oauth.Identity{
		DigiLockerID: "D1",
		Name:         "A",
		DOB:          "01-01-1990",
		Gender:       "M",
		AccessToken:  "secret-access-token",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		Extra:        map[string]any{"eaadhaar": "Y", "reference_key": "ref-1"},
	}
}

// testDestinations returns destinations for all four roles.
func testDestinations() Destinations {
	return Destinations{
		RoleAgentSelf:   "https://self.example.com/Digilocker",
		RoleAgentTM:     "https://tm-agent.example.com/Digilocker",
		RoleDistributor: "https://ds.example.com/done",
		RoleTeamMember:  "https://tm.example.com/done",
	}
}

// testFixture bundles a handler with its mocks.
type testFixture struct {
	h        *VerifyHandler
	attempts *testutil.MockAttemptStore
	records  *testutil.MockRecordStore
	rl       *testutil.MockRateLimiter
	provider *mockProvider
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		attempts: testutil.NewMockAttemptStore(),
		records:  &testutil.MockRecordStore{},
		rl:       &testutil.MockRateLimiter{},
		provider: &mockProvider{identity: testIdentity()},
	}
	f.h = &VerifyHandler{
		Registry:     NewRegistry(f.attempts, time.Minute),
		PS:           f.records,
		RL:           f.rl,
		Provider:     f.provider,
		Destinations: testDestinations(),
		StartPolicy:  store.RateLimit{MaxAttempts: 20, Window: time.Minute, LockoutTTL: 5 * time.Minute},
	}
	return f
}

// begin mints an attempt directly through the registry and returns its state.
func (f *testFixture) begin(t *testing.T, role Role, subject string) string {
	t.Helper()
	ticket, err := f.h.Registry.Begin(context.Background(), role, subject)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return ticket.State
}

// callback runs GET /callback with the given query and returns the recorder.
func (f *testFixture) callback(t *testing.T, query url.Values) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/callback?"+query.Encode(), nil)
	r.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()
	f.h.Callback(w, r)
	return w
}
