package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MGallo-Code/aadhaar-verify/internal/oauth"
	"github.com/MGallo-Code/aadhaar-verify/internal/store"
)

func callbackQuery(code, state string) url.Values {
	q := url.Values{}
	if code != "" {
		q.Set("code", code)
	}
	if state != "" {
		q.Set("state", state)
	}
	return q
}

// decodeDataParam returns the ?data= JSON of a Location header as a generic map.
func decodeDataParam(t *testing.T, location string) map[string]any {
	t.Helper()
	u, err := url.Parse(location)
	if err != nil {
		t.Fatalf("parsing Location: %v", err)
	}
	raw := u.Query().Get("data")
	if raw == "" {
		t.Fatalf("expected data param in %q", location)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		t.Fatalf("decoding data param %q: %v", raw, err)
	}
	return data
}

// --- Success paths ---

func TestCallback_AgentSelfCarriesPayload(t *testing.T) {
	f := newFixture(t)
	state := f.begin(t, RoleAgentSelf, "123456789012")

	w := f.callback(t, callbackQuery("auth-code", state))

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://self.example.com/Digilocker?data=") {
		t.Fatalf("Location: expected self-agent destination, got %q", loc)
	}

	data := decodeDataParam(t, loc)
	want := map[string]any{
		"digilocker_id": "D1",
		"name":          "A",
		"dob":           "01-01-1990",
		"gender":        "M",
		"aadhar_number": "123456789012",
		"props":         float64(2),
	}
	if len(data) != len(want) {
		t.Errorf("payload: expected exactly %d keys, got %v", len(want), data)
	}
	for k, v := range want {
		if data[k] != v {
			t.Errorf("payload[%s]: expected %v, got %v", k, v, data[k])
		}
	}
}

func TestCallback_AgentTMCarriesPayload(t *testing.T) {
	f := newFixture(t)
	state := f.begin(t, RoleAgentTM, "987654321098")

	w := f.callback(t, callbackQuery("auth-code", state))

	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://tm-agent.example.com/Digilocker?data=") {
		t.Fatalf("Location: expected tm-agent destination, got %q", loc)
	}
	if got := decodeDataParam(t, loc)["aadhar_number"]; got != "987654321098" {
		t.Errorf("aadhar_number: expected subject from attempt, got %v", got)
	}
}

func TestCallback_DistributorHasNoPayload(t *testing.T) {
	f := newFixture(t)
	// Upstream content must not matter for ds.
	f.provider.identity = &oauth.Identity{DigiLockerID: "X", Name: "Someone Else", Extra: map[string]any{"scope": "files.issueddocs"}}
	state := f.begin(t, RoleDistributor, "123456789012")

	w := f.callback(t, callbackQuery("auth-code", state))

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "https://ds.example.com/done" {
		t.Errorf("Location: expected bare distributor destination, got %q", loc)
	}
}

func TestCallback_TeamMemberHasNoPayload(t *testing.T) {
	f := newFixture(t)
	state := f.begin(t, RoleTeamMember, "")

	w := f.callback(t, callbackQuery("auth-code", state))

	if loc := w.Header().Get("Location"); loc != "https://tm.example.com/done" {
		t.Errorf("Location: expected bare tm destination, got %q", loc)
	}
}

func TestCallback_PersistsRecordWithRole(t *testing.T) {
	f := newFixture(t)
	state := f.begin(t, RoleAgentSelf, "123456789012")
	verifier := f.attempts.Attempts[state].CodeVerifier

	f.callback(t, callbackQuery("auth-code", state))

	if f.provider.callCount() != 1 {
		t.Fatalf("expected 1 exchange, got %d", f.provider.callCount())
	}
	if f.provider.codes[0] != "auth-code" || f.provider.verifiers[0] != verifier {
		t.Errorf("exchange: expected code and stored verifier, got %q/%q", f.provider.codes[0], f.provider.verifiers[0])
	}
	if f.records.RecordCount() != 1 {
		t.Fatalf("expected 1 record, got %d", f.records.RecordCount())
	}

	rec := f.records.Records[0]
	if rec.UserRole != "agent_self" || rec.DigiLockerID != "D1" || rec.Provider != "digilocker" {
		t.Errorf("record: unexpected role/id/provider %q/%q/%q", rec.UserRole, rec.DigiLockerID, rec.Provider)
	}
	if rec.ID.IsNil() {
		t.Error("expected record ID set")
	}
	if strings.Contains(string(rec.Payload), "secret-access-token") {
		t.Error("access token must not be persisted")
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["reference_key"] != "ref-1" {
		t.Errorf("payload: expected extra fields kept, got %v", payload)
	}

	if payload["user_type"] != "agent_self" {
		t.Errorf("payload user_type: expected agent_self, got %v", payload["user_type"])
	}

	// f.begin skips AuthorizationURL, so only the callback's own audit is written.
	actions := f.records.AuditActions()
	if len(actions) != 1 || actions[0] != auditVerified {
		t.Errorf("audits: expected only verified, got %v", actions)
	}
}

func TestCallback_AuditTrailFromStart(t *testing.T) {
	f := newFixture(t)
	authURL, err := f.h.AuthorizationURL(context.Background(), RequestMeta{}, RoleAgentSelf, "123456789012")
	if err != nil {
		t.Fatalf("AuthorizationURL failed: %v", err)
	}
	u, _ := url.Parse(authURL)

	f.callback(t, callbackQuery("auth-code", u.Query().Get("state")))

	actions := f.records.AuditActions()
	if len(actions) != 2 || actions[0] != auditAuthorizationStarted || actions[1] != auditVerified {
		t.Errorf("audits: expected started then verified, got %v", actions)
	}
}

func TestCallback_NilExtraPersistsUserTypeOnly(t *testing.T) {
	f := newFixture(t)
	f.provider.identity = &oauth.Identity{DigiLockerID: "D2"}
	state := f.begin(t, RoleDistributor, "")

	f.callback(t, callbackQuery("auth-code", state))

	if f.records.RecordCount() != 1 {
		t.Fatalf("expected 1 record, got %d", f.records.RecordCount())
	}
	if got := string(f.records.Records[0].Payload); got != `{"user_type":"ds"}` {
		t.Errorf("payload: expected only user_type, got %q", got)
	}
}

func TestCallback_MissingProviderFieldsAreNull(t *testing.T) {
	f := newFixture(t)
	f.provider.identity = &oauth.Identity{DigiLockerID: "D1", Name: "A"}
	state := f.begin(t, RoleAgentSelf, "")

	w := f.callback(t, callbackQuery("auth-code", state))

	data := decodeDataParam(t, w.Header().Get("Location"))
	for _, k := range []string{"dob", "gender", "aadhar_number"} {
		v, ok := data[k]
		if !ok {
			t.Errorf("payload: expected key %s present", k)
		}
		if v != nil {
			t.Errorf("payload[%s]: expected null, got %v", k, v)
		}
	}
	if data["name"] != "A" {
		t.Errorf("payload name: expected A, got %v", data["name"])
	}
}

// --- Rejections ---

func TestCallback_UnknownState(t *testing.T) {
	f := newFixture(t)

	w := f.callback(t, callbackQuery("auth-code", "never-issued"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w.Body.String() != invalidStateMessage {
		t.Errorf("body: expected %q, got %q", invalidStateMessage, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type: expected text/plain, got %q", ct)
	}
	if f.provider.callCount() != 0 {
		t.Error("expected no upstream call")
	}
	if f.records.RecordCount() != 0 {
		t.Error("expected no storage write")
	}
}

func TestCallback_MissingState(t *testing.T) {
	f := newFixture(t)

	w := f.callback(t, callbackQuery("auth-code", ""))

	if w.Code != http.StatusBadRequest || w.Body.String() != invalidStateMessage {
		t.Fatalf("expected 400 %q, got %d %q", invalidStateMessage, w.Code, w.Body.String())
	}
	if f.provider.callCount() != 0 {
		t.Error("expected no upstream call")
	}
}

func TestCallback_MissingCode(t *testing.T) {
	f := newFixture(t)
	state := f.begin(t, RoleAgentSelf, "123456789012")

	w := f.callback(t, callbackQuery("", state))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w.Body.String() != missingCodeMessage {
		t.Errorf("body: expected %q, got %q", missingCodeMessage, w.Body.String())
	}
	if f.provider.callCount() != 0 {
		t.Error("expected no upstream call")
	}
}

func TestCallback_ProviderDeniedConsent(t *testing.T) {
	f := newFixture(t)
	state := f.begin(t, RoleAgentSelf, "123456789012")
	q := callbackQuery("", state)
	q.Set("error", "access_denied")
	q.Set("error_description", "user denied")

	w := f.callback(t, q)

	if w.Code != http.StatusBadRequest || w.Body.String() != missingCodeMessage {
		t.Fatalf("expected 400 %q, got %d %q", missingCodeMessage, w.Code, w.Body.String())
	}
}

func TestCallback_ReplayedState(t *testing.T) {
	f := newFixture(t)
	state := f.begin(t, RoleAgentSelf, "123456789012")

	if w := f.callback(t, callbackQuery("auth-code", state)); w.Code != http.StatusFound {
		t.Fatalf("first callback: expected 302, got %d", w.Code)
	}
	w := f.callback(t, callbackQuery("auth-code", state))

	if w.Code != http.StatusBadRequest || w.Body.String() != invalidStateMessage {
		t.Fatalf("replay: expected 400 %q, got %d %q", invalidStateMessage, w.Code, w.Body.String())
	}
	if f.provider.callCount() != 1 {
		t.Errorf("expected exactly 1 exchange, got %d", f.provider.callCount())
	}
}

func TestCallback_ExpiredState(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.h.Registry.Now = func() time.Time { return now }
	state := f.begin(t, RoleAgentSelf, "123456789012")

	now = now.Add(2 * time.Minute)
	w := f.callback(t, callbackQuery("auth-code", state))

	if w.Code != http.StatusBadRequest || w.Body.String() != invalidStateMessage {
		t.Fatalf("expected 400 %q, got %d %q", invalidStateMessage, w.Code, w.Body.String())
	}
	if f.provider.callCount() != 0 {
		t.Error("expected no upstream call")
	}
}

// --- Failures after state validation ---

func TestCallback_UpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.exchangeErr = fmt.Errorf("%w: status 400: invalid_grant", oauth.ErrExchange)
	state := f.begin(t, RoleAgentSelf, "123456789012")

	w := f.callback(t, callbackQuery("auth-code", state))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if msg := decodeError(t, w); strings.Contains(msg, "invalid_grant") {
		t.Errorf("upstream body must not reach the client, got %q", msg)
	}
	if f.records.RecordCount() != 0 {
		t.Error("expected no storage write")
	}
	actions := f.records.AuditActions()
	if actions[len(actions)-1] != auditExchangeFailed {
		t.Errorf("expected exchange_failed audit, got %v", actions)
	}
}

func TestCallback_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.records.InsertErr = errors.New("connection reset")
	state := f.begin(t, RoleAgentSelf, "123456789012")

	w := f.callback(t, callbackQuery("auth-code", state))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if w.Header().Get("Location") != "" {
		t.Error("expected no redirect after storage failure")
	}
	if f.provider.callCount() != 1 {
		t.Errorf("expected no retry against provider, got %d exchanges", f.provider.callCount())
	}
	actions := f.records.AuditActions()
	if actions[len(actions)-1] != auditPersistFailed {
		t.Errorf("expected record_persist_failed audit, got %v", actions)
	}
}

func TestCallback_MissingDestination(t *testing.T) {
	f := newFixture(t)
	delete(f.h.Destinations, RoleTeamMember)
	state := f.begin(t, RoleTeamMember, "")

	w := f.callback(t, callbackQuery("auth-code", state))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if f.records.RecordCount() != 1 {
		t.Error("expected record persisted before dispatch")
	}
}

func TestCallback_CorruptStoredRole(t *testing.T) {
	f := newFixture(t)
	f.attempts.Attempts["forged"] = store.Attempt{
		Role:         "admin",
		CodeVerifier: "v",
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(time.Minute),
	}

	w := f.callback(t, callbackQuery("auth-code", "forged"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if f.provider.callCount() != 0 {
		t.Error("expected no upstream call for inconsistent attempt")
	}
}

func TestCallback_RegistryOutage(t *testing.T) {
	f := newFixture(t)
	f.attempts.ConsumeErr = errors.New("redis down")

	w := f.callback(t, callbackQuery("auth-code", "some-state"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestCallback_AuditFailureDoesNotBlockRedirect(t *testing.T) {
	f := newFixture(t)
	state := f.begin(t, RoleDistributor, "")
	f.records.AuditErr = errors.New("audit table locked")

	w := f.callback(t, callbackQuery("auth-code", state))

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
}

func TestCompleteCallback_ExchangeSurvivesRequestCancellation(t *testing.T) {
	f := newFixture(t)
	state := f.begin(t, RoleDistributor, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest, err := f.h.completeCallback(ctx, RequestMeta{}, "auth-code", state)
	if err != nil {
		t.Fatalf("completeCallback failed: %v", err)
	}
	if dest != "https://ds.example.com/done" {
		t.Errorf("dest: expected distributor URL, got %q", dest)
	}
	if f.provider.ctxErr != nil {
		t.Errorf("exchange context: expected live context, got %v", f.provider.ctxErr)
	}
}

// --- destinationFor ---

func TestDestinationFor_PreservesExistingQuery(t *testing.T) {
	h := &VerifyHandler{Destinations: Destinations{RoleAgentSelf: "https://self.example.com/Digilocker?src=dl"}}

	dest, err := h.destinationFor(RoleAgentSelf, testIdentity(), "123456789012")
	if err != nil {
		t.Fatalf("destinationFor failed: %v", err)
	}
	u, _ := url.Parse(dest)
	if u.Query().Get("src") != "dl" {
		t.Errorf("expected existing query kept, got %q", dest)
	}
	if u.Query().Get("data") == "" {
		t.Errorf("expected data param, got %q", dest)
	}
}
