// callback.go -- DigiLocker callback: resolve state, exchange code, persist, redirect.
//
// Stages: AwaitingCode -> StateValidated -> CodeExchanged -> PayloadPersisted -> Redirected.
// Any stage can fail; the failure is terminal for the attempt because the state
// token is consumed on first resolution.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/MGallo-Code/aadhaar-verify/internal/oauth"
	"github.com/MGallo-Code/aadhaar-verify/internal/store"
	"github.com/gofrs/uuid/v5"
)

// Plain-text callback rejections; these render directly in the user's browser.
const (
	invalidStateMessage = "Invalid state code"
	missingCodeMessage  = "Authorization code not received."
)

// destinationProps is the fixed props value the agent front-ends expect.
const destinationProps = 2

// redirectPayload is the JSON carried in ?data= for agent destinations. Field order is wire order.
// Fields the provider did not return are sent as null.
type redirectPayload struct {
	DigiLockerID *string `json:"digilocker_id"`
	Name         *string `json:"name"`
	DOB          *string `json:"dob"`
	Gender       *string `json:"gender"`
	AadharNumber *string `json:"aadhar_number"`
	Props        int     `json:"props"`
}

// Callback handles GET /callback?code=&state=
// On success answers 302 to the role's destination.
func (h *VerifyHandler) Callback(w http.ResponseWriter, r *http.Request) {
	m := requestMeta(r)
	q := r.URL.Query()

	// DigiLocker reports consent denial as ?error=access_denied with no code.
	if providerErr := q.Get("error"); providerErr != "" {
		logWarn(m, "provider returned error on callback",
			"provider_error", providerErr, "error_description", q.Get("error_description"))
	}

	dest, err := h.completeCallback(r.Context(), m, q.Get("code"), q.Get("state"))
	if err != nil {
		h.writeCallbackError(r.Context(), w, m, err)
		return
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// completeCallback runs the callback stages and returns the redirect destination.
// Errors are classified with the package sentinels.
func (h *VerifyHandler) completeCallback(ctx context.Context, m RequestMeta, code, state string) (string, error) {
	// AwaitingCode -> StateValidated
	attempt, err := h.Registry.Resolve(ctx, state)
	if err != nil {
		return "", err
	}
	role := Role(attempt.Role)
	if !role.Valid() {
		return "", fmt.Errorf("%w: stored role %q", ErrInternalInconsistency, attempt.Role)
	}
	if code == "" {
		return "", errMissingCode
	}
	logDebug(m, "callback state validated", "role", role, "subject", maskSubject(attempt.SubjectIdentifier))

	// StateValidated -> CodeExchanged
	// Detached from the request; exchange and insert share one bounded context.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.exchangeTimeout())
	defer cancel()

	identity, err := h.Provider.Exchange(opCtx, code, attempt.CodeVerifier)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	// CodeExchanged -> PayloadPersisted
	rec, err := newIdentityRecord(h.Provider.Name(), role, identity, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := h.PS.InsertIdentityRecord(opCtx, rec); err != nil {
		return "", fmt.Errorf("%w: record %s: %w", ErrStorage, rec.ID, err)
	}

	// PayloadPersisted -> Redirected
	dest, err := h.destinationFor(role, identity, attempt.SubjectIdentifier)
	if err != nil {
		return "", err
	}

	logInfo(m, "aadhaar verification completed",
		"role", role, "record_id", rec.ID, "subject", maskSubject(attempt.SubjectIdentifier))
	h.auditLog(ctx, m, auditVerified, marshalMeta(struct {
		Role     Role   `json:"role"`
		RecordID string `json:"record_id"`
		Subject  string `json:"subject"`
	}{role, rec.ID.String(), maskSubject(attempt.SubjectIdentifier)}))

	return dest, nil
}

// newIdentityRecord builds the append-only row: the provider response minus tokens,
// plus user_type. The access token is not stored.
func newIdentityRecord(provider string, role Role, id *oauth.Identity, receivedAt time.Time) (store.IdentityRecord, error) {
	recID, err := uuid.NewV7()
	if err != nil {
		return store.IdentityRecord{}, fmt.Errorf("generating record id: %w", err)
	}

	doc := make(map[string]any, len(id.Extra)+1)
	for k, v := range id.Extra {
		doc[k] = v
	}
	doc["user_type"] = string(role)
	payload, err := json.Marshal(doc)
	if err != nil {
		return store.IdentityRecord{}, fmt.Errorf("encoding payload: %w", err)
	}

	return store.IdentityRecord{
		ID:           recID,
		Provider:     provider,
		DigiLockerID: id.DigiLockerID,
		Name:         id.Name,
		DOB:          id.DOB,
		Gender:       id.Gender,
		UserRole:     string(role),
		TokenType:    id.TokenType,
		ExpiresIn:    id.ExpiresIn,
		Payload:      payload,
		ReceivedAt:   receivedAt,
	}, nil
}

// destinationFor maps role to its destination URL. Agent roles get the identity
// payload as ?data=<JSON>; ds and tm get the bare URL.
func (h *VerifyHandler) destinationFor(role Role, id *oauth.Identity, subject string) (string, error) {
	dest := h.Destinations[role]
	if dest == "" {
		return "", fmt.Errorf("%w: no destination configured for role %q", ErrInternalInconsistency, role)
	}
	if !role.carriesPayload() {
		return dest, nil
	}

	data, err := json.Marshal(redirectPayload{
		DigiLockerID: strOrNil(id.DigiLockerID),
		Name:         strOrNil(id.Name),
		DOB:          strOrNil(id.DOB),
		Gender:       strOrNil(id.Gender),
		AadharNumber: strOrNil(subject),
		Props:        destinationProps,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding redirect payload: %w", ErrInternalInconsistency, err)
	}

	u, err := url.Parse(dest)
	if err != nil {
		return "", fmt.Errorf("%w: destination for role %q: %w", ErrInternalInconsistency, role, err)
	}
	q := u.Query()
	q.Set("data", string(data))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// writeCallbackError maps a callback failure to its response, logging and auditing it.
func (h *VerifyHandler) writeCallbackError(ctx context.Context, w http.ResponseWriter, m RequestMeta, err error) {
	reason := func(r string) []byte {
		return marshalMeta(struct {
			Reason string `json:"reason"`
		}{r})
	}

	switch {
	case errors.Is(err, ErrAttemptExpiredOrUnknown):
		logWarn(m, "callback rejected", "reason", "invalid_state")
		h.auditLog(ctx, m, auditCallbackRejected, reason("invalid_state"))
		PlainText(w, http.StatusBadRequest, invalidStateMessage)

	case errors.Is(err, ErrValidation):
		logWarn(m, "callback rejected", "reason", "missing_code")
		h.auditLog(ctx, m, auditCallbackRejected, reason("missing_code"))
		PlainText(w, http.StatusBadRequest, missingCodeMessage)

	case errors.Is(err, ErrUpstream):
		logError(m, "digilocker token exchange failed", "error", err)
		h.auditLog(ctx, m, auditExchangeFailed, reason("upstream_error"))
		BadGateway(w, "identity provider unavailable, please restart verification")

	case errors.Is(err, ErrStorage):
		// The authorization code is spent; the user cannot retry this attempt.
		logError(m, "PRIORITY: verified identity could not be persisted", "error", err, "priority", true)
		h.auditLog(ctx, m, auditPersistFailed, reason("storage_error"))
		writeJSONError(w, http.StatusInternalServerError, "internal server error")

	default:
		h.auditLog(ctx, m, auditCallbackFailed, reason("internal_error"))
		InternalServerError(w, m, err)
	}
}
