// initiate.go -- Start of the DigiLocker flow: mint an attempt, build the consent URL.
package verify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MGallo-Code/aadhaar-verify/internal/store"
)

// aadhaarDigits is the length of an Aadhaar number.
const aadhaarDigits = 12

// AuthorizationURL mints a fresh attempt for (role, subject) and returns the provider
// consent URL carrying client_id, redirect_uri, state and the S256 code challenge.
// Unknown roles wrap ErrValidation and mint nothing.
func (h *VerifyHandler) AuthorizationURL(ctx context.Context, m RequestMeta, role Role, subject string) (string, error) {
	ticket, err := h.Registry.Begin(ctx, role, subject)
	if err != nil {
		return "", err
	}

	authURL := h.Provider.AuthCodeURL(ticket.State, ticket.CodeChallenge)

	logInfo(m, "authorization link created",
		"role", role, "subject", maskSubject(subject), "authorization_url", authURL)
	h.auditLog(ctx, m, auditAuthorizationStarted, marshalMeta(struct {
		Role      Role   `json:"role"`
		Subject   string `json:"subject"`
		ExpiresAt string `json:"expires_at"`
	}{role, maskSubject(subject), ticket.ExpiresAt.Format(time.RFC3339)}))

	return authURL, nil
}

// StartAuthorization handles POST /start-authorization?user_type=&aadhar_number=
// Returns 200 with the consent URL as a plain-text body, for front-ends that navigate themselves.
func (h *VerifyHandler) StartAuthorization(w http.ResponseWriter, r *http.Request) {
	authURL, ok := h.startAuthorization(w, r)
	if !ok {
		return
	}
	PlainText(w, http.StatusOK, authURL)
}

// StartAuthorizationRedirect handles GET /start-authorization/redirect -- same inputs,
// but answers 302 straight to the consent page.
func (h *VerifyHandler) StartAuthorizationRedirect(w http.ResponseWriter, r *http.Request) {
	authURL, ok := h.startAuthorization(w, r)
	if !ok {
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// startAuthorization validates input, applies the per-IP rate limit, and mints the URL.
// Writes the error response itself and returns ok=false on failure.
func (h *VerifyHandler) startAuthorization(w http.ResponseWriter, r *http.Request) (string, bool) {
	m := requestMeta(r)
	q := r.URL.Query()

	role, err := ParseRole(q.Get("user_type"))
	if err != nil {
		logWarn(m, "start authorization rejected", "reason", "invalid_user_type", "user_type", q.Get("user_type"))
		h.auditLog(r.Context(), m, auditAuthorizationRejected, marshalMeta(struct {
			Reason string `json:"reason"`
		}{"invalid_user_type"}))
		BadRequest(w, invalidRoleMessage)
		return "", false
	}

	subject := strings.TrimSpace(q.Get("aadhar_number"))
	if err := validateSubject(subject); err != nil {
		logWarn(m, "start authorization rejected", "reason", "invalid_aadhar_number")
		h.auditLog(r.Context(), m, auditAuthorizationRejected, marshalMeta(struct {
			Reason string `json:"reason"`
		}{"invalid_aadhar_number"}))
		BadRequest(w, "aadhar_number must be 12 digits")
		return "", false
	}

	if err := h.RL.Allow(r.Context(), "start:"+m.IP, h.StartPolicy); err != nil {
		if errors.Is(err, store.ErrRateLimitExceeded) {
			logWarn(m, "start authorization rate limited")
			TooManyRequests(w)
			return "", false
		}
		// Limiter outage must not block verification; log and continue.
		logError(m, "rate limiter unavailable", "error", err)
	}

	authURL, err := h.AuthorizationURL(r.Context(), m, role, subject)
	if err != nil {
		InternalServerError(w, m, err)
		return "", false
	}
	return authURL, true
}

// validateSubject accepts an empty value (not every role sends one) or exactly 12 digits.
func validateSubject(s string) error {
	if s == "" {
		return nil
	}
	if len(s) != aadhaarDigits {
		return fmt.Errorf("%w: aadhar_number length %d", ErrValidation, len(s))
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: aadhar_number not numeric", ErrValidation)
		}
	}
	return nil
}
