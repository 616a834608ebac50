// provider.go -- OAuth provider interface and shared types.
package oauth

import (
	"context"
	"errors"
)

// ErrExchange wraps every failure of the server-to-server code exchange.
// Callers use errors.Is to map it to an upstream (502) response.
var ErrExchange = errors.New("oauth code exchange failed")

// Identity holds the identity payload returned alongside the access token.
// Fields are copied verbatim from the provider response; empty string means not provided.
type Identity struct {
	DigiLockerID string
	Name         string
	DOB          string // provider format, e.g. "01-01-1990"
	Gender       string

	// AccessToken is opaque and single-use from our side. Never log or persist it.
	AccessToken string
	TokenType   string
	ExpiresIn   int64

	// Extra holds every response field except access, refresh and ID tokens.
	Extra map[string]any
}

// Provider is an OAuth2 identity provider using the authorization-code flow.
// PKCE (RFC 7636) is required: callers pass the code_challenge to AuthCodeURL and the
// matching code_verifier to Exchange.
type Provider interface {
	// Name returns the provider identifier stored alongside records.
	Name() string

	// AuthCodeURL returns the redirect URL with state and PKCE code_challenge embedded.
	AuthCodeURL(state, codeChallenge string) string

	// Exchange trades the authorization code for the identity payload.
	// The code_verifier must match the code_challenge passed to AuthCodeURL.
	Exchange(ctx context.Context, code, codeVerifier string) (*Identity, error)
}
