// digilocker.go -- DigiLocker OAuth2 provider (authorization code + PKCE).
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// maxDiagnosticBody caps how much of an upstream error body ends up in logs.
const maxDiagnosticBody = 512

// maxTokenBody matches the read limit x/oauth2 applies to token responses.
const maxTokenBody = 1 << 20

// secretFields never leave Exchange: they are dropped from Identity.Extra.
var secretFields = map[string]bool{"access_token": true, "refresh_token": true, "id_token": true}

// DigiLockerProvider implements Provider against the DigiLocker public OAuth2 API.
// Client credentials travel in the form body (AuthStyleInParams), as DigiLocker expects.
type DigiLockerProvider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewDigiLockerProvider builds a provider rooted at baseURL, e.g.
// https://api.digitallocker.gov.in/public/oauth2/1. No network calls are made.
// A nil httpClient means http.DefaultClient.
func NewDigiLockerProvider(baseURL, clientID, clientSecret, redirectURL string, httpClient *http.Client) *DigiLockerProvider {
	base := strings.TrimSuffix(baseURL, "/")
	return &DigiLockerProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/authorize",
				TokenURL:  base + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// Name returns "digilocker".
func (p *DigiLockerProvider) Name() string { return "digilocker" }

// AuthCodeURL builds the DigiLocker consent URL with state and PKCE S256 challenge embedded.
// Only the challenge is sent here; the verifier stays server-side until Exchange.
func (p *DigiLockerProvider) AuthCodeURL(state, codeChallenge string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethodS256),
	)
}

// Exchange posts code, grant_type, client_id, client_secret, redirect_uri and code_verifier
// to the token endpoint and extracts the identity payload from the JSON response.
// A 200 response carrying identity fields but no access_token is still accepted.
// Every failure wraps ErrExchange; upstream status and a truncated body are included for diagnosis.
func (p *DigiLockerProvider) Exchange(ctx context.Context, code, codeVerifier string) (*Identity, error) {
	client, rec := p.recordingClient()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, fmt.Errorf("%w: status %d: %s", ErrExchange, re.Response.StatusCode, truncate(string(re.Body)))
		}
		// x/oauth2 rejects a 200 without access_token; DigiLocker identity bodies may omit it.
		if rec.status == http.StatusOK {
			if raw, ok := decodeIdentityBody(rec.body); ok {
				return identityFromRaw(raw), nil
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	if raw, ok := decodeObject(rec.body); ok {
		id := identityFromRaw(raw)
		id.AccessToken = token.AccessToken
		id.TokenType = token.TokenType
		id.ExpiresIn = token.ExpiresIn
		return id, nil
	}

	// Form-encoded token responses: only the fields x/oauth2 exposes by name.
	id := &Identity{
		DigiLockerID: extraString(token, "digilockerid"),
		Name:         extraString(token, "name"),
		DOB:          extraString(token, "dob"),
		Gender:       extraString(token, "gender"),
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    token.ExpiresIn,
		Extra:        map[string]any{},
	}
	for _, k := range []string{"digilockerid", "name", "dob", "gender", "eaadhaar", "reference_key", "scope", "consent_valid_till"} {
		if v := token.Extra(k); v != nil {
			id.Extra[k] = v
		}
	}
	return id, nil
}

// recordingClient copies the configured client with a transport that keeps the
// token response status and body for this one exchange.
func (p *DigiLockerProvider) recordingClient() (*http.Client, *recordingTransport) {
	base := p.httpClient
	if base == nil {
		base = http.DefaultClient
	}
	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	rec := &recordingTransport{next: next}
	client := *base
	client.Transport = rec
	return &client, rec
}

// recordingTransport buffers the response body and hands an identical copy on.
type recordingTransport struct {
	next   http.RoundTripper
	status int
	body   []byte
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	t.status = resp.StatusCode
	t.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// decodeObject parses body as a JSON object.
func decodeObject(body []byte) (map[string]any, bool) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, false
	}
	return raw, true
}

// decodeIdentityBody accepts a JSON object only if it names a DigiLocker account.
func decodeIdentityBody(body []byte) (map[string]any, bool) {
	raw, ok := decodeObject(body)
	if !ok {
		return nil, false
	}
	if id, _ := raw["digilockerid"].(string); id == "" {
		return nil, false
	}
	return raw, true
}

// identityFromRaw maps the decoded response. Extra keeps every field except tokens.
func identityFromRaw(raw map[string]any) *Identity {
	id := &Identity{
		DigiLockerID: rawString(raw, "digilockerid"),
		Name:         rawString(raw, "name"),
		DOB:          rawString(raw, "dob"),
		Gender:       rawString(raw, "gender"),
		TokenType:    rawString(raw, "token_type"),
		Extra:        make(map[string]any, len(raw)),
	}
	if n, ok := raw["expires_in"].(float64); ok {
		id.ExpiresIn = int64(n)
	}
	for k, v := range raw {
		if !secretFields[k] {
			id.Extra[k] = v
		}
	}
	return id
}

func rawString(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

// extraString reads a string field from the raw token response; non-strings yield "".
func extraString(t *oauth2.Token, key string) string {
	s, _ := t.Extra(key).(string)
	return s
}

func truncate(s string) string {
	if len(s) <= maxDiagnosticBody {
		return s
	}
	return s[:maxDiagnosticBody] + "..."
}
