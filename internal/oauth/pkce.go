// pkce.go -- PKCE verifier/challenge pair (RFC 7636, S256 only).
package oauth

import "golang.org/x/oauth2"

// ChallengeMethodS256 is the only challenge method we send.
const ChallengeMethodS256 = "S256"

// GenerateVerifier returns a fresh code_verifier: 32 bytes from crypto/rand,
// base64url without padding (43 chars). Panics if the entropy source fails.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// DeriveChallenge returns BASE64URL(SHA256(verifier)) without padding.
// Pure: the same verifier always yields the same challenge.
func DeriveChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
