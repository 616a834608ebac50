// errors.go -- Failure taxonomy for the verification flow.
//
// Handlers classify with errors.Is at the request boundary; nothing below
// the handler writes a response.
package verify

import "errors"

var (
	// ErrValidation covers bad or missing caller input (400, user-correctable).
	ErrValidation = errors.New("invalid request")

	// ErrAttemptExpiredOrUnknown means the state token was never issued, was already
	// used, or outlived its TTL (400, user must restart the flow).
	ErrAttemptExpiredOrUnknown = errors.New("attempt expired or unknown")

	// ErrUpstream means the provider token endpoint failed (502).
	ErrUpstream = errors.New("upstream token exchange failed")

	// ErrStorage means the identity record could not be persisted after the
	// one-time code was already spent (500, priority incident).
	ErrStorage = errors.New("identity record storage failed")

	// ErrInternalInconsistency marks states validation should have made unreachable (500).
	ErrInternalInconsistency = errors.New("internal inconsistency")
)

// errMissingCode is the ErrValidation case the callback reports with its own message.
var errMissingCode = errors.Join(ErrValidation, errors.New("authorization code not received"))
