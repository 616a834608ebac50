// audit.go -- Durable audit trail for compliance-relevant events.
package verify

import (
	"context"
	"encoding/json"

	"github.com/MGallo-Code/aadhaar-verify/internal/store"
)

// Audit actions.
const (
	auditAuthorizationStarted  = "aadhaar.authorization_started"
	auditAuthorizationRejected = "aadhaar.authorization_rejected"
	auditCallbackRejected      = "aadhaar.callback_rejected"
	auditExchangeFailed        = "aadhaar.exchange_failed"
	auditPersistFailed         = "aadhaar.record_persist_failed"
	auditCallbackFailed        = "aadhaar.callback_failed"
	auditVerified              = "aadhaar.verified"
)

// auditLog writes one audit row. Failures are logged, never surfaced to the caller.
// Detached from request cancellation so an abandoned request still leaves its trail.
func (h *VerifyHandler) auditLog(ctx context.Context, m RequestMeta, action string, metadata []byte) {
	entry := store.AuditEntry{
		Action:    action,
		RequestID: strOrNil(m.RequestID),
		IPAddress: strOrNil(m.IP),
		UserAgent: strOrNil(m.UserAgent),
		Metadata:  metadata,
	}
	if err := h.PS.WriteAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		logWarn(m, "failed to write audit log", "action", action, "error", err)
	}
}

// marshalMeta encodes audit metadata; a marshal failure yields nil (NULL column).
func marshalMeta(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// strOrNil converts an empty string to nil; non-empty strings are returned as a pointer.
func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
