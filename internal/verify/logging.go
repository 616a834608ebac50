// logging.go -- Logging helpers with explicit request metadata.
//
// Handlers build a RequestMeta once at the boundary and pass it down; nothing
// below the handler reads *http.Request for logging.
package verify

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestMeta identifies who made a request, for logs and audit rows.
type RequestMeta struct {
	IP        string
	UserAgent string
	RequestID string
}

// requestMeta extracts RequestMeta from r. Expects chi's RequestID middleware to have run;
// RemoteAddr honours X-Forwarded-For only when the router trusts proxy headers.
func requestMeta(r *http.Request) RequestMeta {
	return RequestMeta{
		IP:        clientIP(r.RemoteAddr),
		UserAgent: r.UserAgent(),
		RequestID: middleware.GetReqID(r.Context()),
	}
}

// clientIP strips the port from a RemoteAddr; RealIP-rewritten values have none.
func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// attrs returns standard request attributes for logging.
func (m RequestMeta) attrs() []any {
	return []any{
		"ip", m.IP,
		"user_agent", m.UserAgent,
		"request_id", m.RequestID,
	}
}

func logDebug(m RequestMeta, msg string, args ...any) {
	slog.Debug(msg, append(m.attrs(), args...)...)
}

func logInfo(m RequestMeta, msg string, args ...any) {
	slog.Info(msg, append(m.attrs(), args...)...)
}

func logWarn(m RequestMeta, msg string, args ...any) {
	slog.Warn(msg, append(m.attrs(), args...)...)
}

func logError(m RequestMeta, msg string, args ...any) {
	slog.Error(msg, append(m.attrs(), args...)...)
}

// maskSubject keeps only the last four characters of an Aadhaar number.
func maskSubject(s string) string {
	if len(s) <= 4 {
		return s
	}
	masked := make([]byte, len(s))
	for i := range masked {
		masked[i] = 'X'
	}
	copy(masked[len(s)-4:], s[len(s)-4:])
	return string(masked)
}
