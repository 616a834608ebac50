// responses.go -- Package-wide HTTP response helpers.
//
// JSON errors use the {"error": "..."} shape; the callback's state/code
// rejections are plain text because they render directly in the browser.
package verify

import (
	"encoding/json"
	"net/http"
)

// writeJSONError writes {"error": message} with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{message})
}

// InternalServerError logs the error and returns a generic 500 JSON response.
// Never exposes internal error details to prevent information leakage.
func InternalServerError(w http.ResponseWriter, m RequestMeta, err error) {
	logError(m, "internal server error", "error", err)
	writeJSONError(w, http.StatusInternalServerError, "internal server error")
}

// BadRequest returns a 400 JSON response with the given message.
func BadRequest(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusBadRequest, message)
}

// BadGateway returns a 502 JSON response; used when the provider fails us.
func BadGateway(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusBadGateway, message)
}

// TooManyRequests returns a 429 JSON response.
func TooManyRequests(w http.ResponseWriter) {
	writeJSONError(w, http.StatusTooManyRequests, "too many requests")
}

// PlainText writes a text/plain body with the given status.
func PlainText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
