// health_handler.go -- Health check handler for GET /health.
package verify

import (
	"encoding/json"
	"net/http"
)

// CheckHealth handles GET /health. Pings Postgres and Redis, returns per-dependency status.
// Returns 200 if both are healthy, 503 if either is down.
func (h *VerifyHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	m := requestMeta(r)
	redisStatus := "ok"
	postgresStatus := "ok"

	if err := h.Registry.Store.CheckHealth(r.Context()); err != nil {
		logError(m, "redis health check failed", "error", err)
		redisStatus = "error"
	}
	if err := h.PS.CheckHealth(r.Context()); err != nil {
		logError(m, "postgres health check failed", "error", err)
		postgresStatus = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	if redisStatus == "error" || postgresStatus == "error" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(struct {
		Postgres string `json:"postgres"`
		Redis    string `json:"redis"`
	}{postgresStatus, redisStatus})
}

// Index handles GET / with a plain banner.
func Index(w http.ResponseWriter, r *http.Request) {
	PlainText(w, http.StatusOK, "Aadhaar verification service")
}
