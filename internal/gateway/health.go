package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "degraded"
	Store  string `json:"store"`
	Error  string `json:"error,omitempty"`
}

// handleHealth returns 200 when the settings backend answers and 503
// otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Store: "ok"}

		if g.store == nil {
			resp.Status, resp.Store = "degraded", "missing"
		} else {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			err := g.store.Ping(ctx)
			cancel()
			if err != nil {
				resp.Status, resp.Store = "degraded", "unreachable"
				resp.Error = err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
