package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds int64    `json:"uptime_seconds"`
	Scopes        int      `json:"scopes"`
	Pending       int      `json:"pending_replies"`
	Channels      []string `json:"channels"`
	AuditErrors   int64    `json:"audit_write_errors"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			UptimeSeconds: int64(time.Since(g.startedAt) / time.Second),
			Channels:      []string{},
		}
		if g.store != nil {
			resp.Scopes = len(g.store.Keys())
		}
		if g.pending != nil {
			resp.Pending = g.pending.Pending()
		}
		if g.channels != nil {
			resp.Channels = g.channels.Channels()
		}
		if g.audit != nil {
			resp.AuditErrors = g.audit.WriteErrors()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
