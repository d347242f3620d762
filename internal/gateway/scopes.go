package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/autoreply/internal/settings"
)

// scopeSummary is one row of GET /api/scopes.
type scopeSummary struct {
	Key          string  `json:"key"`
	Enabled      bool    `json:"enabled"`
	DelaySeconds float64 `json:"delay_seconds"`
	Replies      int     `json:"replies"`
	Privileged   int     `json:"privileged"`
}

// handleListScopes lists every known scope, sorted by key.
func (g *Gateway) handleListScopes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := []scopeSummary{}
		if g.store != nil {
			snap := g.store.Snapshot(r.Context())
			for _, key := range g.store.Keys() {
				rec, ok := snap[key]
				if !ok {
					continue
				}
				out = append(out, scopeSummary{
					Key:          string(key),
					Enabled:      rec.Enabled,
					DelaySeconds: rec.DelaySeconds,
					Replies:      len(rec.AutoReplies),
					Privileged:   len(rec.PrivilegedIDs),
				})
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// handleGetScope returns one record in its persisted layout. Unknown keys
// are 404: reading never creates a record.
func (g *Gateway) handleGetScope() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := settings.ScopeKey(chi.URLParam(r, "key"))
		if g.store == nil {
			http.Error(w, "scope not found", http.StatusNotFound)
			return
		}

		rec, ok := g.store.Snapshot(r.Context())[key]
		if !ok {
			http.Error(w, "scope not found", http.StatusNotFound)
			return
		}

		raw, err := settings.EncodeRecord(rec)
		if err != nil {
			g.logger.Error("encoding scope failed", "scope", string(key), "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	}
}
