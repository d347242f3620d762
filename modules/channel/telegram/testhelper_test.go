package telegram

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/flemzord/autoreply/internal/channel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

// newTestTelegram builds a provisioned-looking channel talking to apiURL.
func newTestTelegram(apiURL string) *Telegram {
	cfg := Config{Token: "1:TOKEN", APIURL: apiURL}
	cfg.defaults()
	return &Telegram{
		config:    cfg,
		client:    NewClient(cfg.Token, apiURL, 5*time.Second),
		logger:    discardLogger(),
		allowList: channel.NewAllowList(nil, nil),
		handles:   newHandleCache(),
	}
}
