package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// ErrWebhookRejected may be wrapped by handlers to answer 401 instead of 500.
var ErrWebhookRejected = errors.New("webhook rejected")

// WebhookHandler processes a webhook payload that passed the dispatcher's
// checks.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

type webhookEntry struct {
	handler WebhookHandler
	secret  string
}

// WebhookDispatcher routes incoming webhooks to registered handlers with
// optional HMAC validation.
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]webhookEntry
	secrets  map[string]string
	maxBody  int64
	logger   *slog.Logger
}

// NewWebhookDispatcher creates a ready-to-use dispatcher. Bodies larger than
// maxBody bytes are refused.
func NewWebhookDispatcher(logger *slog.Logger, maxBody int64) *WebhookDispatcher {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &WebhookDispatcher{
		handlers: make(map[string]webhookEntry),
		secrets:  make(map[string]string),
		maxBody:  maxBody,
		logger:   logger,
	}
}

// SetSecret configures the HMAC secret of source. It applies to handlers
// registered without their own secret.
func (d *WebhookDispatcher) SetSecret(source, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.secrets[source] = secret
}

// Register adds a handler for the given source with an optional HMAC secret.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if secret == "" {
		secret = d.secrets[source]
	}
	d.handlers[source] = webhookEntry{handler: h, secret: secret}
}

// Registered reports whether source has a handler.
func (d *WebhookDispatcher) Registered(source string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[source]
	return ok
}

// ServeHTTP implements http.Handler.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := chi.URLParam(r, "source")
	if source == "" {
		http.Error(w, "missing source", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	d.mu.RLock()
	entry, ok := d.handlers[source]
	d.mu.RUnlock()

	if !ok {
		d.logger.Warn("webhook received for unregistered source", "source", source)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true,"warning":"no handler registered"}`))
		return
	}

	if entry.secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if !validateHMAC(body, sig, entry.secret) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	if err := entry.handler.HandleWebhook(r.Context(), source, body, r.Header); err != nil {
		if errors.Is(err, ErrWebhookRejected) {
			d.logger.Warn("webhook rejected", "source", source, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		d.logger.Error("webhook handler failed", "source", source, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// validateHMAC checks HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
