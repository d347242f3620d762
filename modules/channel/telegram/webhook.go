package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flemzord/autoreply/internal/gateway"
	"github.com/flemzord/autoreply/internal/security"
)

// secretHeader carries the secret_token registered with setWebhook.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookReceiver processes incoming Telegram webhook payloads.
type WebhookReceiver struct {
	handle func(*Update)
	secret string
}

var _ gateway.WebhookHandler = (*WebhookReceiver)(nil)

// NewWebhookReceiver creates a WebhookReceiver passing updates to handle.
func NewWebhookReceiver(handle func(*Update), secret string) *WebhookReceiver {
	return &WebhookReceiver{handle: handle, secret: secret}
}

// HandleWebhook implements gateway.WebhookHandler. It checks Telegram's
// secret token header and the payload limits, then handles the update.
func (w *WebhookReceiver) HandleWebhook(_ context.Context, _ string, body []byte, headers http.Header) error {
	if w.secret != "" {
		token := headers.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(w.secret), []byte(token)) != 1 {
			return fmt.Errorf("%w: telegram secret token mismatch", gateway.ErrWebhookRejected)
		}
	}

	if err := security.ValidatePayload(body); err != nil {
		return fmt.Errorf("%w: %w", gateway.ErrWebhookRejected, err)
	}

	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("%w: invalid update JSON: %w", gateway.ErrWebhookRejected, err)
	}

	w.handle(&update)
	return nil
}
