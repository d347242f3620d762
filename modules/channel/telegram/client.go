package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxRetries       = 3
	initialBackoff   = time.Second
	maxResponseBytes = 10 << 20 // 10 MiB: prevent unbounded reads from API responses.
)

// Client is a thin HTTP wrapper around the Telegram Bot API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	tracer  trace.Tracer

	// retryUnit scales retry_after and the backoff. Tests shrink it.
	retryUnit time.Duration
}

// NewClient creates a new Telegram Bot API client.
func NewClient(token, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		token:     token,
		baseURL:   baseURL,
		http:      &http.Client{Timeout: timeout},
		tracer:    otel.Tracer("github.com/flemzord/autoreply/modules/channel/telegram"),
		retryUnit: initialBackoff,
	}
}

// do sends a JSON POST request to the given Bot API method and decodes the response.
// It handles 429 rate limiting with retry_after (max 3 attempts, exponential backoff).
func do[T any](ctx context.Context, c *Client, method string, payload any) (result *T, err error) {
	ctx, span := c.tracer.Start(ctx, "telegram."+method, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, method+" failed")
		}
		span.End()
	}()

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var data []byte
	if payload != nil {
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("telegram: marshal %s request: %w", method, err)
		}
	}

	backoff := c.retryUnit

	for attempt := range maxRetries {
		span.SetAttributes(attribute.Int("telegram.attempt", attempt+1))

		var body io.Reader
		if data != nil {
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
		if err != nil {
			return nil, fmt.Errorf("telegram: create %s request: %w", method, err)
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// The URL carries the token; log redaction masks it downstream.
			return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("telegram: read %s response: %w", method, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries-1 {
			var apiResp APIResponse[json.RawMessage]
			if err := json.Unmarshal(respBody, &apiResp); err == nil && apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
				backoff = time.Duration(apiResp.Parameters.RetryAfter) * c.retryUnit
			}

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
			continue
		}

		var apiResp APIResponse[T]
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, fmt.Errorf("telegram: decode %s response: %w", method, err)
		}

		if !apiResp.OK {
			apiErr := &APIError{
				Code:        apiResp.ErrorCode,
				Description: apiResp.Description,
			}
			if apiResp.Parameters != nil {
				apiErr.RetryAfter = apiResp.Parameters.RetryAfter
			}
			return nil, apiErr
		}

		return &apiResp.Result, nil
	}

	return nil, fmt.Errorf("telegram: %s: max retries exceeded", method)
}

// GetUpdatesRequest is the request body for the getUpdates method.
type GetUpdatesRequest struct {
	Offset         int      `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// SetWebhookRequest is the request body for the setWebhook method.
type SetWebhookRequest struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
	MaxConnections int      `json:"max_connections,omitempty"`
}

// ReplyParameters describes the message being replied to.
type ReplyParameters struct {
	MessageID int `json:"message_id"`
	// AllowSendingWithoutReply keeps the send alive when the original
	// message was deleted in the meantime.
	AllowSendingWithoutReply bool `json:"allow_sending_without_reply,omitempty"`
}

// SendMessageRequest is the request body for the sendMessage method.
type SendMessageRequest struct {
	ChatID                int64            `json:"chat_id"`
	Text                  string           `json:"text"`
	ParseMode             string           `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool             `json:"disable_web_page_preview,omitempty"`
	DisableNotification   bool             `json:"disable_notification,omitempty"`
	ReplyParameters       *ReplyParameters `json:"reply_parameters,omitempty"`
	MessageThreadID       int              `json:"message_thread_id,omitempty"`
}

type setChatTitleRequest struct {
	ChatID int64  `json:"chat_id"`
	Title  string `json:"title"`
}

type chatRequest struct {
	ChatID any `json:"chat_id"`
}

type banChatMemberRequest struct {
	ChatID         int64 `json:"chat_id"`
	UserID         int64 `json:"user_id"`
	RevokeMessages bool  `json:"revoke_messages,omitempty"`
}

// GetMe returns the bot's user information.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return do[User](ctx, c, "getMe", nil)
}

// GetUpdates fetches incoming updates using long polling.
func (c *Client) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error) {
	result, err := do[[]Update](ctx, c, "getUpdates", req)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// SetWebhook configures the webhook URL for receiving updates.
func (c *Client) SetWebhook(ctx context.Context, req SetWebhookRequest) error {
	_, err := do[bool](ctx, c, "setWebhook", req)
	return err
}

// DeleteWebhook removes the current webhook integration.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := do[bool](ctx, c, "deleteWebhook", nil)
	return err
}

// SendMessage sends a text message to the specified chat.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	return do[Message](ctx, c, "sendMessage", req)
}

// SetChatTitle renames a group. The bot must be an admin.
func (c *Client) SetChatTitle(ctx context.Context, chatID int64, title string) error {
	_, err := do[bool](ctx, c, "setChatTitle", setChatTitleRequest{ChatID: chatID, Title: title})
	return err
}

// CreateChatInviteLink creates an additional invite link for a group.
func (c *Client) CreateChatInviteLink(ctx context.Context, chatID int64) (*ChatInviteLink, error) {
	return do[ChatInviteLink](ctx, c, "createChatInviteLink", chatRequest{ChatID: chatID})
}

// BanChatMember bans a user from a group.
func (c *Client) BanChatMember(ctx context.Context, chatID, userID int64) error {
	_, err := do[bool](ctx, c, "banChatMember", banChatMemberRequest{ChatID: chatID, UserID: userID})
	return err
}

// GetChat looks a chat up by numeric ID or by "@username".
func (c *Client) GetChat(ctx context.Context, chatID any) (*Chat, error) {
	return do[Chat](ctx, c, "getChat", chatRequest{ChatID: chatID})
}
