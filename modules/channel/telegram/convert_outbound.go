package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/pkg/message"
)

// sendOutbound sends an OutboundMessage through the Telegram API, split
// into parts that fit the message length limit. Parts are sent in order and
// the first failure stops the rest.
func (t *Telegram) sendOutbound(ctx context.Context, msg message.OutboundMessage) error {
	chatID, err := parseChatID(msg.Chat)
	if err != nil {
		return err
	}

	for _, part := range channel.SplitMessage(msg, t.config.MaxMessageLength) {
		if part.Text == "" {
			continue
		}
		if _, err := t.client.SendMessage(ctx, buildSendRequest(part, chatID, t.logger)); err != nil {
			return fmt.Errorf("%w: %w", channel.ErrSendFailed, err)
		}
	}
	return nil
}

// buildSendRequest maps one outbound part to a sendMessage call. Text is
// sent as plain text unless the hints name a parse mode.
func buildSendRequest(part message.OutboundMessage, chatID int64, logger *slog.Logger) SendMessageRequest {
	req := SendMessageRequest{ChatID: chatID, Text: part.Text}
	if replyTo := parseOptionalInt(part.ReplyToID, logger); replyTo != 0 {
		req.ReplyParameters = &ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
	}
	if h := part.Hints; h != nil {
		req.ParseMode = h.ParseMode
		req.DisableWebPagePreview = h.DisablePreview
		req.DisableNotification = h.DisableNotification
	}
	return req
}

func parseChatID(chat message.Chat) (int64, error) {
	id, err := strconv.ParseInt(chat.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat ID %q: %w", chat.ID, err)
	}
	return id, nil
}

// parseOptionalInt converts a string to int, returning 0 for empty strings.
// Logs a warning if the string is non-empty but not a valid integer.
func parseOptionalInt(s string, logger *slog.Logger) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		logger.Warn("parseOptionalInt: invalid integer value",
			"value", s,
			"error", err,
		)
		return 0
	}
	return v
}
