package message

import (
	"strings"
	"time"
)

// InboundMessage is a text event received from a channel.
type InboundMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
	Sender    Sender    `json:"sender"`
	Chat      Chat      `json:"chat"`
	Text      string    `json:"text,omitempty"`
	// Recipient is the bot account's own username on the channel, when
	// known. Commands addressed to another account are not for us.
	Recipient string `json:"recipient,omitempty"`

	// ReplyTo is set when the message answers another message.
	ReplyTo *ReplyRef `json:"reply_to,omitempty"`
}

// ReplyRef points at the message being replied to.
type ReplyRef struct {
	MessageID string `json:"message_id"`
	Sender    Sender `json:"sender"`
}

// IsCommand reports whether the text starts with prefix.
func (m *InboundMessage) IsCommand(prefix string) bool {
	return prefix != "" && strings.HasPrefix(m.Text, prefix)
}

// IsGroup reports whether the message was sent in a group chat.
func (m *InboundMessage) IsGroup() bool {
	return m.Chat.IsGroup()
}

// IsPrivate reports whether the message was sent in a private chat.
func (m *InboundMessage) IsPrivate() bool {
	return m.Chat.IsPrivate()
}
