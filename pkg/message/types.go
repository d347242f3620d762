// Package message defines the platform-agnostic text messages exchanged
// between channels and the bot.
package message

// ChatType indicates the kind of conversation.
type ChatType string

const (
	// ChatPrivate is a one-to-one conversation with the bot.
	ChatPrivate ChatType = "private"
	// ChatGroup is a group or supergroup.
	ChatGroup ChatType = "group"
	// ChatBroadcast is a one-to-many channel.
	ChatBroadcast ChatType = "broadcast"
)

// Sender identifies the author of an inbound message.
type Sender struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	IsBot       bool   `json:"is_bot,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID    string   `json:"id"`
	Type  ChatType `json:"type"`
	Title string   `json:"title,omitempty"`
}

// IsGroup reports whether the chat is a group conversation.
func (c Chat) IsGroup() bool {
	return c.Type == ChatGroup
}

// IsPrivate reports whether the chat is a private conversation.
func (c Chat) IsPrivate() bool {
	return c.Type == ChatPrivate
}
