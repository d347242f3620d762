package message

// OutboundMessage is a text message to be sent through a channel.
type OutboundMessage struct {
	Channel   string         `json:"channel"`
	Chat      Chat           `json:"chat"`
	ReplyToID string         `json:"reply_to_id,omitempty"`
	Text      string         `json:"text"`
	Hints     *OutboundHints `json:"hints,omitempty"`
}

// OutboundHints carries optional delivery hints. The zero value sets none.
type OutboundHints struct {
	DisablePreview      bool   `json:"disable_preview,omitempty"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
	ParseMode           string `json:"parse_mode,omitempty"`
}

// NewTextMessage creates an outbound text message for chat.
func NewTextMessage(chat Chat, text string) OutboundMessage {
	return OutboundMessage{Chat: chat, Text: text}
}

// NewReply creates an outbound text message answering the given inbound one.
func NewReply(in InboundMessage, text string) OutboundMessage {
	return OutboundMessage{Channel: in.Channel, Chat: in.Chat, ReplyToID: in.ID, Text: text}
}
