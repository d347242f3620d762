package telegram

import (
	"fmt"
	"strconv"
	"time"

	"github.com/flemzord/autoreply/pkg/message"
)

// convertInbound transforms a Telegram Update into a platform-agnostic
// InboundMessage. Updates without a new message are rejected. Media captions
// are not text: a photo with a caption converts to a message without text.
func convertInbound(update *Update, channelName string) (message.InboundMessage, error) {
	msg := update.Message
	if msg == nil {
		return message.InboundMessage{}, fmt.Errorf("telegram: update %d contains no new message", update.UpdateID)
	}

	inbound := message.InboundMessage{
		ID:        strconv.Itoa(msg.MessageID),
		Timestamp: time.Unix(int64(msg.Date), 0),
		Channel:   channelName,
		Sender:    convertSender(msg.From),
		Chat:      convertChat(msg.Chat),
		Text:      msg.Text,
	}

	if r := msg.ReplyToMessage; r != nil {
		inbound.ReplyTo = &message.ReplyRef{
			MessageID: strconv.Itoa(r.MessageID),
			Sender:    convertSender(r.From),
		}
	}

	return inbound, nil
}

// convertSender maps a Telegram User to a platform-agnostic Sender.
func convertSender(user *User) message.Sender {
	if user == nil {
		return message.Sender{}
	}
	displayName := user.FirstName
	if user.LastName != "" {
		displayName += " " + user.LastName
	}
	return message.Sender{
		ID:          strconv.FormatInt(user.ID, 10),
		Username:    user.Username,
		DisplayName: displayName,
		IsBot:       user.IsBot,
	}
}

// convertChat maps a Telegram Chat to a platform-agnostic Chat.
func convertChat(chat Chat) message.Chat {
	return message.Chat{
		ID:    strconv.FormatInt(chat.ID, 10),
		Type:  mapChatType(chat.Type),
		Title: chat.Title,
	}
}

// mapChatType converts Telegram chat type strings to message.ChatType.
func mapChatType(tgType string) message.ChatType {
	switch tgType {
	case "private":
		return message.ChatPrivate
	case "group", "supergroup":
		return message.ChatGroup
	case "channel":
		return message.ChatBroadcast
	default:
		return message.ChatGroup
	}
}
