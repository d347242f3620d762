package telegram

import (
	"testing"

	"github.com/flemzord/autoreply/pkg/message"
)

func TestConvertInbound(t *testing.T) {
	t.Parallel()

	update := &Update{
		UpdateID: 9,
		Message: &Message{
			MessageID: 100,
			From:      &User{ID: 42, FirstName: "Alice", LastName: "Liddell", Username: "alice"},
			Chat:      Chat{ID: -1001, Type: "supergroup", Title: "Wonderland"},
			Date:      1700000000,
			Text:      "/addreply hi",
			ReplyToMessage: &Message{
				MessageID: 99,
				From:      &User{ID: 7, FirstName: "Bob", Username: "bob", IsBot: true},
			},
		},
	}

	msg, err := convertInbound(update, "telegram")
	if err != nil {
		t.Fatalf("convertInbound() error: %v", err)
	}
	if msg.ID != "100" {
		t.Errorf("ID = %q, want %q", msg.ID, "100")
	}
	if msg.Channel != "telegram" {
		t.Errorf("Channel = %q, want %q", msg.Channel, "telegram")
	}
	if msg.Sender.ID != "42" || msg.Sender.DisplayName != "Alice Liddell" {
		t.Errorf("Sender = %+v", msg.Sender)
	}
	if msg.Chat.ID != "-1001" || msg.Chat.Type != message.ChatGroup || msg.Chat.Title != "Wonderland" {
		t.Errorf("Chat = %+v", msg.Chat)
	}
	if msg.Timestamp.Unix() != 1700000000 {
		t.Errorf("Timestamp = %v", msg.Timestamp)
	}
	if msg.ReplyTo == nil {
		t.Fatal("ReplyTo = nil")
	}
	if msg.ReplyTo.MessageID != "99" || msg.ReplyTo.Sender.ID != "7" || !msg.ReplyTo.Sender.IsBot {
		t.Errorf("ReplyTo = %+v", msg.ReplyTo)
	}
}

func TestConvertInboundCaptionIsNotText(t *testing.T) {
	t.Parallel()

	msg, err := convertInbound(&Update{
		UpdateID: 1,
		Message: &Message{
			MessageID: 1,
			From:      &User{ID: 1, FirstName: "A"},
			Chat:      Chat{ID: 1, Type: "private"},
			Caption:   "/rmreply 0",
		},
	}, "telegram")
	if err != nil {
		t.Fatalf("convertInbound() error: %v", err)
	}
	if msg.Text != "" {
		t.Errorf("Text = %q, want empty for a captioned photo", msg.Text)
	}
	if msg.Sender.ID != "1" {
		t.Errorf("Sender = %+v, want the photo's sender", msg.Sender)
	}
	if msg.ReplyTo != nil {
		t.Errorf("ReplyTo = %+v, want nil", msg.ReplyTo)
	}
}

func TestConvertInboundRejectsNonMessage(t *testing.T) {
	t.Parallel()

	edited := &Update{UpdateID: 3, EditedMessage: &Message{MessageID: 1, Text: "edit"}}
	if _, err := convertInbound(edited, "telegram"); err == nil {
		t.Error("expected error for edited message update")
	}
	if _, err := convertInbound(&Update{UpdateID: 4}, "telegram"); err == nil {
		t.Error("expected error for empty update")
	}
}

func TestMapChatType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want message.ChatType
	}{
		{"private", message.ChatPrivate},
		{"group", message.ChatGroup},
		{"supergroup", message.ChatGroup},
		{"channel", message.ChatBroadcast},
		{"unknown", message.ChatGroup},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := mapChatType(tt.in); got != tt.want {
				t.Errorf("mapChatType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConvertSenderNil(t *testing.T) {
	t.Parallel()

	if got := convertSender(nil); got != (message.Sender{}) {
		t.Errorf("convertSender(nil) = %+v, want zero", got)
	}
}

func TestHandleUpdateStampsRecipient(t *testing.T) {
	t.Parallel()

	tg := newTestTelegram("http://127.0.0.1:0")
	tg.botUser = &User{ID: 7, IsBot: true, Username: "my_bot"}
	var got []message.InboundMessage
	tg.SetInbox(func(msg message.InboundMessage) error {
		got = append(got, msg)
		return nil
	})

	tg.handleUpdate(&Update{
		UpdateID: 5,
		Message: &Message{
			MessageID: 3,
			From:      &User{ID: 42, FirstName: "Alice"},
			Chat:      Chat{ID: -1001, Type: "supergroup"},
			Text:      "/enable@other_bot",
		},
	})
	if len(got) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(got))
	}
	if got[0].Recipient != "my_bot" {
		t.Errorf("Recipient = %q, want my_bot", got[0].Recipient)
	}
}
