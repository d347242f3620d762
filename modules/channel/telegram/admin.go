package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/pkg/message"
)

var _ channel.Admin = (*Telegram)(nil)

// SetTitle implements channel.Admin.
func (t *Telegram) SetTitle(ctx context.Context, chat message.Chat, title string) error {
	chatID, err := parseChatID(chat)
	if err != nil {
		return err
	}
	return t.client.SetChatTitle(ctx, chatID, title)
}

// CreateInviteLink implements channel.Admin.
func (t *Telegram) CreateInviteLink(ctx context.Context, chat message.Chat) (string, error) {
	chatID, err := parseChatID(chat)
	if err != nil {
		return "", err
	}
	link, err := t.client.CreateChatInviteLink(ctx, chatID)
	if err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

// BanMember implements channel.Admin.
func (t *Telegram) BanMember(ctx context.Context, chat message.Chat, userID int64) error {
	chatID, err := parseChatID(chat)
	if err != nil {
		return err
	}
	return t.client.BanChatMember(ctx, chatID, userID)
}

// ResolveIdentity implements channel.Admin. Handles seen in recent messages
// resolve locally; otherwise getChat is asked, which only knows users that
// have talked to the bot.
func (t *Telegram) ResolveIdentity(ctx context.Context, handle string) (int64, error) {
	if id, ok := t.handles.lookup(handle); ok {
		return id, nil
	}

	chat, err := t.client.GetChat(ctx, "@"+normalizeHandle(handle))
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %s", channel.ErrIdentityNotFound, handle)
		}
		return 0, err
	}
	if chat.Type != "private" {
		return 0, fmt.Errorf("%w: %s is a %s", channel.ErrIdentityNotFound, handle, chat.Type)
	}
	return chat.ID, nil
}

func parseUserID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
