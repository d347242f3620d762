// Package channel connects messaging platforms to the bot: inbound events are
// pushed to an inbox callback, replies go out through Send, and platforms that
// can administer chats expose Admin.
package channel

import (
	"context"

	"github.com/flemzord/autoreply/internal/core"
	"github.com/flemzord/autoreply/pkg/message"
)

// Sender delivers outbound text.
type Sender interface {
	Send(ctx context.Context, msg message.OutboundMessage) error
}

// Channel is a messaging platform binding loaded as a module.
type Channel interface {
	core.Module
	Sender

	// SetInbox installs the callback that receives inbound messages. It is
	// called during wiring, before Start.
	SetInbox(fn func(msg message.InboundMessage) error)
}

// Admin is implemented by channels that can administer chats. The bot only
// calls it after the caller has passed authorization.
type Admin interface {
	SetTitle(ctx context.Context, chat message.Chat, title string) error
	CreateInviteLink(ctx context.Context, chat message.Chat) (string, error)
	BanMember(ctx context.Context, chat message.Chat, userID int64) error
	// ResolveIdentity maps an @handle to a numeric user ID.
	ResolveIdentity(ctx context.Context, handle string) (int64, error)
}
