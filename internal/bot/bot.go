// Package bot is the inbound entry point: it turns channel messages into
// command executions or auto-reply triggers and sends command replies back.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/internal/command"
	"github.com/flemzord/autoreply/internal/security"
	"github.com/flemzord/autoreply/internal/settings"
	"github.com/flemzord/autoreply/pkg/message"
)

// Scope modes.
const (
	// ScopeChat keeps one record per chat.
	ScopeChat = "chat"
	// ScopeGlobal shares one record between every chat.
	ScopeGlobal = "global"
)

// Kinds passed to Config.Observe.
const (
	KindCommand = "command"
	KindMessage = "message"
	KindIgnored = "ignored"
	KindLimited = "limited"
)

// Limiter bounds how often one sender may run commands.
// *security.RateLimiter satisfies it.
type Limiter interface {
	Allow(kind, key string) error
}

// CommandHandler executes a command and renders the reply text.
// *command.Processor satisfies it.
type CommandHandler interface {
	Handle(ctx context.Context, req command.Request) string
}

// MessageHandler schedules auto-replies. *autoreply.Dispatcher satisfies it.
type MessageHandler interface {
	OnMessage(ctx context.Context, in message.InboundMessage, scope settings.ScopeKey) bool
}

// Config wires a Bot.
type Config struct {
	Commands CommandHandler
	Messages MessageHandler
	Sender   channel.Sender
	// ScopeMode is ScopeChat (default) or ScopeGlobal.
	ScopeMode     string
	CommandPrefix string
	// CommandTimeout bounds one command including its reply. Default 30s.
	CommandTimeout time.Duration
	// Limiter, when set, drops commands from senders over their limit.
	Limiter Limiter
	Observe func(kind string)
	Logger  *slog.Logger
}

// Bot routes inbound messages.
type Bot struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and returns a Bot.
func New(cfg Config) (*Bot, error) {
	var errs []error
	if cfg.Commands == nil {
		errs = append(errs, errors.New("bot: command handler is required"))
	}
	if cfg.Messages == nil {
		errs = append(errs, errors.New("bot: message handler is required"))
	}
	if cfg.Sender == nil {
		errs = append(errs, errors.New("bot: sender is required"))
	}
	switch cfg.ScopeMode {
	case "":
		cfg.ScopeMode = ScopeChat
	case ScopeChat, ScopeGlobal:
	default:
		errs = append(errs, fmt.Errorf("bot: unknown scope mode %q", cfg.ScopeMode))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "/"
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.Observe == nil {
		cfg.Observe = func(string) {}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{cfg: cfg, logger: logger.With("component", "bot")}, nil
}

// ScopeFor returns the settings scope a chat maps to.
func (b *Bot) ScopeFor(chat message.Chat) settings.ScopeKey {
	if b.cfg.ScopeMode == ScopeGlobal {
		return settings.GlobalScope
	}
	return settings.ChatScope(chat.ID)
}

// OnCommand executes one command outside any platform context and returns
// the reply text. Platform commands are refused here.
func (b *Bot) OnCommand(ctx context.Context, name, args string, sender settings.Identity, scope settings.ScopeKey, private bool) string {
	b.cfg.Observe(KindCommand)
	return b.cfg.Commands.Handle(ctx, command.Request{
		Name:    name,
		Args:    args,
		Sender:  sender,
		Scope:   scope,
		Private: private,
	})
}

// OnMessage hands a non-command message to the auto-reply dispatcher and
// reports whether a reply was scheduled.
func (b *Bot) OnMessage(ctx context.Context, in message.InboundMessage) bool {
	b.cfg.Observe(KindMessage)
	return b.cfg.Messages.OnMessage(ctx, in, b.ScopeFor(in.Chat))
}

// Handle is the channel inbox. Commands are executed and answered
// synchronously; other text may schedule an auto-reply.
func (b *Bot) Handle(in message.InboundMessage) error {
	if in.Sender.IsBot || in.Text == "" {
		b.cfg.Observe(KindIgnored)
		return nil
	}

	if to := command.Addressee(in.Text, b.cfg.CommandPrefix); to != "" && in.Recipient != "" &&
		!strings.EqualFold(to, in.Recipient) {
		// Meant for another bot in the same group.
		b.cfg.Observe(KindIgnored)
		return nil
	}

	name, args, ok := command.Split(in.Text, b.cfg.CommandPrefix)
	if !ok {
		b.OnMessage(context.Background(), in)
		return nil
	}

	if b.limited(in) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CommandTimeout)
	defer cancel()

	b.cfg.Observe(KindCommand)
	reply := b.cfg.Commands.Handle(ctx, command.Request{
		Name:    name,
		Args:    args,
		Sender:  identity(in.Sender),
		Scope:   b.ScopeFor(in.Chat),
		Private: in.IsPrivate(),
		Channel: in.Channel,
		Chat:    in.Chat,
		ReplyTo: replyTarget(in),
	})
	if reply == "" {
		return nil
	}

	if err := b.cfg.Sender.Send(ctx, message.NewReply(in, reply)); err != nil {
		b.logger.Error("command reply not delivered",
			"command", name,
			"chat_id", in.Chat.ID,
			"error", err,
		)
		return fmt.Errorf("%w: %w", channel.ErrSendFailed, err)
	}
	return nil
}

// limited reports whether the sender is over the command rate limit. Such
// commands are dropped without a reply so a flood gets no echo.
func (b *Bot) limited(in message.InboundMessage) bool {
	if b.cfg.Limiter == nil {
		return false
	}
	if err := b.cfg.Limiter.Allow(security.KindCommand, in.Channel+":"+in.Sender.ID); err != nil {
		b.cfg.Observe(KindLimited)
		b.logger.Warn("command dropped by rate limit",
			"sender_id", in.Sender.ID,
			"chat_id", in.Chat.ID,
		)
		return true
	}
	return false
}

// identity parses a platform sender ID. Unparsable IDs map to zero, which
// no policy authorizes.
func identity(s message.Sender) settings.Identity {
	id, err := settings.ParseIdentity(s.ID)
	if err != nil {
		return 0
	}
	return id
}

func replyTarget(in message.InboundMessage) settings.Identity {
	if in.ReplyTo == nil {
		return 0
	}
	return identity(in.ReplyTo.Sender)
}
