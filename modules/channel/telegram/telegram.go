package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/internal/core"
	"github.com/flemzord/autoreply/internal/gateway"
	"github.com/flemzord/autoreply/internal/security"
	"github.com/flemzord/autoreply/pkg/message"
)

// ModuleID is the module identifier; its name part ("telegram") is the
// channel name carried by messages.
const ModuleID core.ModuleID = "channel.telegram"

func init() {
	core.RegisterModule(&Telegram{})
}

// Compile-time interface guards.
var (
	_ channel.Channel   = (*Telegram)(nil)
	_ core.Configurable = (*Telegram)(nil)
	_ core.Provisioner  = (*Telegram)(nil)
	_ core.Validator    = (*Telegram)(nil)
	_ core.Starter      = (*Telegram)(nil)
	_ core.Stopper      = (*Telegram)(nil)
)

// Telegram implements the Telegram Bot API channel.
type Telegram struct {
	config    Config
	client    *Client
	logger    *slog.Logger
	allowList *channel.AllowList
	handles   *handleCache
	inbox     func(message.InboundMessage) error
	botUser   *User
	appCtx    *core.AppContext

	// Set during Start() depending on mode.
	poller          *Poller
	webhookReceiver *WebhookReceiver
}

// ModuleInfo implements core.Module.
func (t *Telegram) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Telegram{} },
	}
}

// Configure implements core.Configurable.
func (t *Telegram) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. A token missing from the module
// config is taken from the credential store.
func (t *Telegram) Provision(ctx *core.AppContext) error {
	t.config.defaults()
	t.appCtx = ctx
	t.logger = ctx.Logger

	if creds, err := core.Service[*security.CredentialStore](ctx, gateway.ServiceCredentials); err == nil {
		if t.config.Token == "" {
			t.config.Token, _ = creds.Get(security.CredentialBotToken)
		} else {
			creds.Set(security.CredentialBotToken, t.config.Token)
		}
	}

	t.client = NewClient(t.config.Token, t.config.APIURL, t.config.RequestTimeout)
	t.allowList = channel.NewAllowList(t.config.AllowUsers, t.config.AllowGroups)
	t.handles = newHandleCache()
	return nil
}

// Validate implements core.Validator.
func (t *Telegram) Validate() error {
	if t.config.Token == "" {
		return errors.New("telegram: token is required")
	}
	switch t.config.Mode {
	case ModePolling, ModeWebhook:
	default:
		return fmt.Errorf("telegram: invalid mode %q (must be \"polling\" or \"webhook\")", t.config.Mode)
	}
	if t.config.Mode == ModeWebhook && t.config.WebhookURL == "" {
		return errors.New("telegram: webhook_url is required when mode is \"webhook\"")
	}
	return t.config.validate()
}

// Start implements core.Starter. It validates the bot token, then starts
// either polling or webhook mode.
func (t *Telegram) Start() error {
	if t.inbox == nil {
		return fmt.Errorf("telegram: %w, call SetInbox before Start", channel.ErrNoInbox)
	}

	ctx := context.Background()
	user, err := t.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	t.botUser = user
	t.logger.Info("telegram bot authenticated",
		"id", user.ID,
		"username", user.Username,
	)

	switch t.config.Mode {
	case ModePolling:
		// getUpdates is refused while a webhook is registered.
		if err := t.client.DeleteWebhook(ctx); err != nil {
			return fmt.Errorf("telegram: deleteWebhook failed: %w", err)
		}
		t.poller = NewPoller(t.client, t.handleUpdate, t.logger, t.config)
		t.poller.Start()
		t.logger.Info("telegram polling started", "timeout", t.config.PollingTimeout)

	case ModeWebhook:
		if t.config.WebhookSecret == "" {
			t.logger.Warn("telegram webhook running without webhook_secret; " +
				"anyone who knows the URL can inject updates")
		}
		t.webhookReceiver = NewWebhookReceiver(t.handleUpdate, t.config.WebhookSecret)
		if err := t.registerWebhook(); err != nil {
			return err
		}

		if err := t.client.SetWebhook(ctx, SetWebhookRequest{
			URL:            t.config.WebhookURL,
			SecretToken:    t.config.WebhookSecret,
			AllowedUpdates: t.config.AllowedUpdates,
		}); err != nil {
			return fmt.Errorf("telegram: setWebhook failed: %w", err)
		}
		t.logger.Info("telegram webhook configured", "url", t.config.WebhookURL)
	}

	return nil
}

// registerWebhook resolves the gateway webhook dispatcher from the service
// registry and registers the WebhookReceiver as a handler.
func (t *Telegram) registerWebhook() error {
	dispatcher, err := core.Service[*gateway.WebhookDispatcher](t.appCtx, gateway.ServiceWebhooks)
	if err != nil {
		return fmt.Errorf("telegram: webhook mode needs the gateway.http module: %w", err)
	}
	// Telegram authenticates with its own header, checked by the receiver.
	dispatcher.Register(ModuleID.Name(), t.webhookReceiver, "")
	return nil
}

// Stop implements core.Stopper.
func (t *Telegram) Stop(ctx context.Context) error {
	t.logger.Info("telegram channel stopping")

	switch t.config.Mode {
	case ModePolling:
		if t.poller != nil {
			t.poller.Stop()
		}
	case ModeWebhook:
		if t.webhookReceiver != nil {
			if err := t.client.DeleteWebhook(ctx); err != nil {
				t.logger.Warn("telegram: failed to delete webhook on shutdown", "error", err)
			}
		}
	}
	return nil
}

// Send implements channel.Channel.
func (t *Telegram) Send(ctx context.Context, msg message.OutboundMessage) error {
	return t.sendOutbound(ctx, msg)
}

// SetInbox implements channel.Channel.
func (t *Telegram) SetInbox(fn func(msg message.InboundMessage) error) {
	t.inbox = fn
}

// BotUser returns the account behind the token once Start has run.
func (t *Telegram) BotUser() *User {
	return t.botUser
}

// handleUpdate converts an update, applies the allow-list and pushes the
// message to the inbox. Shared by polling and webhook mode.
func (t *Telegram) handleUpdate(update *Update) {
	msg, err := convertInbound(update, ModuleID.Name())
	if err != nil {
		t.logger.Debug("skipping update", "update_id", update.UpdateID, "reason", err)
		return
	}
	if t.botUser != nil {
		msg.Recipient = t.botUser.Username
	}
	t.handles.observe(msg)

	if !t.allowList.IsAllowed(msg) {
		t.logger.Debug("update denied by allow list",
			"update_id", update.UpdateID,
			"sender", msg.Sender.ID,
			"chat", msg.Chat.ID,
		)
		return
	}

	if err := t.inbox(msg); err != nil {
		t.logger.Error("failed to deliver update to inbox",
			"update_id", update.UpdateID,
			"error", err,
		)
	}
}
