package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/autoreply/internal/auth"
	"github.com/flemzord/autoreply/internal/bot"
	"github.com/flemzord/autoreply/internal/config"
	"github.com/flemzord/autoreply/internal/settings"
	"github.com/flemzord/autoreply/modules/channel/telegram"
)

// envGatewayToken holds the admin API bearer token written by config init.
const envGatewayToken = "GATEWAY_TOKEN"

// initAnswers are the values collected by config init.
type initAnswers struct {
	Token        string
	Owner        string
	Policy       string
	ScopeMode    string
	Driver       string
	Mode         string
	WebhookURL   string
	Gateway      bool
	GatewayBind  string
	GatewayToken string
	Backups      bool
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Policy:      auth.SingleOwner,
		ScopeMode:   bot.ScopeChat,
		Driver:      settings.DriverJSON,
		Mode:        telegram.ModePolling,
		GatewayBind: "127.0.0.1:8080",
		Backups:     true,
	}
}

func askAnswers(a *initAnswers, accessible bool) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot token").
				Description("From @BotFather. Stored in .env, not in the config file.").
				EchoMode(huh.EchoModePassword).
				Value(&a.Token).
				Validate(validateToken),
			huh.NewInput().
				Title("Owner user ID").
				Description("Your numeric Telegram user ID. The owner can always run every command.").
				Value(&a.Owner).
				Validate(validateOwner),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Who may change settings?").
				Options(
					huh.NewOption("Only the owner", auth.SingleOwner),
					huh.NewOption("The owner and a per-chat sudo list", auth.SudoList),
				).
				Value(&a.Policy),
			huh.NewSelect[string]().
				Title("Settings scope").
				Options(
					huh.NewOption("Separate settings per chat", bot.ScopeChat),
					huh.NewOption("One set of settings for every chat", bot.ScopeGlobal),
				).
				Value(&a.ScopeMode),
			huh.NewSelect[string]().
				Title("Storage").
				Options(
					huh.NewOption("JSON file", settings.DriverJSON),
					huh.NewOption("SQLite database", settings.DriverSQLite),
				).
				Value(&a.Driver),
			huh.NewConfirm().
				Title("Back up the settings daily?").
				Value(&a.Backups),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("How should Telegram deliver updates?").
				Options(
					huh.NewOption("Long polling (no public URL needed)", telegram.ModePolling),
					huh.NewOption("Webhook (needs the HTTP gateway)", telegram.ModeWebhook),
				).
				Value(&a.Mode),
			huh.NewConfirm().
				Title("Enable the HTTP gateway?").
				Description("Health, metrics and the admin API. Required for webhooks.").
				Value(&a.Gateway),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Public webhook URL").
				Placeholder("https://bot.example.com/webhooks/telegram").
				Value(&a.WebhookURL).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "https://") {
						return errors.New("telegram only calls https URLs")
					}
					return nil
				}),
		).WithHideFunc(func() bool { return a.Mode != telegram.ModeWebhook }),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway listen address").
				Value(&a.GatewayBind),
			huh.NewInput().
				Title("Admin API bearer token").
				Description("Leave empty to expose only /health and /metrics.").
				EchoMode(huh.EchoModePassword).
				Value(&a.GatewayToken),
		).WithHideFunc(func() bool { return !a.Gateway && a.Mode != telegram.ModeWebhook }),
	).WithAccessible(accessible)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errors.New("aborted")
		}
		return err
	}
	if a.Mode == telegram.ModeWebhook {
		a.Gateway = true
	}
	return nil
}

func validateToken(s string) error {
	if !strings.Contains(s, ":") {
		return errors.New("expected <bot_id>:<hash>")
	}
	return nil
}

func validateOwner(s string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return errors.New("must be a positive integer")
	}
	return nil
}

// initFile is the layout written by config init. Secrets are references
// resolved from the environment at load time.
type initFile struct {
	Version string                    `yaml:"version"`
	Log     config.LogConfig          `yaml:"log"`
	Bot     initBot                   `yaml:"bot"`
	Store   config.StoreConfig        `yaml:"store"`
	Backup  *config.BackupConfig      `yaml:"backup,omitempty"`
	Modules map[string]map[string]any `yaml:"modules"`
}

type initBot struct {
	Token     string `yaml:"token"`
	OwnerID   int64  `yaml:"owner_id"`
	Policy    string `yaml:"policy"`
	ScopeMode string `yaml:"scope_mode"`
}

// renderConfig turns the answers into the YAML configuration.
func renderConfig(a initAnswers) ([]byte, error) {
	if err := validateOwner(a.Owner); err != nil {
		return nil, fmt.Errorf("owner id: %w", err)
	}
	owner, _ := strconv.ParseInt(strings.TrimSpace(a.Owner), 10, 64)

	tg := map[string]any{"mode": a.Mode}
	if a.Mode == telegram.ModeWebhook {
		tg["webhook_url"] = a.WebhookURL
		tg["webhook_secret"] = "${TELEGRAM_WEBHOOK_SECRET:-}"
	}
	f := initFile{
		Version: "1",
		Log:     config.LogConfig{Level: "info"},
		Bot: initBot{
			Token:     "${" + config.EnvToken + "}",
			OwnerID:   owner,
			Policy:    a.Policy,
			ScopeMode: a.ScopeMode,
		},
		Store:   config.StoreConfig{Driver: a.Driver},
		Modules: map[string]map[string]any{config.ChannelModule: tg},
	}
	if a.Backups {
		f.Backup = &config.BackupConfig{Schedule: "@daily", Keep: 7}
	}
	if a.Gateway || a.Mode == telegram.ModeWebhook {
		gw := map[string]any{"bind": a.GatewayBind}
		if a.GatewayToken != "" {
			gw["auth"] = map[string]any{"bearer_token": "${" + envGatewayToken + "}"}
		}
		f.Modules["gateway.http"] = gw
	}

	out, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return append([]byte("# Generated by autoreply config init.\n"), out...), nil
}

// writeSecrets merges the secrets into the .env file at path, keeping any
// other variables already there.
func writeSecrets(path string, a initAnswers) error {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return err
		}
		env = existing
	}
	env[config.EnvToken] = a.Token
	if a.GatewayToken != "" {
		env[envGatewayToken] = a.GatewayToken
	}
	if err := godotenv.Write(env, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}
