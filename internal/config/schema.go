// Package config handles YAML configuration loading, environment variable
// expansion, .env files and structural validation for autoreply.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/autoreply/internal/auth"
	"github.com/flemzord/autoreply/internal/security"
	"github.com/flemzord/autoreply/internal/settings"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir holds the settings document, backups and the audit log.
	// Empty means the XDG data directory.
	DataDir string `yaml:"data_dir,omitempty"`

	Log   LogConfig   `yaml:"log"`
	Bot   BotConfig   `yaml:"bot"`
	Store StoreConfig `yaml:"store"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "channel.telegram").
	Modules map[string]yaml.Node `yaml:"modules"`

	// RateLimits bounds commands per sender and gateway logins per client.
	// Zero fields take the built-in limits.
	RateLimits security.RateLimitConfig `yaml:"rate_limits"`

	Backup    *BackupConfig    `yaml:"backup,omitempty"`
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
	Audit     *AuditConfig     `yaml:"audit,omitempty"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// BotConfig holds the bot identity and behavior.
type BotConfig struct {
	// Token is the platform bot token. BOT_TOKEN overrides it.
	Token string `yaml:"token"`
	// OwnerID is the single always-privileged user. OWNER_ID overrides it.
	OwnerID int64 `yaml:"owner_id"`
	// Policy is "single_owner" (default) or "sudo_list".
	Policy string `yaml:"policy"`
	// ScopeMode is "chat" (default) or "global".
	ScopeMode     string         `yaml:"scope_mode"`
	CommandPrefix string         `yaml:"command_prefix"`
	Defaults      RecordDefaults `yaml:"defaults"`
}

// RecordDefaults seeds the record of a never-seen scope.
type RecordDefaults struct {
	Delay float64 `yaml:"delay"`
	Reply string  `yaml:"reply"`
}

// StoreConfig selects the settings backend.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path,omitempty"`
	WAL         *bool  `yaml:"wal,omitempty"`
	BusyTimeout int    `yaml:"busy_timeout,omitempty"`
}

// BackupConfig schedules snapshots of the settings document.
type BackupConfig struct {
	// Schedule is a cron expression or descriptor such as "@daily".
	Schedule string `yaml:"schedule"`
	// Dir defaults to <data_dir>/backups.
	Dir string `yaml:"dir,omitempty"`
	// Keep is the number of snapshots retained. Zero keeps all of them.
	Keep int `yaml:"keep,omitempty"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Insecure    bool          `yaml:"insecure,omitempty"`
	ServiceName string        `yaml:"service_name,omitempty"`
	SampleRatio float64       `yaml:"sample_ratio,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// AuditConfig configures the privileged-command audit log.
type AuditConfig struct {
	// Path defaults to <data_dir>/audit.jsonl.
	Path string `yaml:"path,omitempty"`
}

// Default returns the configuration used when no file is found: every
// value comes from the environment and built-in defaults.
func Default() *Config {
	return &Config{
		Version: "1",
		Log:     LogConfig{Level: "info"},
		Bot: BotConfig{
			Policy:        auth.SingleOwner,
			ScopeMode:     "chat",
			CommandPrefix: "/",
			Defaults: RecordDefaults{
				Delay: settings.DefaultDelay,
				Reply: settings.DefaultReply,
			},
		},
		Store: StoreConfig{Driver: settings.DriverJSON},
	}
}
