package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flemzord/autoreply/internal/auth"
	"github.com/flemzord/autoreply/internal/core"
	"github.com/flemzord/autoreply/internal/cron"
	"github.com/flemzord/autoreply/internal/settings"
)

// Validate checks the structural validity of a Config. Every problem is
// reported, joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, validateBot(cfg.Bot)...)
	errs = append(errs, validateStore(cfg.Store)...)

	for id := range cfg.Modules {
		if _, ok := core.LookupModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	if cfg.RateLimits.CommandsPerMin < 0 || cfg.RateLimits.AuthPerMin < 0 {
		errs = append(errs, errors.New("config: rate_limits values must not be negative"))
	}

	if cfg.Backup != nil {
		if strings.TrimSpace(cfg.Backup.Schedule) == "" {
			errs = append(errs, errors.New("config: backup.schedule is required when backup is set"))
		} else if err := cron.ValidateSchedule(cfg.Backup.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("config: backup.schedule: %w", err))
		}
		if cfg.Backup.Keep < 0 {
			errs = append(errs, errors.New("config: backup.keep must not be negative"))
		}
	}

	if t := cfg.Telemetry; t != nil {
		if t.Endpoint == "" {
			errs = append(errs, errors.New("config: telemetry.endpoint is required when telemetry is set"))
		}
		if t.SampleRatio < 0 || t.SampleRatio > 1 {
			errs = append(errs, fmt.Errorf("config: telemetry.sample_ratio must be within [0, 1], got %v", t.SampleRatio))
		}
	}

	return errors.Join(errs...)
}

func validateBot(b BotConfig) []error {
	var errs []error

	if b.Token == "" {
		errs = append(errs, fmt.Errorf("config: bot token is required (set %s)", EnvToken))
	}
	if b.OwnerID <= 0 {
		errs = append(errs, fmt.Errorf("config: owner id must be a positive integer (set %s)", EnvOwner))
	}

	switch b.Policy {
	case auth.SingleOwner, auth.SudoList:
	default:
		errs = append(errs, fmt.Errorf("config: unknown bot.policy %q", b.Policy))
	}
	switch b.ScopeMode {
	case "chat", "global":
	default:
		errs = append(errs, fmt.Errorf("config: unknown bot.scope_mode %q (want chat or global)", b.ScopeMode))
	}

	if strings.TrimSpace(b.CommandPrefix) == "" {
		errs = append(errs, errors.New("config: bot.command_prefix must not be empty"))
	}
	if d := b.Defaults.Delay; !settings.ValidDelay(d) {
		errs = append(errs, fmt.Errorf("config: bot.defaults.delay must be between 0 and %.0f seconds, got %v", settings.MaxDelaySeconds, d))
	}
	return errs
}

func validateStore(s StoreConfig) []error {
	switch s.Driver {
	case settings.DriverJSON, settings.DriverSQLite:
	default:
		return []error{fmt.Errorf("config: unknown store.driver %q", s.Driver)}
	}
	if s.BusyTimeout < 0 {
		return []error{errors.New("config: store.busy_timeout must not be negative")}
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid log.level %q", s)
	}
	return lvl, nil
}
