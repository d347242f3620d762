package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/autoreply/internal/config"
	"github.com/flemzord/autoreply/internal/security"
)

// LoadFunc returns a freshly loaded, validated configuration.
type LoadFunc func() (*config.Config, error)

// ApplyFunc applies the part of cfg it is responsible for.
type ApplyFunc func(cfg *config.Config) error

type target struct {
	name  string
	apply ApplyFunc
}

// Handler reloads the configuration and hands it to the registered targets.
type Handler struct {
	load   LoadFunc
	logger *slog.Logger

	mu      sync.Mutex
	current *config.Config
	targets []target
}

// NewHandler returns a Handler. current is the configuration the process
// started with; it is compared against reloaded ones to report settings
// that need a restart.
func NewHandler(load LoadFunc, current *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		load:    load,
		current: current,
		logger:  logger.With("component", "reload"),
	}
}

// Add registers a target. Targets are applied in registration order.
func (h *Handler) Add(name string, fn ApplyFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.targets = append(h.targets, target{name: name, apply: fn})
}

// Reload loads the configuration and applies it. A configuration that fails
// to load or validate is rejected as a whole and nothing is applied. Every
// target is tried; their errors are joined.
func (h *Handler) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg, err := h.load()
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for _, t := range h.targets {
		if err := t.apply(cfg); err != nil {
			errs = append(errs, fmt.Errorf("reload %s: %w", t.name, err))
		}
	}
	if fields := RestartRequired(h.current, cfg); len(fields) > 0 {
		h.logger.Warn("changes need a restart to take effect", "fields", fields)
	}
	h.current = cfg

	if err := errors.Join(errs...); err != nil {
		return err
	}
	h.logger.Info("configuration reloaded")
	return nil
}

// Run reloads on every value from changes or signals until ctx is done.
// Failures are logged; the running configuration stays in place.
func (h *Handler) Run(ctx context.Context, changes <-chan struct{}, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			h.logger.Info("configuration file changed")
		case sig := <-signals:
			h.logger.Info("reload requested", "signal", sig.String())
		}
		if err := h.Reload(ctx); err != nil && ctx.Err() == nil {
			h.logger.Error("reload failed", "error", err)
		}
	}
}

// LogLevel returns a target that sets level from log.level.
func LogLevel(level *slog.LevelVar) ApplyFunc {
	return func(cfg *config.Config) error {
		lvl, err := config.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		level.Set(lvl)
		return nil
	}
}

// RateLimiter is the part of security.RateLimiter the reload needs.
type RateLimiter interface {
	SetConfig(cfg security.RateLimitConfig)
}

// RateLimits returns a target that installs the rate_limits section.
func RateLimits(rl RateLimiter) ApplyFunc {
	return func(cfg *config.Config) error {
		rl.SetConfig(cfg.RateLimits)
		return nil
	}
}

// RestartRequired names the settings that differ between prev and next and
// are only read at startup.
func RestartRequired(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	var out []string
	check := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}
	check("data_dir", prev.DataDir != next.DataDir)
	check("bot", !reflect.DeepEqual(prev.Bot, next.Bot))
	check("store", !reflect.DeepEqual(prev.Store, next.Store))
	check("modules", !sameModules(prev.Modules, next.Modules))
	check("backup", !reflect.DeepEqual(prev.Backup, next.Backup))
	check("telemetry", !reflect.DeepEqual(prev.Telemetry, next.Telemetry))
	check("audit", !reflect.DeepEqual(prev.Audit, next.Audit))
	return out
}

// sameModules compares module sections by content. yaml.Node carries line
// and column positions, which move whenever anything above them is edited.
func sameModules(a, b map[string]yaml.Node) bool {
	ra, errA := yaml.Marshal(a)
	rb, errB := yaml.Marshal(b)
	return errA == nil && errB == nil && string(ra) == string(rb)
}
