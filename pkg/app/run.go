// Package app assembles the autoreply process: configuration, logging, the
// settings store, the command and auto-reply pipeline, channel modules and
// scheduled jobs. It is shared by every subcommand of the autoreply binary.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flemzord/autoreply/internal/auth"
	"github.com/flemzord/autoreply/internal/autoreply"
	"github.com/flemzord/autoreply/internal/bot"
	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/internal/command"
	"github.com/flemzord/autoreply/internal/config"
	"github.com/flemzord/autoreply/internal/core"
	"github.com/flemzord/autoreply/internal/cron"
	"github.com/flemzord/autoreply/internal/gateway"
	"github.com/flemzord/autoreply/internal/metrics"
	"github.com/flemzord/autoreply/internal/reload"
	"github.com/flemzord/autoreply/internal/security"
	"github.com/flemzord/autoreply/internal/settings"
	"github.com/flemzord/autoreply/internal/telemetry"

	// Modules register themselves with core in init.
	_ "github.com/flemzord/autoreply/modules/channel/telegram"
)

// DefaultDotEnv is loaded before the configuration when RunParams.DotEnv is nil.
const DefaultDotEnv = ".env"

// shutdownTimeout bounds the cleanup after the modules have stopped.
const shutdownTimeout = 10 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.Find searches the default locations.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides data_dir from the configuration.
	DataDir string

	// LogLevel, when non-nil, overrides log.level.
	LogLevel *slog.Level

	// LogOutput receives the process log. Defaults to os.Stderr.
	LogOutput io.Writer

	// DotEnv lists .env files loaded into the environment first.
	DotEnv []string
}

// Runtime is a fully wired process, ready to Run.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *settings.Store
	Metrics   *metrics.Metrics
	Channels  *channel.Dispatcher
	Replies   *autoreply.Dispatcher
	Bot       *bot.Bot
	Scheduler *cron.Scheduler
	// Backup is nil when no backup schedule is configured.
	Backup *cron.BackupJob

	app       *core.App
	telemetry *telemetry.Provider
	closers   []io.Closer
}

// Run loads configuration, starts all modules, and blocks until ctx is
// cancelled or SIGINT/SIGTERM is received.
func Run(ctx context.Context, params RunParams) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := Build(ctx, params)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.Run(ctx)
}

// LoadConfig loads .env files and the configuration file, applies the
// parameter overrides and validates the result.
func LoadConfig(params RunParams) (*config.Config, string, error) {
	dotenv := params.DotEnv
	if dotenv == nil {
		dotenv = []string{DefaultDotEnv}
	}
	if err := config.LoadDotEnv(dotenv...); err != nil {
		return nil, "", err
	}

	path, err := config.Find(params.ConfigPath)
	if err != nil {
		return nil, "", err
	}
	// A .env beside the configuration file fills what the earlier ones left unset.
	if path != "" && params.DotEnv == nil {
		if err := config.LoadDotEnv(filepath.Join(filepath.Dir(path), DefaultDotEnv)); err != nil {
			return nil, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if params.DataDir != "" {
		cfg.DataDir = params.DataDir
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Build wires every component without starting anything. On error whatever
// was opened is closed again.
func Build(ctx context.Context, params RunParams) (rt *Runtime, err error) {
	cfg, cfgPath, err := LoadConfig(params)
	if err != nil {
		return nil, err
	}

	rt = &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	// Security foundation: secrets are known to the redactor before the
	// first log line is written.
	credStore := security.NewCredentialStore()
	credStore.Set(security.CredentialBotToken, cfg.Bot.Token)
	redactor := security.NewRedactor()
	redactor.SyncCredentials(credStore)

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return rt, err
	}
	if params.LogLevel != nil {
		level = *params.LogLevel
	}
	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	logger := security.NewLogger(out, levelVar, redactor)
	rt.Logger = logger
	logger.Info("starting autoreply",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
	)

	if t := cfg.Telemetry; t != nil {
		rt.telemetry, err = telemetry.Init(ctx, telemetry.Config{
			Endpoint:    t.Endpoint,
			Insecure:    t.Insecure,
			ServiceName: t.ServiceName,
			Version:     params.Version,
			SampleRatio: t.SampleRatio,
			Timeout:     t.Timeout,
		})
		if err != nil {
			return rt, err
		}
		logger.Info("trace export enabled", "endpoint", t.Endpoint)
	}

	m := metrics.New()
	rt.Metrics = m

	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return rt, fmt.Errorf("creating data dir: %w", err)
	}

	store, err := openStore(ctx, cfg, dataDir, logger, m)
	if err != nil {
		return rt, err
	}
	rt.Store = store
	rt.closers = append(rt.closers, store)

	owner := settings.Identity(cfg.Bot.OwnerID)
	policy, err := auth.New(cfg.Bot.Policy, owner, store)
	if err != nil {
		return rt, err
	}

	auditPath := filepath.Join(dataDir, "audit.jsonl")
	if cfg.Audit != nil && cfg.Audit.Path != "" {
		auditPath = cfg.Audit.Path
	}
	auditFile, err := security.OpenAuditFile(auditPath)
	if err != nil {
		return rt, err
	}
	rt.closers = append(rt.closers, auditFile)
	auditLogger := security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   auditFile,
		Redactor: redactor,
	})

	rateLimiter := security.NewRateLimiter(cfg.RateLimits)
	channels := channel.NewDispatcher()
	rt.Channels = channels

	processor, err := command.New(command.Config{
		Store:         store,
		Policy:        policy,
		Owner:         owner,
		Admins:        channels,
		Auditor:       auditLogger,
		Observe:       m.ObserveCommand,
		PerChatScopes: cfg.Bot.ScopeMode != bot.ScopeGlobal,
		Logger:        logger,
	})
	if err != nil {
		return rt, err
	}

	replies, err := autoreply.New(autoreply.Config{
		Store:         store,
		Sender:        channels,
		CommandPrefix: cfg.Bot.CommandPrefix,
		Observe:       m.ObserveAutoReply,
		Logger:        logger,
	})
	if err != nil {
		return rt, err
	}
	rt.Replies = replies
	m.TrackPending(replies.Pending)

	b, err := bot.New(bot.Config{
		Commands:      processor,
		Messages:      replies,
		Sender:        channels,
		ScopeMode:     cfg.Bot.ScopeMode,
		CommandPrefix: cfg.Bot.CommandPrefix,
		Limiter:       rateLimiter,
		Observe: func(kind string) {
			m.ObserveInbound(kind)
			if kind == bot.KindLimited {
				m.ObserveRateLimited()
			}
		},
		Logger: logger,
	})
	if err != nil {
		return rt, err
	}
	rt.Bot = b

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(gateway.ServiceCredentials, credStore)
	appCtx.RegisterService(gateway.ServiceStore, store)
	appCtx.RegisterService(gateway.ServiceMetrics, m)
	appCtx.RegisterService(gateway.ServiceAudit, auditLogger)
	appCtx.RegisterService(gateway.ServiceRateLimiter, rateLimiter)
	appCtx.RegisterService(gateway.ServiceAutoReply, replies)
	appCtx.RegisterService(gateway.ServiceChannels, channels)

	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return rt, err
	}
	rt.app = application

	// Modules may have published further secrets while provisioning.
	redactor.SyncCredentials(credStore)

	if err := wireChannels(application, ids, channels, b.Handle, logger); err != nil {
		return rt, err
	}

	rt.Scheduler = cron.NewScheduler(logger)
	if bc := cfg.Backup; bc != nil {
		rt.Backup = newBackupJob(bc, store, dataDir, logger)
		if err := rt.Scheduler.RegisterJob(rt.Backup); err != nil {
			return rt, err
		}
	}

	// Appended components stop before the channels: pending replies get a
	// chance to go out while the channels are still up.
	application.AppendModule("cron.scheduler", &schedulerModule{scheduler: rt.Scheduler})
	application.AppendModule("autoreply.dispatcher", &repliesModule{replies: replies})

	if cfgPath != "" {
		reloader := reload.NewHandler(func() (*config.Config, error) {
			next, _, err := LoadConfig(RunParams{ConfigPath: cfgPath, DataDir: params.DataDir, DotEnv: []string{}})
			return next, err
		}, cfg, logger)
		// A level given on the command line outranks the file.
		if params.LogLevel == nil {
			reloader.Add("log", reload.LogLevel(levelVar))
		}
		reloader.Add("rate_limits", reload.RateLimits(rateLimiter))
		application.AppendModule("config.reload", &reloadModule{
			handler: reloader,
			watcher: reload.NewWatcher(cfgPath, reload.DefaultPollInterval),
		})
	}

	return rt, nil
}

// Run starts the modules and blocks until ctx is cancelled.
func (rt *Runtime) Run(ctx context.Context) error {
	if err := rt.app.Run(ctx); err != nil {
		return err
	}
	rt.Logger.Info("shutdown complete")
	return nil
}

// BackupNow runs the backup job once, outside its schedule.
func (rt *Runtime) BackupNow(ctx context.Context) (string, error) {
	job := rt.Backup
	if job == nil {
		job = newBackupJob(&config.BackupConfig{}, rt.Store, rt.Config.ResolvedDataDir(), rt.Logger)
		if err := rt.Scheduler.RegisterJob(job); err != nil {
			return "", err
		}
		rt.Backup = job
	}
	if err := rt.Scheduler.RunNow(ctx, job.Name()); err != nil {
		return "", err
	}
	names, err := job.Backups()
	if err != nil || len(names) == 0 {
		return "", err
	}
	return filepath.Join(job.Dir, names[len(names)-1]), nil
}

// Close releases the store, the audit log and the tracer provider. It is
// safe to call on a partially built Runtime.
func (rt *Runtime) Close() {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i].Close())
	}
	rt.closers = nil

	if rt.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, rt.telemetry.Shutdown(ctx))
		cancel()
		rt.telemetry = nil
	}

	if err := errors.Join(errs...); err != nil && rt.Logger != nil {
		rt.Logger.Error("cleanup failed", "error", err)
	}
}

// OpenStore opens the settings store named by cfg and nothing else. It
// serves the offline subcommands; the caller closes the store.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*settings.Store, error) {
	return openStore(ctx, cfg, cfg.ResolvedDataDir(), logger, nil)
}

func openStore(ctx context.Context, cfg *config.Config, dataDir string, logger *slog.Logger, m *metrics.Metrics) (*settings.Store, error) {
	backend, err := settings.NewBackend(ctx, settings.BackendConfig{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		WAL:         cfg.Store.WAL,
		BusyTimeout: cfg.Store.BusyTimeout,
	}, dataDir)
	if err != nil {
		return nil, err
	}

	var opts []settings.Option
	if m != nil {
		opts = append(opts, settings.WithFlushObserver(m.ObserveFlush))
	}
	store, err := settings.Open(ctx, backend, settings.Defaults{
		Owner: settings.Identity(cfg.Bot.OwnerID),
		Delay: cfg.Bot.Defaults.Delay,
		Reply: cfg.Bot.Defaults.Reply,
	}, logger, opts...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return store, nil
}

func newBackupJob(bc *config.BackupConfig, store *settings.Store, dataDir string, logger *slog.Logger) *cron.BackupJob {
	dir := bc.Dir
	if dir == "" {
		dir = filepath.Join(dataDir, "backups")
	}
	return &cron.BackupJob{
		Store:        store,
		Dir:          dir,
		Keep:         bc.Keep,
		ScheduleExpr: bc.Schedule,
		Logger:       logger,
	}
}
