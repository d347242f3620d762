// Package service installs and runs the bot as an operating system service
// (systemd, launchd or the Windows service manager).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kardianos/service"
)

// RunFunc runs the bot until ctx is cancelled.
type RunFunc func(ctx context.Context) error

// Config describes the service registration.
type Config struct {
	Name        string
	DisplayName string
	Description string
	// ConfigPath is passed back to the binary as --config when set.
	ConfigPath string
	// UserService installs a per-user unit instead of a system one.
	UserService bool
	// StopTimeout bounds how long Stop waits for RunFunc to return.
	StopTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "autoreply"
	}
	if c.DisplayName == "" {
		c.DisplayName = "Autoreply bot"
	}
	if c.Description == "" {
		c.Description = "Telegram auto-reply bot"
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 15 * time.Second
	}
	return c
}

// Arguments returns the command line the service manager starts the binary
// with.
func (c Config) Arguments() []string {
	args := []string{"service", "run"}
	if c.ConfigPath != "" {
		args = append(args, "--config", c.ConfigPath)
	}
	return args
}

// ErrUnknownAction is returned by Control for actions the service manager
// does not support.
var ErrUnknownAction = errors.New("service: unknown action")

// Manager wraps a platform service around a RunFunc.
type Manager struct {
	svc     service.Service
	program *program
}

// New builds a Manager. Nothing is installed until Install is called.
func New(cfg Config, run RunFunc, logger *slog.Logger) (*Manager, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	prg := &program{run: run, timeout: cfg.StopTimeout, logger: logger}
	svc, err := service.New(prg, &service.Config{
		Name:        cfg.Name,
		DisplayName: cfg.DisplayName,
		Description: cfg.Description,
		Arguments:   cfg.Arguments(),
		Option:      service.KeyValue{"UserService": cfg.UserService},
	})
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return &Manager{svc: svc, program: prg}, nil
}

// Run blocks under the service manager until it asks the service to stop.
// Outside a service manager it runs in the foreground until interrupted.
func (m *Manager) Run() error {
	if err := m.svc.Run(); err != nil {
		return fmt.Errorf("service: run: %w", err)
	}
	return m.program.Err()
}

// Control performs one of the service manager actions: start, stop,
// restart, install or uninstall.
func (m *Manager) Control(action string) error {
	if !slices.Contains(service.ControlAction[:], action) {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if err := service.Control(m.svc, action); err != nil {
		return fmt.Errorf("service: %s: %w", action, err)
	}
	return nil
}

// Status reports the installed service state as text.
func (m *Manager) Status() (string, error) {
	st, err := m.svc.Status()
	if err != nil {
		if errors.Is(err, service.ErrNotInstalled) {
			return "not installed", nil
		}
		return "", fmt.Errorf("service: status: %w", err)
	}
	return statusText(st), nil
}

// Platform names the service manager in use.
func (m *Manager) Platform() string {
	return m.svc.Platform()
}

func statusText(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// program adapts a RunFunc to service.Interface. Start must not block, so
// the RunFunc runs in its own goroutine until Stop cancels it.
type program struct {
	run     RunFunc
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

var _ service.Interface = (*program)(nil)

// Start implements service.Interface.
func (p *program) Start(_ service.Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return errors.New("service: already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		err := p.run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("service: bot exited", "error", err)
		}
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
	}()
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(_ service.Service) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-time.After(p.timeout):
		return fmt.Errorf("service: bot did not stop within %s", p.timeout)
	}
}

// Err returns the RunFunc's result once it has returned. Cancellation is
// not an error.
func (p *program) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if errors.Is(p.err, context.Canceled) {
		return nil
	}
	return p.err
}
