package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App owns the loaded modules and drives their start/stop lifecycle.
type App struct {
	ctx     *AppContext
	logger  *slog.Logger
	loaded  []loadedModule
	stopped bool
}

type loadedModule struct {
	id      ModuleID
	module  Module
	running bool
}

// NewApp creates an App bound to ctx.
func NewApp(ctx *AppContext) *App {
	return &App{ctx: ctx, logger: ctx.Logger.With("component", "core")}
}

// LoadModules loads every module in ids, in order. On failure the modules
// already loaded are stopped and discarded.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.discard()
			return err
		}
		a.loaded = append(a.loaded, loadedModule{id: mod.ModuleInfo().ID, module: mod})
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, lm := range a.loaded {
		if string(lm.id) == id {
			return lm.module, true
		}
	}
	return nil, false
}

// AppendModule adds an already built component to the lifecycle. It is
// started after the configured modules and stopped before them.
func (a *App) AppendModule(id ModuleID, mod Module) {
	a.loaded = append(a.loaded, loadedModule{id: id, module: mod})
}

// Start starts every Starter in load order. If one fails the modules started
// before it are stopped in reverse order.
func (a *App) Start() error {
	for i := range a.loaded {
		lm := &a.loaded[i]
		s, ok := lm.module.(Starter)
		if !ok {
			continue
		}
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(lm.id), "error", err)
			a.stopFrom(i - 1)
			return fmt.Errorf("starting module %s: %w", lm.id, err)
		}
		lm.running = true
		a.logger.Info("module started", "module", string(lm.id))
	}
	return nil
}

// Stop stops running modules in reverse order. It is idempotent.
func (a *App) Stop() {
	if a.stopped {
		return
	}
	a.stopped = true
	a.stopFrom(len(a.loaded) - 1)
}

// Run starts all modules, blocks until ctx is cancelled, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	a.logger.Info("shutting down")
	a.Stop()
	return nil
}

func (a *App) stopFrom(idx int) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := idx; i >= 0; i-- {
		lm := &a.loaded[i]
		if !lm.running {
			continue
		}
		if s, ok := lm.module.(Stopper); ok {
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("module stop failed", "module", string(lm.id), "error", err)
			}
		}
		lm.running = false
	}
}

func (a *App) discard() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(a.loaded) - 1; i >= 0; i-- {
		if s, ok := a.loaded[i].module.(Stopper); ok {
			_ = s.Stop(ctx)
		}
	}
	a.loaded = nil
}
