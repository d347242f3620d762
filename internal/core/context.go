package core

import (
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppContext carries the shared resources handed to modules while they are
// provisioned: a scoped logger, the data directory, raw module configs and a
// registry of named services (the settings store, the inbox handler, ...).
type AppContext struct {
	Logger  *slog.Logger
	DataDir string

	root          *slog.Logger
	moduleConfigs map[string]yaml.Node
	services      *serviceRegistry
}

type serviceRegistry struct {
	mu    sync.RWMutex
	items map[string]any
}

// NewAppContext creates a root AppContext. A nil logger falls back to slog.Default.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:   logger,
		DataDir:  dataDir,
		root:     logger,
		services: &serviceRegistry{items: make(map[string]any)},
	}
}

// WithModuleConfigs returns a copy of ctx carrying the given per-module YAML
// nodes, keyed by module ID. Services stay shared with the original.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.moduleConfigs = configs
	return &cp
}

// ForModule returns a copy of ctx whose logger is tagged with the module ID.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// RegisterService publishes a value under name. Registering the same name
// twice replaces the previous value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.items[name] = svc
}

// GetService returns the value registered under name.
func (ctx *AppContext) GetService(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.items[name]
	return svc, ok
}

// Service fetches a named service and asserts its type.
func Service[T any](ctx *AppContext, name string) (T, error) {
	var zero T
	raw, ok := ctx.GetService(name)
	if !ok {
		return zero, fmt.Errorf("core: service %q not registered", name)
	}
	svc, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("core: service %q has type %T, want %T", name, raw, zero)
	}
	return svc, nil
}

// LoadModule builds the module registered under id and runs
// Configure → Provision → Validate on it, skipping the stages it does not
// implement.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := LookupModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}

	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		if node, exists := ctx.moduleConfigs[id]; exists {
			if err := c.Configure(&node); err != nil {
				return nil, fmt.Errorf("configuring module %s: %w", id, err)
			}
		}
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("provisioning module %s: %w", id, err)
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validating module %s: %w", id, err)
		}
	}
	return mod, nil
}
