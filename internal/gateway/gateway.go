// Package gateway provides the HTTP side of the bot: health and Prometheus
// endpoints, platform webhooks, and a read-only admin API over the scope
// settings. It binds to loopback by default and is loaded as a module.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/internal/core"
	"github.com/flemzord/autoreply/internal/metrics"
	"github.com/flemzord/autoreply/internal/security"
	"github.com/flemzord/autoreply/internal/settings"
)

// Service names the gateway publishes or resolves.
const (
	ServiceWebhooks    = "gateway.webhook_dispatcher"
	ServiceStore       = "settings.store"
	ServiceMetrics     = "metrics.registry"
	ServiceAudit       = "security.audit"
	ServiceRateLimiter = "security.ratelimiter"
	ServiceCredentials = "security.credentials"
	ServiceAutoReply   = "autoreply.dispatcher"
	ServiceChannels    = "channel.dispatcher"
)

func init() {
	core.RegisterModule(&Gateway{})
}

var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// ScopeStore is the part of the settings store the gateway reads.
type ScopeStore interface {
	Ping(ctx context.Context) error
	Keys() []settings.ScopeKey
	Snapshot(ctx context.Context) map[settings.ScopeKey]settings.Record
}

// PendingCounter reports auto-replies in flight.
type PendingCounter interface {
	Pending() int
}

// Gateway is the HTTP gateway module.
type Gateway struct {
	config     Config
	appCtx     *core.AppContext
	logger     *slog.Logger
	server     *http.Server
	dispatcher *WebhookDispatcher
	startedAt  time.Time

	// Resolved at Start from the service registry. All optional.
	store    ScopeStore
	metrics  *metrics.Metrics
	audit    *security.AuditLogger
	limiter  *security.RateLimiter
	pending  PendingCounter
	channels *channel.Dispatcher
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	g.config = g.config.withDefaults()
	return nil
}

// Provision implements core.Provisioner. The bearer token falls back to the
// credential store, and a configured token is published there so log
// redaction knows about it.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config = g.config.withDefaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.dispatcher = NewWebhookDispatcher(g.logger, g.config.MaxBodyBytes)
	for source, secret := range g.config.WebhookSecrets {
		g.dispatcher.SetSecret(source, secret)
		g.logger.Info("webhook source configured", "source", source)
	}
	ctx.RegisterService(ServiceWebhooks, g.dispatcher)

	if creds, err := core.Service[*security.CredentialStore](ctx, ServiceCredentials); err == nil {
		if g.config.Auth.BearerToken == "" {
			if tok, ok := creds.Get(security.CredentialGatewayToken); ok {
				g.config.Auth.BearerToken = tok
			}
		} else {
			creds.Set(security.CredentialGatewayToken, g.config.Auth.BearerToken)
		}
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves optional services and starts
// the HTTP server.
func (g *Gateway) Start() error {
	g.resolveServices()
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway admin API disabled: no auth configured")
	}

	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.Timeouts.Read,
		WriteTimeout: g.config.Timeouts.Write,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.Timeouts.Shutdown)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

func (g *Gateway) resolveServices() {
	if s, err := core.Service[ScopeStore](g.appCtx, ServiceStore); err == nil {
		g.store = s
	}
	if m, err := core.Service[*metrics.Metrics](g.appCtx, ServiceMetrics); err == nil {
		g.metrics = m
	}
	if a, err := core.Service[*security.AuditLogger](g.appCtx, ServiceAudit); err == nil {
		g.audit = a
	}
	if rl, err := core.Service[*security.RateLimiter](g.appCtx, ServiceRateLimiter); err == nil {
		g.limiter = rl
	}
	if p, err := core.Service[PendingCounter](g.appCtx, ServiceAutoReply); err == nil {
		g.pending = p
	}
	if d, err := core.Service[*channel.Dispatcher](g.appCtx, ServiceChannels); err == nil {
		g.channels = d
	}
}
