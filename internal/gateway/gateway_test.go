package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/internal/channel/channeltest"
	"github.com/flemzord/autoreply/internal/core"
	"github.com/flemzord/autoreply/internal/metrics"
	"github.com/flemzord/autoreply/internal/security"
	"github.com/flemzord/autoreply/internal/settings"
)

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	info := g.ModuleInfo()

	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want %q", info.ID, "gateway.http")
	}
	if _, ok := info.New().(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "{}")); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "127.0.0.1:8080" {
		t.Errorf("Bind = %q, want default", g.config.Bind)
	}
	if g.config.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d", g.config.MaxBodyBytes)
	}
	want := Timeouts{Read: 10 * time.Second, Write: 30 * time.Second, Shutdown: 5 * time.Second}
	if g.config.Timeouts != want {
		t.Errorf("Timeouts = %+v, want %+v", g.config.Timeouts, want)
	}
}

func TestGateway_ConfigureCustom(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	node := mustYAMLNode(t, `
bind: "0.0.0.0:9090"
timeouts:
  read: 5s
auth:
  bearer_token: "my-token"
webhook_secrets:
  github: "gh-secret"
`)
	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "0.0.0.0:9090" {
		t.Errorf("Bind = %q, want custom", g.config.Bind)
	}
	if g.config.Timeouts.Read != 5*time.Second || g.config.Timeouts.Write != 30*time.Second {
		t.Errorf("Timeouts = %+v", g.config.Timeouts)
	}
	if g.config.Auth.BearerToken != "my-token" {
		t.Errorf("BearerToken = %q", g.config.Auth.BearerToken)
	}
	if g.config.WebhookSecrets["github"] != "gh-secret" {
		t.Errorf("WebhookSecrets = %+v", g.config.WebhookSecrets)
	}
}

func TestGateway_ProvisionRegistersDispatcher(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	g := &Gateway{}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	d, err := core.Service[*WebhookDispatcher](appCtx, ServiceWebhooks)
	if err != nil {
		t.Fatal(err)
	}
	if d != g.dispatcher {
		t.Error("registered dispatcher differs from the gateway's")
	}
}

func TestGateway_ProvisionCredentials(t *testing.T) {
	t.Parallel()

	t.Run("token from credential store", func(t *testing.T) {
		t.Parallel()
		creds := security.NewCredentialStore()
		creds.Set(security.CredentialGatewayToken, "from-store")
		appCtx := core.NewAppContext(testLogger(), t.TempDir())
		appCtx.RegisterService(ServiceCredentials, creds)

		g := &Gateway{}
		if err := g.Provision(appCtx); err != nil {
			t.Fatal(err)
		}
		if g.config.Auth.BearerToken != "from-store" {
			t.Errorf("BearerToken = %q", g.config.Auth.BearerToken)
		}
	})

	t.Run("configured token is published", func(t *testing.T) {
		t.Parallel()
		creds := security.NewCredentialStore()
		appCtx := core.NewAppContext(testLogger(), t.TempDir())
		appCtx.RegisterService(ServiceCredentials, creds)

		g := &Gateway{config: Config{Auth: AuthConfig{BearerToken: "from-config"}}}
		if err := g.Provision(appCtx); err != nil {
			t.Fatal(err)
		}
		if got, _ := creds.Get(security.CredentialGatewayToken); got != "from-config" {
			t.Errorf("credential = %q", got)
		}
	})
}

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"good address", Config{Bind: "127.0.0.1:8080"}, false},
		{"bad address", Config{Bind: "not a valid address::"}, true},
		{"basic user without pass", Config{Bind: "127.0.0.1:8080", Auth: AuthConfig{BasicUser: "admin"}}, true},
		{"empty webhook secret", Config{Bind: "127.0.0.1:8080", WebhookSecrets: map[string]string{"github": ""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{config: tt.cfg}
			if err := g.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type pendingFunc func() int

func (f pendingFunc) Pending() int { return f() }

type downStore struct{ ScopeStore }

func (downStore) Ping(context.Context) error { return errors.New("disk gone") }

func newStore(t *testing.T) *settings.Store {
	t.Helper()
	backend := settings.NewJSONFile(filepath.Join(t.TempDir(), "data.json"))
	store, err := settings.Open(context.Background(), backend, settings.Defaults{Owner: 1001}, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// newTestGateway builds a provisioned gateway whose services come from
// appCtx, and serves its router through httptest.
func newTestGateway(t *testing.T, auth AuthConfig, register func(*core.AppContext)) (*Gateway, *httptest.Server) {
	t.Helper()
	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	if register != nil {
		register(appCtx)
	}

	g := &Gateway{config: Config{Auth: auth}}
	if err := g.Provision(appCtx); err != nil {
		t.Fatal(err)
	}
	g.resolveServices()
	g.startedAt = time.Now()

	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)
	return g, srv
}

func get(t *testing.T, url, token string) (int, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		store      func(t *testing.T) ScopeStore
		wantCode   int
		wantStore  string
		wantStatus string
	}{
		{"reachable", func(t *testing.T) ScopeStore { return newStore(t) }, http.StatusOK, "ok", "ok"},
		{"unreachable", func(t *testing.T) ScopeStore { return downStore{newStore(t)} }, http.StatusServiceUnavailable, "unreachable", "degraded"},
		{"missing", nil, http.StatusServiceUnavailable, "missing", "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, srv := newTestGateway(t, AuthConfig{}, func(ctx *core.AppContext) {
				if tt.store != nil {
					ctx.RegisterService(ServiceStore, tt.store(t))
				}
			})

			code, body := get(t, srv.URL+"/health", "")
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			var resp HealthResponse
			if err := json.Unmarshal([]byte(body), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus || resp.Store != tt.wantStore {
				t.Errorf("health = %+v", resp)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.ObserveAutoReply("sent")
	_, srv := newTestGateway(t, AuthConfig{}, func(ctx *core.AppContext) {
		ctx.RegisterService(ServiceMetrics, m)
	})

	code, body := get(t, srv.URL+"/metrics", "")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if !strings.Contains(body, `autoreply_auto_replies_total{outcome="sent"} 1`) {
		t.Error("exposition lacks auto-reply counter")
	}
}

func TestAdminNotMountedWithoutAuth(t *testing.T) {
	t.Parallel()

	_, srv := newTestGateway(t, AuthConfig{}, nil)
	for _, path := range []string{"/status", "/api/scopes"} {
		if code, _ := get(t, srv.URL+path, ""); code != http.StatusNotFound {
			t.Errorf("%s code = %d, want 404", path, code)
		}
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	store.Get(context.Background(), settings.ChatScope("-100"))

	channels := channel.NewDispatcher()
	if err := channels.Register("telegram", channeltest.NewMockChannel("telegram", nil)); err != nil {
		t.Fatal(err)
	}

	_, srv := newTestGateway(t, AuthConfig{BearerToken: "tok"}, func(ctx *core.AppContext) {
		ctx.RegisterService(ServiceStore, store)
		ctx.RegisterService(ServiceAutoReply, pendingFunc(func() int { return 2 }))
		ctx.RegisterService(ServiceChannels, channels)
	})

	if code, _ := get(t, srv.URL+"/status", ""); code != http.StatusUnauthorized {
		t.Errorf("no token: code = %d, want 401", code)
	}

	code, body := get(t, srv.URL+"/status", "tok")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var resp StatusResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Scopes != 1 || resp.Pending != 2 {
		t.Errorf("status = %+v", resp)
	}
	if len(resp.Channels) != 1 || resp.Channels[0] != "telegram" {
		t.Errorf("channels = %v", resp.Channels)
	}
}

func TestScopesAPI(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	if _, err := store.Mutate(ctx, settings.ChatScope("-100"), func(r *settings.Record) error {
		r.Enabled = true
		r.AutoReplies = append(r.AutoReplies, "brb")
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	store.Get(ctx, settings.GlobalScope)

	_, srv := newTestGateway(t, AuthConfig{BearerToken: "tok"}, func(c *core.AppContext) {
		c.RegisterService(ServiceStore, store)
	})

	code, body := get(t, srv.URL+"/api/scopes", "tok")
	if code != http.StatusOK {
		t.Fatalf("list code = %d", code)
	}
	var list []scopeSummary
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Key != "-100" || list[1].Key != "global" {
		t.Fatalf("list = %+v", list)
	}
	if !list[0].Enabled || list[0].Replies != 2 || list[0].Privileged != 1 {
		t.Errorf("row = %+v", list[0])
	}

	code, body = get(t, srv.URL+"/api/scopes/-100", "tok")
	if code != http.StatusOK {
		t.Fatalf("get code = %d", code)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		t.Fatal(err)
	}
	if doc["enabled"] != true {
		t.Errorf("record = %v", doc)
	}
	if replies, _ := doc["auto_replies"].([]any); len(replies) != 2 {
		t.Errorf("auto_replies = %v", doc["auto_replies"])
	}

	if code, _ := get(t, srv.URL+"/api/scopes/-999", "tok"); code != http.StatusNotFound {
		t.Errorf("unknown scope code = %d, want 404", code)
	}
	if got := len(store.Keys()); got != 2 {
		t.Errorf("reading an unknown scope created a record: %d keys", got)
	}
}

// freeAddr returns a free TCP address on localhost.
func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	appCtx.RegisterService(ServiceStore, newStore(t))

	g := &Gateway{config: Config{Bind: addr}}
	if err := g.Provision(appCtx); err != nil {
		t.Fatal(err)
	}
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	code, _ := get(t, "http://"+addr+"/health", "")
	if code != http.StatusOK {
		t.Errorf("health status = %d, want %d", code, http.StatusOK)
	}

	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGateway_StopNilServer(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop on nil server should not error: %v", err)
	}
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}
