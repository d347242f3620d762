package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/internal/core"
	"github.com/flemzord/autoreply/internal/gateway"
	"github.com/flemzord/autoreply/internal/security"
	"github.com/flemzord/autoreply/pkg/message"
)

// fakeBotAPI is a minimal Bot API server. It serves one update on the first
// poll and records every sendMessage call.
type fakeBotAPI struct {
	t      *testing.T
	mu     sync.Mutex
	sent   []SendMessageRequest
	calls  []string
	served bool
	hook   SetWebhookRequest
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.mu.Unlock()

	switch method {
	case "getMe":
		writeJSON(f.t, w, APIResponse[User]{OK: true, Result: User{ID: 111, IsBot: true, FirstName: "Bot", Username: "reply_bot"}})
	case "deleteWebhook":
		writeJSON(f.t, w, APIResponse[bool]{OK: true, Result: true})
	case "setWebhook":
		f.mu.Lock()
		_ = json.Unmarshal(body, &f.hook)
		f.mu.Unlock()
		writeJSON(f.t, w, APIResponse[bool]{OK: true, Result: true})
	case "getUpdates":
		f.mu.Lock()
		first := !f.served
		f.served = true
		f.mu.Unlock()
		if !first {
			writeJSON(f.t, w, APIResponse[[]Update]{OK: true, Result: []Update{}})
			time.Sleep(20 * time.Millisecond)
			return
		}
		writeJSON(f.t, w, APIResponse[[]Update]{OK: true, Result: []Update{
			{UpdateID: 1, Message: &Message{
				MessageID: 100,
				From:      &User{ID: 42, FirstName: "Alice", Username: "alice"},
				Chat:      Chat{ID: 42, Type: "private"},
				Text:      "ping",
				Date:      int(time.Now().Unix()),
			}},
			{UpdateID: 2, Message: &Message{
				MessageID: 101,
				From:      &User{ID: 99, FirstName: "Mallory", Username: "mallory"},
				Chat:      Chat{ID: 99, Type: "private"},
				Text:      "denied",
			}},
		}})
	case "sendMessage":
		var req SendMessageRequest
		_ = json.Unmarshal(body, &req)
		f.mu.Lock()
		f.sent = append(f.sent, req)
		f.mu.Unlock()
		writeJSON(f.t, w, APIResponse[Message]{OK: true, Result: Message{MessageID: 200}})
	default:
		f.t.Errorf("unexpected API call: %s", r.URL.Path)
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (f *fakeBotAPI) called(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == method {
			return true
		}
	}
	return false
}

func configure(t *testing.T, tg *Telegram, src string) {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if err := tg.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}
}

// TestLifecycle exercises Configure, Provision, Validate, Start, an inbound
// message, the reply and Stop against a fake Bot API in polling mode.
func TestLifecycle(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{t: t}
	srv := httptest.NewServer(api)
	defer srv.Close()

	tg := &Telegram{}
	configure(t, tg, `
token: "123:TEST_TOKEN"
mode: polling
polling_timeout: 0
allow_users: ["42"]
api_url: "`+srv.URL+`"
`)

	appCtx := core.NewAppContext(discardLogger(), t.TempDir()).ForModule(ModuleID)
	if err := tg.Provision(appCtx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	if err := tg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	inbox := make(chan message.InboundMessage, 4)
	tg.SetInbox(func(msg message.InboundMessage) error {
		inbox <- msg
		return nil
	})

	if err := tg.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if tg.BotUser() == nil || tg.BotUser().Username != "reply_bot" {
		t.Errorf("BotUser() = %+v", tg.BotUser())
	}
	if !api.called("deleteWebhook") {
		t.Error("polling start should clear any webhook")
	}

	var in message.InboundMessage
	select {
	case in = <-inbox:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
	if in.Text != "ping" || in.Channel != "telegram" {
		t.Errorf("inbound = %+v", in)
	}

	if err := tg.Send(context.Background(), message.NewReply(in, "pong")); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if err := tg.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	select {
	case extra := <-inbox:
		t.Errorf("message from non-allowed user delivered: %+v", extra)
	default:
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(api.sent))
	}
	if api.sent[0].ChatID != 42 || api.sent[0].Text != "pong" {
		t.Errorf("sent = %+v", api.sent[0])
	}
	if api.sent[0].ReplyParameters == nil || api.sent[0].ReplyParameters.MessageID != 100 {
		t.Errorf("reply parameters = %+v, want message 100", api.sent[0].ReplyParameters)
	}

	// The handle seen on the inbound message resolves without an API call.
	if id, err := tg.ResolveIdentity(context.Background(), "@alice"); err != nil || id != 42 {
		t.Errorf("ResolveIdentity(@alice) = %d, %v", id, err)
	}
}

func TestWebhookMode(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{t: t}
	srv := httptest.NewServer(api)
	defer srv.Close()

	appCtx := core.NewAppContext(discardLogger(), t.TempDir())
	dispatcher := gateway.NewWebhookDispatcher(discardLogger(), 0)
	appCtx.RegisterService(gateway.ServiceWebhooks, dispatcher)

	tg := &Telegram{}
	configure(t, tg, `
token: "123:TEST_TOKEN"
mode: webhook
webhook_url: "https://example.com/webhooks/telegram"
webhook_secret: "hook-secret"
api_url: "`+srv.URL+`"
`)
	if err := tg.Provision(appCtx.ForModule(ModuleID)); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	if err := tg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	inbox := make(chan message.InboundMessage, 1)
	tg.SetInbox(func(msg message.InboundMessage) error {
		inbox <- msg
		return nil
	})
	if err := tg.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !dispatcher.Registered("telegram") {
		t.Fatal("webhook receiver not registered with the gateway")
	}
	api.mu.Lock()
	if api.hook.URL != "https://example.com/webhooks/telegram" || api.hook.SecretToken != "hook-secret" {
		t.Errorf("setWebhook = %+v", api.hook)
	}
	api.mu.Unlock()

	r := chi.NewRouter()
	r.Post("/webhooks/{source}", dispatcher.ServeHTTP)
	gw := httptest.NewServer(r)
	defer gw.Close()

	post := func(secret string) int {
		body := []byte(`{"update_id":7,"message":{"message_id":3,"from":{"id":5,"first_name":"Eve"},"chat":{"id":5,"type":"private"},"text":"hello"}}`)
		req, _ := http.NewRequest(http.MethodPost, gw.URL+"/webhooks/telegram", bytes.NewReader(body))
		req.Header.Set(secretHeader, secret)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("post webhook: %v", err)
		}
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	if code := post("wrong"); code != http.StatusUnauthorized {
		t.Errorf("wrong secret status = %d, want 401", code)
	}
	if code := post("hook-secret"); code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}

	select {
	case msg := <-inbox:
		if msg.Text != "hello" || msg.Sender.ID != "5" {
			t.Errorf("inbound = %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook message")
	}

	if err := tg.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if !api.called("deleteWebhook") {
		t.Error("Stop() should delete the webhook")
	}
}

func TestWebhookModeWithoutGateway(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{t: t}
	srv := httptest.NewServer(api)
	defer srv.Close()

	tg := &Telegram{}
	configure(t, tg, `
token: "123:TEST_TOKEN"
mode: webhook
webhook_url: "https://example.com/hook"
api_url: "`+srv.URL+`"
`)
	if err := tg.Provision(core.NewAppContext(discardLogger(), t.TempDir())); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	tg.SetInbox(func(message.InboundMessage) error { return nil })

	if err := tg.Start(); err == nil {
		t.Fatal("Start() should fail without the gateway webhook dispatcher")
	}
}

func TestStartWithoutInbox(t *testing.T) {
	t.Parallel()

	tg := newTestTelegram("http://127.0.0.1:0")
	if err := tg.Start(); !errors.Is(err, channel.ErrNoInbox) {
		t.Errorf("Start() error = %v, want ErrNoInbox", err)
	}
}

func TestStartInvalidToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(t, w, APIResponse[json.RawMessage]{OK: false, ErrorCode: 401, Description: "Unauthorized"})
	}))
	defer srv.Close()

	tg := newTestTelegram(srv.URL)
	tg.SetInbox(func(message.InboundMessage) error { return nil })
	if err := tg.Start(); err == nil {
		t.Fatal("Start() should fail when getMe is refused")
	}
}

func TestProvisionCredentials(t *testing.T) {
	t.Parallel()

	t.Run("token from credential store", func(t *testing.T) {
		t.Parallel()
		creds := security.NewCredentialStore()
		creds.Set(security.CredentialBotToken, "9:FROM_STORE")
		appCtx := core.NewAppContext(discardLogger(), t.TempDir())
		appCtx.RegisterService(gateway.ServiceCredentials, creds)

		tg := &Telegram{}
		if err := tg.Provision(appCtx); err != nil {
			t.Fatalf("Provision() error: %v", err)
		}
		if tg.config.Token != "9:FROM_STORE" {
			t.Errorf("Token = %q, want credential store value", tg.config.Token)
		}
		if err := tg.Validate(); err != nil {
			t.Errorf("Validate() error: %v", err)
		}
	})

	t.Run("configured token is published", func(t *testing.T) {
		t.Parallel()
		creds := security.NewCredentialStore()
		appCtx := core.NewAppContext(discardLogger(), t.TempDir())
		appCtx.RegisterService(gateway.ServiceCredentials, creds)

		tg := &Telegram{config: Config{Token: "1:CONFIGURED"}}
		if err := tg.Provision(appCtx); err != nil {
			t.Fatalf("Provision() error: %v", err)
		}
		if got, _ := creds.Get(security.CredentialBotToken); got != "1:CONFIGURED" {
			t.Errorf("credential = %q, want configured token", got)
		}
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid polling", cfg: Config{Token: "1:abc"}},
		{name: "missing token", cfg: Config{}, wantErr: true},
		{name: "bad token format", cfg: Config{Token: "nope"}, wantErr: true},
		{name: "bad mode", cfg: Config{Token: "1:abc", Mode: "carrier-pigeon"}, wantErr: true},
		{name: "webhook without url", cfg: Config{Token: "1:abc", Mode: ModeWebhook}, wantErr: true},
		{name: "webhook with url", cfg: Config{Token: "1:abc", Mode: ModeWebhook, WebhookURL: "https://x/y"}},
		{name: "polling timeout too high", cfg: Config{Token: "1:abc", PollingTimeout: 60}, wantErr: true},
		{name: "request timeout below poll", cfg: Config{Token: "1:abc", PollingTimeout: 30, RequestTimeout: 10 * time.Second}, wantErr: true},
		{name: "message length too high", cfg: Config{Token: "1:abc", MaxMessageLength: 5000}, wantErr: true},
		{name: "bad api url", cfg: Config{Token: "1:abc", APIURL: "ftp://x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tg := &Telegram{config: tt.cfg}
			tg.config.defaults()
			err := tg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestModuleInfo(t *testing.T) {
	t.Parallel()

	info := (&Telegram{}).ModuleInfo()
	if info.ID != "channel.telegram" {
		t.Errorf("ID = %q", info.ID)
	}
	if _, ok := info.New().(*Telegram); !ok {
		t.Error("New() did not return *Telegram")
	}
	if ModuleID.Name() != "telegram" {
		t.Errorf("Name() = %q, want telegram", ModuleID.Name())
	}
}
