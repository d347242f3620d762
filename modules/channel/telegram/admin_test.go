package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/pkg/message"
)

func TestAdminCalls(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var raw map[string]any
		_ = json.Unmarshal(body, &raw)
		if raw["chat_id"] != float64(-100) {
			t.Errorf("%s: chat_id = %v, want -100", r.URL.Path, raw["chat_id"])
		}

		switch {
		case strings.HasSuffix(r.URL.Path, "/setChatTitle"):
			if raw["title"] != "New title" {
				t.Errorf("title = %v", raw["title"])
			}
			writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})
		case strings.HasSuffix(r.URL.Path, "/createChatInviteLink"):
			writeJSON(t, w, APIResponse[ChatInviteLink]{OK: true, Result: ChatInviteLink{InviteLink: "https://t.me/+abc"}})
		case strings.HasSuffix(r.URL.Path, "/banChatMember"):
			if raw["user_id"] != float64(55) {
				t.Errorf("user_id = %v, want 55", raw["user_id"])
			}
			writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})
		default:
			t.Errorf("unexpected API call: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	tg := newTestTelegram(srv.URL)
	ctx := context.Background()
	chat := message.Chat{ID: "-100", Type: message.ChatGroup}

	if err := tg.SetTitle(ctx, chat, "New title"); err != nil {
		t.Errorf("SetTitle() error: %v", err)
	}
	link, err := tg.CreateInviteLink(ctx, chat)
	if err != nil {
		t.Errorf("CreateInviteLink() error: %v", err)
	}
	if link != "https://t.me/+abc" {
		t.Errorf("link = %q", link)
	}
	if err := tg.BanMember(ctx, chat, 55); err != nil {
		t.Errorf("BanMember() error: %v", err)
	}
}

func TestResolveIdentityFromCache(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(t, w, APIResponse[Chat]{OK: true, Result: Chat{ID: 1, Type: "private"}})
	}))
	defer srv.Close()

	tg := newTestTelegram(srv.URL)
	tg.handles.observe(message.InboundMessage{
		Sender: message.Sender{ID: "42", Username: "Alice"},
		ReplyTo: &message.ReplyRef{
			MessageID: "1",
			Sender:    message.Sender{ID: "43", Username: "bob"},
		},
	})

	for handle, want := range map[string]int64{"@alice": 42, "ALICE": 42, "@bob": 43} {
		got, err := tg.ResolveIdentity(context.Background(), handle)
		if err != nil {
			t.Errorf("ResolveIdentity(%q) error: %v", handle, err)
		}
		if got != want {
			t.Errorf("ResolveIdentity(%q) = %d, want %d", handle, got, want)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("API called %d times, want 0", calls.Load())
	}
}

func TestResolveIdentityViaGetChat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)

		switch req["chat_id"] {
		case "@carol":
			writeJSON(t, w, APIResponse[Chat]{OK: true, Result: Chat{ID: 77, Type: "private"}})
		case "@somegroup":
			writeJSON(t, w, APIResponse[Chat]{OK: true, Result: Chat{ID: -5, Type: "supergroup"}})
		case "@broken":
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(t, w, APIResponse[json.RawMessage]{OK: false, ErrorCode: 500, Description: "Internal"})
		default:
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(t, w, APIResponse[json.RawMessage]{OK: false, ErrorCode: 400, Description: "Bad Request: chat not found"})
		}
	}))
	defer srv.Close()

	tg := newTestTelegram(srv.URL)
	ctx := context.Background()

	id, err := tg.ResolveIdentity(ctx, "@Carol")
	if err != nil || id != 77 {
		t.Errorf("ResolveIdentity(@Carol) = %d, %v; want 77", id, err)
	}

	if _, err := tg.ResolveIdentity(ctx, "@ghost"); !errors.Is(err, channel.ErrIdentityNotFound) {
		t.Errorf("ResolveIdentity(@ghost) error = %v, want ErrIdentityNotFound", err)
	}
	if _, err := tg.ResolveIdentity(ctx, "@somegroup"); !errors.Is(err, channel.ErrIdentityNotFound) {
		t.Errorf("ResolveIdentity(@somegroup) error = %v, want ErrIdentityNotFound", err)
	}

	_, err = tg.ResolveIdentity(ctx, "@broken")
	if err == nil || errors.Is(err, channel.ErrIdentityNotFound) {
		t.Errorf("ResolveIdentity(@broken) error = %v, want platform error", err)
	}
}

func TestHandleCacheResets(t *testing.T) {
	t.Parallel()

	c := newHandleCache()
	for i := range maxKnownHandles {
		c.ids["user"+strconv.Itoa(i)] = int64(i)
	}
	c.remember(message.Sender{ID: "1", Username: "newcomer"})

	if len(c.ids) != 1 {
		t.Errorf("len = %d, want 1 after reset", len(c.ids))
	}
	if id, ok := c.lookup("@newcomer"); !ok || id != 1 {
		t.Errorf("lookup(newcomer) = %d, %v", id, ok)
	}
}

func TestHandleCacheIgnoresIncomplete(t *testing.T) {
	t.Parallel()

	c := newHandleCache()
	c.remember(message.Sender{ID: "1"})
	c.remember(message.Sender{Username: "nobody"})
	c.remember(message.Sender{ID: "not-a-number", Username: "weird"})
	if len(c.ids) != 0 {
		t.Errorf("len = %d, want 0", len(c.ids))
	}
}
