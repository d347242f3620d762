package channel_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/internal/channel/channeltest"
	"github.com/flemzord/autoreply/pkg/message"
)

type sendOnly struct{ channel.Channel }

func TestDispatcher_RegisterAndGet(t *testing.T) {
	t.Parallel()

	d := channel.NewDispatcher()
	ch := channeltest.NewMockChannel("telegram", nil)
	if err := d.Register("telegram", ch); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got, ok := d.Get("telegram"); !ok || got != ch {
		t.Error("Get returned wrong channel")
	}
	if err := d.Register("telegram", ch); !errors.Is(err, channel.ErrDuplicateChannel) {
		t.Errorf("second Register = %v, want ErrDuplicateChannel", err)
	}
	if _, ok := d.Get("discord"); ok {
		t.Error("Get found an unregistered channel")
	}
}

func TestDispatcher_SendRoutesByName(t *testing.T) {
	t.Parallel()

	d := channel.NewDispatcher()
	a := channeltest.NewMockChannel("a", nil)
	b := channeltest.NewMockChannel("b", nil)
	_ = d.Register("a", a)
	_ = d.Register("b", b)

	msg := message.OutboundMessage{Channel: "b", Chat: message.Chat{ID: "1"}, Text: "hello"}
	if err := d.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(a.SentMessages()) != 0 || len(b.SentMessages()) != 1 {
		t.Errorf("a=%d b=%d messages, want 0 and 1", len(a.SentMessages()), len(b.SentMessages()))
	}

	msg.Channel = "c"
	if err := d.Send(context.Background(), msg); !errors.Is(err, channel.ErrNoChannel) {
		t.Errorf("Send to unknown = %v, want ErrNoChannel", err)
	}
}

func TestDispatcher_Admin(t *testing.T) {
	t.Parallel()

	d := channel.NewDispatcher()
	_ = d.Register("full", channeltest.NewMockChannel("full", nil))
	_ = d.Register("basic", sendOnly{channeltest.NewMockChannel("basic", nil)})

	if _, ok := d.Admin("full"); !ok {
		t.Error("admin-capable channel not detected")
	}
	if _, ok := d.Admin("basic"); ok {
		t.Error("send-only channel reported admin capability")
	}
	if _, ok := d.Admin("missing"); ok {
		t.Error("missing channel reported admin capability")
	}
	if got := d.Channels(); !slices.Equal(got, []string{"basic", "full"}) {
		t.Errorf("Channels() = %v", got)
	}
}

func TestDispatcher_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	d := channel.NewDispatcher()
	ch := channeltest.NewMockChannel("test", nil)
	_ = d.Register("test", ch)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_ = d.Send(context.Background(), message.OutboundMessage{Channel: "test", Text: "msg"})
				d.Get("test")
				d.Channels()
			}
		}()
	}
	wg.Wait()

	if n := len(ch.SentMessages()); n != 500 {
		t.Errorf("sent %d messages, want 500", n)
	}
}
