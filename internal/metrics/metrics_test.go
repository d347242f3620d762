package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCommand(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveCommand("enable", "ok", 3*time.Millisecond)
	m.ObserveCommand("enable", "ok", time.Millisecond)
	m.ObserveCommand("enable", "unauthorized", time.Millisecond)
	m.ObserveCommand("rm -rf", "unknown_command", 0)

	if got := testutil.ToFloat64(m.commands.WithLabelValues("enable", "ok")); got != 2 {
		t.Errorf("enable/ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("unknown", "unknown_command")); got != 1 {
		t.Errorf("unknown = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.commandDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestObserveFlushAndAutoReply(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveFlush(time.Millisecond, nil)
	m.ObserveFlush(time.Millisecond, errors.New("disk full"))
	m.ObserveAutoReply("sent")
	m.ObserveInbound("message")
	m.ObserveRateLimited()

	if got := testutil.ToFloat64(m.flushes.WithLabelValues("error")); got != 1 {
		t.Errorf("flush errors = %v", got)
	}
	if got := testutil.ToFloat64(m.autoReplies.WithLabelValues("sent")); got != 1 {
		t.Errorf("sent = %v", got)
	}
	if got := testutil.ToFloat64(m.rateLimited); got != 1 {
		t.Errorf("rate limited = %v", got)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := New()
	pending := 3
	m.TrackPending(func() int { return pending })
	m.ObserveInbound("command")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`autoreply_inbound_messages_total{kind="command"} 1`,
		"autoreply_auto_replies_pending 3",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition lacks %q", want)
		}
	}
}
