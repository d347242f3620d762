// Package autoreply sends delayed automatic replies to ordinary messages in
// chats where the feature is enabled.
//
// Every accepted message gets its own goroutine that sleeps for the scope's
// delay and then sends one reply picked at random from the scope's pool.
// Delivery is best effort: send failures are logged and counted, never
// retried and never reported to the caller.
package autoreply

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/autoreply/internal/settings"
	"github.com/flemzord/autoreply/pkg/message"
)

// Fallback is sent when a scope's reply pool is empty.
const Fallback = "Hello!"

// Outcomes passed to Config.Observe.
const (
	OutcomeSent       = "sent"
	OutcomeSendFailed = "send_failed"
	OutcomeCancelled  = "cancelled"
)

// Store is the read side of the settings store.
type Store interface {
	Get(ctx context.Context, key settings.ScopeKey) settings.Record
}

// Sender delivers an outbound message. channel.Dispatcher satisfies it.
type Sender interface {
	Send(ctx context.Context, msg message.OutboundMessage) error
}

// Config holds dispatcher dependencies and tuning.
type Config struct {
	Store  Store
	Sender Sender
	// CommandPrefix marks messages that are never answered. Default "/".
	CommandPrefix string
	// SendTimeout bounds a single send. Default 30s.
	SendTimeout time.Duration
	// Observe is told the outcome of every scheduled reply.
	Observe func(outcome string)
	Logger  *slog.Logger
	// IntN returns a uniform value in [0, n). Injectable for testing.
	IntN func(n int) int
}

func (c Config) withDefaults() Config {
	if c.CommandPrefix == "" {
		c.CommandPrefix = "/"
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.IntN == nil {
		c.IntN = rand.IntN
	}
	if c.Observe == nil {
		c.Observe = func(string) {}
	}
	return c
}

// Dispatcher schedules auto-replies.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	pending atomic.Int64
}

// New creates a Dispatcher. It is ready to accept messages immediately.
func New(cfg Config) (*Dispatcher, error) {
	var errs []error
	if cfg.Store == nil {
		errs = append(errs, errors.New("autoreply: store is required"))
	}
	if cfg.Sender == nil {
		errs = append(errs, errors.New("autoreply: sender is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "autoreply"),
		base:   base,
		cancel: cancel,
	}, nil
}

// OnMessage schedules a reply to in when it qualifies and reports whether
// one was scheduled. It never blocks on the delay.
//
// The scope record is read once, here. A scope disabled while a reply is
// waiting still gets that reply.
func (d *Dispatcher) OnMessage(ctx context.Context, in message.InboundMessage, scope settings.ScopeKey) bool {
	if strings.TrimSpace(in.Text) == "" || strings.HasPrefix(in.Text, d.cfg.CommandPrefix) {
		return false
	}

	rec := d.cfg.Store.Get(ctx, scope)
	if !rec.Enabled {
		return false
	}

	out := message.NewReply(in, d.pick(rec.AutoReplies))
	delay := rec.Delay()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	d.wg.Add(1)
	d.pending.Add(1)
	go d.deliver(out, delay, scope)
	return true
}

// Pending returns the number of replies waiting or being sent.
func (d *Dispatcher) Pending() int {
	return int(d.pending.Load())
}

// Stop abandons every waiting reply and refuses new ones. Safe to call more
// than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.cancel()
}

// Wait blocks until every scheduled reply has been sent or abandoned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown stops the dispatcher and waits for in-flight replies, giving up
// when ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.Stop()
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) pick(pool []string) string {
	if len(pool) == 0 {
		return Fallback
	}
	return pool[d.cfg.IntN(len(pool))]
}

func (d *Dispatcher) deliver(out message.OutboundMessage, delay time.Duration, scope settings.ScopeKey) {
	defer d.wg.Done()
	defer d.pending.Add(-1)

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-d.base.Done():
			d.cfg.Observe(OutcomeCancelled)
			return
		case <-timer.C:
		}
	} else if d.base.Err() != nil {
		d.cfg.Observe(OutcomeCancelled)
		return
	}

	ctx, cancel := context.WithTimeout(d.base, d.cfg.SendTimeout)
	defer cancel()
	if err := d.cfg.Sender.Send(ctx, out); err != nil {
		d.logger.Warn("auto-reply not delivered",
			"scope", string(scope),
			"channel", out.Channel,
			"error", err,
		)
		d.cfg.Observe(OutcomeSendFailed)
		return
	}
	d.cfg.Observe(OutcomeSent)
}
