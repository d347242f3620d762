// Package reload applies configuration changes to a running bot. Only the
// settings that can change safely are applied; the rest waits for a restart.
package reload

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is used when NewWatcher is given a non-positive interval.
const DefaultPollInterval = 5 * time.Second

// Watcher polls a file and reports when its size or modification time
// changes.
type Watcher struct {
	path     string
	interval time.Duration
	changes  chan struct{}
	stop     chan struct{}
	stopped  chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

type fingerprint struct {
	mod  time.Time
	size int64
}

// NewWatcher returns a watcher for path. Nothing happens until Start.
func NewWatcher(path string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		path:     path,
		interval: interval,
		changes:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins polling. Only the first call has an effect.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Changes delivers one value per detected change. Changes that arrive while
// a previous one is still unread are coalesced.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Stop ends polling and waits for the goroutine. Safe to call more than once
// and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	last, _ := w.stat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
		}

		// A file being replaced may be missing for a moment; keep the last
		// fingerprint until it is back.
		cur, ok := w.stat()
		if !ok || cur == last {
			continue
		}
		last = cur
		select {
		case w.changes <- struct{}{}:
		default:
		}
	}
}

func (w *Watcher) stat() (fingerprint, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		return fingerprint{}, false
	}
	return fingerprint{mod: info.ModTime(), size: info.Size()}, true
}
