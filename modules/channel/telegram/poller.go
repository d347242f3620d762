package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	maxConsecutivePollingErrors = 5
	errorPauseDuration          = 30 * time.Second
)

// Poller implements long-polling for receiving Telegram updates.
type Poller struct {
	client  *Client
	handle  func(*Update)
	logger  *slog.Logger
	timeout int
	allowed []string
	pause   time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a new Poller that passes every update to handle.
func NewPoller(client *Client, handle func(*Update), logger *slog.Logger, config Config) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		client:  client,
		handle:  handle,
		logger:  logger,
		timeout: config.PollingTimeout,
		allowed: config.AllowedUpdates,
		pause:   errorPauseDuration,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start launches the polling loop in a goroutine.
func (p *Poller) Start() {
	go p.loop()
}

// Stop cancels the in-flight long poll and waits for the loop to finish.
// It is safe to call Stop multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(p.cancel)
	<-p.done
}

// loop runs the long-polling loop until Stop() is called.
func (p *Poller) loop() {
	defer close(p.done)

	var offset int
	var consecutiveErrors int

	for p.ctx.Err() == nil {
		updates, err := p.client.GetUpdates(p.ctx, GetUpdatesRequest{
			Offset:         offset,
			Timeout:        p.timeout,
			AllowedUpdates: p.allowed,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || p.ctx.Err() != nil {
				return
			}
			consecutiveErrors++
			p.logger.Error("polling getUpdates failed",
				"error", err,
				"consecutive_errors", consecutiveErrors,
			)

			if consecutiveErrors >= maxConsecutivePollingErrors {
				p.logger.Warn("polling paused after consecutive errors", "pause", p.pause)
				select {
				case <-p.ctx.Done():
					return
				case <-time.After(p.pause):
				}
				consecutiveErrors = 0
			}
			continue
		}

		consecutiveErrors = 0

		for i := range updates {
			offset = updates[i].UpdateID + 1
			p.handle(&updates[i])
		}
	}
}
