package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flemzord/autoreply/internal/autoreply"
	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/internal/core"
	"github.com/flemzord/autoreply/internal/cron"
	"github.com/flemzord/autoreply/internal/reload"
	"github.com/flemzord/autoreply/pkg/message"
)

// schedulerModule puts the cron scheduler on the App lifecycle.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron.scheduler"}
}

func (m *schedulerModule) Start() error {
	if len(m.scheduler.Jobs()) == 0 {
		return nil
	}
	return m.scheduler.Start()
}

func (m *schedulerModule) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}

// repliesModule drains the auto-reply dispatcher on shutdown.
type repliesModule struct {
	replies *autoreply.Dispatcher
}

func (m *repliesModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "autoreply.dispatcher"}
}

func (m *repliesModule) Stop(ctx context.Context) error {
	return m.replies.Shutdown(ctx)
}

// reloadModule applies configuration changes while the bot runs. It reacts
// to edits of the configuration file and to SIGHUP.
type reloadModule struct {
	handler *reload.Handler
	watcher *reload.Watcher
	signals chan os.Signal
	cancel  context.CancelFunc
	done    chan struct{}
}

func (m *reloadModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "config.reload"}
}

func (m *reloadModule) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.signals = make(chan os.Signal, 1)
	signal.Notify(m.signals, syscall.SIGHUP)
	m.watcher.Start(ctx)

	go func() {
		defer close(m.done)
		m.handler.Run(ctx, m.watcher.Changes(), m.signals)
	}()
	return nil
}

func (m *reloadModule) Stop(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	signal.Stop(m.signals)
	m.cancel()
	m.watcher.Stop()
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wireChannels registers every loaded channel module with the dispatcher
// under its short name and points its inbox at handle. Must be called after
// LoadModules and before Start.
func wireChannels(
	app *core.App,
	ids []string,
	dispatcher *channel.Dispatcher,
	handle func(message.InboundMessage) error,
	logger *slog.Logger,
) error {
	for _, id := range ids {
		mod, ok := app.Module(id)
		if !ok {
			continue
		}
		ch, ok := mod.(channel.Channel)
		if !ok {
			continue
		}
		// Channels stamp inbound messages with the name part of their ID.
		name := core.ModuleID(id).Name()
		if err := dispatcher.Register(name, ch); err != nil {
			return fmt.Errorf("registering channel %s: %w", id, err)
		}
		ch.SetInbox(handle)
		logger.Info("channel wired", "channel", name)
	}

	if len(dispatcher.Channels()) == 0 {
		return errors.New("no channel module loaded")
	}
	return nil
}
