package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"testing"
	"time"
)

func TestConfig_Arguments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"no config path", Config{}, []string{"service", "run"}},
		{"config path", Config{ConfigPath: "/etc/autoreply/autoreply.yaml"}, []string{"service", "run", "--config", "/etc/autoreply/autoreply.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.cfg.Arguments(); !slices.Equal(got, tt.want) {
				t.Errorf("Arguments() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	c := Config{}.withDefaults()
	if c.Name != "autoreply" || c.StopTimeout != 15*time.Second {
		t.Errorf("defaults = %+v", c)
	}
}

func TestProgram_StartStop(t *testing.T) {
	t.Parallel()

	running := make(chan struct{})
	p := &program{
		run: func(ctx context.Context) error {
			close(running)
			<-ctx.Done()
			return ctx.Err()
		},
		timeout: time.Second,
		logger:  slog.Default(),
	}

	if err := p.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(nil); err == nil {
		t.Error("second Start should fail")
	}
	<-running

	if err := p.Stop(nil); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Err(); err != nil {
		t.Errorf("Err() = %v, cancellation should not be an error", err)
	}
}

func TestProgram_RunError(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad token")
	p := &program{
		run:     func(context.Context) error { return boom },
		timeout: time.Second,
		logger:  slog.Default(),
	}
	if err := p.Start(nil); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(nil); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(p.Err(), boom) {
		t.Errorf("Err() = %v, want %v", p.Err(), boom)
	}
}

func TestProgram_StopTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	p := &program{
		run: func(context.Context) error {
			<-release
			return nil
		},
		timeout: 20 * time.Millisecond,
		logger:  slog.Default(),
	}
	if err := p.Start(nil); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(nil); err == nil {
		t.Error("Stop should time out when the bot ignores cancellation")
	}
}

func TestProgram_StopBeforeStart(t *testing.T) {
	t.Parallel()

	p := &program{}
	if err := p.Stop(nil); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}

func TestManager_ControlRejectsUnknownAction(t *testing.T) {
	t.Parallel()

	m, err := New(Config{Name: "autoreply-test"}, func(context.Context) error { return nil }, nil)
	if err != nil {
		t.Skipf("no service manager on this platform: %v", err)
	}
	if err := m.Control("explode"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Control() = %v, want ErrUnknownAction", err)
	}
	if m.Platform() == "" {
		t.Error("Platform() is empty")
	}
}
