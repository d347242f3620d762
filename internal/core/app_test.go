package core

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestModuleID_Parts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id        ModuleID
		namespace string
		name      string
	}{
		{"channel.telegram", "channel", "telegram"},
		{"gateway.http", "gateway", "http"},
		{"a.b.c", "a", "b.c"},
		{"plain", "plain", "plain"},
	}
	for _, tt := range tests {
		if got := tt.id.Namespace(); got != tt.namespace {
			t.Errorf("%s.Namespace() = %q, want %q", tt.id, got, tt.namespace)
		}
		if got := tt.id.Name(); got != tt.name {
			t.Errorf("%s.Name() = %q, want %q", tt.id, got, tt.name)
		}
	}
}

func TestRegisterModule_Panics(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "test.dup"})

	for name, mod := range map[string]Module{
		"duplicate":  &trackingModule{id: "test.dup"},
		"empty":      &trackingModule{id: ""},
		"unprefixed": &trackingModule{id: "nodot"},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: expected panic", name)
				}
			}()
			RegisterModule(mod)
		}()
	}
}

func TestModules_Sorted(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "gateway.http"})
	RegisterModule(&trackingModule{id: "channel.telegram"})

	var ids []ModuleID
	for _, info := range Modules() {
		ids = append(ids, info.ID)
	}
	want := []ModuleID{"channel.telegram", "gateway.http"}
	if !slices.Equal(ids, want) {
		t.Errorf("Modules() = %v, want %v", ids, want)
	}
}

func TestApp_StartStopOrder(t *testing.T) {
	t.Cleanup(resetRegistry)

	var events []string
	for _, id := range []ModuleID{"test.first", "test.second"} {
		RegisterModule(&trackingModule{
			id:      id,
			onStart: func() { events = append(events, "start "+string(id)) },
			onStop:  func() { events = append(events, "stop "+string(id)) },
		})
	}

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules([]string{"test.first", "test.second"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := app.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	app.Stop()

	want := []string{"start test.first", "start test.second", "stop test.second", "stop test.first"}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestApp_StartFailureRollsBack(t *testing.T) {
	t.Cleanup(resetRegistry)

	stopped := false
	RegisterModule(&trackingModule{id: "test.ok", onStop: func() { stopped = true }})
	RegisterModule(&trackingModule{id: "test.bad", startErr: errors.New("no")})

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules([]string{"test.ok", "test.bad"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}
	if !stopped {
		t.Error("first module should be stopped after second fails")
	}
}

func TestApp_LoadFailureDiscards(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "test.ok"})

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules([]string{"test.ok", "test.missing"}); err == nil {
		t.Fatal("expected error for unknown module")
	}
	if len(app.loaded) != 0 {
		t.Errorf("loaded = %d modules, want 0", len(app.loaded))
	}
}

func TestApp_ModuleAndAppend(t *testing.T) {
	t.Cleanup(resetRegistry)

	var events []string
	RegisterModule(&trackingModule{
		id:      "test.loaded",
		onStart: func() { events = append(events, "start loaded") },
		onStop:  func() { events = append(events, "stop loaded") },
	})

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules([]string{"test.loaded"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if _, ok := app.Module("test.loaded"); !ok {
		t.Error("Module(test.loaded) not found")
	}
	if _, ok := app.Module("test.other"); ok {
		t.Error("Module(test.other) found")
	}

	app.AppendModule("test.appended", &trackingModule{
		id:      "test.appended",
		onStart: func() { events = append(events, "start appended") },
		onStop:  func() { events = append(events, "stop appended") },
	})
	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()

	want := []string{"start loaded", "start appended", "stop appended", "stop loaded"}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}
