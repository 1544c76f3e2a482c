package component

import (
	"context"
	"errors"
	"testing"

	"github.com/kbukum/planengine/logger"
)

// fakeComponent records lifecycle calls for assertions.
type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	events   *[]string
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Start(context.Context) error {
	*f.events = append(*f.events, "start:"+f.name)
	return f.startErr
}

func (f *fakeComponent) Stop(context.Context) error {
	*f.events = append(*f.events, "stop:"+f.name)
	return f.stopErr
}

func (f *fakeComponent) Health(context.Context) Health {
	return Health{Name: f.name, Status: StatusHealthy}
}

func TestRegistry_StartStopOrdering(t *testing.T) {
	var events []string
	r := NewRegistry(logger.Nop())
	_ = r.Register(&fakeComponent{name: "database", events: &events})
	_ = r.Register(&fakeComponent{name: "redis", events: &events})

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"start:database", "start:redis", "stop:redis", "stop:database"}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, events)
		}
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	var events []string
	r := NewRegistry(logger.Nop())
	if err := r.Register(&fakeComponent{name: "database", events: &events}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(&fakeComponent{name: "database", events: &events}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegistry_StartFailureStopsEarly(t *testing.T) {
	var events []string
	r := NewRegistry(logger.Nop())
	_ = r.Register(&fakeComponent{name: "database", startErr: errors.New("boom"), events: &events})
	_ = r.Register(&fakeComponent{name: "redis", events: &events})

	if err := r.StartAll(context.Background()); err == nil {
		t.Fatal("expected start failure")
	}
	for _, e := range events {
		if e == "start:redis" {
			t.Fatal("later components must not start after a failure")
		}
	}
}

func TestRegistry_StopSkipsUnstarted(t *testing.T) {
	var events []string
	r := NewRegistry(logger.Nop())
	_ = r.Register(&fakeComponent{name: "database", events: &events})

	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no stop calls for unstarted components, got %v", events)
	}
}

func TestRegistry_HealthAllAndGet(t *testing.T) {
	var events []string
	r := NewRegistry(logger.Nop())
	_ = r.Register(&fakeComponent{name: "database", events: &events})

	health := r.HealthAll(context.Background())
	if len(health) != 1 || health[0].Status != StatusHealthy {
		t.Fatalf("unexpected health: %v", health)
	}
	if r.Get("database") == nil {
		t.Fatal("expected lookup by name")
	}
	if r.Get("missing") != nil {
		t.Fatal("expected nil for unknown name")
	}
}
