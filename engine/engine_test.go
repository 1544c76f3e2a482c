package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/planengine/component"
	"github.com/kbukum/planengine/config"
	"github.com/kbukum/planengine/database/testutil"
	"github.com/kbukum/planengine/execution"
	"github.com/kbukum/planengine/logger"
	"github.com/kbukum/planengine/plan"
	"github.com/kbukum/planengine/status"
)

type staticTracker struct {
	statuses []status.Status
}

func (s *staticTracker) FetchNodeStatuses(_ context.Context, _, _ string) ([]status.Status, error) {
	return s.statuses, nil
}

func newTestEngine(t *testing.T, tracker execution.NodeTracker) *Engine {
	t.Helper()
	mini := miniredis.RunT(t)

	cfg := &config.Config{Name: "planengine-test"}
	cfg.ApplyDefaults()
	cfg.Logging.Level = "error"
	cfg.Database.DSN = "file::memory:?cache=shared"
	cfg.Database.AutoMigrate = true
	cfg.Redis.Addr = mini.Addr()
	cfg.Events.Enabled = false
	cfg.Cleanup.Enabled = false
	cfg.Metrics.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config: %v", err)
	}

	e, err := New(cfg, tracker)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(func() {
		if err := e.Stop(context.Background()); err != nil {
			t.Errorf("stop engine: %v", err)
		}
	})
	return e
}

func TestEngine_StartStop(t *testing.T) {
	e := newTestEngine(t, &staticTracker{})

	for _, h := range e.Health(context.Background()) {
		if h.Status != component.StatusHealthy {
			t.Fatalf("component %s unhealthy: %s", h.Name, h.Message)
		}
	}
	if e.PlanStore() == nil || e.ExecutionStore() == nil || e.ExecutionService() == nil {
		t.Fatal("expected stores and service wired after start")
	}
}

func TestEngine_EndToEndStatusFlow(t *testing.T) {
	tracker := &staticTracker{statuses: []status.Status{status.Succeeded}}
	e := newTestEngine(t, tracker)
	ctx := context.Background()

	p := &plan.Plan{ID: "p1", StartingNodeID: "n1", Nodes: []plan.Node{
		{ID: "n1", Name: "build", Payload: plan.Payload{Spec: &plan.StepSpec{StepKind: "shell"}}},
	}}
	if _, err := e.PlanStore().Save(ctx, p); err != nil {
		t.Fatalf("save plan: %v", err)
	}

	pe := &execution.PlanExecution{ID: "e1", PlanID: "p1", AccountID: "acct-1"}
	if _, err := e.ExecutionStore().Save(ctx, pe); err != nil {
		t.Fatalf("save execution: %v", err)
	}

	committed, err := e.ExecutionService().UpdateStatus(ctx, "e1", status.Running)
	if err != nil || !committed {
		t.Fatalf("start run: committed=%v err=%v", committed, err)
	}

	// The advisory-locked recompute path goes through miniredis.
	got, committed, err := e.ExecutionService().CalculateAndUpdateRunningStatusUnderLock(ctx, "e1", "")
	if err != nil || !committed || got != status.Succeeded {
		t.Fatalf("recompute under lock: got %s committed=%v err=%v", got, committed, err)
	}

	final, err := e.ExecutionStore().GetStatus(ctx, "e1")
	if err != nil || final != status.Succeeded {
		t.Fatalf("expected SUCCEEDED, got %s err=%v", final, err)
	}
}

func TestSweeper_SweepOnce(t *testing.T) {
	db := testutil.Open(t, &execution.PlanExecution{}, &execution.Metadata{})
	store := execution.NewStore(db, logger.Nop())
	ctx := context.Background()

	seed := func(id string, validUntil time.Time) {
		pe := &execution.PlanExecution{ID: id, PlanID: "p1", AccountID: "acct-1"}
		if _, err := store.Save(ctx, pe); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := store.UpdateStatusForceful(ctx, id, status.Succeeded, nil); err != nil {
			t.Fatalf("force: %v", err)
		}
		if err := store.UpdateTTL(ctx, id, validUntil); err != nil {
			t.Fatalf("ttl: %v", err)
		}
	}
	now := time.Now().UTC()
	seed("old", now.Add(-time.Hour))
	seed("fresh", now.Add(time.Hour))

	cfg := config.CleanupConfig{Enabled: true}
	cfg.ApplyDefaults()
	sweeper := NewSweeper(store, cfg, logger.Nop())

	removed, err := sweeper.SweepOnce(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 removed, got %d err=%v", removed, err)
	}

	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh execution must survive: %v", err)
	}

	removed, err = sweeper.SweepOnce(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("second sweep should find nothing, got %d err=%v", removed, err)
	}
}
