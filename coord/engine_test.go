package coord

import (
	"context"
	"testing"
	"time"

	"github.com/taskmesh/coordkit/config"
	"github.com/taskmesh/coordkit/depgraph"
	"github.com/taskmesh/coordkit/errors"
	"github.com/taskmesh/coordkit/progress"
	"github.com/taskmesh/coordkit/resources"
	"github.com/taskmesh/coordkit/sharedctx"
	"github.com/taskmesh/coordkit/syncpoint"
)

func newTestEngine(t *testing.T, cfg config.Config) *Engine {
	t.Helper()

	engine, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { engine.Close(context.Background()) })
	return engine
}

func TestStatusFansOutToDependencies(t *testing.T) {
	engine := newTestEngine(t, config.Default())

	dep, err := engine.Dependencies().Create("task-a", "task-b",
		depgraph.FinishToStart, "", 0.9, "")
	if err != nil {
		t.Fatalf("Create dependency: %v", err)
	}
	if dep.Status != depgraph.StatusPending {
		t.Fatalf("status = %s before any observation, want pending", dep.Status)
	}

	engine.SetTaskStatus("task-a", progress.StatusCompleted)
	engine.SetTaskStatus("task-b", progress.StatusNotStarted)

	got, _ := engine.Dependencies().Get(dep.ID)
	if got.Status != depgraph.StatusSatisfied {
		t.Errorf("status = %s after source completed, want satisfied", got.Status)
	}

	ok, blocking := engine.Dependencies().CanTaskStart("task-b")
	if !ok || len(blocking) != 0 {
		t.Errorf("CanTaskStart = %v %v, want true with no blockers", ok, blocking)
	}
}

func TestStatusFansOutToSyncPoints(t *testing.T) {
	engine := newTestEngine(t, config.Default())
	engine.SetTaskStatus("t1", progress.StatusInProgress)

	point, err := engine.SyncPoints().Create("gate", "", []string{"t1"}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("Create sync point: %v", err)
	}
	if point.Status != syncpoint.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", point.Status)
	}

	engine.SetTaskStatus("t1", progress.StatusCompleted)
	got, _ := engine.SyncPoints().Get(point.ID)
	if got.Status != syncpoint.StatusCompleted {
		t.Errorf("status = %s after completion, want completed", got.Status)
	}
}

func TestExternalSourceRejectsSetTaskStatus(t *testing.T) {
	source := progress.NewMemorySource()
	engine, err := New(config.Default(), Options{Source: source})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer engine.Close(context.Background())

	if err := engine.SetTaskStatus("t1", progress.StatusCompleted); !errors.IsInvalidState(err) {
		t.Errorf("expected INVALID_STATE, got %v", err)
	}

	// External observations still fan out when signalled explicitly.
	dep, _ := engine.Dependencies().Create("t1", "t2", depgraph.FinishToStart, "", 0.5, "")
	source.Set("t1", progress.StatusCompleted)
	engine.ObserveTaskStatus("t1")

	got, _ := engine.Dependencies().Get(dep.ID)
	if got.Status != depgraph.StatusSatisfied {
		t.Errorf("status = %s, want satisfied", got.Status)
	}
}

func TestAuditJournalRecordsContextChanges(t *testing.T) {
	cfg := config.Default()
	cfg.Context.AuditIndex = true
	engine := newTestEngine(t, cfg)

	if engine.Audit() == nil {
		t.Fatal("audit journal not enabled")
	}

	obj, err := engine.Contexts().Create("design_doc",
		map[string]any{"status": "draft"},
		sharedctx.AccessControl{DefaultAccess: sharedctx.AccessEdit}, "agent-a")
	if err != nil {
		t.Fatalf("Create context: %v", err)
	}
	engine.Contexts().Update(obj.ID, map[string]any{"status": "review"}, "agent-b", "ready")

	entries, err := engine.Audit().ByContext(obj.ID, 10)
	if err != nil {
		t.Fatalf("ByContext: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("journal entries = %d, want 2", len(entries))
	}
}

func TestResourceScenarioThroughEngine(t *testing.T) {
	engine := newTestEngine(t, config.Default())
	alloc := engine.Resources()

	alloc.SetTaskPriority("t1", resources.PriorityHigh)
	alloc.SetTaskPriority("t2", resources.PriorityMedium)
	alloc.Allocate("t1", "agent-a", "gpu", "gpu-1", 0.7)
	alloc.Allocate("t2", "agent-b", "gpu", "gpu-1", 0.6)

	alloc.RebalanceResource("gpu-1")

	a1, _ := alloc.Get("t1", "gpu-1")
	a2, _ := alloc.Get("t2", "gpu-1")
	if a1.Allocation != 0.7 {
		t.Errorf("t1 allocation = %v, want 0.7", a1.Allocation)
	}
	if a2.Allocation != 0.3 {
		t.Errorf("t2 allocation = %v, want 0.3", a2.Allocation)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	engine, err := New(config.Default(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := engine.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Second close reports the recorded outcome, never re-runs handlers.
	engine.Close(context.Background())

	// Components keep serving reads after close.
	if _, ok := engine.SyncPoints().Get("missing"); ok {
		t.Error("unexpected point after close")
	}
}

func TestTelemetryFileExport(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Protocol = "file"
	cfg.Telemetry.Endpoint = t.TempDir() + "/events.jsonl"

	engine := newTestEngine(t, cfg)
	engine.Dependencies().Create("a", "b", depgraph.FinishToStart, "", 0.5, "")
	engine.SetTaskStatus("a", progress.StatusCompleted)
	engine.SetTaskStatus("b", progress.StatusNotStarted)

	// Closing flushes and syncs the export file.
	if err := engine.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestConflictWindowFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Context.ConflictWindow = config.Duration(10 * time.Millisecond)
	engine := newTestEngine(t, cfg)

	obj, _ := engine.Contexts().Create("doc", nil,
		sharedctx.AccessControl{DefaultAccess: sharedctx.AccessEdit}, "agent-a")
	engine.Contexts().Update(obj.ID, map[string]any{"status": "a"}, "agent-b", "")
	time.Sleep(20 * time.Millisecond)
	engine.Contexts().Update(obj.ID, map[string]any{"status": "b"}, "agent-c", "")

	if got := engine.Contexts().Conflicts(obj.ID); len(got) != 0 {
		t.Errorf("conflicts = %d outside configured window, want 0", len(got))
	}
}
