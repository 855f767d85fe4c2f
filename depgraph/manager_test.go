package depgraph

import (
	"testing"

	"github.com/taskmesh/coordkit/errors"
	"github.com/taskmesh/coordkit/events"
	"github.com/taskmesh/coordkit/progress"
)

func newTestManager() (*Manager, *progress.MemorySource, *events.Notifier) {
	source := progress.NewMemorySource()
	notifier := events.NewNotifier(nil)
	mgr := NewManager(source, notifier, nil)
	source.OnChange(func(taskID string) { mgr.Observe(taskID) })
	return mgr, source, notifier
}

func TestCreateStaysPendingWithoutData(t *testing.T) {
	mgr, _, _ := newTestManager()

	dep, err := mgr.Create("A", "B", FinishToStart, "build before test", 0.9, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if dep.Status != StatusPending {
		t.Errorf("expected pending before any observation, got %s", dep.Status)
	}
}

func TestCreateRejectsUnknownType(t *testing.T) {
	mgr, _, _ := newTestManager()

	_, err := mgr.Create("A", "B", Type("sideways"), "", 0.5, "")
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if errors.Code(err) != errors.ErrCodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %s", errors.Code(err))
	}
}

func TestCreateClampsStrength(t *testing.T) {
	mgr, _, _ := newTestManager()

	dep, err := mgr.Create("A", "B", FinishToStart, "", 1.7, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if dep.Strength != 1.0 {
		t.Errorf("expected strength clamped to 1.0, got %f", dep.Strength)
	}
}

func TestFinishToStartSatisfied(t *testing.T) {
	// Scenario: A completes before B starts.
	mgr, source, _ := newTestManager()

	dep, _ := mgr.Create("A", "B", FinishToStart, "", 0.9, "")

	source.Set("B", progress.StatusNotStarted)
	source.Set("A", progress.StatusCompleted)

	got, _ := mgr.Get(dep.ID)
	if got.Status != StatusSatisfied {
		t.Errorf("expected satisfied after source completed, got %s", got.Status)
	}
	if got.SatisfiedAt == nil {
		t.Error("expected satisfiedAt to be stamped")
	}
}

func TestFinishToStartBlocked(t *testing.T) {
	// Alternate run: B starts before A completes.
	mgr, source, _ := newTestManager()

	dep, _ := mgr.Create("A", "B", FinishToStart, "", 0.9, "")

	source.Set("A", progress.StatusInProgress)
	source.Set("B", progress.StatusInProgress)

	got, _ := mgr.Get(dep.ID)
	if got.Status != StatusBlocked {
		t.Errorf("expected blocked when target started early, got %s", got.Status)
	}
}

func TestSatisfiedNeverRegresses(t *testing.T) {
	mgr, source, _ := newTestManager()

	dep, _ := mgr.Create("A", "B", FinishToStart, "", 0.9, "")

	source.Set("B", progress.StatusNotStarted)
	source.Set("A", progress.StatusCompleted)
	// Target progresses afterwards; the edge must stay satisfied.
	source.Set("B", progress.StatusInProgress)
	source.Set("B", progress.StatusCompleted)

	got, _ := mgr.Get(dep.ID)
	if got.Status != StatusSatisfied {
		t.Errorf("satisfied edge regressed to %s", got.Status)
	}
}

func TestDerivationTable(t *testing.T) {
	tests := []struct {
		name   string
		typ    Type
		src    progress.TaskStatus
		tgt    progress.TaskStatus
		want   Status
	}{
		{"sts satisfied", StartToStart, progress.StatusInProgress, progress.StatusNotStarted, StatusSatisfied},
		{"sts blocked", StartToStart, progress.StatusNotStarted, progress.StatusInProgress, StatusBlocked},
		{"ftf satisfied", FinishToFinish, progress.StatusCompleted, progress.StatusInProgress, StatusSatisfied},
		{"ftf blocked", FinishToFinish, progress.StatusInProgress, progress.StatusCompleted, StatusBlocked},
		{"stf satisfied", StartToFinish, progress.StatusInProgress, progress.StatusNotStarted, StatusSatisfied},
		{"stf blocked", StartToFinish, progress.StatusNotStarted, progress.StatusCompleted, StatusBlocked},
		{"artifact satisfied", RequiresArtifact, progress.StatusCompleted, progress.StatusNotStarted, StatusSatisfied},
		{"artifact blocked", RequiresArtifact, progress.StatusInProgress, progress.StatusInProgress, StatusBlocked},
		{"no progress stays pending", FinishToStart, progress.StatusNotStarted, progress.StatusNotStarted, StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, source, _ := newTestManager()
			dep, _ := mgr.Create("S", "T", tt.typ, "", 0.5, "")

			source.Set("S", tt.src)
			source.Set("T", tt.tgt)

			got, _ := mgr.Get(dep.ID)
			if got.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Status)
			}
		})
	}
}

func TestOptionalAlwaysSatisfied(t *testing.T) {
	mgr, _, _ := newTestManager()

	dep, _ := mgr.Create("A", "B", Optional, "", 1.0, "")
	if dep.Status != StatusSatisfied {
		t.Errorf("optional edge should be satisfied immediately, got %s", dep.Status)
	}
}

func TestOptionalNeverBlocks(t *testing.T) {
	mgr, source, _ := newTestManager()

	mgr.Create("A", "B", Optional, "", 1.0, "")
	source.Set("A", progress.StatusNotStarted)
	source.Set("B", progress.StatusInProgress)

	ok, blocking := mgr.CanTaskStart("B")
	if !ok {
		t.Errorf("optional edge must never block start: %v", blocking)
	}
	ok, blocking = mgr.CanTaskFinish("B")
	if !ok {
		t.Errorf("optional edge must never block finish: %v", blocking)
	}
}

func TestCanTaskStart(t *testing.T) {
	mgr, source, _ := newTestManager()

	dep, _ := mgr.Create("A", "B", FinishToStart, "", 0.9, "")

	// Pending edge gates start.
	ok, blocking := mgr.CanTaskStart("B")
	if ok {
		t.Error("expected start blocked by pending finish-to-start edge")
	}
	if len(blocking) != 1 || blocking[0].ID != dep.ID {
		t.Errorf("expected the pending edge in diagnostics, got %v", blocking)
	}

	// Finish gating is unaffected by start-gating edges.
	if ok, _ := mgr.CanTaskFinish("B"); !ok {
		t.Error("finish should not be gated by a finish-to-start edge")
	}

	source.Set("B", progress.StatusNotStarted)
	source.Set("A", progress.StatusCompleted)

	if ok, _ := mgr.CanTaskStart("B"); !ok {
		t.Error("expected start allowed after source completed")
	}
}

func TestCanTaskFinish(t *testing.T) {
	mgr, source, _ := newTestManager()

	mgr.Create("A", "B", FinishToFinish, "", 0.5, "")

	if ok, _ := mgr.CanTaskFinish("B"); ok {
		t.Error("expected finish blocked by pending finish-to-finish edge")
	}

	source.Set("B", progress.StatusInProgress)
	source.Set("A", progress.StatusCompleted)

	if ok, _ := mgr.CanTaskFinish("B"); !ok {
		t.Error("expected finish allowed after source completed")
	}
}

func TestUpdateStatusUnknownID(t *testing.T) {
	mgr, _, _ := newTestManager()

	_, err := mgr.UpdateStatus("missing", StatusSatisfied, "agent-1")
	if !errors.IsNotFound(err) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestBlockedEventPriorityAndImpact(t *testing.T) {
	mgr, source, notifier := newTestManager()

	var got []events.Event
	notifier.Subscribe(events.KindDependencyUpdated, func(ev events.Event) {
		got = append(got, ev)
	})

	mgr.Create("A", "B", FinishToStart, "", 0.9, "")
	source.Set("A", progress.StatusInProgress)
	source.Set("B", progress.StatusInProgress)

	if len(got) == 0 {
		t.Fatal("expected a dependency.updated event")
	}
	last := got[len(got)-1]
	if last.Priority != events.PriorityHigh {
		t.Errorf("blocked update should be high priority, got %s", last.Priority)
	}
	update, ok := last.Payload.(Update)
	if !ok {
		t.Fatalf("unexpected payload type %T", last.Payload)
	}
	if update.Impact != ImpactCritical {
		t.Errorf("strength 0.9 should classify critical, got %s", update.Impact)
	}
}

func TestImpactOf(t *testing.T) {
	tests := []struct {
		strength float64
		want     Impact
	}{
		{0.9, ImpactCritical},
		{0.81, ImpactCritical},
		{0.8, ImpactMajor},
		{0.6, ImpactMajor},
		{0.5, ImpactModerate},
		{0.1, ImpactModerate},
	}
	for _, tt := range tests {
		if got := ImpactOf(tt.strength); got != tt.want {
			t.Errorf("ImpactOf(%f) = %s, want %s", tt.strength, got, tt.want)
		}
	}
}

func TestWaive(t *testing.T) {
	mgr, source, notifier := newTestManager()

	var waived []events.Event
	notifier.Subscribe(events.KindDependencyWaived, func(ev events.Event) {
		waived = append(waived, ev)
	})

	dep, _ := mgr.Create("A", "B", FinishToStart, "", 0.9, "")

	got, err := mgr.Waive(dep.ID, "lead-1", "source task descoped")
	if err != nil {
		t.Fatalf("Waive failed: %v", err)
	}
	if got.Status != StatusWaived {
		t.Errorf("expected waived, got %s", got.Status)
	}
	if got.Type != Optional {
		t.Errorf("waived edge should become optional, got %s", got.Type)
	}
	if len(waived) != 1 {
		t.Errorf("expected one dependency.waived event, got %d", len(waived))
	}

	// Waived status is sticky: later observations do not re-derive.
	source.Set("A", progress.StatusCompleted)
	source.Set("B", progress.StatusNotStarted)
	got, _ = mgr.Get(dep.ID)
	if got.Status != StatusWaived {
		t.Errorf("waived edge re-derived to %s", got.Status)
	}

	// And the task is no longer gated.
	if ok, _ := mgr.CanTaskStart("B"); !ok {
		t.Error("waived edge must not block")
	}
}

func TestForTaskDirections(t *testing.T) {
	mgr, _, _ := newTestManager()

	mgr.Create("A", "B", FinishToStart, "", 0.5, "")
	mgr.Create("B", "C", FinishToStart, "", 0.5, "")

	if got := mgr.ForTask("B", DirectionOutbound); len(got) != 1 || got[0].SourceTaskID != "B" {
		t.Errorf("outbound: unexpected edges %v", got)
	}
	if got := mgr.ForTask("B", DirectionInbound); len(got) != 1 || got[0].TargetTaskID != "B" {
		t.Errorf("inbound: unexpected edges %v", got)
	}
	if got := mgr.ForTask("B", DirectionAny); len(got) != 2 {
		t.Errorf("any: expected 2 edges, got %d", len(got))
	}
}

func TestStats(t *testing.T) {
	mgr, source, _ := newTestManager()

	mgr.Create("A", "B", FinishToStart, "", 0.5, "")
	mgr.Create("A", "C", Optional, "", 0.5, "")
	source.Set("A", progress.StatusCompleted)
	source.Set("B", progress.StatusNotStarted)

	stats := mgr.Stats()
	if stats.Total != 2 {
		t.Errorf("expected 2 edges, got %d", stats.Total)
	}
	if stats.ByStatus[StatusSatisfied] != 2 {
		t.Errorf("expected 2 satisfied, got %d", stats.ByStatus[StatusSatisfied])
	}
}
