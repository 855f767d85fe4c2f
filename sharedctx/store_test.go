package sharedctx

import (
	"testing"
	"time"

	"github.com/taskmesh/coordkit/config"
	"github.com/taskmesh/coordkit/errors"
	"github.com/taskmesh/coordkit/events"
)

func newTestStore(cfg StoreConfig) *Store {
	return NewStore(cfg)
}

func TestCreateStartsAtVersionOne(t *testing.T) {
	store := newTestStore(StoreConfig{})

	obj, err := store.Create("design_doc", map[string]any{"status": "draft"},
		AccessControl{DefaultAccess: AccessEdit}, "agent-a")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if obj.Version != 1 {
		t.Errorf("version = %d, want 1", obj.Version)
	}
	if obj.CreatedBy != "agent-a" || obj.UpdatedBy != "agent-a" {
		t.Errorf("authorship = %s/%s, want agent-a", obj.CreatedBy, obj.UpdatedBy)
	}

	records := store.History(obj.ID)
	if len(records) != 1 || records[0].ChangeType != ChangeCreate {
		t.Fatalf("history = %+v, want one create record", records)
	}
	if records[0].VersionTo != 1 {
		t.Errorf("create record version.to = %d, want 1", records[0].VersionTo)
	}
}

func TestUpdateBumpsVersionAndRecordsDiff(t *testing.T) {
	store := newTestStore(StoreConfig{})
	obj, _ := store.Create("design_doc", map[string]any{"status": "draft", "owner": "a"},
		AccessControl{DefaultAccess: AccessEdit}, "agent-a")

	got, err := store.Update(obj.ID, map[string]any{"status": "review"}, "agent-b", "ready")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}
	if got.Data["status"] != "review" {
		t.Errorf("status = %v, want review", got.Data["status"])
	}
	if got.UpdatedBy != "agent-b" {
		t.Errorf("updatedBy = %s, want agent-b", got.UpdatedBy)
	}

	records := store.History(obj.ID)
	if len(records) != 2 {
		t.Fatalf("history length = %d, want 2", len(records))
	}
	rec := records[1]
	if rec.ChangeType != ChangeUpdate || rec.VersionFrom != 1 || rec.VersionTo != 2 {
		t.Errorf("record = %+v, want update 1→2", rec)
	}
	if len(rec.Changes) != 1 || rec.Changes[0].Path != "status" ||
		rec.Changes[0].PreviousValue != "draft" || rec.Changes[0].NewValue != "review" {
		t.Errorf("changes = %+v, want status draft→review", rec.Changes)
	}
	if rec.Reason != "ready" {
		t.Errorf("reason = %q, want ready", rec.Reason)
	}
}

func TestUpdateSkipsImmutableKeys(t *testing.T) {
	store := newTestStore(StoreConfig{})
	obj, _ := store.Create("design_doc", nil,
		AccessControl{DefaultAccess: AccessEdit}, "agent-a")

	got, err := store.Update(obj.ID, map[string]any{"id": "forged", "version": 99}, "agent-a", "")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("version = %d after immutable-only update, want 1", got.Version)
	}
	if got.ID != obj.ID {
		t.Errorf("id changed to %s", got.ID)
	}
}

func TestUpdateRequiresEdit(t *testing.T) {
	store := newTestStore(StoreConfig{})
	obj, _ := store.Create("design_doc", nil,
		AccessControl{DefaultAccess: AccessReadOnly}, "agent-a")

	_, err := store.Update(obj.ID, map[string]any{"x": 1}, "agent-b", "")
	if !errors.IsPermissionDenied(err) {
		t.Errorf("expected PERMISSION_DENIED, got %v", err)
	}
}

func TestDeleteRequiresAdmin(t *testing.T) {
	store := newTestStore(StoreConfig{})
	obj, _ := store.Create("design_doc", nil,
		AccessControl{DefaultAccess: AccessEdit}, "agent-a")

	if err := store.Delete(obj.ID, "agent-b", ""); !errors.IsPermissionDenied(err) {
		t.Errorf("expected PERMISSION_DENIED, got %v", err)
	}
	if err := store.Delete(obj.ID, "agent-a", "cleanup"); err != nil {
		t.Fatalf("Delete by creator: %v", err)
	}
	if _, ok := store.Get(obj.ID); ok {
		t.Error("object still readable after delete")
	}
}

func TestDeleteNotifiesBeforeRemoval(t *testing.T) {
	notifier := events.NewNotifier(nil)
	store := newTestStore(StoreConfig{Notifier: notifier})
	obj, _ := store.Create("design_doc", nil,
		AccessControl{DefaultAccess: AccessAdmin}, "agent-a")

	var visible bool
	notifier.Subscribe(events.KindContextDeleted, func(ev events.Event) {
		_, visible = store.Get(ev.Entity)
	})

	if err := store.Delete(obj.ID, "agent-a", ""); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !visible {
		t.Error("object not readable during context.deleted delivery")
	}
}

func TestNoWriteLandsOnDeletedContext(t *testing.T) {
	notifier := events.NewNotifier(nil)
	store := newTestStore(StoreConfig{Notifier: notifier})
	obj, _ := store.Create("design_doc", map[string]any{"status": "draft"},
		AccessControl{DefaultAccess: AccessAdmin}, "agent-a")

	var updateErr error
	notifier.Subscribe(events.KindContextDeleted, func(ev events.Event) {
		_, updateErr = store.Update(ev.Entity, map[string]any{"status": "revived"}, "agent-b", "")
	})

	if err := store.Delete(obj.ID, "agent-a", ""); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !errors.IsNotFound(updateErr) {
		t.Errorf("update during deleted delivery = %v, want NOT_FOUND", updateErr)
	}

	// History ends on the delete record with no version reused.
	records := store.History(obj.ID)
	if len(records) != 2 {
		t.Fatalf("history length = %d, want create and delete only", len(records))
	}
	if records[0].ChangeType != ChangeCreate || records[0].VersionTo != 1 {
		t.Errorf("first record = %+v, want create to v1", records[0])
	}
	if records[1].ChangeType != ChangeDelete || records[1].VersionTo != 2 {
		t.Errorf("last record = %+v, want delete to v2", records[1])
	}
}

func TestConflictDetection(t *testing.T) {
	store := newTestStore(StoreConfig{})
	obj, _ := store.Create("design_doc", map[string]any{"status": "draft"},
		AccessControl{DefaultAccess: AccessEdit}, "agent-a")

	store.Update(obj.ID, map[string]any{"status": "review"}, "agent-b", "")
	store.Update(obj.ID, map[string]any{"status": "done"}, "agent-c", "")

	conflicts := store.Conflicts(obj.ID)
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}
	c := conflicts[0]
	if c.Severity != "medium" {
		t.Errorf("severity = %s, want medium", c.Severity)
	}
	wantAgents := []string{"agent-b", "agent-c"}
	if len(c.AffectedAgents) != 2 || c.AffectedAgents[0] != wantAgents[0] || c.AffectedAgents[1] != wantAgents[1] {
		t.Errorf("affected agents = %v, want %v", c.AffectedAgents, wantAgents)
	}
	// No team settings: closed out as manually resolved.
	if c.Status != ConflictResolved {
		t.Errorf("status = %s, want %s", c.Status, ConflictResolved)
	}
	if c.Resolution == nil || c.Resolution.Strategy != config.StrategyManual {
		t.Errorf("resolution = %+v, want manual", c.Resolution)
	}
}

func TestNoConflictOnDisjointPaths(t *testing.T) {
	store := newTestStore(StoreConfig{})
	obj, _ := store.Create("design_doc", nil,
		AccessControl{DefaultAccess: AccessEdit}, "agent-a")

	store.Update(obj.ID, map[string]any{"status": "review"}, "agent-b", "")
	store.Update(obj.ID, map[string]any{"owner": "c"}, "agent-c", "")

	if got := store.Conflicts(obj.ID); len(got) != 0 {
		t.Errorf("conflicts = %d on disjoint paths, want 0", len(got))
	}
}

func TestConflictOutsideWindowIgnored(t *testing.T) {
	store := newTestStore(StoreConfig{ConflictWindow: 10 * time.Millisecond})
	obj, _ := store.Create("design_doc", nil,
		AccessControl{DefaultAccess: AccessEdit}, "agent-a")

	store.Update(obj.ID, map[string]any{"status": "review"}, "agent-b", "")
	time.Sleep(20 * time.Millisecond)
	store.Update(obj.ID, map[string]any{"status": "done"}, "agent-c", "")

	if got := store.Conflicts(obj.ID); len(got) != 0 {
		t.Errorf("conflicts = %d outside window, want 0", len(got))
	}
}

func TestConflictEscalationThreshold(t *testing.T) {
	teams := map[string]config.TeamConfig{
		"team-x": {
			DefaultStrategy:     config.StrategyLastWriteWins,
			EscalationThreshold: 2,
		},
	}
	store := newTestStore(StoreConfig{Teams: teams})
	access := AccessControl{
		DefaultAccess: AccessEdit,
		TeamAccess:    map[string]AccessLevel{"team-x": AccessEdit},
	}
	obj, _ := store.Create("design_doc", nil, access, "agent-a")

	store.Update(obj.ID, map[string]any{"status": "a"}, "agent-b", "")
	store.Update(obj.ID, map[string]any{"status": "b"}, "agent-c", "")

	conflicts := store.Conflicts(obj.ID)
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}
	if conflicts[0].Status != ConflictResolved {
		t.Errorf("first conflict status = %s, want %s", conflicts[0].Status, ConflictResolved)
	}

	// Third overlapping edit hits the threshold of 2 prior changes.
	store.Update(obj.ID, map[string]any{"status": "c"}, "agent-d", "")
	conflicts = store.Conflicts(obj.ID)
	if len(conflicts) != 2 {
		t.Fatalf("conflicts = %d, want 2", len(conflicts))
	}
	if conflicts[1].Status != ConflictEscalated {
		t.Errorf("status = %s, want %s", conflicts[1].Status, ConflictEscalated)
	}
	if conflicts[1].Resolution != nil {
		t.Errorf("escalated conflict carries resolution %+v", conflicts[1].Resolution)
	}
}

func TestConflictStrategyByContextType(t *testing.T) {
	teams := map[string]config.TeamConfig{
		"team-x": {
			DefaultStrategy:       config.StrategyLastWriteWins,
			StrategyByContextType: map[string]string{"spike": config.StrategyPriorityAgent},
		},
	}
	store := newTestStore(StoreConfig{Teams: teams})
	access := AccessControl{
		DefaultAccess: AccessEdit,
		TeamAccess:    map[string]AccessLevel{"team-x": AccessEdit},
	}
	obj, _ := store.Create("spike", nil, access, "agent-a")

	store.Update(obj.ID, map[string]any{"status": "a"}, "agent-b", "")
	store.Update(obj.ID, map[string]any{"status": "b"}, "agent-c", "")

	conflicts := store.Conflicts(obj.ID)
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}
	if conflicts[0].Resolution == nil || conflicts[0].Resolution.Strategy != config.StrategyPriorityAgent {
		t.Errorf("resolution = %+v, want priority_agent", conflicts[0].Resolution)
	}
}

func TestPriorityAgentRecordedAsResolver(t *testing.T) {
	teams := map[string]config.TeamConfig{
		"team-x": {
			DefaultStrategy: config.StrategyPriorityAgent,
			PriorityAgent:   "agent-lead",
		},
	}
	store := newTestStore(StoreConfig{Teams: teams})
	access := AccessControl{
		DefaultAccess: AccessEdit,
		TeamAccess:    map[string]AccessLevel{"team-x": AccessEdit},
	}
	obj, _ := store.Create("design_doc", nil, access, "agent-a")

	store.Update(obj.ID, map[string]any{"status": "a"}, "agent-b", "")
	store.Update(obj.ID, map[string]any{"status": "b"}, "agent-c", "")

	conflicts := store.Conflicts(obj.ID)
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}
	res := conflicts[0].Resolution
	if res == nil || res.ResolvedBy != "agent-lead" {
		t.Errorf("resolution = %+v, want resolved by agent-lead", res)
	}
}

func TestConflictNeverBlocksWrite(t *testing.T) {
	store := newTestStore(StoreConfig{})
	obj, _ := store.Create("design_doc", nil,
		AccessControl{DefaultAccess: AccessEdit}, "agent-a")

	store.Update(obj.ID, map[string]any{"status": "a"}, "agent-b", "")
	got, err := store.Update(obj.ID, map[string]any{"status": "b"}, "agent-c", "")
	if err != nil {
		t.Fatalf("conflicting update returned error: %v", err)
	}
	if got.Data["status"] != "b" || got.Version != 3 {
		t.Errorf("conflicting write not applied: %v v%d", got.Data["status"], got.Version)
	}
}
