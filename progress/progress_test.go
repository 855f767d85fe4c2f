package progress

import (
	"testing"
	"time"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		status    TaskStatus
		started   bool
		completed bool
		terminal  bool
	}{
		{StatusNotStarted, false, false, false},
		{StatusInProgress, true, false, false},
		{StatusBlocked, true, false, false},
		{StatusCompleted, true, true, true},
		{StatusCancelled, false, false, true},
		{StatusUnknown, false, false, false},
	}
	for _, tc := range cases {
		if got := tc.status.Started(); got != tc.started {
			t.Errorf("%q.Started() = %v, want %v", tc.status, got, tc.started)
		}
		if got := tc.status.Completed(); got != tc.completed {
			t.Errorf("%q.Completed() = %v, want %v", tc.status, got, tc.completed)
		}
		if got := tc.status.Terminal(); got != tc.terminal {
			t.Errorf("%q.Terminal() = %v, want %v", tc.status, got, tc.terminal)
		}
	}
}

func TestMemorySource(t *testing.T) {
	source := NewMemorySource()

	if _, ok := source.TaskStatus("t1"); ok {
		t.Error("unexpected summary for unknown task")
	}

	source.Set("t1", StatusInProgress)
	sum, ok := source.TaskStatus("t1")
	if !ok || sum.Status != StatusInProgress {
		t.Errorf("summary = %+v %v, want IN_PROGRESS", sum, ok)
	}
	if sum.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}

	source.Remove("t1")
	if _, ok := source.TaskStatus("t1"); ok {
		t.Error("summary survived Remove")
	}
}

func TestMemorySourceHooks(t *testing.T) {
	source := NewMemorySource()

	var observed []string
	source.OnChange(func(taskID string) {
		observed = append(observed, taskID)
	})

	source.Set("t1", StatusInProgress)
	source.SetSummary(Summary{TaskID: "t2", Status: StatusCompleted, UpdatedAt: time.Now()})

	if len(observed) != 2 || observed[0] != "t1" || observed[1] != "t2" {
		t.Errorf("observed = %v, want [t1 t2]", observed)
	}
}
