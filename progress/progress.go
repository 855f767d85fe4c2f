// Package progress defines the task status vocabulary and the source
// interface the engine reads it through. The engine never mutates task
// status; it only observes it.
package progress

import "time"

// TaskStatus represents the observed lifecycle state of a task.
type TaskStatus string

const (
	// StatusNotStarted indicates the task has not begun execution.
	StatusNotStarted TaskStatus = "NOT_STARTED"

	// StatusInProgress indicates the task is actively being worked on.
	StatusInProgress TaskStatus = "IN_PROGRESS"

	// StatusBlocked indicates the task has started but cannot proceed.
	StatusBlocked TaskStatus = "BLOCKED"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted TaskStatus = "COMPLETED"

	// StatusCancelled indicates the task was abandoned.
	StatusCancelled TaskStatus = "CANCELLED"

	// StatusUnknown indicates no status data has been observed.
	StatusUnknown TaskStatus = ""
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	if s == StatusUnknown {
		return "UNKNOWN"
	}
	return string(s)
}

// Started reports whether the task has begun execution.
// A blocked task has started; it simply cannot proceed.
func (s TaskStatus) Started() bool {
	switch s {
	case StatusInProgress, StatusBlocked, StatusCompleted:
		return true
	default:
		return false
	}
}

// Completed reports whether the task finished successfully.
func (s TaskStatus) Completed() bool {
	return s == StatusCompleted
}

// Terminal reports whether the task can make no further progress.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Summary is a point-in-time view of a task's progress.
type Summary struct {
	// TaskID identifies the task.
	TaskID string

	// Status is the observed lifecycle state.
	Status TaskStatus

	// Progress is the completion fraction in [0,1], if reported.
	Progress float64

	// UpdatedAt is when this summary was last refreshed.
	UpdatedAt time.Time
}

// StatusSource supplies the current lifecycle status of tasks.
// The coordination engine never mutates task status; it only reads
// it to derive dependency and barrier outcomes.
//
// Absence of data is reported through the boolean, never as an error.
type StatusSource interface {
	// TaskStatus returns the current summary for a task.
	// The second return is false when no data has been observed.
	TaskStatus(taskID string) (Summary, bool)
}
