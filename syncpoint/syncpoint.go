package syncpoint

import (
	"time"

	"github.com/taskmesh/coordkit/progress"
)

// Status is the lifecycle state of a synchronization point.
// completed and failed are terminal: no further transitions occur.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Criterion requires one task to reach a status before the point
// completes.
type Criterion struct {
	TaskID         string              `json:"task_id"`
	RequiredStatus progress.TaskStatus `json:"required_status"`
}

// RuleType selects the completion semantics of a custom sync rule.
type RuleType string

const (
	// RuleAllCompleted completes the point when every rule task has the
	// required status.
	RuleAllCompleted RuleType = "all_completed"

	// RuleAnyCompleted completes the point when at least one rule task
	// has the required status.
	RuleAnyCompleted RuleType = "any_completed"

	// RuleMajorityCompleted completes the point when the count of rule
	// tasks with the required status reaches MinRequired (default
	// ceil(n/2)).
	RuleMajorityCompleted RuleType = "majority_completed"

	// RuleCustom is a reserved extension point with no built-in
	// semantics. Creating a point with a custom rule is rejected.
	RuleCustom RuleType = "custom"
)

// Rule is an optional completion override evaluated before the default
// all-criteria check. Rules are evaluated highest priority first; the
// first rule whose condition holds completes the point.
type Rule struct {
	ID             string              `json:"id"`
	Type           RuleType            `json:"type"`
	TaskIDs        []string            `json:"task_ids,omitempty"`
	RequiredStatus progress.TaskStatus `json:"required_status"`
	MinRequired    int                 `json:"min_required,omitempty"`
	Priority       int                 `json:"priority"`
}

// Point is a named barrier over a set of tasks.
type Point struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	Description          string      `json:"description,omitempty"`
	Tasks                []string    `json:"tasks"`
	Criteria             []Criterion `json:"criteria"`
	Status               Status      `json:"status"`
	CompletedTasks       []string    `json:"completed_tasks"`
	CreatedAt            time.Time   `json:"created_at"`
	Deadline             *time.Time  `json:"deadline,omitempty"`
	CompletedAt          *time.Time  `json:"completed_at,omitempty"`
	NotificationAgentIDs []string    `json:"notification_agent_ids,omitempty"`
	Rules                []Rule      `json:"rules,omitempty"`
}

// Clone returns a copy so callers cannot mutate engine state.
func (p *Point) Clone() *Point {
	c := *p
	c.Tasks = append([]string{}, p.Tasks...)
	c.Criteria = append([]Criterion{}, p.Criteria...)
	c.CompletedTasks = append([]string{}, p.CompletedTasks...)
	c.NotificationAgentIDs = append([]string{}, p.NotificationAgentIDs...)
	c.Rules = append([]Rule{}, p.Rules...)
	if p.Deadline != nil {
		t := *p.Deadline
		c.Deadline = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// hasTask reports whether the task already belongs to the point.
func (p *Point) hasTask(taskID string) bool {
	for _, id := range p.Tasks {
		if id == taskID {
			return true
		}
	}
	return false
}

// Result is the payload of sync_point events.
type Result struct {
	Point *Point `json:"point"`

	// Rule is set on sync_point.rule_triggered events.
	Rule *Rule `json:"rule,omitempty"`

	// Remaining is set on sync_point.approaching_deadline events.
	Remaining time.Duration `json:"remaining,omitempty"`
}

// Scheduling bands for adaptive polling.
const (
	intervalNear    = 30 * time.Second
	intervalMid     = time.Minute
	intervalFar     = 5 * time.Minute
	nearDeadline    = 5 * time.Minute
	midDeadline     = time.Hour
	warnBandOuter   = 300 * time.Second
	warnBandInner   = 270 * time.Second
)

// checkInterval derives the polling interval from time to deadline.
// Without a deadline the flat default applies. A non-positive remaining
// time means check immediately.
func checkInterval(remaining time.Duration, hasDeadline bool, flat time.Duration) time.Duration {
	if !hasDeadline {
		return flat
	}
	switch {
	case remaining <= 0:
		return 0
	case remaining < nearDeadline:
		return intervalNear
	case remaining < midDeadline:
		return intervalMid
	default:
		return intervalFar
	}
}
