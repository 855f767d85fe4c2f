package resources

import "time"

// Priority orders tasks for resource arbitration.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// AllocationStatus is the lifecycle state of an allocation.
type AllocationStatus string

const (
	StatusPlanned   AllocationStatus = "planned"
	StatusActive    AllocationStatus = "active"
	StatusCompleted AllocationStatus = "completed"
	StatusRevoked   AllocationStatus = "revoked"
)

// Allocation is a fractional soft reservation of a resource by a task.
// Nothing prevents a resource from being oversubscribed except an
// explicit rebalance pass; allocations are reservations, not locks.
type Allocation struct {
	TaskID       string           `json:"task_id"`
	AgentID      string           `json:"agent_id"`
	ResourceType string           `json:"resource_type"`
	ResourceID   string           `json:"resource_id"`
	Allocation   float64          `json:"allocation"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	Priority     Priority         `json:"priority"`
	Status       AllocationStatus `json:"status"`
}

// Clone returns a copy so callers cannot mutate allocator state.
func (a *Allocation) Clone() *Allocation {
	c := *a
	if a.EndTime != nil {
		t := *a.EndTime
		c.EndTime = &t
	}
	return &c
}

// RebalanceResult is the payload of a resource.rebalanced event: the full
// adjusted allocation set for one oversubscribed resource.
type RebalanceResult struct {
	ResourceID  string        `json:"resource_id"`
	Before      float64       `json:"before"`
	After       float64       `json:"after"`
	Allocations []*Allocation `json:"allocations"`
}
