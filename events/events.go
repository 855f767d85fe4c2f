package events

import (
	"encoding/json"
	"time"
)

// Kind identifies the type of a coordination event.
type Kind string

// Event kinds emitted by the coordination engine.
const (
	KindDependencyUpdated Kind = "dependency.updated"
	KindDependencyWaived  Kind = "dependency.waived"

	KindResourceAllocated  Kind = "resource.allocated"
	KindResourceReleased   Kind = "resource.released"
	KindResourceRebalanced Kind = "resource.rebalanced"

	KindSyncPointCreated       Kind = "sync_point.created"
	KindSyncPointTaskAdded     Kind = "sync_point.task_added"
	KindSyncPointRuleTriggered Kind = "sync_point.rule_triggered"
	KindSyncPointCompleted     Kind = "sync_point.completed"
	KindSyncPointFailed        Kind = "sync_point.failed"
	KindSyncPointDeadline      Kind = "sync_point.approaching_deadline"

	KindContextCreated Kind = "context.created"
	KindContextUpdated Kind = "context.updated"
	KindContextDeleted Kind = "context.deleted"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Priority indicates delivery urgency for an event.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// Event is a structured notification emitted by the coordination engine.
// The engine never delivers events to agents itself; a separate messaging
// component subscribes and performs delivery.
type Event struct {
	// Kind identifies the event type.
	Kind Kind `json:"kind"`

	// Entity is the id of the affected entity (dependency, sync point,
	// resource, or context id).
	Entity string `json:"entity"`

	// EntityType names the kind of entity, e.g. "dependency" or "context".
	EntityType string `json:"entity_type,omitempty"`

	// Priority indicates delivery urgency.
	Priority Priority `json:"priority"`

	// Agents lists agent ids the messaging layer should notify, if any.
	Agents []string `json:"agents,omitempty"`

	// Payload carries the event-specific body.
	Payload any `json:"payload,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}

// Marshal serializes the event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
