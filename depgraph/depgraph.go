package depgraph

import "time"

// Type is the temporal relationship between two tasks' start/finish events.
type Type string

const (
	// FinishToStart: the target may not start until the source finishes.
	FinishToStart Type = "finish_to_start"

	// StartToStart: the target may not start until the source starts.
	StartToStart Type = "start_to_start"

	// FinishToFinish: the target may not finish until the source finishes.
	FinishToFinish Type = "finish_to_finish"

	// StartToFinish: the target may not finish until the source starts.
	StartToFinish Type = "start_to_finish"

	// RequiresArtifact: the target needs an artifact the source produces;
	// enforced like finish-to-start.
	RequiresArtifact Type = "requires_artifact"

	// Optional is advisory only and never blocks.
	Optional Type = "optional"
)

// Valid reports whether the type is a known dependency type.
func (t Type) Valid() bool {
	switch t {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish, RequiresArtifact, Optional:
		return true
	default:
		return false
	}
}

// blocksStart reports whether edges of this type gate the target's start.
func (t Type) blocksStart() bool {
	return t == FinishToStart || t == StartToStart || t == RequiresArtifact
}

// blocksFinish reports whether edges of this type gate the target's finish.
func (t Type) blocksFinish() bool {
	return t == FinishToFinish || t == StartToFinish
}

// Status is the derived state of a dependency edge.
type Status string

const (
	// StatusPending: no observation has settled the edge yet.
	StatusPending Status = "pending"

	// StatusSatisfied: the source condition holds.
	StatusSatisfied Status = "satisfied"

	// StatusBlocked: the target progressed before the source condition held.
	StatusBlocked Status = "blocked"

	// StatusWaived: enforcement was explicitly lifted. Sticky until a new
	// dependency is created.
	StatusWaived Status = "waived"
)

// Impact classifies how severe a blocked dependency is, from its strength.
type Impact string

const (
	ImpactCritical Impact = "critical"
	ImpactMajor    Impact = "major"
	ImpactModerate Impact = "moderate"
)

// ImpactOf maps a strength in [0,1] to an impact classification.
func ImpactOf(strength float64) Impact {
	switch {
	case strength > 0.8:
		return ImpactCritical
	case strength > 0.5:
		return ImpactMajor
	default:
		return ImpactModerate
	}
}

// Dependency is a directed edge from a source task to a target task.
type Dependency struct {
	ID           string     `json:"id"`
	SourceTaskID string     `json:"source_task_id"`
	TargetTaskID string     `json:"target_task_id"`
	Type         Type       `json:"type"`
	Strength     float64    `json:"strength"`
	Description  string     `json:"description,omitempty"`
	ArtifactID   string     `json:"artifact_id,omitempty"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	SatisfiedAt  *time.Time `json:"satisfied_at,omitempty"`
}

// Clone returns a copy so callers cannot mutate manager state.
func (d *Dependency) Clone() *Dependency {
	c := *d
	if d.SatisfiedAt != nil {
		t := *d.SatisfiedAt
		c.SatisfiedAt = &t
	}
	return &c
}

// Blocking reports whether the edge currently prevents progress:
// pending and blocked edges both gate the target until resolved.
// Optional edges never block.
func (d *Dependency) Blocking() bool {
	if d.Type == Optional {
		return false
	}
	return d.Status == StatusPending || d.Status == StatusBlocked
}

// Direction selects which edges of a task to return.
type Direction string

const (
	// DirectionOutbound returns edges where the task is the source.
	DirectionOutbound Direction = "outbound"

	// DirectionInbound returns edges where the task is the target.
	DirectionInbound Direction = "inbound"

	// DirectionAny returns edges touching the task on either side.
	DirectionAny Direction = "any"
)

// Update is the payload of dependency.updated and dependency.waived events.
type Update struct {
	Dependency *Dependency `json:"dependency"`
	UpdatedBy  string      `json:"updated_by,omitempty"`
	Impact     Impact      `json:"impact,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// Stats summarizes the graph for diagnostics.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
	ByType   map[Type]int   `json:"by_type"`
}
