package depgraph

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskmesh/coordkit/errors"
	"github.com/taskmesh/coordkit/events"
	"github.com/taskmesh/coordkit/logging"
	"github.com/taskmesh/coordkit/progress"
	"github.com/taskmesh/coordkit/telemetry"
)

// Manager owns typed dependency edges between tasks and derives their
// status from observed task progress. It never mutates task status.
type Manager struct {
	mu       sync.RWMutex
	deps     map[string]*Dependency
	bySource map[string][]string
	byTarget map[string][]string

	source   progress.StatusSource
	notifier *events.Notifier
	log      *logging.Logger
}

// NewManager creates a dependency graph manager. The notifier and logger
// may be nil.
func NewManager(source progress.StatusSource, notifier *events.Notifier, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{
		deps:     make(map[string]*Dependency),
		bySource: make(map[string][]string),
		byTarget: make(map[string][]string),
		source:   source,
		notifier: notifier,
		log:      log.WithComponent("depgraph"),
	}
}

// Create stores a new dependency edge and immediately derives its status.
// Unknown task ids are not an error: the edge stays pending until status
// data for both endpoints is observable.
func (m *Manager) Create(sourceTaskID, targetTaskID string, typ Type, description string, strength float64, artifactID string) (*Dependency, error) {
	if sourceTaskID == "" || targetTaskID == "" {
		return nil, errors.InvalidInput("source and target task ids are required")
	}
	if !typ.Valid() {
		return nil, errors.InvalidInput("unknown dependency type: " + string(typ))
	}
	strength = clamp01(strength)

	dep := &Dependency{
		ID:           uuid.New().String(),
		SourceTaskID: sourceTaskID,
		TargetTaskID: targetTaskID,
		Type:         typ,
		Strength:     strength,
		Description:  description,
		ArtifactID:   artifactID,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}

	m.mu.Lock()
	m.deps[dep.ID] = dep
	m.bySource[sourceTaskID] = append(m.bySource[sourceTaskID], dep.ID)
	m.byTarget[targetTaskID] = append(m.byTarget[targetTaskID], dep.ID)
	changed := m.deriveLocked(dep)
	snapshot := dep.Clone()
	m.mu.Unlock()

	if changed {
		m.emitUpdate(snapshot, "")
	}
	return snapshot, nil
}

// Get returns a dependency by id, or false if unknown.
func (m *Manager) Get(id string) (*Dependency, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dep, ok := m.deps[id]
	if !ok {
		return nil, false
	}
	return dep.Clone(), true
}

// ForTask returns edges touching a task in the given direction.
func (m *Manager) ForTask(taskID string, dir Direction) []*Dependency {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	switch dir {
	case DirectionOutbound:
		ids = m.bySource[taskID]
	case DirectionInbound:
		ids = m.byTarget[taskID]
	default:
		ids = append(append([]string{}, m.bySource[taskID]...), m.byTarget[taskID]...)
	}

	result := make([]*Dependency, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, m.deps[id].Clone())
	}
	return result
}

// CanTaskStart reports whether any inbound start-gating edge blocks the
// task, returning the blocking edges for diagnostics.
func (m *Manager) CanTaskStart(taskID string) (bool, []*Dependency) {
	return m.canProgress(taskID, Type.blocksStart)
}

// CanTaskFinish reports whether any inbound finish-gating edge blocks the
// task, returning the blocking edges for diagnostics.
func (m *Manager) CanTaskFinish(taskID string) (bool, []*Dependency) {
	return m.canProgress(taskID, Type.blocksFinish)
}

func (m *Manager) canProgress(taskID string, gates func(Type) bool) (bool, []*Dependency) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var blocking []*Dependency
	for _, id := range m.byTarget[taskID] {
		dep := m.deps[id]
		if gates(dep.Type) && dep.Blocking() {
			blocking = append(blocking, dep.Clone())
		}
	}
	return len(blocking) == 0, blocking
}

// UpdateStatus sets a dependency's status directly and emits an update.
// Returns NOT_FOUND for an unknown id.
func (m *Manager) UpdateStatus(id string, status Status, updatedBy string) (*Dependency, error) {
	m.mu.Lock()
	dep, ok := m.deps[id]
	if !ok {
		m.mu.Unlock()
		return nil, errors.NotFound("dependency", id)
	}
	m.setStatusLocked(dep, status)
	snapshot := dep.Clone()
	m.mu.Unlock()

	m.emitUpdate(snapshot, updatedBy)
	return snapshot, nil
}

// Waive lifts enforcement of a dependency. The edge becomes Optional and
// its status waived; the change is irreversible through this call. A new
// dependency must be created to reinstate enforcement.
func (m *Manager) Waive(id, waiverID, reason string) (*Dependency, error) {
	m.mu.Lock()
	dep, ok := m.deps[id]
	if !ok {
		m.mu.Unlock()
		return nil, errors.NotFound("dependency", id)
	}
	dep.Type = Optional
	dep.Status = StatusWaived
	snapshot := dep.Clone()
	m.mu.Unlock()

	m.log.Info("dependency waived", map[string]interface{}{
		"dependency": id,
		"waiver":     waiverID,
	})
	if m.notifier != nil {
		m.notifier.Publish(events.Event{
			Kind:       events.KindDependencyWaived,
			Entity:     id,
			EntityType: "dependency",
			Priority:   events.PriorityNormal,
			Payload:    Update{Dependency: snapshot, UpdatedBy: waiverID, Reason: reason},
		})
	}
	return snapshot, nil
}

// Observe re-derives every edge touching the task. Called whenever a new
// progress summary for the task is available.
func (m *Manager) Observe(taskID string) {
	m.mu.Lock()
	var updated []*Dependency
	for _, id := range append(append([]string{}, m.bySource[taskID]...), m.byTarget[taskID]...) {
		dep := m.deps[id]
		if m.deriveLocked(dep) {
			updated = append(updated, dep.Clone())
		}
	}
	m.mu.Unlock()

	for _, dep := range updated {
		m.emitUpdate(dep, "")
	}
}

// Stats returns edge counts by status and type.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Total:    len(m.deps),
		ByStatus: make(map[Status]int),
		ByType:   make(map[Type]int),
	}
	for _, dep := range m.deps {
		stats.ByStatus[dep.Status]++
		stats.ByType[dep.Type]++
	}
	return stats
}

// deriveLocked recomputes an edge's status from observed task progress.
// Returns true when the status changed. Waived edges are sticky. When
// neither the satisfied nor the blocked condition holds, the status is
// left unchanged so an edge never flaps back to pending once progress
// has been observed.
func (m *Manager) deriveLocked(dep *Dependency) bool {
	if dep.Status == StatusWaived {
		return false
	}
	if dep.Type == Optional {
		return m.setStatusLocked(dep, StatusSatisfied)
	}

	src, srcOK := m.source.TaskStatus(dep.SourceTaskID)
	tgt, tgtOK := m.source.TaskStatus(dep.TargetTaskID)
	if !srcOK || !tgtOK {
		return false
	}

	sourceCompleted := src.Status.Completed()
	sourceStarted := src.Status.Started()
	targetCompleted := tgt.Status.Completed()
	targetStarted := tgt.Status.Started()

	var satisfied, blocked bool
	switch dep.Type {
	case FinishToStart, RequiresArtifact:
		satisfied = sourceCompleted
		blocked = targetStarted && !sourceCompleted
	case StartToStart:
		satisfied = sourceStarted
		blocked = targetStarted && !sourceStarted
	case FinishToFinish:
		satisfied = sourceCompleted
		blocked = targetCompleted && !sourceCompleted
	case StartToFinish:
		satisfied = sourceStarted
		blocked = targetCompleted && !sourceStarted
	}

	switch {
	case satisfied:
		return m.setStatusLocked(dep, StatusSatisfied)
	case blocked:
		return m.setStatusLocked(dep, StatusBlocked)
	default:
		return false
	}
}

// setStatusLocked applies a status, stamping satisfiedAt on the first
// transition to satisfied. Returns true when the status changed.
func (m *Manager) setStatusLocked(dep *Dependency, status Status) bool {
	if dep.Status == status {
		return false
	}
	dep.Status = status
	if status == StatusSatisfied && dep.SatisfiedAt == nil {
		now := time.Now()
		dep.SatisfiedAt = &now
	}
	return true
}

// emitUpdate publishes a dependency.updated event. Blocked edges are
// high priority and carry an impact classification.
func (m *Manager) emitUpdate(dep *Dependency, updatedBy string) {
	_, span := telemetry.GetTracer().StartDependencySpan(context.Background(), dep.ID)

	m.log.DependencyStatus(dep.ID, string(dep.Status))

	update := Update{Dependency: dep, UpdatedBy: updatedBy}
	priority := events.PriorityNormal
	if dep.Status == StatusBlocked {
		priority = events.PriorityHigh
		update.Impact = ImpactOf(dep.Strength)
		m.log.DependencyBlocked(dep.ID, string(update.Impact))
	}

	if m.notifier != nil {
		m.notifier.Publish(events.Event{
			Kind:       events.KindDependencyUpdated,
			Entity:     dep.ID,
			EntityType: "dependency",
			Priority:   priority,
			Payload:    update,
		})
	}

	telemetry.GetTracer().EndDependencySpan(span, telemetry.DependencySpanOptions{
		DependencyID: dep.ID,
		Type:         string(dep.Type),
		Status:       string(dep.Status),
		Impact:       string(update.Impact),
	}, nil)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
