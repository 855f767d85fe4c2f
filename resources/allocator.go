// Package resources tracks fractional allocations of named resources to
// tasks and rebalances oversubscribed resources by priority.
package resources

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taskmesh/coordkit/events"
	"github.com/taskmesh/coordkit/logging"
	"github.com/taskmesh/coordkit/telemetry"
)

// allocKey identifies an allocation by task and resource.
type allocKey struct {
	taskID     string
	resourceID string
}

// Allocator owns resource allocations and task priorities.
type Allocator struct {
	mu          sync.RWMutex
	allocations map[allocKey]*Allocation
	priorities  map[string]Priority

	notifier *events.Notifier
	log      *logging.Logger
}

// NewAllocator creates a resource allocator. The notifier and logger may
// be nil.
func NewAllocator(notifier *events.Notifier, log *logging.Logger) *Allocator {
	if log == nil {
		log = logging.Discard()
	}
	return &Allocator{
		allocations: make(map[allocKey]*Allocation),
		priorities:  make(map[string]Priority),
		notifier:    notifier,
		log:         log.WithComponent("resources"),
	}
}

// SetTaskPriority stores a task's priority and cascades it to every
// active allocation for the task. A priority of HIGH or above triggers
// a rebalance pass.
func (a *Allocator) SetTaskPriority(taskID string, priority Priority) {
	a.mu.Lock()
	a.priorities[taskID] = priority
	for key, alloc := range a.allocations {
		if key.taskID == taskID && alloc.Status == StatusActive {
			alloc.Priority = priority
		}
	}
	a.mu.Unlock()

	if priority >= PriorityHigh {
		a.Rebalance()
	}
}

// TaskPriority returns the stored priority for a task, defaulting to
// MEDIUM when none has been set.
func (a *Allocator) TaskPriority(taskID string) Priority {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if p, ok := a.priorities[taskID]; ok {
		return p
	}
	return PriorityMedium
}

// Allocate creates or replaces the (task, resource) allocation as active.
// The fraction is clamped to [0,1]. Allocating does not rebalance;
// oversubscription is tolerated until a rebalance pass runs.
func (a *Allocator) Allocate(taskID, agentID, resourceType, resourceID string, fraction float64) *Allocation {
	fraction = clamp01(fraction)

	a.mu.Lock()
	alloc := &Allocation{
		TaskID:       taskID,
		AgentID:      agentID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Allocation:   fraction,
		StartTime:    time.Now(),
		Priority:     a.priorityLocked(taskID),
		Status:       StatusActive,
	}
	a.allocations[allocKey{taskID, resourceID}] = alloc
	snapshot := alloc.Clone()
	a.mu.Unlock()

	if a.notifier != nil {
		a.notifier.Publish(events.Event{
			Kind:       events.KindResourceAllocated,
			Entity:     resourceID,
			EntityType: "resource",
			Priority:   events.PriorityNormal,
			Payload:    snapshot,
		})
	}
	return snapshot
}

// Release marks the (task, resource) allocation completed and stamps its
// end time. Releasing only frees capacity; it never triggers rebalancing.
func (a *Allocator) Release(taskID, resourceID string) (*Allocation, bool) {
	a.mu.Lock()
	alloc, ok := a.allocations[allocKey{taskID, resourceID}]
	if !ok || alloc.Status != StatusActive {
		a.mu.Unlock()
		return nil, false
	}
	now := time.Now()
	alloc.Status = StatusCompleted
	alloc.EndTime = &now
	snapshot := alloc.Clone()
	a.mu.Unlock()

	if a.notifier != nil {
		a.notifier.Publish(events.Event{
			Kind:       events.KindResourceReleased,
			Entity:     resourceID,
			EntityType: "resource",
			Priority:   events.PriorityNormal,
			Payload:    snapshot,
		})
	}
	return snapshot, true
}

// Get returns the (task, resource) allocation, or false if unknown.
func (a *Allocator) Get(taskID, resourceID string) (*Allocation, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	alloc, ok := a.allocations[allocKey{taskID, resourceID}]
	if !ok {
		return nil, false
	}
	return alloc.Clone(), true
}

// ForResource returns all allocations of a resource, any status.
func (a *Allocator) ForResource(resourceID string) []*Allocation {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var result []*Allocation
	for key, alloc := range a.allocations {
		if key.resourceID == resourceID {
			result = append(result, alloc.Clone())
		}
	}
	sortAllocations(result)
	return result
}

// Utilization returns the sum of active fractions for a resource.
func (a *Allocator) Utilization(resourceID string) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var sum float64
	for key, alloc := range a.allocations {
		if key.resourceID == resourceID && alloc.Status == StatusActive {
			sum += alloc.Allocation
		}
	}
	return sum
}

// Rebalance runs a rebalance pass over every oversubscribed resource.
func (a *Allocator) Rebalance() {
	a.mu.RLock()
	resources := make(map[string]bool)
	for key, alloc := range a.allocations {
		if alloc.Status == StatusActive {
			resources[key.resourceID] = true
		}
	}
	a.mu.RUnlock()

	for resourceID := range resources {
		a.RebalanceResource(resourceID)
	}
}

// RebalanceResource rebalances one resource if its active allocations
// exceed 1.0. Allocations are sorted by descending priority and walked
// against a running budget of 1.0: each receives min(requested,
// remaining), and once the budget is exhausted lower-priority
// allocations are forced to zero. Higher priority always wins capacity,
// even by a small margin; this is a greedy cutoff, not fair share.
// Emits one resource.rebalanced event when an adjustment was made.
func (a *Allocator) RebalanceResource(resourceID string) *RebalanceResult {
	_, span := telemetry.GetTracer().StartRebalanceSpan(context.Background(), resourceID)

	a.mu.Lock()

	var active []*Allocation
	var before float64
	for key, alloc := range a.allocations {
		if key.resourceID == resourceID && alloc.Status == StatusActive {
			active = append(active, alloc)
			before += alloc.Allocation
		}
	}
	if before <= 1.0 {
		a.mu.Unlock()
		telemetry.GetTracer().EndRebalanceSpan(span, telemetry.RebalanceSpanOptions{
			ResourceID: resourceID,
			Before:     before,
			After:      before,
		}, nil)
		return nil
	}

	// Stable order: priority descending, then earliest start, then task id.
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}
		if !active[i].StartTime.Equal(active[j].StartTime) {
			return active[i].StartTime.Before(active[j].StartTime)
		}
		return active[i].TaskID < active[j].TaskID
	})

	budget := 1.0
	for _, alloc := range active {
		grant := alloc.Allocation
		if grant > budget {
			grant = budget
		}
		alloc.Allocation = grant
		budget -= grant
	}

	result := &RebalanceResult{
		ResourceID:  resourceID,
		Before:      before,
		After:       1.0,
		Allocations: make([]*Allocation, len(active)),
	}
	for i, alloc := range active {
		result.Allocations[i] = alloc.Clone()
	}
	a.mu.Unlock()

	a.log.RebalancePass(resourceID, before, 1.0)
	if a.notifier != nil {
		a.notifier.Publish(events.Event{
			Kind:       events.KindResourceRebalanced,
			Entity:     resourceID,
			EntityType: "resource",
			Priority:   events.PriorityNormal,
			Payload:    result,
		})
	}
	telemetry.GetTracer().EndRebalanceSpan(span, telemetry.RebalanceSpanOptions{
		ResourceID:  resourceID,
		Before:      before,
		After:       1.0,
		Allocations: len(active),
	}, nil)
	return result
}

// priorityLocked reads a task priority with the lock held.
func (a *Allocator) priorityLocked(taskID string) Priority {
	if p, ok := a.priorities[taskID]; ok {
		return p
	}
	return PriorityMedium
}

// sortAllocations orders a result set deterministically for callers.
func sortAllocations(allocs []*Allocation) {
	sort.Slice(allocs, func(i, j int) bool {
		if allocs[i].TaskID != allocs[j].TaskID {
			return allocs[i].TaskID < allocs[j].TaskID
		}
		return allocs[i].ResourceID < allocs[j].ResourceID
	})
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
