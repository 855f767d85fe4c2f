package progress

import (
	"sync"
	"time"
)

// MemorySource implements StatusSource with an in-memory map.
// Useful for testing and single-process hosts that track task
// progress themselves.
type MemorySource struct {
	mu        sync.RWMutex
	summaries map[string]Summary
	onChange  []func(taskID string)
}

// NewMemorySource creates an empty in-memory status source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		summaries: make(map[string]Summary),
	}
}

// TaskStatus returns the current summary for a task.
func (s *MemorySource) TaskStatus(taskID string) (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, ok := s.summaries[taskID]
	return sum, ok
}

// Set records a status observation for a task and invokes change hooks.
func (s *MemorySource) Set(taskID string, status TaskStatus) {
	s.SetSummary(Summary{
		TaskID:    taskID,
		Status:    status,
		UpdatedAt: time.Now(),
	})
}

// SetSummary records a full summary for a task and invokes change hooks.
func (s *MemorySource) SetSummary(sum Summary) {
	s.mu.Lock()
	s.summaries[sum.TaskID] = sum
	hooks := make([]func(string), len(s.onChange))
	copy(hooks, s.onChange)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(sum.TaskID)
	}
}

// Remove forgets all status data for a task.
func (s *MemorySource) Remove(taskID string) {
	s.mu.Lock()
	delete(s.summaries, taskID)
	s.mu.Unlock()
}

// OnChange registers a hook invoked after every status observation.
// Hooks run synchronously on the calling goroutine.
func (s *MemorySource) OnChange(hook func(taskID string)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, hook)
	s.mu.Unlock()
}
