package syncpoint

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

// Engine owns synchronization points and schedules their re-evaluation
// adaptively as deadlines approach. At most one timer is outstanding per
// point; rescheduling cancels the prior one.
type Engine struct {
	mu     sync.Mutex
	points map[string]*Point
	byTask map[string][]string
	timers map[string]*time.Timer
	warned map[string]bool
	closed bool

	source          progress.StatusSource
	notifier        *events.Notifier
	log             *logging.Logger
	defaultInterval time.Duration
}

// Config configures the synchronization engine.
type Config struct {
	// Source supplies task status (required).
	Source progress.StatusSource

	// Notifier receives sync_point events. May be nil.
	Notifier *events.Notifier

	// Logger for real-time output. May be nil.
	Logger *logging.Logger

	// DefaultInterval is the check cadence for points without a
	// deadline. Zero means one minute.
	DefaultInterval time.Duration
}

// NewEngine creates a synchronization barrier engine.
func NewEngine(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	interval := cfg.DefaultInterval
	if interval <= 0 {
		interval = intervalMid
	}
	return &Engine{
		points:          make(map[string]*Point),
		byTask:          make(map[string][]string),
		timers:          make(map[string]*time.Timer),
		warned:          make(map[string]bool),
		source:          cfg.Source,
		notifier:        cfg.Notifier,
		log:             log.WithComponent("syncpoint"),
		defaultInterval: interval,
	}
}

// Create stores a synchronization point, performs an immediate check,
// and schedules the next adaptive check. Criteria default to COMPLETED
// for every listed task when none are given. A rule of type custom is
// rejected: it is a reserved extension point with no built-in semantics.
func (e *Engine) Create(name, description string, tasks []string, criteria []Criterion, notificationAgentIDs []string, deadline *time.Time, rules []Rule) (*Point, error) {
	if len(tasks) == 0 {
		return nil, errors.InvalidInput("a synchronization point needs at least one task")
	}
	for i := range rules {
		if rules[i].Type == RuleCustom {
			return nil, errors.Unsupported("custom sync rules have no built-in semantics")
		}
		if rules[i].ID == "" {
			rules[i].ID = uuid.New().String()
		}
		if rules[i].RequiredStatus == progress.StatusUnknown {
			rules[i].RequiredStatus = progress.StatusCompleted
		}
	}
	if len(criteria) == 0 {
		criteria = make([]Criterion, len(tasks))
		for i, taskID := range tasks {
			criteria[i] = Criterion{TaskID: taskID, RequiredStatus: progress.StatusCompleted}
		}
	}

	point := &Point{
		ID:                   uuid.New().String(),
		Name:                 name,
		Description:          description,
		Tasks:                append([]string{}, tasks...),
		Criteria:             append([]Criterion{}, criteria...),
		Status:               StatusPending,
		CompletedTasks:       []string{},
		CreatedAt:            time.Now(),
		Deadline:             deadline,
		NotificationAgentIDs: append([]string{}, notificationAgentIDs...),
		Rules:                append([]Rule{}, rules...),
	}

	e.mu.Lock()
	e.points[point.ID] = point
	for _, taskID := range point.Tasks {
		e.byTask[taskID] = append(e.byTask[taskID], point.ID)
	}
	snapshot := point.Clone()
	e.mu.Unlock()

	if e.notifier != nil {
		e.notifier.Publish(events.Event{
			Kind:       events.KindSyncPointCreated,
			Entity:     point.ID,
			EntityType: "sync_point",
			Priority:   events.PriorityNormal,
			Agents:     snapshot.NotificationAgentIDs,
			Payload:    Result{Point: snapshot},
		})
	}

	return e.Check(point.ID)
}

// Get returns a point by id, or false if unknown.
func (e *Engine) Get(id string) (*Point, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	point, ok := e.points[id]
	if !ok {
		return nil, false
	}
	return point.Clone(), true
}

// ForTask returns the points that involve a task.
func (e *Engine) ForTask(taskID string) []*Point {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result []*Point
	for _, id := range e.byTask[taskID] {
		result = append(result, e.points[id].Clone())
	}
	return result
}

// Observe re-checks every point involving the task. Called whenever a
// new progress summary for the task is available.
func (e *Engine) Observe(taskID string) {
	e.mu.Lock()
	ids := append([]string{}, e.byTask[taskID]...)
	e.mu.Unlock()

	for _, id := range ids {
		e.Check(id)
	}
}

// Check evaluates a synchronization point. Rules run first in descending
// priority order; the first rule whose condition holds completes the
// point. Otherwise all criteria must hold. A deadline in the past fails
// the point. Checks against a terminal point are idempotent no-ops.
func (e *Engine) Check(id string) (*Point, error) {
	_, span := telemetry.GetTracer().StartSyncSpan(context.Background(), id)

	point, err := e.check(id)

	opts := telemetry.SyncSpanOptions{PointID: id}
	if point != nil {
		opts.Status = string(point.Status)
		opts.Completed = len(point.CompletedTasks)
		opts.Total = len(point.Criteria)
	}
	telemetry.GetTracer().EndSyncSpan(span, opts, err)
	return point, err
}

func (e *Engine) check(id string) (*Point, error) {
	e.mu.Lock()

	point, ok := e.points[id]
	if !ok {
		e.mu.Unlock()
		return nil, errors.NotFound("sync point", id)
	}
	if point.Status.Terminal() {
		snapshot := point.Clone()
		e.mu.Unlock()
		return snapshot, nil
	}

	if point.Status == StatusPending {
		point.Status = StatusInProgress
	}

	// Rules short-circuit the default criteria check.
	if rule := e.triggeredRuleLocked(point); rule != nil {
		e.completeLocked(point)
		snapshot := point.Clone()
		e.mu.Unlock()

		e.emitRuleTriggered(snapshot, rule)
		e.emitTerminal(snapshot)
		return snapshot, nil
	}

	point.CompletedTasks = e.metCriteriaLocked(point)
	if len(point.CompletedTasks) == len(point.Criteria) {
		e.completeLocked(point)
		snapshot := point.Clone()
		e.mu.Unlock()

		e.emitTerminal(snapshot)
		return snapshot, nil
	}

	now := time.Now()
	if point.Deadline != nil && now.After(*point.Deadline) {
		point.Status = StatusFailed
		e.cancelTimerLocked(id)
		snapshot := point.Clone()
		e.mu.Unlock()

		e.emitTerminal(snapshot)
		return snapshot, nil
	}

	var warn time.Duration
	if point.Deadline != nil && !e.warned[id] {
		remaining := point.Deadline.Sub(now)
		if remaining >= warnBandInner && remaining <= warnBandOuter {
			e.warned[id] = true
			warn = remaining
		}
	}

	e.scheduleLocked(point, now)
	snapshot := point.Clone()
	e.mu.Unlock()

	e.log.SyncCheck(id, string(snapshot.Status), len(snapshot.CompletedTasks), len(snapshot.Criteria))
	if warn > 0 {
		e.emitApproachingDeadline(snapshot, warn)
	}
	return snapshot, nil
}

// AddTask adds a task and its criterion to a point and forces an
// immediate re-check. Adding a task already present is an error.
// Mutating a terminal point is a silent no-op.
func (e *Engine) AddTask(id, taskID string, requiredStatus progress.TaskStatus) (*Point, error) {
	e.mu.Lock()

	point, ok := e.points[id]
	if !ok {
		e.mu.Unlock()
		return nil, errors.NotFound("sync point", id)
	}
	if point.Status.Terminal() {
		snapshot := point.Clone()
		e.mu.Unlock()
		return snapshot, nil
	}
	if point.hasTask(taskID) {
		e.mu.Unlock()
		return nil, errors.InvalidState("task "+taskID+" already in sync point",
			errors.WithEntityID(id))
	}
	if requiredStatus == progress.StatusUnknown {
		requiredStatus = progress.StatusCompleted
	}

	point.Tasks = append(point.Tasks, taskID)
	point.Criteria = append(point.Criteria, Criterion{TaskID: taskID, RequiredStatus: requiredStatus})
	e.byTask[taskID] = append(e.byTask[taskID], id)
	snapshot := point.Clone()
	e.mu.Unlock()

	if e.notifier != nil {
		e.notifier.Publish(events.Event{
			Kind:       events.KindSyncPointTaskAdded,
			Entity:     id,
			EntityType: "sync_point",
			Priority:   events.PriorityNormal,
			Agents:     snapshot.NotificationAgentIDs,
			Payload:    Result{Point: snapshot},
		})
	}
	return e.Check(id)
}

// SetDeadline replaces a point's deadline and forces an immediate
// re-check. The approaching-deadline signal is re-armed for the new
// deadline. Mutating a terminal point is a silent no-op.
func (e *Engine) SetDeadline(id string, deadline time.Time) (*Point, error) {
	e.mu.Lock()

	point, ok := e.points[id]
	if !ok {
		e.mu.Unlock()
		return nil, errors.NotFound("sync point", id)
	}
	if point.Status.Terminal() {
		snapshot := point.Clone()
		e.mu.Unlock()
		return snapshot, nil
	}
	point.Deadline = &deadline
	delete(e.warned, id)
	e.mu.Unlock()

	return e.Check(id)
}

// NotifyAgents adds agents to the point's notification list and forces
// a re-check so they observe current state. Mutating a terminal point
// is a silent no-op.
func (e *Engine) NotifyAgents(id string, agentIDs ...string) (*Point, error) {
	e.mu.Lock()

	point, ok := e.points[id]
	if !ok {
		e.mu.Unlock()
		return nil, errors.NotFound("sync point", id)
	}
	if point.Status.Terminal() {
		snapshot := point.Clone()
		e.mu.Unlock()
		return snapshot, nil
	}
	for _, agentID := range agentIDs {
		if !contains(point.NotificationAgentIDs, agentID) {
			point.NotificationAgentIDs = append(point.NotificationAgentIDs, agentID)
		}
	}
	e.mu.Unlock()

	return e.Check(id)
}

// Close cancels all outstanding timers. The engine keeps serving reads
// and explicit checks, but no further timers are scheduled.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	for id, timer := range e.timers {
		timer.Stop()
		delete(e.timers, id)
	}
	return nil
}

// --- internals ---

// triggeredRuleLocked evaluates rules in descending priority order and
// returns the first whose condition holds.
func (e *Engine) triggeredRuleLocked(point *Point) *Rule {
	if len(point.Rules) == 0 {
		return nil
	}

	rules := make([]*Rule, 0, len(point.Rules))
	for i := range point.Rules {
		rules = append(rules, &point.Rules[i])
	}
	sortRulesByPriority(rules)

	for _, rule := range rules {
		if e.ruleHoldsLocked(point, rule) {
			return rule
		}
	}
	return nil
}

// ruleHoldsLocked evaluates one rule's condition.
func (e *Engine) ruleHoldsLocked(point *Point, rule *Rule) bool {
	taskIDs := rule.TaskIDs
	if len(taskIDs) == 0 {
		taskIDs = point.Tasks
	}

	met := 0
	for _, taskID := range taskIDs {
		if sum, ok := e.source.TaskStatus(taskID); ok && sum.Status == rule.RequiredStatus {
			met++
		}
	}

	switch rule.Type {
	case RuleAllCompleted:
		return met == len(taskIDs)
	case RuleAnyCompleted:
		return met >= 1
	case RuleMajorityCompleted:
		min := rule.MinRequired
		if min <= 0 {
			min = (len(taskIDs) + 1) / 2
		}
		return met >= min
	default:
		return false
	}
}

// metCriteriaLocked returns the task ids whose criterion currently holds.
func (e *Engine) metCriteriaLocked(point *Point) []string {
	met := make([]string, 0, len(point.Criteria))
	for _, criterion := range point.Criteria {
		if sum, ok := e.source.TaskStatus(criterion.TaskID); ok && sum.Status == criterion.RequiredStatus {
			met = append(met, criterion.TaskID)
		}
	}
	return met
}

// completeLocked transitions a point to completed and cancels its timer.
func (e *Engine) completeLocked(point *Point) {
	now := time.Now()
	point.Status = StatusCompleted
	point.CompletedAt = &now
	e.cancelTimerLocked(point.ID)
}

// scheduleLocked arms the next check timer, replacing any prior one.
func (e *Engine) scheduleLocked(point *Point, now time.Time) {
	if e.closed {
		return
	}
	e.cancelTimerLocked(point.ID)

	var interval time.Duration
	if point.Deadline != nil {
		interval = checkInterval(point.Deadline.Sub(now), true, e.defaultInterval)
	} else {
		interval = checkInterval(0, false, e.defaultInterval)
	}

	id := point.ID
	e.timers[id] = time.AfterFunc(interval, func() {
		e.Check(id)
	})
}

// cancelTimerLocked stops and forgets the point's timer, if any.
func (e *Engine) cancelTimerLocked(id string) {
	if timer, ok := e.timers[id]; ok {
		timer.Stop()
		delete(e.timers, id)
	}
}

// emitTerminal publishes the single terminal event for a point. The
// terminal-state guard in Check makes it idempotent per point.
func (e *Engine) emitTerminal(point *Point) {
	e.log.SyncTerminal(point.ID, string(point.Status))
	if e.notifier == nil {
		return
	}

	if point.Status == StatusCompleted {
		e.notifier.Publish(events.Event{
			Kind:       events.KindSyncPointCompleted,
			Entity:     point.ID,
			EntityType: "sync_point",
			Priority:   events.PriorityNormal,
			Agents:     point.NotificationAgentIDs,
			Payload:    Result{Point: point},
		})
		return
	}
	e.notifier.Publish(events.Event{
		Kind:       events.KindSyncPointFailed,
		Entity:     point.ID,
		EntityType: "sync_point",
		Priority:   events.PriorityHigh,
		Agents:     point.NotificationAgentIDs,
		Payload:    Result{Point: point},
	})
}

// emitRuleTriggered publishes the rule short-circuit event.
func (e *Engine) emitRuleTriggered(point *Point, rule *Rule) {
	if e.notifier == nil {
		return
	}
	r := *rule
	e.notifier.Publish(events.Event{
		Kind:       events.KindSyncPointRuleTriggered,
		Entity:     point.ID,
		EntityType: "sync_point",
		Priority:   events.PriorityNormal,
		Agents:     point.NotificationAgentIDs,
		Payload:    Result{Point: point, Rule: &r},
	})
}

// emitApproachingDeadline publishes the one-time warning signal. A check
// cadence coarser than the warning band can miss it entirely; the signal
// is best-effort, not a guaranteed alert.
func (e *Engine) emitApproachingDeadline(point *Point, remaining time.Duration) {
	if e.notifier == nil {
		return
	}
	e.notifier.Publish(events.Event{
		Kind:       events.KindSyncPointDeadline,
		Entity:     point.ID,
		EntityType: "sync_point",
		Priority:   events.PriorityHigh,
		Agents:     point.NotificationAgentIDs,
		Payload:    Result{Point: point, Remaining: remaining},
	})
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// sortRulesByPriority orders rules highest priority first, stable for
// equal priorities.
func sortRulesByPriority(rules []*Rule) {
	for i := 1; i < len(rules); i++ {
		for j := i; j > 0 && rules[j].Priority > rules[j-1].Priority; j-- {
			rules[j], rules[j-1] = rules[j-1], rules[j]
		}
	}
}
