package sharedctx

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskmesh/coordkit/config"
	coorderr "github.com/taskmesh/coordkit/errors"
	"github.com/taskmesh/coordkit/events"
	"github.com/taskmesh/coordkit/logging"
	"github.com/taskmesh/coordkit/telemetry"
)

// Keys callers can never set through Update.
var immutableKeys = map[string]bool{
	"id":         true,
	"createdAt":  true,
	"createdBy":  true,
	"version":    true,
	"created_at": true,
	"created_by": true,
}

// Store is the versioned shared context store. Objects live in memory;
// every accepted mutation appends exactly one change record, which is
// the sole source for version reconstruction.
type Store struct {
	mu        sync.Mutex
	objects   map[string]*Object
	history   map[string][]*ChangeRecord
	conflicts map[string][]*Conflict
	grants    map[string][]*Grant

	// deleting holds ids whose delete record has been appended but whose
	// removal has not happened yet. Reads still serve the object during
	// deleted-event delivery; writes are rejected so nothing can land on
	// top of the delete record's version.
	deleting map[string]bool

	notifier       *events.Notifier
	log            *logging.Logger
	recorder       Recorder
	membership     TeamMembership
	teams          map[string]config.TeamConfig
	conflictWindow time.Duration
}

// StoreConfig configures a Store. All fields are optional except none.
type StoreConfig struct {
	// Notifier receives context.* events. May be nil.
	Notifier *events.Notifier

	// Logger for real-time output. May be nil.
	Logger *logging.Logger

	// Recorder receives every accepted change record. May be nil.
	Recorder Recorder

	// Membership answers team membership queries. Nil denies all.
	Membership TeamMembership

	// Teams holds per-team conflict policies keyed by team id.
	Teams map[string]config.TeamConfig

	// ConflictWindow is how far back concurrent edits are considered
	// conflicting. Zero means 60 seconds.
	ConflictWindow time.Duration
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	membership := cfg.Membership
	if membership == nil {
		membership = denyAllMembership{}
	}
	window := cfg.ConflictWindow
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Store{
		objects:        make(map[string]*Object),
		history:        make(map[string][]*ChangeRecord),
		conflicts:      make(map[string][]*Conflict),
		grants:         make(map[string][]*Grant),
		deleting:       make(map[string]bool),
		notifier:       cfg.Notifier,
		log:            log.WithComponent("sharedctx"),
		recorder:       cfg.Recorder,
		membership:     membership,
		teams:          cfg.Teams,
		conflictWindow: window,
	}
}

// Create stores a new object at version 1 and records a create change
// whose single entry captures the full object.
func (s *Store) Create(objType string, data map[string]any, access AccessControl, creatorID string) (*Object, error) {
	if creatorID == "" {
		return nil, coorderr.InvalidInput("creator id required")
	}
	if access.DefaultAccess == "" {
		access.DefaultAccess = AccessReadOnly
	}

	now := time.Now()
	obj := &Object{
		ID:        uuid.New().String(),
		Type:      objType,
		Data:      cloneData(data),
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: creatorID,
		UpdatedBy: creatorID,
		Version:   1,
		Access:    access.clone(),
	}

	record := &ChangeRecord{
		ID:          uuid.New().String(),
		ContextID:   obj.ID,
		ChangeType:  ChangeCreate,
		ChangedBy:   creatorID,
		ChangedAt:   now,
		VersionFrom: 0,
		VersionTo:   1,
		Changes:     []FieldChange{{Path: "*", NewValue: obj.Clone()}},
	}

	s.mu.Lock()
	s.objects[obj.ID] = obj
	s.history[obj.ID] = append(s.history[obj.ID], record)
	snapshot := obj.Clone()
	s.mu.Unlock()

	s.record(record)
	s.log.ContextChange(obj.ID, string(ChangeCreate), 1)
	s.emit(events.KindContextCreated, snapshot, record)
	return snapshot, nil
}

// Get returns an object by id, or false when unknown.
func (s *Store) Get(id string) (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[id]
	if !ok {
		return nil, false
	}
	return obj.Clone(), true
}

// Update applies a set of field changes on behalf of an agent. EDIT
// access is required. Immutable keys are skipped silently. The write
// always lands before conflict detection runs; a detected conflict is
// flagged, never rolled back.
func (s *Store) Update(id string, updates map[string]any, agentID, reason string) (*Object, error) {
	_, span := telemetry.GetTracer().StartContextSpan(context.Background(), "update")

	snapshot, conflict, err := s.applyUpdate(id, updates, agentID, reason)

	opts := telemetry.ContextSpanOptions{
		ContextID:  id,
		ChangeType: string(ChangeUpdate),
		Conflict:   conflict != nil,
	}
	if snapshot != nil {
		opts.Version = snapshot.Version
	}
	telemetry.GetTracer().EndContextSpan(span, opts, err)

	if conflict != nil {
		s.resolveConflict(snapshot, conflict)
	}
	return snapshot, err
}

func (s *Store) applyUpdate(id string, updates map[string]any, agentID, reason string) (*Object, *Conflict, error) {
	s.mu.Lock()

	obj, ok := s.objects[id]
	if !ok || s.deleting[id] {
		s.mu.Unlock()
		return nil, nil, coorderr.NotFound("context", id)
	}
	if !s.hasAccessLocked(obj, agentID, AccessEdit) {
		s.mu.Unlock()
		return nil, nil, coorderr.PermissionDenied(agentID, string(AccessEdit),
			coorderr.WithEntityID(id))
	}

	if obj.Data == nil {
		obj.Data = make(map[string]any)
	}
	var changes []FieldChange
	for path, value := range updates {
		if immutableKeys[path] {
			continue
		}
		prev, had := obj.Data[path]
		if had && equalValue(prev, value) {
			continue
		}
		changes = append(changes, FieldChange{Path: path, PreviousValue: prev, NewValue: value})
		obj.Data[path] = value
	}
	if len(changes) == 0 {
		snapshot := obj.Clone()
		s.mu.Unlock()
		return snapshot, nil, nil
	}

	now := time.Now()
	record := &ChangeRecord{
		ID:          uuid.New().String(),
		ContextID:   id,
		ChangeType:  ChangeUpdate,
		ChangedBy:   agentID,
		ChangedAt:   now,
		VersionFrom: obj.Version,
		VersionTo:   obj.Version + 1,
		Changes:     changes,
		Reason:      reason,
	}

	conflict := s.detectConflictLocked(obj, record)

	obj.Version++
	obj.UpdatedAt = now
	obj.UpdatedBy = agentID
	s.history[id] = append(s.history[id], record)
	snapshot := obj.Clone()
	s.mu.Unlock()

	s.record(record)
	s.log.ContextChange(id, string(ChangeUpdate), snapshot.Version)
	s.emit(events.KindContextUpdated, snapshot, record)

	return snapshot, conflict, nil
}

// Delete removes an object. ADMIN access is required. Subscribers are
// notified before removal so they can still read the object.
func (s *Store) Delete(id, agentID, reason string) error {
	_, span := telemetry.GetTracer().StartContextSpan(context.Background(), "delete")

	version, err := s.deleteContext(id, agentID, reason)

	telemetry.GetTracer().EndContextSpan(span, telemetry.ContextSpanOptions{
		ContextID:  id,
		ChangeType: string(ChangeDelete),
		Version:    version,
	}, err)
	return err
}

func (s *Store) deleteContext(id, agentID, reason string) (int, error) {
	s.mu.Lock()

	obj, ok := s.objects[id]
	if !ok || s.deleting[id] {
		s.mu.Unlock()
		return 0, coorderr.NotFound("context", id)
	}
	if !s.hasAccessLocked(obj, agentID, AccessAdmin) {
		s.mu.Unlock()
		return 0, coorderr.PermissionDenied(agentID, string(AccessAdmin),
			coorderr.WithEntityID(id))
	}

	now := time.Now()
	record := &ChangeRecord{
		ID:          uuid.New().String(),
		ContextID:   id,
		ChangeType:  ChangeDelete,
		ChangedBy:   agentID,
		ChangedAt:   now,
		VersionFrom: obj.Version,
		VersionTo:   obj.Version + 1,
		Changes:     []FieldChange{{Path: "*", PreviousValue: obj.Clone()}},
		Reason:      reason,
	}
	s.history[id] = append(s.history[id], record)
	// Freeze writes before the lock drops. Get keeps serving the object
	// while deleted-event handlers run, but nothing may land on top of
	// the delete record's version.
	s.deleting[id] = true
	snapshot := obj.Clone()
	s.mu.Unlock()

	s.record(record)
	s.log.ContextChange(id, string(ChangeDelete), record.VersionTo)
	s.emit(events.KindContextDeleted, snapshot, record)

	s.mu.Lock()
	delete(s.objects, id)
	delete(s.deleting, id)
	s.mu.Unlock()
	return record.VersionTo, nil
}

// History returns the ordered change records for a context.
func (s *Store) History(id string) []ChangeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]ChangeRecord, 0, len(s.history[id]))
	for _, r := range s.history[id] {
		records = append(records, *r)
	}
	return records
}

// Conflicts returns the conflicts detected for a context.
func (s *Store) Conflicts(id string) []Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()

	conflicts := make([]Conflict, 0, len(s.conflicts[id]))
	for _, c := range s.conflicts[id] {
		conflicts = append(conflicts, *c)
	}
	return conflicts
}

// record forwards a change record to the configured recorder.
func (s *Store) record(r *ChangeRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(*r); err != nil {
		s.log.Warn("audit_record_failed", map[string]interface{}{
			"record": r.ID,
			"error":  err.Error(),
		})
	}
}

// emit publishes a context event carrying the object and record.
func (s *Store) emit(kind events.Kind, obj *Object, record *ChangeRecord) {
	if s.notifier == nil {
		return
	}
	r := *record
	s.notifier.Publish(events.Event{
		Kind:       kind,
		Entity:     obj.ID,
		EntityType: obj.Type,
		Priority:   events.PriorityNormal,
		Payload:    Change{Object: obj, Record: &r},
	})
}

// equalValue compares scalar values. Non-comparable values are treated
// as always changed.
func equalValue(a, b any) (eq bool) {
	defer func() { recover() }()
	return a == b
}
