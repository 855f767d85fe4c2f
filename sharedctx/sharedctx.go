package sharedctx

import (
	"sort"
	"time"
)

// AccessLevel controls what an agent may do to a context object.
// Levels form a strict total order; a granted level satisfies any
// requirement of equal or lower rank.
type AccessLevel string

const (
	AccessReadOnly AccessLevel = "READ_ONLY"
	AccessComment  AccessLevel = "COMMENT"
	AccessSuggest  AccessLevel = "SUGGEST"
	AccessEdit     AccessLevel = "EDIT"
	AccessAdmin    AccessLevel = "ADMIN"
)

// rank maps levels to their position in the order. Unknown levels rank
// below READ_ONLY so they never satisfy a requirement.
func (l AccessLevel) rank() int {
	switch l {
	case AccessReadOnly:
		return 1
	case AccessComment:
		return 2
	case AccessSuggest:
		return 3
	case AccessEdit:
		return 4
	case AccessAdmin:
		return 5
	default:
		return 0
	}
}

// Satisfies reports whether the level meets a required level.
func (l AccessLevel) Satisfies(required AccessLevel) bool {
	return l.rank() >= required.rank()
}

// AccessControl holds the layered access rules of one object. Explicit
// agent grants win over team grants, which win over the default.
type AccessControl struct {
	DefaultAccess AccessLevel            `json:"default_access"`
	AgentAccess   map[string]AccessLevel `json:"agent_access,omitempty"`
	TeamAccess    map[string]AccessLevel `json:"team_access,omitempty"`
}

func (a AccessControl) clone() AccessControl {
	c := AccessControl{DefaultAccess: a.DefaultAccess}
	if a.AgentAccess != nil {
		c.AgentAccess = make(map[string]AccessLevel, len(a.AgentAccess))
		for k, v := range a.AgentAccess {
			c.AgentAccess[k] = v
		}
	}
	if a.TeamAccess != nil {
		c.TeamAccess = make(map[string]AccessLevel, len(a.TeamAccess))
		for k, v := range a.TeamAccess {
			c.TeamAccess[k] = v
		}
	}
	return c
}

// Object is an arbitrary typed record under optimistic versioning.
// Version starts at 1 and increments by exactly one per accepted
// mutation.
type Object struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	CreatedBy string         `json:"created_by"`
	UpdatedBy string         `json:"updated_by"`
	Version   int            `json:"version"`
	Access    AccessControl  `json:"access_control"`
}

// Clone returns a copy so callers cannot mutate store state. Data is
// copied one level deep; nested values are shared.
func (o *Object) Clone() *Object {
	c := *o
	c.Data = cloneData(o.Data)
	c.Access = o.Access.clone()
	return &c
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	c := make(map[string]any, len(data))
	for k, v := range data {
		c[k] = v
	}
	return c
}

// ChangeType classifies a change record.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// FieldChange records one changed path within an update.
type FieldChange struct {
	Path          string `json:"path"`
	PreviousValue any    `json:"previous_value,omitempty"`
	NewValue      any    `json:"new_value,omitempty"`
}

// ChangeRecord is one append-only audit entry. Records are immutable
// once written; the ordered sequence per context id is the sole source
// for version reconstruction.
type ChangeRecord struct {
	ID          string        `json:"id"`
	ContextID   string        `json:"context_id"`
	ChangeType  ChangeType    `json:"change_type"`
	ChangedBy   string        `json:"changed_by"`
	ChangedAt   time.Time     `json:"changed_at"`
	VersionFrom int           `json:"version_from"`
	VersionTo   int           `json:"version_to"`
	Changes     []FieldChange `json:"changes"`
	Reason      string        `json:"reason,omitempty"`
}

// paths returns the set of field paths this record touched.
func (r *ChangeRecord) paths() map[string]bool {
	set := make(map[string]bool, len(r.Changes))
	for _, ch := range r.Changes {
		set[ch.Path] = true
	}
	return set
}

// ConflictStatus is the lifecycle state of a detected conflict.
type ConflictStatus string

const (
	ConflictDetected  ConflictStatus = "detected"
	ConflictResolving ConflictStatus = "resolving"
	ConflictResolved  ConflictStatus = "resolved"
	ConflictEscalated ConflictStatus = "escalated"
)

// Resolution records how a conflict was closed out.
type Resolution struct {
	Strategy   string    `json:"strategy"`
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Conflict is a detected overlapping concurrent edit. Detection never
// blocks the write that triggered it; the conflicting update has already
// been committed when resolution runs.
type Conflict struct {
	ID                 string         `json:"id"`
	ContextID          string         `json:"context_id"`
	ConflictingChanges []ChangeRecord `json:"conflicting_changes"`
	DetectedAt         time.Time      `json:"detected_at"`
	Status             ConflictStatus `json:"status"`
	Severity           string         `json:"severity"`
	AffectedAgents     []string       `json:"affected_agents"`
	Resolution         *Resolution    `json:"resolution,omitempty"`
}

// Grant is an explicit, revocable permission on one context object.
type Grant struct {
	ID          string      `json:"id"`
	ContextID   string      `json:"context_id"`
	GrantedTo   string      `json:"granted_to"`
	GrantedBy   string      `json:"granted_by"`
	AccessLevel AccessLevel `json:"access_level"`
	GrantedAt   time.Time   `json:"granted_at"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	Revoked     bool        `json:"revoked"`
	RevokedAt   *time.Time  `json:"revoked_at,omitempty"`
	RevokedBy   string      `json:"revoked_by,omitempty"`
}

// Change is the payload of context.* events.
type Change struct {
	Object *Object       `json:"object"`
	Record *ChangeRecord `json:"record"`
}

// TeamMembership answers whether an agent belongs to a team. Membership
// data lives outside this store; the zero implementation denies all.
type TeamMembership interface {
	IsMember(agentID, teamID string) bool
}

// denyAllMembership is used until a real membership source is wired.
type denyAllMembership struct{}

func (denyAllMembership) IsMember(string, string) bool { return false }

// Recorder receives every accepted change record, in order. The audit
// journal implements it.
type Recorder interface {
	Record(ChangeRecord) error
}

// sortedKeys returns map keys in lexical order, for deterministic
// iteration.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
