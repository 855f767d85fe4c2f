package errors

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// CoordError is implemented by every structured error raised by the
// coordination engine. It extends error with the context callers need
// to decide how to handle a failure.
type CoordError interface {
	error

	// Code identifies the failure type.
	Code() ErrorCode

	// Category groups codes for handling decisions.
	Category() ErrorCategory

	// Metadata returns additional context as key-value pairs.
	Metadata() map[string]string

	// Unwrap returns the underlying error, if any.
	Unwrap() error
}

// Error is the concrete CoordError carried across package boundaries.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	timestamp time.Time
	agentID   string // acting agent, if applicable
	entityID  string // affected entity, if applicable
}

var (
	_ CoordError       = (*Error)(nil)
	_ json.Marshaler   = (*Error)(nil)
	_ json.Unmarshaler = (*Error)(nil)
)

func (e *Error) Error() string {
	if e.cause == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

func (e *Error) Code() ErrorCode         { return e.code }
func (e *Error) Category() ErrorCategory { return e.category }
func (e *Error) Unwrap() error           { return e.cause }

// Timestamp returns when the error was created.
func (e *Error) Timestamp() time.Time { return e.timestamp }

// AgentID returns the acting agent id, if set.
func (e *Error) AgentID() string { return e.agentID }

// EntityID returns the affected entity id, if set.
func (e *Error) EntityID() string { return e.entityID }

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	if e.metadata == nil {
		return map[string]string{}
	}
	return maps.Clone(e.metadata)
}

type errorJSON struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Cause     string            `json:"cause,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	AgentID   string            `json:"agent_id,omitempty"`
	EntityID  string            `json:"entity_id,omitempty"`
}

// MarshalJSON flattens the error, rendering the cause as text. The
// cause chain is not preserved across a round trip.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:     e.code,
		Category: e.category,
		Message:  e.message,
		Metadata: e.metadata,
		AgentID:  e.agentID,
		EntityID: e.entityID,
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// UnmarshalJSON restores an error serialized by MarshalJSON.
func (e *Error) UnmarshalJSON(data []byte) error {
	var j errorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*e = Error{
		code:     j.Code,
		category: j.Category,
		message:  j.Message,
		metadata: j.Metadata,
		agentID:  j.AgentID,
		entityID: j.EntityID,
	}
	if j.Cause != "" {
		e.cause = fmt.Errorf("%s", j.Cause)
	}
	if j.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, j.Timestamp); err == nil {
			e.timestamp = t
		}
	}
	return nil
}

// Option configures an Error at construction time.
type Option func(*Error)

// WithCategory overrides the code's default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) { e.category = cat }
}

// WithMetadata attaches a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithAgentID records the acting agent.
func WithAgentID(id string) Option {
	return func(e *Error) { e.agentID = id }
}

// WithEntityID records the affected entity.
func WithEntityID(id string) Option {
	return func(e *Error) { e.entityID = id }
}

// WithCause records the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) { e.cause = cause }
}

// New creates an Error with the given code and message. The category
// defaults from the code unless WithCategory overrides it.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates an Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// NotFound creates a not found error for the given entity.
func NotFound(entityType, id string, opts ...Option) *Error {
	opts = append([]Option{WithEntityID(id)}, opts...)
	return New(ErrCodeNotFound, fmt.Sprintf("%s %s not found", entityType, id), opts...)
}

// PermissionDenied creates a permission error carrying the agent and the
// required access level.
func PermissionDenied(agentID, required string, opts ...Option) *Error {
	opts = append([]Option{
		WithAgentID(agentID),
		WithMetadata("required_level", required),
	}, opts...)
	return New(ErrCodePermissionDenied,
		fmt.Sprintf("agent %s lacks %s access", agentID, required), opts...)
}

// InvalidState creates an invalid state error.
func InvalidState(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidState, message, opts...)
}

// InvalidInput creates an invalid input error.
func InvalidInput(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidInput, message, opts...)
}

// Unsupported creates an unsupported operation error.
func Unsupported(message string, opts ...Option) *Error {
	return New(ErrCodeUnsupported, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
