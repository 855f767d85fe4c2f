package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: unknown ids, insufficient access, invalid mutations.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates unexpected errors, bugs, or corrupted state.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
// The engine never retries internally; this informs the caller's policy.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for coordination failures.
const (
	// ErrCodeNotFound indicates the referenced dependency, sync point,
	// context, or grant does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodePermissionDenied indicates the agent's access level is
	// insufficient for the operation.
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// ErrCodeInvalidState indicates a mutation that the entity's current
	// state does not allow, such as adding a task already present in a
	// synchronization point.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeInvalidInput indicates malformed input.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrCodeConflict indicates a concurrent-edit conflict escalated past
	// automatic resolution.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeUnsupported indicates a reserved extension point with no
	// built-in semantics, such as the custom sync rule type.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"

	// ErrCodeUnavailable indicates a collaborator (status source, NATS)
	// is temporarily unreachable.
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL"

	// ErrCodePanic indicates a recovered panic.
	ErrCodePanic ErrorCode = "PANIC"
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeUnavailable:
		return CategoryTransient
	case ErrCodeNotFound, ErrCodePermissionDenied, ErrCodeInvalidState,
		ErrCodeInvalidInput, ErrCodeConflict, ErrCodeUnsupported:
		return CategoryPermanent
	case ErrCodeInternal, ErrCodePanic:
		return CategoryInternal
	default:
		return CategoryInternal
	}
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeNotFound:         "entity not found",
	ErrCodePermissionDenied: "insufficient access level",
	ErrCodeInvalidState:     "operation not allowed in current state",
	ErrCodeInvalidInput:     "invalid input provided",
	ErrCodeConflict:         "concurrent edit conflict",
	ErrCodeUnsupported:      "operation not supported",
	ErrCodeUnavailable:      "collaborator temporarily unavailable",
	ErrCodeInternal:         "internal error",
	ErrCodePanic:            "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
