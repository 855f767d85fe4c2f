package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the chain.
// If err is nil, Wrap returns nil. If err is already a coordination Error,
// its code and metadata are preserved.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var coordErr *Error
	if errors.As(err, &coordErr) {
		wrapped := &Error{
			code:     coordErr.code,
			category: coordErr.category,
			message:  message,
			cause:    err,
			metadata: coordErr.Metadata(),
			agentID:  coordErr.agentID,
			entityID: coordErr.entityID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsCode checks if any error in the chain has the given error code.
func IsCode(err error, code ErrorCode) bool {
	var coordErr *Error
	if errors.As(err, &coordErr) {
		return coordErr.code == code
	}
	return false
}

// IsNotFound checks for a NOT_FOUND error.
func IsNotFound(err error) bool {
	return IsCode(err, ErrCodeNotFound)
}

// IsPermissionDenied checks for a PERMISSION_DENIED error.
func IsPermissionDenied(err error) bool {
	return IsCode(err, ErrCodePermissionDenied)
}

// IsInvalidState checks for an INVALID_STATE error.
func IsInvalidState(err error) bool {
	return IsCode(err, ErrCodeInvalidState)
}

// Code extracts the error code from an error, if available.
// Returns empty string if err is not a coordination Error.
func Code(err error) ErrorCode {
	var coordErr *Error
	if errors.As(err, &coordErr) {
		return coordErr.code
	}
	return ""
}

// Category extracts the error category from an error, if available.
func Category(err error) ErrorCategory {
	var coordErr *Error
	if errors.As(err, &coordErr) {
		return coordErr.category
	}
	return ""
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
