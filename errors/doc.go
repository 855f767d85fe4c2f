// Package errors provides structured errors for the coordination engine.
//
// Every caller-visible failure carries an ErrorCode identifying the
// failure type and an ErrorCategory informing the caller's handling
// policy. The engine itself never retries; retry policy belongs to the
// calling orchestration code.
//
// # Usage
//
//	if !store.HasAccess(id, agent, sharedctx.AccessEdit) {
//	    return errors.PermissionDenied(agent, "EDIT", errors.WithEntityID(id))
//	}
//
// Checking:
//
//	if errors.IsNotFound(err) {
//	    // the id was unknown
//	}
//
// Read operations generally return empty results rather than errors;
// write operations against a missing id return NOT_FOUND.
package errors
