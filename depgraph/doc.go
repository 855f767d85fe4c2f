// Package depgraph tracks typed dependency edges between tasks and
// derives their satisfied/blocked status from observed task progress.
//
// # Status derivation
//
// Edge status is a pure function of the dependency type and the two
// endpoint task statuses, except for waived edges, which are sticky.
// For a finish-to-start edge the source must complete before the target
// starts; observing the target started first marks the edge blocked.
// Once neither condition holds the status is left unchanged, so an edge
// never flaps back to pending after progress has been observed.
//
// Missing status data for either endpoint leaves the edge untouched:
// dependencies may be created before either task exists.
//
// # Queries
//
// CanTaskStart and CanTaskFinish scan the task's inbound edges and
// return the blocking edges for diagnostics. Optional edges never block.
package depgraph
