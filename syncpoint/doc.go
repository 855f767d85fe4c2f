// Package syncpoint implements synchronization barriers over sets of tasks.
//
// # Overview
//
// A synchronization point names a set of tasks and the status each must
// reach before downstream work may proceed. The engine re-evaluates each
// point on an adaptive schedule: far from the deadline it polls every
// five minutes, inside the final hour every minute, and inside the final
// five minutes every thirty seconds. Points without a deadline poll at a
// flat configurable cadence. Completed and failed are terminal states;
// a terminal point ignores further mutation and re-checks.
//
// # Usage
//
//	engine := syncpoint.NewEngine(syncpoint.Config{
//	    Source:   source,
//	    Notifier: notifier,
//	})
//	defer engine.Close()
//
//	point, _ := engine.Create("integration-gate", "wait for backend and frontend",
//	    []string{"task-backend", "task-frontend"}, nil, nil, &deadline, nil)
//
//	// Re-check whenever task status changes.
//	source.OnChange(func(taskID string) { engine.Observe(taskID) })
//
// # Rules
//
// Rules override the default all-criteria check. Each rule names a type
// (all_completed, any_completed, majority_completed), an optional task
// subset, and a priority. Rules are evaluated highest priority first and
// the first one whose condition holds completes the point early.
//
// # Deadlines
//
// A point whose deadline passes before completion transitions to failed
// and emits sync_point.failed. Between five minutes and four and a half
// minutes before the deadline the engine emits a single
// sync_point.approaching_deadline warning per point.
package syncpoint
