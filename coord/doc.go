// Package coord assembles the coordination engine from its components.
//
// # Overview
//
// The engine owns one event notifier and one task status source and
// wires them into the dependency graph manager, the resource allocator,
// the synchronization barrier engine, and the shared context store.
// Status observations fan out: every dependency edge touching the task
// re-derives its status and every synchronization point involving the
// task re-checks.
//
// # Usage
//
//	cfg, _ := config.Load("coordkit.toml")
//	engine, _ := coord.New(cfg, coord.Options{})
//	defer engine.Close(context.Background())
//
//	engine.Dependencies().Create("task-a", "task-b",
//	    depgraph.FinishToStart, "b needs a's output", 0.9, "")
//
//	engine.SetTaskStatus("task-a", progress.StatusCompleted)
//
// Optional collaborators come from configuration: a NATS bridge
// republishes events for out-of-process consumers, the audit journal
// indexes context change records for search, and a telemetry exporter
// forwards every event to an HTTP collector or file.
package coord
