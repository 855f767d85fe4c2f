// Package events is the notification bridge between the coordination
// engine and the messaging layer that delivers updates to agents.
//
// # Overview
//
// Components publish typed Events to a Notifier. Handlers are registered
// per event kind and invoked sequentially on the publishing goroutine.
// Delivery is best-effort: a panicking handler is recovered and logged,
// and remaining handlers still run.
//
// # In-process subscription
//
//	n := events.NewNotifier(nil)
//	n.Subscribe(events.KindSyncPointCompleted, func(ev events.Event) {
//	    // forward to agents
//	})
//	n.Publish(events.Event{Kind: events.KindSyncPointCompleted, Entity: id})
//
// # Out-of-process consumers
//
// NATSPublisher subscribes to a Notifier and republishes every event as
// JSON on "coord.<kind>" subjects, with a per-entity subject
// "coord.<kind>.<entity>" for consumers that filter by object.
package events
