package events

import (
	"testing"
)

func TestSubscribeByKind(t *testing.T) {
	n := NewNotifier(nil)

	var got []Event
	n.Subscribe(KindDependencyUpdated, func(ev Event) {
		got = append(got, ev)
	})

	n.Publish(Event{Kind: KindDependencyUpdated, Entity: "dep-1"})
	n.Publish(Event{Kind: KindContextUpdated, Entity: "ctx-1"})

	if len(got) != 1 || got[0].Entity != "dep-1" {
		t.Errorf("got = %+v, want only dep-1", got)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("Publish did not stamp timestamp")
	}
}

func TestSubscribeAll(t *testing.T) {
	n := NewNotifier(nil)

	count := 0
	n.SubscribeAll(func(Event) { count++ })

	n.Publish(Event{Kind: KindResourceAllocated})
	n.Publish(Event{Kind: KindSyncPointCompleted})

	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestUnsubscribe(t *testing.T) {
	n := NewNotifier(nil)

	count := 0
	sub := n.Subscribe(KindContextCreated, func(Event) { count++ })

	n.Publish(Event{Kind: KindContextCreated})
	sub.Unsubscribe()
	sub.Unsubscribe() // safe to repeat
	n.Publish(Event{Kind: KindContextCreated})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestPanickingHandlerIsolated(t *testing.T) {
	n := NewNotifier(nil)

	n.Subscribe(KindContextDeleted, func(Event) { panic("boom") })

	delivered := false
	n.Subscribe(KindContextDeleted, func(Event) { delivered = true })

	n.Publish(Event{Kind: KindContextDeleted})
	if !delivered {
		t.Error("panicking handler blocked delivery to the next subscriber")
	}
}

func TestPriorityString(t *testing.T) {
	cases := map[Priority]string{
		PriorityLow:    "low",
		PriorityNormal: "normal",
		PriorityHigh:   "high",
		PriorityUrgent: "urgent",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", p, got, want)
		}
	}
}
