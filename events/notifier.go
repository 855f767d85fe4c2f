package events

import (
	"sync"
	"time"

	"github.com/taskmesh/coordkit/logging"
)

// Handler processes a single event. Handlers run synchronously on the
// publishing goroutine; a panicking handler is recovered and logged and
// never prevents delivery to remaining handlers.
type Handler func(Event)

// Notifier fans events out to registered handlers by kind.
// Delivery is sequential and best-effort.
type Notifier struct {
	mu       sync.RWMutex
	handlers map[Kind][]*subscription
	all      []*subscription
	log      *logging.Logger
}

// subscription ties a handler to its registration so it can be removed.
type subscription struct {
	kind    Kind
	handler Handler
	n       *Notifier
	allSub  bool
}

// Subscription represents a registered handler.
type Subscription interface {
	// Unsubscribe removes the handler. Safe to call more than once.
	Unsubscribe()
}

// NewNotifier creates a notifier. The logger may be nil.
func NewNotifier(log *logging.Logger) *Notifier {
	if log == nil {
		log = logging.Discard()
	}
	return &Notifier{
		handlers: make(map[Kind][]*subscription),
		log:      log.WithComponent("events"),
	}
}

// Subscribe registers a handler for a single event kind.
func (n *Notifier) Subscribe(kind Kind, h Handler) Subscription {
	sub := &subscription{kind: kind, handler: h, n: n}

	n.mu.Lock()
	n.handlers[kind] = append(n.handlers[kind], sub)
	n.mu.Unlock()

	return sub
}

// SubscribeAll registers a handler for every event kind.
func (n *Notifier) SubscribeAll(h Handler) Subscription {
	sub := &subscription{handler: h, n: n, allSub: true}

	n.mu.Lock()
	n.all = append(n.all, sub)
	n.mu.Unlock()

	return sub
}

// Publish delivers an event to all handlers registered for its kind,
// then to all-kind handlers. A zero timestamp is stamped with now.
func (n *Notifier) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	n.mu.RLock()
	subs := make([]*subscription, 0, len(n.handlers[ev.Kind])+len(n.all))
	subs = append(subs, n.handlers[ev.Kind]...)
	subs = append(subs, n.all...)
	n.mu.RUnlock()

	for _, sub := range subs {
		n.deliver(sub, ev)
	}
}

// deliver invokes one handler, isolating panics.
func (n *Notifier) deliver(sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("handler panic", map[string]interface{}{
				"kind":   ev.Kind.String(),
				"entity": ev.Entity,
				"panic":  r,
			})
		}
	}()
	sub.handler(ev)
}

// Unsubscribe removes the handler from the notifier.
func (s *subscription) Unsubscribe() {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()

	if s.allSub {
		s.n.all = removeSub(s.n.all, s)
		return
	}
	s.n.handlers[s.kind] = removeSub(s.n.handlers[s.kind], s)
}

func removeSub(subs []*subscription, target *subscription) []*subscription {
	for i, sub := range subs {
		if sub == target {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
