package engine

import (
	"sync"
	"time"
)

// SubscriberFunc is a callback invoked when an event is emitted.
type SubscriberFunc func(Event)

// EventBus is the synchronous dispatch point between subsystems.
// Subscriptions are either for everything (the SSE hub mirrors the
// whole stream) or for specific types (publisher fan-out and alarm
// evaluation only care about tag updates). Callbacks run on the
// emitting goroutine in registration order, so an emitter returns only
// after every consumer has seen the event.
type EventBus struct {
	mu     sync.RWMutex
	all    []SubscriberFunc
	byType map[EventType][]SubscriberFunc
}

// NewEventBus creates an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{byType: make(map[EventType][]SubscriberFunc)}
}

// Subscribe registers a callback for all event types.
func (eb *EventBus) Subscribe(fn SubscriberFunc) {
	eb.mu.Lock()
	eb.all = append(eb.all, fn)
	eb.mu.Unlock()
}

// SubscribeTypes registers a callback only for the given event types.
func (eb *EventBus) SubscribeTypes(fn SubscriberFunc, types ...EventType) {
	eb.mu.Lock()
	for _, t := range types {
		eb.byType[t] = append(eb.byType[t], fn)
	}
	eb.mu.Unlock()
}

// Emit stamps and delivers an event to every matching subscriber.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	eb.mu.RLock()
	subs := make([]SubscriberFunc, 0, len(eb.all)+len(eb.byType[evt.Type]))
	subs = append(subs, eb.all...)
	subs = append(subs, eb.byType[evt.Type]...)
	eb.mu.RUnlock()

	for _, fn := range subs {
		fn(evt)
	}
}
