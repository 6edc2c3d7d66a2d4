package jobqueue

import (
	"slices"
	"sync"
)

// EventType names an application-level queue notification.
type EventType string

const (
	// EventQueued fires after a job is saved by Create.
	EventQueued EventType = "queued"
	// EventCompleted fires after a backend reports a job succeeded.
	EventCompleted EventType = "completed"
	// EventFailed fires after a backend reports a job failed for good.
	EventFailed EventType = "failed"
)

// EventTypes lists the full event vocabulary.
var EventTypes = []EventType{EventQueued, EventCompleted, EventFailed}

// Event is a single notification. Job is set for queued, Result for
// completed and Err for failed.
type Event struct {
	Type   EventType
	Queue  string
	JobID  string
	Job    *Job
	Result any
	Err    error
}

// EventHandler receives events synchronously on the publishing goroutine.
type EventHandler func(Event)

type subscription struct {
	id      uint64
	types   []EventType
	handler EventHandler
}

// EventBus delivers events to subscribers in subscription order.
// Publish blocks until every handler returns, so per-queue ordering is
// whatever order the publisher emits in.
type EventBus struct {
	mu      sync.RWMutex
	subs    []subscription
	nextID  uint64
	enabled map[EventType]bool
}

// NewEventBus creates a bus publishing only the given event types.
// With no types every event type is published.
func NewEventBus(types ...EventType) *EventBus {
	if len(types) == 0 {
		types = EventTypes
	}
	enabled := make(map[EventType]bool, len(types))
	for _, t := range types {
		enabled[t] = true
	}
	return &EventBus{enabled: enabled}
}

// Enabled reports whether events of type t are published.
func (b *EventBus) Enabled(t EventType) bool {
	return b.enabled[t]
}

// Subscribe registers h for the given types, or for all types when none are
// given. The returned function removes the subscription.
func (b *EventBus) Subscribe(h EventHandler, types ...EventType) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, types: types, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
	}
}

// Publish delivers e to every matching subscriber. Disabled event types are dropped.
func (b *EventBus) Publish(e Event) {
	if !b.enabled[e.Type] {
		return
	}

	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subs))
	for _, s := range b.subs {
		if len(s.types) == 0 || slices.Contains(s.types, e.Type) {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
