package protocol

import (
	"sync"

	"github.com/adgentic/agentcomm/core"
)

// EventKind identifies a protocol lifecycle event observers can subscribe to.
type EventKind int

const (
	// EventMessageSent fires after a message is committed to the queue.
	EventMessageSent EventKind = iota
	// EventMessageDelivered fires after a successful delivery.
	EventMessageDelivered
	// EventDeliveryFailed fires when a delivery is skipped or the handler fails.
	EventDeliveryFailed
	// EventAgentRegistered fires after a successful registration.
	EventAgentRegistered
	// EventAgentUnregistered fires after an agent is removed.
	EventAgentUnregistered
)

// Event carries the context of a protocol lifecycle event. Message and Err
// are nil for kinds they do not apply to.
type Event struct {
	Kind    EventKind
	AgentID string
	Message *core.Message
	Err     error
}

// EventFunc is invoked synchronously, in subscription order, for each event
// of the subscribed kind. Callbacks must return quickly; slow observers stall
// the protocol operation that emitted the event.
type EventFunc func(Event)

type subscription struct {
	id int
	fn EventFunc
}

// emitter fans protocol events out to an explicit, ordered subscriber list
// per event kind. Cancellation is an explicit unsubscribe: Subscribe returns
// a function that removes the callback.
type emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[EventKind][]subscription
}

func newEmitter() *emitter {
	return &emitter{subs: make(map[EventKind][]subscription)}
}

func (e *emitter) subscribe(kind EventKind, fn EventFunc) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs[kind] = append(e.subs[kind], subscription{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		list := e.subs[kind]
		for i, sub := range list {
			if sub.id == id {
				e.subs[kind] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	list := e.subs[ev.Kind]
	snapshot := make([]subscription, len(list))
	copy(snapshot, list)
	e.mu.RUnlock()

	for _, sub := range snapshot {
		sub.fn(ev)
	}
}
