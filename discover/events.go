package discover

import (
	"sync"

	"github.com/Thyanin/aleth/discover/node"
)

// EventKind distinguishes table membership events.
type EventKind int

const (
	// NodeAdded fires when an entry takes a bucket slot.
	NodeAdded EventKind = iota

	// NodeDropped fires when an entry leaves the table.
	NodeDropped
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case NodeAdded:
		return "added"
	case NodeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event is one table membership change.
type Event struct {
	ID   node.ID
	Kind EventKind
}

// EventHandler consumes table membership events. ProcessEvents delivers
// queued events to the handler in FIFO order; for a single node ID the
// Added event always precedes a matching Dropped.
type EventHandler interface {
	NodeEvent(ev Event)
}

// eventQueue buffers events between ProcessEvents calls. Emission is
// decoupled from the routing locks: append happens after the mutating
// operation releases them.
type eventQueue struct {
	mu      sync.Mutex
	handler EventHandler
	events  []Event
}

// append queues an event. Events are only buffered while a handler is
// registered; without a subscriber they are discarded.
func (q *eventQueue) append(id node.ID, kind EventKind) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handler == nil {
		return
	}
	q.events = append(q.events, Event{ID: id, Kind: kind})
}

// setHandler registers the subscriber.
func (q *eventQueue) setHandler(h EventHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = h
}

// drain removes and returns all queued events with the current handler.
func (q *eventQueue) drain() (EventHandler, []Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	evs := q.events
	q.events = nil
	return q.handler, evs
}
