package engine

import (
	"fmt"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/graph"
)

type (
	EventKind int

	// Event tells the listeners of Engine.Events about runs that started,
	// completed, were cancelled or failed, and about instances that failed
	// and were bypassed.
	Event struct {
		Kind     EventKind
		Audio    graph.ObjectID
		Scope    recall.Scope
		RecallID uint64
		Instance graph.ObjectID
		Tick     uint64
		Err      error
	}
)

const (
	EventStarted EventKind = iota
	EventDone
	EventCancelled
	EventFailed
	EventBypassed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventDone:
		return "done"
	case EventCancelled:
		return "cancelled"
	case EventFailed:
		return "failed"
	case EventBypassed:
		return "bypassed"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

func (e *Engine) emit(ev Event) {
	ev.Tick = e.ticks.Load()
	if !TrySend(e.events, ev) {
		e.stats.droppedEvents.Add(1)
	}
}

// TrySend is a helper function to send a value to a channel if it is not
// full. It is guaranteed to be non-blocking. Return true if the value was
// sent, false otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}
