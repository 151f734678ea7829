package engine

import (
	"sync/atomic"
	"time"
)

type (
	// Stats are the counters of an engine since it was created.
	Stats struct {
		Ticks           uint64
		Overruns        uint64
		TaskErrors      uint64
		DroppedEvents   uint64
		ActiveContexts  int
		ActiveInstances int
		Workers         int
		LastTick        time.Duration
		TickPeriod      time.Duration
	}

	stats struct {
		period        time.Duration
		overruns      atomic.Uint64
		taskErrors    atomic.Uint64
		droppedEvents atomic.Uint64
		lastTick      atomic.Int64
	}
)

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	workers := 0
	for _, d := range e.domains {
		workers += d.workerCount()
	}
	return Stats{
		Ticks:           e.ticks.Load(),
		Overruns:        e.stats.overruns.Load(),
		TaskErrors:      e.stats.taskErrors.Load(),
		DroppedEvents:   e.stats.droppedEvents.Load(),
		ActiveContexts:  len(e.contexts),
		ActiveInstances: len(e.instances),
		Workers:         workers,
		LastTick:        time.Duration(e.stats.lastTick.Load()),
		TickPeriod:      e.stats.period,
	}
}
