package engine

import (
	"cmp"
	"slices"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/graph"
)

// Cancel requests cancellation of the context and its children. It is safe
// to call from any goroutine; the engine cancels and tears down the run at
// the next tick boundary. Cancelling twice, or cancelling a freed context,
// does nothing.
func (c *RecyclingContext) Cancel() {
	c.cancel.Store(true)
}

// cancelNow cancels the context and its children right away and frees
// them.
func (e *Engine) cancelNow(ctx *RecyclingContext) {
	if ctx.freed {
		return
	}
	ctx.cancel.Store(true)
	for _, in := range ctx.instances {
		if !in.State().Terminal() {
			in.transition(StateCancelled)
		}
	}
	e.emit(Event{Kind: EventCancelled, Audio: ctx.Audio, Scope: ctx.Scope, RecallID: ctx.ID})
	e.freeContext(ctx)
}

// freeContext cleans up the instances of the context, children first, drops
// its signals and forgets it. The context must not be used afterwards.
func (e *Engine) freeContext(ctx *RecyclingContext) {
	if ctx.freed {
		return
	}
	for _, c := range slices.Clone(ctx.children) {
		e.cancelNow(c)
	}
	instances := slices.Clone(ctx.instances)
	for i := len(instances) - 1; i >= 0; i-- {
		e.cleanup(instances[i])
	}
	e.dropSignals(ctx)
	if p := ctx.Parent; p != nil {
		p.children = slices.DeleteFunc(p.children, func(c *RecyclingContext) bool { return c == ctx })
	}
	delete(e.contexts, ctx.ID)
	if d, ok := e.domains[ctx.Audio]; ok {
		d.clearRecallID(ctx.recallID)
		d.release(ctx.Scope)
	}
	ctx.freed = true
}

// dropSignals removes the signals of the context from every channel of its
// audio unit, including the ones padded in by a synced resize.
func (e *Engine) dropSignals(ctx *RecyclingContext) {
	ids := slices.Clone(ctx.recyclings)
	if a, err := e.graph.Audio(ctx.Audio); err == nil {
		for _, side := range []recall.Side{recall.Output, recall.Input} {
			for _, ch := range a.Channels(side) {
				if c, err := e.graph.Channel(ch); err == nil && !slices.Contains(ids, c.FirstRecycling) {
					ids = append(ids, c.FirstRecycling)
				}
			}
		}
	}
	for _, id := range ids {
		rec, err := e.graph.Recycling(id)
		if err != nil {
			continue
		}
		unlock := e.graph.Lock(e.holder, id)
		rec.Drop(ctx.ID)
		unlock()
	}
	ctx.recyclings = nil
}

// cleanup moves the instance to StateCleanedUp, after cancelling it if it
// is still live, and releases everything it holds. Children of the
// instance are cleaned up before it.
func (e *Engine) cleanup(in *Instance) {
	if in.State() == StateCleanedUp {
		return
	}
	for _, c := range slices.Clone(in.children) {
		e.cleanup(c)
	}
	if st := in.State(); st == StateInitialized || st == StateRunning {
		in.transition(StateCancelled)
	}
	in.transition(StateCleanedUp)
	ctx := in.recallID.Context
	for _, ch := range in.channels() {
		e.unhold(ctx, ch)
	}
	if p := in.parent; p != nil {
		p.children = slices.DeleteFunc(p.children, func(c *Instance) bool { return c == in })
		in.parent = nil
	}
	ctx.removeInstance(in)
	delete(e.instances, in.ID)
	if e.byKey[dupKey{in.Template, ctx.ID}] == in {
		delete(e.byKey, dupKey{in.Template, ctx.ID})
	}
	e.locks.Unregister(graph.Key(in.ID))
	in.ports = nil
	in.src, in.dst = nil, nil
}

// applyCancellations handles the cancel requests made since the last tick:
// cancelled contexts are torn down, cancelled instances are cleaned up,
// and contexts left without live producers complete.
func (e *Engine) applyCancellations() []*RecyclingContext {
	for _, ctx := range e.sortedContexts() {
		if !ctx.freed && ctx.cancel.Load() {
			e.cancelNow(ctx)
		}
	}
	var touched []*RecyclingContext
	for _, in := range e.sortedInstances() {
		if !in.cancelReq {
			continue
		}
		ctx := in.recallID.Context
		if !in.State().Terminal() {
			in.transition(StateCancelled)
			e.emit(Event{Kind: EventCancelled, Audio: in.Audio, Scope: ctx.Scope, RecallID: ctx.ID, Instance: in.ID})
		}
		e.cleanup(in)
		if !slices.Contains(touched, ctx) {
			touched = append(touched, ctx)
		}
	}
	var completed []*RecyclingContext
	for _, ctx := range touched {
		switch {
		case ctx.freed:
		case len(ctx.instances) == 0:
			e.freeContext(ctx)
		case ctx.producersDone():
			if e.complete(ctx) {
				completed = append(completed, ctx)
			}
		}
	}
	return completed
}

// complete marks the context completed and the live instances done. It
// reports whether the context was not completed before.
func (e *Engine) complete(ctx *RecyclingContext) bool {
	if ctx.completed || ctx.freed {
		return false
	}
	ctx.completed = true
	for _, in := range ctx.instances {
		switch in.State() {
		case StateInitialized, StateRunning:
			in.transition(StateDone)
		}
	}
	return true
}

func (e *Engine) sortedContexts() []*RecyclingContext {
	ret := make([]*RecyclingContext, 0, len(e.contexts))
	for _, c := range e.contexts {
		ret = append(ret, c)
	}
	slices.SortFunc(ret, func(a, b *RecyclingContext) int { return cmp.Compare(a.ID, b.ID) })
	return ret
}

func (e *Engine) sortedInstances() []*Instance {
	ret := make([]*Instance, 0, len(e.instances))
	for _, in := range e.instances {
		ret = append(ret, in)
	}
	slices.SortFunc(ret, func(a, b *Instance) int { return cmp.Compare(a.ID, b.ID) })
	return ret
}
