package engine

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/graph"
)

type (
	// RecyclingContext is the buffer namespace of one run: every recycling
	// the run touches holds one live signal tagged with the context ID.
	// Contexts nest: a note struck while a scope is playing gets a child
	// context of the scope's context.
	RecyclingContext struct {
		ID     uint64
		Audio  graph.ObjectID
		Scope  recall.Scope
		Parent *RecyclingContext

		recallID   *RecallID
		children   []*RecyclingContext
		instances  []*Instance
		recyclings []graph.ObjectID
		cancel     atomic.Bool
		producers  bool
		completed  bool
		freed      bool
	}

	// RecallID identifies one run of one scope. All instances duplicated
	// for the run share it; instances of different RecallIDs never share
	// port state.
	RecallID struct {
		ID      uint64
		Scope   recall.Scope
		Context *RecyclingContext
	}
)

func (e *Engine) newContext(audio graph.ObjectID, scope recall.Scope, parent *RecyclingContext) *RecyclingContext {
	e.lastCtx++
	ctx := &RecyclingContext{ID: e.lastCtx, Audio: audio, Scope: scope, Parent: parent}
	ctx.recallID = &RecallID{ID: ctx.ID, Scope: scope, Context: ctx}
	e.contexts[ctx.ID] = ctx
	if parent != nil {
		parent.children = append(parent.children, ctx)
	}
	return ctx
}

func (c *RecyclingContext) RecallID() *RecallID { return c.recallID }

// Children returns the nested contexts.
func (c *RecyclingContext) Children() []*RecyclingContext { return slices.Clone(c.children) }

// Cancelled reports whether cancellation was requested.
func (c *RecyclingContext) Cancelled() bool { return c.cancel.Load() }

// Completed reports whether all producers of the run finished.
func (c *RecyclingContext) Completed() bool { return c.completed }

// Freed reports whether the context was torn down.
func (c *RecyclingContext) Freed() bool { return c.freed }

func (c *RecyclingContext) addRecycling(id graph.ObjectID) {
	if !slices.Contains(c.recyclings, id) {
		c.recyclings = append(c.recyclings, id)
	}
}

func (c *RecyclingContext) removeInstance(in *Instance) {
	c.instances = slices.DeleteFunc(c.instances, func(x *Instance) bool { return x == in })
}

// producersDone reports whether the run had producers and all of them are
// finished. Persistent producers do not count.
func (c *RecyclingContext) producersDone() bool {
	if !c.producers {
		return false
	}
	for _, in := range c.instances {
		if isProducer(in) && !in.State().Terminal() {
			return false
		}
	}
	return true
}

func isProducer(in *Instance) bool {
	return in.def.Kind.Producer() && !in.def.Behaviour.Has(recall.BehaviourPersistent)
}

func (r *RecallID) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v#%d", r.Scope, r.ID)
}
