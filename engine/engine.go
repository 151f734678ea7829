// Package engine runs recall instances over a channel graph.
//
// Templates attached to the graph are never run. When a run starts (a scope
// is initialized on an audio unit, or a note is struck), the engine
// allocates a RecyclingContext and a RecallID for it and duplicates every
// participating template into an Instance bound to that RecallID. Instances
// then pass through resolve, init and a run loop driven by ticks, until
// they are done or cancelled and finally cleaned up.
//
// All structural changes (starting, cancelling and tearing down runs,
// resizing the graph, running queued tasks) happen on the tick thread or
// under the engine mutex between ticks. During a tick, the instances of
// each (audio unit, scope) pair run on their own worker goroutine, with a
// barrier between the pre, inter and post stages.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/graph"
	"github.com/vsariola/recall/lockreg"
)

type (
	Engine struct {
		graph   *graph.Graph
		locks   *lockreg.Registry
		holder  lockreg.Holder // holder of the tick thread and of direct calls
		log     *slog.Logger
		presets recall.Presets
		plugins map[string]PluginDescriptor

		mu        sync.Mutex // serializes ticks, tasks and direct calls
		tx        *Txn
		contexts  map[uint64]*RecyclingContext
		instances map[graph.ObjectID]*Instance
		byKey     map[dupKey]*Instance
		domains   map[graph.ObjectID]*PlaybackDomain
		card      recall.Soundcard
		lastCtx   uint64

		tasks  chan Task
		events chan Event
		ticks  atomic.Uint64
		stats  stats
	}

	Options struct {
		Presets recall.Presets
		// Overclock shortens the tick period by the given fraction, see
		// recall.Presets.TickPeriod.
		Overclock float64
		Logger    *slog.Logger
		Plugins   []PluginDescriptor
		// TaskQueueSize and EventQueueSize default to 1024.
		TaskQueueSize  int
		EventQueueSize int
	}

	dupKey struct {
		template graph.ObjectID
		recallID uint64
	}
)

var (
	ErrUnknownAudio      = errors.New("unknown audio unit")
	ErrUnknownRecall     = errors.New("unknown recall")
	ErrIllegalTransition = errors.New("illegal lifecycle transition")
	ErrTaskQueueFull     = errors.New("task queue full")
	ErrUnsupportedScope  = errors.New("scope not supported by audio unit")
)

// New creates an engine over the graph. The graph must use the buffer size
// of the presets.
func New(g *graph.Graph, opts Options) (*Engine, error) {
	if err := opts.Presets.Validate(); err != nil {
		return nil, err
	}
	if g.BufferSize() != opts.Presets.BufferSize {
		return nil, &recall.ConfigurationError{Op: "new engine", Msg: fmt.Sprintf("graph buffer size %d differs from presets buffer size %d", g.BufferSize(), opts.Presets.BufferSize)}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TaskQueueSize <= 0 {
		opts.TaskQueueSize = 1024
	}
	if opts.EventQueueSize <= 0 {
		opts.EventQueueSize = 1024
	}
	e := &Engine{
		graph:     g,
		locks:     g.Locks(),
		holder:    g.Locks().NewHolder(),
		log:       opts.Logger,
		presets:   opts.Presets,
		plugins:   make(map[string]PluginDescriptor),
		contexts:  make(map[uint64]*RecyclingContext),
		instances: make(map[graph.ObjectID]*Instance),
		byKey:     make(map[dupKey]*Instance),
		domains:   make(map[graph.ObjectID]*PlaybackDomain),
		tasks:     make(chan Task, opts.TaskQueueSize),
		events:    make(chan Event, opts.EventQueueSize),
	}
	e.stats.period = opts.Presets.TickPeriod(opts.Overclock)
	e.tx = &Txn{e: e}
	for _, p := range opts.Plugins {
		if _, ok := e.plugins[p.Name()]; ok {
			return nil, &recall.ConfigurationError{Op: "new engine", Msg: fmt.Sprintf("plugin %q registered twice", p.Name())}
		}
		e.plugins[p.Name()] = p
	}
	for _, a := range g.Audios() {
		e.domain(a)
	}
	return e, nil
}

func (e *Engine) Graph() *graph.Graph { return e.graph }

func (e *Engine) Presets() recall.Presets { return e.presets }

// Holder returns the lock holder of the tick thread. Callers that lock
// graph objects before calling into the engine between ticks use it, so
// the engine can lock the same objects again.
func (e *Engine) Holder() lockreg.Holder { return e.holder }

// Attach sets the soundcard the engine mixes the outputs into on each tick.
func (e *Engine) Attach(card recall.Soundcard) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.card = card
}

// Do runs f between ticks with the engine locked.
func (e *Engine) Do(f func(tx *Txn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return f(e.tx)
}

func (e *Engine) InitAudio(audio graph.ObjectID, scopes recall.ScopeMask) (ret []*RecallID, err error) {
	err = e.Do(func(tx *Txn) error { ret, err = tx.InitAudio(audio, scopes); return err })
	return
}

func (e *Engine) InitScope(scope recall.Scope) (ret []*RecallID, err error) {
	err = e.Do(func(tx *Txn) error { ret, err = tx.InitScope(scope); return err })
	return
}

func (e *Engine) StartNote(audio graph.ObjectID, pad int, scope recall.Scope, ticks int) (ret *RecallID, err error) {
	err = e.Do(func(tx *Txn) error { ret, err = tx.StartNote(audio, pad, scope, ticks); return err })
	return
}

func (e *Engine) Duplicate(template graph.ObjectID, rid *RecallID) (ret *Instance, err error) {
	err = e.Do(func(tx *Txn) error { ret, err = tx.Duplicate(template, rid); return err })
	return
}

func (e *Engine) CancelContext(rid *RecallID) {
	e.Do(func(tx *Txn) error { tx.CancelContext(rid); return nil })
}

func (e *Engine) CancelRecall(instance graph.ObjectID) error {
	return e.Do(func(tx *Txn) error { return tx.CancelRecall(instance) })
}

func (e *Engine) RemoveRecall(container, template graph.ObjectID, scope recall.Scope, removeAll bool) error {
	return e.Do(func(tx *Txn) error { return tx.RemoveRecall(container, template, scope, removeAll) })
}

func (e *Engine) StopScope(audio graph.ObjectID, scope recall.Scope) error {
	return e.Do(func(tx *Txn) error { return tx.StopScope(audio, scope) })
}

func (e *Engine) SetPads(audio graph.ObjectID, side recall.Side, pads int) (ret graph.Resize, err error) {
	err = e.Do(func(tx *Txn) error { ret, err = tx.SetPads(audio, side, pads); return err })
	return
}

func (e *Engine) SetAudioChannels(audio graph.ObjectID, n int) (ret graph.Resize, err error) {
	err = e.Do(func(tx *Txn) error { ret, err = tx.SetAudioChannels(audio, n); return err })
	return
}

func (e *Engine) AddAudio(u recall.UnitSetup) (ret graph.ObjectID, err error) {
	err = e.Do(func(tx *Txn) error { ret, err = tx.AddAudio(u); return err })
	return
}

func (e *Engine) DestroyAudio(audio graph.ObjectID) error {
	return e.Do(func(tx *Txn) error { return tx.DestroyAudio(audio) })
}

// Instances returns the live instances of a run, in duplication order.
func (e *Engine) Instances(rid *RecallID) []*Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rid == nil || rid.Context.freed {
		return nil
	}
	return append([]*Instance(nil), rid.Context.instances...)
}

// Instance returns a live instance by ID.
func (e *Engine) Instance(id graph.ObjectID) (*Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	in, ok := e.instances[id]
	return in, ok
}

// Contexts returns the live recycling contexts, ordered by ID.
func (e *Engine) Contexts() []*RecyclingContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortedContexts()
}

func (e *Engine) Context(id uint64) (*RecyclingContext, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contexts[id]
	return c, ok
}

// Domain returns the playback domain of an audio unit.
func (e *Engine) Domain(audio graph.ObjectID) (*PlaybackDomain, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.domains[audio]
	return d, ok
}

// Events returns the channel completion and failure events are sent to.
// Events are dropped when nobody drains the channel.
func (e *Engine) Events() <-chan Event { return e.events }

// Close cancels every run, tears them down and stops all workers.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ctx := range e.sortedContexts() {
		if ctx.Parent == nil {
			e.cancelNow(ctx)
		}
	}
	for _, d := range e.domains {
		d.stopAll()
	}
}
