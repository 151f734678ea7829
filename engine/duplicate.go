package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/graph"
	"github.com/vsariola/recall/lockreg"
)

type (
	// runRequest says which part of an audio unit a new run covers.
	runRequest struct {
		audio  graph.ObjectID
		scope  recall.Scope
		parent *RecyclingContext
		// pads are the input pads of the run; nil means all of them.
		pads []int
		// overrides replace port values of the duplicated templates, per
		// kind.
		overrides map[recall.Kind]map[string]float64
	}

	// placement is where a channel-scoped template is duplicated.
	placement struct {
		source graph.ObjectID
		route  graph.ObjectID
		side   recall.Side
		pad    int
		ch     int
	}
)

// start allocates a context for the request, duplicates all participating
// templates into it, resolves them and initializes them. If any of this
// fails, everything duplicated so far is rolled back and the context is
// freed, as if the run never started.
func (e *Engine) start(req runRequest) (rid *RecallID, err error) {
	a, err := e.graph.Audio(req.audio)
	if err != nil {
		return nil, fmt.Errorf("audio %d: %w", req.audio, ErrUnknownAudio)
	}
	if !a.Abilities.Has(req.scope) {
		return nil, fmt.Errorf("audio %q, scope %v: %w", a.Name, req.scope, ErrUnsupportedScope)
	}
	defer e.graph.Lock(e.holder, req.audio)()
	top := a.Topology()
	ctx := e.newContext(req.audio, req.scope, req.parent)
	d := e.domain(req.audio)
	d.acquire(req.scope, e.locks)
	ok := false
	defer func() {
		if !ok {
			e.freeContext(ctx)
		}
	}()
	channels, err := e.duplicateRun(ctx, a, top, req)
	if err != nil {
		return nil, err
	}
	if err := e.resolveAndInit(ctx, ctx.instances); err != nil {
		var dangling *recall.DanglingReferenceError
		if errors.As(err, &dangling) {
			e.log.Warn("run rolled back", "audio", a.Name, "scope", req.scope, "err", err)
		}
		ctx.cancel.Store(true)
		e.emit(Event{Kind: EventFailed, Audio: req.audio, Scope: req.scope, RecallID: ctx.ID, Err: err})
		return nil, err
	}
	ok = true
	if req.parent == nil {
		d.setRecallID(ctx.recallID, channels)
	}
	e.emit(Event{Kind: EventStarted, Audio: req.audio, Scope: req.scope, RecallID: ctx.ID})
	e.log.Debug("run started", "audio", a.Name, "recall", ctx.recallID, "instances", len(ctx.instances))
	return ctx.recallID, nil
}

// duplicateRun duplicates the templates of the run: audio-scoped ones
// first, then those of the participating input channels and finally those
// of the output channels the inputs route to. It returns the channels of
// the run.
func (e *Engine) duplicateRun(ctx *RecyclingContext, a *graph.Audio, top graph.Topology, req runRequest) ([]graph.ObjectID, error) {
	sets := []recall.Set{recall.PlaySet, recall.RecallSet}
	for _, s := range sets {
		for _, tid := range a.Templates(s) {
			if _, err := e.duplicate(ctx, tid, placement{}, req.overrides); err != nil {
				return nil, err
			}
		}
	}
	pads := req.pads
	if pads == nil {
		for p := range top.InputPads {
			pads = append(pads, p)
		}
	}
	var channels, outputs []graph.ObjectID
	for _, p := range pads {
		for c := range top.AudioChannels {
			in := top.Input(p, c)
			if in == 0 {
				return nil, &recall.ConfigurationError{Op: "start run", Msg: fmt.Sprintf("audio %q has no input pad %d", a.Name, p)}
			}
			route := top.Route(p, c)
			if route != 0 && !slices.Contains(outputs, route) {
				outputs = append(outputs, route)
			}
			channels = append(channels, in)
			ch, err := e.graph.Channel(in)
			if err != nil {
				return nil, err
			}
			at := placement{source: in, route: route, side: recall.Input, pad: p, ch: c}
			for _, s := range sets {
				for _, tid := range ch.Templates(s) {
					if _, err := e.duplicate(ctx, tid, at, req.overrides); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	if req.pads == nil {
		outputs = top.Outputs
	}
	for _, out := range outputs {
		channels = append(channels, out)
		ch, err := e.graph.Channel(out)
		if err != nil {
			return nil, err
		}
		at := placement{source: out, side: recall.Output, pad: ch.Pad, ch: ch.AudioChannel}
		for _, s := range sets {
			for _, tid := range ch.Templates(s) {
				if _, err := e.duplicate(ctx, tid, at, req.overrides); err != nil {
					return nil, err
				}
			}
		}
	}
	// every channel of the run gets a live signal, used or not
	for _, id := range channels {
		if err := e.hold(ctx, id); err != nil {
			return nil, err
		}
	}
	return channels, nil
}

// duplicate copies one template into the context. It returns nil without
// an error if the template was already duplicated for the context's
// RecallID, or if the template does not take part in the context's scope.
func (e *Engine) duplicate(ctx *RecyclingContext, tid graph.ObjectID, at placement, overrides map[recall.Kind]map[string]float64) (*Instance, error) {
	if _, ok := e.byKey[dupKey{tid, ctx.ID}]; ok {
		return nil, nil
	}
	def, err := e.graph.Def(e.holder, tid)
	if err != nil {
		return nil, err
	}
	if !def.Abilities.Has(ctx.Scope) {
		return nil, nil
	}
	b, err := newBehaviour(def.Kind)
	if err != nil {
		return nil, err
	}
	specs := def.PortSpecs()
	var plugin PluginDescriptor
	if def.Kind == recall.KindPlugin {
		var ok bool
		if plugin, ok = e.plugins[def.Plugin]; !ok {
			return nil, &recall.ConfigurationError{Op: "duplicate", Msg: fmt.Sprintf("template %q: plugin %q is not registered", def.Name, def.Plugin)}
		}
		specs = plugin.Ports()
		for name := range def.Ports {
			if portIndex(specs, name) < 0 {
				return nil, &recall.ConfigurationError{Op: "duplicate", Msg: fmt.Sprintf("template %q: plugin %q has no port %q", def.Name, def.Plugin, name)}
			}
		}
	}
	in := &Instance{
		Template:  tid,
		Audio:     ctx.Audio,
		recallID:  ctx.recallID,
		def:       def,
		behaviour: b,
		plugin:    plugin,
		state:     StateDuplicated,
		history:   []State{StateDuplicated},
	}
	if def.Shape == recall.ChannelScoped {
		if at.source == 0 {
			return nil, &recall.ConfigurationError{Op: "duplicate", Msg: fmt.Sprintf("template %q is channel-scoped but attached to an audio unit", def.Name)}
		}
		in.Source, in.Destination = at.source, at.source
		if def.Kind.Routes() {
			if at.route == 0 {
				return nil, &recall.ConfigurationError{Op: "duplicate", Msg: fmt.Sprintf("template %q: no output channel to route to", def.Name)}
			}
			in.Destination = at.route
		}
		in.side, in.Pad, in.AudioChannel = at.side, at.pad, at.ch
	}
	in.ports = make([]*Port, len(specs))
	for i, s := range specs {
		v := def.PortValue(s)
		if o, ok := overrides[def.Kind][s.Name]; ok {
			v = o
			in.overridden = append(in.overridden, s.Name)
		}
		in.ports[i] = newPort(s, v)
	}
	in.ID = e.graph.NewID()
	e.instances[in.ID] = in
	e.byKey[dupKey{tid, ctx.ID}] = in
	ctx.instances = append(ctx.instances, in)
	ctx.producers = ctx.producers || isProducer(in)
	for _, id := range in.channels() {
		if err := e.hold(ctx, id); err != nil {
			e.cleanup(in)
			return nil, err
		}
	}
	return in, nil
}

// channels returns the distinct channels the instance uses.
func (in *Instance) channels() []graph.ObjectID {
	switch {
	case in.Source == 0:
		return nil
	case in.Destination == in.Source:
		return []graph.ObjectID{in.Source}
	}
	return []graph.ObjectID{in.Source, in.Destination}
}

func (e *Engine) resolveAndInit(ctx *RecyclingContext, set []*Instance) error {
	set = slices.Clone(set)
	r := &resolver{e: e, ctx: ctx, set: set}
	for _, in := range set {
		if err := in.resolve(r); err != nil {
			return err
		}
	}
	t := e.newTick(e.holder)
	for st := StagePre; st < numStages; st++ {
		for _, in := range set {
			if err := in.init(st, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// hold adds a user to the live signal of the context on the channel's
// recycling, creating the signal if needed.
func (e *Engine) hold(ctx *RecyclingContext, channel graph.ObjectID) error {
	rec, err := e.recyclingOf(channel)
	if err != nil {
		return err
	}
	defer e.graph.Lock(e.holder, rec.ID)()
	rec.AddSignal(ctx.ID)
	ctx.addRecycling(rec.ID)
	return nil
}

func (e *Engine) unhold(ctx *RecyclingContext, channel graph.ObjectID) {
	rec, err := e.recyclingOf(channel)
	if err != nil {
		return
	}
	defer e.graph.Lock(e.holder, rec.ID)()
	rec.Release(ctx.ID)
}

func (e *Engine) recyclingOf(channel graph.ObjectID) (*graph.Recycling, error) {
	c, err := e.graph.Channel(channel)
	if err != nil {
		return nil, err
	}
	return e.graph.Recycling(c.FirstRecycling)
}

func (e *Engine) newTick(h lockreg.Holder) *tick {
	return &tick{n: e.ticks.Load(), graph: e.graph, holder: h, presets: e.presets, log: e.log}
}
