package engine

import (
	"fmt"
	"slices"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/graph"
)

// Txn is the engine as seen between ticks, with the engine mutex held.
// Tasks get one in Launch; Engine.Do hands one to a function. It has no
// way to run a tick, so tasks cannot re-enter the scheduler.
type Txn struct {
	e *Engine
}

func (tx *Txn) Graph() *graph.Graph { return tx.e.graph }

// InitAudio starts a run of every scope in the mask on all channels of
// the audio. A scope that already has a run keeps it. If one of the scopes
// fails to start, the runs started by the call are cancelled.
func (tx *Txn) InitAudio(audio graph.ObjectID, scopes recall.ScopeMask) ([]*RecallID, error) {
	e := tx.e
	if _, err := e.graph.Audio(audio); err != nil {
		return nil, fmt.Errorf("init audio %d: %w", audio, ErrUnknownAudio)
	}
	d := e.domain(audio)
	var ret, started []*RecallID
	for s := range scopes.Scopes {
		if rid := d.RecallID(s); rid != nil && !rid.Context.freed {
			ret = append(ret, rid)
			continue
		}
		rid, err := e.start(runRequest{audio: audio, scope: s})
		if err != nil {
			for _, r := range started {
				e.cancelNow(r.Context)
			}
			return nil, fmt.Errorf("init audio %d, scope %v: %w", audio, s, err)
		}
		started = append(started, rid)
		ret = append(ret, rid)
	}
	return ret, nil
}

// InitScope starts a run of the scope on every audio unit that supports
// it. Units without the ability are skipped with a warning.
func (tx *Txn) InitScope(scope recall.Scope) ([]*RecallID, error) {
	var ret []*RecallID
	for _, id := range tx.e.graph.Audios() {
		a, err := tx.e.graph.Audio(id)
		if err != nil {
			continue
		}
		if !a.Abilities.Has(scope) {
			tx.e.log.Warn("audio unit does not support scope, skipped", "audio", a.Name, "scope", scope)
			continue
		}
		rids, err := tx.InitAudio(id, scope.Mask())
		if err != nil {
			return ret, err
		}
		ret = append(ret, rids...)
	}
	return ret, nil
}

// StartNote starts a run of a single input pad, nested in the scope's
// current run of the audio if there is one. If ticks > 0, streams of the
// note stop after that many ticks.
func (tx *Txn) StartNote(audio graph.ObjectID, pad int, scope recall.Scope, ticks int) (*RecallID, error) {
	e := tx.e
	a, err := e.graph.Audio(audio)
	if err != nil {
		return nil, fmt.Errorf("start note on audio %d: %w", audio, ErrUnknownAudio)
	}
	if pad < 0 || pad >= a.Pads(recall.Input) {
		return nil, &recall.ConfigurationError{Op: "start note", Msg: fmt.Sprintf("audio %q has no input pad %d", a.Name, pad)}
	}
	var parent *RecyclingContext
	if rid := e.domain(audio).RecallID(scope); rid != nil && !rid.Context.freed {
		parent = rid.Context
	}
	req := runRequest{audio: audio, scope: scope, parent: parent, pads: []int{pad}}
	if ticks > 0 {
		req.overrides = map[recall.Kind]map[string]float64{recall.KindStream: {"length": float64(ticks)}}
	}
	return e.start(req)
}

// Duplicate copies a single template into a live run. Duplicating a
// template twice for the same RecallID returns nil and no error.
func (tx *Txn) Duplicate(template graph.ObjectID, rid *RecallID) (*Instance, error) {
	e := tx.e
	if rid == nil || rid.Context.freed || rid.Context.Cancelled() {
		return nil, fmt.Errorf("duplicate template %d into %v: %w", template, rid, ErrUnknownRecall)
	}
	ctx := rid.Context
	node, err := e.graph.Template(template)
	if err != nil {
		return nil, err
	}
	if node.Audio != ctx.Audio {
		return nil, &recall.ConfigurationError{Op: "duplicate", Msg: fmt.Sprintf("template %d does not belong to audio %d", template, ctx.Audio)}
	}
	a, err := e.graph.Audio(ctx.Audio)
	if err != nil {
		return nil, fmt.Errorf("duplicate template %d: %w", template, ErrUnknownAudio)
	}
	defer e.graph.Lock(e.holder, a.ID)()
	var at placement
	if node.Channel != 0 {
		c, err := e.graph.Channel(node.Channel)
		if err != nil {
			return nil, err
		}
		at = placement{source: c.ID, side: c.Side, pad: c.Pad, ch: c.AudioChannel}
		if c.Side == recall.Input {
			at.route = a.Topology().Route(c.Pad, c.AudioChannel)
		}
	}
	in, err := e.duplicate(ctx, template, at, nil)
	if err != nil || in == nil {
		return nil, err
	}
	if err := e.resolveAndInit(ctx, []*Instance{in}); err != nil {
		e.cleanup(in)
		return nil, err
	}
	return in, nil
}

// CancelContext requests cancellation of the run; see
// RecyclingContext.Cancel.
func (tx *Txn) CancelContext(rid *RecallID) {
	if rid == nil || rid.Context.freed {
		return
	}
	rid.Context.Cancel()
}

// CancelRecall requests cancellation of a single instance. The instance is
// cancelled and cleaned up at the next tick boundary; cancelling a
// finished instance does nothing.
func (tx *Txn) CancelRecall(instance graph.ObjectID) error {
	in, ok := tx.e.instances[instance]
	if !ok {
		return fmt.Errorf("cancel recall %d: %w", instance, ErrUnknownRecall)
	}
	if !in.State().Terminal() {
		in.cancelReq = true
	}
	return nil
}

// RemoveRecall cancels the instances of a template in the scope. The
// container is the audio unit or the channel the template is attached to.
// Without removeAll, only the instance of the container's current top-level
// run is cancelled; with it, the instances of every run including nested
// notes are cancelled and the template is detached from the graph.
func (tx *Txn) RemoveRecall(container, template graph.ObjectID, scope recall.Scope, removeAll bool) error {
	e := tx.e
	node, err := e.graph.Template(template)
	if err != nil {
		return fmt.Errorf("remove recall: %w", err)
	}
	if container != node.Audio && container != node.Channel {
		return &recall.ConfigurationError{Op: "remove recall", Msg: fmt.Sprintf("template %d is not attached to %d", template, container)}
	}
	d := e.domain(node.Audio)
	var targets []*RecallID
	if removeAll {
		for _, ctx := range e.sortedContexts() {
			if ctx.Audio == node.Audio && ctx.Scope == scope {
				targets = append(targets, ctx.recallID)
			}
		}
	} else {
		rid := d.RecallID(scope)
		if p, ok := d.Playback(container); ok {
			rid = p.RecallID(scope)
		}
		if rid != nil {
			targets = append(targets, rid)
		}
	}
	for _, rid := range targets {
		if in, ok := e.byKey[dupKey{template, rid.ID}]; ok && !in.State().Terminal() {
			in.cancelReq = true
		}
	}
	if removeAll {
		return e.graph.DetachTemplate(e.holder, template)
	}
	return nil
}

// StopScope requests cancellation of every run of the scope on the audio.
func (tx *Txn) StopScope(audio graph.ObjectID, scope recall.Scope) error {
	if _, err := tx.e.graph.Audio(audio); err != nil {
		return fmt.Errorf("stop scope %v: %w", scope, ErrUnknownAudio)
	}
	for _, ctx := range tx.e.sortedContexts() {
		if ctx.Audio == audio && ctx.Scope == scope && ctx.Parent == nil {
			ctx.Cancel()
		}
	}
	return nil
}

// AddAudio adds an audio unit to the graph.
func (tx *Txn) AddAudio(u recall.UnitSetup) (graph.ObjectID, error) {
	id, err := tx.e.graph.AddAudio(tx.e.holder, u)
	if err != nil {
		return 0, err
	}
	tx.e.domain(id)
	return id, nil
}

// DestroyAudio tears down every run of the audio and removes it from the
// graph.
func (tx *Txn) DestroyAudio(audio graph.ObjectID) error {
	e := tx.e
	if _, err := e.graph.Audio(audio); err != nil {
		return fmt.Errorf("destroy audio %d: %w", audio, ErrUnknownAudio)
	}
	for _, ctx := range e.sortedContexts() {
		if ctx.Audio == audio && ctx.Parent == nil {
			e.cancelNow(ctx)
		}
	}
	if d, ok := e.domains[audio]; ok {
		d.stopAll()
		delete(e.domains, audio)
	}
	return e.graph.RemoveAudio(e.holder, audio)
}

// SetPads resizes a side of the audio. Runs that use a removed channel are
// cancelled and torn down right away; other runs are left alone. New
// channels take part in runs started afterwards.
func (tx *Txn) SetPads(audio graph.ObjectID, side recall.Side, pads int) (graph.Resize, error) {
	res, err := tx.e.graph.SetPads(tx.e.holder, audio, side, pads)
	if err != nil {
		return res, err
	}
	tx.e.resized(audio, res)
	return res, nil
}

// SetAudioChannels changes the audio channel count of the inputs, and of
// the outputs too if the audio's fan-out is synced.
func (tx *Txn) SetAudioChannels(audio graph.ObjectID, n int) (graph.Resize, error) {
	res, err := tx.e.graph.SetAudioChannels(tx.e.holder, audio, n)
	if err != nil {
		return res, err
	}
	tx.e.resized(audio, res)
	return res, nil
}

// SetOutputAudioChannels changes the audio channel count of the outputs.
func (tx *Txn) SetOutputAudioChannels(audio graph.ObjectID, n int) (graph.Resize, error) {
	res, err := tx.e.graph.SetOutputAudioChannels(tx.e.holder, audio, n)
	if err != nil {
		return res, err
	}
	tx.e.resized(audio, res)
	return res, nil
}

// SetTemplatePort reconfigures a template. Live instances keep their
// values, except those with the initial-run behaviour that have not run
// yet.
func (tx *Txn) SetTemplatePort(template graph.ObjectID, port string, value float64) error {
	return tx.e.graph.SetTemplatePort(tx.e.holder, template, port, value)
}

// AttachTemplate adds a template to an audio unit (channel == 0) or to one
// of its channels. Runs already started do not pick it up.
func (tx *Txn) AttachTemplate(audio, channel graph.ObjectID, t recall.Template) (graph.ObjectID, error) {
	return tx.e.graph.AttachTemplate(tx.e.holder, audio, channel, t)
}

// AttachSideTemplate adds a channel-scoped template to every channel of a
// side, current and future.
func (tx *Txn) AttachSideTemplate(audio graph.ObjectID, side recall.Side, t recall.Template) ([]graph.ObjectID, error) {
	return tx.e.graph.AttachSideTemplate(tx.e.holder, audio, side, t)
}

func (e *Engine) resized(audio graph.ObjectID, res graph.Resize) {
	if len(res.Removed) > 0 {
		for _, ctx := range e.sortedContexts() {
			if ctx.freed || ctx.Audio != audio {
				continue
			}
			uses := slices.ContainsFunc(ctx.instances, func(in *Instance) bool {
				return slices.ContainsFunc(in.channels(), func(id graph.ObjectID) bool { return slices.Contains(res.Removed, id) })
			})
			if uses {
				e.log.Debug("run cancelled by resize", "recall", ctx.recallID)
				e.cancelNow(ctx)
			}
		}
	}
	if a, err := e.graph.Audio(audio); err == nil {
		e.domain(audio).refresh(e.graph, a)
	}
}
