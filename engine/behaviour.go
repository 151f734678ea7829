package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/viterin/vek/vek32"
	"github.com/vsariola/recall"
	"github.com/vsariola/recall/graph"
	"github.com/vsariola/recall/lockreg"
)

type (
	// behaviour is the kind-specific part of an instance. Each kind of
	// recall has exactly one behaviour; see newBehaviour.
	behaviour interface {
		resolve(r *resolver, in *Instance) error
		init(stage Stage, t *tick, in *Instance) error
		run(stage Stage, t *tick, in *Instance) (finished bool, err error)
	}

	// tick is what a behaviour sees of the engine while it runs: the graph,
	// the lock holder of the goroutine it runs on and the tick number.
	tick struct {
		n       uint64
		graph   *graph.Graph
		holder  lockreg.Holder
		presets recall.Presets
		log     *slog.Logger
	}

	// resolver finds the collaborators of an instance within its run.
	resolver struct {
		e   *Engine
		ctx *RecyclingContext
		set []*Instance
	}

	patternBehaviour struct {
		rowTicks float64
		acc      float64
		row      int
		rowAge   int
		done     bool
	}

	patternChannelBehaviour struct{ channelBehaviour }
	streamBehaviour         struct{ channelBehaviour }
	copyBehaviour           struct{ channelBehaviour }
	volumeBehaviour         struct{ channelBehaviour }
	pluginBehaviour         struct{ channelBehaviour }

	// channelBehaviour wires the recyclings of the instance's channels.
	channelBehaviour struct{}
)

// port indices, in the order of recall.KindPorts
const (
	patternBPM = iota
	patternRowsPerBeat
	patternLength
	patternNoteTicks
)

const (
	levelPort = 0
	mutedPort = 1

	streamLength = 0
	streamLevel  = 1

	copyGain  = 0
	copyMuted = 1

	volumePort = 0
)

func newBehaviour(k recall.Kind) (behaviour, error) {
	switch k {
	case recall.KindPattern:
		return &patternBehaviour{row: -1}, nil
	case recall.KindPatternChannel:
		return &patternChannelBehaviour{}, nil
	case recall.KindStream:
		return &streamBehaviour{}, nil
	case recall.KindCopy:
		return &copyBehaviour{}, nil
	case recall.KindVolume:
		return &volumeBehaviour{}, nil
	case recall.KindPlugin:
		return &pluginBehaviour{}, nil
	}
	return nil, &recall.ConfigurationError{Op: "duplicate", Msg: fmt.Sprintf("unknown kind %q", k)}
}

// rank orders the instances of a worker within a stage: patterns before
// the channels that follow them, generators before effects.
func rank(k recall.Kind) int {
	switch k {
	case recall.KindPattern:
		return 0
	case recall.KindPatternChannel, recall.KindStream:
		return 1
	}
	return 2
}

// with locks the recycling and calls f with the live signal of ctx, if
// there is one.
func (t *tick) with(r *graph.Recycling, ctx uint64, f func(s *graph.AudioSignal)) {
	if r == nil {
		return
	}
	defer t.graph.Lock(t.holder, r.ID)()
	if s := r.Signal(ctx); s != nil {
		f(s)
	}
}

func (t *tick) with2(src, dst *graph.Recycling, ctx uint64, f func(src, dst *graph.AudioSignal)) {
	if src == nil || dst == nil {
		return
	}
	defer t.graph.Lock(t.holder, src.ID, dst.ID)()
	s, d := src.Signal(ctx), dst.Signal(ctx)
	if s != nil && d != nil {
		f(s, d)
	}
}

func (r *resolver) recycling(in *Instance, channel graph.ObjectID) (*graph.Recycling, error) {
	c, err := r.e.graph.Channel(channel)
	if err != nil {
		return nil, &recall.DanglingReferenceError{Template: in.def.Name, Missing: fmt.Sprintf("channel %d", channel), RecallID: in.recallID.ID}
	}
	rec, err := r.e.graph.Recycling(c.FirstRecycling)
	if err != nil {
		return nil, &recall.DanglingReferenceError{Template: in.def.Name, Missing: fmt.Sprintf("recycling of channel %d", channel), RecallID: in.recallID.ID}
	}
	return rec, nil
}

// parent finds the audio-scoped instance named by the template's Parent
// among the instances of the same RecallID.
func (r *resolver) parent(in *Instance) (*Instance, error) {
	for _, list := range [][]*Instance{r.set, r.ctx.instances} {
		for _, p := range list {
			if p.recallID == in.recallID && p.audioScoped() && p.def.Name == in.def.Parent && !p.State().Terminal() {
				return p, nil
			}
		}
	}
	return nil, &recall.DanglingReferenceError{Template: in.def.Name, Missing: in.def.Parent, RecallID: in.recallID.ID}
}

func (channelBehaviour) resolve(r *resolver, in *Instance) (err error) {
	if in.src, err = r.recycling(in, in.Source); err != nil {
		return err
	}
	in.dst, err = r.recycling(in, in.Destination)
	return err
}

func (channelBehaviour) init(Stage, *tick, *Instance) error { return nil }

func (b *patternBehaviour) resolve(*resolver, *Instance) error { return nil }

func (b *patternBehaviour) init(stage Stage, t *tick, in *Instance) error {
	if stage != StagePre {
		return nil
	}
	rowsPerSecond := in.value(patternBPM) * in.value(patternRowsPerBeat) / 60
	ticksPerSecond := float64(t.presets.SampleRate) / float64(t.presets.BufferSize)
	b.rowTicks = max(ticksPerSecond/rowsPerSecond, 1)
	return nil
}

func (b *patternBehaviour) run(stage Stage, _ *tick, in *Instance) (bool, error) {
	if stage != StagePre || b.done {
		return b.done, nil
	}
	if b.row < 0 {
		b.row = 0
		return false, nil
	}
	b.acc++
	b.rowAge++
	if b.acc < b.rowTicks {
		return false, nil
	}
	b.acc -= b.rowTicks
	b.rowAge = 0
	b.row++
	if b.row >= int(in.value(patternLength)) {
		if !in.def.Behaviour.Has(recall.BehaviourPatternMode) {
			b.done = true
			return true, nil
		}
		b.row = 0
	}
	return false, nil
}

// Row returns the current row of the pattern, -1 before the first tick.
func (b *patternBehaviour) Row() int { return b.row }

// on reports whether the pad is gated at the current tick.
func (b *patternBehaviour) on(in *Instance, pad int) bool {
	if b.done || b.row < 0 || pad < 0 || pad >= len(in.def.Pattern) {
		return false
	}
	return b.rowAge < int(in.value(patternNoteTicks)) && in.def.Pattern[pad].Get(b.row) != 0
}

func (b *patternChannelBehaviour) resolve(r *resolver, in *Instance) error {
	p, err := r.parent(in)
	if err != nil {
		return err
	}
	if p.def.Kind != recall.KindPattern {
		return &recall.ConfigurationError{Op: "resolve", Msg: fmt.Sprintf("template %q: parent %q is not a pattern", in.def.Name, p.def.Name)}
	}
	in.parent = p
	p.children = append(p.children, in)
	return b.channelBehaviour.resolve(r, in)
}

func (b *patternChannelBehaviour) run(stage Stage, t *tick, in *Instance) (bool, error) {
	if stage != StagePre || in.value(mutedPort) != 0 {
		return false, nil
	}
	pb, ok := in.parent.behaviour.(*patternBehaviour)
	if !ok || !pb.on(in.parent, in.Pad) {
		return false, nil
	}
	level := float32(in.value(levelPort))
	t.with(in.src, in.recallID.Context.ID, func(s *graph.AudioSignal) {
		vek32.AddNumber_Inplace(s.Buffer, level)
	})
	return false, nil
}

func (b *streamBehaviour) run(stage Stage, t *tick, in *Instance) (bool, error) {
	if stage != StagePre {
		return false, nil
	}
	level := float32(in.value(streamLevel))
	t.with(in.src, in.recallID.Context.ID, func(s *graph.AudioSignal) {
		vek32.AddNumber_Inplace(s.Buffer, level)
	})
	length := uint64(in.value(streamLength))
	return length > 0 && in.ticks+1 >= length, nil
}

func (b *copyBehaviour) run(stage Stage, t *tick, in *Instance) (bool, error) {
	if stage != StageInter || in.value(copyMuted) != 0 {
		return false, nil
	}
	gain := float32(in.value(copyGain))
	t.with2(in.src, in.dst, in.recallID.Context.ID, func(src, dst *graph.AudioSignal) {
		dst.MixFrom(src, gain)
	})
	return false, nil
}

// effectStage is the stage effects run at: input effects before routing,
// output effects after it.
func effectStage(in *Instance) Stage {
	if in.side == recall.Input {
		return StagePre
	}
	return StagePost
}

func (b *volumeBehaviour) run(stage Stage, t *tick, in *Instance) (bool, error) {
	if stage != effectStage(in) {
		return false, nil
	}
	gain := float32(in.value(volumePort))
	t.with(in.dst, in.recallID.Context.ID, func(s *graph.AudioSignal) { s.Scale(gain) })
	return false, nil
}

func (b *pluginBehaviour) run(stage Stage, t *tick, in *Instance) (finished bool, err error) {
	if stage != effectStage(in) {
		return false, nil
	}
	values := make([]float64, len(in.ports))
	for i := range in.ports {
		values[i] = in.value(i)
	}
	t.with(in.dst, in.recallID.Context.ID, func(s *graph.AudioSignal) {
		err = in.plugin.Process(values, s.Buffer)
		for i, v := range s.Buffer {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				s.Buffer[i] = 0
			}
		}
	})
	if err != nil {
		return false, fmt.Errorf("plugin %q: %w", in.plugin.Name(), err)
	}
	return false, nil
}
