package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/graph"
)

type (
	// State is the lifecycle state of an instance.
	State int

	// Stage is one of the three barriers of init and of every tick.
	Stage int

	// Instance is a runnable copy of a template, bound to one RecallID.
	//
	// The engine changes the state of an instance between ticks; during a
	// tick only the worker of the instance's scope touches it.
	Instance struct {
		ID       graph.ObjectID
		Template graph.ObjectID
		Audio    graph.ObjectID
		// Source is the channel the instance reads, Destination the one it
		// writes. Both are the instance's own channel except for routing
		// templates, and 0 for audio-scoped instances.
		Source, Destination graph.ObjectID
		Pad, AudioChannel   int

		side      recall.Side
		recallID  *RecallID
		def       recall.Template
		ports     []*Port
		behaviour behaviour
		parent    *Instance
		children  []*Instance
		src, dst  *graph.Recycling
		plugin    PluginDescriptor

		// overridden names the ports set by the run request, which
		// reconfiguration of the template leaves alone.
		overridden []string

		mu        sync.Mutex // guards state and history, read by observers
		state     State
		history   []State
		initStage Stage
		cancelReq bool
		primed    bool
		failed    bool
		ticks     uint64
	}
)

const (
	StateDuplicated State = iota
	StateResolved
	StateInitialized
	StateRunning
	StateDone
	StateCancelled
	StateCleanedUp
)

const (
	StagePre Stage = iota
	StageInter
	StagePost
	numStages
)

var stateNames = [...]string{"duplicated", "resolved", "initialized", "running", "done", "cancelled", "cleaned-up"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether the instance will not run again.
func (s State) Terminal() bool { return s >= StateDone }

func (s Stage) String() string {
	switch s {
	case StagePre:
		return "pre"
	case StageInter:
		return "inter"
	case StagePost:
		return "post"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// allowed lists the states each state may move to.
var allowed = [...][]State{
	StateDuplicated:  {StateResolved, StateCancelled, StateCleanedUp},
	StateResolved:    {StateInitialized, StateCancelled, StateCleanedUp},
	StateInitialized: {StateRunning, StateDone, StateCancelled},
	StateRunning:     {StateDone, StateCancelled},
	StateDone:        {StateCleanedUp},
	StateCancelled:   {StateCleanedUp},
	StateCleanedUp:   nil,
}

func (in *Instance) transition(to State) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !slices.Contains(allowed[in.state], to) {
		return fmt.Errorf("instance %d (%s): %v -> %v: %w", in.ID, in.def.Name, in.state, to, ErrIllegalTransition)
	}
	in.state = to
	in.history = append(in.history, to)
	return nil
}

func (in *Instance) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// History returns the states the instance went through, starting with
// StateDuplicated.
func (in *Instance) History() []State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return slices.Clone(in.history)
}

func (in *Instance) RecallID() *RecallID { return in.recallID }

func (in *Instance) Name() string { return in.def.Name }

func (in *Instance) Kind() recall.Kind { return in.def.Kind }

// Def returns a copy of the template definition the instance was
// duplicated from.
func (in *Instance) Def() recall.Template { return in.def.Copy() }

func (in *Instance) Parent() *Instance { return in.parent }

func (in *Instance) Ticks() uint64 { return in.ticks }

// Bypassed reports whether the instance skips its computation, either
// because the template says so or because it failed.
func (in *Instance) Bypassed() bool {
	return in.failed || in.def.Behaviour.Has(recall.BehaviourBypass)
}

// Port returns the port with the given name, or nil.
func (in *Instance) Port(name string) *Port {
	for _, p := range in.ports {
		if p.spec.Name == name {
			return p
		}
	}
	return nil
}

func (in *Instance) Ports() []*Port { return slices.Clone(in.ports) }

func (in *Instance) value(i int) float64 { return in.ports[i].Get() }

func (in *Instance) audioScoped() bool { return in.def.Shape == recall.AudioScoped }

// resolve wires the instance to its collaborators after the whole set of
// the run has been duplicated.
func (in *Instance) resolve(r *resolver) error {
	if in.State() != StateDuplicated {
		return fmt.Errorf("resolve instance %d: %w", in.ID, ErrIllegalTransition)
	}
	if err := in.behaviour.resolve(r, in); err != nil {
		return err
	}
	return in.transition(StateResolved)
}

// init runs one init stage. The stages must be run in order; the last one
// moves the instance to StateInitialized.
func (in *Instance) init(stage Stage, t *tick) error {
	if in.State() != StateResolved || stage != in.initStage {
		return fmt.Errorf("init instance %d at %v: %w", in.ID, stage, ErrIllegalTransition)
	}
	if err := in.behaviour.init(stage, t, in); err != nil {
		return err
	}
	in.initStage++
	if stage == StagePost {
		return in.transition(StateInitialized)
	}
	return nil
}

// run runs one tick stage. It reports whether the instance finished its
// work; persistent instances never finish on their own.
func (in *Instance) run(stage Stage, t *tick) (finished bool, err error) {
	switch in.State() {
	case StateInitialized:
		if stage != StagePre {
			return false, nil
		}
		if err := in.transition(StateRunning); err != nil {
			return false, err
		}
	case StateRunning:
	default:
		return false, nil
	}
	if stage == StagePre && !in.primed {
		in.primed = true
		if in.def.Behaviour.Has(recall.BehaviourInitialRun) {
			in.prime(t)
		}
	}
	if !in.Bypassed() {
		finished, err = in.behaviour.run(stage, t, in)
	}
	if stage == StagePost {
		in.ticks++
	}
	if err != nil {
		return false, err
	}
	return finished && !in.def.Behaviour.Has(recall.BehaviourPersistent), nil
}

// prime re-reads the port values of the template, so reconfiguration done
// between duplication and the first tick is picked up. Ports overridden by
// the run request keep their values.
func (in *Instance) prime(t *tick) {
	def, err := t.graph.Def(t.holder, in.Template)
	if err != nil {
		return
	}
	for _, p := range in.ports {
		if slices.Contains(in.overridden, p.spec.Name) {
			continue
		}
		if v, ok := def.Ports[p.spec.Name]; ok {
			p.Set(v)
		}
	}
}
