package recall

import (
	"fmt"
	"strings"
)

type (
	// Behaviour flags modify how a recall instance runs.
	Behaviour uint16

	// FanOut tells how the output and input sides of an audio unit are
	// coupled. With FanOutSync, both sides share the audio channel count and
	// a change to one is a change to both. Without it, the sides are
	// independent (FanOutAsync), and input channels are routed to output
	// channels modulo the output dimensions.
	FanOut uint8

	// Side is the direction of a channel within its audio unit.
	Side int
)

const (
	// BehaviourInitialRun makes an instance prime its ports from the current
	// template configuration on its first tick.
	BehaviourInitialRun Behaviour = 1 << iota
	// BehaviourBypass short-circuits computation; tick bookkeeping still
	// advances.
	BehaviourBypass
	// BehaviourPersistent instances never finish on their own; only a
	// cancel ends them.
	BehaviourPersistent
	// BehaviourPatternMode makes pattern instances loop instead of finishing
	// at the end of the pattern.
	BehaviourPatternMode
)

const (
	FanOutSync FanOut = 1 << iota
	FanOutAsync
)

const (
	Output Side = iota
	Input
)

var behaviourNames = []string{"initial-run", "bypass", "persistent", "pattern-mode"}

func (b Behaviour) Has(f Behaviour) bool { return b&f == f }

func (b Behaviour) String() string {
	var parts []string
	for i, n := range behaviourNames {
		if b&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}

func (b Behaviour) MarshalYAML() (interface{}, error) {
	ret := []string{}
	for i, n := range behaviourNames {
		if b&(1<<i) != 0 {
			ret = append(ret, n)
		}
	}
	return ret, nil
}

func (b *Behaviour) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var names []string
	if err := unmarshal(&names); err != nil {
		return err
	}
	*b = 0
names:
	for _, n := range names {
		for i, bn := range behaviourNames {
			if strings.EqualFold(n, bn) {
				*b |= 1 << i
				continue names
			}
		}
		return fmt.Errorf("unknown behaviour %q", n)
	}
	return nil
}

// Synced reports whether the audio channel counts of the two sides are
// coupled. When both flags are set, sync wins.
func (f FanOut) Synced() bool { return f&FanOutSync != 0 }

func (f FanOut) String() string {
	if f.Synced() {
		return "sync"
	}
	return "async"
}

func (f FanOut) MarshalYAML() (interface{}, error) {
	switch f {
	case FanOutSync:
		return "sync", nil
	case FanOutAsync:
		return "async", nil
	case FanOutSync | FanOutAsync:
		return "sync+async", nil
	}
	return "", nil
}

func (f *FanOut) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "sync":
		*f = FanOutSync
	case "async":
		*f = FanOutAsync
	case "sync+async":
		*f = FanOutSync | FanOutAsync
	case "":
		*f = 0
	default:
		return fmt.Errorf("unknown fan-out mode %q", s)
	}
	return nil
}

func (s Side) String() string {
	if s == Input {
		return "input"
	}
	return "output"
}

func (s Side) MarshalYAML() (interface{}, error) { return s.String(), nil }

func (s *Side) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	switch str {
	case "output", "":
		*s = Output
	case "input":
		*s = Input
	default:
		return fmt.Errorf("unknown side %q", str)
	}
	return nil
}
