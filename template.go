package recall

import (
	"fmt"
	"maps"
	"slices"
)

type (
	// Kind is the closed set of recall shapes the engine knows how to run.
	Kind string

	// Shape tells if a recall is attached to a whole audio unit or to a
	// single channel of it.
	Shape int

	// Set tells which template set of a container a template belongs to.
	// The play set holds live-performance templates and the recall set holds
	// persistent/automation templates. Both are duplicated on run start.
	Set int

	// Pattern is one pad's row of steps; non-zero steps trigger the pad.
	Pattern []byte

	// Template is the immutable configuration of a recall. Templates are
	// never run; the engine duplicates them into instances, one for every
	// concurrent run.
	Template struct {
		Name      string
		Kind      Kind
		Shape     Shape     `yaml:",omitempty"`
		Set       Set       `yaml:",omitempty"`
		Abilities ScopeMask `yaml:",flow"`
		Behaviour Behaviour `yaml:",flow,omitempty"`

		// Parent names the audio-scoped template whose instance a
		// channel-scoped instance binds to during resolution.
		Parent string `yaml:",omitempty"`

		// Plugin names the plugin descriptor of a KindPlugin template.
		Plugin string `yaml:",omitempty"`

		// Ports holds the port values that differ from the port defaults.
		Ports map[string]float64 `yaml:",flow,omitempty"`

		// Pattern holds the steps of a KindPattern template, one Pattern per
		// input pad.
		Pattern []Pattern `yaml:",flow,omitempty"`
	}
)

const (
	KindPattern        Kind = "pattern"
	KindPatternChannel Kind = "pattern-channel"
	KindStream         Kind = "stream"
	KindCopy           Kind = "copy"
	KindVolume         Kind = "volume"
	KindPlugin         Kind = "plugin"
)

const (
	AudioScoped Shape = iota
	ChannelScoped
)

const (
	PlaySet Set = iota
	RecallSet
)

func (s Shape) String() string {
	if s == ChannelScoped {
		return "channel"
	}
	return "audio"
}

func (s Set) String() string {
	if s == RecallSet {
		return "recall"
	}
	return "play"
}

// Producer reports if instances of the kind feed signal into a run on their
// own. A run completes when all of its producers are done.
func (k Kind) Producer() bool {
	return k == KindPattern || k == KindStream
}

// Routes reports if instances of the kind read one channel and write
// another.
func (k Kind) Routes() bool { return k == KindCopy }

// Copy makes a deep copy of a template.
func (t *Template) Copy() Template {
	ret := *t
	ret.Ports = maps.Clone(t.Ports)
	if t.Pattern != nil {
		ret.Pattern = make([]Pattern, len(t.Pattern))
		for i, p := range t.Pattern {
			ret.Pattern[i] = slices.Clone(p)
		}
	}
	return ret
}

// Get returns the step at index, or 0 if the index is out of range.
func (p Pattern) Get(index int) byte {
	if index < 0 || index >= len(p) {
		return 0
	}
	return p[index]
}

// PortSpecs returns the port documentation of the template. For plugins,
// the caller looks up the descriptor instead.
func (t *Template) PortSpecs() []PortSpec {
	return KindPorts[t.Kind]
}

// PortValue returns the configured value of a port, falling back to the
// default of the spec.
func (t *Template) PortValue(spec PortSpec) float64 {
	if v, ok := t.Ports[spec.Name]; ok {
		return spec.Clamp(v)
	}
	return spec.Default
}

// Validate checks that the template is something the engine can duplicate.
func (t *Template) Validate() error {
	if t.Name == "" {
		return &ConfigurationError{Op: "template", Msg: "template has no name"}
	}
	ports, ok := KindPorts[t.Kind]
	if !ok {
		return &ConfigurationError{Op: "template", Msg: fmt.Sprintf("template %q: unknown kind %q", t.Name, t.Kind)}
	}
	switch {
	case t.Kind == KindPattern && t.Shape != AudioScoped:
		return &ConfigurationError{Op: "template", Msg: fmt.Sprintf("template %q: pattern must be audio-scoped", t.Name)}
	case t.Kind != KindPattern && t.Shape != ChannelScoped:
		return &ConfigurationError{Op: "template", Msg: fmt.Sprintf("template %q: %s must be channel-scoped", t.Name, t.Kind)}
	case t.Kind == KindPatternChannel && t.Parent == "":
		return &ConfigurationError{Op: "template", Msg: fmt.Sprintf("template %q: pattern-channel needs a parent", t.Name)}
	case t.Kind == KindPlugin && t.Plugin == "":
		return &ConfigurationError{Op: "template", Msg: fmt.Sprintf("template %q: plugin name missing", t.Name)}
	case t.Abilities == 0:
		return &ConfigurationError{Op: "template", Msg: fmt.Sprintf("template %q: no abilities", t.Name)}
	}
	if t.Kind == KindPlugin {
		return nil
	}
	for name := range t.Ports {
		if !slices.ContainsFunc(ports, func(p PortSpec) bool { return p.Name == name }) {
			return &ConfigurationError{Op: "template", Msg: fmt.Sprintf("template %q: unknown port %q", t.Name, name)}
		}
	}
	return nil
}

func (s Shape) MarshalYAML() (interface{}, error) { return s.String(), nil }

func (s *Shape) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	switch str {
	case "audio", "":
		*s = AudioScoped
	case "channel":
		*s = ChannelScoped
	default:
		return fmt.Errorf("unknown shape %q", str)
	}
	return nil
}

func (s Set) MarshalYAML() (interface{}, error) { return s.String(), nil }

func (s *Set) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	switch str {
	case "play", "":
		*s = PlaySet
	case "recall":
		*s = RecallSet
	default:
		return fmt.Errorf("unknown template set %q", str)
	}
	return nil
}
