package recall

import "math"

type (
	// PortType tells how the float64 value of a port is interpreted.
	PortType int

	// PortSpec documents one named control value of a recall. A template
	// stores only the values that differ from Default; instances receive a
	// snapshot of every port.
	PortSpec struct {
		Name    string
		Type    PortType
		Default float64
		Min     float64
		Max     float64
	}
)

const (
	PortFloat PortType = iota
	PortInt
	PortBool
)

// Clamp limits v to the range of the port and rounds it for integer and
// boolean ports.
func (p PortSpec) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return p.Default
	}
	switch p.Type {
	case PortInt:
		v = math.Round(v)
	case PortBool:
		if v != 0 {
			return 1
		}
		return 0
	}
	if p.Max > p.Min {
		v = min(max(v, p.Min), p.Max)
	}
	return v
}

// KindPorts documents the ports that each built-in kind of recall takes.
// Plugin recalls get their ports from the plugin descriptor instead.
var KindPorts = map[Kind][]PortSpec{
	KindPattern: {
		{Name: "bpm", Type: PortFloat, Default: 120, Min: 1, Max: 999},
		{Name: "rows-per-beat", Type: PortInt, Default: 4, Min: 1, Max: 32},
		{Name: "length", Type: PortInt, Default: 16, Min: 1, Max: 256},
		{Name: "note-ticks", Type: PortInt, Default: 4, Min: 1, Max: 1 << 16},
	},
	KindPatternChannel: {
		{Name: "level", Type: PortFloat, Default: 0.5, Min: 0, Max: 1},
		{Name: "muted", Type: PortBool},
	},
	KindStream: {
		{Name: "length", Type: PortInt, Default: 0, Min: 0, Max: math.MaxInt32},
		{Name: "level", Type: PortFloat, Default: 1, Min: 0, Max: 1},
	},
	KindCopy: {
		{Name: "gain", Type: PortFloat, Default: 1, Min: 0, Max: 4},
		{Name: "muted", Type: PortBool},
	},
	KindVolume: {
		{Name: "volume", Type: PortFloat, Default: 1, Min: 0, Max: 4},
	},
	KindPlugin: {},
}
