package engine

import (
	"github.com/viterin/vek/vek32"
	"github.com/vsariola/recall"
)

type (
	// PluginDescriptor is an external processor that plugin recalls run.
	// Process gets the port values in the order of Ports and the signal of
	// the instance's channel, which it modifies in place. A failing plugin
	// is bypassed for the rest of its run; the run itself continues.
	PluginDescriptor interface {
		Name() string
		Ports() []recall.PortSpec
		Process(ports []float64, buffer []float32) error
	}

	// Plugin is a PluginDescriptor built from a function.
	Plugin struct {
		ID    string
		Specs []recall.PortSpec
		Func  func(ports []float64, buffer []float32) error
	}
)

func (p *Plugin) Name() string              { return p.ID }
func (p *Plugin) Ports() []recall.PortSpec { return p.Specs }

func (p *Plugin) Process(ports []float64, buffer []float32) error {
	if p.Func == nil {
		return nil
	}
	return p.Func(ports, buffer)
}

// BuiltinPlugins returns the plugins every engine of the command line tools
// is created with.
func BuiltinPlugins() []PluginDescriptor {
	return []PluginDescriptor{
		&Plugin{
			ID:    "gain",
			Specs: []recall.PortSpec{{Name: "gain", Type: recall.PortFloat, Default: 1, Min: 0, Max: 16}},
			Func: func(ports []float64, buffer []float32) error {
				vek32.MulNumber_Inplace(buffer, float32(ports[0]))
				return nil
			},
		},
		&Plugin{
			ID:    "clip",
			Specs: []recall.PortSpec{{Name: "limit", Type: recall.PortFloat, Default: 1, Min: 0, Max: 1}},
			Func: func(ports []float64, buffer []float32) error {
				l := float32(ports[0])
				vek32.MinimumNumber_Inplace(buffer, l)
				vek32.MaximumNumber_Inplace(buffer, -l)
				return nil
			},
		},
	}
}
