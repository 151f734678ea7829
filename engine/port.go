package engine

import (
	"sync"

	"github.com/vsariola/recall"
)

// Port is the runtime value of one template port, owned by one instance.
// Values are clamped to the port's spec on every write.
type Port struct {
	spec  recall.PortSpec
	mu    sync.Mutex
	value float64
}

func newPort(spec recall.PortSpec, value float64) *Port {
	return &Port{spec: spec, value: spec.Clamp(value)}
}

func (p *Port) Name() string { return p.spec.Name }

func (p *Port) Spec() recall.PortSpec { return p.spec }

func (p *Port) Get() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Set clamps v and stores it, returning the stored value.
func (p *Port) Set(v float64) float64 {
	v = p.spec.Clamp(v)
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
	return v
}

// portIndex returns the index of the named port in specs, or -1.
func portIndex(specs []recall.PortSpec, name string) int {
	for i, s := range specs {
		if s.Name == name {
			return i
		}
	}
	return -1
}
