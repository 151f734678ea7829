package graph

import (
	"fmt"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/lockreg"
)

// Build creates a graph from a setup. Units are created in order; if one
// fails, the graph is returned as is with the error.
func Build(locks *lockreg.Registry, bufferSize int, s recall.Setup) (*Graph, error) {
	g := New(locks, bufferSize)
	h := g.locks.NewHolder()
	for _, u := range s.Units {
		if _, err := g.AddAudio(h, u); err != nil {
			return g, fmt.Errorf("could not build unit %q: %w", u.Name, err)
		}
	}
	return g, nil
}

// Snapshot writes the topology table and the template sets of the graph
// into a setup. Side templates are written once per side; channel
// templates that were reconfigured away from their side template are
// written as overrides.
func (g *Graph) Snapshot(h lockreg.Holder) recall.Setup {
	var ret recall.Setup
	for _, id := range g.Audios() {
		a, err := g.Audio(id)
		if err != nil {
			continue
		}
		ret.Units = append(ret.Units, g.snapshotAudio(h, a))
	}
	return ret
}

func (g *Graph) snapshotAudio(h lockreg.Holder, a *Audio) recall.UnitSetup {
	defer g.Lock(h, a.ID)()
	u := recall.UnitSetup{
		Name:          a.Name,
		AudioChannels: a.audioChannels,
		OutputPads:    a.pads[recall.Output],
		InputPads:     a.pads[recall.Input],
		Abilities:     a.Abilities,
		FanOut:        a.FanOut,
		Output:        a.SideTemplates(recall.Output),
		Input:         a.SideTemplates(recall.Input),
	}
	if !a.FanOut.Synced() {
		u.OutputAudioChannels = a.outputAudioChannels
	}
	for _, set := range a.templates {
		for _, tid := range set {
			if def, err := g.Def(h, tid); err == nil {
				u.Audio = append(u.Audio, def)
			}
		}
	}
	for _, side := range []recall.Side{recall.Output, recall.Input} {
		sideDefs := a.sideTemplates[side]
		for _, cid := range a.channels[side] {
			c, err := g.Channel(cid)
			if err != nil {
				continue
			}
			for _, set := range c.templates {
				for _, tid := range set {
					n, err := g.Template(tid)
					if err != nil {
						continue
					}
					def, err := g.Def(h, tid)
					if err != nil {
						continue
					}
					ct := recall.ChannelTemplate{Side: side, Pad: c.Pad, AudioChannel: c.AudioChannel, Template: def}
					if n.FromSide {
						if sameAsSide(def, sideDefs) {
							continue
						}
						ct.Override = true
					}
					u.Channels = append(u.Channels, ct)
				}
			}
		}
	}
	return u
}

func sameAsSide(def recall.Template, side []recall.Template) bool {
	for _, s := range side {
		if s.Name != def.Name {
			continue
		}
		if len(s.Ports) != len(def.Ports) {
			return false
		}
		for k, v := range s.Ports {
			if w, ok := def.Ports[k]; !ok || w != v {
				return false
			}
		}
		return true
	}
	return false
}
