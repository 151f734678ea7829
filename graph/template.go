package graph

import (
	"fmt"
	"slices"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/lockreg"
)

// TemplateNode is a recall template attached to an audio unit (Channel ==
// 0) or to one of its channels. The definition is read and reconfigured
// under the node's lock only; runs snapshot it when they are duplicated.
type TemplateNode struct {
	ID      ObjectID
	Audio   ObjectID
	Channel ObjectID
	// FromSide is true if the node was instantiated from the side
	// templates of the audio.
	FromSide bool

	def recall.Template
}

// Def returns a copy of the definition of the template.
func (g *Graph) Def(h lockreg.Holder, id ObjectID) (recall.Template, error) {
	n, err := g.Template(id)
	if err != nil {
		return recall.Template{}, err
	}
	defer g.Lock(h, id)()
	return n.def.Copy(), nil
}

// SetTemplatePort reconfigures a port value of a template. Running
// instances keep their snapshot; only runs duplicated afterwards, or
// instances priming their ports on the first tick, see the new value.
func (g *Graph) SetTemplatePort(h lockreg.Holder, id ObjectID, port string, value float64) error {
	n, err := g.Template(id)
	if err != nil {
		return err
	}
	defer g.Lock(h, id)()
	if n.def.Kind != recall.KindPlugin {
		specs := n.def.PortSpecs()
		i := slices.IndexFunc(specs, func(p recall.PortSpec) bool { return p.Name == port })
		if i < 0 {
			return &recall.ConfigurationError{Op: "set template port", Msg: fmt.Sprintf("template %q has no port %q", n.def.Name, port)}
		}
		value = specs[i].Clamp(value)
	}
	ports := make(map[string]float64, len(n.def.Ports)+1)
	for k, v := range n.def.Ports {
		ports[k] = v
	}
	ports[port] = value
	n.def.Ports = ports
	return nil
}

// AttachTemplate attaches a template to an audio unit (channel == 0) or to
// one of its channels.
func (g *Graph) AttachTemplate(h lockreg.Holder, audio, channel ObjectID, t recall.Template) (ObjectID, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	a, err := g.Audio(audio)
	if err != nil {
		return 0, err
	}
	if (channel == 0) != (t.Shape == recall.AudioScoped) {
		return 0, &recall.ConfigurationError{Op: "attach template", Msg: fmt.Sprintf("%s-scoped template %q on the wrong container", t.Shape, t.Name)}
	}
	if channel != 0 {
		c, err := g.Channel(channel)
		if err != nil {
			return 0, err
		}
		if c.Audio != audio {
			return 0, &recall.ConfigurationError{Op: "attach template", Msg: fmt.Sprintf("channel %d is not a channel of audio %d", channel, audio)}
		}
	}
	defer g.Lock(h, audio)()
	return g.attach(a, channel, t, false), nil
}

// AttachSideTemplate adds a template to every channel of a side, including
// channels created by later resizes.
func (g *Graph) AttachSideTemplate(h lockreg.Holder, audio ObjectID, side recall.Side, t recall.Template) ([]ObjectID, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Shape != recall.ChannelScoped {
		return nil, &recall.ConfigurationError{Op: "attach side template", Msg: fmt.Sprintf("template %q is not channel-scoped", t.Name)}
	}
	a, err := g.Audio(audio)
	if err != nil {
		return nil, err
	}
	defer g.Lock(h, audio)()
	a.sideTemplates[side] = append(a.sideTemplates[side], t.Copy())
	var ret []ObjectID
	for _, c := range a.channels[side] {
		ret = append(ret, g.attach(a, c, t, true))
	}
	return ret, nil
}

// DetachTemplate removes a template from its container. Instances that were
// duplicated from it keep running until they are cancelled.
func (g *Graph) DetachTemplate(h lockreg.Holder, id ObjectID) error {
	n, err := g.Template(id)
	if err != nil {
		return err
	}
	a, err := g.Audio(n.Audio)
	if err != nil {
		return err
	}
	defer g.Lock(h, n.Audio)()
	remove := func(s []ObjectID) []ObjectID {
		return slices.DeleteFunc(s, func(t ObjectID) bool { return t == id })
	}
	if n.Channel == 0 {
		a.templates[n.def.Set] = remove(a.templates[n.def.Set])
	} else if c, err := g.Channel(n.Channel); err == nil {
		c.templates[n.def.Set] = remove(c.templates[n.def.Set])
	}
	g.freeTemplate(id)
	return nil
}

func (g *Graph) attach(a *Audio, channel ObjectID, t recall.Template, fromSide bool) ObjectID {
	n := &TemplateNode{ID: g.NewID(), Audio: a.ID, Channel: channel, FromSide: fromSide, def: t.Copy()}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.templates[n.ID] = n
	if channel == 0 {
		a.templates[t.Set] = append(a.templates[t.Set], n.ID)
	} else {
		c := g.channels[channel]
		c.templates[t.Set] = append(c.templates[t.Set], n.ID)
	}
	return n.ID
}

func (g *Graph) freeTemplate(id ObjectID) {
	g.mu.Lock()
	delete(g.templates, id)
	g.mu.Unlock()
	g.locks.Unregister(Key(id))
}

func (g *Graph) findTemplate(ids []ObjectID, name string) *TemplateNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range ids {
		if n := g.templates[id]; n != nil && n.def.Name == name {
			return n
		}
	}
	return nil
}

// FindTemplate returns the audio-scoped template of an audio unit with the
// given name, searching both sets.
func (g *Graph) FindTemplate(audio ObjectID, name string) (ObjectID, bool) {
	a, err := g.Audio(audio)
	if err != nil {
		return 0, false
	}
	for _, set := range a.templates {
		if n := g.findTemplate(set, name); n != nil {
			return n.ID, true
		}
	}
	return 0, false
}

// FindChannelTemplate returns the template of a channel with the given
// name, searching both sets.
func (g *Graph) FindChannelTemplate(channel ObjectID, name string) (ObjectID, bool) {
	c, err := g.Channel(channel)
	if err != nil {
		return 0, false
	}
	for _, set := range c.templates {
		if n := g.findTemplate(set, name); n != nil {
			return n.ID, true
		}
	}
	return 0, false
}
