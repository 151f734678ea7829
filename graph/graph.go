// Package graph holds the channel graph of the engine: audio units, their
// channels, the recyclings (buffer queues) of the channels and the recall
// templates attached to them.
//
// All objects live in one arena and refer to each other by ObjectID. IDs
// increase in creation order and double as keys of the lock registry, so
// ascending ID order is the global lock order.
//
// Methods that mutate the graph take the lockreg.Holder of the caller: a
// caller that already holds an audio unit's lock can call into the graph
// without deadlocking, as the locks are recursive per holder.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/lockreg"
)

type (
	ObjectID uint64

	Graph struct {
		locks      *lockreg.Registry
		bufferSize int
		lastID     atomic.Uint64

		mu         sync.RWMutex // guards the tables below
		audios     map[ObjectID]*Audio
		audioOrder []ObjectID
		channels   map[ObjectID]*Channel
		recyclings map[ObjectID]*Recycling
		templates  map[ObjectID]*TemplateNode
	}
)

var ErrUnknownObject = errors.New("unknown graph object")

// New creates an empty graph whose recyclings hold buffers of bufferSize
// frames.
func New(locks *lockreg.Registry, bufferSize int) *Graph {
	if locks == nil {
		locks = lockreg.New()
	}
	return &Graph{
		locks:      locks,
		bufferSize: bufferSize,
		audios:     make(map[ObjectID]*Audio),
		channels:   make(map[ObjectID]*Channel),
		recyclings: make(map[ObjectID]*Recycling),
		templates:  make(map[ObjectID]*TemplateNode),
	}
}

func (g *Graph) Locks() *lockreg.Registry { return g.locks }

func (g *Graph) BufferSize() int { return g.bufferSize }

// NewID allocates the next object ID and registers its mutex. The engine
// uses it for recall instances, so that they share the lock order of the
// graph objects.
func (g *Graph) NewID() ObjectID {
	id := ObjectID(g.lastID.Add(1))
	g.locks.Register(Key(id))
	return id
}

func Key(id ObjectID) lockreg.Key { return lockreg.Key(id) }

// Lock locks the objects for h in the global order and returns the unlock
// function.
func (g *Graph) Lock(h lockreg.Holder, ids ...ObjectID) (unlock func()) {
	keys := make([]lockreg.Key, len(ids))
	for i, id := range ids {
		keys[i] = Key(id)
	}
	return g.locks.LockAll(h, keys...)
}

func (g *Graph) Audio(id ObjectID) (*Audio, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if a, ok := g.audios[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("audio %d: %w", id, ErrUnknownObject)
}

func (g *Graph) Channel(id ObjectID) (*Channel, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if c, ok := g.channels[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("channel %d: %w", id, ErrUnknownObject)
}

func (g *Graph) Recycling(id ObjectID) (*Recycling, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if r, ok := g.recyclings[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("recycling %d: %w", id, ErrUnknownObject)
}

func (g *Graph) Template(id ObjectID) (*TemplateNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if t, ok := g.templates[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("template %d: %w", id, ErrUnknownObject)
}

// Audios returns the IDs of all audio units in creation order.
func (g *Graph) Audios() []ObjectID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.audioOrder)
}

// AddAudio creates an audio unit with its channels, recyclings and
// templates. On error nothing is added.
func (g *Graph) AddAudio(h lockreg.Holder, u recall.UnitSetup) (ObjectID, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}
	a := &Audio{
		ID:                  g.NewID(),
		graph:               g,
		Name:                u.Name,
		Abilities:           u.Abilities,
		FanOut:              u.FanOut,
		audioChannels:       u.AudioChannels,
		outputAudioChannels: u.OutputChannels(),
	}
	for _, t := range u.Output {
		a.sideTemplates[recall.Output] = append(a.sideTemplates[recall.Output], t.Copy())
	}
	for _, t := range u.Input {
		a.sideTemplates[recall.Input] = append(a.sideTemplates[recall.Input], t.Copy())
	}
	defer g.Lock(h, a.ID)()
	g.mu.Lock()
	g.audios[a.ID] = a
	g.audioOrder = append(g.audioOrder, a.ID)
	g.mu.Unlock()
	g.resizeSide(a, recall.Output, u.OutputPads, a.outputAudioChannels)
	g.resizeSide(a, recall.Input, u.InputPads, a.audioChannels)
	for _, t := range u.Audio {
		g.attach(a, 0, t, false)
	}
	for _, ct := range u.Channels {
		c := a.channelAt(ct.Side, ct.Pad, ct.AudioChannel)
		if ct.Override {
			if n := g.findTemplate(c.templates[ct.Template.Set], ct.Template.Name); n != nil {
				n.def = ct.Template.Copy()
				continue
			}
		}
		g.attach(a, c.ID, ct.Template, false)
	}
	return a.ID, nil
}

// RemoveAudio frees an audio unit and everything it owns. Any runs on it
// must be cancelled before.
func (g *Graph) RemoveAudio(h lockreg.Holder, id ObjectID) error {
	a, err := g.Audio(id)
	if err != nil {
		return err
	}
	unlock := g.Lock(h, id)
	g.resizeSide(a, recall.Output, 0, 0)
	g.resizeSide(a, recall.Input, 0, 0)
	for _, set := range a.templates {
		for _, tid := range set {
			g.freeTemplate(tid)
		}
	}
	a.templates = [2][]ObjectID{}
	unlock()
	g.mu.Lock()
	delete(g.audios, id)
	g.audioOrder = slices.DeleteFunc(g.audioOrder, func(a ObjectID) bool { return a == id })
	g.mu.Unlock()
	g.locks.Unregister(Key(id))
	return nil
}
