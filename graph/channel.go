package graph

import (
	"fmt"
	"slices"

	"github.com/vsariola/recall"
)

// Channel is one signal path slot of an audio unit. Channels of one pad
// form a ring through Next/Prev, and channels with the same audio channel
// index form a ring over the pads through NextPad/PrevPad. The rings are
// never null-terminated: a single channel links to itself.
type Channel struct {
	ID           ObjectID
	Audio        ObjectID
	Side         recall.Side
	Pad          int
	AudioChannel int

	Next, Prev       ObjectID
	NextPad, PrevPad ObjectID

	FirstRecycling ObjectID
	LastRecycling  ObjectID

	templates [2][]ObjectID // channel-scoped, indexed by recall.Set
}

// Templates returns the channel-scoped templates of a set.
func (c *Channel) Templates(set recall.Set) []ObjectID { return slices.Clone(c.templates[set]) }

// Nth walks Next n times from start. As Next is a ring, it never runs past
// the end of a pad; walking the pad's audio channel count returns to start.
// n must not be negative.
func (g *Graph) Nth(start ObjectID, n int) (ObjectID, error) {
	return g.walk(start, n, func(c *Channel) ObjectID { return c.Next })
}

// NthPad walks NextPad n times from start.
func (g *Graph) NthPad(start ObjectID, n int) (ObjectID, error) {
	return g.walk(start, n, func(c *Channel) ObjectID { return c.NextPad })
}

func (g *Graph) walk(start ObjectID, n int, next func(*Channel) ObjectID) (ObjectID, error) {
	if n < 0 {
		return 0, &recall.ConfigurationError{Op: "walk", Msg: fmt.Sprintf("negative step count %d", n)}
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	id := start
	for i := 0; ; i++ {
		c, ok := g.channels[id]
		if !ok {
			return 0, ErrUnknownObject
		}
		if i == n {
			return c.ID, nil
		}
		id = next(c)
	}
}
