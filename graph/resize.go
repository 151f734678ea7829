package graph

import (
	"fmt"
	"slices"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/lockreg"
)

// Resize tells which channels a resize created and which it freed.
type Resize struct {
	Added   []ObjectID
	Removed []ObjectID
}

func (r *Resize) merge(o Resize) {
	r.Added = append(r.Added, o.Added...)
	r.Removed = append(r.Removed, o.Removed...)
}

// SetPads changes the pad count of one side of an audio unit. Channels are
// allocated and freed, all rings re-linked and new channels get their
// recyclings and side templates. With synced fan-out, new output channels
// get a silent signal for every run that is live on the output side, so
// readers find a buffer for each run on every output.
func (g *Graph) SetPads(h lockreg.Holder, audio ObjectID, side recall.Side, pads int) (Resize, error) {
	if pads < 0 {
		return Resize{}, &recall.ConfigurationError{Op: "set pads", Msg: fmt.Sprintf("negative pad count %d", pads)}
	}
	a, err := g.Audio(audio)
	if err != nil {
		return Resize{}, err
	}
	defer g.Lock(h, audio)()
	return g.resizeSide(a, side, pads, a.sideAudioChannels(side)), nil
}

// SetAudioChannels changes the audio channel count of the input side, and
// of the output side too when the fan-out is synced.
func (g *Graph) SetAudioChannels(h lockreg.Holder, audio ObjectID, n int) (Resize, error) {
	if n < 0 {
		return Resize{}, &recall.ConfigurationError{Op: "set audio channels", Msg: fmt.Sprintf("negative audio channel count %d", n)}
	}
	a, err := g.Audio(audio)
	if err != nil {
		return Resize{}, err
	}
	defer g.Lock(h, audio)()
	var ret Resize
	if a.FanOut.Synced() {
		ret.merge(g.resizeSide(a, recall.Output, a.pads[recall.Output], n))
	}
	ret.merge(g.resizeSide(a, recall.Input, a.pads[recall.Input], n))
	return ret, nil
}

// SetOutputAudioChannels changes the audio channel count of the output side
// of an unsynced unit. For synced units it is the same as SetAudioChannels.
func (g *Graph) SetOutputAudioChannels(h lockreg.Holder, audio ObjectID, n int) (Resize, error) {
	a, err := g.Audio(audio)
	if err != nil {
		return Resize{}, err
	}
	if a.FanOut.Synced() {
		return g.SetAudioChannels(h, audio, n)
	}
	if n < 0 {
		return Resize{}, &recall.ConfigurationError{Op: "set output audio channels", Msg: fmt.Sprintf("negative audio channel count %d", n)}
	}
	defer g.Lock(h, audio)()
	return g.resizeSide(a, recall.Output, a.pads[recall.Output], n), nil
}

// resizeSide rebuilds the channel list of a side to pads × ac. Channels
// whose coordinates survive keep their IDs, recyclings and templates. The
// caller holds the lock of the audio.
func (g *Graph) resizeSide(a *Audio, side recall.Side, pads, ac int) Resize {
	oldAC := a.sideAudioChannels(side)
	if side == recall.Output {
		a.outputAudioChannels = ac
	} else {
		a.audioChannels = ac
	}
	old := a.channels[side]
	oldPads := a.pads[side]
	var ret Resize
	channels := make([]ObjectID, pads*ac)
	kept := make(map[ObjectID]bool)
	for p := 0; p < pads; p++ {
		for c := 0; c < ac; c++ {
			if p < oldPads && c < oldAC && len(old) > 0 {
				id := old[p*oldAC+c]
				channels[p*ac+c] = id
				kept[id] = true
				continue
			}
			ch := g.newChannel(a, side, p, c)
			channels[p*ac+c] = ch.ID
			ret.Added = append(ret.Added, ch.ID)
		}
	}
	for _, id := range old {
		if !kept[id] {
			ret.Removed = append(ret.Removed, id)
		}
	}
	a.channels[side] = channels
	a.pads[side] = pads
	g.mu.Lock()
	for p := 0; p < pads; p++ {
		for c := 0; c < ac; c++ {
			ch := g.channels[channels[p*ac+c]]
			ch.Next = channels[p*ac+(c+1)%ac]
			ch.Prev = channels[p*ac+(c+ac-1)%ac]
			ch.NextPad = channels[((p+1)%pads)*ac+c]
			ch.PrevPad = channels[((p+pads-1)%pads)*ac+c]
		}
	}
	g.mu.Unlock()
	for _, id := range ret.Removed {
		g.freeChannel(id)
	}
	for _, id := range ret.Added {
		for _, t := range a.sideTemplates[side] {
			g.attach(a, id, t, true)
		}
	}
	if side == recall.Output && a.FanOut.Synced() && len(ret.Added) > 0 {
		g.padLiveSignals(a, channels, ret.Added)
	}
	return ret
}

func (g *Graph) newChannel(a *Audio, side recall.Side, pad, ac int) *Channel {
	c := &Channel{ID: g.NewID(), Audio: a.ID, Side: side, Pad: pad, AudioChannel: ac}
	r := &Recycling{ID: g.NewID(), Channel: c.ID, template: newSignal(0, g.bufferSize)}
	c.FirstRecycling, c.LastRecycling = r.ID, r.ID
	g.mu.Lock()
	g.channels[c.ID] = c
	g.recyclings[r.ID] = r
	g.mu.Unlock()
	return c
}

func (g *Graph) freeChannel(id ObjectID) {
	g.mu.Lock()
	c, ok := g.channels[id]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.channels, id)
	delete(g.recyclings, c.FirstRecycling)
	g.mu.Unlock()
	for _, set := range c.templates {
		for _, tid := range set {
			g.freeTemplate(tid)
		}
	}
	g.locks.Unregister(Key(c.FirstRecycling))
	g.locks.Unregister(Key(id))
}

// padLiveSignals gives the added output channels a silent signal for every
// context that is live on the existing outputs, with the length of the
// existing signals.
func (g *Graph) padLiveSignals(a *Audio, channels, added []ObjectID) {
	live := map[uint64]int{}
	var order []uint64
	for _, id := range channels {
		if slices.Contains(added, id) {
			continue
		}
		c, _ := g.Channel(id)
		r, _ := g.Recycling(c.FirstRecycling)
		for _, s := range r.live {
			if _, ok := live[s.Context]; !ok {
				order = append(order, s.Context)
			}
			live[s.Context] = max(live[s.Context], len(s.Buffer))
		}
	}
	for _, id := range added {
		c, _ := g.Channel(id)
		r, _ := g.Recycling(c.FirstRecycling)
		for _, ctx := range order {
			s := newSignal(ctx, live[ctx])
			r.live = append(r.live, s)
		}
	}
}
