package graph

import (
	"slices"

	"github.com/vsariola/recall"
)

type (
	// Audio is one track or instrument: two ordered lists of channels (one
	// per side) and the audio-scoped templates. Channel lists are pad-major,
	// the channel at (pad, audioChannel) is at index pad*audioChannels +
	// audioChannel.
	//
	// The counts are only changed through the resize methods of Graph,
	// which keep the rings of the channels consistent.
	Audio struct {
		ID        ObjectID
		Name      string
		Abilities recall.ScopeMask
		FanOut    recall.FanOut

		audioChannels       int // input side, and output side when synced
		outputAudioChannels int
		channels            [2][]ObjectID // indexed by recall.Side
		pads                [2]int
		templates           [2][]ObjectID // audio-scoped, indexed by recall.Set
		sideTemplates       [2][]recall.Template
		graph               *Graph
	}

	// Topology is a snapshot of the dimensions and channel lists of an audio
	// unit, taken once per duplication pass.
	Topology struct {
		Audio               ObjectID
		FanOut              recall.FanOut
		AudioChannels       int
		OutputAudioChannels int
		OutputPads          int
		InputPads           int
		Outputs             []ObjectID
		Inputs              []ObjectID
	}
)

func (a *Audio) AudioChannels() int { return a.audioChannels }

func (a *Audio) OutputAudioChannels() int { return a.outputAudioChannels }

func (a *Audio) Pads(side recall.Side) int { return a.pads[side] }

// Channels returns the channel IDs of a side in pad-major order.
func (a *Audio) Channels(side recall.Side) []ObjectID { return slices.Clone(a.channels[side]) }

// First returns the first channel of a side, or 0 if the side is empty.
func (a *Audio) First(side recall.Side) ObjectID {
	if len(a.channels[side]) == 0 {
		return 0
	}
	return a.channels[side][0]
}

// Templates returns the audio-scoped templates of a set.
func (a *Audio) Templates(set recall.Set) []ObjectID { return slices.Clone(a.templates[set]) }

// SideTemplates returns the templates instantiated on every new channel of
// a side.
func (a *Audio) SideTemplates(side recall.Side) []recall.Template {
	ret := make([]recall.Template, len(a.sideTemplates[side]))
	for i := range a.sideTemplates[side] {
		ret[i] = a.sideTemplates[side][i].Copy()
	}
	return ret
}

func (a *Audio) sideAudioChannels(side recall.Side) int {
	if side == recall.Output {
		return a.outputAudioChannels
	}
	return a.audioChannels
}

func (a *Audio) channelAt(side recall.Side, pad, ch int) *Channel {
	ac := a.sideAudioChannels(side)
	if pad < 0 || ch < 0 || ch >= ac || pad >= a.pads[side] {
		return nil
	}
	c, _ := a.graph.Channel(a.channels[side][pad*ac+ch])
	return c
}

// ChannelAt returns the ID of the channel at (pad, audio channel) of a
// side, or 0 if out of range.
func (a *Audio) ChannelAt(side recall.Side, pad, ch int) ObjectID {
	if c := a.channelAt(side, pad, ch); c != nil {
		return c.ID
	}
	return 0
}

// Topology takes a snapshot of the dimensions of the unit.
func (a *Audio) Topology() Topology {
	return Topology{
		Audio:               a.ID,
		FanOut:              a.FanOut,
		AudioChannels:       a.audioChannels,
		OutputAudioChannels: a.outputAudioChannels,
		OutputPads:          a.pads[recall.Output],
		InputPads:           a.pads[recall.Input],
		Outputs:             slices.Clone(a.channels[recall.Output]),
		Inputs:              slices.Clone(a.channels[recall.Input]),
	}
}

// Route returns the output channel that the input channel at (pad, ch)
// feeds. Input pads and audio channels wrap around the output dimensions;
// 0 is returned if the unit has no outputs.
func (t Topology) Route(pad, ch int) ObjectID {
	if t.OutputPads == 0 || t.OutputAudioChannels == 0 {
		return 0
	}
	return t.Outputs[(pad%t.OutputPads)*t.OutputAudioChannels+ch%t.OutputAudioChannels]
}

// Input returns the input channel at (pad, ch), or 0.
func (t Topology) Input(pad, ch int) ObjectID {
	if pad < 0 || pad >= t.InputPads || ch < 0 || ch >= t.AudioChannels {
		return 0
	}
	return t.Inputs[pad*t.AudioChannels+ch]
}
