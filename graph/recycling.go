package graph

import (
	"slices"

	"github.com/viterin/vek/vek32"
)

type (
	// Recycling is the buffer queue of a channel. It holds one silent
	// template signal and a live signal for every run (recycling context)
	// that currently reads or writes the channel.
	//
	// The methods do not lock; callers hold the lock of the recycling
	// (Graph.Lock with its ID) while calling them or touching the buffers.
	Recycling struct {
		ID       ObjectID
		Channel  ObjectID
		template *AudioSignal
		live     []*AudioSignal
	}

	// AudioSignal is one buffer of a recycling, belonging to one context.
	AudioSignal struct {
		Context uint64
		Buffer  []float32
		users   int
		tmp     []float32
	}
)

func newSignal(ctx uint64, frames int) *AudioSignal {
	return &AudioSignal{Context: ctx, Buffer: make([]float32, frames)}
}

// Template returns the silent template signal.
func (r *Recycling) Template() *AudioSignal { return r.template }

// AddSignal returns the live signal of ctx, creating a silent one with the
// length of the template if there is none. Each call adds a user; the
// signal stays until all users release it or the context is dropped.
func (r *Recycling) AddSignal(ctx uint64) *AudioSignal {
	s := r.Signal(ctx)
	if s == nil {
		s = newSignal(ctx, len(r.template.Buffer))
		r.live = append(r.live, s)
	}
	s.users++
	return s
}

// Signal returns the live signal of ctx, or nil.
func (r *Recycling) Signal(ctx uint64) *AudioSignal {
	for _, s := range r.live {
		if s.Context == ctx {
			return s
		}
	}
	return nil
}

// Release drops one user of the signal of ctx and removes the signal when
// nobody uses it anymore. It reports whether the signal was removed.
func (r *Recycling) Release(ctx uint64) bool {
	i := slices.IndexFunc(r.live, func(s *AudioSignal) bool { return s.Context == ctx })
	if i < 0 {
		return false
	}
	if r.live[i].users--; r.live[i].users > 0 {
		return false
	}
	r.live = slices.Delete(r.live, i, i+1)
	return true
}

// Drop removes the signal of ctx regardless of its users.
func (r *Recycling) Drop(ctx uint64) bool {
	n := len(r.live)
	r.live = slices.DeleteFunc(r.live, func(s *AudioSignal) bool { return s.Context == ctx })
	return len(r.live) != n
}

// Live returns the live signals in creation order.
func (r *Recycling) Live() []*AudioSignal { return slices.Clone(r.live) }

func (r *Recycling) Len() int { return len(r.live) }

// Clear silences the signal.
func (s *AudioSignal) Clear() { clear(s.Buffer) }

// Fill sets every frame of the signal to v.
func (s *AudioSignal) Fill(v float32) {
	for i := range s.Buffer {
		s.Buffer[i] = v
	}
}

// MixFrom adds src scaled by gain to the signal.
func (s *AudioSignal) MixFrom(src *AudioSignal, gain float32) {
	n := min(len(s.Buffer), len(src.Buffer))
	if gain == 1 {
		vek32.Add_Inplace(s.Buffer[:n], src.Buffer[:n])
		return
	}
	if cap(s.tmp) < n {
		s.tmp = make([]float32, n)
	}
	s.tmp = vek32.MulNumber_Into(s.tmp, src.Buffer[:n], gain)
	vek32.Add_Inplace(s.Buffer[:n], s.tmp)
}

// Scale multiplies every frame of the signal by gain.
func (s *AudioSignal) Scale(gain float32) {
	if gain == 1 || len(s.Buffer) == 0 {
		return
	}
	vek32.MulNumber_Inplace(s.Buffer, gain)
}

// Level returns the mean absolute level of the signal.
func (s *AudioSignal) Level() float32 {
	if len(s.Buffer) == 0 {
		return 0
	}
	return vek32.Mean(vek32.Abs(s.Buffer))
}
