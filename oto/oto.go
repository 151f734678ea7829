// Package oto plays the output of an engine on the default audio device.
package oto

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/vsariola/recall"
)

// Sink is a recall.Soundcard backed by an oto player. The player pulls
// audio from Read on its own goroutine; whenever Read runs out of encoded
// samples it calls the tick function once, which is expected to mix one
// buffer into the sink (typically Engine.Tick with the sink attached).
type Sink struct {
	presets recall.Presets
	tick    func()

	mu      sync.Mutex // guards buffer
	buffer  []float32
	pending []byte
	read    int

	ctx    *oto.Context
	player *oto.Player
}

// latency of the device buffer, in buffers of the engine
const deviceBuffers = 2

// NewSink opens the audio device with the presets. oto allows only one
// context per process, so only one sink can be open at a time.
func NewSink(p recall.Presets, tick func()) (*Sink, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := newSink(p, tick)
	format := oto.FormatFloat32LE
	if p.Format == recall.FormatSigned16 {
		format = oto.FormatSignedInt16LE
	}
	op := &oto.NewContextOptions{
		SampleRate:   p.SampleRate,
		ChannelCount: p.Channels,
		Format:       format,
		BufferSize:   time.Duration(deviceBuffers*p.BufferSize) * time.Second / time.Duration(p.SampleRate),
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	s.ctx = ctx
	s.player = ctx.NewPlayer(s)
	return s, nil
}

func newSink(p recall.Presets, tick func()) *Sink {
	return &Sink{
		presets: p,
		tick:    tick,
		buffer:  make([]float32, p.BufferSize*p.Channels),
		pending: make([]byte, 0, p.BufferSize*p.Channels*bytesPerSample(p.Format)),
	}
}

func (s *Sink) Presets() recall.Presets { return s.presets }

func (s *Sink) Buffer() []float32 { return s.buffer }

func (s *Sink) LockBuffer() { s.mu.Lock() }

func (s *Sink) UnlockBuffer() { s.mu.Unlock() }

// Read implements io.Reader for the oto player.
func (s *Sink) Read(p []byte) (n int, err error) {
	for n < len(p) {
		if s.read >= len(s.pending) {
			s.tick()
			s.mu.Lock()
			s.pending = encode(s.pending[:0], s.buffer, s.presets.Format)
			s.mu.Unlock()
			s.read = 0
			if len(s.pending) == 0 {
				break
			}
		}
		c := copy(p[n:], s.pending[s.read:])
		s.read += c
		n += c
	}
	return n, nil
}

// Play starts pulling audio.
func (s *Sink) Play() {
	if s.player != nil {
		s.player.Play()
	}
}

// Err returns the error of the player, if it stopped on one.
func (s *Sink) Err() error {
	if s.player == nil {
		return nil
	}
	return s.player.Err()
}

// Close disposes of resources
func (s *Sink) Close() error {
	if s.player == nil {
		return nil
	}
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
