package oto

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/vsariola/recall"
)

func TestReadTicksPerBuffer(t *testing.T) {
	p := recall.Presets{Channels: 2, SampleRate: 44100, BufferSize: 4, Format: recall.FormatFloat32}
	ticks := 0
	var s *Sink
	s = newSink(p, func() {
		ticks++
		s.LockBuffer()
		for i := range s.Buffer() {
			s.Buffer()[i] = float32(ticks)
		}
		s.UnlockBuffer()
	})
	out := make([]byte, 4*8*2+4*3) // two whole buffers and three samples
	n, err := s.Read(out)
	if err != nil || n != len(out) {
		t.Fatalf("Read = %d, %v; want %d, nil", n, err, len(out))
	}
	if ticks != 3 {
		t.Fatalf("Read ticked %d times, want 3", ticks)
	}
	for i, want := range []float32{1, 2, 3} {
		got := math.Float32frombits(binary.LittleEndian.Uint32(out[i*32:]))
		if got != want {
			t.Fatalf("sample of buffer %d is %v, want %v", i, got, want)
		}
	}
	// the rest of the third buffer is served without a tick
	if _, err := s.Read(make([]byte, 4*5)); err != nil || ticks != 3 {
		t.Fatalf("second Read ticked %d times, err %v", ticks, err)
	}
}

func TestEncodeSigned16(t *testing.T) {
	got := encode(nil, []float32{0, 1, -2, 0.5}, recall.FormatSigned16)
	want := []int16{0, math.MaxInt16, -math.MaxInt16, math.MaxInt16 / 2}
	if len(got) != 2*len(want) {
		t.Fatalf("encoded %d bytes, want %d", len(got), 2*len(want))
	}
	for i, w := range want {
		if v := int16(binary.LittleEndian.Uint16(got[2*i:])); v != w {
			t.Fatalf("sample %d encoded as %d, want %d", i, v, w)
		}
	}
}
