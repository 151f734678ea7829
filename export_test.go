package recall_test

import (
	"encoding/binary"
	"testing"

	"github.com/vsariola/recall"
)

func TestWav(t *testing.T) {
	frames := []float32{0, 0.5, -0.5, 1, 2, -2}
	for _, c := range []struct {
		format recall.Format
		header int
		sample int
	}{
		{recall.FormatFloat32, 58, 4},
		{recall.FormatSigned16, 44, 2},
	} {
		p := recall.Presets{Channels: 2, SampleRate: 48000, BufferSize: 3, Format: c.format}
		wav, err := recall.Wav(p, frames)
		if err != nil {
			t.Fatalf("%v: Wav error: %v", c.format, err)
		}
		if want := c.header + c.sample*len(frames); len(wav) != want {
			t.Fatalf("%v: got %d bytes, want %d", c.format, len(wav), want)
		}
		if string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
			t.Fatalf("%v: bad magic", c.format)
		}
		if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 48000 {
			t.Fatalf("%v: sample rate %d", c.format, rate)
		}
		if size := binary.LittleEndian.Uint32(wav[4:8]); int(size) != len(wav)-8 {
			t.Fatalf("%v: riff size %d, file %d", c.format, size, len(wav))
		}
	}
}

func TestToSigned16Clamps(t *testing.T) {
	got := recall.ToSigned16([]float32{0, 1, -1, 3, -3}, nil)
	want := []int16{0, 32767, -32767, 32767, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRawFollowsFormat(t *testing.T) {
	p := recall.Presets{Channels: 1, SampleRate: 8000, BufferSize: 2, Format: recall.FormatSigned16}
	raw, err := recall.Raw(p, []float32{0.5, -0.5})
	if err != nil {
		t.Fatalf("Raw error: %v", err)
	}
	if len(raw) != 4 {
		t.Fatalf("got %d bytes, want 4", len(raw))
	}
}
