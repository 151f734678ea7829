package recall

import (
	"fmt"
	"time"
)

type (
	// Soundcard is the contract between the engine and its sink. The sink
	// calls the engine once per tick from its own thread; during the tick
	// the engine mixes into Buffer while holding the buffer lock.
	Soundcard interface {
		Presets() Presets
		Buffer() []float32
		LockBuffer()
		UnlockBuffer()
	}

	// Presets describe the interleaved buffer of a soundcard.
	Presets struct {
		Channels   int
		SampleRate int
		BufferSize int // frames per tick
		Format     Format
	}

	Format int
)

const (
	FormatFloat32 Format = iota
	FormatSigned16
)

func (f Format) String() string {
	if f == FormatSigned16 {
		return "s16"
	}
	return "f32"
}

func ParseFormat(s string) (Format, error) {
	switch s {
	case "f32", "float32", "":
		return FormatFloat32, nil
	case "s16", "int16":
		return FormatSigned16, nil
	}
	return 0, fmt.Errorf("unknown sample format %q", s)
}

// TickPeriod returns the time between two ticks, shortened by the
// over-clock margin so that processing runs slightly ahead of the device.
func (p Presets) TickPeriod(overclock float64) time.Duration {
	if p.SampleRate <= 0 || p.BufferSize <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) * float64(p.BufferSize) / float64(p.SampleRate) / (1 + max(overclock, 0)))
}

func (p Presets) Validate() error {
	if p.Channels <= 0 || p.SampleRate <= 0 || p.BufferSize <= 0 {
		return &ConfigurationError{Op: "presets", Msg: fmt.Sprintf("invalid presets %+v", p)}
	}
	return nil
}
