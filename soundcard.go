package recall

import (
	"slices"
	"sync"
)

// MemorySoundcard is a Soundcard that keeps the mixed buffer in memory.
// Every unlock after a mix hands the buffer to the Record callback, if
// set, which lets offline renders and tests collect the output.
type MemorySoundcard struct {
	presets Presets
	mu      sync.Mutex
	buffer  []float32
	Record  func(buffer []float32)
}

func NewMemorySoundcard(p Presets) *MemorySoundcard {
	return &MemorySoundcard{presets: p, buffer: make([]float32, p.BufferSize*p.Channels)}
}

func (c *MemorySoundcard) Presets() Presets { return c.presets }

// Buffer returns the buffer; callers hold the buffer lock.
func (c *MemorySoundcard) Buffer() []float32 { return c.buffer }

func (c *MemorySoundcard) LockBuffer() { c.mu.Lock() }

func (c *MemorySoundcard) UnlockBuffer() {
	if c.Record != nil {
		c.Record(c.buffer)
	}
	c.mu.Unlock()
}

// Snapshot returns a copy of the buffer.
func (c *MemorySoundcard) Snapshot() []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.buffer)
}
