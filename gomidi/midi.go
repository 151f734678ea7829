// Package gomidi plays notes on an engine from a MIDI input port.
package gomidi

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/engine"
	"github.com/vsariola/recall/graph"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

type (
	// Queue is where the input sends its tasks; *engine.Engine is one.
	Queue interface {
		Enqueue(t engine.Task) error
	}

	// Input maps note-on messages to StartNote tasks and note-off messages
	// to cancellations of the matching note. Key Base plays input pad 0 of
	// the audio unit, Base+1 pad 1 and so on.
	Input struct {
		Audio graph.ObjectID
		Scope recall.Scope
		Base  uint8
		Pads  int

		queue Queue
		log   *slog.Logger

		mu    sync.Mutex
		notes map[noteKey][]chan *engine.RecallID
		in    drivers.In
		stop  func()
	}

	noteKey struct {
		channel, key uint8
	}
)

var ErrNoDevice = errors.New("no MIDI input found")

func NewInput(q Queue, audio graph.ObjectID, pads int, scope recall.Scope, base uint8, log *slog.Logger) *Input {
	if log == nil {
		log = slog.Default()
	}
	return &Input{
		Audio: audio,
		Scope: scope,
		Base:  base,
		Pads:  pads,
		queue: q,
		log:   log,
		notes: make(map[noteKey][]chan *engine.RecallID),
	}
}

// HandleMessage handles one MIDI message. It has the signature of the
// receiver of midi.ListenTo and does not block.
func (i *Input) HandleMessage(msg midi.Message, timestampms int32) {
	var channel, key, velocity uint8
	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		pad := int(key) - int(i.Base)
		if pad < 0 || pad >= i.Pads {
			return
		}
		started := make(chan *engine.RecallID, 1)
		err := i.queue.Enqueue(engine.StartNoteTask{Audio: i.Audio, Pad: pad, Scope: i.Scope, Started: started})
		if err != nil {
			i.log.Warn("note dropped", "key", key, "err", err)
			return
		}
		i.mu.Lock()
		k := noteKey{channel, key}
		i.notes[k] = append(i.notes[k], started)
		i.mu.Unlock()
	case msg.GetNoteEnd(&channel, &key):
		i.mu.Lock()
		k := noteKey{channel, key}
		pending := i.notes[k]
		if len(pending) == 0 {
			i.mu.Unlock()
			return
		}
		started := pending[0]
		if i.notes[k] = pending[1:]; len(i.notes[k]) == 0 {
			delete(i.notes, k)
		}
		i.mu.Unlock()
		// the start task was queued before this one, so it has run
		err := i.queue.Enqueue(engine.TaskFunc(func(tx *engine.Txn) error {
			select {
			case rid := <-started:
				tx.CancelContext(rid)
			default:
			}
			return nil
		}))
		if err != nil {
			i.log.Warn("note off dropped", "key", key, "err", err)
		}
	}
}

// Held returns the number of notes that are on.
func (i *Input) Held() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, p := range i.notes {
		n += len(p)
	}
	return n
}

// Listen opens the port, if needed, and starts handling its messages,
// closing the previously listened port.
func (i *Input) Listen(port drivers.In) error {
	i.Close()
	if !port.IsOpen() {
		if err := port.Open(); err != nil {
			return fmt.Errorf("opening MIDI input failed: %w", err)
		}
	}
	stop, err := midi.ListenTo(port, i.HandleMessage)
	if err != nil {
		port.Close()
		return fmt.Errorf("listening to MIDI input failed: %w", err)
	}
	i.mu.Lock()
	i.in, i.stop = port, stop
	i.mu.Unlock()
	return nil
}

// Close stops listening and closes the port.
func (i *Input) Close() {
	i.mu.Lock()
	in, stop := i.in, i.stop
	i.in, i.stop = nil, nil
	i.mu.Unlock()
	if stop != nil {
		stop()
	}
	if in != nil && in.IsOpen() {
		in.Close()
	}
}

// FindPort returns the first input port of the driver whose name starts
// with prefix.
func FindPort(d drivers.Driver, prefix string) (drivers.In, error) {
	if d == nil {
		return nil, ErrNoDevice
	}
	ins, err := d.Ins()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI inputs failed: %w", err)
	}
	for _, in := range ins {
		if strings.HasPrefix(in.String(), prefix) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("%w starting with %q", ErrNoDevice, prefix)
}
