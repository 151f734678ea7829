package recall_test

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/vsariola/recall"
)

const drumSetup = `
units:
  - name: drums
    audiochannels: 2
    outputpads: 1
    inputpads: 4
    abilities: [playback, sequencer]
    fanout: async
    audio:
      - name: seq
        kind: pattern
        abilities: [sequencer]
        behaviour: [pattern-mode]
        ports: {bpm: 140}
        pattern: [[1, 0, 1, 0], [0, 1]]
    input:
      - name: sample
        kind: stream
        shape: channel
        abilities: [playback, sequencer]
        ports: {level: 0.5}
    channels:
      - side: input
        pad: 1
        audiochannel: 0
        template:
          name: boost
          kind: volume
          shape: channel
          abilities: [playback]
          ports: {volume: 2}
`

func TestReadSetup(t *testing.T) {
	s, err := recall.ReadSetup(strings.NewReader(drumSetup))
	if err != nil {
		t.Fatalf("ReadSetup error: %v", err)
	}
	if len(s.Units) != 1 {
		t.Fatalf("got %d units, want 1", len(s.Units))
	}
	u := s.Units[0]
	if u.Abilities != recall.MaskOf(recall.ScopePlayback, recall.ScopeSequencer) {
		t.Fatalf("abilities: got %v", u.Abilities)
	}
	if u.FanOut != recall.FanOutAsync || u.FanOut.Synced() {
		t.Fatalf("fan-out: got %v", u.FanOut)
	}
	seq := u.Audio[0]
	if !seq.Behaviour.Has(recall.BehaviourPatternMode) || seq.Shape != recall.AudioScoped {
		t.Fatalf("pattern template read wrong: %+v", seq)
	}
	if seq.Pattern[0].Get(2) != 1 || seq.Pattern[1].Get(3) != 0 || seq.Pattern[1].Get(-1) != 0 {
		t.Fatalf("pattern steps read wrong: %v", seq.Pattern)
	}
	if c := u.Channels[0]; c.Side != recall.Input || c.Pad != 1 || c.Template.Kind != recall.KindVolume {
		t.Fatalf("channel template read wrong: %+v", c)
	}
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestSetupRoundTrip(t *testing.T) {
	s, err := recall.ReadSetup(strings.NewReader(drumSetup))
	if err != nil {
		t.Fatalf("ReadSetup error: %v", err)
	}
	var buf bytes.Buffer
	if err := s.Write(&buf); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	s2, err := recall.ReadSetup(&buf)
	if err != nil {
		t.Fatalf("reading written setup: %v\n%s", err, buf.String())
	}
	if !reflect.DeepEqual(s, s2) {
		t.Fatalf("setup changed in round trip:\n%+v\n%+v", s, s2)
	}
}

func TestReadSetupRejectsUnknownFields(t *testing.T) {
	_, err := recall.ReadSetup(strings.NewReader("units:\n  - name: x\n    colour: red\n"))
	if err == nil {
		t.Fatalf("unknown field should be an error")
	}
}

func TestValidate(t *testing.T) {
	stream := recall.Template{Name: "s", Kind: recall.KindStream, Shape: recall.ChannelScoped, Abilities: recall.AllScopes}
	cases := []struct {
		name string
		unit recall.UnitSetup
	}{
		{"negative pads", recall.UnitSetup{Name: "u", InputPads: -1}},
		{"synced with differing outputs", recall.UnitSetup{Name: "u", AudioChannels: 2, OutputAudioChannels: 1, FanOut: recall.FanOutSync}},
		{"channel template in audio set", recall.UnitSetup{Name: "u", Audio: []recall.Template{stream}}},
		{"unknown port", recall.UnitSetup{Name: "u", Input: []recall.Template{{Name: "s", Kind: recall.KindStream, Shape: recall.ChannelScoped, Abilities: recall.AllScopes, Ports: map[string]float64{"speed": 1}}}}},
		{"orphan pattern-channel", recall.UnitSetup{Name: "u", Input: []recall.Template{{Name: "g", Kind: recall.KindPatternChannel, Shape: recall.ChannelScoped, Abilities: recall.AllScopes}}}},
		{"no abilities", recall.UnitSetup{Name: "u", Input: []recall.Template{{Name: "s", Kind: recall.KindStream, Shape: recall.ChannelScoped}}}},
		{"channel template past the last pad", recall.UnitSetup{Name: "u", AudioChannels: 1, InputPads: 2, Channels: []recall.ChannelTemplate{{Side: recall.Input, Pad: 2, Template: stream}}}},
		{"channel template past the last audio channel", recall.UnitSetup{Name: "u", AudioChannels: 2, OutputPads: 1, Channels: []recall.ChannelTemplate{{Side: recall.Output, AudioChannel: 2, Template: stream}}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.unit.Validate()
			var cfgErr *recall.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("got %v, want a ConfigurationError", err)
			}
		})
	}
}

func TestOutputChannels(t *testing.T) {
	u := recall.UnitSetup{AudioChannels: 2, OutputAudioChannels: 1}
	if got := u.OutputChannels(); got != 1 {
		t.Fatalf("async: got %d, want 1", got)
	}
	u.FanOut = recall.FanOutSync | recall.FanOutAsync
	if got := u.OutputChannels(); got != 2 {
		t.Fatalf("sync wins: got %d, want 2", got)
	}
}
