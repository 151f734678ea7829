package recall

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type (
	// Setup is the persisted form of a channel graph: the topology table of
	// every audio unit and the template sets attached to them. A graph
	// rebuilt from a Setup duplicates into instances with the same default
	// port values as the graph it was taken from.
	Setup struct {
		Units []UnitSetup
	}

	// UnitSetup describes one audio unit. Input and Output templates are
	// attached to every channel of that side, Channels to single channels.
	UnitSetup struct {
		Name                string
		AudioChannels       int
		OutputAudioChannels int `yaml:",omitempty"`
		OutputPads          int
		InputPads           int
		Abilities           ScopeMask `yaml:",flow"`
		FanOut              FanOut    `yaml:",omitempty"`

		Audio    []Template        `yaml:",omitempty"`
		Output   []Template        `yaml:",omitempty"`
		Input    []Template        `yaml:",omitempty"`
		Channels []ChannelTemplate `yaml:",omitempty"`
	}

	// ChannelTemplate attaches a template to the channel at (Side, Pad,
	// AudioChannel). With Override, it replaces the side template of the
	// same name on that channel instead.
	ChannelTemplate struct {
		Side         Side `yaml:",omitempty"`
		Pad          int
		AudioChannel int
		Override     bool `yaml:",omitempty"`
		Template     Template
	}
)

// ReadSetup parses a yaml encoded setup.
func ReadSetup(r io.Reader) (Setup, error) {
	var s Setup
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return Setup{}, fmt.Errorf("could not parse setup: %w", err)
	}
	return s, nil
}

func (s Setup) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("could not encode setup: %w", err)
	}
	return enc.Close()
}

// OutputChannels returns the audio channel count of the output side.
func (u *UnitSetup) OutputChannels() int {
	if u.FanOut.Synced() || u.OutputAudioChannels == 0 {
		return u.AudioChannels
	}
	return u.OutputAudioChannels
}

func (u *UnitSetup) Validate() error {
	switch {
	case u.AudioChannels < 0 || u.OutputAudioChannels < 0:
		return &ConfigurationError{Op: "unit " + u.Name, Msg: "negative audio channel count"}
	case u.OutputPads < 0 || u.InputPads < 0:
		return &ConfigurationError{Op: "unit " + u.Name, Msg: "negative pad count"}
	case u.FanOut.Synced() && u.OutputAudioChannels != 0 && u.OutputAudioChannels != u.AudioChannels:
		return &ConfigurationError{Op: "unit " + u.Name, Msg: "synced fan-out cannot have differing output audio channels"}
	}
	for _, t := range u.Audio {
		if err := t.Validate(); err != nil {
			return err
		}
		if t.Shape != AudioScoped {
			return &ConfigurationError{Op: "unit " + u.Name, Msg: fmt.Sprintf("template %q in the audio set is not audio-scoped", t.Name)}
		}
	}
	for _, set := range [][]Template{u.Output, u.Input} {
		for _, t := range set {
			if err := t.Validate(); err != nil {
				return err
			}
		}
	}
	for _, c := range u.Channels {
		if err := c.Template.Validate(); err != nil {
			return err
		}
		pads, ac := u.InputPads, u.AudioChannels
		if c.Side == Output {
			pads, ac = u.OutputPads, u.OutputChannels()
		}
		if c.Pad < 0 || c.Pad >= pads || c.AudioChannel < 0 || c.AudioChannel >= ac {
			return &ConfigurationError{Op: "unit " + u.Name, Msg: fmt.Sprintf("no %v channel at pad %d, audio channel %d", c.Side, c.Pad, c.AudioChannel)}
		}
	}
	return nil
}
