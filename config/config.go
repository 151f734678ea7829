// Package config loads the settings of the recall command line tools.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/vsariola/recall"
)

type (
	Config struct {
		Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
		Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
		Monitor MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
		MIDI    MIDIConfig    `mapstructure:"midi" yaml:"midi"`
	}

	AudioConfig struct {
		SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
		BufferSize int    `mapstructure:"buffer_size" yaml:"buffer_size"` // frames per tick
		Channels   int    `mapstructure:"channels" yaml:"channels"`
		Format     string `mapstructure:"format" yaml:"format"` // "float32" or "s16"
		Sink       string `mapstructure:"sink" yaml:"sink"`     // "oto" or "null"
	}

	EngineConfig struct {
		Overclock      float64 `mapstructure:"overclock" yaml:"overclock"`
		TaskQueueSize  int     `mapstructure:"task_queue_size" yaml:"task_queue_size"`
		EventQueueSize int     `mapstructure:"event_queue_size" yaml:"event_queue_size"`
	}

	MonitorConfig struct {
		Address string `mapstructure:"address" yaml:"address"` // empty disables the monitor
	}

	MIDIConfig struct {
		Input string `mapstructure:"input" yaml:"input"` // prefix of the input port name, empty for none
		Audio string `mapstructure:"audio" yaml:"audio"` // unit the notes are played on, empty for the first
		Base  int    `mapstructure:"base" yaml:"base"`   // note number of input pad 0
		Scope string `mapstructure:"scope" yaml:"scope"`
	}
)

const EnvPrefix = "RECALL"

var defaults = map[string]any{
	"audio.sample_rate":       44100,
	"audio.buffer_size":       512,
	"audio.channels":          2,
	"audio.format":            "float32",
	"audio.sink":              "oto",
	"engine.overclock":        0.05,
	"engine.task_queue_size":  1024,
	"engine.event_queue_size": 1024,
	"monitor.address":         "",
	"midi.input":              "",
	"midi.audio":              "",
	"midi.base":               36,
	"midi.scope":              "playback",
}

// New returns a viper instance with the defaults and the environment
// bindings set up: RECALL_AUDIO_SAMPLE_RATE overrides audio.sample_rate and
// so on.
func New() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration file at path, if any, on top of the
// defaults and the environment. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.buffer_size must be positive, got %d", c.Audio.BufferSize))
	}
	if c.Audio.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels must be positive, got %d", c.Audio.Channels))
	}
	if _, err := recall.ParseFormat(c.Audio.Format); err != nil {
		errs = append(errs, err)
	}
	switch c.Audio.Sink {
	case "oto", "null":
	default:
		errs = append(errs, fmt.Errorf("audio.sink must be oto or null, got %q", c.Audio.Sink))
	}
	if c.Engine.Overclock < 0 {
		errs = append(errs, fmt.Errorf("engine.overclock must not be negative, got %v", c.Engine.Overclock))
	}
	if c.MIDI.Base < 0 || c.MIDI.Base > 127 {
		errs = append(errs, fmt.Errorf("midi.base must be a note number, got %d", c.MIDI.Base))
	}
	if _, err := recall.ParseScope(c.MIDI.Scope); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &recall.ConfigurationError{Op: "config", Msg: errors.Join(errs...).Error()}
	}
	return nil
}

// Presets returns the soundcard presets of the audio section.
func (c *Config) Presets() recall.Presets {
	f, _ := recall.ParseFormat(c.Audio.Format)
	return recall.Presets{
		Channels:   c.Audio.Channels,
		SampleRate: c.Audio.SampleRate,
		BufferSize: c.Audio.BufferSize,
		Format:     f,
	}
}
