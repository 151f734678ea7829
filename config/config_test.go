package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/config"
)

func TestDefaults(t *testing.T) {
	c, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := recall.Presets{Channels: 2, SampleRate: 44100, BufferSize: 512, Format: recall.FormatFloat32}
	if got := c.Presets(); got != want {
		t.Fatalf("default presets %+v, want %+v", got, want)
	}
	if c.Engine.Overclock != 0.05 || c.Audio.Sink != "oto" || c.Monitor.Address != "" {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.yml")
	data := []byte("audio:\n  sample_rate: 48000\n  format: s16\n  sink: \"null\"\nmonitor:\n  address: localhost:31337\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("RECALL_AUDIO_BUFFER_SIZE", "256")
	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := recall.Presets{Channels: 2, SampleRate: 48000, BufferSize: 256, Format: recall.FormatSigned16}
	if got := c.Presets(); got != want {
		t.Fatalf("presets %+v, want %+v", got, want)
	}
	if c.Audio.Sink != "null" || c.Monitor.Address != "localhost:31337" {
		t.Fatalf("file values not read: %+v", c)
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(c *config.Config)
	}{
		{"zero rate", func(c *config.Config) { c.Audio.SampleRate = 0 }},
		{"negative buffer", func(c *config.Config) { c.Audio.BufferSize = -1 }},
		{"bad format", func(c *config.Config) { c.Audio.Format = "f64" }},
		{"bad sink", func(c *config.Config) { c.Audio.Sink = "alsa" }},
		{"negative overclock", func(c *config.Config) { c.Engine.Overclock = -0.5 }},
		{"bad scope", func(c *config.Config) { c.MIDI.Scope = "everything" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, err := config.Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tc.modify(c)
			var cfg *recall.ConfigurationError
			if err := c.Validate(); !errors.As(err, &cfg) {
				t.Fatalf("Validate = %v, want a configuration error", err)
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatalf("Load of a missing file succeeded")
	}
}
