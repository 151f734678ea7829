package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/vsariola/recall"
	"github.com/vsariola/recall/cmd"
	"github.com/vsariola/recall/engine"
	"github.com/vsariola/recall/gomidi"
	"github.com/vsariola/recall/graph"
	"github.com/vsariola/recall/monitor"
	"github.com/vsariola/recall/oto"
)

var (
	playScope    string
	playDuration time.Duration
	playSink     string
	playMIDI     string
)

var playCmd = &cobra.Command{
	Use:   "play <setup.yml>",
	Short: "Play a setup on the default audio device",
	Long: `Start a run of the given scope on every audio unit of the setup and play
the mix until all runs complete, the duration elapses or the command is
interrupted. With a MIDI input, notes are played on the configured unit
and the command runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		scope, err := recall.ParseScope(playScope)
		if err != nil {
			return err
		}
		if playSink == "" {
			playSink = cfg.Audio.Sink
		}
		if playMIDI == "" {
			playMIDI = cfg.MIDI.Input
		}
		s, err := loadSetup(args[0])
		if err != nil {
			return err
		}
		e, err := newEngine(s)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if playDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, playDuration)
			defer cancel()
		}
		go logEvents(ctx, e)

		if cfg.Monitor.Address != "" {
			m, err := monitor.Serve(cfg.Monitor.Address, e, slog.Default())
			if err != nil {
				return err
			}
			defer m.Close()
		}

		if playMIDI != "" {
			in, closeDriver, err := listenMIDI(e, playMIDI)
			if err != nil {
				return err
			}
			defer closeDriver()
			defer in.Close()
		}

		switch playSink {
		case "oto":
			sink, err := oto.NewSink(e.Presets(), e.Tick)
			if err != nil {
				return err
			}
			defer sink.Close()
			e.Attach(sink)
			sink.Play()
		case "null":
			e.Attach(recall.NewMemorySoundcard(e.Presets()))
			go e.Run(ctx)
		default:
			return fmt.Errorf("unknown sink %q", playSink)
		}

		n, err := startRuns(e, scope)
		if err != nil {
			return err
		}
		slog.Info("playing", "setup", args[0], "scope", scope, "runs", n, "sink", playSink)
		return waitRuns(ctx, e, playMIDI == "")
	},
}

func init() {
	playCmd.Flags().StringVarP(&playScope, "scope", "s", "playback", "scope of the runs: playback, sequencer, notation, wave or midi")
	playCmd.Flags().DurationVarP(&playDuration, "duration", "d", 0, "stop after this long; 0 plays until the runs complete")
	playCmd.Flags().StringVar(&playSink, "sink", "", "oto or null (overrides config)")
	playCmd.Flags().StringVar(&playMIDI, "midi", "", "prefix of the MIDI input port name (overrides config)")
}

// waitRuns blocks until ctx is done or, if untilIdle, until the engine has
// no live runs left.
func waitRuns(ctx context.Context, e *engine.Engine, untilIdle bool) error {
	t := time.NewTicker(e.Presets().TickPeriod(0) * 4)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if untilIdle && e.Stats().ActiveContexts == 0 {
				return nil
			}
		}
	}
}

func listenMIDI(e *engine.Engine, prefix string) (*gomidi.Input, func(), error) {
	audio, err := midiAudio(e.Graph())
	if err != nil {
		return nil, nil, err
	}
	scope, err := recall.ParseScope(cfg.MIDI.Scope)
	if err != nil {
		return nil, nil, err
	}
	driver, err := cmd.MIDIDriver()
	if err != nil {
		return nil, nil, err
	}
	port, err := gomidi.FindPort(driver, prefix)
	if err != nil {
		driver.Close()
		return nil, nil, err
	}
	in := gomidi.NewInput(e, audio.ID, audio.Pads(recall.Input), scope, uint8(cfg.MIDI.Base), slog.Default())
	if err := in.Listen(port); err != nil {
		driver.Close()
		return nil, nil, err
	}
	slog.Info("listening to MIDI", "port", port.String(), "audio", audio.Name)
	return in, func() { driver.Close() }, nil
}

// midiAudio returns the unit named in the config, or the first unit.
func midiAudio(g *graph.Graph) (*graph.Audio, error) {
	for _, id := range g.Audios() {
		a, err := g.Audio(id)
		if err != nil {
			return nil, err
		}
		if cfg.MIDI.Audio == "" || a.Name == cfg.MIDI.Audio {
			return a, nil
		}
	}
	return nil, fmt.Errorf("no audio unit %q for MIDI input", cfg.MIDI.Audio)
}
