package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vsariola/recall"
)

var (
	renderOutput string
	renderScope  string
	renderTicks  int
)

var renderCmd = &cobra.Command{
	Use:   "render <setup.yml>",
	Short: "Render a setup to a .wav or .raw file",
	Long: `Run the setup offline, as fast as possible, and write the mix to a file.
The file type follows the extension of --output; .raw files hold the bare
samples in the configured format. Rendering stops when all runs complete or
after --ticks buffers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		scope, err := recall.ParseScope(renderScope)
		if err != nil {
			return err
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
		card := recall.NewMemorySoundcard(e.Presets())
		var frames []float32
		card.Record = func(buffer []float32) {
			frames = append(frames, buffer...)
		}
		e.Attach(card)
		if _, err := startRuns(e, scope); err != nil {
			return err
		}
		ticks := 0
		for ; ticks < renderTicks; ticks++ {
			e.Tick()
			if e.Stats().ActiveContexts == 0 {
				ticks++
				break
			}
		}
		var contents []byte
		switch strings.ToLower(filepath.Ext(renderOutput)) {
		case ".raw":
			contents, err = recall.Raw(e.Presets(), frames)
		default:
			contents, err = recall.Wav(e.Presets(), frames)
		}
		if err != nil {
			return fmt.Errorf("could not encode %v: %w", renderOutput, err)
		}
		if dir := filepath.Dir(renderOutput); dir != "" {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return fmt.Errorf("could not create output directory %v: %w", dir, err)
			}
		}
		if err := os.WriteFile(renderOutput, contents, 0644); err != nil {
			return fmt.Errorf("could not write file %v: %w", renderOutput, err)
		}
		slog.Info("rendered", "file", renderOutput, "ticks", ticks, "frames", len(frames)/e.Presets().Channels)
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "out.wav", "output file, .wav or .raw")
	renderCmd.Flags().StringVarP(&renderScope, "scope", "s", "playback", "scope of the runs")
	renderCmd.Flags().IntVarP(&renderTicks, "ticks", "t", 1<<16, "maximum number of buffers to render")
}
