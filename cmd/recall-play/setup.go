package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/engine"
	"github.com/vsariola/recall/graph"
	"github.com/vsariola/recall/lockreg"
)

func loadSetup(path string) (recall.Setup, error) {
	f, err := os.Open(path)
	if err != nil {
		return recall.Setup{}, fmt.Errorf("could not open setup: %w", err)
	}
	defer f.Close()
	s, err := recall.ReadSetup(f)
	if err != nil {
		return recall.Setup{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// newEngine builds the channel graph of the setup and an engine over it,
// with the presets and queue sizes of the config.
func newEngine(s recall.Setup) (*engine.Engine, error) {
	p := cfg.Presets()
	g, err := graph.Build(lockreg.New(), p.BufferSize, s)
	if err != nil {
		return nil, err
	}
	return engine.New(g, engine.Options{
		Presets:        p,
		Overclock:      cfg.Engine.Overclock,
		Logger:         slog.Default(),
		Plugins:        engine.BuiltinPlugins(),
		TaskQueueSize:  cfg.Engine.TaskQueueSize,
		EventQueueSize: cfg.Engine.EventQueueSize,
	})
}

// startRuns starts a run of the scope on every unit that supports it.
func startRuns(e *engine.Engine, scope recall.Scope) (started int, err error) {
	rids, err := e.InitScope(scope)
	return len(rids), err
}

// logEvents logs the lifecycle events of the engine until ctx is done.
func logEvents(ctx context.Context, e *engine.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.Events():
			attrs := []any{"audio", ev.Audio, "scope", ev.Scope, "recall", ev.RecallID, "tick", ev.Tick}
			if ev.Instance != 0 {
				attrs = append(attrs, "instance", ev.Instance)
			}
			if ev.Err != nil {
				slog.Warn(ev.Kind.String(), append(attrs, "err", ev.Err)...)
				continue
			}
			if verboseLevel >= 2 {
				slog.Debug(ev.Kind.String(), attrs...)
			}
		}
	}
}
