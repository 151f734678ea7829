package engine

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/graph"
)

// batch is the work of one scope worker during a tick.
type batch struct {
	w         *worker
	t         *tick
	instances []*Instance
	results   []result
}

// Tick advances the engine by one buffer. It runs the queued tasks,
// applies cancellations, runs the pre, inter and post stages on the scope
// workers, mixes the outputs into the attached soundcard and finally tears
// down the runs that completed.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	e.ticks.Add(1)
	e.runTasks()
	completed := e.applyCancellations()
	batches := e.batches()
	e.clearSignals()
	for st := StagePre; st < numStages; st++ {
		e.dispatch(st, batches)
	}
	for _, b := range batches {
		for _, r := range b.results {
			ctx := r.in.recallID.Context
			if r.err != nil {
				e.log.Warn("recall failed, bypassing it", "recall", ctx.recallID, "template", r.in.def.Name, "err", r.err)
				e.emit(Event{Kind: EventBypassed, Audio: r.in.Audio, Scope: ctx.Scope, RecallID: ctx.ID, Instance: r.in.ID, Err: r.err})
				continue
			}
			if ctx.producersDone() && e.complete(ctx) {
				completed = append(completed, ctx)
			}
		}
	}
	e.mix()
	for _, ctx := range completed {
		if ctx.freed {
			continue
		}
		e.emit(Event{Kind: EventDone, Audio: ctx.Audio, Scope: ctx.Scope, RecallID: ctx.ID})
		e.log.Debug("run done", "recall", ctx.recallID)
		e.freeContext(ctx)
	}
	elapsed := time.Since(start)
	e.stats.lastTick.Store(int64(elapsed))
	if e.stats.period > 0 && elapsed > e.stats.period {
		e.stats.overruns.Add(1)
	}
}

// Run ticks the engine on a timer with the tick period of the presets until
// ctx is cancelled. It is the clock for engines that do not get ticked by
// a soundcard pulling audio.
func (e *Engine) Run(ctx context.Context) error {
	t := time.NewTicker(e.stats.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			e.Tick()
		}
	}
}

// batches groups the live instances by scope worker, ordered within a
// worker so that audio-scoped instances run first and generators run
// before effects.
func (e *Engine) batches() []*batch {
	byWorker := map[*worker]*batch{}
	var ret []*batch
	for _, ctx := range e.sortedContexts() {
		if ctx.freed || ctx.completed {
			continue
		}
		d, ok := e.domains[ctx.Audio]
		if !ok || d.workers[ctx.Scope] == nil {
			continue
		}
		w := d.workers[ctx.Scope]
		b, ok := byWorker[w]
		if !ok {
			b = &batch{w: w, t: e.newTick(w.holder)}
			byWorker[w] = b
			ret = append(ret, b)
		}
		for _, in := range ctx.instances {
			if st := in.State(); st == StateInitialized || st == StateRunning {
				b.instances = append(b.instances, in)
			}
		}
	}
	for _, b := range ret {
		slices.SortStableFunc(b.instances, func(x, y *Instance) int {
			if c := cmp.Compare(rank(x.def.Kind), rank(y.def.Kind)); c != 0 {
				return c
			}
			return cmp.Compare(x.Source, y.Source)
		})
	}
	return ret
}

// dispatch runs one stage on all workers and waits for all of them.
func (e *Engine) dispatch(st Stage, batches []*batch) {
	var wg sync.WaitGroup
	jobs := make([]*job, len(batches))
	for i, b := range batches {
		jobs[i] = &job{stage: st, t: b.t, instances: b.instances, wg: &wg}
		wg.Add(1)
		b.w.jobs <- jobs[i]
	}
	wg.Wait()
	for i, b := range batches {
		b.results = append(b.results, jobs[i].results...)
	}
}

// clearSignals silences the live signals of the runs before the stages
// write them.
func (e *Engine) clearSignals() {
	for _, ctx := range e.sortedContexts() {
		for _, id := range ctx.recyclings {
			rec, err := e.graph.Recycling(id)
			if err != nil {
				continue
			}
			unlock := e.graph.Lock(e.holder, id)
			if s := rec.Signal(ctx.ID); s != nil {
				s.Clear()
			}
			unlock()
		}
	}
}

// mix sums the live signals of every output channel into the soundcard
// buffer. Output audio channels wrap around the channels of the card.
func (e *Engine) mix() {
	card := e.card
	if card == nil {
		return
	}
	card.LockBuffer()
	defer card.UnlockBuffer()
	buf := card.Buffer()
	clear(buf)
	nch := card.Presets().Channels
	if nch <= 0 {
		return
	}
	frames := len(buf) / nch
	for _, aid := range e.graph.Audios() {
		a, err := e.graph.Audio(aid)
		if err != nil {
			continue
		}
		for _, id := range a.Channels(recall.Output) {
			c, err := e.graph.Channel(id)
			if err != nil {
				continue
			}
			e.mixChannel(buf, nch, frames, c)
		}
	}
}

func (e *Engine) mixChannel(buf []float32, nch, frames int, c *graph.Channel) {
	rec, err := e.graph.Recycling(c.FirstRecycling)
	if err != nil {
		return
	}
	defer e.graph.Lock(e.holder, rec.ID)()
	out := c.AudioChannel % nch
	for _, s := range rec.Live() {
		n := min(frames, len(s.Buffer))
		for i := range n {
			buf[i*nch+out] += s.Buffer[i]
		}
	}
}
