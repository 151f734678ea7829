package engine

import (
	"sync"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/graph"
	"github.com/vsariola/recall/lockreg"
)

type (
	// Playback is the per-channel view of the runs: the top-level RecallID
	// active on the channel for each scope.
	Playback struct {
		Channel           graph.ObjectID
		Side              recall.Side
		Pad, AudioChannel int

		recallIDs [recall.NumScopes]*RecallID
	}

	// PlaybackDomain is the per-audio view of the runs. It owns one worker
	// goroutine per active scope; the worker is started when the first run
	// of the scope starts and stopped when the last one is freed.
	PlaybackDomain struct {
		Audio graph.ObjectID

		recallIDs [recall.NumScopes]*RecallID
		playbacks map[graph.ObjectID]*Playback
		active    [recall.NumScopes]int
		workers   [recall.NumScopes]*worker
	}

	worker struct {
		scope  recall.Scope
		holder lockreg.Holder
		jobs   chan *job
		done   chan struct{}
	}

	job struct {
		stage     Stage
		t         *tick
		instances []*Instance
		results   []result
		wg        *sync.WaitGroup
	}

	result struct {
		in       *Instance
		finished bool
		err      error
	}
)

// RecallID returns the top-level run of the scope on the channel, or nil.
func (p *Playback) RecallID(s recall.Scope) *RecallID {
	if !s.Valid() {
		return nil
	}
	return p.recallIDs[s]
}

// RecallID returns the top-level run of the scope on the audio, or nil.
func (d *PlaybackDomain) RecallID(s recall.Scope) *RecallID {
	if !s.Valid() {
		return nil
	}
	return d.recallIDs[s]
}

// Playback returns the playback of a channel.
func (d *PlaybackDomain) Playback(channel graph.ObjectID) (*Playback, bool) {
	p, ok := d.playbacks[channel]
	return p, ok
}

// Running reports whether a worker runs the scope.
func (d *PlaybackDomain) Running(s recall.Scope) bool {
	return s.Valid() && d.workers[s] != nil
}

func (e *Engine) domain(audio graph.ObjectID) *PlaybackDomain {
	if d, ok := e.domains[audio]; ok {
		return d
	}
	d := &PlaybackDomain{Audio: audio, playbacks: make(map[graph.ObjectID]*Playback)}
	e.domains[audio] = d
	if a, err := e.graph.Audio(audio); err == nil {
		d.refresh(e.graph, a)
	}
	return d
}

// refresh adds playbacks for new channels and drops those of removed ones.
func (d *PlaybackDomain) refresh(g *graph.Graph, a *graph.Audio) {
	seen := make(map[graph.ObjectID]bool)
	for _, side := range []recall.Side{recall.Output, recall.Input} {
		for _, id := range a.Channels(side) {
			seen[id] = true
			if _, ok := d.playbacks[id]; ok {
				continue
			}
			c, err := g.Channel(id)
			if err != nil {
				continue
			}
			d.playbacks[id] = &Playback{Channel: id, Side: side, Pad: c.Pad, AudioChannel: c.AudioChannel}
		}
	}
	for id := range d.playbacks {
		if !seen[id] {
			delete(d.playbacks, id)
		}
	}
}

func (d *PlaybackDomain) setRecallID(rid *RecallID, channels []graph.ObjectID) {
	d.recallIDs[rid.Scope] = rid
	for _, id := range channels {
		if p, ok := d.playbacks[id]; ok {
			p.recallIDs[rid.Scope] = rid
		}
	}
}

func (d *PlaybackDomain) clearRecallID(rid *RecallID) {
	if d.recallIDs[rid.Scope] == rid {
		d.recallIDs[rid.Scope] = nil
	}
	for _, p := range d.playbacks {
		if p.recallIDs[rid.Scope] == rid {
			p.recallIDs[rid.Scope] = nil
		}
	}
}

// acquire notes a new live context of the scope, starting its worker.
func (d *PlaybackDomain) acquire(s recall.Scope, locks *lockreg.Registry) {
	d.active[s]++
	if d.workers[s] == nil {
		d.workers[s] = startWorker(s, locks.NewHolder())
	}
}

// release notes a freed context of the scope, stopping the worker with the
// last one.
func (d *PlaybackDomain) release(s recall.Scope) {
	if d.active[s]--; d.active[s] > 0 {
		return
	}
	d.active[s] = 0
	if w := d.workers[s]; w != nil {
		w.stop()
		d.workers[s] = nil
	}
}

func (d *PlaybackDomain) stopAll() {
	for s, w := range d.workers {
		if w != nil {
			w.stop()
			d.workers[s] = nil
		}
		d.active[s] = 0
	}
}

func (d *PlaybackDomain) workerCount() (n int) {
	for _, w := range d.workers {
		if w != nil {
			n++
		}
	}
	return
}

func startWorker(s recall.Scope, h lockreg.Holder) *worker {
	w := &worker{scope: s, holder: h, jobs: make(chan *job), done: make(chan struct{})}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.done)
	for j := range w.jobs {
		for _, in := range j.instances {
			finished, err := in.run(j.stage, j.t)
			if finished {
				if terr := in.transition(StateDone); terr != nil {
					err = terr
				}
			}
			if err != nil {
				in.failed = true
			}
			if finished || err != nil {
				j.results = append(j.results, result{in: in, finished: finished, err: err})
			}
		}
		j.wg.Done()
	}
}

func (w *worker) stop() {
	close(w.jobs)
	<-w.done
}
