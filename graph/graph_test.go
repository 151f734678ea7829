package graph_test

import (
	"bytes"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/vsariola/recall"
	"github.com/vsariola/recall/graph"
	"github.com/vsariola/recall/lockreg"
)

func drumUnit() recall.UnitSetup {
	return recall.UnitSetup{
		Name:          "drums",
		AudioChannels: 1,
		OutputPads:    1,
		InputPads:     8,
		Abilities:     recall.MaskOf(recall.ScopePlayback, recall.ScopeSequencer),
		FanOut:        recall.FanOutAsync,
		Audio: []recall.Template{
			{Name: "pattern", Kind: recall.KindPattern, Shape: recall.AudioScoped, Abilities: recall.MaskOf(recall.ScopeSequencer), Pattern: []recall.Pattern{{1, 0, 1, 0}}},
		},
		Input: []recall.Template{
			{Name: "gate", Kind: recall.KindPatternChannel, Shape: recall.ChannelScoped, Parent: "pattern", Abilities: recall.MaskOf(recall.ScopeSequencer)},
			{Name: "copy", Kind: recall.KindCopy, Shape: recall.ChannelScoped, Abilities: recall.AllScopes, Ports: map[string]float64{"gain": 0.5}},
		},
		Output: []recall.Template{
			{Name: "volume", Kind: recall.KindVolume, Shape: recall.ChannelScoped, Abilities: recall.AllScopes},
		},
	}
}

func newGraph(t *testing.T, units ...recall.UnitSetup) (*graph.Graph, lockreg.Holder) {
	t.Helper()
	g, err := graph.Build(lockreg.New(), 64, recall.Setup{Units: units})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g, g.Locks().NewHolder()
}

func checkRings(t *testing.T, g *graph.Graph, a *graph.Audio, side recall.Side) {
	t.Helper()
	ac := a.AudioChannels()
	if side == recall.Output {
		ac = a.OutputAudioChannels()
	}
	pads := a.Pads(side)
	channels := a.Channels(side)
	if len(channels) != pads*ac {
		t.Fatalf("%v side has %d channels, want %d", side, len(channels), pads*ac)
	}
	for _, id := range channels {
		end, err := g.Nth(id, ac)
		if err != nil {
			t.Fatalf("Nth failed: %v", err)
		}
		if end != id {
			t.Fatalf("walking next %d times from %d ended at %d", ac, id, end)
		}
		end, err = g.NthPad(id, pads)
		if err != nil {
			t.Fatalf("NthPad failed: %v", err)
		}
		if end != id {
			t.Fatalf("walking next pad %d times from %d ended at %d", pads, id, end)
		}
		c, _ := g.Channel(id)
		if c.Side != side {
			t.Fatalf("channel %d on side %v, want %v", id, c.Side, side)
		}
		if c.FirstRecycling == 0 || c.FirstRecycling != c.LastRecycling {
			t.Fatalf("channel %d has recyclings %d..%d", id, c.FirstRecycling, c.LastRecycling)
		}
	}
}

func TestBuildCreatesRings(t *testing.T) {
	u := drumUnit()
	u.AudioChannels = 2
	g, _ := newGraph(t, u)
	a, err := g.Audio(g.Audios()[0])
	if err != nil {
		t.Fatal(err)
	}
	checkRings(t, g, a, recall.Input)
	checkRings(t, g, a, recall.Output)
	for _, id := range a.Channels(recall.Input) {
		c, _ := g.Channel(id)
		if got := len(c.Templates(recall.PlaySet)); got != 2 {
			t.Fatalf("input channel has %d templates, want 2", got)
		}
	}
}

func TestChannelAtMatchesNth(t *testing.T) {
	u := drumUnit()
	u.AudioChannels = 3
	g, _ := newGraph(t, u)
	a, _ := g.Audio(g.Audios()[0])
	first := a.First(recall.Input)
	for pad := 0; pad < a.Pads(recall.Input); pad++ {
		for ch := 0; ch < 3; ch++ {
			padStart, err := g.NthPad(first, pad)
			if err != nil {
				t.Fatal(err)
			}
			got, err := g.Nth(padStart, ch)
			if err != nil {
				t.Fatal(err)
			}
			if want := a.ChannelAt(recall.Input, pad, ch); got != want {
				t.Fatalf("(%d,%d): walked to %d, want %d", pad, ch, got, want)
			}
		}
	}
	if a.ChannelAt(recall.Input, 8, 0) != 0 || a.ChannelAt(recall.Input, 0, 3) != 0 {
		t.Fatal("out of range coordinates should return 0")
	}
}

func TestNthWrapsAndRejectsNegativeSteps(t *testing.T) {
	u := drumUnit()
	u.AudioChannels = 3
	g, _ := newGraph(t, u)
	a, _ := g.Audio(g.Audios()[0])
	first := a.First(recall.Input)
	got, err := g.Nth(first, 7)
	if err != nil {
		t.Fatal(err)
	}
	if want := a.ChannelAt(recall.Input, 0, 1); got != want {
		t.Fatalf("walking 7 steps on a 3 channel ring ended at %d, want %d", got, want)
	}
	done := make(chan error, 2)
	go func() {
		_, err := g.Nth(first, -1)
		done <- err
		_, err = g.NthPad(first, -3)
		done <- err
	}()
	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			var cfgErr *recall.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("negative walk: got %v, want a ConfigurationError", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("negative walk did not return")
		}
	}
	if _, err := g.SetPads(g.Locks().NewHolder(), a.ID, recall.Input, 2); err != nil {
		t.Fatalf("graph unusable after a rejected walk: %v", err)
	}
}

func TestAddAudioRejectsMissingChannel(t *testing.T) {
	g, h := newGraph(t, drumUnit())
	before := g.Audios()
	u := drumUnit()
	u.Name = "broken"
	u.Channels = []recall.ChannelTemplate{{
		Side:     recall.Input,
		Pad:      99,
		Template: recall.Template{Name: "trim", Kind: recall.KindVolume, Shape: recall.ChannelScoped, Abilities: recall.AllScopes},
	}}
	_, err := g.AddAudio(h, u)
	var cfgErr *recall.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("AddAudio: got %v, want a ConfigurationError", err)
	}
	if after := g.Audios(); !slices.Equal(before, after) {
		t.Fatalf("audios changed from %v to %v", before, after)
	}
	if _, err := g.AddAudio(h, drumUnit()); err != nil {
		t.Fatalf("AddAudio after a rejected unit failed: %v", err)
	}
	if _, err := graph.Build(lockreg.New(), 64, recall.Setup{Units: []recall.UnitSetup{u}}); !errors.As(err, &cfgErr) {
		t.Fatalf("Build: got %v, want a ConfigurationError", err)
	}
}

func TestResizePadsKeepsRingsAndIDs(t *testing.T) {
	g, h := newGraph(t, drumUnit())
	id := g.Audios()[0]
	a, _ := g.Audio(id)
	before := a.Channels(recall.Input)
	r, err := g.SetPads(h, id, recall.Input, 16)
	if err != nil {
		t.Fatalf("SetPads failed: %v", err)
	}
	if len(r.Added) != 8 || len(r.Removed) != 0 {
		t.Fatalf("resize added %d removed %d, want 8 and 0", len(r.Added), len(r.Removed))
	}
	after := a.Channels(recall.Input)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("channel %d changed ID from %d to %d", i, before[i], after[i])
		}
	}
	checkRings(t, g, a, recall.Input)
	end, _ := g.NthPad(a.First(recall.Input), 16)
	if end != a.First(recall.Input) {
		t.Fatal("pad ring over 16 pads did not return to start")
	}
	r, err = g.SetPads(h, id, recall.Input, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Removed) != 13 {
		t.Fatalf("shrinking removed %d channels, want 13", len(r.Removed))
	}
	for _, c := range r.Removed {
		if _, err := g.Channel(c); !errors.Is(err, graph.ErrUnknownObject) {
			t.Fatalf("removed channel %d still in graph", c)
		}
	}
	checkRings(t, g, a, recall.Input)
}

func TestSetAudioChannelsSyncCouplesSides(t *testing.T) {
	u := drumUnit()
	u.FanOut = recall.FanOutSync
	u.OutputPads = 2
	g, h := newGraph(t, u)
	id := g.Audios()[0]
	a, _ := g.Audio(id)
	if _, err := g.SetAudioChannels(h, id, 2); err != nil {
		t.Fatal(err)
	}
	if a.AudioChannels() != 2 || a.OutputAudioChannels() != 2 {
		t.Fatalf("sync unit has %d/%d audio channels, want 2/2", a.AudioChannels(), a.OutputAudioChannels())
	}
	checkRings(t, g, a, recall.Input)
	checkRings(t, g, a, recall.Output)
}

func TestSetAudioChannelsAsyncLeavesOutput(t *testing.T) {
	g, h := newGraph(t, drumUnit())
	id := g.Audios()[0]
	a, _ := g.Audio(id)
	if _, err := g.SetAudioChannels(h, id, 2); err != nil {
		t.Fatal(err)
	}
	if a.AudioChannels() != 2 || a.OutputAudioChannels() != 1 {
		t.Fatalf("async unit has %d/%d audio channels, want 2/1", a.AudioChannels(), a.OutputAudioChannels())
	}
	top := a.Topology()
	for pad := 0; pad < top.InputPads; pad++ {
		for ch := 0; ch < 2; ch++ {
			if top.Route(pad, ch) != top.Outputs[0] {
				t.Fatalf("input (%d,%d) should route to the only output", pad, ch)
			}
		}
	}
}

func TestResizeRejectsNegative(t *testing.T) {
	g, h := newGraph(t, drumUnit())
	id := g.Audios()[0]
	a, _ := g.Audio(id)
	before := a.Channels(recall.Input)
	_, err := g.SetPads(h, id, recall.Input, -1)
	var cfgErr *recall.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if len(a.Channels(recall.Input)) != len(before) {
		t.Fatal("graph changed after a rejected resize")
	}
}

func TestSyncOutputGrowthPadsLiveSignals(t *testing.T) {
	u := drumUnit()
	u.FanOut = recall.FanOutSync
	g, h := newGraph(t, u)
	id := g.Audios()[0]
	a, _ := g.Audio(id)
	out, _ := g.Channel(a.First(recall.Output))
	r, _ := g.Recycling(out.FirstRecycling)
	unlock := g.Lock(h, r.ID)
	r.AddSignal(42)
	unlock()
	res, err := g.SetPads(h, id, recall.Output, 3)
	if err != nil {
		t.Fatal(err)
	}
	for _, cid := range res.Added {
		c, _ := g.Channel(cid)
		nr, _ := g.Recycling(c.FirstRecycling)
		s := nr.Signal(42)
		if s == nil {
			t.Fatalf("new output channel %d has no signal for the live context", cid)
		}
		if len(s.Buffer) != 64 || s.Level() != 0 {
			t.Fatalf("padded signal should be 64 frames of silence, got %d frames at level %v", len(s.Buffer), s.Level())
		}
	}
}

func TestRecyclingSignals(t *testing.T) {
	g, h := newGraph(t, drumUnit())
	a, _ := g.Audio(g.Audios()[0])
	c, _ := g.Channel(a.First(recall.Input))
	r, _ := g.Recycling(c.FirstRecycling)
	defer g.Lock(h, r.ID)()
	s1 := r.AddSignal(1)
	if r.AddSignal(1) != s1 {
		t.Fatal("AddSignal should return the existing signal of a context")
	}
	r.AddSignal(2)
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	if r.Release(1) {
		t.Fatal("first release of a signal with two users should keep it")
	}
	if !r.Release(1) {
		t.Fatal("last release should remove the signal")
	}
	if r.Signal(2) == nil {
		t.Fatal("releasing context 1 removed the signal of context 2")
	}
	s2 := r.Signal(2)
	s2.Fill(0.5)
	dst := r.AddSignal(3)
	dst.MixFrom(s2, 0.5)
	if dst.Buffer[0] != 0.25 {
		t.Fatalf("mixed frame = %v, want 0.25", dst.Buffer[0])
	}
	dst.Scale(2)
	if dst.Buffer[10] != 0.5 {
		t.Fatalf("scaled frame = %v, want 0.5", dst.Buffer[10])
	}
	allocs := testing.AllocsPerRun(10, func() { dst.MixFrom(s2, 0.5) })
	if allocs != 0 {
		t.Fatalf("MixFrom allocated %v times per call, want 0", allocs)
	}
	// AllocsPerRun calls once more to warm up
	if dst.Buffer[10] != 3.25 {
		t.Fatalf("frame after 11 more mixes = %v, want 3.25", dst.Buffer[10])
	}
}

func TestTemplateReconfiguration(t *testing.T) {
	g, h := newGraph(t, drumUnit())
	id := g.Audios()[0]
	tid, ok := g.FindTemplate(id, "pattern")
	if !ok {
		t.Fatal("pattern template not found")
	}
	if err := g.SetTemplatePort(h, tid, "bpm", 5000); err != nil {
		t.Fatal(err)
	}
	def, _ := g.Def(h, tid)
	if def.Ports["bpm"] != 999 {
		t.Fatalf("bpm = %v, want it clamped to 999", def.Ports["bpm"])
	}
	if err := g.SetTemplatePort(h, tid, "nonexistent", 1); err == nil {
		t.Fatal("expected error for unknown port")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	g, h := newGraph(t, drumUnit())
	a, _ := g.Audio(g.Audios()[0])
	c, _ := g.Channel(a.ChannelAt(recall.Input, 3, 0))
	copyID := c.Templates(recall.PlaySet)[1]
	if err := g.SetTemplatePort(h, copyID, "gain", 2); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := g.Snapshot(h).Write(&buf); err != nil {
		t.Fatal(err)
	}
	setup, err := recall.ReadSetup(&buf)
	if err != nil {
		t.Fatalf("ReadSetup failed: %v\n%s", err, buf.String())
	}
	g2, err := graph.Build(lockreg.New(), 64, setup)
	if err != nil {
		t.Fatal(err)
	}
	h2 := g2.Locks().NewHolder()
	a2, _ := g2.Audio(g2.Audios()[0])
	if a2.Pads(recall.Input) != 8 || a2.AudioChannels() != 1 || a2.FanOut != recall.FanOutAsync {
		t.Fatalf("rebuilt unit has wrong topology: %+v", a2.Topology())
	}
	for pad := 0; pad < 8; pad++ {
		c2, _ := g2.Channel(a2.ChannelAt(recall.Input, pad, 0))
		tids := c2.Templates(recall.PlaySet)
		if len(tids) != 2 {
			t.Fatalf("pad %d has %d templates after rebuild, want 2", pad, len(tids))
		}
		def, _ := g2.Def(h2, tids[1])
		want := 0.5
		if pad == 3 {
			want = 2
		}
		if def.Ports["gain"] != want {
			t.Fatalf("pad %d copy gain = %v, want %v", pad, def.Ports["gain"], want)
		}
	}
}

func TestRemoveAudio(t *testing.T) {
	g, h := newGraph(t, drumUnit(), drumUnit())
	ids := g.Audios()
	a, _ := g.Audio(ids[0])
	channels := a.Channels(recall.Input)
	if err := g.RemoveAudio(h, ids[0]); err != nil {
		t.Fatal(err)
	}
	if len(g.Audios()) != 1 || g.Audios()[0] != ids[1] {
		t.Fatalf("audios after removal = %v", g.Audios())
	}
	for _, c := range channels {
		if _, err := g.Channel(c); err == nil {
			t.Fatalf("channel %d survived removal of its audio", c)
		}
	}
}

func TestAttachSideTemplateReachesNewChannels(t *testing.T) {
	g, h := newGraph(t, drumUnit())
	id := g.Audios()[0]
	trim := recall.Template{Name: "trim", Kind: recall.KindVolume, Shape: recall.ChannelScoped, Abilities: recall.AllScopes}
	ids, err := g.AttachSideTemplate(h, id, recall.Output, trim)
	if err != nil {
		t.Fatalf("AttachSideTemplate failed: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("attached to %d channels, want 1", len(ids))
	}
	res, err := g.SetPads(h, id, recall.Output, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Added) != 2 {
		t.Fatalf("added %d channels, want 2", len(res.Added))
	}
	for _, cid := range res.Added {
		c, _ := g.Channel(cid)
		if len(c.Templates(recall.PlaySet)) != 2 {
			t.Fatalf("new channel %d has %d templates, want volume and trim", cid, len(c.Templates(recall.PlaySet)))
		}
	}
	audioScoped := trim
	audioScoped.Shape = recall.AudioScoped
	if _, err := g.AttachSideTemplate(h, id, recall.Output, audioScoped); err == nil {
		t.Fatal("expected error attaching an audio-scoped template to a side")
	}
}

func TestAttachTemplateChecksContainer(t *testing.T) {
	g, h := newGraph(t, drumUnit(), drumUnit())
	ids := g.Audios()
	a, _ := g.Audio(ids[0])
	other, _ := g.Audio(ids[1])
	trim := recall.Template{Name: "trim", Kind: recall.KindVolume, Shape: recall.ChannelScoped, Abilities: recall.AllScopes}
	cid := a.ChannelAt(recall.Input, 2, 0)
	tid, err := g.AttachTemplate(h, ids[0], cid, trim)
	if err != nil {
		t.Fatalf("AttachTemplate failed: %v", err)
	}
	if got, ok := g.FindChannelTemplate(cid, "trim"); !ok || got != tid {
		t.Fatalf("FindChannelTemplate = %d, %v, want %d", got, ok, tid)
	}
	if _, err := g.AttachTemplate(h, ids[0], 0, trim); err == nil {
		t.Fatal("expected error attaching a channel-scoped template to an audio unit")
	}
	if _, err := g.AttachTemplate(h, ids[0], other.ChannelAt(recall.Input, 0, 0), trim); err == nil {
		t.Fatal("expected error attaching to a channel of another audio unit")
	}
	if err := g.DetachTemplate(h, tid); err != nil {
		t.Fatal(err)
	}
	if _, ok := g.FindChannelTemplate(cid, "trim"); ok {
		t.Fatal("template still found after detach")
	}
}
