package monitor_test

import (
	"testing"
	"time"

	"github.com/vsariola/recall/engine"
	"github.com/vsariola/recall/monitor"
)

type fixedStats engine.Stats

func (f fixedStats) Stats() engine.Stats {
	return engine.Stats(f)
}

func TestStatsRoundTrip(t *testing.T) {
	want := fixedStats{Ticks: 42, Overruns: 1, ActiveContexts: 3, Workers: 2, TickPeriod: time.Millisecond}
	server, err := monitor.Serve("127.0.0.1:0", want, nil)
	if err != nil {
		t.Fatalf("monitor.Serve error: %v", err)
	}
	defer server.Close()
	client, err := monitor.Dial(server.Addr().String())
	if err != nil {
		t.Fatalf("monitor.Dial error: %v", err)
	}
	defer client.Close()
	got, err := client.Stats()
	if err != nil {
		t.Fatalf("client.Stats error: %v", err)
	}
	if got != engine.Stats(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDialFailsWithoutServer(t *testing.T) {
	server, err := monitor.Serve("127.0.0.1:0", fixedStats{}, nil)
	if err != nil {
		t.Fatalf("monitor.Serve error: %v", err)
	}
	addr := server.Addr().String()
	server.Close()
	if _, err := monitor.Dial(addr); err == nil {
		t.Fatalf("dialing a closed monitor should fail")
	}
}
