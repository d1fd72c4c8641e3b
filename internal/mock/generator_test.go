package mock

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/arianpg/mikaboshi/internal/model"
)

func TestNextAlwaysInvolvesLocalAgent(t *testing.T) {
	t.Parallel()
	g := NewGenerator(rand.New(rand.NewSource(11)), nil)
	for i := 0; i < 200; i++ {
		ev := g.Next()
		if !ev.IsTraffic() {
			t.Fatalf("type = %q", ev.Type)
		}
		if ev.Size < 64 || ev.Size >= 1000 {
			t.Fatalf("size = %d", ev.Size)
		}
		switch {
		case ev.SrcIP == localAgent:
			if !ev.SrcIsAgent || ev.DstIsAgent {
				t.Fatalf("agent flags wrong: %+v", ev)
			}
		case ev.DstIP == localAgent:
			if !ev.DstIsAgent || ev.SrcIsAgent {
				t.Fatalf("agent flags wrong: %+v", ev)
			}
		default:
			t.Fatalf("event without local agent: %+v", ev)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	g := NewGenerator(rand.New(rand.NewSource(5)), []string{"10.0.0.5"})
	g.minDelay, g.maxDelay = time.Millisecond, 2*time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan model.TrafficEvent, 64)
	done := make(chan error, 1)
	go func() {
		done <- g.Run(ctx, func(ev model.TrafficEvent) {
			select {
			case got <- ev:
			default:
			}
		})
	}()

	select {
	case ev := <-got:
		if ev.SrcIP != "10.0.0.5" && ev.DstIP != "10.0.0.5" {
			t.Fatalf("unexpected peer: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event generated")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
