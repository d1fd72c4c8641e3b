// Package mock produces synthetic traffic for running without an upstream relay.
package mock

import (
	"context"
	"math/rand"
	"time"

	"github.com/arianpg/mikaboshi/internal/model"
)

const localAgent = "127.0.0.1"

var DefaultPeers = []string{"192.168.1.10", "192.168.1.20", "10.0.0.5", "172.16.0.3"}

// Generator emits traffic between the local agent and a fixed set of peers at
// random intervals.
type Generator struct {
	rnd      *rand.Rand
	peers    []string
	minDelay time.Duration
	maxDelay time.Duration
}

func NewGenerator(rnd *rand.Rand, peers []string) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if len(peers) == 0 {
		peers = DefaultPeers
	}
	return &Generator{
		rnd:      rnd,
		peers:    append([]string(nil), peers...),
		minDelay: 100 * time.Millisecond,
		maxDelay: 500 * time.Millisecond,
	}
}

// Next builds one event. Size is in [64, 1000).
func (g *Generator) Next() model.TrafficEvent {
	peer := g.peers[g.rnd.Intn(len(g.peers))]
	ev := model.TrafficEvent{
		Type:  model.EventTypeTraffic,
		Size:  64 + g.rnd.Int63n(1000-64),
		Proto: "TCP",
	}
	if g.rnd.Intn(2) == 0 {
		ev.SrcIP, ev.DstIP, ev.SrcIsAgent = localAgent, peer, true
	} else {
		ev.SrcIP, ev.DstIP, ev.DstIsAgent = peer, localAgent, true
	}
	return ev
}

// Run delivers events to handle until ctx is done.
func (g *Generator) Run(ctx context.Context, handle func(model.TrafficEvent)) error {
	for {
		delay := g.minDelay + time.Duration(g.rnd.Int63n(int64(g.maxDelay-g.minDelay)))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		handle(g.Next())
	}
}
