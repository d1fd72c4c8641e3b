package session

import (
	"sync/atomic"
	"time"

	"github.com/arianpg/mikaboshi/internal/stream"
)

type HealthStatus struct {
	streamState atomic.Int32
	mock        atomic.Bool
	resubscribe atomic.Int64
	lastEventAt atomic.Int64
}

func NewHealthStatus() *HealthStatus {
	h := &HealthStatus{}
	h.streamState.Store(int32(stream.StateIdle))
	return h
}

// SetStreamState records a subscriber transition. Every Connecting after the
// first counts as a resubscription.
func (h *HealthStatus) SetStreamState(st stream.State) {
	prev := stream.State(h.streamState.Swap(int32(st)))
	if st == stream.StateConnecting && prev != stream.StateIdle {
		h.resubscribe.Add(1)
	}
}

func (h *HealthStatus) SetMock() {
	h.mock.Store(true)
}

func (h *HealthStatus) StreamState() stream.State {
	return stream.State(h.streamState.Load())
}

func (h *HealthStatus) Resubscriptions() int64 {
	return h.resubscribe.Load()
}

func (h *HealthStatus) MarkEvent(ts time.Time) {
	h.lastEventAt.Store(ts.UnixNano())
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"stream_state":    h.StreamState().String(),
		"resubscriptions": h.resubscribe.Load(),
		"mock":            h.mock.Load(),
	}
	if v := h.lastEventAt.Load(); v > 0 {
		out["last_event_at"] = time.Unix(0, v).UTC()
	}
	return out
}
