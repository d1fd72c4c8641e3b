package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/arianpg/mikaboshi/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	open  func(ctx context.Context, call int) (EventStream, error)
}

func (f *fakeSource) Subscribe(ctx context.Context) (EventStream, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.open(ctx, call)
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sliceStream struct {
	events []model.TrafficEvent
	end    error
}

func (s *sliceStream) Recv() (model.TrafficEvent, error) {
	if len(s.events) == 0 {
		return model.TrafficEvent{}, s.end
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

type blockingStream struct {
	ctx context.Context
}

func (s *blockingStream) Recv() (model.TrafficEvent, error) {
	<-s.ctx.Done()
	return model.TrafficEvent{}, s.ctx.Err()
}

// controlledWait hands every requested delay to the test and blocks until released.
func controlledWait(waits chan<- time.Duration, release <-chan struct{}) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		select {
		case waits <- d:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestSubscriberWaitsBeforeResubscribeOnError(t *testing.T) {
	t.Parallel()
	src := &fakeSource{open: func(context.Context, int) (EventStream, error) {
		return nil, errors.New("connection refused")
	}}
	sub := NewSubscriber(src, func(model.TrafficEvent) {}, 2*time.Second, 3*time.Second, discardLogger())
	waits := make(chan time.Duration)
	release := make(chan struct{})
	sub.wait = controlledWait(waits, release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	if d := <-waits; d != 2*time.Second {
		t.Fatalf("error delay = %v, want 2s", d)
	}
	if got := src.Calls(); got != 1 {
		t.Fatalf("subscribe calls before delay elapsed = %d, want 1", got)
	}
	if st := sub.State(); st != StateError {
		t.Fatalf("state = %v, want error", st)
	}

	release <- struct{}{}
	<-waits
	if got := src.Calls(); got != 2 {
		t.Fatalf("subscribe calls after one delay = %d, want 2", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if st := sub.State(); st != StateStopped {
		t.Fatalf("state after cancel = %v", st)
	}
}

func TestSubscriberCompletionUsesLongerDelayAndKeepsOrder(t *testing.T) {
	t.Parallel()
	events := []model.TrafficEvent{
		{Type: "traffic", SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Size: 1},
		{Type: "traffic", SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Size: 2},
		{Type: "traffic", SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Size: 3},
	}
	src := &fakeSource{open: func(context.Context, int) (EventStream, error) {
		return &sliceStream{events: append([]model.TrafficEvent(nil), events...), end: io.EOF}, nil
	}}
	var got []int64
	sub := NewSubscriber(src, func(ev model.TrafficEvent) { got = append(got, ev.Size) }, 2*time.Second, 3*time.Second, discardLogger())
	waits := make(chan time.Duration)
	release := make(chan struct{})
	sub.wait = controlledWait(waits, release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	if d := <-waits; d != 3*time.Second {
		t.Fatalf("completion delay = %v, want 3s", d)
	}
	if sub.State() != StateCompleted {
		t.Fatalf("state = %v", sub.State())
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("handled = %v", got)
	}
	if sub.Received() != 3 {
		t.Fatalf("received = %d", sub.Received())
	}
	cancel()
	<-done
}

func TestSubscriberStreamErrorAfterEvents(t *testing.T) {
	t.Parallel()
	src := &fakeSource{open: func(context.Context, int) (EventStream, error) {
		return &sliceStream{events: []model.TrafficEvent{{Type: "traffic"}}, end: errors.New("reset by peer")}, nil
	}}
	sub := NewSubscriber(src, func(model.TrafficEvent) {}, 2*time.Second, 3*time.Second, discardLogger())
	waits := make(chan time.Duration)
	sub.wait = controlledWait(waits, make(chan struct{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()
	if d := <-waits; d != 2*time.Second {
		t.Fatalf("delay = %v, want 2s", d)
	}
	cancel()
	<-done
}

func TestSubscriberCancelAbandonsInFlightStream(t *testing.T) {
	t.Parallel()
	opened := make(chan struct{})
	src := &fakeSource{open: func(ctx context.Context, _ int) (EventStream, error) {
		close(opened)
		return &blockingStream{ctx: ctx}, nil
	}}
	sub := NewSubscriber(src, func(model.TrafficEvent) {}, time.Hour, time.Hour, discardLogger())

	var states []State
	var mu sync.Mutex
	sub.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()
	<-opened
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if src.Calls() != 1 {
		t.Fatalf("calls = %d", src.Calls())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 || states[0] != StateConnecting || states[len(states)-1] != StateStopped {
		t.Fatalf("states = %v", states)
	}
}

func TestSleepWithContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepWithContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if err := sleepWithContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("err = %v", err)
	}
}
