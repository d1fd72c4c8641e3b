package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/arianpg/mikaboshi/internal/model"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateError
	StateCompleted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Source opens one subscription. Cancelling ctx must abort the returned stream.
type Source interface {
	Subscribe(ctx context.Context) (EventStream, error)
}

// EventStream yields events until io.EOF (clean completion) or another error.
type EventStream interface {
	Recv() (model.TrafficEvent, error)
}

// Handler runs synchronously for every event, in arrival order.
type Handler func(model.TrafficEvent)

// Subscriber keeps a subscription alive forever: Connecting, Streaming, then
// Error or Completed, then Connecting again after the matching delay.
type Subscriber struct {
	logger        *slog.Logger
	source        Source
	handler       Handler
	errorDelay    time.Duration
	completeDelay time.Duration
	wait          func(ctx context.Context, d time.Duration) error
	onState       func(State)

	state    atomic.Int32
	attempts atomic.Int64
	received atomic.Int64
}

func NewSubscriber(source Source, handler Handler, errorDelay, completeDelay time.Duration, logger *slog.Logger) *Subscriber {
	if errorDelay <= 0 {
		errorDelay = 2 * time.Second
	}
	if completeDelay <= 0 {
		completeDelay = 3 * time.Second
	}
	return &Subscriber{
		logger:        logger,
		source:        source,
		handler:       handler,
		errorDelay:    errorDelay,
		completeDelay: completeDelay,
		wait:          sleepWithContext,
	}
}

// OnStateChange registers a callback fired on every transition. Call before Run.
func (s *Subscriber) OnStateChange(fn func(State)) {
	s.onState = fn
}

func (s *Subscriber) State() State {
	return State(s.state.Load())
}

// Attempts counts subscribe calls made so far.
func (s *Subscriber) Attempts() int64 {
	return s.attempts.Load()
}

func (s *Subscriber) Received() int64 {
	return s.received.Load()
}

// Run blocks until ctx is cancelled. Upstream failures are never returned.
func (s *Subscriber) Run(ctx context.Context) error {
	defer s.setState(StateStopped)
	for {
		if ctx.Err() != nil {
			return nil
		}
		delay := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Info("resubscribing after delay", "state", s.State().String(), "retry_in", delay)
		if err := s.wait(ctx, delay); err != nil {
			return nil
		}
	}
}

// runOnce performs one subscription and returns how long to wait before the next.
func (s *Subscriber) runOnce(ctx context.Context) time.Duration {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.setState(StateConnecting)
	attempt := s.attempts.Add(1)
	stream, err := s.source.Subscribe(streamCtx)
	if err != nil {
		s.setState(StateError)
		s.logger.Warn("subscribe failed", "attempt", attempt, "error", err)
		return s.errorDelay
	}
	s.setState(StateStreaming)
	s.logger.Info("subscribed to traffic stream", "attempt", attempt)

	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			s.setState(StateCompleted)
			s.logger.Info("traffic stream completed by upstream")
			return s.completeDelay
		}
		if err != nil {
			s.setState(StateError)
			if ctx.Err() == nil {
				s.logger.Warn("traffic stream failed", "error", err)
			}
			return s.errorDelay
		}
		s.received.Add(1)
		s.handler(ev)
	}
}

func (s *Subscriber) setState(st State) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	if s.onState != nil {
		s.onState(st)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
