package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

func (s *Session) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.scheduler.Run(gctx)
	})
	g.Go(func() error {
		if s.generator != nil {
			s.health.SetMock()
			return s.generator.Run(gctx, s.handleEvent)
		}
		return s.subscriber.Run(gctx)
	})
	g.Go(func() error {
		return s.runHealthLoop(gctx)
	})
	g.Go(func() error {
		return s.runProbeListener(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Session) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(s.cfg.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.logHealth()
		}
	}
}

func (s *Session) logHealth() {
	peers, agents, links, events := s.model.Counts()
	s.logger.Log(context.Background(), slog.LevelDebug, "session health",
		"snapshot", s.health.Snapshot(),
		"peers", peers,
		"agents", agents,
		"links", links,
		"events", events,
	)
}

func (s *Session) shutdown() {
	if s.source != nil {
		if err := s.source.Close(); err != nil {
			s.logger.Warn("grpc source close failed", "error", err)
		}
	}
	s.inspector.Release()
}
