// Package scheduler drives the periodic sweeps of the topology model.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arianpg/mikaboshi/internal/topology"
)

// Sweeper is the part of the model the scheduler drives. Each call holds the
// model's exclusion for its whole duration.
type Sweeper interface {
	PeerTick(now time.Time) topology.PeerTickResult
	LinkTick(now time.Time, delta time.Duration) []string
}

type Scheduler struct {
	logger       *slog.Logger
	model        Sweeper
	peerInterval time.Duration
	linkInterval time.Duration
	now          func() time.Time
}

func NewScheduler(logger *slog.Logger, model Sweeper, peerInterval, linkInterval time.Duration) *Scheduler {
	if peerInterval <= 0 {
		peerInterval = 100 * time.Millisecond
	}
	if linkInterval <= 0 {
		linkInterval = 200 * time.Millisecond
	}
	return &Scheduler{
		logger:       logger,
		model:        model,
		peerInterval: peerInterval,
		linkInterval: linkInterval,
		now:          time.Now,
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.runPeerLoop(gctx)
	})
	g.Go(func() error {
		return s.runLinkLoop(gctx)
	})
	return g.Wait()
}

func (s *Scheduler) runPeerLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.peerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepPeers()
		}
	}
}

func (s *Scheduler) runLinkLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.linkInterval)
	defer ticker.Stop()

	last := s.now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			last = s.sweepLinks(last)
		}
	}
}

func (s *Scheduler) sweepPeers() {
	res := s.model.PeerTick(s.now())
	if len(res.Evicted) > 0 {
		s.logger.Debug("peers evicted", "count", len(res.Evicted), "addresses", res.Evicted)
	}
	if len(res.HotChanged) > 0 {
		s.logger.Debug("hot peers changed", "addresses", res.HotChanged)
	}
	if len(res.Moved) > 0 {
		s.logger.Debug("agents relaid out", "addresses", res.Moved)
	}
}

// sweepLinks decays links by the real time elapsed since the previous sweep.
func (s *Scheduler) sweepLinks(last time.Time) time.Time {
	now := s.now()
	delta := now.Sub(last)
	if delta < 0 {
		delta = 0
	}
	if evicted := s.model.LinkTick(now, delta); len(evicted) > 0 {
		s.logger.Debug("links evicted", "count", len(evicted))
	}
	return now
}
