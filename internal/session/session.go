package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/arianpg/mikaboshi/internal/config"
	"github.com/arianpg/mikaboshi/internal/geoip"
	"github.com/arianpg/mikaboshi/internal/inspect"
	"github.com/arianpg/mikaboshi/internal/mock"
	"github.com/arianpg/mikaboshi/internal/model"
	"github.com/arianpg/mikaboshi/internal/scheduler"
	"github.com/arianpg/mikaboshi/internal/stream"
	"github.com/arianpg/mikaboshi/internal/topology"
)

// Session owns one live model and everything feeding it. The model is rebuilt
// from scratch for every session.
type Session struct {
	cfg        config.Config
	logger     *slog.Logger
	id         string
	model      *topology.Model
	scheduler  *scheduler.Scheduler
	source     *stream.GRPCSource
	subscriber *stream.Subscriber
	generator  *mock.Generator
	inspector  *inspect.Inspector
	health     *HealthStatus

	probeMu   sync.Mutex
	probeAddr string
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Session, error) {
	id := uuid.NewString()
	logger = logger.With("session", id)

	if cfg.FetchRemoteConfig {
		cfg = withRemoteConfig(ctx, cfg, logger)
	}

	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	s := &Session{
		cfg:    cfg,
		logger: logger,
		id:     id,
		model:  topology.NewModel(topology.Options{PeerTimeout: cfg.PeerTimeout}),
		health: NewHealthStatus(),
	}
	s.scheduler = scheduler.NewScheduler(logger, s.model, cfg.PeerTickInterval, cfg.LinkTickInterval)
	s.inspector = inspect.New(s.model, geoip.NewFromConfig(cfg, nil), cfg.GeoIPAttribution, cfg.GeoIPAttributionURL, logger)

	if cfg.Mock {
		s.generator = mock.NewGenerator(nil, nil)
	} else {
		s.source = stream.NewSourceFromConfig(cfg, tlsCfg, id, logger)
		s.subscriber = stream.NewSubscriber(s.source, s.handleEvent, cfg.ErrorRetryDelay, cfg.CompleteRetryDelay, logger)
		s.subscriber.OnStateChange(s.health.SetStreamState)
	}
	return s, nil
}

// withRemoteConfig applies the server's /config document. Failure is not fatal:
// the local settings, built-in defaults unless overridden, stay in effect.
func withRemoteConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) config.Config {
	fetchCtx, cancel := context.WithTimeout(ctx, cfg.ConfigFetchTimeout)
	defer cancel()
	remote, err := config.FetchRemote(fetchCtx, &http.Client{Timeout: cfg.ConfigFetchTimeout}, cfg.ServerURL)
	if err != nil {
		logger.Warn("remote config fetch failed, using defaults", "server", cfg.ServerURL, "error", err, "peer_timeout", cfg.PeerTimeout, "geoip_enabled", cfg.GeoIPEnabled)
		return cfg
	}
	cfg.ApplyRemote(remote)
	logger.Info("remote config applied", "upstream", cfg.UpstreamGRPCAddr, "peer_timeout", cfg.PeerTimeout, "geoip_enabled", cfg.GeoIPEnabled)
	return cfg
}

func (s *Session) ID() string                    { return s.id }
func (s *Session) Config() config.Config         { return s.cfg }
func (s *Session) Model() *topology.Model        { return s.model }
func (s *Session) Inspector() *inspect.Inspector { return s.inspector }
func (s *Session) Health() *HealthStatus         { return s.health }

// handleEvent runs inside the stream callback, one event at a time.
func (s *Session) handleEvent(ev model.TrafficEvent) {
	now := time.Now()
	if s.model.Apply(ev, now) {
		s.health.MarkEvent(now)
	}
}

func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("starting mikaboshi", "version", s.cfg.Version, "upstream", s.cfg.UpstreamGRPCAddr, "mock", s.cfg.Mock)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- s.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		s.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", s.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(s.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			s.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			s.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", s.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	s.shutdown()

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	s.logger.Info("mikaboshi stopped")
	return nil
}

func BuildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hOpts))
}
