package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

func (s *Session) runProbeListener(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.ProbeListenAddr)
	if addr == "" {
		s.logger.Info("probe endpoint disabled")
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen probe endpoint %s: %w", addr, err)
	}
	defer func() { _ = ln.Close() }()

	s.probeMu.Lock()
	s.probeAddr = ln.Addr().String()
	s.probeMu.Unlock()
	s.logger.Info("probe endpoint listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(acceptErr, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(acceptErr, &ne) && ne.Timeout() {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept probe endpoint %s: %w", addr, acceptErr)
		}

		_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
		_, _ = conn.Write([]byte(s.probeLine()))
		_ = conn.Close()
	}
}

func (s *Session) probeLine() string {
	peers, agents, links, events := s.model.Counts()
	state := s.health.StreamState().String()
	if s.cfg.Mock {
		state = "mock"
	}
	return fmt.Sprintf("mikaboshi:ok state=%s peers=%d agents=%d links=%d events=%d\n", state, peers, agents, links, events)
}

// ProbeAddr is the bound probe address once the listener is up.
func (s *Session) ProbeAddr() string {
	s.probeMu.Lock()
	defer s.probeMu.Unlock()
	return s.probeAddr
}
