package main

import (
	"testing"
	"time"

	"github.com/arianpg/mikaboshi/internal/config"
)

func TestApplyFlagsOverridesConfig(t *testing.T) {
	t.Parallel()
	cfg := config.FromEnv()
	args := []string{"--upstream", "relay.lan:6000", "--peer-timeout", "45s", "--mock", "--log-level", "debug", "--probe-addr", ""}
	if err := applyFlags(&cfg, args); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}
	if cfg.UpstreamGRPCAddr != "relay.lan:6000" || cfg.PeerTimeout != 45*time.Second || !cfg.Mock || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ProbeListenAddr != "" {
		t.Fatalf("probe addr = %q", cfg.ProbeListenAddr)
	}
}

func TestApplyFlagsRejectsInvalid(t *testing.T) {
	t.Parallel()
	cfg := config.FromEnv()
	if err := applyFlags(&cfg, []string{"--log-level", "chatty"}); err == nil {
		t.Fatal("expected validation error")
	}
	cfg = config.FromEnv()
	if err := applyFlags(&cfg, []string{"--no-such-flag"}); err == nil {
		t.Fatal("expected parse error")
	}
	cfg = config.FromEnv()
	if err := applyFlags(&cfg, []string{"--codec", "cbor"}); err == nil {
		t.Fatal("expected codec validation error")
	}
	cfg = config.FromEnv()
	if err := applyFlags(&cfg, []string{"--codec", "JSON"}); err != nil || cfg.Codec != "json" {
		t.Fatalf("codec = %q, err = %v", cfg.Codec, err)
	}
}
