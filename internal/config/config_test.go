package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.PeerTimeout != 30*time.Second {
		t.Fatalf("peer timeout = %v", cfg.PeerTimeout)
	}
	if cfg.ErrorRetryDelay != 2*time.Second || cfg.CompleteRetryDelay != 3*time.Second {
		t.Fatalf("retry delays = %v / %v", cfg.ErrorRetryDelay, cfg.CompleteRetryDelay)
	}
	if cfg.GeoIPEnabled {
		t.Fatal("geoip should default to disabled")
	}
	if cfg.Codec != "proto" {
		t.Fatalf("codec = %q, want proto", cfg.Codec)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MIKABOSHI_PEER_TIMEOUT", "45s")
	t.Setenv("MIKABOSHI_MOCK", "yes")
	t.Setenv("MIKABOSHI_PUBLIC_GEO_PER_MINUTE", "oops")
	cfg := FromEnv()
	if cfg.PeerTimeout != 45*time.Second {
		t.Fatalf("peer timeout = %v", cfg.PeerTimeout)
	}
	if !cfg.Mock {
		t.Fatal("mock not enabled")
	}
	if cfg.PublicGeoPerMinute != 40 {
		t.Fatalf("bad int should fall back, got %d", cfg.PublicGeoPerMinute)
	}
}

func TestMergeFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mikaboshi.yaml")
	body := "upstream_grpc_addr: relay.lan:6000\npeer_timeout: 12s\nlog_level: DEBUG\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := FromEnv()
	if err := cfg.MergeFile(path); err != nil {
		t.Fatalf("MergeFile: %v", err)
	}
	if cfg.UpstreamGRPCAddr != "relay.lan:6000" {
		t.Fatalf("upstream = %q", cfg.UpstreamGRPCAddr)
	}
	if cfg.PeerTimeout != 12*time.Second {
		t.Fatalf("peer timeout = %v", cfg.PeerTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.LinkTickInterval != 200*time.Millisecond {
		t.Fatalf("untouched field changed: %v", cfg.LinkTickInterval)
	}
}

func TestMergeFileRejectsGarbage(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("peer_timeout: [1, 2"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := FromEnv()
	if err := cfg.MergeFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg := FromEnv()
	cfg.UpstreamGRPCAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing upstream error")
	}
	cfg.Mock = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("mock mode needs no upstream: %v", err)
	}
	cfg.Codec = "cbor"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "cbor") {
		t.Fatalf("expected codec error, got %v", err)
	}
	cfg.Codec = "json"
	cfg.LogLevel = "loud"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "loud") {
		t.Fatalf("expected log level error, got %v", err)
	}
}

func TestFetchRemoteAndApply(t *testing.T) {
	t.Parallel()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/config" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"grpcPort":50099,"peerTimeout":15000,"geoipEnabled":true,"geoipAttributionText":"GeoLite2","geoipAttributionUrl":"https://example.test"}`))
	}))
	defer s.Close()

	remote, err := FetchRemote(context.Background(), s.Client(), s.URL+"/")
	if err != nil {
		t.Fatalf("FetchRemote: %v", err)
	}
	cfg := FromEnv()
	cfg.UpstreamGRPCAddr = "relay.lan:50051"
	cfg.ApplyRemote(remote)
	if cfg.UpstreamGRPCAddr != "relay.lan:50099" {
		t.Fatalf("upstream = %q", cfg.UpstreamGRPCAddr)
	}
	if cfg.PeerTimeout != 15*time.Second {
		t.Fatalf("peer timeout = %v", cfg.PeerTimeout)
	}
	if !cfg.GeoIPEnabled || cfg.GeoIPAttribution != "GeoLite2" || cfg.GeoIPAttributionURL != "https://example.test" {
		t.Fatalf("geoip fields = %+v", cfg)
	}
}

func TestFetchRemoteErrorKeepsDefaults(t *testing.T) {
	t.Parallel()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer s.Close()

	_, err := FetchRemote(context.Background(), s.Client(), s.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error lacks status/body: %v", err)
	}
}

func TestWithPortFallsBackToServerHost(t *testing.T) {
	t.Parallel()
	if got := withPort("", "http://viz.lan:8080/", 50051); got != "viz.lan:50051" {
		t.Fatalf("withPort = %q", got)
	}
	if got := withPort("http://relay:1", "", 2); got != "relay:2" {
		t.Fatalf("withPort = %q", got)
	}
	if got := StripScheme("https://relay:443/path"); got != "relay:443" {
		t.Fatalf("StripScheme = %q", got)
	}
}
