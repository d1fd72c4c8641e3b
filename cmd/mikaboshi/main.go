package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/arianpg/mikaboshi/internal/config"
	"github.com/arianpg/mikaboshi/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := applyFlags(&cfg, os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	logger := session.BuildLogger(cfg)
	s, err := session.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("session initialization failed", "error", err)
		os.Exit(1)
	}

	if err := s.Run(context.Background()); err != nil {
		logger.Error("session runtime failed", "error", err)
		os.Exit(1)
	}
}

// applyFlags lets the command line override the environment and config file.
func applyFlags(cfg *config.Config, args []string) error {
	fs := pflag.NewFlagSet("mikaboshi", pflag.ContinueOnError)
	server := fs.String("server", cfg.ServerURL, "base URL serving /config and /geoip")
	upstream := fs.String("upstream", cfg.UpstreamGRPCAddr, "gRPC address of the traffic relay")
	method := fs.String("subscribe-method", cfg.SubscribeMethod, "full gRPC method name of the subscribe stream")
	probe := fs.String("probe-addr", cfg.ProbeListenAddr, "TCP address of the health probe, empty to disable")
	peerTimeout := fs.Duration("peer-timeout", cfg.PeerTimeout, "idle time before a peer is evicted")
	fetchRemote := fs.Bool("fetch-config", cfg.FetchRemoteConfig, "fetch /config from the server at startup")
	mock := fs.Bool("mock", cfg.Mock, "generate synthetic traffic instead of subscribing")
	gzip := fs.Bool("gzip", cfg.Compression, "request gzip compression on the stream")
	codec := fs.String("codec", cfg.Codec, "stream message encoding: proto or json")
	logLevel := fs.String("log-level", cfg.LogLevel, "debug, info, warn or error")
	logJSON := fs.Bool("log-json", cfg.LogJSON, "emit JSON logs")
	shutdown := fs.Duration("shutdown-timeout", cfg.ShutdownTimeout, "grace period after the first signal")
	version := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *version {
		fmt.Println("mikaboshi", cfg.Version)
		os.Exit(0)
	}

	cfg.ServerURL = *server
	cfg.UpstreamGRPCAddr = *upstream
	cfg.SubscribeMethod = *method
	cfg.ProbeListenAddr = *probe
	cfg.PeerTimeout = *peerTimeout
	cfg.FetchRemoteConfig = *fetchRemote
	cfg.Mock = *mock
	cfg.Compression = *gzip
	cfg.Codec = strings.ToLower(*codec)
	cfg.LogLevel = *logLevel
	cfg.LogJSON = *logJSON
	cfg.ShutdownTimeout = *shutdown
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg.Validate()
}
