package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	HardcodedVersion          = "v0.3"
	DefaultPeerTimeout        = 30 * time.Second
	DefaultSubscribeMethod    = "/packet.AgentService/Subscribe"
	DefaultErrorRetryDelay    = 2000 * time.Millisecond
	DefaultCompleteRetryDelay = 3000 * time.Millisecond
)

type Config struct {
	ServerURL           string        `yaml:"server_url"`
	UpstreamGRPCAddr    string        `yaml:"upstream_grpc_addr"`
	SubscribeMethod     string        `yaml:"subscribe_method"`
	ProbeListenAddr     string        `yaml:"probe_listen_addr"`
	PeerTimeout         time.Duration `yaml:"peer_timeout"`
	PeerTickInterval    time.Duration `yaml:"peer_tick_interval"`
	LinkTickInterval    time.Duration `yaml:"link_tick_interval"`
	HealthInterval      time.Duration `yaml:"health_interval"`
	ErrorRetryDelay     time.Duration `yaml:"error_retry_delay"`
	CompleteRetryDelay  time.Duration `yaml:"complete_retry_delay"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
	ConfigFetchTimeout  time.Duration `yaml:"config_fetch_timeout"`
	FetchRemoteConfig   bool          `yaml:"fetch_remote_config"`
	GeoIPEnabled        bool          `yaml:"geoip_enabled"`
	GeoIPAttribution    string        `yaml:"geoip_attribution_text"`
	GeoIPAttributionURL string        `yaml:"geoip_attribution_url"`
	PublicGeoURL        string        `yaml:"public_geo_url"`
	PublicGeoPerMinute  int           `yaml:"public_geo_per_minute"`
	Compression         bool          `yaml:"compression"`
	Codec               string        `yaml:"codec"`
	Mock                bool          `yaml:"mock"`
	Token               string        `yaml:"token"`
	TLSEnabled          bool          `yaml:"tls_enabled"`
	TLSSkipVerify       bool          `yaml:"tls_skip_verify"`
	TLSCAPath           string        `yaml:"tls_ca_path"`
	TLSCertPath         string        `yaml:"tls_cert_path"`
	TLSKeyPath          string        `yaml:"tls_key_path"`
	LogJSON             bool          `yaml:"log_json"`
	LogLevel            string        `yaml:"log_level"`
	Version             string        `yaml:"-"`
}

// Load builds the config from MIKABOSHI_* variables, then overlays the YAML
// file named by MIKABOSHI_CONFIG when set.
func Load() (Config, error) {
	cfg := FromEnv()
	if path := env("MIKABOSHI_CONFIG", ""); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func FromEnv() Config {
	return Config{
		ServerURL:          env("MIKABOSHI_SERVER_URL", "http://127.0.0.1:8080"),
		UpstreamGRPCAddr:   env("MIKABOSHI_UPSTREAM_GRPC_ADDR", "127.0.0.1:50051"),
		SubscribeMethod:    env("MIKABOSHI_SUBSCRIBE_METHOD", DefaultSubscribeMethod),
		ProbeListenAddr:    env("MIKABOSHI_PROBE_ADDR", "127.0.0.1:7444"),
		PeerTimeout:        envDuration("MIKABOSHI_PEER_TIMEOUT", DefaultPeerTimeout),
		PeerTickInterval:   envDuration("MIKABOSHI_PEER_TICK_INTERVAL", 100*time.Millisecond),
		LinkTickInterval:   envDuration("MIKABOSHI_LINK_TICK_INTERVAL", 200*time.Millisecond),
		HealthInterval:     envDuration("MIKABOSHI_HEALTH_INTERVAL", 10*time.Second),
		ErrorRetryDelay:    envDuration("MIKABOSHI_ERROR_RETRY_DELAY", DefaultErrorRetryDelay),
		CompleteRetryDelay: envDuration("MIKABOSHI_COMPLETE_RETRY_DELAY", DefaultCompleteRetryDelay),
		ShutdownTimeout:    envDuration("MIKABOSHI_SHUTDOWN_TIMEOUT", 10*time.Second),
		ConfigFetchTimeout: envDuration("MIKABOSHI_CONFIG_FETCH_TIMEOUT", 5*time.Second),
		FetchRemoteConfig:  envBool("MIKABOSHI_FETCH_REMOTE_CONFIG", true),
		GeoIPEnabled:       envBool("MIKABOSHI_GEOIP_ENABLED", false),
		PublicGeoURL:       env("MIKABOSHI_PUBLIC_GEO_URL", "http://ip-api.com/json"),
		PublicGeoPerMinute: envInt("MIKABOSHI_PUBLIC_GEO_PER_MINUTE", 40),
		Compression:        envBool("MIKABOSHI_GRPC_GZIP", false),
		Codec:              strings.ToLower(env("MIKABOSHI_GRPC_CODEC", "proto")),
		Mock:               envBool("MIKABOSHI_MOCK", false),
		Token:              env("MIKABOSHI_TOKEN", ""),
		TLSEnabled:         envBool("MIKABOSHI_TLS_ENABLED", false),
		TLSSkipVerify:      envBool("MIKABOSHI_TLS_SKIP_VERIFY", false),
		TLSCAPath:          env("MIKABOSHI_TLS_CA_PATH", ""),
		TLSCertPath:        env("MIKABOSHI_TLS_CERT_PATH", ""),
		TLSKeyPath:         env("MIKABOSHI_TLS_KEY_PATH", ""),
		LogJSON:            envBool("MIKABOSHI_LOG_JSON", false),
		LogLevel:           strings.ToLower(env("MIKABOSHI_LOG_LEVEL", "info")),
		Version:            HardcodedVersion,
	}
}

// MergeFile overlays the non-zero fields of a YAML file onto c.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	// decoding into a copy leaves fields absent from the file untouched
	merged := *c
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	merged.LogLevel = strings.ToLower(merged.LogLevel)
	merged.Codec = strings.ToLower(merged.Codec)
	merged.Version = c.Version
	*c = merged
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return errors.New("version must not be empty")
	}
	if !c.Mock && strings.TrimSpace(c.UpstreamGRPCAddr) == "" {
		return errors.New("MIKABOSHI_UPSTREAM_GRPC_ADDR is required unless mock mode is on")
	}
	if !c.Mock && strings.TrimSpace(c.SubscribeMethod) == "" {
		return errors.New("MIKABOSHI_SUBSCRIBE_METHOD is required unless mock mode is on")
	}
	if c.PeerTimeout <= 0 {
		return errors.New("MIKABOSHI_PEER_TIMEOUT must be > 0")
	}
	if c.PeerTickInterval <= 0 || c.LinkTickInterval <= 0 {
		return errors.New("tick intervals must be > 0")
	}
	if c.HealthInterval <= 0 {
		return errors.New("MIKABOSHI_HEALTH_INTERVAL must be > 0")
	}
	if c.ErrorRetryDelay <= 0 || c.CompleteRetryDelay <= 0 {
		return errors.New("retry delays must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("MIKABOSHI_SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.FetchRemoteConfig && strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("MIKABOSHI_SERVER_URL is required to fetch remote config")
	}
	switch c.Codec {
	case "proto", "json":
	default:
		return fmt.Errorf("unsupported stream codec %q", c.Codec)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}
	return nil
}

func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		caBytes, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	if c.TLSCertPath != "" || c.TLSKeyPath != "" {
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return nil, errors.New("both TLS cert and key are required")
		}
		crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load mTLS cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
