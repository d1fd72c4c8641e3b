package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Remote is the document served at {server}/config.
type Remote struct {
	GRPCPort             int    `json:"grpcPort"`
	PeerTimeoutMillis    int64  `json:"peerTimeout"`
	GeoIPEnabled         bool   `json:"geoipEnabled"`
	GeoIPAttributionText string `json:"geoipAttributionText"`
	GeoIPAttributionURL  string `json:"geoipAttributionUrl"`
}

// FetchRemote reads the startup configuration served next to the upstream stream.
func FetchRemote(ctx context.Context, client *http.Client, serverURL string) (Remote, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	endpoint := strings.TrimRight(serverURL, "/") + "/config"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Remote{}, fmt.Errorf("build config request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Remote{}, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Remote{}, fmt.Errorf("read config body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Remote{}, fmt.Errorf("fetch %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out Remote
	if err := json.Unmarshal(body, &out); err != nil {
		return Remote{}, fmt.Errorf("decode config: %w", err)
	}
	return out, nil
}

// ApplyRemote merges a fetched remote document. Zero values keep local settings.
func (c *Config) ApplyRemote(r Remote) {
	if r.GRPCPort > 0 {
		c.UpstreamGRPCAddr = withPort(c.UpstreamGRPCAddr, c.ServerURL, r.GRPCPort)
	}
	if r.PeerTimeoutMillis > 0 {
		c.PeerTimeout = time.Duration(r.PeerTimeoutMillis) * time.Millisecond
	}
	c.GeoIPEnabled = r.GeoIPEnabled
	if r.GeoIPAttributionText != "" {
		c.GeoIPAttribution = r.GeoIPAttributionText
	}
	if r.GeoIPAttributionURL != "" {
		c.GeoIPAttributionURL = r.GeoIPAttributionURL
	}
}

// withPort keeps the upstream host (or the server host when no upstream is set)
// and swaps in port.
func withPort(addr, serverURL string, port int) string {
	host := ""
	if h, _, err := net.SplitHostPort(StripScheme(addr)); err == nil {
		host = h
	} else if h, _, err := net.SplitHostPort(StripScheme(serverURL)); err == nil {
		host = h
	} else {
		host = strings.TrimRight(StripScheme(serverURL), "/")
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// StripScheme drops an http(s) prefix and any path, leaving host[:port].
func StripScheme(addr string) string {
	addr = strings.TrimSpace(addr)
	for _, p := range []string{"http://", "https://"} {
		if strings.HasPrefix(addr, p) {
			addr = strings.TrimPrefix(addr, p)
			break
		}
	}
	if i := strings.Index(addr, "/"); i >= 0 {
		addr = addr[:i]
	}
	return addr
}
