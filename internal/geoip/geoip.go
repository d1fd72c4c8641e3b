// Package geoip resolves peer addresses to location details for the inspection
// panel. Lookups run outside the topology lock and never touch private ranges.
package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/arianpg/mikaboshi/internal/classify"
	"github.com/arianpg/mikaboshi/internal/model"
)

var (
	ErrPrivateAddress = errors.New("geoip: private address")
	ErrLookupFailed   = errors.New("geoip: lookup failed")
)

type Lookuper interface {
	Lookup(ctx context.Context, addr string) (model.GeoInfo, error)
}

type fetchFunc func(ctx context.Context, client *http.Client, addr string) (model.GeoInfo, error)

// Client performs lookups through one backend with de-duplication of
// concurrent requests for the same address and an optional rate limit.
type Client struct {
	http    *http.Client
	fetch   fetchFunc
	limiter *rate.Limiter
	group   singleflight.Group
	source  string
}

// NewLocal queries the proxy served next to the upstream: GET {base}/geoip/{addr}.
func NewLocal(baseURL string, httpClient *http.Client) *Client {
	base := strings.TrimRight(baseURL, "/")
	return newClient("local", httpClient, nil, func(ctx context.Context, c *http.Client, addr string) (model.GeoInfo, error) {
		var out model.GeoInfo
		if err := getJSON(ctx, c, base+"/geoip/"+url.PathEscape(addr), &out); err != nil {
			return model.GeoInfo{}, err
		}
		return out, nil
	})
}

type publicResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Country string `json:"country"`
	City    string `json:"city"`
	Org     string `json:"org"`
	ISP     string `json:"isp"`
	AS      string `json:"as"`
}

// NewPublic queries an ip-api.com compatible endpoint, throttled to perMinute requests.
func NewPublic(baseURL string, perMinute int, httpClient *http.Client) *Client {
	base := strings.TrimRight(baseURL, "/")
	var limiter *rate.Limiter
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return newClient("public", httpClient, limiter, func(ctx context.Context, c *http.Client, addr string) (model.GeoInfo, error) {
		var resp publicResponse
		endpoint := base + "/" + url.PathEscape(addr) + "?fields=status,message,country,city,org,isp,as"
		if err := getJSON(ctx, c, endpoint, &resp); err != nil {
			return model.GeoInfo{}, err
		}
		if resp.Status != "" && resp.Status != "success" {
			return model.GeoInfo{}, fmt.Errorf("%w: %s", ErrLookupFailed, resp.Message)
		}
		org := resp.Org
		if org == "" {
			org = resp.ISP
		}
		return model.GeoInfo{CountryName: resp.Country, City: resp.City, Org: org, ASN: resp.AS}, nil
	})
}

func newClient(source string, httpClient *http.Client, limiter *rate.Limiter, fetch fetchFunc) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{http: httpClient, fetch: fetch, limiter: limiter, source: source}
}

func (c *Client) Source() string {
	return c.source
}

func (c *Client) Lookup(ctx context.Context, addr string) (model.GeoInfo, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" || classify.IsPrivateRange(addr) || classify.Ignorable(addr) {
		return model.GeoInfo{}, ErrPrivateAddress
	}
	v, err, _ := c.group.Do(addr, func() (any, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return model.GeoInfo{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
			}
		}
		info, err := c.fetch(ctx, c.http, addr)
		if err != nil {
			if errors.Is(err, ErrLookupFailed) {
				return model.GeoInfo{}, err
			}
			return model.GeoInfo{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
		return info, nil
	})
	if err != nil {
		return model.GeoInfo{}, err
	}
	return v.(model.GeoInfo), nil
}

func getJSON(ctx context.Context, c *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}
