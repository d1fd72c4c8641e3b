package geoip

import (
	"net/http"

	"github.com/arianpg/mikaboshi/internal/config"
)

// NewFromConfig picks the local proxy when the server advertises GeoIP, the public
// endpoint otherwise.
func NewFromConfig(cfg config.Config, httpClient *http.Client) *Client {
	if cfg.GeoIPEnabled {
		return NewLocal(cfg.ServerURL, httpClient)
	}
	return NewPublic(cfg.PublicGeoURL, cfg.PublicGeoPerMinute, httpClient)
}
