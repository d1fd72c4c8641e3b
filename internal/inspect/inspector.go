// Package inspect tracks the peer currently opened in the inspection panel and
// the geolocation detail fetched for it.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arianpg/mikaboshi/internal/classify"
	"github.com/arianpg/mikaboshi/internal/geoip"
	"github.com/arianpg/mikaboshi/internal/model"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StatePrivate State = "private"
	StateFailed  State = "failed"
)

const FailedMessage = "failed to fetch details"

var ErrUnknownPeer = errors.New("inspect: no such peer")

type Detail struct {
	Address        string        `json:"address"`
	State          State         `json:"state"`
	Info           model.GeoInfo `json:"info"`
	Message        string        `json:"message,omitempty"`
	Attribution    string        `json:"attribution,omitempty"`
	AttributionURL string        `json:"attribution_url,omitempty"`
}

// Selector is the selection surface of the topology model.
type Selector interface {
	Select(addr string) bool
	ClearSelection()
}

type Inspector struct {
	mu sync.Mutex

	logger         *slog.Logger
	selector       Selector
	geo            geoip.Lookuper
	attribution    string
	attributionURL string
	detail         Detail
	generation     uint64
}

func New(selector Selector, geo geoip.Lookuper, attribution, attributionURL string, logger *slog.Logger) *Inspector {
	return &Inspector{
		logger:         logger,
		selector:       selector,
		geo:            geo,
		attribution:    attribution,
		attributionURL: attributionURL,
		detail:         Detail{State: StateIdle},
	}
}

// Inspect selects addr, exempting it from eviction, and fetches its details.
// The lookup runs without holding any model lock. A newer Inspect or Release
// discards the result of an older one.
func (i *Inspector) Inspect(ctx context.Context, addr string) (Detail, error) {
	if !i.selector.Select(addr) {
		return Detail{}, fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}

	i.mu.Lock()
	i.generation++
	gen := i.generation
	i.detail = Detail{Address: addr, State: StateLoading}
	i.mu.Unlock()

	if classify.IsPrivateRange(addr) {
		return i.finish(gen, Detail{Address: addr, State: StatePrivate}), nil
	}

	info, err := i.geo.Lookup(ctx, addr)
	if errors.Is(err, geoip.ErrPrivateAddress) {
		return i.finish(gen, Detail{Address: addr, State: StatePrivate}), nil
	}
	if err != nil {
		i.logger.Warn("geo lookup failed", "address", addr, "error", err)
		return i.finish(gen, Detail{Address: addr, State: StateFailed, Message: FailedMessage}), nil
	}
	return i.finish(gen, Detail{
		Address:        addr,
		State:          StateReady,
		Info:           info,
		Attribution:    i.attribution,
		AttributionURL: i.attributionURL,
	}), nil
}

func (i *Inspector) finish(gen uint64, d Detail) Detail {
	i.mu.Lock()
	defer i.mu.Unlock()
	if gen == i.generation {
		i.detail = d
	}
	return d
}

// Release closes the panel and lets the peer be evicted again.
func (i *Inspector) Release() {
	i.selector.ClearSelection()
	i.mu.Lock()
	defer i.mu.Unlock()
	i.generation++
	i.detail = Detail{State: StateIdle}
}

func (i *Inspector) Detail() Detail {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.detail
}
