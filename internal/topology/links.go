package topology

import (
	"sort"
	"time"

	"github.com/arianpg/mikaboshi/internal/model"
)

const (
	LinkMinPulse    = 500.0
	LinkDecayRate   = 2.0
	LinkEvictVolume = 10.0
	LinkIdleTimeout = 3000 * time.Millisecond
	linkIDSeparator = "-"
)

type link struct {
	id       string
	start    model.Vector3
	end      model.Vector3
	volume   float64
	lastSeen time.Time
}

// LinkID is order independent: LinkID(a, b) == LinkID(b, a).
func LinkID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + linkIDSeparator + b
}

type linkStore struct {
	links map[string]*link
}

func newLinkStore() *linkStore {
	return &linkStore{links: make(map[string]*link)}
}

func (s *linkStore) observe(src, dst string, srcPos, dstPos model.Vector3, size int64, now time.Time) bool {
	if srcPos == dstPos {
		return false
	}
	id := LinkID(src, dst)
	l, ok := s.links[id]
	if !ok {
		l = &link{id: id}
		s.links[id] = l
	}
	// keep start/end oriented like the id so the segment does not flip between events
	if src < dst {
		l.start, l.end = srcPos, dstPos
	} else {
		l.start, l.end = dstPos, srcPos
	}
	pulse := float64(size)
	if pulse < LinkMinPulse {
		pulse = LinkMinPulse
	}
	l.volume += pulse
	l.lastSeen = now
	return true
}

func (s *linkStore) decay(deltaSeconds float64) {
	if deltaSeconds <= 0 {
		return
	}
	for _, l := range s.links {
		l.volume -= l.volume * LinkDecayRate * deltaSeconds
		if l.volume < 0 {
			l.volume = 0
		}
	}
}

func (s *linkStore) evict(now time.Time) []string {
	var evicted []string
	for id, l := range s.links {
		if l.volume < LinkEvictVolume && now.Sub(l.lastSeen) > LinkIdleTimeout {
			delete(s.links, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}
