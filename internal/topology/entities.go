package topology

import (
	"sort"
	"time"

	"github.com/arianpg/mikaboshi/internal/classify"
	"github.com/arianpg/mikaboshi/internal/model"
)

// Role is the side of an event an address appeared on.
type Role int

const (
	RoleSource Role = iota
	RoleDestination
)

const (
	RecentCapacity = 5
	PeerRetention  = 0.8
	volumeEpsilon  = 1e-6

	// Despawn notifications are transient: a reader that misses them for
	// longer than DespawnFade has nothing left to fade out.
	DespawnCapacity = 256
	DespawnFade     = 2 * time.Second
)

type peer struct {
	address   string
	position  model.Vector3
	lastSeen  time.Time
	volume    float64
	protocols *recentSet[string]
	portsIn   *recentSet[int]
	portsOut  *recentSet[int]
	hot       bool
	pinned    bool
	seq       uint64
}

type agent struct {
	address  string
	position model.Vector3
	lastSeen time.Time
	pinned   bool
}

type entityStore struct {
	peers    map[string]*peer
	agents   map[string]*agent
	layout   *layout
	seq      uint64
	selected string
	despawns []model.Despawn
}

func newEntityStore(l *layout) *entityStore {
	return &entityStore{
		peers:  make(map[string]*peer),
		agents: make(map[string]*agent),
		layout: l,
	}
}

func (s *entityStore) registerAgent(addr string, now time.Time) {
	if classify.Ignorable(addr) {
		return
	}
	if p, ok := s.peers[addr]; ok {
		delete(s.peers, addr)
		if s.selected == addr {
			s.selected = ""
		}
		// keep the spot the peer occupied until the next layout pass
		s.agents[addr] = &agent{address: addr, position: p.position, lastSeen: now}
		return
	}
	if a, ok := s.agents[addr]; ok {
		a.lastSeen = now
		return
	}
	s.agents[addr] = &agent{address: addr, position: Anchor, lastSeen: now}
}

func (s *entityStore) observePeer(addr string, isAgent bool, role Role, ev model.TrafficEvent, now time.Time) {
	if isAgent || classify.Ignorable(addr) {
		return
	}
	if _, ok := s.agents[addr]; ok {
		return
	}
	p, ok := s.peers[addr]
	if !ok {
		s.seq++
		p = &peer{
			address:   addr,
			position:  s.layout.peerSpawn(),
			protocols: newRecentSet[string](RecentCapacity),
			portsIn:   newRecentSet[int](RecentCapacity),
			portsOut:  newRecentSet[int](RecentCapacity),
			seq:       s.seq,
		}
		s.peers[addr] = p
	}
	if ev.Size > 0 {
		p.volume += float64(ev.Size)
	}
	if ev.Proto != "" {
		p.protocols.Add(ev.Proto)
	}
	// The destination side of an event records the port as outbound traffic,
	// matching how the relay reports connections to a remote service.
	if ev.DstPort > 0 {
		switch role {
		case RoleDestination:
			p.portsOut.Add(ev.DstPort)
		case RoleSource:
			p.portsIn.Add(ev.DstPort)
		}
	}
	p.lastSeen = now
}

func (s *entityStore) decay() {
	for _, p := range s.peers {
		p.volume *= PeerRetention
		if p.volume < volumeEpsilon {
			p.volume = 0
		}
	}
}

func (s *entityStore) evict(now time.Time, timeout time.Duration, isSelected func(string) bool) []string {
	s.pruneDespawns(now)
	var evicted []string
	for addr, p := range s.peers {
		if isSelected(addr) {
			continue
		}
		if now.Sub(p.lastSeen) <= timeout {
			continue
		}
		delete(s.peers, addr)
		s.despawns = append(s.despawns, model.Despawn{Address: addr, Position: p.position, At: now})
		evicted = append(evicted, addr)
	}
	if over := len(s.despawns) - DespawnCapacity; over > 0 {
		s.despawns = append(s.despawns[:0], s.despawns[over:]...)
	}
	sort.Strings(evicted)
	return evicted
}

// pruneDespawns drops notifications that outlived the fade window unread.
func (s *entityStore) pruneDespawns(now time.Time) {
	keep := s.despawns[:0]
	for _, d := range s.despawns {
		if now.Sub(d.At) <= DespawnFade {
			keep = append(keep, d)
		}
	}
	clear(s.despawns[len(keep):])
	s.despawns = keep
}

func (s *entityStore) layoutAgents() []string {
	if len(s.agents) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(s.agents))
	for addr := range s.agents {
		addrs = append(addrs, addr)
	}
	targets := agentTargets(addrs)
	var moved []string
	for addr, target := range targets {
		a := s.agents[addr]
		if a.pinned || a.position.Near(target, layoutEpsilon) {
			continue
		}
		a.position = target
		moved = append(moved, addr)
	}
	sort.Strings(moved)
	return moved
}

// position resolves where addr is drawn. Loopback and unknown endpoints sit at the anchor.
func (s *entityStore) position(addr string) (model.Vector3, bool) {
	if a, ok := s.agents[addr]; ok {
		return a.position, true
	}
	if classify.Anchored(addr) {
		return Anchor, true
	}
	if p, ok := s.peers[addr]; ok {
		return p.position, true
	}
	return model.Vector3{}, false
}

func (s *entityStore) pin(addr string, pos model.Vector3) bool {
	if a, ok := s.agents[addr]; ok {
		a.position = pos
		a.pinned = true
		return true
	}
	if p, ok := s.peers[addr]; ok {
		p.position = pos
		p.pinned = true
		return true
	}
	return false
}

func (s *entityStore) unpin(addr string) {
	if a, ok := s.agents[addr]; ok {
		a.pinned = false
	}
	if p, ok := s.peers[addr]; ok {
		p.pinned = false
	}
}

func (s *entityStore) drainDespawns() []model.Despawn {
	out := s.despawns
	s.despawns = nil
	return out
}
