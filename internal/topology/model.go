// Package topology holds the live peer/agent/link model fed by the traffic stream.
//
// All mutation goes through Model, which serializes the stream callback, the
// periodic ticks and manual placement behind one mutex. Nothing in this package
// performs I/O.
package topology

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/arianpg/mikaboshi/internal/model"
)

const DefaultPeerTimeout = 30 * time.Second

type Options struct {
	PeerTimeout time.Duration
	Rand        *rand.Rand
}

// PeerTickResult describes what a 100ms sweep changed.
type PeerTickResult struct {
	Evicted    []string
	HotChanged []string
	Moved      []string
}

type Model struct {
	mu          sync.Mutex
	entities    *entityStore
	links       *linkStore
	peerTimeout time.Duration
	events      uint64
}

func NewModel(opts Options) *Model {
	if opts.PeerTimeout <= 0 {
		opts.PeerTimeout = DefaultPeerTimeout
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Model{
		entities:    newEntityStore(newLayout(rnd)),
		links:       newLinkStore(),
		peerTimeout: opts.PeerTimeout,
	}
}

// Apply folds one stream event into the model. Events that are not traffic, or
// that carry unusable addresses, leave the model untouched. It reports whether
// the event was a traffic event.
func (m *Model) Apply(ev model.TrafficEvent, now time.Time) bool {
	if !ev.IsTraffic() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events++

	if ev.SrcIsAgent {
		m.entities.registerAgent(ev.SrcIP, now)
	}
	if ev.DstIsAgent {
		m.entities.registerAgent(ev.DstIP, now)
	}
	m.entities.observePeer(ev.SrcIP, ev.SrcIsAgent, RoleSource, ev, now)
	m.entities.observePeer(ev.DstIP, ev.DstIsAgent, RoleDestination, ev, now)

	srcPos, okSrc := m.entities.position(ev.SrcIP)
	dstPos, okDst := m.entities.position(ev.DstIP)
	if okSrc && okDst {
		m.links.observe(ev.SrcIP, ev.DstIP, srcPos, dstPos, ev.Size, now)
	}
	return true
}

// PeerTick runs decay, eviction, ranking and agent layout in that order.
func (m *Model) PeerTick(now time.Time) PeerTickResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entities.decay()
	evicted := m.entities.evict(now, m.peerTimeout, m.isSelectedLocked)
	return PeerTickResult{
		Evicted:    evicted,
		HotChanged: rankPeers(m.entities.peers),
		Moved:      m.entities.layoutAgents(),
	}
}

// LinkTick decays link volume by the elapsed time and drops idle, faded links.
func (m *Model) LinkTick(now time.Time, delta time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.links.decay(delta.Seconds())
	return m.links.evict(now)
}

// Pin places an entity manually. Layout leaves it alone until Unpin.
func (m *Model) Pin(addr string, pos model.Vector3) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entities.pin(addr, pos)
}

func (m *Model) Unpin(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities.unpin(addr)
}

// Select marks a peer as under inspection, exempting it from eviction.
func (m *Model) Select(addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities.peers[addr]; !ok {
		return false
	}
	m.entities.selected = addr
	return true
}

func (m *Model) ClearSelection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities.selected = ""
}

func (m *Model) Selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entities.selected
}

func (m *Model) isSelectedLocked(addr string) bool {
	return m.entities.selected != "" && m.entities.selected == addr
}

// Counts returns peers, agents, links and total traffic events applied.
func (m *Model) Counts() (peers, agents, links int, events uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entities.peers), len(m.entities.agents), len(m.links.links), m.events
}

// Peer returns a copy of one peer.
func (m *Model) Peer(addr string) (model.PeerView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.entities.peers[addr]
	if !ok {
		return model.PeerView{}, false
	}
	return peerView(p), true
}

// Snapshot copies the whole model. Pending despawn notifications are handed
// out exactly once, to the snapshot that drains them.
func (m *Model) Snapshot(now time.Time) model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := model.Snapshot{
		TakenAt:  now,
		Peers:    make([]model.PeerView, 0, len(m.entities.peers)),
		Agents:   make([]model.AgentView, 0, len(m.entities.agents)),
		Links:    make([]model.LinkView, 0, len(m.links.links)),
		Despawns: m.entities.drainDespawns(),
		Selected: m.entities.selected,
	}
	for _, p := range m.entities.peers {
		snap.Peers = append(snap.Peers, peerView(p))
	}
	for _, a := range m.entities.agents {
		snap.Agents = append(snap.Agents, model.AgentView{
			Address:  a.address,
			Position: a.position,
			LastSeen: a.lastSeen,
			Pinned:   a.pinned,
		})
	}
	for _, l := range m.links.links {
		snap.Links = append(snap.Links, model.LinkView{
			ID:       l.id,
			Start:    l.start,
			End:      l.end,
			Volume:   l.volume,
			LastSeen: l.lastSeen,
		})
	}
	sort.Slice(snap.Peers, func(i, j int) bool { return snap.Peers[i].Address < snap.Peers[j].Address })
	sort.Slice(snap.Agents, func(i, j int) bool { return snap.Agents[i].Address < snap.Agents[j].Address })
	sort.Slice(snap.Links, func(i, j int) bool { return snap.Links[i].ID < snap.Links[j].ID })
	return snap
}

func peerView(p *peer) model.PeerView {
	return model.PeerView{
		Address:   p.address,
		Position:  p.position,
		LastSeen:  p.lastSeen,
		Volume:    p.volume,
		Protocols: p.protocols.Values(),
		PortsIn:   p.portsIn.Values(),
		PortsOut:  p.portsOut.Values(),
		IsHot:     p.hot,
		Pinned:    p.pinned,
	}
}
