package topology

import "sort"

const (
	HotTopN   = 3
	HotVolume = 100.0
)

// rankPeers recomputes the hot flag of every peer and returns the addresses whose
// flag flipped. Equal volumes keep insertion order.
func rankPeers(peers map[string]*peer) []string {
	ordered := make([]*peer, 0, len(peers))
	for _, p := range peers {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].volume != ordered[j].volume {
			return ordered[i].volume > ordered[j].volume
		}
		return ordered[i].seq < ordered[j].seq
	})

	var changed []string
	for i, p := range ordered {
		hot := i < HotTopN && p.volume > HotVolume
		if hot != p.hot {
			p.hot = hot
			changed = append(changed, p.address)
		}
	}
	sort.Strings(changed)
	return changed
}
