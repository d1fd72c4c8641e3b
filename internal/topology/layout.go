package topology

import (
	"math"
	"math/rand"
	"sort"

	"github.com/arianpg/mikaboshi/internal/model"
)

// Anchor is where a lone agent sits and where loopback or unknown endpoints resolve.
var Anchor = model.Vector3{}

const (
	agentRingRadius   = 2.0
	peerRingRadius    = 8.0
	peerVerticalRange = 2.0
	layoutEpsilon     = 1e-3
)

type layout struct {
	rnd *rand.Rand
}

func newLayout(rnd *rand.Rand) *layout {
	return &layout{rnd: rnd}
}

// peerSpawn places a new peer at a random angle on the outer ring.
func (l *layout) peerSpawn() model.Vector3 {
	angle := l.rnd.Float64() * 2 * math.Pi
	return model.Vector3{
		X: Anchor.X + peerRingRadius*math.Cos(angle),
		Y: Anchor.Y + (l.rnd.Float64()*2-1)*peerVerticalRange,
		Z: Anchor.Z + peerRingRadius*math.Sin(angle),
	}
}

// agentTargets returns the target position of each agent address. A lone agent is
// centered; more are spread evenly on the inner ring in address order.
func agentTargets(addrs []string) map[string]model.Vector3 {
	sorted := append([]string(nil), addrs...)
	sort.Strings(sorted)
	out := make(map[string]model.Vector3, len(sorted))
	if len(sorted) == 1 {
		out[sorted[0]] = Anchor
		return out
	}
	n := float64(len(sorted))
	for i, addr := range sorted {
		angle := 2 * math.Pi * float64(i) / n
		out[addr] = model.Vector3{
			X: Anchor.X + agentRingRadius*math.Cos(angle),
			Y: Anchor.Y,
			Z: Anchor.Z + agentRingRadius*math.Sin(angle),
		}
	}
	return out
}
