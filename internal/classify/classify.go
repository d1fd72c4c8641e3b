// Package classify tags addresses seen on the traffic stream. Every function is
// pure and total: malformed input is never an error, it is simply "public".
package classify

import (
	"net/netip"
	"strings"
)

// UnknownAgent is the marker an upstream uses when it cannot name the observation point.
const UnknownAgent = "unknown"

const LocalhostName = "localhost"

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("::1/128"),
}

func parse(addr string) (netip.Addr, bool) {
	addr = strings.TrimSpace(addr)
	// tolerate the bracketed IPv6 form
	addr = strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

// IsLoopback is true for the loopback literal in either family or the localhost alias.
func IsLoopback(addr string) bool {
	if strings.EqualFold(strings.TrimSpace(addr), LocalhostName) {
		return true
	}
	ip, ok := parse(addr)
	if !ok {
		return false
	}
	return ip.IsLoopback()
}

// IsPrivateRange reports RFC1918, 127/8, IPv6 unique-local, link-local and loopback.
// It only drives display and lookup policy, never ownership.
func IsPrivateRange(addr string) bool {
	ip, ok := parse(addr)
	if !ok {
		return false
	}
	for _, p := range privatePrefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

func IsUnknownAgent(addr string) bool {
	return strings.TrimSpace(addr) == UnknownAgent
}

// Ignorable addresses never own an entity: empty, the unknown-agent marker, or loopback.
func Ignorable(addr string) bool {
	if strings.TrimSpace(addr) == "" {
		return true
	}
	return IsUnknownAgent(addr) || IsLoopback(addr)
}

// Anchored addresses render at the layout anchor instead of owning a position.
func Anchored(addr string) bool {
	return IsUnknownAgent(addr) || IsLoopback(addr)
}
