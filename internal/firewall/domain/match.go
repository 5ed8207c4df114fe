package domain

import (
	"net/netip"
	"strings"
)

// NormalizeAddr returns the canonical form used for every comparison:
// IPv4-mapped IPv6 addresses become plain IPv4 and zones are dropped.
func NormalizeAddr(a netip.Addr) netip.Addr {
	return a.Unmap().WithZone("")
}

// ParseAddr parses and normalizes a textual address.
func ParseAddr(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, err
	}
	return NormalizeAddr(a), nil
}

// Matches reports whether addr is covered by p. It has no failure path; an
// invalid address or a zero pattern never matches. Address families must
// agree: an IPv4 address never matches an IPv6 pattern and vice versa.
func Matches(addr netip.Addr, p Pattern) bool {
	if !addr.IsValid() {
		return false
	}
	addr = NormalizeAddr(addr)
	switch p.kind {
	case PatternExact:
		return addr == p.addr
	case PatternCIDR:
		if addr.Is4() != p.prefix.Addr().Is4() {
			return false
		}
		return p.prefix.Contains(addr)
	case PatternWildcard:
		if !addr.Is4() {
			return false
		}
		b := addr.As4()
		for i, o := range p.octets {
			if !o.any && b[i] != o.value {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MatchesAny reports whether any pattern covers addr. Membership is a logical
// OR over all patterns; order is irrelevant.
func MatchesAny(addr netip.Addr, patterns []Pattern) bool {
	for _, p := range patterns {
		if Matches(addr, p) {
			return true
		}
	}
	return false
}
