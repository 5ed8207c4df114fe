package iplist

import (
	"net"
	"net/netip"
	"time"

	"github.com/yl2chen/cidranger"

	"github.com/haukened/ipguard/internal/firewall/domain"
)

// Snapshot is an immutable, indexed copy of one list. It is built once from
// the store and replaced wholesale, never patched, so readers need no locks.
//
// Lookup is a logical OR over every entry: exact entries go through a Bloom
// prefilter and a set, CIDR entries through a prefix trie, and wildcard
// entries through the plain matcher.
type Snapshot struct {
	list    domain.ListKind
	version uint64
	entries []domain.Entry

	exact  map[netip.Addr]struct{}
	bloom  BloomFilter
	ranger cidranger.Ranger
	linear []domain.Pattern

	// expiresAt is zero for snapshots that never expire.
	expiresAt time.Time
}

// newSnapshot indexes entries. factory may be nil, which disables the Bloom prefilter.
func newSnapshot(list domain.ListKind, version uint64, entries []domain.Entry, factory BloomFactory, fpRate float64) *Snapshot {
	s := &Snapshot{
		list:    list,
		version: version,
		entries: append([]domain.Entry(nil), entries...),
		exact:   make(map[netip.Addr]struct{}),
		ranger:  cidranger.NewPCTrieRanger(),
	}

	var nExact uint64
	for _, e := range entries {
		if e.Pattern.Kind() == domain.PatternExact {
			nExact++
		}
	}
	if factory != nil && nExact > 0 {
		s.bloom = factory.New(nExact, fpRate)
	}

	for _, e := range entries {
		p := e.Pattern
		switch p.Kind() {
		case domain.PatternExact:
			s.exact[p.Addr()] = struct{}{}
			if s.bloom != nil {
				s.bloom.Add(p.Addr().AsSlice())
			}
		case domain.PatternCIDR:
			// net.IP cannot tell a 4-in-6 base from IPv4, so those stay with the matcher
			if p.Prefix().Addr().Is4In6() {
				s.linear = append(s.linear, p)
				continue
			}
			if err := s.ranger.Insert(cidranger.NewBasicRangerEntry(toIPNet(p.Prefix()))); err != nil {
				s.linear = append(s.linear, p)
			}
		default:
			s.linear = append(s.linear, p)
		}
	}
	return s
}

func toIPNet(p netip.Prefix) net.IPNet {
	addr := p.Addr()
	return net.IPNet{
		IP:   net.IP(addr.AsSlice()),
		Mask: net.CIDRMask(p.Bits(), addr.BitLen()),
	}
}

// Contains reports whether any entry of the list covers addr.
func (s *Snapshot) Contains(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = domain.NormalizeAddr(addr)

	if s.containsExact(addr) {
		return true
	}
	if ok, err := s.ranger.Contains(net.IP(addr.AsSlice())); err == nil && ok {
		return true
	}
	return domain.MatchesAny(addr, s.linear)
}

// containsExact consults the Bloom filter first; a negative is definitive.
func (s *Snapshot) containsExact(addr netip.Addr) bool {
	if len(s.exact) == 0 {
		return false
	}
	if s.bloom != nil && !s.bloom.MightContain(addr.AsSlice()) {
		return false
	}
	_, ok := s.exact[addr]
	return ok
}

// List returns the list this snapshot belongs to.
func (s *Snapshot) List() domain.ListKind { return s.list }

// Version returns the list version the snapshot was loaded under.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// ExpiresAt is when the snapshot stops being served as live. It is zero for
// snapshots without expiry.
func (s *Snapshot) ExpiresAt() time.Time { return s.expiresAt }

func (s *Snapshot) expired(now time.Time) bool {
	return !s.expiresAt.IsZero() && !now.Before(s.expiresAt)
}

// Entries returns a copy of the entries in store order.
func (s *Snapshot) Entries() []domain.Entry {
	return append([]domain.Entry(nil), s.entries...)
}
