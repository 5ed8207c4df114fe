package iplist

import (
	"context"
	"net/netip"
	"time"

	"github.com/haukened/ipguard/internal/firewall/domain"
)

// Store abstracts the durable backend holding both lists.
//   - LoadEntries: every entry of one list, in insertion order
//   - SaveEntry: insert-if-absent; returns the stored entry and whether it was created
//   - DeleteEntry: removes one entry; reports whether it existed
//   - ClearList: removes every entry of one list in a single operation
//
// Implementations must honor ctx where their backend allows it.
type Store interface {
	LoadEntries(ctx context.Context, list domain.ListKind) ([]domain.Entry, error)
	SaveEntry(ctx context.Context, e domain.Entry) (domain.Entry, bool, error)
	DeleteEntry(ctx context.Context, p domain.Pattern, list domain.ListKind) (bool, error)
	ClearList(ctx context.Context, list domain.ListKind) error
	Close() error
}

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// BloomFilter is the minimal interface snapshots need from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory creates Bloom filters sized for a dataset.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// MembershipCache memoizes "is address X on list L" answers.
//
// Records are tagged with the generation of their list. InvalidateList bumps
// the generation, which turns every older record into a miss without
// scanning. Callers read Generation before computing an answer and pass it to
// Put, so an answer computed from a superseded snapshot is never served.
// TTL expiry is evaluated lazily on Get.
type MembershipCache interface {
	Get(addr netip.Addr, list domain.ListKind) (member bool, ok bool)
	Put(addr netip.Addr, list domain.ListKind, member bool, ttl time.Duration, gen uint64)
	Generation(list domain.ListKind) uint64
	InvalidateList(list domain.ListKind)
	Len() int
	Purge()
	Stats() CacheStats
}
