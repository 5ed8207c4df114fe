package lru

import (
	"net/netip"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/ipguard/internal/firewall/common/clock"
	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
)

type key struct {
	addr netip.Addr
	list domain.ListKind
}

// record is one memoized answer. A zero expiresAt never expires.
type record struct {
	member    bool
	gen       uint64
	expiresAt time.Time
}

// membershipCache is an LRU-backed implementation of iplist.MembershipCache.
// Invalidation is a per-list generation bump; stale records are left in place
// and age out through the LRU.
type membershipCache struct {
	lru       *lru.Cache[key, record]
	capacity  int
	clock     clock.Clock
	gens      [2]atomic.Uint64
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache is a no-op MembershipCache used when size <= 0.
type disabledCache struct{}

// newLRU is swapped in tests.
var newLRU = func(size int, onEvict func(key, record)) (*lru.Cache[key, record], error) {
	return lru.NewWithEvict(size, onEvict)
}

// New creates a MembershipCache holding at most size answers. If size <= 0, a
// disabled cache is returned that always misses. A nil clk uses the wall clock.
func New(size int, clk clock.Clock) (iplist.MembershipCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	c := &membershipCache{capacity: size, clock: clk}
	cache, err := newLRU(size, func(key, record) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.lru = cache
	return c, nil
}

// Get returns the cached answer for addr on list. Records from an older
// generation or past their expiry count as misses.
func (c *membershipCache) Get(addr netip.Addr, list domain.ListKind) (bool, bool) {
	if !list.IsValid() {
		return false, false
	}
	rec, ok := c.lru.Get(key{addr: addr, list: list})
	if !ok || rec.gen != c.gens[list.Index()].Load() ||
		(!rec.expiresAt.IsZero() && !c.clock.Now().Before(rec.expiresAt)) {
		c.misses.Add(1)
		return false, false
	}
	c.hits.Add(1)
	return rec.member, true
}

// Put stores an answer computed under generation gen. Answers from a
// superseded generation are dropped. ttl <= 0 stores without expiry.
func (c *membershipCache) Put(addr netip.Addr, list domain.ListKind, member bool, ttl time.Duration, gen uint64) {
	if !list.IsValid() || gen != c.gens[list.Index()].Load() {
		return
	}
	rec := record{member: member, gen: gen}
	if ttl > 0 {
		rec.expiresAt = c.clock.Now().Add(ttl)
	}
	c.lru.Add(key{addr: addr, list: list}, rec)
}

// Generation returns the current generation of list.
func (c *membershipCache) Generation(list domain.ListKind) uint64 {
	if !list.IsValid() {
		return 0
	}
	return c.gens[list.Index()].Load()
}

// InvalidateList makes every cached answer of list stale in O(1).
func (c *membershipCache) InvalidateList(list domain.ListKind) {
	if list.IsValid() {
		c.gens[list.Index()].Add(1)
	}
}

// Len returns the number of records, stale ones included.
func (c *membershipCache) Len() int { return c.lru.Len() }

// Purge clears all records. Evictions are counted via the eviction callback.
func (c *membershipCache) Purge() { c.lru.Purge() }

func (c *membershipCache) Stats() iplist.CacheStats {
	return iplist.CacheStats{
		Capacity:  c.capacity,
		Size:      c.lru.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// disabledCache implementation

func (d *disabledCache) Get(netip.Addr, domain.ListKind) (bool, bool) { return false, false }

func (d *disabledCache) Put(netip.Addr, domain.ListKind, bool, time.Duration, uint64) {}

func (d *disabledCache) Generation(domain.ListKind) uint64 { return 0 }

func (d *disabledCache) InvalidateList(domain.ListKind) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() iplist.CacheStats { return iplist.CacheStats{} }

var _ iplist.MembershipCache = (*membershipCache)(nil)
var _ iplist.MembershipCache = (*disabledCache)(nil)
