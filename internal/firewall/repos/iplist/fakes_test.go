package iplist

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/haukened/ipguard/internal/firewall/domain"
)

var errDown = errors.New("connection refused")

// memStore is an in-memory Store with switchable failure.
type memStore struct {
	mu      sync.Mutex
	lists   map[domain.ListKind][]domain.Entry
	fail    bool
	loads   int
	saves   int
	deletes int
}

func newMemStore() *memStore {
	return &memStore{lists: make(map[domain.ListKind][]domain.Entry)}
}

func (m *memStore) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func (m *memStore) loadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

func (m *memStore) LoadEntries(ctx context.Context, list domain.ListKind) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errDown
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.loads++
	return append([]domain.Entry(nil), m.lists[list]...), nil
}

func (m *memStore) SaveEntry(_ context.Context, e domain.Entry) (domain.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return domain.Entry{}, false, errDown
	}
	for _, x := range m.lists[e.List] {
		if x.Pattern == e.Pattern {
			return x, false, nil
		}
	}
	m.saves++
	m.lists[e.List] = append(m.lists[e.List], e)
	return e, true, nil
}

func (m *memStore) DeleteEntry(_ context.Context, p domain.Pattern, list domain.ListKind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, errDown
	}
	for i, x := range m.lists[list] {
		if x.Pattern == p {
			m.deletes++
			m.lists[list] = append(m.lists[list][:i], m.lists[list][i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ClearList(_ context.Context, list domain.ListKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errDown
	}
	delete(m.lists, list)
	return nil
}

func (m *memStore) Close() error { return nil }

// mapCache is a minimal generation-aware MembershipCache. It records TTLs
// but never expires anything.
type mapCache struct {
	mu   sync.Mutex
	recs map[string]cacheRec
	gens [2]uint64
	puts int
}

type cacheRec struct {
	member bool
	gen    uint64
	ttl    time.Duration
}

func newMapCache() *mapCache { return &mapCache{recs: make(map[string]cacheRec)} }

func cacheKey(a netip.Addr, l domain.ListKind) string { return l.String() + "|" + a.String() }

func (c *mapCache) Get(a netip.Addr, l domain.ListKind) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.recs[cacheKey(a, l)]
	if !ok || r.gen != c.gens[l.Index()] {
		return false, false
	}
	return r.member, true
}

func (c *mapCache) Put(a netip.Addr, l domain.ListKind, member bool, ttl time.Duration, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gens[l.Index()] {
		return
	}
	c.puts++
	c.recs[cacheKey(a, l)] = cacheRec{member: member, gen: gen, ttl: ttl}
}

func (c *mapCache) Generation(l domain.ListKind) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[l.Index()]
}

func (c *mapCache) InvalidateList(l domain.ListKind) {
	c.mu.Lock()
	c.gens[l.Index()]++
	c.mu.Unlock()
}

func (c *mapCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recs)
}

func (c *mapCache) Purge() {
	c.mu.Lock()
	c.recs = make(map[string]cacheRec)
	c.mu.Unlock()
}

func (c *mapCache) Stats() CacheStats { return CacheStats{Size: c.Len()} }

func (c *mapCache) ttlOf(a netip.Addr, l domain.ListKind) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recs[cacheKey(a, l)].ttl
}

func (c *mapCache) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

var (
	_ Store           = (*memStore)(nil)
	_ MembershipCache = (*mapCache)(nil)
)
