package iplist

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/haukened/ipguard/internal/firewall/common/clock"
	"github.com/haukened/ipguard/internal/firewall/domain"
)

// Loader fetches every entry of one list from durable storage.
type Loader func(ctx context.Context, list domain.ListKind) ([]domain.Entry, error)

// ListStore holds at most one live snapshot per list and loads it lazily.
// Readers never block on each other: the live snapshot is an atomic pointer,
// and concurrent misses for the same list share one load. A live snapshot
// older than ttl is reloaded on next use, so edits made by other processes
// show up within ttl.
type ListStore struct {
	load   Loader
	bloom  BloomFactory
	fpRate float64
	ttl    time.Duration
	clock  clock.Clock
	group  singleflight.Group
	slots  [2]listSlot
}

// listSlot is the state of one list. mu serializes installs against
// invalidations so a load that started before an invalidation can never
// publish its (stale) result as live.
type listSlot struct {
	mu       sync.Mutex
	version  atomic.Uint64
	live     atomic.Pointer[Snapshot]
	lastGood atomic.Pointer[Snapshot]
}

// NewListStore constructs a ListStore. factory may be nil to skip the Bloom
// prefilter. A ttl of zero or less keeps snapshots until invalidated; clk
// defaults to the real clock.
func NewListStore(load Loader, factory BloomFactory, fpRate float64, ttl time.Duration, clk clock.Clock) *ListStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &ListStore{load: load, bloom: factory, fpRate: fpRate, ttl: ttl, clock: clk}
}

func (s *ListStore) slot(list domain.ListKind) *listSlot {
	return &s.slots[list.Index()]
}

// Snapshot returns the live snapshot of list, loading it on first access,
// after an invalidation or once it expired. Load errors are returned as is;
// an expired snapshot stays available through LastKnown.
//
// The load is shared by every caller waiting on it, so it does not inherit
// the cancellation of ctx. The loader bounds it.
func (s *ListStore) Snapshot(ctx context.Context, list domain.ListKind) (*Snapshot, error) {
	slot := s.slot(list)
	if snap := slot.live.Load(); snap != nil && !snap.expired(s.clock.Now()) {
		return snap, nil
	}

	ver := slot.version.Load()
	key := list.String() + "/" + strconv.FormatUint(ver, 10)
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key, func() (any, error) {
		entries, err := s.load(loadCtx, list)
		if err != nil {
			return nil, err
		}
		snap := newSnapshot(list, ver, entries, s.bloom, s.fpRate)
		if s.ttl > 0 {
			snap.expiresAt = s.clock.Now().Add(s.ttl)
		}
		s.install(slot, ver, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (s *ListStore) install(slot *listSlot, ver uint64, snap *Snapshot) {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.version.Load() == ver {
		slot.live.Store(snap)
	}
	if prev := slot.lastGood.Load(); prev == nil || prev.version <= ver {
		slot.lastGood.Store(snap)
	}
}

// Invalidate drops the live snapshot of list, forcing a reload on the next
// Snapshot call. The last known snapshot is kept for degraded lookups.
func (s *ListStore) Invalidate(list domain.ListKind) {
	slot := s.slot(list)
	slot.mu.Lock()
	slot.version.Add(1)
	slot.live.Store(nil)
	slot.mu.Unlock()
}

// LastKnown returns the live snapshot or, failing that, the most recent
// snapshot ever loaded for list. It returns nil if none was ever loaded.
func (s *ListStore) LastKnown(list domain.ListKind) *Snapshot {
	slot := s.slot(list)
	if snap := slot.live.Load(); snap != nil {
		return snap
	}
	return slot.lastGood.Load()
}

// Stats describes the in-memory state of list.
func (s *ListStore) Stats(list domain.ListKind) ListStats {
	slot := s.slot(list)
	st := ListStats{Version: slot.version.Load()}
	if snap := slot.live.Load(); snap != nil {
		st.Loaded = true
		st.Entries = snap.Len()
	} else if snap := slot.lastGood.Load(); snap != nil {
		st.Entries = snap.Len()
	}
	return st
}
