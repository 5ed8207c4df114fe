package iplist

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/haukened/ipguard/internal/firewall/common/clock"
	"github.com/haukened/ipguard/internal/firewall/common/log"
	"github.com/haukened/ipguard/internal/firewall/common/metrics"
	"github.com/haukened/ipguard/internal/firewall/domain"
)

// DefaultBloomFPRate is the Bloom false-positive target used when Options leaves it unset.
const DefaultBloomFPRate = 0.01

// Options configures a Repository.
type Options struct {
	// Store is the durable backend. Required.
	Store Store
	// Cache memoizes membership answers; nil disables caching.
	Cache MembershipCache
	// Bloom builds the exact-address prefilter of each snapshot; nil disables it.
	Bloom       BloomFactory
	BloomFPRate float64
	// CacheTTL bounds staleness after edits made outside this process.
	CacheTTL time.Duration
	// StoreTimeout bounds every store call; 0 leaves it to the caller's context.
	StoreTimeout time.Duration
	// FailClosed picks the answer when the store is unreachable and no
	// snapshot was ever loaded: closed reports blacklisted and not whitelisted.
	FailClosed bool
	// Source is recorded on entries added through this repository.
	Source string
	Clock  clock.Clock
	Logger log.Logger
}

// ImportItem is one pattern to add in bulk.
type ImportItem struct {
	Pattern domain.Pattern
	Note    string
}

// ImportResult counts the outcome of Import.
type ImportResult struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
}

// Repository orchestrates the in-memory lists, the membership cache and the
// durable store. Reads go cache -> snapshot -> store; every mutation writes
// the store first, then invalidates the snapshot, then the cache.
type Repository struct {
	store      Store
	cache      MembershipCache
	lists      *ListStore
	clock      clock.Clock
	logger     log.Logger
	ttl        time.Duration
	timeout    time.Duration
	failClosed bool
	source     string
	degraded   atomic.Uint64
}

// NewRepository constructs a Repository.
func NewRepository(opts Options) (*Repository, error) {
	if opts.Store == nil {
		return nil, errors.New("iplist: store is required")
	}
	r := &Repository{
		store:      opts.Store,
		cache:      opts.Cache,
		clock:      opts.Clock,
		logger:     opts.Logger,
		ttl:        opts.CacheTTL,
		timeout:    opts.StoreTimeout,
		failClosed: opts.FailClosed,
		source:     opts.Source,
	}
	if r.cache == nil {
		r.cache = nopCache{}
	}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	if r.logger == nil {
		r.logger = log.NewNoopLogger()
	}
	fpRate := opts.BloomFPRate
	if fpRate == 0 {
		fpRate = DefaultBloomFPRate
	}
	r.lists = NewListStore(r.loadList, opts.Bloom, fpRate, r.ttl, r.clock)
	return r, nil
}

// IsMember reports whether addr is covered by list. It never fails: when the
// store is unreachable it answers from the last known snapshot, or from the
// fail policy if no snapshot was ever loaded.
func (r *Repository) IsMember(ctx context.Context, addr netip.Addr, list domain.ListKind) bool {
	if !addr.IsValid() || !list.IsValid() {
		return false
	}
	addr = domain.NormalizeAddr(addr)
	gen := r.cache.Generation(list)
	if member, ok := r.cache.Get(addr, list); ok {
		metrics.CacheHitsTotal.Inc()
		return member
	}
	metrics.CacheMissesTotal.Inc()

	snap, err := r.lists.Snapshot(ctx, list)
	if err != nil {
		return r.degradedMember(addr, list, err)
	}
	member := snap.Contains(addr)
	ttl := r.ttl
	if exp := snap.ExpiresAt(); !exp.IsZero() {
		// a cached answer must not outlive the snapshot it came from
		ttl = exp.Sub(r.clock.Now())
		if ttl <= 0 {
			return member
		}
	}
	r.cache.Put(addr, list, member, ttl, gen)
	return member
}

// degradedMember answers without a fresh snapshot. Degraded answers are not cached.
func (r *Repository) degradedMember(addr netip.Addr, list domain.ListKind, cause error) bool {
	r.degraded.Add(1)
	if snap := r.lists.LastKnown(list); snap != nil {
		metrics.DegradedLookupsTotal.WithLabelValues(list.String(), "last_known").Inc()
		r.logger.Warn(map[string]any{
			"list":    list.String(),
			"ip":      addr.String(),
			"version": snap.Version(),
			"error":   cause,
		}, "store unavailable, serving last known snapshot")
		return snap.Contains(addr)
	}

	mode := "fail_open"
	member := list == domain.Whitelist
	if r.failClosed {
		mode = "fail_closed"
		member = list == domain.Blacklist
	}
	metrics.DegradedLookupsTotal.WithLabelValues(list.String(), mode).Inc()
	r.logger.Error(map[string]any{
		"list":   list.String(),
		"ip":     addr.String(),
		"policy": mode,
		"member": member,
		"error":  cause,
	}, "store unavailable and no snapshot loaded, applying fail policy")
	return member
}

// Add validates raw, persists it on list and invalidates the list. Adding a
// pattern that is already present returns the existing entry with created
// set to false and performs no write.
func (r *Repository) Add(ctx context.Context, raw string, list domain.ListKind, note string) (entry domain.Entry, created bool, err error) {
	p, err := domain.ParsePattern(raw)
	if err != nil {
		return domain.Entry{}, false, err
	}
	return r.AddPattern(ctx, p, list, note)
}

// AddPattern is Add for an already parsed pattern.
func (r *Repository) AddPattern(ctx context.Context, p domain.Pattern, list domain.ListKind, note string) (domain.Entry, bool, error) {
	e, err := domain.NewEntry(p, list, note, r.source, r.clock.Now().UTC())
	if err != nil {
		return domain.Entry{}, false, err
	}

	sctx, cancel := r.storeContext(ctx)
	defer cancel()
	stored, created, err := r.store.SaveEntry(sctx, e)
	if err != nil {
		return domain.Entry{}, false, r.storeFailure("save", err)
	}
	if created {
		r.Invalidate(list)
		r.logger.Info(map[string]any{"list": list.String(), "pattern": p.String(), "note": e.Note}, "entry added")
	}
	return stored, created, nil
}

// Remove deletes raw from list and reports whether an entry was removed.
// The list is invalidated only when something was removed.
func (r *Repository) Remove(ctx context.Context, raw string, list domain.ListKind) (bool, error) {
	p, err := domain.ParsePattern(raw)
	if err != nil {
		return false, err
	}
	if !list.IsValid() {
		return false, fmt.Errorf("unsupported ListKind: %d", list)
	}

	sctx, cancel := r.storeContext(ctx)
	defer cancel()
	removed, err := r.store.DeleteEntry(sctx, p, list)
	if err != nil {
		return false, r.storeFailure("delete", err)
	}
	if removed {
		r.Invalidate(list)
		r.logger.Info(map[string]any{"list": list.String(), "pattern": p.String()}, "entry removed")
	}
	return removed, nil
}

// Clear removes every entry of list in one store operation.
func (r *Repository) Clear(ctx context.Context, list domain.ListKind) error {
	if !list.IsValid() {
		return fmt.Errorf("unsupported ListKind: %d", list)
	}
	sctx, cancel := r.storeContext(ctx)
	defer cancel()
	if err := r.store.ClearList(sctx, list); err != nil {
		return r.storeFailure("clear", err)
	}
	r.Invalidate(list)
	r.logger.Info(map[string]any{"list": list.String()}, "list cleared")
	return nil
}

// Report returns the entries of list in store order. It loads the list if
// needed but leaves the membership cache untouched.
func (r *Repository) Report(ctx context.Context, list domain.ListKind) ([]domain.Entry, error) {
	if !list.IsValid() {
		return nil, fmt.Errorf("unsupported ListKind: %d", list)
	}
	snap, err := r.lists.Snapshot(ctx, list)
	if err != nil {
		return nil, err
	}
	return snap.Entries(), nil
}

// Import adds every item to list. It stops at the first store failure and
// returns the counts reached so far.
func (r *Repository) Import(ctx context.Context, list domain.ListKind, items []ImportItem) (ImportResult, error) {
	var res ImportResult
	for _, it := range items {
		_, created, err := r.AddPattern(ctx, it.Pattern, list, it.Note)
		if err != nil {
			return res, err
		}
		if created {
			res.Created++
		} else {
			res.Existing++
		}
	}
	return res, nil
}

// Invalidate drops the snapshot and every cached answer of list. The next
// lookup reloads it from the store.
func (r *Repository) Invalidate(list domain.ListKind) {
	r.lists.Invalidate(list)
	r.cache.InvalidateList(list)
}

// Flush invalidates both lists.
func (r *Repository) Flush() {
	for _, l := range domain.ListKinds {
		r.Invalidate(l)
	}
}

// Stats returns repository counters.
func (r *Repository) Stats() RepoStats {
	return RepoStats{
		Cache:     r.cache.Stats(),
		Whitelist: r.lists.Stats(domain.Whitelist),
		Blacklist: r.lists.Stats(domain.Blacklist),
		Degraded:  r.degraded.Load(),
	}
}

// Close releases the store.
func (r *Repository) Close() error {
	return r.store.Close()
}

// loadList is the ListStore loader: one bounded store read.
func (r *Repository) loadList(ctx context.Context, list domain.ListKind) ([]domain.Entry, error) {
	sctx, cancel := r.storeContext(ctx)
	defer cancel()

	start := time.Now()
	entries, err := r.store.LoadEntries(sctx, list)
	metrics.SnapshotLoadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, r.storeFailure("load", err)
	}
	metrics.SnapshotEntries.WithLabelValues(list.String()).Set(float64(len(entries)))
	r.logger.Debug(map[string]any{"list": list.String(), "entries": len(entries)}, "list snapshot loaded")
	return entries, nil
}

func (r *Repository) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return ctx, func() {}
}

func (r *Repository) storeFailure(op string, err error) error {
	metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	return domain.NewStoreUnavailableError(op, err)
}
