package iplist

// CacheStats reports lightweight cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Capacity  int    `json:"capacity"`  // configured capacity (0 for disabled cache)
	Size      int    `json:"size"`      // current number of records
	Hits      uint64 `json:"hits"`      // total cache hits since construction
	Misses    uint64 `json:"misses"`    // total misses, stale and expired records included
	Evictions uint64 `json:"evictions"` // total LRU evictions since construction
}

// ListStats describes the in-memory state of one list.
type ListStats struct {
	Loaded  bool   `json:"loaded"`  // a live snapshot is present
	Entries int    `json:"entries"` // entries in the live or last known snapshot
	Version uint64 `json:"version"` // invalidation counter of the list
}

// RepoStats exposes repository-level counters.
type RepoStats struct {
	Cache     CacheStats `json:"cache"`
	Whitelist ListStats  `json:"whitelist"`
	Blacklist ListStats  `json:"blacklist"`
	Degraded  uint64     `json:"degraded"` // lookups answered without a fresh snapshot
}
