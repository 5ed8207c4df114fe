// Package metrics contains the prometheus metrics exported by ipguard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// constants with the namespace and the subsystem names used in ipguard
// metrics.
const (
	namespace = "ipguard"

	subsystemGuard = "guard"
	subsystemCache = "cache"
	subsystemRepo  = "repo"
	subsystemAdmin = "admin"
)

var (
	// GuardVerdictsTotal counts request verdicts by outcome.
	GuardVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "verdicts_total",
		Namespace: namespace,
		Subsystem: subsystemGuard,
		Help:      "The total number of request verdicts by outcome.",
	}, []string{"verdict"})

	// WhitelistEnforced is 1 when whitelist enforcement is on.
	WhitelistEnforced = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "whitelist_enforced",
		Namespace: namespace,
		Subsystem: subsystemGuard,
		Help:      "Whether whitelist enforcement is enabled (1) or not (0).",
	})
)

var (
	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "lookups_total",
		Namespace: namespace,
		Subsystem: subsystemCache,
		Help:      "The total number of membership cache lookups by result.",
	}, []string{"result"})

	// CacheHitsTotal counts membership cache hits.
	CacheHitsTotal = cacheLookupsTotal.With(prometheus.Labels{"result": "hit"})

	// CacheMissesTotal counts membership cache misses, stale and expired
	// records included.
	CacheMissesTotal = cacheLookupsTotal.With(prometheus.Labels{"result": "miss"})
)

var (
	// SnapshotEntries is the number of entries in the live snapshot of a list.
	SnapshotEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "snapshot_entries",
		Namespace: namespace,
		Subsystem: subsystemRepo,
		Help:      "The number of entries in the live snapshot of each list.",
	}, []string{"list"})

	// SnapshotLoadDuration is the time spent loading a list from the store.
	SnapshotLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:      "snapshot_load_duration_seconds",
		Namespace: namespace,
		Subsystem: subsystemRepo,
		Help:      "Time spent loading a list snapshot from the durable store.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	})

	// StoreErrorsTotal counts failed durable store operations.
	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "store_errors_total",
		Namespace: namespace,
		Subsystem: subsystemRepo,
		Help:      "The total number of failed durable store operations.",
	}, []string{"op"})

	// DegradedLookupsTotal counts membership answers served without a fresh
	// snapshot, by fallback mode.
	DegradedLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "degraded_lookups_total",
		Namespace: namespace,
		Subsystem: subsystemRepo,
		Help:      "Membership lookups answered from the last known snapshot or the fail policy.",
	}, []string{"list", "mode"})
)

// AdminRequestsTotal counts admin API requests by route and status class.
var AdminRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name:      "requests_total",
	Namespace: namespace,
	Subsystem: subsystemAdmin,
	Help:      "The total number of admin API requests.",
}, []string{"route", "code"})

// SetWhitelistEnforced mirrors the enforcement flag into its gauge.
func SetWhitelistEnforced(on bool) {
	if on {
		WhitelistEnforced.Set(1)
	} else {
		WhitelistEnforced.Set(0)
	}
}
