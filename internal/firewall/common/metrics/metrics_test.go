package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetWhitelistEnforced(t *testing.T) {
	SetWhitelistEnforced(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(WhitelistEnforced))

	SetWhitelistEnforced(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(WhitelistEnforced))
}

func TestCacheCounters(t *testing.T) {
	hits := testutil.ToFloat64(CacheHitsTotal)
	misses := testutil.ToFloat64(CacheMissesTotal)

	CacheHitsTotal.Inc()
	CacheHitsTotal.Inc()
	CacheMissesTotal.Inc()

	assert.Equal(t, hits+2, testutil.ToFloat64(CacheHitsTotal))
	assert.Equal(t, misses+1, testutil.ToFloat64(CacheMissesTotal))
}

func TestMetricNames(t *testing.T) {
	GuardVerdictsTotal.WithLabelValues("allowed").Inc()
	assert.Equal(t, 1, testutil.CollectAndCount(GuardVerdictsTotal, "ipguard_guard_verdicts_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(WhitelistEnforced, "ipguard_guard_whitelist_enforced"))
}
