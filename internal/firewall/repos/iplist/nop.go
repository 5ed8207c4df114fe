package iplist

import (
	"net/netip"
	"time"

	"github.com/haukened/ipguard/internal/firewall/domain"
)

// nopCache is the MembershipCache used when caching is disabled. Every
// lookup misses, so every check consults the in-memory snapshot.
type nopCache struct{}

func (nopCache) Get(netip.Addr, domain.ListKind) (bool, bool)                 { return false, false }
func (nopCache) Put(netip.Addr, domain.ListKind, bool, time.Duration, uint64) {}
func (nopCache) Generation(domain.ListKind) uint64                            { return 0 }
func (nopCache) InvalidateList(domain.ListKind)                               {}
func (nopCache) Len() int                                                     { return 0 }
func (nopCache) Purge()                                                       {}
func (nopCache) Stats() CacheStats                                            { return CacheStats{} }

var _ MembershipCache = nopCache{}
