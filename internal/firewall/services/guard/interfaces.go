package guard

import (
	"context"
	"net/netip"

	"github.com/haukened/ipguard/internal/firewall/domain"
)

// Membership answers "is this address on that list". Implementations must
// not fail: degraded answers are their concern.
type Membership interface {
	IsMember(ctx context.Context, addr netip.Addr, list domain.ListKind) bool
}
