package adminapi

import (
	"context"
	"net/netip"

	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
)

// Lists is the administrative surface of the list repository.
type Lists interface {
	Add(ctx context.Context, raw string, list domain.ListKind, note string) (domain.Entry, bool, error)
	Remove(ctx context.Context, raw string, list domain.ListKind) (bool, error)
	Clear(ctx context.Context, list domain.ListKind) error
	Report(ctx context.Context, list domain.ListKind) ([]domain.Entry, error)
	Import(ctx context.Context, list domain.ListKind, items []iplist.ImportItem) (iplist.ImportResult, error)
	Flush()
	Stats() iplist.RepoStats
}

// Guard is the runtime surface of the request guard.
type Guard interface {
	Check(ctx context.Context, addr netip.Addr) domain.Decision
	SetWhitelistEnforcement(on bool)
	WhitelistEnforced() bool
}
