package guard

import (
	"context"
	"net/netip"
	"sync/atomic"

	"github.com/haukened/ipguard/internal/firewall/common/log"
	"github.com/haukened/ipguard/internal/firewall/common/metrics"
	"github.com/haukened/ipguard/internal/firewall/domain"
)

// Guard turns a requester address into a verdict. It never builds a
// response; callers translate the Decision for their transport.
type Guard struct {
	lists   Membership
	logger  log.Logger
	enforce atomic.Bool
}

type Options struct {
	Lists            Membership
	Logger           log.Logger
	EnforceWhitelist bool
}

func New(opts Options) *Guard {
	g := &Guard{lists: opts.Lists, logger: opts.Logger}
	if g.logger == nil {
		g.logger = log.NewNoopLogger()
	}
	g.SetWhitelistEnforcement(opts.EnforceWhitelist)
	return g
}

// Check evaluates addr in one step:
//
//  1. on the blacklist -> BlockedByBlacklist
//  2. enforcement on and not on the whitelist -> BlockedByNotWhitelisted
//  3. otherwise -> Allowed
//
// The blacklist is consulted first and wins even when the address is also
// whitelisted.
func (g *Guard) Check(ctx context.Context, addr netip.Addr) domain.Decision {
	addr = domain.NormalizeAddr(addr)
	d := domain.Decision{Verdict: domain.Allowed, Address: addr}

	switch {
	case g.lists.IsMember(ctx, addr, domain.Blacklist):
		d.Verdict = domain.BlockedByBlacklist
		d.MatchedList = domain.Blacklist
	case g.enforce.Load():
		if g.lists.IsMember(ctx, addr, domain.Whitelist) {
			d.MatchedList = domain.Whitelist
		} else {
			d.Verdict = domain.BlockedByNotWhitelisted
		}
	}

	metrics.GuardVerdictsTotal.WithLabelValues(d.Verdict.String()).Inc()
	if d.IsBlocked() {
		g.logger.Debug(map[string]any{"ip": addr.String(), "verdict": d.Verdict.String()}, "request denied")
	}
	return d
}

// SetWhitelistEnforcement switches whitelist enforcement at runtime.
func (g *Guard) SetWhitelistEnforcement(on bool) {
	if g.enforce.Swap(on) != on {
		g.logger.Info(map[string]any{"enforce_whitelist": on}, "whitelist enforcement changed")
	}
	metrics.SetWhitelistEnforced(on)
}

// WhitelistEnforced reports whether non-whitelisted addresses are blocked.
func (g *Guard) WhitelistEnforced() bool {
	return g.enforce.Load()
}
