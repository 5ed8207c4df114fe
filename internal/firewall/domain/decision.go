package domain

import (
	"fmt"
	"net/netip"
)

// Verdict is the outcome of checking one request address.
type Verdict uint8

const (
	// Allowed lets the request through.
	Allowed Verdict = iota
	// BlockedByBlacklist means the address matched the blacklist.
	BlockedByBlacklist
	// BlockedByNotWhitelisted means enforcement is on and the address is not whitelisted.
	BlockedByNotWhitelisted
)

// String returns a stable string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case BlockedByBlacklist:
		return "blocked_by_blacklist"
	case BlockedByNotWhitelisted:
		return "blocked_by_not_whitelisted"
	default:
		return fmt.Sprintf("Verdict(%d)", v)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Verdict) UnmarshalText(text []byte) error {
	for _, c := range []Verdict{Allowed, BlockedByBlacklist, BlockedByNotWhitelisted} {
		if c.String() == string(text) {
			*v = c
			return nil
		}
	}
	return fmt.Errorf("unsupported verdict: %q", text)
}

// Decision is the verdict for an address plus the list that produced it.
// Pure value type, no transport concerns.
type Decision struct {
	Verdict Verdict    `json:"verdict"`
	Address netip.Addr `json:"address"`
	// MatchedList is Blacklist for BlockedByBlacklist, Whitelist for
	// BlockedByNotWhitelisted and for Allowed under enforcement, zero otherwise.
	MatchedList ListKind `json:"list,omitempty"`
}

// IsBlocked is a convenience accessor.
func (d Decision) IsBlocked() bool { return d.Verdict != Allowed }
