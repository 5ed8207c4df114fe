package domain

import (
	"fmt"
	"strings"
)

// ListKind identifies one of the two address lists.
type ListKind uint8

const (
	// Whitelist holds the addresses allowed through when whitelist enforcement is on.
	Whitelist ListKind = iota + 1
	// Blacklist holds the addresses that are always blocked.
	Blacklist
)

// ListKinds enumerates every valid list, in a stable order.
var ListKinds = []ListKind{Whitelist, Blacklist}

// String returns a stable string representation of the list kind.
func (l ListKind) String() string {
	switch l {
	case Whitelist:
		return "whitelist"
	case Blacklist:
		return "blacklist"
	default:
		return fmt.Sprintf("ListKind(%d)", l)
	}
}

// IsValid reports whether l is one of the known lists.
func (l ListKind) IsValid() bool {
	return l == Whitelist || l == Blacklist
}

// Index returns a zero-based slot for l, suitable for fixed-size per-list arrays.
// It must only be called on valid kinds.
func (l ListKind) Index() int {
	return int(l) - 1
}

// ParseListKind converts a string into a ListKind.
// Accepts: "whitelist", "blacklist", "allow", "deny" (case-insensitive).
func ParseListKind(s string) (ListKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "whitelist", "allow", "allowlist":
		return Whitelist, nil
	case "blacklist", "deny", "denylist":
		return Blacklist, nil
	default:
		return 0, fmt.Errorf("unsupported list: %q", s)
	}
}
