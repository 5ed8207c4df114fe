package domain

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// PatternKind defines how a pattern matches addresses.
//
// exact    - a single IPv4 or IPv6 address
// cidr     - every address inside base/prefix
// wildcard - an IPv4 dotted quad where any octet may be "*"
type PatternKind uint8

const (
	// PatternExact matches one address.
	PatternExact PatternKind = iota + 1
	// PatternCIDR matches a network block.
	PatternCIDR
	// PatternWildcard matches an IPv4 address octet by octet.
	PatternWildcard
)

// String returns a stable string representation of the pattern kind.
func (k PatternKind) String() string {
	switch k {
	case PatternExact:
		return "exact"
	case PatternCIDR:
		return "cidr"
	case PatternWildcard:
		return "wildcard"
	default:
		return fmt.Sprintf("PatternKind(%d)", k)
	}
}

// wildOctet is one position of a wildcard pattern.
type wildOctet struct {
	value uint8
	any   bool
}

// Pattern is an immutable, validated address pattern. The zero value is not a
// valid pattern; construct one with ParsePattern.
//
// Pattern is comparable and may be used as a map key. Two patterns are equal
// iff their canonical String forms are equal.
type Pattern struct {
	kind   PatternKind
	addr   netip.Addr
	prefix netip.Prefix
	octets [4]wildOctet
}

// ParsePattern validates the textual form of an exact address, a CIDR block,
// or an IPv4 wildcard and returns the canonical Pattern. Malformed input yields
// an *InvalidPatternError.
func ParsePattern(s string) (Pattern, error) {
	raw := strings.TrimSpace(s)
	switch {
	case raw == "":
		return Pattern{}, invalidPattern(s, "empty pattern")
	case strings.Contains(raw, "*"):
		return parseWildcard(s, raw)
	case strings.Contains(raw, "/"):
		return parseCIDR(s, raw)
	default:
		return parseExact(s, raw)
	}
}

// MustParsePattern is like ParsePattern but panics on error. Intended for
// tests and static tables.
func MustParsePattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parseExact(input, raw string) (Pattern, error) {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return Pattern{}, invalidPattern(input, "not an IP address")
	}
	return Pattern{kind: PatternExact, addr: NormalizeAddr(addr)}, nil
}

func parseCIDR(input, raw string) (Pattern, error) {
	base, bitsText, _ := strings.Cut(raw, "/")
	if strings.Contains(bitsText, "/") {
		return Pattern{}, invalidPattern(input, "more than one prefix separator")
	}
	addr, err := netip.ParseAddr(base)
	if err != nil {
		return Pattern{}, invalidPattern(input, "base is not an IP address")
	}
	if addr.Zone() != "" {
		return Pattern{}, invalidPattern(input, "zoned base address")
	}
	if !isDigits(bitsText) {
		return Pattern{}, invalidPattern(input, "prefix length %q is not numeric", bitsText)
	}
	bits, err := strconv.Atoi(bitsText)
	if err != nil || bits > addr.BitLen() {
		return Pattern{}, invalidPattern(input, "prefix length %s out of range 0-%d", bitsText, addr.BitLen())
	}
	if addr.Is4In6() && bits >= 96 {
		addr = addr.Unmap()
		bits -= 96
	}
	prefix := netip.PrefixFrom(addr, bits).Masked()
	return Pattern{kind: PatternCIDR, prefix: prefix}, nil
}

func parseWildcard(input, raw string) (Pattern, error) {
	if strings.Contains(raw, ":") {
		return Pattern{}, invalidPattern(input, "wildcards are only supported for IPv4")
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 4 {
		return Pattern{}, invalidPattern(input, "expected 4 octets, got %d", len(parts))
	}
	p := Pattern{kind: PatternWildcard}
	for i, part := range parts {
		if part == "*" {
			p.octets[i] = wildOctet{any: true}
			continue
		}
		if !isDigits(part) || len(part) > 3 {
			return Pattern{}, invalidPattern(input, "octet %d (%q) is not numeric", i+1, part)
		}
		v, err := strconv.Atoi(part)
		if err != nil || v > 255 {
			return Pattern{}, invalidPattern(input, "octet %d (%q) out of range 0-255", i+1, part)
		}
		p.octets[i] = wildOctet{value: uint8(v)}
	}
	return p, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Kind returns the pattern kind.
func (p Pattern) Kind() PatternKind { return p.kind }

// IsZero reports whether p is the zero (unparsed) pattern.
func (p Pattern) IsZero() bool { return p.kind == 0 }

// Addr returns the address of an exact pattern, or the zero Addr otherwise.
func (p Pattern) Addr() netip.Addr { return p.addr }

// Prefix returns the network of a CIDR pattern, or the zero Prefix otherwise.
func (p Pattern) Prefix() netip.Prefix { return p.prefix }

// AnyOctets returns the number of "*" positions of a wildcard pattern.
func (p Pattern) AnyOctets() int {
	if p.kind != PatternWildcard {
		return 0
	}
	n := 0
	for _, o := range p.octets {
		if o.any {
			n++
		}
	}
	return n
}

// String returns the canonical textual form.
func (p Pattern) String() string {
	switch p.kind {
	case PatternExact:
		return p.addr.String()
	case PatternCIDR:
		return p.prefix.String()
	case PatternWildcard:
		var b strings.Builder
		for i, o := range p.octets {
			if i > 0 {
				b.WriteByte('.')
			}
			if o.any {
				b.WriteByte('*')
			} else {
				b.WriteString(strconv.Itoa(int(o.value)))
			}
		}
		return b.String()
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Pattern) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return nil, fmt.Errorf("marshal zero pattern")
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pattern) UnmarshalText(text []byte) error {
	parsed, err := ParsePattern(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
