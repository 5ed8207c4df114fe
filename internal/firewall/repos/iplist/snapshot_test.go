package iplist

import (
	"math/rand"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/ipguard/internal/firewall/domain"
)

// setFactory is an exact BloomFactory so snapshot tests do not depend on the
// bloom package.
type setFactory struct{}

type setFilter map[string]struct{}

func (setFactory) New(uint64, float64) BloomFilter { return setFilter{} }
func (f setFilter) Add(key []byte)                 { f[string(key)] = struct{}{} }
func (f setFilter) MightContain(key []byte) bool {
	_, ok := f[string(key)]
	return ok
}

func entries(t *testing.T, raws ...string) []domain.Entry {
	t.Helper()
	out := make([]domain.Entry, 0, len(raws))
	for _, raw := range raws {
		e, err := domain.NewEntry(domain.MustParsePattern(raw), domain.Whitelist, "", "", testNow)
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestSnapshot_Contains(t *testing.T) {
	snap := newSnapshot(domain.Whitelist, 3, entries(t,
		"192.168.1.1",
		"10.0.0.0/8",
		"172.16.*.5",
		"2001:db8::/32",
		"fe80::1",
		"0.0.0.0/0",
	), setFactory{}, 0.01)

	tests := []struct {
		addr string
		want bool
	}{
		{"192.168.1.1", true},
		{"::ffff:192.168.1.1", true},
		{"10.255.0.1", true},
		{"172.16.200.5", true},
		{"172.16.200.6", true}, // 0.0.0.0/0
		{"2001:db8:1::1", true},
		{"fe80::1", true},
		{"fe80::1%eth0", true},
		{"fe80::2", false},
		{"2001:db9::1", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, snap.Contains(netip.MustParseAddr(tt.addr)), tt.addr)
	}
	assert.False(t, snap.Contains(netip.Addr{}))
	assert.Equal(t, 6, snap.Len())
	assert.Equal(t, uint64(3), snap.Version())
}

func TestSnapshot_EmptyAndNoBloom(t *testing.T) {
	empty := newSnapshot(domain.Blacklist, 0, nil, setFactory{}, 0.01)
	assert.False(t, empty.Contains(netip.MustParseAddr("1.1.1.1")))
	assert.Empty(t, empty.Entries())

	noBloom := newSnapshot(domain.Blacklist, 0, entries(t, "1.1.1.1"), nil, 0.01)
	assert.True(t, noBloom.Contains(netip.MustParseAddr("1.1.1.1")))
}

func TestSnapshot_EntriesIsACopy(t *testing.T) {
	snap := newSnapshot(domain.Whitelist, 0, entries(t, "1.1.1.1", "2.2.2.2"), nil, 0.01)
	got := snap.Entries()
	got[0].Note = "changed"
	assert.Equal(t, "", snap.Entries()[0].Note)
}

// TestSnapshot_AgreesWithMatcher checks the indexed lookup against a plain
// scan over every pattern for random addresses.
func TestSnapshot_AgreesWithMatcher(t *testing.T) {
	raws := []string{
		"10.0.0.0/8", "10.20.0.0/16", "192.168.0.0/24", "192.168.0.77",
		"172.16.*.*", "*.*.*.1", "100.64.0.0/10", "8.8.8.8",
		"2001:db8::/48", "2001:db8:0:1::1", "fc00::/7", "::1",
	}
	es := entries(t, raws...)
	snap := newSnapshot(domain.Whitelist, 0, es, setFactory{}, 0.01)

	var pats []domain.Pattern
	for _, e := range es {
		pats = append(pats, e.Pattern)
	}

	rng := rand.New(rand.NewSource(42))
	interesting4 := [][4]byte{{10, 0, 0, 0}, {10, 20, 0, 0}, {192, 168, 0, 0}, {172, 16, 0, 0}, {100, 64, 0, 0}, {8, 8, 8, 8}}
	interesting6 := []netip.Addr{netip.MustParseAddr("2001:db8::"), netip.MustParseAddr("fc00::"), netip.MustParseAddr("::")}
	for i := 0; i < 5000; i++ {
		var a netip.Addr
		if i%2 == 0 {
			b := interesting4[rng.Intn(len(interesting4))]
			for j := 2 + rng.Intn(3); j < 4; j++ {
				b[j] = byte(rng.Intn(256))
			}
			a = netip.AddrFrom4(b)
		} else {
			b := interesting6[rng.Intn(len(interesting6))].As16()
			for j := 6 + rng.Intn(10); j < 16; j++ {
				b[j] = byte(rng.Intn(256))
			}
			a = netip.AddrFrom16(b)
		}
		assert.Equal(t, domain.MatchesAny(a, pats), snap.Contains(a), a.String())
	}
}

func BenchmarkSnapshot_Contains(b *testing.B) {
	var es []domain.Entry
	for i := 0; i < 1000; i++ {
		p := netip.PrefixFrom(netip.AddrFrom4([4]byte{10, byte(i >> 8), byte(i), 0}), 24)
		e, _ := domain.NewEntry(domain.MustParsePattern(p.String()), domain.Blacklist, "", "", testNow)
		es = append(es, e)
	}
	snap := newSnapshot(domain.Blacklist, 0, es, setFactory{}, 0.01)
	addr := netip.MustParseAddr("10.3.200.17")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = snap.Contains(addr)
	}
}
