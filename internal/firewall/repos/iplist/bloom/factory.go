package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
)

// factory implements iplist.BloomFactory.
type factory struct {
	sizer iplist.BloomSizer
}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() iplist.BloomFactory { return factory{sizer: NewSizer()} }

// New constructs a filter sized for capacity addresses at the target false-positive rate.
func (f factory) New(capacity uint64, fpRate float64) iplist.BloomFilter {
	m, k := f.sizer.Size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}
