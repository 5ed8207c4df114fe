package bloom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizer_CommonCases(t *testing.T) {
	s := NewSizer()

	// n=1, p=1% -> m~10, k~7
	m, k := s.Size(1, 0.01)
	assert.GreaterOrEqual(t, m, uint64(10))
	assert.Equal(t, uint8(7), k)

	// n=1e6, p=1% -> m~9.585e6 bits
	m, k = s.Size(1_000_000, 0.01)
	assert.InDelta(t, 9_600_000, float64(m), 100_000)
	assert.Equal(t, uint8(7), k)

	m, k = s.Size(10_000, 0.5)
	assert.Equal(t, uint8(1), k)
	assert.NotZero(t, m)
}

func TestSizer_ClampingAndDefaults(t *testing.T) {
	s := NewSizer()

	m, k := s.Size(0, 0)
	assert.NotZero(t, m)
	assert.NotZero(t, k)

	m1, k1 := s.Size(100, 1.0)
	m2, k2 := s.Size(100, defaultFPRate)
	assert.Equal(t, m2, m1)
	assert.Equal(t, k2, k1)
}
