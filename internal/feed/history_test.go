package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAtReturnsOldestCoveringSample(t *testing.T) {
	h := NewHistory(2 * time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	h.Append(100, base)
	h.Append(101, base.Add(10*time.Second))
	h.Append(102, base.Add(20*time.Second))

	now := base.Add(30 * time.Second)

	price, ok := h.At(now, 25*time.Second)
	require.True(t, ok)
	assert.Equal(t, 101.0, price)

	price, ok = h.At(now, 10*time.Second)
	require.True(t, ok)
	assert.Equal(t, 102.0, price)
}

func TestHistoryAtUncoveredLookback(t *testing.T) {
	h := NewHistory(2 * time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.Append(100, base)

	_, ok := h.At(base.Add(10*time.Second), 30*time.Second)
	assert.False(t, ok)

	empty := NewHistory(2 * time.Minute)
	_, ok = empty.At(base, time.Second)
	assert.False(t, ok)
}

func TestHistoryEvictsBeyondRetention(t *testing.T) {
	h := NewHistory(time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		h.Append(float64(100+i), base.Add(time.Duration(i)*20*time.Second))
	}

	// Last append at base+180s, so everything before base+120s is gone.
	assert.Equal(t, 4, h.Len())

	// A 90s lookback now resolves to the oldest surviving sample at +120s.
	price, ok := h.At(base.Add(180*time.Second), 90*time.Second)
	require.True(t, ok)
	assert.Equal(t, 106.0, price)
}
