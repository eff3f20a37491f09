package feed

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownlabs/updownbot/internal/config"
)

func testFeed() *Binance {
	cfg := config.FeedConfig{
		Symbol:        "BTCUSDT",
		MaxTickAge:    config.Duration{Duration: 10 * time.Second},
		MaxReconnects: 5,
		BackoffBase:   config.Duration{Duration: time.Second},
		BackoffCap:    config.Duration{Duration: 30 * time.Second},
	}
	return NewBinance(cfg, slog.New(slog.DiscardHandler))
}

func TestRecordAndLatest(t *testing.T) {
	b := testFeed()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b.record(65000, at)
	b.record(65100, at.Add(time.Second))

	tick := b.Latest()
	assert.Equal(t, 65100.0, tick.Price)
	assert.Equal(t, uint64(2), tick.Seq)
}

func TestRecordDropsOutOfOrderTicks(t *testing.T) {
	b := testFeed()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b.record(65100, at.Add(time.Second))
	b.record(64000, at) // older than latest

	assert.Equal(t, 65100.0, b.Latest().Price)
	assert.Equal(t, uint64(1), b.Latest().Seq)
}

func TestHealthy(t *testing.T) {
	b := testFeed()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// No data yet.
	assert.False(t, b.Healthy(at))

	b.record(65000, at)
	assert.True(t, b.Healthy(at.Add(5*time.Second)))
	assert.False(t, b.Healthy(at.Add(11*time.Second)))
}

func TestHealthyAfterConsecutiveFailures(t *testing.T) {
	b := testFeed()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.record(65000, at)

	for i := 0; i < 5; i++ {
		b.addFailure()
	}
	assert.False(t, b.Healthy(at.Add(time.Second)))

	// A successful tick clears the failure streak.
	b.record(65050, at.Add(2*time.Second))
	assert.True(t, b.Healthy(at.Add(3*time.Second)))
}

func TestChangePct(t *testing.T) {
	b := testFeed()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b.record(65000, at)
	b.record(65130, at.Add(30*time.Second))

	now := at.Add(30 * time.Second)
	change, ok := b.ChangePct(now, 30*time.Second)
	require.True(t, ok)
	assert.InDelta(t, 0.2, change, 1e-9)

	// Lookback not covered yet.
	_, ok = b.ChangePct(now, 5*time.Minute)
	require.True(t, ok) // resolves to the oldest sample
	_, ok = testFeed().ChangePct(now, 30*time.Second)
	assert.False(t, ok)
}

func TestWindowOpenPricePinning(t *testing.T) {
	b := testFeed()
	windowStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b.record(65000, windowStart)
	b.MarkWindowOpen(windowStart)

	// Later ticks do not move the pinned open.
	b.record(66000, windowStart.Add(time.Minute))
	b.MarkWindowOpen(windowStart)

	price, ok := b.WindowOpenPrice(windowStart.Add(5*time.Minute), windowStart)
	require.True(t, ok)
	assert.Equal(t, 65000.0, price)
}

func TestWindowOpenPriceFallsBackToHistory(t *testing.T) {
	b := testFeed()
	windowStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b.record(65000, windowStart)
	b.record(65500, windowStart.Add(2*time.Minute))

	// Never marked; history still covers the window start.
	price, ok := b.WindowOpenPrice(windowStart.Add(2*time.Minute), windowStart)
	require.True(t, ok)
	assert.Equal(t, 65000.0, price)
}

func TestMarkWindowOpenWithoutDataIsNoOp(t *testing.T) {
	b := testFeed()
	windowStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b.MarkWindowOpen(windowStart)
	_, ok := b.WindowOpenPrice(windowStart, windowStart)
	assert.False(t, ok)
}
