package book

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownlabs/updownbot/internal/domain"
)

// fakeSource serves canned snapshots and can be flipped into failure mode.
type fakeSource struct {
	snaps map[string]domain.BookSnapshot
	fail  bool
}

func (f *fakeSource) GetOrderBook(_ context.Context, tokenID string) (domain.BookSnapshot, error) {
	if f.fail {
		return domain.BookSnapshot{}, errors.New("venue unavailable")
	}
	snap, ok := f.snaps[tokenID]
	if !ok {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func testMarket() domain.Market {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Market{
		ID:          "cond-1",
		Slug:        "btc-updown-15m-1772366400",
		UpTokenID:   "tok-up",
		DownTokenID: "tok-down",
		WindowStart: start,
		WindowEnd:   start.Add(15 * time.Minute),
		State:       domain.MarketActive,
	}
}

func snapshotAt(tokenID string, at time.Time, askPrice, askSize float64) domain.BookSnapshot {
	return domain.BookSnapshot{
		TokenID:   tokenID,
		Bids:      []domain.PriceLevel{{Price: askPrice - 0.02, Size: 100}},
		Asks:      []domain.PriceLevel{{Price: askPrice, Size: askSize}},
		Timestamp: at,
	}
}

func TestPollAndQuote(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	src := &fakeSource{snaps: map[string]domain.BookSnapshot{
		"tok-up":   snapshotAt("tok-up", now, 0.47, 200),
		"tok-down": snapshotAt("tok-down", now, 0.51, 150),
	}}
	v := NewView(src, 10*time.Second, slog.New(slog.DiscardHandler))

	v.Poll(context.Background(), testMarket())

	q, ok := v.Quote("tok-up", domain.OutcomeUp, now)
	require.True(t, ok)
	assert.Equal(t, 0.47, q.BestAsk)
	assert.Equal(t, 200.0, q.AskSize)
	assert.Equal(t, 0.45, q.BestBid)

	q, ok = v.Quote("tok-down", domain.OutcomeDown, now)
	require.True(t, ok)
	assert.Equal(t, 0.51, q.BestAsk)
}

func TestQuoteStaleness(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	src := &fakeSource{snaps: map[string]domain.BookSnapshot{
		"tok-up":   snapshotAt("tok-up", at, 0.47, 200),
		"tok-down": snapshotAt("tok-down", at, 0.51, 150),
	}}
	v := NewView(src, 10*time.Second, slog.New(slog.DiscardHandler))
	v.Poll(context.Background(), testMarket())

	_, ok := v.Quote("tok-up", domain.OutcomeUp, at.Add(11*time.Second))
	assert.False(t, ok)

	_, ok = v.Quote("unknown", domain.OutcomeUp, at)
	assert.False(t, ok)
}

func TestFailedPollKeepsPreviousSnapshot(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	src := &fakeSource{snaps: map[string]domain.BookSnapshot{
		"tok-up":   snapshotAt("tok-up", at, 0.47, 200),
		"tok-down": snapshotAt("tok-down", at, 0.51, 150),
	}}
	v := NewView(src, 10*time.Second, slog.New(slog.DiscardHandler))
	v.Poll(context.Background(), testMarket())

	src.fail = true
	v.Poll(context.Background(), testMarket())

	q, ok := v.Quote("tok-up", domain.OutcomeUp, at.Add(2*time.Second))
	require.True(t, ok)
	assert.Equal(t, 0.47, q.BestAsk)
}

func TestForgetDropsBooks(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	src := &fakeSource{snaps: map[string]domain.BookSnapshot{
		"tok-up":   snapshotAt("tok-up", at, 0.47, 200),
		"tok-down": snapshotAt("tok-down", at, 0.51, 150),
	}}
	v := NewView(src, 10*time.Second, slog.New(slog.DiscardHandler))
	v.Poll(context.Background(), testMarket())

	v.Forget(testMarket())
	_, ok := v.Quote("tok-up", domain.OutcomeUp, at)
	assert.False(t, ok)
	_, ok = v.Quote("tok-down", domain.OutcomeDown, at)
	assert.False(t, ok)
}

func TestEstimateBuyFromWalksLadder(t *testing.T) {
	snap := domain.BookSnapshot{
		TokenID: "tok-up",
		Asks: []domain.PriceLevel{
			{Price: 0.50, Size: 40},
			{Price: 0.52, Size: 60},
			{Price: 0.55, Size: 100},
		},
	}

	est := EstimateBuyFrom(snap, 100)
	assert.Equal(t, 100.0, est.Filled)
	assert.True(t, est.Complete(100))
	assert.Equal(t, 0.50, est.Best)
	assert.Equal(t, 0.52, est.Worst)
	// 40*0.50 + 60*0.52 = 51.20
	assert.InDelta(t, 51.20, est.Cost, 1e-9)
	assert.InDelta(t, 0.512, est.VWAP, 1e-9)
}

func TestEstimateBuyFromPartialDepth(t *testing.T) {
	snap := domain.BookSnapshot{
		TokenID: "tok-up",
		Asks:    []domain.PriceLevel{{Price: 0.50, Size: 30}},
	}

	est := EstimateBuyFrom(snap, 100)
	assert.Equal(t, 30.0, est.Filled)
	assert.False(t, est.Complete(100))
	assert.Equal(t, 0.50, est.Worst)

	est = EstimateBuyFrom(domain.BookSnapshot{}, 100)
	assert.Zero(t, est.Filled)
	assert.Zero(t, est.VWAP)
}
