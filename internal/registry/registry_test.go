package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownlabs/updownbot/internal/domain"
	"github.com/updownlabs/updownbot/internal/platform/polymarket"
)

// fakeGamma serves markets keyed by slug and records lookups.
type fakeGamma struct {
	markets    map[string]domain.Market
	searchHits []domain.Market
	slugCalls  []string
	searchTags []string
	err        error
}

func (f *fakeGamma) GetMarketBySlug(_ context.Context, slug, _ string) (domain.Market, error) {
	f.slugCalls = append(f.slugCalls, slug)
	if f.err != nil {
		return domain.Market{}, f.err
	}
	m, ok := f.markets[slug]
	if !ok {
		return domain.Market{}, domain.ErrNoMarket
	}
	return m, nil
}

func (f *fakeGamma) SearchUpDownMarkets(_ context.Context, _, tag string) ([]domain.Market, error) {
	f.searchTags = append(f.searchTags, tag)
	if f.err != nil {
		return nil, f.err
	}
	return f.searchHits, nil
}

func marketAt(start time.Time) domain.Market {
	slug := polymarket.SlugForWindow("BTC", start)
	return domain.Market{
		ID:          "cond-" + slug,
		Slug:        slug,
		Asset:       "BTC",
		WindowStart: start,
		WindowEnd:   start.Add(polymarket.WindowDuration),
		UpTokenID:   "up-" + slug,
		DownTokenID: "down-" + slug,
		State:       domain.MarketDiscovered,
	}
}

func newTestRegistry(gamma *fakeGamma) *Registry {
	return New(gamma, "BTC", 30*time.Second, slog.New(slog.DiscardHandler))
}

func TestRefreshDiscoversCurrentWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start.Add(2 * time.Minute)
	m := marketAt(start)

	gamma := &fakeGamma{markets: map[string]domain.Market{m.Slug: m}}
	r := newTestRegistry(gamma)

	res, err := r.Refresh(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, res.Activated, 1)
	assert.Equal(t, m.Slug, res.Activated[0].Slug)
	assert.Equal(t, domain.MarketActive, res.Activated[0].State)
	assert.Empty(t, res.Settled)

	current, ok := r.Current(now)
	require.True(t, ok)
	assert.Equal(t, m.Slug, current.Slug)
	assert.Equal(t, domain.MarketActive, current.State)
}

func TestRefreshFallsBackToTagSearch(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start.Add(time.Minute)
	m := marketAt(start)

	gamma := &fakeGamma{
		markets:    map[string]domain.Market{},
		searchHits: []domain.Market{marketAt(start.Add(-15 * time.Minute)), m},
	}
	r := newTestRegistry(gamma)

	res, err := r.Refresh(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, res.Activated, 1)
	assert.Equal(t, m.Slug, res.Activated[0].Slug)
	assert.Equal(t, []string{"15M"}, gamma.searchTags)
}

func TestRefreshNoMarketListed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	gamma := &fakeGamma{markets: map[string]domain.Market{}}
	r := newTestRegistry(gamma)

	res, err := r.Refresh(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, res.Activated)

	_, ok := r.Current(now)
	assert.False(t, ok)
}

func TestRefreshPropagatesVenueError(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	gamma := &fakeGamma{err: errors.New("gamma down")}
	r := newTestRegistry(gamma)

	_, err := r.Refresh(context.Background(), now)
	assert.Error(t, err)
}

func TestClosingBufferDiscoversLookahead(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	nextStart := start.Add(15 * time.Minute)
	current, next := marketAt(start), marketAt(nextStart)

	gamma := &fakeGamma{markets: map[string]domain.Market{
		current.Slug: current,
		next.Slug:    next,
	}}
	r := newTestRegistry(gamma)

	_, err := r.Refresh(context.Background(), start.Add(time.Minute))
	require.NoError(t, err)

	// Inside the 30s closing buffer the next window gets discovered.
	inBuffer := start.Add(15*time.Minute - 10*time.Second)
	res, err := r.Refresh(context.Background(), inBuffer)
	require.NoError(t, err)
	assert.Empty(t, res.Activated)

	m, ok := r.Current(inBuffer)
	require.True(t, ok)
	assert.Equal(t, domain.MarketClosing, m.State)

	// After expiry the lookahead is promoted without a venue round trip.
	gamma.slugCalls = nil
	afterExpiry := nextStart.Add(time.Second)
	res, err = r.Refresh(context.Background(), afterExpiry)
	require.NoError(t, err)

	require.Len(t, res.Settled, 1)
	assert.Equal(t, current.Slug, res.Settled[0].Slug)
	assert.Equal(t, domain.MarketSettled, res.Settled[0].State)

	require.Len(t, res.Activated, 1)
	assert.Equal(t, next.Slug, res.Activated[0].Slug)
	assert.Empty(t, gamma.slugCalls)

	m, ok = r.Current(afterExpiry)
	require.True(t, ok)
	assert.Equal(t, next.Slug, m.Slug)
	assert.Equal(t, domain.MarketActive, m.State)
}

func TestExpiryWithoutLookaheadRediscovers(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	nextStart := start.Add(15 * time.Minute)
	current, next := marketAt(start), marketAt(nextStart)

	gamma := &fakeGamma{markets: map[string]domain.Market{current.Slug: current}}
	r := newTestRegistry(gamma)

	_, err := r.Refresh(context.Background(), start.Add(time.Minute))
	require.NoError(t, err)

	// The next window only becomes listable after the old one expired.
	gamma.markets[next.Slug] = next
	afterExpiry := nextStart.Add(time.Second)
	res, err := r.Refresh(context.Background(), afterExpiry)
	require.NoError(t, err)

	require.Len(t, res.Settled, 1)
	require.Len(t, res.Activated, 1)
	assert.Equal(t, next.Slug, res.Activated[0].Slug)
}

func TestCurrentExpiredReturnsFalse(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := marketAt(start)
	gamma := &fakeGamma{markets: map[string]domain.Market{m.Slug: m}}
	r := newTestRegistry(gamma)

	_, err := r.Refresh(context.Background(), start.Add(time.Minute))
	require.NoError(t, err)

	_, ok := r.Current(start.Add(16 * time.Minute))
	assert.False(t, ok)
}
