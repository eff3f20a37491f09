// Package book maintains top-of-book views for the two outcome tokens of
// the active market and estimates marketable fills by walking ask depth.
package book

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
)

// Source is the slice of the CLOB client the view needs.
type Source interface {
	GetOrderBook(ctx context.Context, tokenID string) (domain.BookSnapshot, error)
}

// View caches the latest book snapshot per token. A failed poll keeps the
// previous snapshot so readers see stale-but-marked data instead of gaps;
// staleness is enforced at read time via the max age.
type View struct {
	source Source
	maxAge time.Duration
	logger *slog.Logger

	mu    sync.RWMutex
	books map[string]domain.BookSnapshot
}

// NewView creates a book view with the given staleness horizon.
func NewView(source Source, maxAge time.Duration, logger *slog.Logger) *View {
	return &View{
		source: source,
		maxAge: maxAge,
		logger: logger.With(slog.String("component", "book")),
		books:  make(map[string]domain.BookSnapshot),
	}
}

// Poll refreshes both outcome books of the market. Per-token failures are
// logged and skipped; the last good snapshot stays in place.
func (v *View) Poll(ctx context.Context, market domain.Market) {
	for _, tokenID := range []string{market.UpTokenID, market.DownTokenID} {
		snap, err := v.source.GetOrderBook(ctx, tokenID)
		if err != nil {
			v.logger.Warn("book poll failed, keeping previous snapshot",
				slog.String("token_id", tokenID),
				slog.String("error", err.Error()))
			continue
		}
		v.mu.Lock()
		v.books[tokenID] = snap
		v.mu.Unlock()
	}
}

// Quote returns the top-of-book quote for the token. The bool is false when
// no snapshot exists or the snapshot has aged past the staleness horizon.
func (v *View) Quote(tokenID string, outcome domain.Outcome, now time.Time) (domain.OutcomeQuote, bool) {
	v.mu.RLock()
	snap, ok := v.books[tokenID]
	v.mu.RUnlock()
	if !ok {
		return domain.OutcomeQuote{}, false
	}

	q := snap.Quote(outcome)
	if !q.Usable(now, v.maxAge) {
		return domain.OutcomeQuote{}, false
	}
	return q, true
}

// Forget drops cached books for tokens of a settled market.
func (v *View) Forget(market domain.Market) {
	v.mu.Lock()
	delete(v.books, market.UpTokenID)
	delete(v.books, market.DownTokenID)
	v.mu.Unlock()
}

// FillEstimate describes what a marketable buy of a given size would cost
// against current ask depth.
type FillEstimate struct {
	Filled float64 // shares available up to the requested size
	VWAP   float64 // volume-weighted average fill price
	Worst  float64 // deepest level touched
	Best   float64 // top-of-book ask
	Cost   float64 // Filled * VWAP
}

// Complete reports whether the full requested size is available.
func (e FillEstimate) Complete(size float64) bool {
	return e.Filled >= size
}

// EstimateBuy walks the ask ladder for a buy of size shares. The bool is
// false when no usable snapshot exists.
func (v *View) EstimateBuy(tokenID string, size float64, now time.Time) (FillEstimate, bool) {
	v.mu.RLock()
	snap, ok := v.books[tokenID]
	v.mu.RUnlock()
	if !ok || snap.Timestamp.Add(v.maxAge).Before(now) {
		return FillEstimate{}, false
	}
	return EstimateBuyFrom(snap, size), true
}

// EstimateBuyFrom computes the fill for a buy of size shares against a
// snapshot's asks, cheapest level first.
func EstimateBuyFrom(snap domain.BookSnapshot, size float64) FillEstimate {
	var est FillEstimate
	if len(snap.Asks) == 0 || size <= 0 {
		return est
	}
	est.Best = snap.Asks[0].Price

	remaining := size
	for _, lvl := range snap.Asks {
		if remaining <= 0 {
			break
		}
		take := lvl.Size
		if take > remaining {
			take = remaining
		}
		est.Filled += take
		est.Cost += take * lvl.Price
		est.Worst = lvl.Price
		remaining -= take
	}
	if est.Filled > 0 {
		est.VWAP = est.Cost / est.Filled
	}
	return est
}
