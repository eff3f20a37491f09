// Package registry tracks the lifecycle of the rolling 15-minute up/down
// markets: discovery of the current window, the no-new-orders closing
// buffer, lookahead discovery of the next window, and settlement handoff.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
	"github.com/updownlabs/updownbot/internal/platform/polymarket"
)

// searchTag is the Gamma event tag that groups the 15-minute series, used
// as the fallback discovery path when slug probing misses.
const searchTag = "15M"

// Discoverer is the slice of the Gamma client the registry needs.
type Discoverer interface {
	GetMarketBySlug(ctx context.Context, slug, asset string) (domain.Market, error)
	SearchUpDownMarkets(ctx context.Context, asset, tag string) ([]domain.Market, error)
}

// Registry holds the current and lookahead markets. All reads return copies.
type Registry struct {
	gamma         Discoverer
	asset         string
	closingBuffer time.Duration
	logger        *slog.Logger

	mu         sync.RWMutex
	current    domain.Market
	hasCurrent bool
	next       domain.Market
	hasNext    bool
}

// RefreshResult reports what changed during one Refresh pass.
type RefreshResult struct {
	Activated []domain.Market // markets that just became the active window
	Settled   []domain.Market // markets whose window expired this pass
}

// New creates a registry for one asset's up/down series.
func New(gamma Discoverer, asset string, closingBuffer time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		gamma:         gamma,
		asset:         asset,
		closingBuffer: closingBuffer,
		logger:        logger.With(slog.String("component", "registry")),
	}
}

// Current returns the market for the window containing now, with its state
// recomputed against now. The bool is false when no market is tracked or
// the tracked one has expired without a successor.
func (r *Registry) Current(now time.Time) (domain.Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.hasCurrent || r.current.Expired(now) {
		return domain.Market{}, false
	}
	m := r.current
	m.State = stateAt(m, now, r.closingBuffer)
	return m, true
}

// Refresh advances the lifecycle: it settles the current market once its
// window ends (promoting the lookahead market when one is ready), discovers
// the market for the current window when none is tracked, and discovers the
// next window's market during the closing buffer.
func (r *Registry) Refresh(ctx context.Context, now time.Time) (RefreshResult, error) {
	var res RefreshResult

	r.mu.Lock()
	if r.hasCurrent && r.current.Expired(now) {
		settled := r.current
		settled.State = domain.MarketSettled
		res.Settled = append(res.Settled, settled)
		r.hasCurrent = false

		if r.hasNext && !r.next.Expired(now) {
			r.current = r.next
			r.hasCurrent = true
			r.hasNext = false
			promoted := r.current
			promoted.State = stateAt(promoted, now, r.closingBuffer)
			res.Activated = append(res.Activated, promoted)
			r.logger.Info("promoted lookahead market",
				slog.String("slug", promoted.Slug),
				slog.Time("window_end", promoted.WindowEnd))
		}
	}
	needCurrent := !r.hasCurrent
	inBuffer := r.hasCurrent && r.current.InClosingBuffer(now, r.closingBuffer)
	needNext := inBuffer && !r.hasNext
	r.mu.Unlock()

	if needCurrent {
		market, err := r.discover(ctx, polymarket.CurrentWindowStart(now), now)
		if err != nil {
			if errors.Is(err, domain.ErrNoMarket) {
				r.logger.Warn("no market listed for current window")
				return res, nil
			}
			return res, err
		}
		r.mu.Lock()
		r.current = market
		r.hasCurrent = true
		r.mu.Unlock()
		market.State = stateAt(market, now, r.closingBuffer)
		res.Activated = append(res.Activated, market)
		r.logger.Info("discovered market",
			slog.String("slug", market.Slug),
			slog.Time("window_end", market.WindowEnd))
	}

	if needNext {
		nextStart := polymarket.CurrentWindowStart(now).Add(polymarket.WindowDuration)
		market, err := r.discover(ctx, nextStart, now)
		if err != nil {
			if errors.Is(err, domain.ErrNoMarket) {
				return res, nil
			}
			return res, err
		}
		r.mu.Lock()
		r.next = market
		r.hasNext = true
		r.mu.Unlock()
		r.logger.Info("discovered lookahead market", slog.String("slug", market.Slug))
	}

	return res, nil
}

// discover probes the deterministic slug for the window first and falls back
// to the tag search when the venue has not indexed the slug yet.
func (r *Registry) discover(ctx context.Context, windowStart, now time.Time) (domain.Market, error) {
	slug := polymarket.SlugForWindow(r.asset, windowStart)

	market, err := r.gamma.GetMarketBySlug(ctx, slug, r.asset)
	if err == nil {
		market.State = stateAt(market, now, r.closingBuffer)
		return market, nil
	}
	if !errors.Is(err, domain.ErrNoMarket) {
		return domain.Market{}, err
	}

	candidates, err := r.gamma.SearchUpDownMarkets(ctx, r.asset, searchTag)
	if err != nil {
		return domain.Market{}, err
	}
	for _, c := range candidates {
		if c.WindowStart.Equal(windowStart) {
			c.State = stateAt(c, now, r.closingBuffer)
			return c, nil
		}
	}
	return domain.Market{}, domain.ErrNoMarket
}

func stateAt(m domain.Market, now time.Time, buffer time.Duration) domain.MarketState {
	switch {
	case m.Expired(now):
		return domain.MarketSettled
	case m.InClosingBuffer(now, buffer):
		return domain.MarketClosing
	case now.Before(m.WindowStart):
		return domain.MarketDiscovered
	default:
		return domain.MarketActive
	}
}
