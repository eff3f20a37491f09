// Package strategy contains the two signal generators: pure arbitrage on
// mispriced outcome pairs and temporal arbitrage on reference price
// momentum. Strategies are pure functions of a market snapshot; they never
// touch the venue or the risk ledger.
package strategy

import (
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
)

// Momentum is one reference-price lookback observation.
type Momentum struct {
	Lookback  time.Duration
	ChangePct float64
}

// Snapshot bundles everything a strategy may inspect for one evaluation.
// Quote validity flags are false when the quote is missing or stale; the
// strategies treat that as a hard suppression.
type Snapshot struct {
	Market domain.Market
	Up     domain.OutcomeQuote
	Down   domain.OutcomeQuote
	UpOK   bool
	DownOK bool

	Reference   domain.ReferenceTick
	FeedHealthy bool

	// WindowOpenPrice is the reference price pinned when the market window
	// opened; WindowChangePct is the move since then.
	WindowOpenPrice float64
	WindowChangePct float64
	WindowChangeOK  bool

	// Momenta holds short-lookback reference moves, shortest first. Entries
	// exist only when history covers the lookback.
	Momenta []Momentum
}

// Strategy evaluates one snapshot and returns zero or more buy intents.
type Strategy interface {
	Name() domain.StrategyTag
	Evaluate(now time.Time, snap Snapshot) []domain.OrderIntent
}

// tradeableState reports whether new orders may target the market: only an
// active window outside the closing buffer accepts entries.
func tradeableState(m domain.Market) bool {
	return m.State == domain.MarketActive
}
