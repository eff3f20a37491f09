package strategy

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownlabs/updownbot/internal/config"
	"github.com/updownlabs/updownbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func activeMarket() domain.Market {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Market{
		ID:          "cond-1",
		Slug:        "btc-updown-15m-1772366400",
		Asset:       "BTC",
		WindowStart: start,
		WindowEnd:   start.Add(15 * time.Minute),
		UpTokenID:   "tok-up",
		DownTokenID: "tok-down",
		State:       domain.MarketActive,
	}
}

func pairSnapshot(upAsk, downAsk, askSize float64) Snapshot {
	m := activeMarket()
	return Snapshot{
		Market: m,
		Up:     domain.OutcomeQuote{TokenID: m.UpTokenID, Outcome: domain.OutcomeUp, BestAsk: upAsk, AskSize: askSize},
		Down:   domain.OutcomeQuote{TokenID: m.DownTokenID, Outcome: domain.OutcomeDown, BestAsk: downAsk, AskSize: askSize},
		UpOK:   true,
		DownOK: true,
	}
}

func TestPureArbEmitsPairUnderTarget(t *testing.T) {
	p := NewPureArb(config.PureConfig{TargetPairCost: 0.993, OrderSize: 50}, testLogger())
	now := time.Now().UTC()

	intents := p.Evaluate(now, pairSnapshot(0.47, 0.51, 200))
	require.Len(t, intents, 2)

	up, down := intents[0], intents[1]
	assert.Equal(t, domain.OutcomeUp, up.Outcome)
	assert.Equal(t, domain.OutcomeDown, down.Outcome)
	assert.Equal(t, "tok-up", up.TokenID)
	assert.Equal(t, "tok-down", down.TokenID)
	assert.Equal(t, domain.StrategyPure, up.Strategy)
	assert.Equal(t, domain.OrderSideBuy, up.Side)
	assert.Equal(t, 0.47, up.LimitPrice)
	assert.Equal(t, 0.51, down.LimitPrice)
	assert.Equal(t, 50.0, up.Size)
	assert.NotEqual(t, up.ID, down.ID)

	assert.InDelta(t, 0.98, up.Reason.PairCost, 1e-9)
	assert.Equal(t, up.Reason, down.Reason)
}

func TestPureArbSuppressesAtOrAboveTarget(t *testing.T) {
	p := NewPureArb(config.PureConfig{TargetPairCost: 0.993, OrderSize: 50}, testLogger())
	now := time.Now().UTC()

	// Exactly at target is not an edge.
	assert.Empty(t, p.Evaluate(now, pairSnapshot(0.493, 0.500, 200)))
	assert.Empty(t, p.Evaluate(now, pairSnapshot(0.50, 0.52, 200)))
}

func TestPureArbSuppressesThinBook(t *testing.T) {
	p := NewPureArb(config.PureConfig{TargetPairCost: 0.993, OrderSize: 50}, testLogger())
	now := time.Now().UTC()

	snap := pairSnapshot(0.47, 0.51, 200)
	snap.Down.AskSize = 49
	assert.Empty(t, p.Evaluate(now, snap))
}

func TestPureArbRequiresUsableQuotes(t *testing.T) {
	p := NewPureArb(config.PureConfig{TargetPairCost: 0.993, OrderSize: 50}, testLogger())
	now := time.Now().UTC()

	snap := pairSnapshot(0.47, 0.51, 200)
	snap.UpOK = false
	assert.Empty(t, p.Evaluate(now, snap))

	snap = pairSnapshot(0, 0.51, 200)
	assert.Empty(t, p.Evaluate(now, snap))
}

func TestPureArbRequiresActiveMarket(t *testing.T) {
	p := NewPureArb(config.PureConfig{TargetPairCost: 0.993, OrderSize: 50}, testLogger())
	now := time.Now().UTC()

	for _, state := range []domain.MarketState{domain.MarketDiscovered, domain.MarketClosing, domain.MarketSettled} {
		snap := pairSnapshot(0.47, 0.51, 200)
		snap.Market.State = state
		assert.Empty(t, p.Evaluate(now, snap), "state %s", state)
	}
}
