package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownlabs/updownbot/internal/config"
	"github.com/updownlabs/updownbot/internal/domain"
)

func temporalConfig() config.TemporalConfig {
	return config.TemporalConfig{
		Enabled:             true,
		OrderSize:           100,
		ConfidenceThreshold: 0.70,
		PriceThreshold:      0.55,
	}
}

func momentumSnapshot(windowChangePct float64, momenta []Momentum) Snapshot {
	m := activeMarket()
	return Snapshot{
		Market:          m,
		Up:              domain.OutcomeQuote{TokenID: m.UpTokenID, Outcome: domain.OutcomeUp, BestAsk: 0.52, AskSize: 500},
		Down:            domain.OutcomeQuote{TokenID: m.DownTokenID, Outcome: domain.OutcomeDown, BestAsk: 0.50, AskSize: 500},
		UpOK:            true,
		DownOK:          true,
		Reference:       domain.ReferenceTick{Price: 65000, Timestamp: time.Now().UTC(), Seq: 10},
		FeedHealthy:     true,
		WindowOpenPrice: 64700,
		WindowChangePct: windowChangePct,
		WindowChangeOK:  true,
		Momenta:         momenta,
	}
}

func strongUpMomenta() []Momentum {
	return []Momentum{
		{Lookback: 15 * time.Second, ChangePct: 0.10},
		{Lookback: 30 * time.Second, ChangePct: 0.20},
		{Lookback: 60 * time.Second, ChangePct: 0.60},
	}
}

func TestTemporalEmitsUpIntentOnStrongMomentum(t *testing.T) {
	s := NewTemporal(temporalConfig(), testLogger())
	now := time.Now().UTC()

	snap := momentumSnapshot(0.45, strongUpMomenta())
	intents := s.Evaluate(now, snap)
	require.Len(t, intents, 1)

	intent := intents[0]
	assert.Equal(t, domain.StrategyTemporal, intent.Strategy)
	assert.Equal(t, domain.OutcomeUp, intent.Outcome)
	assert.Equal(t, "tok-up", intent.TokenID)
	assert.Equal(t, 0.52, intent.LimitPrice)
	assert.Equal(t, 100.0, intent.Size)
	assert.Equal(t, 0.45, intent.Reason.ChangePct)
	assert.Equal(t, 64700.0, intent.Reason.WindowOpen)
	assert.GreaterOrEqual(t, intent.Reason.Confidence, 0.70)
}

func TestTemporalEmitsDownIntentOnNegativeMomentum(t *testing.T) {
	s := NewTemporal(temporalConfig(), testLogger())
	now := time.Now().UTC()

	snap := momentumSnapshot(-0.45, []Momentum{
		{Lookback: 15 * time.Second, ChangePct: -0.10},
		{Lookback: 30 * time.Second, ChangePct: -0.20},
		{Lookback: 60 * time.Second, ChangePct: -0.60},
	})
	intents := s.Evaluate(now, snap)
	require.Len(t, intents, 1)
	assert.Equal(t, domain.OutcomeDown, intents[0].Outcome)
	assert.Equal(t, "tok-down", intents[0].TokenID)
	assert.Equal(t, 0.50, intents[0].LimitPrice)
}

func TestTemporalVetoesOnDisagreement(t *testing.T) {
	s := NewTemporal(temporalConfig(), testLogger())
	now := time.Now().UTC()

	momenta := strongUpMomenta()
	momenta[1].ChangePct = -0.20
	assert.Empty(t, s.Evaluate(now, momentumSnapshot(0.45, momenta)))
}

func TestTemporalVetoesOnFlatSignal(t *testing.T) {
	s := NewTemporal(temporalConfig(), testLogger())
	now := time.Now().UTC()

	assert.Empty(t, s.Evaluate(now, momentumSnapshot(0, strongUpMomenta())))

	momenta := strongUpMomenta()
	momenta[0].ChangePct = 0
	assert.Empty(t, s.Evaluate(now, momentumSnapshot(0.45, momenta)))
}

func TestTemporalSuppressesBelowConfidenceThreshold(t *testing.T) {
	s := NewTemporal(temporalConfig(), testLogger())
	now := time.Now().UTC()

	snap := momentumSnapshot(0.06, []Momentum{
		{Lookback: 15 * time.Second, ChangePct: 0.05},
		{Lookback: 30 * time.Second, ChangePct: 0.06},
		{Lookback: 60 * time.Second, ChangePct: 0.06},
	})
	assert.Empty(t, s.Evaluate(now, snap))
}

func TestTemporalSuppressesAbovePriceThreshold(t *testing.T) {
	s := NewTemporal(temporalConfig(), testLogger())
	now := time.Now().UTC()

	snap := momentumSnapshot(0.45, strongUpMomenta())
	snap.Up.BestAsk = 0.56
	assert.Empty(t, s.Evaluate(now, snap))

	// Exactly at the threshold still trades.
	snap.Up.BestAsk = 0.55
	assert.Len(t, s.Evaluate(now, snap), 1)
}

func TestTemporalOneFillPerWindow(t *testing.T) {
	s := NewTemporal(temporalConfig(), testLogger())
	now := time.Now().UTC()
	snap := momentumSnapshot(0.45, strongUpMomenta())

	require.Len(t, s.Evaluate(now, snap), 1)

	s.MarkFilled(snap.Market.ID)
	assert.Empty(t, s.Evaluate(now, snap))

	s.Forget(snap.Market.ID)
	assert.Len(t, s.Evaluate(now, snap), 1)
}

func TestTemporalRequiresHealthyFeedAndWindowOpen(t *testing.T) {
	s := NewTemporal(temporalConfig(), testLogger())
	now := time.Now().UTC()

	snap := momentumSnapshot(0.45, strongUpMomenta())
	snap.FeedHealthy = false
	assert.Empty(t, s.Evaluate(now, snap))

	snap = momentumSnapshot(0.45, strongUpMomenta())
	snap.WindowChangeOK = false
	assert.Empty(t, s.Evaluate(now, snap))

	snap = momentumSnapshot(0.45, nil)
	assert.Empty(t, s.Evaluate(now, snap))
}

func TestTemporalDisabled(t *testing.T) {
	cfg := temporalConfig()
	cfg.Enabled = false
	s := NewTemporal(cfg, testLogger())
	assert.Empty(t, s.Evaluate(time.Now().UTC(), momentumSnapshot(0.45, strongUpMomenta())))
}

func TestBlendConfidenceWeighting(t *testing.T) {
	momenta := strongUpMomenta() // tiers 0.65, 0.75, 0.95 with weights 1.0, 1.5, 2.0
	confidence, direction, ok := blendConfidence(0.45, momenta)
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeUp, direction)
	// (3*0.95 + 1*0.65 + 1.5*0.75 + 2*0.95) / 7.5
	assert.InDelta(t, 0.87, confidence, 1e-9)
}

func TestWindowConfidenceTiers(t *testing.T) {
	cases := []struct {
		changePct float64
		want      float64
	}{
		{0.45, 0.95},
		{-0.40, 0.95},
		{0.30, 0.90},
		{0.20, 0.80},
		{0.12, 0.70},
		{-0.07, 0.60},
		{0.01, 0.50},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, windowConfidence(tc.changePct), "change %.2f", tc.changePct)
	}
}

func TestLookbackConfidenceTiers(t *testing.T) {
	cases := []struct {
		changePct float64
		want      float64
	}{
		{0.55, 0.95},
		{-0.50, 0.95},
		{0.35, 0.85},
		{0.20, 0.75},
		{-0.10, 0.65},
		{0.06, 0.55},
		{0.02, 0.45},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, lookbackConfidence(tc.changePct), "change %.2f", tc.changePct)
	}
}
