package strategy

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/updownlabs/updownbot/internal/config"
	"github.com/updownlabs/updownbot/internal/domain"
)

// Temporal trades the lag between a fast reference feed and the market's
// repricing. When the reference has moved decisively since the window
// opened and over the short lookbacks, the side that movement favors is
// bought while its ask still trades below the price threshold.
type Temporal struct {
	cfg    config.TemporalConfig
	logger *slog.Logger

	mu     sync.Mutex
	filled map[string]bool // market ID -> already holds a momentum position
}

// NewTemporal creates the temporal arbitrage strategy.
func NewTemporal(cfg config.TemporalConfig, logger *slog.Logger) *Temporal {
	return &Temporal{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "strategy.temporal")),
		filled: make(map[string]bool),
	}
}

// Name implements Strategy.
func (t *Temporal) Name() domain.StrategyTag { return domain.StrategyTemporal }

// MarkFilled records that the market already holds a momentum position, so
// the same window is not entered twice.
func (t *Temporal) MarkFilled(marketID string) {
	t.mu.Lock()
	t.filled[marketID] = true
	t.mu.Unlock()
}

// Forget drops fill tracking for a settled market.
func (t *Temporal) Forget(marketID string) {
	t.mu.Lock()
	delete(t.filled, marketID)
	t.mu.Unlock()
}

// Evaluate emits one buy intent when every momentum signal agrees on a
// direction, the blended confidence clears the threshold, and the favored
// side still trades at or below the price threshold.
func (t *Temporal) Evaluate(now time.Time, snap Snapshot) []domain.OrderIntent {
	if !t.cfg.Enabled || !tradeableState(snap.Market) || !snap.FeedHealthy {
		return nil
	}
	if !snap.WindowChangeOK || len(snap.Momenta) == 0 {
		return nil
	}

	t.mu.Lock()
	already := t.filled[snap.Market.ID]
	t.mu.Unlock()
	if already {
		return nil
	}

	confidence, direction, ok := blendConfidence(snap.WindowChangePct, snap.Momenta)
	if !ok || confidence < t.cfg.ConfidenceThreshold {
		return nil
	}

	var quote domain.OutcomeQuote
	var quoteOK bool
	if direction == domain.OutcomeUp {
		quote, quoteOK = snap.Up, snap.UpOK
	} else {
		quote, quoteOK = snap.Down, snap.DownOK
	}
	if !quoteOK || quote.BestAsk <= 0 || quote.BestAsk > t.cfg.PriceThreshold {
		return nil
	}
	if quote.AskSize < t.cfg.OrderSize {
		return nil
	}

	t.logger.Info("temporal arbitrage signal",
		slog.String("market", snap.Market.Slug),
		slog.String("direction", string(direction)),
		slog.Float64("confidence", confidence),
		slog.Float64("window_change_pct", snap.WindowChangePct),
		slog.Float64("ask", quote.BestAsk))

	return []domain.OrderIntent{{
		ID:         uuid.NewString(),
		Strategy:   domain.StrategyTemporal,
		MarketID:   snap.Market.ID,
		MarketSlug: snap.Market.Slug,
		TokenID:    snap.Market.TokenID(direction),
		Outcome:    direction,
		Side:       domain.OrderSideBuy,
		Size:       t.cfg.OrderSize,
		LimitPrice: quote.BestAsk,
		CreatedAt:  now,
		Reason: domain.IntentReason{
			UpAsk:          snap.Up.BestAsk,
			DownAsk:        snap.Down.BestAsk,
			ReferencePrice: snap.Reference.Price,
			WindowOpen:     snap.WindowOpenPrice,
			ChangePct:      snap.WindowChangePct,
			Confidence:     confidence,
		},
	}}
}

// blendConfidence maps each signal's magnitude to a confidence tier and
// combines them into a weighted average. Every signal, including the
// window-open move, must point the same way; any disagreement vetoes the
// trade. The window signal carries triple weight because it spans the
// horizon the market actually settles on; longer lookbacks weigh more than
// shorter ones.
func blendConfidence(windowChangePct float64, momenta []Momentum) (confidence float64, direction domain.Outcome, ok bool) {
	direction = directionOf(windowChangePct)
	if windowChangePct == 0 {
		return 0, direction, false
	}
	for _, m := range momenta {
		if m.ChangePct == 0 || directionOf(m.ChangePct) != direction {
			return 0, direction, false
		}
	}

	const windowWeight = 3.0
	totalWeight := windowWeight
	weighted := windowWeight * windowConfidence(windowChangePct)

	for i, m := range momenta {
		w := 1.0 + float64(i)*0.5
		totalWeight += w
		weighted += w * lookbackConfidence(m.ChangePct)
	}
	return weighted / totalWeight, direction, true
}

func directionOf(changePct float64) domain.Outcome {
	if changePct > 0 {
		return domain.OutcomeUp
	}
	return domain.OutcomeDown
}

// windowConfidence maps the move since window open to a confidence tier.
func windowConfidence(changePct float64) float64 {
	abs := changePct
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 0.40:
		return 0.95
	case abs >= 0.25:
		return 0.90
	case abs >= 0.15:
		return 0.80
	case abs >= 0.10:
		return 0.70
	case abs >= 0.05:
		return 0.60
	default:
		return 0.50
	}
}

// lookbackConfidence maps a short-lookback move to a confidence tier. The
// tiers sit higher than the window tiers because a large move over seconds
// is a stronger momentum statement than the same move over the window.
func lookbackConfidence(changePct float64) float64 {
	abs := changePct
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 0.50:
		return 0.95
	case abs >= 0.30:
		return 0.85
	case abs >= 0.15:
		return 0.75
	case abs >= 0.08:
		return 0.65
	case abs >= 0.05:
		return 0.55
	default:
		return 0.45
	}
}
