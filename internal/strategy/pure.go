package strategy

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/updownlabs/updownbot/internal/config"
	"github.com/updownlabs/updownbot/internal/domain"
)

// PureArb buys both outcomes of the same market when the combined ask cost
// is below the target pair cost. One side always pays out 1.00 at
// settlement, so a pair bought under 1.00 locks in the difference.
type PureArb struct {
	cfg    config.PureConfig
	logger *slog.Logger
}

// NewPureArb creates the pure arbitrage strategy.
func NewPureArb(cfg config.PureConfig, logger *slog.Logger) *PureArb {
	return &PureArb{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "strategy.pure")),
	}
}

// Name implements Strategy.
func (p *PureArb) Name() domain.StrategyTag { return domain.StrategyPure }

// Evaluate emits a two-leg intent pair when both asks are live and their
// sum is under the target. Both legs carry the same reason snapshot; the
// executor submits them as an atomic pair.
func (p *PureArb) Evaluate(now time.Time, snap Snapshot) []domain.OrderIntent {
	if !tradeableState(snap.Market) || !snap.UpOK || !snap.DownOK {
		return nil
	}

	upAsk, downAsk := snap.Up.BestAsk, snap.Down.BestAsk
	if upAsk <= 0 || downAsk <= 0 {
		return nil
	}

	pairCost := upAsk + downAsk
	if pairCost >= p.cfg.TargetPairCost {
		return nil
	}
	if snap.Up.AskSize < p.cfg.OrderSize || snap.Down.AskSize < p.cfg.OrderSize {
		p.logger.Debug("pair under target but top-of-book too thin",
			slog.Float64("pair_cost", pairCost),
			slog.Float64("up_ask_size", snap.Up.AskSize),
			slog.Float64("down_ask_size", snap.Down.AskSize))
		return nil
	}

	p.logger.Info("pure arbitrage signal",
		slog.String("market", snap.Market.Slug),
		slog.Float64("up_ask", upAsk),
		slog.Float64("down_ask", downAsk),
		slog.Float64("pair_cost", pairCost),
		slog.Float64("edge", 1.0-pairCost))

	reason := domain.IntentReason{
		UpAsk:    upAsk,
		DownAsk:  downAsk,
		PairCost: pairCost,
	}
	return []domain.OrderIntent{
		p.leg(now, snap.Market, domain.OutcomeUp, upAsk, reason),
		p.leg(now, snap.Market, domain.OutcomeDown, downAsk, reason),
	}
}

func (p *PureArb) leg(now time.Time, m domain.Market, outcome domain.Outcome, ask float64, reason domain.IntentReason) domain.OrderIntent {
	return domain.OrderIntent{
		ID:         uuid.NewString(),
		Strategy:   domain.StrategyPure,
		MarketID:   m.ID,
		MarketSlug: m.Slug,
		TokenID:    m.TokenID(outcome),
		Outcome:    outcome,
		Side:       domain.OrderSideBuy,
		Size:       p.cfg.OrderSize,
		LimitPrice: ask,
		CreatedAt:  now,
		Reason:     reason,
	}
}
