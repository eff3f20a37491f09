// Package engine runs the trading loop: it refreshes the market lifecycle,
// polls books, builds strategy snapshots, routes intents through the risk
// gate into the executor, and books settlements when windows expire.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/updownlabs/updownbot/internal/config"
	"github.com/updownlabs/updownbot/internal/domain"
	"github.com/updownlabs/updownbot/internal/obs"
	"github.com/updownlabs/updownbot/internal/registry"
	"github.com/updownlabs/updownbot/internal/strategy"
)

// momentumLookbacks are the short reference-price horizons fed to the
// temporal strategy, shortest first.
var momentumLookbacks = []time.Duration{15 * time.Second, 30 * time.Second, 60 * time.Second}

// MarketSource is the registry slice the engine drives.
type MarketSource interface {
	Refresh(ctx context.Context, now time.Time) (registry.RefreshResult, error)
	Current(now time.Time) (domain.Market, bool)
}

// QuoteView is the book slice the engine reads.
type QuoteView interface {
	Poll(ctx context.Context, market domain.Market)
	Quote(tokenID string, outcome domain.Outcome, now time.Time) (domain.OutcomeQuote, bool)
	Forget(market domain.Market)
}

// ReferenceSource is the feed slice the engine reads.
type ReferenceSource interface {
	Latest() domain.ReferenceTick
	Healthy(now time.Time) bool
	ChangePct(now time.Time, ago time.Duration) (float64, bool)
	MarkWindowOpen(windowStart time.Time)
	WindowOpenPrice(now time.Time, windowStart time.Time) (float64, bool)
}

// RiskGate authorizes intents and books settlements. Pair legs go through
// AuthorizePair so the cooldown applies once per opportunity, not per leg.
type RiskGate interface {
	Authorize(ctx context.Context, intent domain.OrderIntent) domain.Authorization
	AuthorizePair(ctx context.Context, up, down domain.OrderIntent) domain.Authorization
	Release(ctx context.Context, intentID string)
	RecordSettlement(ctx context.Context, s domain.SettlementOutcome) bool
	Rollover(ctx context.Context)
	Snapshot() domain.RiskState
}

// Trader is the executor slice the engine drives.
type Trader interface {
	Submit(ctx context.Context, intent domain.OrderIntent) domain.FillOutcome
	SubmitPair(ctx context.Context, up, down domain.OrderIntent) (domain.FillOutcome, domain.FillOutcome)
	ClosePositions(marketID string) []domain.Position
	ReconcileResting(ctx context.Context)
	CancelOpen(ctx context.Context)
}

// Alerter pushes operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SessionStats accumulates counters for the lifetime of the process.
type SessionStats struct {
	Ticks       int
	Intents     int
	Fills       int
	Rejects     int
	Settlements int
	Wins        int
	Losses      int
	RealizedPnL float64
}

// Engine wires the trading loop together. Construct with New and drive with
// Run; all other methods are internal to the loop.
type Engine struct {
	cfg      config.Config
	markets  MarketSource
	books    QuoteView
	feed     ReferenceSource
	risk     RiskGate
	trader   Trader
	pure     *strategy.PureArb
	temporal *strategy.Temporal
	notifier Alerter
	audit    domain.AuditStore
	ticks    domain.TickPublisher // optional
	bus      domain.EventBus      // optional
	finobs   *obs.Tracker         // optional
	logger   *slog.Logger

	stats          SessionStats
	budgetNotified bool

	// simBalance tracks remaining simulated USDC in dry-run mode.
	simBalance float64
}

// New creates the engine. ticks, bus, and finobs may be nil when Redis or
// the spend tracker is not configured.
func New(cfg config.Config, markets MarketSource, books QuoteView, feed ReferenceSource,
	risk RiskGate, trader Trader, pure *strategy.PureArb, temporal *strategy.Temporal,
	notifier Alerter, audit domain.AuditStore, ticks domain.TickPublisher, bus domain.EventBus,
	finobs *obs.Tracker, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		markets:    markets,
		books:      books,
		feed:       feed,
		risk:       risk,
		trader:     trader,
		pure:       pure,
		temporal:   temporal,
		notifier:   notifier,
		audit:      audit,
		ticks:      ticks,
		bus:        bus,
		finobs:     finobs,
		logger:     logger.With(slog.String("component", "engine")),
		simBalance: cfg.Engine.SimBalance,
	}
}

// Run drives the tick loop until ctx is cancelled, then cancels any resting
// orders with a short grace window.
func (e *Engine) Run(ctx context.Context) error {
	mode := "live"
	if e.cfg.Engine.DryRun {
		mode = "dry-run"
	}
	e.logger.Info("engine started",
		slog.String("mode", mode),
		slog.String("asset", e.cfg.Engine.Asset),
		slog.Duration("tick_interval", e.cfg.Engine.TickInterval.Duration))
	e.notifier.Notify(ctx, "engine_started", "Engine started",
		fmt.Sprintf("mode=%s asset=%s", mode, e.cfg.Engine.Asset))

	ticker := time.NewTicker(e.cfg.Engine.TickInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) shutdown() {
	// The loop context is gone; give cleanup its own deadline.
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e.trader.CancelOpen(cleanupCtx)
	state := e.risk.Snapshot()
	attrs := []any{
		slog.Int("ticks", e.stats.Ticks),
		slog.Int("fills", e.stats.Fills),
		slog.Int("settlements", e.stats.Settlements),
		slog.Float64("session_pnl", e.stats.RealizedPnL),
		slog.Float64("daily_pnl", state.DailyRealizedPnL),
	}
	if e.cfg.Engine.DryRun {
		attrs = append(attrs, slog.Float64("sim_balance", e.simBalance))
	}
	e.logger.Info("engine stopped", attrs...)
	e.notifier.Notify(cleanupCtx, "engine_stopped", "Engine stopped",
		fmt.Sprintf("fills=%d settlements=%d session_pnl=%.2f",
			e.stats.Fills, e.stats.Settlements, e.stats.RealizedPnL))
}

// tick runs one full evaluation pass.
func (e *Engine) tick(ctx context.Context) {
	now := time.Now().UTC()
	e.stats.Ticks++

	e.risk.Rollover(ctx)
	e.mirrorTick(ctx)
	e.trader.ReconcileResting(ctx)

	res, err := e.markets.Refresh(ctx, now)
	if err != nil {
		e.logger.Error("market refresh failed", slog.String("error", err.Error()))
	}
	for _, m := range res.Activated {
		e.feed.MarkWindowOpen(m.WindowStart)
		e.notifier.Notify(ctx, "market_discovered", "Market discovered",
			fmt.Sprintf("%s closes %s", m.Slug, m.WindowEnd.Format(time.RFC3339)))
	}
	for _, m := range res.Settled {
		e.settle(ctx, m, now)
	}
	if len(res.Activated)+len(res.Settled) > 0 {
		e.logSessionStats()
	}

	if e.budgetHalted(ctx) {
		return
	}

	market, ok := e.markets.Current(now)
	if !ok {
		return
	}

	e.books.Poll(ctx, market)
	snap := e.buildSnapshot(market, now)
	e.evaluate(ctx, snap, now)
}

// buildSnapshot assembles everything the strategies inspect this tick.
func (e *Engine) buildSnapshot(market domain.Market, now time.Time) strategy.Snapshot {
	snap := strategy.Snapshot{
		Market:      market,
		Reference:   e.feed.Latest(),
		FeedHealthy: e.feed.Healthy(now),
	}
	snap.Up, snap.UpOK = e.books.Quote(market.UpTokenID, domain.OutcomeUp, now)
	snap.Down, snap.DownOK = e.books.Quote(market.DownTokenID, domain.OutcomeDown, now)

	if open, ok := e.feed.WindowOpenPrice(now, market.WindowStart); ok && open > 0 && snap.Reference.Price > 0 {
		snap.WindowOpenPrice = open
		snap.WindowChangePct = (snap.Reference.Price - open) / open * 100
		snap.WindowChangeOK = true
	}
	for _, lb := range momentumLookbacks {
		if change, ok := e.feed.ChangePct(now, lb); ok {
			snap.Momenta = append(snap.Momenta, strategy.Momentum{Lookback: lb, ChangePct: change})
		}
	}
	return snap
}

// evaluate runs both strategies and routes their intents.
func (e *Engine) evaluate(ctx context.Context, snap strategy.Snapshot, now time.Time) {
	if intents := e.pure.Evaluate(now, snap); len(intents) == 2 {
		e.stats.Intents += len(intents)
		e.executePair(ctx, intents[0], intents[1])
	}

	for _, intent := range e.temporal.Evaluate(now, snap) {
		e.stats.Intents++
		e.executeSingle(ctx, intent)
	}
}

// executePair authorizes both legs as one opportunity; a rejection applies
// to the whole pair and nothing is reserved.
func (e *Engine) executePair(ctx context.Context, up, down domain.OrderIntent) {
	if e.cfg.Engine.DryRun && up.Notional()+down.Notional() > e.simBalance {
		e.logger.Info("simulated balance exhausted, skipping pair",
			slog.Float64("sim_balance", e.simBalance))
		return
	}
	if auth := e.risk.AuthorizePair(ctx, up, down); !auth.OK {
		e.rejected(ctx, up, auth)
		return
	}

	upOut, downOut := e.trader.SubmitPair(ctx, up, down)
	e.countFill(upOut)
	e.countFill(downOut)
	e.publishFill(ctx, upOut)
	e.publishFill(ctx, downOut)
}

func (e *Engine) executeSingle(ctx context.Context, intent domain.OrderIntent) {
	if e.cfg.Engine.DryRun && intent.Notional() > e.simBalance {
		e.logger.Info("simulated balance exhausted, skipping intent",
			slog.Float64("sim_balance", e.simBalance))
		return
	}
	if auth := e.risk.Authorize(ctx, intent); !auth.OK {
		e.rejected(ctx, intent, auth)
		return
	}

	out := e.trader.Submit(ctx, intent)
	e.countFill(out)
	e.publishFill(ctx, out)
	if out.State == domain.FillStateFilled && intent.Strategy == domain.StrategyTemporal {
		e.temporal.MarkFilled(intent.MarketID)
	}
}

func (e *Engine) rejected(ctx context.Context, intent domain.OrderIntent, auth domain.Authorization) {
	e.stats.Rejects++
	e.logger.Info("intent rejected",
		slog.String("strategy", string(intent.Strategy)),
		slog.String("market", intent.MarketSlug),
		slog.String("reason", string(auth.Reason)),
		slog.String("detail", auth.Detail))
	e.audit.Append(ctx, "intent_rejected", map[string]any{
		"intent_id": intent.ID,
		"strategy":  string(intent.Strategy),
		"market":    intent.MarketSlug,
		"reason":    string(auth.Reason),
		"detail":    auth.Detail,
	})
	if auth.Reason == domain.RejectHalted || auth.Reason == domain.RejectDailyLoss {
		e.notifier.Notify(ctx, "risk_halt", "Trading halted",
			fmt.Sprintf("intent blocked: %s %s", auth.Reason, auth.Detail))
	}
}

func (e *Engine) countFill(out domain.FillOutcome) {
	switch out.State {
	case domain.FillStateFilled, domain.FillStatePartiallyFilled:
		e.stats.Fills++
		if out.Simulated {
			e.simBalance -= out.Cost
		}
		if e.finobs != nil {
			e.finobs.Track(out.TokenID, out.Strategy, out.Cost)
		}
	}
}

// budgetHalted reports whether the spend tracker has tripped a hard budget
// rule; the first trip alerts the operator.
func (e *Engine) budgetHalted(ctx context.Context) bool {
	if e.finobs == nil {
		return false
	}
	halted, reason := e.finobs.Halted()
	if halted && !e.budgetNotified {
		e.budgetNotified = true
		e.logger.Error("budget halt, evaluation suspended", slog.String("reason", reason))
		e.notifier.Notify(ctx, "budget_breach", "Budget halt", reason)
	}
	return halted
}

// logSessionStats writes the running session counters, and the financial
// snapshot when spend tracking is on, at every market transition.
func (e *Engine) logSessionStats() {
	stats := e.Stats()
	attrs := []any{
		slog.Int("ticks", stats.Ticks),
		slog.Int("intents", stats.Intents),
		slog.Int("fills", stats.Fills),
		slog.Int("rejects", stats.Rejects),
		slog.Int("settlements", stats.Settlements),
		slog.Int("wins", stats.Wins),
		slog.Int("losses", stats.Losses),
		slog.Float64("session_pnl", stats.RealizedPnL),
	}
	if e.cfg.Engine.DryRun {
		attrs = append(attrs, slog.Float64("sim_balance", e.simBalance))
	}
	e.logger.Info("session statistics", attrs...)

	if e.finobs == nil {
		return
	}
	snap := e.finobs.Snapshot()
	if snap.TxCount == 0 {
		return
	}
	obsAttrs := []any{
		slog.Int("tx_count", snap.TxCount),
		slog.Float64("total_spent", snap.TotalSpent),
		slog.Float64("total_revenue", snap.TotalRevenue),
		slog.Float64("burn_rate_per_hour", snap.BurnRatePerHour),
	}
	if snap.ROIKnown {
		obsAttrs = append(obsAttrs, slog.Float64("roi_pct", snap.ROIPct))
	}
	e.logger.Info("financial snapshot", obsAttrs...)
}

// settle resolves a finished window: the side the reference moved toward
// pays 1.00 per share, the other pays zero. A flat window resolves DOWN,
// matching the venue's strictly-above rule.
func (e *Engine) settle(ctx context.Context, market domain.Market, now time.Time) {
	positions := e.trader.ClosePositions(market.ID)
	e.books.Forget(market)
	e.temporal.Forget(market.ID)

	if len(positions) == 0 {
		return
	}

	open, openOK := e.feed.WindowOpenPrice(now, market.WindowStart)
	closing := e.feed.Latest().Price
	if !openOK || closing <= 0 || !e.feed.Healthy(now) {
		// Without a window-open price and a fresh closing price any winner
		// would be fabricated, and a wrong winner under-counts losses in the
		// daily ledger. Book nothing; the exposure stays reserved.
		e.logger.Warn("reference data missing at settlement, P&L not booked",
			slog.String("market", market.Slug),
			slog.Int("positions", len(positions)),
			slog.Bool("window_open_known", openOK),
			slog.Bool("feed_healthy", e.feed.Healthy(now)))
		e.audit.Append(ctx, "settlement_skipped", map[string]any{
			"market":            market.Slug,
			"positions":         len(positions),
			"window_open_known": openOK,
			"closing_price":     closing,
		})
		e.notifier.Notify(ctx, "settlement_skipped", "Settlement skipped",
			fmt.Sprintf("%s: reference data missing, %d position(s) not booked",
				market.Slug, len(positions)))
		return
	}

	winner := domain.OutcomeDown
	if closing > open {
		winner = domain.OutcomeUp
	}

	for _, pos := range positions {
		payout := 0.0
		won := pos.Outcome == winner
		if won {
			payout = pos.Quantity
		}
		outcome := domain.SettlementOutcome{
			MarketID:   market.ID,
			MarketSlug: market.Slug,
			Strategy:   pos.Strategy,
			Outcome:    pos.Outcome,
			Won:        won,
			Cost:       pos.Cost(),
			Payout:     payout,
			PnL:        payout - pos.Cost(),
			Timestamp:  now,
		}

		e.stats.Settlements++
		e.stats.RealizedPnL += outcome.PnL
		if e.cfg.Engine.DryRun {
			e.simBalance += payout
		}
		if won {
			e.stats.Wins++
		} else {
			e.stats.Losses++
		}

		tripped := e.risk.RecordSettlement(ctx, outcome)
		if e.finobs != nil {
			e.finobs.Settle(pos.TokenID, payout)
		}
		e.logger.Info("position settled",
			slog.String("market", market.Slug),
			slog.String("strategy", string(pos.Strategy)),
			slog.String("outcome", string(pos.Outcome)),
			slog.Bool("won", won),
			slog.Float64("pnl", outcome.PnL))
		e.audit.Append(ctx, "position_settled", map[string]any{
			"market":   market.Slug,
			"strategy": string(pos.Strategy),
			"outcome":  string(pos.Outcome),
			"won":      won,
			"cost":     outcome.Cost,
			"payout":   payout,
			"pnl":      outcome.PnL,
		})
		e.notifier.Notify(ctx, "market_settled", "Market settled",
			fmt.Sprintf("%s %s %s: pnl %.2f", market.Slug, pos.Strategy, pos.Outcome, outcome.PnL))
		e.publishEvent(ctx, "settlements", outcome)

		if tripped {
			state := e.risk.Snapshot()
			e.notifier.Notify(ctx, "risk_halt", "Daily loss halt",
				fmt.Sprintf("realized loss %.2f hit the limit, trading halted for the day",
					state.DailyRealizedLoss))
		}
	}
}

func (e *Engine) mirrorTick(ctx context.Context) {
	if e.ticks == nil {
		return
	}
	tick := e.feed.Latest()
	if tick.Seq == 0 {
		return
	}
	if err := e.ticks.PublishTick(ctx, e.cfg.Engine.Asset, tick); err != nil {
		e.logger.Debug("tick mirror failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) publishFill(ctx context.Context, out domain.FillOutcome) {
	e.publishEvent(ctx, "fills", out)
}

func (e *Engine) publishEvent(ctx context.Context, channel string, payload any) {
	if e.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, channel, data); err != nil {
		e.logger.Debug("event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
	}
}

// Stats returns the session counters.
func (e *Engine) Stats() SessionStats {
	return e.stats
}
