// Package executor turns authorized intents into venue orders and owns the
// resulting positions. It is the only package that talks to the order
// endpoints; strategies and the engine never place orders directly.
package executor

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/updownlabs/updownbot/internal/crypto"
	"github.com/updownlabs/updownbot/internal/domain"
)

const (
	// terminalPollTimeout bounds how long a submitted order is polled before
	// it is treated as resting (GTC) or failed (FOK).
	terminalPollTimeout  = 3 * time.Second
	terminalPollInterval = 250 * time.Millisecond

	// unwindFloorPrice is the limit on the fire-sale order used to exit a
	// broken pair leg. It crosses any live bid.
	unwindFloorPrice = 0.01

	// usdcScale converts share and price amounts into the 6-decimal integer
	// units the signed order payload carries.
	usdcScale = 1_000_000
)

// Venue is the slice of the CLOB client the executor needs.
type Venue interface {
	PostOrder(ctx context.Context, order domain.Order) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

// RiskLedger receives execution results so reservations track real spend.
type RiskLedger interface {
	SettleFill(ctx context.Context, intentID string, actualCost float64)
	Release(ctx context.Context, intentID string)
	RecordSettlement(ctx context.Context, s domain.SettlementOutcome) bool
}

// Alerter pushes operator notifications. Implementations filter by event.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Executor submits orders, reconciles their terminal states, and maintains
// the position book for the active markets.
type Executor struct {
	venue     Venue
	signer    *crypto.Signer
	risk      RiskLedger
	notifier  Alerter
	audit     domain.AuditStore
	trades    domain.TradeStore
	wallet    string // signing EOA address
	maker     string // funds owner; equals wallet unless a proxy funder is set
	sigType   int
	orderType domain.OrderType
	dryRun    bool
	logger    *slog.Logger

	mu        sync.Mutex
	positions map[string]map[string]domain.Position // market ID -> token ID -> position
	resting   map[string]domain.OrderIntent         // venue order ID -> originating intent
}

// New creates an executor. signer may be nil in dry-run mode. wallet is the
// signing EOA address; funder is the proxy wallet owning the funds, empty
// when the EOA trades directly.
func New(venue Venue, signer *crypto.Signer, risk RiskLedger, notifier Alerter,
	audit domain.AuditStore, trades domain.TradeStore,
	wallet, funder string, sigType int,
	orderType domain.OrderType, dryRun bool, logger *slog.Logger) *Executor {
	maker := wallet
	if funder != "" {
		maker = funder
	}
	return &Executor{
		venue:     venue,
		signer:    signer,
		risk:      risk,
		notifier:  notifier,
		audit:     audit,
		trades:    trades,
		wallet:    wallet,
		maker:     maker,
		sigType:   sigType,
		orderType: orderType,
		dryRun:    dryRun,
		logger:    logger.With(slog.String("component", "executor")),
		positions: make(map[string]map[string]domain.Position),
		resting:   make(map[string]domain.OrderIntent),
	}
}

// Submit executes a single authorized intent and returns what happened.
// Dry-run mode walks the identical path but simulates a full fill at the
// limit price instead of touching the venue.
func (e *Executor) Submit(ctx context.Context, intent domain.OrderIntent) domain.FillOutcome {
	outcome := e.submitLeg(ctx, intent)
	e.finalizeLeg(ctx, intent, outcome)
	return outcome
}

// SubmitPair executes the two legs of a pure arbitrage pair. The pair is
// all-or-nothing: if the second leg fails after the first filled, the filled
// leg is sold back immediately rather than left as a directional bet.
func (e *Executor) SubmitPair(ctx context.Context, up, down domain.OrderIntent) (domain.FillOutcome, domain.FillOutcome) {
	upOut := e.submitLeg(ctx, up)
	if upOut.State != domain.FillStateFilled {
		e.finalizeLeg(ctx, up, upOut)
		e.risk.Release(ctx, down.ID)
		downOut := rejectedOutcome(down, "first leg did not fill")
		e.auditFill(ctx, down, downOut)
		return upOut, downOut
	}

	downOut := e.submitLeg(ctx, down)
	if downOut.State == domain.FillStateFilled {
		e.finalizeLeg(ctx, up, upOut)
		e.finalizeLeg(ctx, down, downOut)
		return upOut, downOut
	}

	// Broken pair: exit the filled leg.
	e.logger.Warn("pair leg failed after first fill, unwinding",
		slog.String("market", up.MarketSlug),
		slog.String("failed_leg", string(down.Outcome)),
		slog.String("state", string(downOut.State)))
	upOut = e.unwind(ctx, up, upOut)
	e.finalizeLeg(ctx, down, downOut)
	return upOut, downOut
}

// submitLeg runs one intent through signing, submission, and terminal-state
// polling without touching positions or the ledger.
func (e *Executor) submitLeg(ctx context.Context, intent domain.OrderIntent) domain.FillOutcome {
	if e.dryRun {
		return domain.FillOutcome{
			IntentID:  intent.ID,
			Strategy:  intent.Strategy,
			TokenID:   intent.TokenID,
			Outcome:   intent.Outcome,
			State:     domain.FillStateFilled,
			FilledQty: intent.Size,
			AvgPrice:  intent.LimitPrice,
			Cost:      intent.Size * intent.LimitPrice,
			OrderIDs:  []string{"sim-" + uuid.NewString()},
			Simulated: true,
			Timestamp: time.Now().UTC(),
		}
	}

	order, err := e.buildOrder(intent, e.orderType)
	if err != nil {
		return rejectedOutcome(intent, fmt.Sprintf("build order: %v", err))
	}

	orderID, err := e.venue.PostOrder(ctx, order)
	if err != nil {
		return rejectedOutcome(intent, err.Error())
	}
	order.ID = orderID

	final, err := e.waitTerminal(ctx, orderID)
	if err != nil {
		if e.orderType == domain.OrderTypeGTC {
			e.mu.Lock()
			e.resting[orderID] = intent
			e.mu.Unlock()
			e.logger.Info("order resting on book",
				slog.String("order_id", orderID),
				slog.String("market", intent.MarketSlug))
			return domain.FillOutcome{
				IntentID:  intent.ID,
				Strategy:  intent.Strategy,
				TokenID:   intent.TokenID,
				Outcome:   intent.Outcome,
				State:     domain.FillStateResting,
				OrderIDs:  []string{orderID},
				Timestamp: time.Now().UTC(),
			}
		}
		// A FOK that never reports terminal is treated as dead; cancel
		// so nothing rests.
		if cerr := e.venue.CancelOrder(ctx, orderID); cerr != nil {
			e.logger.Warn("cancel after poll timeout failed",
				slog.String("order_id", orderID),
				slog.String("error", cerr.Error()))
		}
		return rejectedOutcome(intent, "no terminal status before timeout")
	}

	return e.outcomeFromOrder(intent, final)
}

// finalizeLeg applies a leg result to the position book, the risk ledger,
// persistence, and notifications.
func (e *Executor) finalizeLeg(ctx context.Context, intent domain.OrderIntent, outcome domain.FillOutcome) {
	switch outcome.State {
	case domain.FillStateFilled, domain.FillStatePartiallyFilled:
		e.risk.SettleFill(ctx, intent.ID, outcome.Cost)
		e.applyFill(intent, outcome)
		e.recordTrade(ctx, intent, outcome)
		e.notifier.Notify(ctx, "trade_filled", "Trade filled",
			fmt.Sprintf("%s %s %s %.0f @ %.3f (cost %.2f)%s",
				intent.Strategy, intent.MarketSlug, intent.Outcome,
				outcome.FilledQty, outcome.AvgPrice, outcome.Cost, simSuffix(outcome)))
	case domain.FillStateResting:
		// Reservation stays until the order fills or is cancelled.
	case domain.FillStateUnwound:
		// unwind already settled the ledger.
	default:
		e.risk.Release(ctx, intent.ID)
		e.logger.Info("order not filled",
			slog.String("market", intent.MarketSlug),
			slog.String("outcome", string(intent.Outcome)),
			slog.String("state", string(outcome.State)),
			slog.String("reason", outcome.Reason))
	}
	e.auditFill(ctx, intent, outcome)
}

// unwind exits a filled leg of a broken pair with a marketable sell and
// books the round trip as a realized loss.
func (e *Executor) unwind(ctx context.Context, intent domain.OrderIntent, filled domain.FillOutcome) domain.FillOutcome {
	proceeds := 0.0
	if e.dryRun {
		proceeds = filled.FilledQty * intent.LimitPrice
	} else {
		sellIntent := intent
		sellIntent.Side = domain.OrderSideSell
		sellIntent.Size = filled.FilledQty
		sellIntent.LimitPrice = unwindFloorPrice

		order, err := e.buildOrder(sellIntent, domain.OrderTypeFAK)
		if err == nil {
			if orderID, perr := e.venue.PostOrder(ctx, order); perr == nil {
				if final, werr := e.waitTerminal(ctx, orderID); werr == nil {
					proceeds = final.FilledSize * final.Price
				}
			} else {
				e.logger.Error("unwind sell failed, leg remains open",
					slog.String("market", intent.MarketSlug),
					slog.String("error", perr.Error()))
			}
		}
	}

	netCost := filled.Cost - proceeds
	e.risk.SettleFill(ctx, intent.ID, netCost)
	if netCost > 0 {
		e.risk.RecordSettlement(ctx, domain.SettlementOutcome{
			MarketID:   intent.MarketID,
			MarketSlug: intent.MarketSlug,
			Strategy:   intent.Strategy,
			Outcome:    intent.Outcome,
			Won:        false,
			Cost:       netCost,
			Payout:     0,
			PnL:        -netCost,
			Timestamp:  time.Now().UTC(),
		})
	}

	e.notifier.Notify(ctx, "pair_unwound", "Pair unwound",
		fmt.Sprintf("%s: sold back %.0f %s, round-trip loss %.2f",
			intent.MarketSlug, filled.FilledQty, intent.Outcome, netCost))

	filled.State = domain.FillStateUnwound
	filled.Reason = fmt.Sprintf("pair broken, net loss %.2f", netCost)
	return filled
}

// applyFill folds a fill into the market's position book.
func (e *Executor) applyFill(intent domain.OrderIntent, outcome domain.FillOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	book, ok := e.positions[intent.MarketID]
	if !ok {
		book = make(map[string]domain.Position)
		e.positions[intent.MarketID] = book
	}
	pos, ok := book[intent.TokenID]
	if !ok {
		pos = domain.Position{
			MarketID: intent.MarketID,
			TokenID:  intent.TokenID,
			Outcome:  intent.Outcome,
			Strategy: intent.Strategy,
		}
	}
	book[intent.TokenID] = pos.AddFill(outcome.FilledQty, outcome.AvgPrice)
}

// Positions returns the open positions for a market.
func (e *Executor) Positions(marketID string) []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	book := e.positions[marketID]
	out := make([]domain.Position, 0, len(book))
	for _, p := range book {
		if !p.Empty() {
			out = append(out, p)
		}
	}
	return out
}

// ClosePositions drops all positions for a settled market and returns them.
func (e *Executor) ClosePositions(marketID string) []domain.Position {
	e.mu.Lock()
	book := e.positions[marketID]
	delete(e.positions, marketID)
	e.mu.Unlock()

	out := make([]domain.Position, 0, len(book))
	for _, p := range book {
		if !p.Empty() {
			out = append(out, p)
		}
	}
	return out
}

// CancelOpen cancels all resting orders. Called on shutdown so no GTC order
// outlives the process.
func (e *Executor) CancelOpen(ctx context.Context) {
	e.mu.Lock()
	open := make(map[string]domain.OrderIntent, len(e.resting))
	for id, intent := range e.resting {
		open[id] = intent
	}
	e.resting = make(map[string]domain.OrderIntent)
	e.mu.Unlock()

	for orderID, intent := range open {
		if err := e.venue.CancelOrder(ctx, orderID); err != nil {
			e.logger.Error("cancel resting order",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()))
			continue
		}
		e.risk.Release(ctx, intent.ID)
		e.logger.Info("cancelled resting order",
			slog.String("order_id", orderID),
			slog.String("market", intent.MarketSlug))
	}
}

// ReconcileResting polls resting GTC orders and folds any that reached a
// terminal state into the position book.
func (e *Executor) ReconcileResting(ctx context.Context) {
	e.mu.Lock()
	open := make(map[string]domain.OrderIntent, len(e.resting))
	for id, intent := range e.resting {
		open[id] = intent
	}
	e.mu.Unlock()

	for orderID, intent := range open {
		order, err := e.venue.GetOrder(ctx, orderID)
		if err != nil || !order.Status.Terminal() {
			continue
		}
		e.mu.Lock()
		delete(e.resting, orderID)
		e.mu.Unlock()

		outcome := e.outcomeFromOrder(intent, order)
		e.finalizeLeg(ctx, intent, outcome)
	}
}

// waitTerminal polls the venue until the order reports a terminal status or
// the poll window closes.
func (e *Executor) waitTerminal(ctx context.Context, orderID string) (domain.Order, error) {
	deadline := time.Now().Add(terminalPollTimeout)
	ticker := time.NewTicker(terminalPollInterval)
	defer ticker.Stop()

	for {
		order, err := e.venue.GetOrder(ctx, orderID)
		if err == nil && order.Status.Terminal() {
			return order, nil
		}

		if time.Now().After(deadline) {
			return domain.Order{}, fmt.Errorf("executor: order %s not terminal after %s", orderID, terminalPollTimeout)
		}
		select {
		case <-ctx.Done():
			return domain.Order{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// outcomeFromOrder maps a terminal venue order onto a fill outcome.
func (e *Executor) outcomeFromOrder(intent domain.OrderIntent, order domain.Order) domain.FillOutcome {
	out := domain.FillOutcome{
		IntentID:  intent.ID,
		Strategy:  intent.Strategy,
		TokenID:   intent.TokenID,
		Outcome:   intent.Outcome,
		OrderIDs:  []string{order.ID},
		Timestamp: time.Now().UTC(),
	}

	switch order.Status {
	case domain.OrderStatusFilled:
		out.State = domain.FillStateFilled
		out.FilledQty = order.Size
		if order.FilledSize > 0 {
			out.FilledQty = order.FilledSize
		}
	case domain.OrderStatusPartiallyFilled:
		out.State = domain.FillStatePartiallyFilled
		out.FilledQty = order.FilledSize
	default:
		out.State = domain.FillStateRejected
		out.Reason = string(order.Status)
		return out
	}

	out.AvgPrice = order.Price
	if out.AvgPrice <= 0 {
		out.AvgPrice = intent.LimitPrice
	}
	out.Cost = out.FilledQty * out.AvgPrice
	return out
}

// buildOrder constructs and signs the venue order for an intent.
func (e *Executor) buildOrder(intent domain.OrderIntent, orderType domain.OrderType) (domain.Order, error) {
	if e.signer == nil {
		return domain.Order{}, fmt.Errorf("executor: %w: no signer configured", domain.ErrSigningFailed)
	}

	makerUnits, takerUnits := orderAmounts(intent.Side, intent.Size, intent.LimitPrice)
	salt, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 63))
	if err != nil {
		return domain.Order{}, fmt.Errorf("executor: salt: %w", err)
	}

	sideCode := 0
	if intent.Side == domain.OrderSideSell {
		sideCode = 1
	}
	payload := crypto.OrderPayload{
		Salt:          salt.String(),
		Maker:         e.maker,
		Signer:        e.wallet,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       intent.TokenID,
		MakerAmount:   makerUnits.String(),
		TakerAmount:   takerUnits.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideCode,
		SignatureType: e.sigType,
	}
	sig, err := e.signer.SignOrder(payload)
	if err != nil {
		return domain.Order{}, fmt.Errorf("executor: %w: %v", domain.ErrSigningFailed, err)
	}

	return domain.Order{
		IntentID:      intent.ID,
		MarketID:      intent.MarketID,
		TokenID:       intent.TokenID,
		Wallet:        e.wallet,
		Maker:         e.maker,
		SignatureType: e.sigType,
		Side:          intent.Side,
		Type:          orderType,
		Price:         intent.LimitPrice,
		Size:          intent.Size,
		MakerAmount:   makerUnits,
		TakerAmount:   takerUnits,
		Signature:     sig,
		Status:        domain.OrderStatusSubmitted,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// orderAmounts converts share size and limit price into the integer amounts
// the signed payload carries. For a buy the maker gives USDC and takes
// shares; for a sell the maker gives shares and takes USDC.
func orderAmounts(side domain.OrderSide, size, price float64) (maker, taker *big.Int) {
	shares := big.NewInt(int64(size*usdcScale + 0.5))
	notional := big.NewInt(int64(size*price*usdcScale + 0.5))
	if side == domain.OrderSideBuy {
		return notional, shares
	}
	return shares, notional
}

func (e *Executor) recordTrade(ctx context.Context, intent domain.OrderIntent, outcome domain.FillOutcome) {
	trade := domain.TradeRecord{
		ID:         uuid.NewString(),
		IntentID:   intent.ID,
		Strategy:   intent.Strategy,
		MarketSlug: intent.MarketSlug,
		Outcome:    intent.Outcome,
		Quantity:   outcome.FilledQty,
		AvgPrice:   outcome.AvgPrice,
		Cost:       outcome.Cost,
		Simulated:  outcome.Simulated,
		ExecutedAt: outcome.Timestamp,
	}
	if err := e.trades.Insert(ctx, trade); err != nil {
		e.logger.Error("persist trade", slog.String("error", err.Error()))
	}
}

func (e *Executor) auditFill(ctx context.Context, intent domain.OrderIntent, outcome domain.FillOutcome) {
	detail := map[string]any{
		"intent_id":   intent.ID,
		"strategy":    string(intent.Strategy),
		"market_slug": intent.MarketSlug,
		"outcome":     string(intent.Outcome),
		"side":        string(intent.Side),
		"size":        intent.Size,
		"limit_price": intent.LimitPrice,
		"state":       string(outcome.State),
		"filled_qty":  outcome.FilledQty,
		"avg_price":   outcome.AvgPrice,
		"cost":        outcome.Cost,
		"simulated":   outcome.Simulated,
	}
	if outcome.Reason != "" {
		detail["reason"] = outcome.Reason
	}
	if err := e.audit.Append(ctx, "order_"+string(outcome.State), detail); err != nil {
		e.logger.Error("append audit", slog.String("error", err.Error()))
	}
}

func rejectedOutcome(intent domain.OrderIntent, reason string) domain.FillOutcome {
	return domain.FillOutcome{
		IntentID:  intent.ID,
		Strategy:  intent.Strategy,
		TokenID:   intent.TokenID,
		Outcome:   intent.Outcome,
		State:     domain.FillStateRejected,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

func simSuffix(outcome domain.FillOutcome) string {
	if outcome.Simulated {
		return " [dry-run]"
	}
	return ""
}
