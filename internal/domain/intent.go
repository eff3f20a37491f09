package domain

import "time"

// StrategyTag identifies which strategy produced an order intent.
type StrategyTag string

const (
	StrategyPure     StrategyTag = "pure"
	StrategyTemporal StrategyTag = "temporal"
)

// OrderIntent is a strategy's request to buy one outcome token. It is created
// by the strategy engine and consumed exactly once by the risk manager and
// executor; it is never persisted beyond the audit log.
type OrderIntent struct {
	ID         string
	Strategy   StrategyTag
	MarketID   string
	MarketSlug string
	TokenID    string
	Outcome    Outcome
	Side       OrderSide // always buy for both strategies
	Size       float64   // shares
	LimitPrice float64   // worst acceptable price per share
	CreatedAt  time.Time

	// Reason is a snapshot of the inputs that triggered the intent, kept for
	// the audit trail.
	Reason IntentReason
}

// Notional returns the maximum USDC cost of the intent.
func (i OrderIntent) Notional() float64 {
	return i.Size * i.LimitPrice
}

// IntentReason captures the market data behind a signal at evaluation time.
type IntentReason struct {
	UpAsk          float64
	DownAsk        float64
	PairCost       float64 // pure: ask(UP)+ask(DOWN)
	ReferencePrice float64 // temporal: reference price at evaluation
	WindowOpen     float64 // temporal: reference price at window start
	ChangePct      float64 // temporal: percent move since window start
	Confidence     float64 // temporal: mapped confidence in [0,1]
}
