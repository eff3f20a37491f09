package domain

import "time"

// Position is the net holding in one outcome token of the active market.
// It is owned and mutated exclusively by the execution engine and reset when
// the owning market settles.
type Position struct {
	MarketID string
	TokenID  string
	Outcome  Outcome
	Strategy StrategyTag
	Quantity float64
	AvgCost  float64 // per share
	OpenedAt time.Time
}

// Cost returns the total acquisition cost of the position.
func (p Position) Cost() float64 {
	return p.Quantity * p.AvgCost
}

// Empty reports whether the position holds no shares.
func (p Position) Empty() bool {
	return p.Quantity <= 0
}

// AddFill folds a fill into the position, recomputing the average cost.
func (p Position) AddFill(qty, price float64) Position {
	if qty <= 0 {
		return p
	}
	total := p.Cost() + qty*price
	p.Quantity += qty
	p.AvgCost = total / p.Quantity
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now().UTC()
	}
	return p
}
