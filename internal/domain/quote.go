package domain

import "time"

// OutcomeQuote is a best bid/ask snapshot for one outcome token. Prices are
// probability-denominated and live in [0, 1].
type OutcomeQuote struct {
	TokenID   string
	Outcome   Outcome
	BestBid   float64
	BestAsk   float64
	BidSize   float64
	AskSize   float64
	Timestamp time.Time
}

// Staleness returns the age of the quote relative to now.
func (q OutcomeQuote) Staleness(now time.Time) time.Duration {
	return now.Sub(q.Timestamp)
}

// Usable reports whether the quote carries a live ask and is fresh enough for
// a trading decision.
func (q OutcomeQuote) Usable(now time.Time, maxStaleness time.Duration) bool {
	return q.BestAsk > 0 && !q.Timestamp.IsZero() && q.Staleness(now) <= maxStaleness
}

// ReferenceTick is the latest external reference price observation. Seq is
// monotonic per feed connection so consumers can detect gaps and resets.
type ReferenceTick struct {
	Price     float64
	Timestamp time.Time
	Seq       uint64
}

// Age returns the elapsed time since the tick was produced.
func (t ReferenceTick) Age(now time.Time) time.Duration {
	return now.Sub(t.Timestamp)
}

// Fresh reports whether the tick is young enough to act on. A zero tick is
// never fresh.
func (t ReferenceTick) Fresh(now time.Time, maxAge time.Duration) bool {
	return t.Seq > 0 && !t.Timestamp.IsZero() && t.Age(now) <= maxAge
}
