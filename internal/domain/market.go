package domain

import "time"

// Outcome identifies one side of a binary UP/DOWN market.
type Outcome string

const (
	OutcomeUp   Outcome = "UP"
	OutcomeDown Outcome = "DOWN"
)

// Opposite returns the complementary outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeUp {
		return OutcomeDown
	}
	return OutcomeUp
}

// MarketState tracks the lifecycle of a 15-minute market window.
type MarketState string

const (
	MarketDiscovered MarketState = "discovered"
	MarketActive     MarketState = "active"
	MarketClosing    MarketState = "closing"
	MarketSettled    MarketState = "settled"
)

// Market is one 15-minute binary UP/DOWN contract pair. Values are copied on
// read; consumers never hold a shared mutable reference.
type Market struct {
	ID          string
	Slug        string
	Asset       string // underlying symbol, e.g. "BTC"
	WindowStart time.Time
	WindowEnd   time.Time
	UpTokenID   string
	DownTokenID string
	State       MarketState
}

// TokenID returns the CLOB token ID for the given outcome.
func (m Market) TokenID(o Outcome) string {
	if o == OutcomeUp {
		return m.UpTokenID
	}
	return m.DownTokenID
}

// Remaining returns the time left until the window closes. Negative once the
// window has expired.
func (m Market) Remaining(now time.Time) time.Duration {
	return m.WindowEnd.Sub(now)
}

// InClosingBuffer reports whether now falls inside the no-new-orders buffer
// before expiry.
func (m Market) InClosingBuffer(now time.Time, buffer time.Duration) bool {
	return now.After(m.WindowEnd.Add(-buffer)) && now.Before(m.WindowEnd)
}

// Expired reports whether the window end has passed.
func (m Market) Expired(now time.Time) bool {
	return !now.Before(m.WindowEnd)
}
