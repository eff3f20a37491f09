package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// BookSnapshot is a full snapshot of bids and asks for one outcome token.
// Bids are sorted best (highest) first, asks best (lowest) first.
type BookSnapshot struct {
	TokenID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestBid returns the highest bid, or 0 when the bid side is empty.
func (b BookSnapshot) BestBid() PriceLevel {
	if len(b.Bids) == 0 {
		return PriceLevel{}
	}
	return b.Bids[0]
}

// BestAsk returns the lowest ask, or 0 when the ask side is empty.
func (b BookSnapshot) BestAsk() PriceLevel {
	if len(b.Asks) == 0 {
		return PriceLevel{}
	}
	return b.Asks[0]
}

// Quote collapses the snapshot into a top-of-book quote for the given outcome.
func (b BookSnapshot) Quote(o Outcome) OutcomeQuote {
	bid, ask := b.BestBid(), b.BestAsk()
	return OutcomeQuote{
		TokenID:   b.TokenID,
		Outcome:   o,
		BestBid:   bid.Price,
		BestAsk:   ask.Price,
		BidSize:   bid.Size,
		AskSize:   ask.Size,
		Timestamp: b.Timestamp,
	}
}
