package domain

import (
	"math/big"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill, used only for unwinds
)

// OrderStatus tracks the order state machine:
// SUBMITTED -> {FILLED, PARTIALLY_FILLED, CANCELLED, REJECTED}.
type OrderStatus string

const (
	OrderStatusSubmitted       OrderStatus = "submitted"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Terminal reports whether the status is an end state.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusPartiallyFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// Order is a signed venue order derived from an intent.
type Order struct {
	ID            string
	IntentID      string
	MarketID      string
	TokenID       string
	Wallet        string // signing EOA address
	Maker         string // funds owner; the proxy wallet when one is configured
	SignatureType int
	Side          OrderSide
	Type          OrderType
	Price         float64
	Size          float64
	MakerAmount   *big.Int // integer notional used in the signed payload
	TakerAmount   *big.Int // integer quantity used in the signed payload
	Signature     string   // EIP-712 hex
	Status        OrderStatus
	FilledSize    float64
	CreatedAt     time.Time
}

// FillState classifies the outcome of a submission.
type FillState string

const (
	FillStateFilled          FillState = "filled"
	FillStatePartiallyFilled FillState = "partially_filled"
	FillStateRejected        FillState = "rejected"
	FillStateResting         FillState = "resting" // GTC order still on the book
	FillStateUnwound         FillState = "unwound" // filled then sold back after a broken pair
)

// FillOutcome reports what actually happened to a submitted intent.
type FillOutcome struct {
	IntentID  string
	Strategy  StrategyTag
	TokenID   string
	Outcome   Outcome
	State     FillState
	FilledQty float64
	AvgPrice  float64
	Cost      float64 // FilledQty * AvgPrice
	OrderIDs  []string
	Reason    string // rejection reason, empty on fill
	Simulated bool
	Timestamp time.Time
}

// SettlementOutcome reports the resolution of a position when the owning
// market settles.
type SettlementOutcome struct {
	MarketID   string
	MarketSlug string
	Strategy   StrategyTag
	Outcome    Outcome
	Won        bool
	Cost       float64
	Payout     float64
	PnL        float64
	Timestamp  time.Time
}
