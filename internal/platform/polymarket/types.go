package polymarket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrder represents an order as returned by the Polymarket CLOB API.
type APIOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	MarketID     string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Type         string `json:"order_type"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	MakerAmount  string `json:"maker_amount"`
	TakerAmount  string `json:"taker_amount"`
	Owner        string `json:"owner"`
	CreatedAt    string `json:"created_at"`
}

// ToDomainOrder converts the API shape to the internal order record. The CLOB
// reports live orders; a matched size equal to the original size means filled.
func (a *APIOrder) ToDomainOrder() domain.Order {
	o := domain.Order{
		ID:       a.ID,
		MarketID: a.MarketID,
		TokenID:  a.AssetID,
		Wallet:   a.Owner,
		Side:     domain.OrderSide(a.Side),
		Type:     domain.OrderType(a.Type),
	}
	o.Price, _ = strconv.ParseFloat(a.Price, 64)
	o.Size, _ = strconv.ParseFloat(a.OriginalSize, 64)
	o.FilledSize, _ = strconv.ParseFloat(a.SizeMatched, 64)
	o.Status = mapOrderStatus(a.Status, o.Size, o.FilledSize)
	if ts, err := strconv.ParseInt(a.CreatedAt, 10, 64); err == nil {
		o.CreatedAt = time.Unix(ts, 0).UTC()
	}
	return o
}

// mapOrderStatus folds the CLOB's status vocabulary into the internal state
// machine. The API has used both "canceled" and "cancelled" historically.
func mapOrderStatus(apiStatus string, size, matched float64) domain.OrderStatus {
	switch strings.ToLower(apiStatus) {
	case "live", "delayed", "unmatched":
		return domain.OrderStatusSubmitted
	case "matched", "filled":
		return domain.OrderStatusFilled
	case "canceled", "cancelled", "expired":
		if matched > 0 && matched < size {
			return domain.OrderStatusPartiallyFilled
		}
		return domain.OrderStatusCancelled
	case "rejected":
		return domain.OrderStatusRejected
	}
	if matched > 0 && matched >= size {
		return domain.OrderStatusFilled
	}
	return domain.OrderStatusSubmitted
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	TransactID  string `json:"transactionHash,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// APIBookLevel is one price level in a CLOB book response. Prices and sizes
// arrive as decimal strings.
type APIBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIBook is the CLOB GET /book response for a single token.
type APIBook struct {
	Market    string         `json:"market"`
	AssetID   string         `json:"asset_id"`
	Timestamp string         `json:"timestamp"`
	Bids      []APIBookLevel `json:"bids"`
	Asks      []APIBookLevel `json:"asks"`
}

// ToDomainSnapshot parses and normalises the book: bids sorted best (highest)
// first, asks best (lowest) first, regardless of the order the API returns.
func (b *APIBook) ToDomainSnapshot() domain.BookSnapshot {
	snap := domain.BookSnapshot{
		TokenID:   b.AssetID,
		Bids:      parseLevels(b.Bids),
		Asks:      parseLevels(b.Asks),
		Timestamp: time.Now().UTC(),
	}
	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil && ms > 0 {
		snap.Timestamp = time.UnixMilli(ms).UTC()
	}
	sort.Slice(snap.Bids, func(i, j int) bool { return snap.Bids[i].Price > snap.Bids[j].Price })
	sort.Slice(snap.Asks, func(i, j int) bool { return snap.Asks[i].Price < snap.Asks[j].Price })
	return snap
}

func parseLevels(levels []APIBookLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		price, err1 := strconv.ParseFloat(l.Price, 64)
		size, err2 := strconv.ParseFloat(l.Size, 64)
		if err1 != nil || err2 != nil || size <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEvent represents an event as returned by the Polymarket Gamma API.
// An event groups one or more related markets; for the 15-minute up/down
// series each event holds exactly one binary market.
type APIEvent struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Slug    string      `json:"slug"`
	Active  flexBool    `json:"active"`
	Closed  bool        `json:"closed"`
	Markets []APIMarket `json:"markets"`
}

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	ConditionID     string   `json:"conditionId"`
	Slug            string   `json:"slug"`
	Active          flexBool `json:"active"`
	Closed          bool     `json:"closed"`
	Outcomes        string   `json:"outcomes"`      // JSON-encoded, e.g. "[\"Up\",\"Down\"]"
	ClobTokenIDs    string   `json:"clobTokenIds"`  // JSON-encoded, e.g. "[\"123\",\"456\"]"
	EndDateISO      string   `json:"endDateIso"`
	EnableOrderBook bool     `json:"enableOrderBook"`
}

// ToDomainMarket converts a Gamma market into an up/down window. The window
// bounds come from the slug's epoch suffix; token IDs are matched to outcomes
// positionally via the parallel outcomes/clobTokenIds arrays.
func (m *APIMarket) ToDomainMarket(asset string) (domain.Market, error) {
	start, err := WindowStartFromSlug(m.Slug)
	if err != nil {
		return domain.Market{}, err
	}

	var outcomes, tokenIDs []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return domain.Market{}, fmt.Errorf("parse outcomes %q: %w", m.Outcomes, err)
	}
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
		return domain.Market{}, fmt.Errorf("parse clobTokenIds: %w", err)
	}
	if len(outcomes) != 2 || len(tokenIDs) != 2 {
		return domain.Market{}, fmt.Errorf("market %s: want 2 outcomes, got %d/%d tokens", m.Slug, len(outcomes), len(tokenIDs))
	}

	market := domain.Market{
		ID:          m.ConditionID,
		Slug:        m.Slug,
		Asset:       asset,
		WindowStart: start,
		WindowEnd:   start.Add(WindowDuration),
		State:       domain.MarketDiscovered,
	}
	for i, name := range outcomes {
		switch strings.ToUpper(name) {
		case "UP":
			market.UpTokenID = tokenIDs[i]
		case "DOWN":
			market.DownTokenID = tokenIDs[i]
		}
	}
	if market.UpTokenID == "" || market.DownTokenID == "" {
		return domain.Market{}, fmt.Errorf("market %s: outcomes %v are not Up/Down", m.Slug, outcomes)
	}
	return market, nil
}

// Tradeable reports whether the market can currently accept orders.
func (m *APIMarket) Tradeable() bool {
	return bool(m.Active) && !m.Closed && m.EnableOrderBook
}
