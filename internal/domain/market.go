package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookLevel is a single price level of an order book side.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook is a raw depth snapshot from the venue.
// Bids are sorted best-first (descending), asks best-first (ascending).
type OrderBook struct {
	Bids []BookLevel
	Asks []BookLevel
}

// BestBid returns the highest bid, or false when the side is empty.
func (b *OrderBook) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, or false when the side is empty.
func (b *OrderBook) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// Ticker is a venue ticker snapshot. Zero values mean "not reported".
type Ticker struct {
	Bid  decimal.Decimal
	Ask  decimal.Decimal
	Last decimal.Decimal
	VWAP decimal.Decimal
}

// Mid returns the ticker mid-price. The ask/bid ratio guard rejects
// crossed or garbage quotes (ratio >= 10).
func (t *Ticker) Mid() (decimal.Decimal, bool) {
	if t == nil || !t.Bid.IsPositive() || !t.Ask.IsPositive() {
		return decimal.Zero, false
	}
	if t.Ask.Div(t.Bid).GreaterThanOrEqual(decimal.NewFromInt(10)) {
		return decimal.Zero, false
	}
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2)), true
}

// PriceSource identifies which strategy produced the reference price.
type PriceSource string

const (
	SourceBook       PriceSource = "book"
	SourceVWAP       PriceSource = "vwap"
	SourceTickerMid  PriceSource = "ticker_mid"
	SourceLast       PriceSource = "last"
	SourceNearestBid PriceSource = "nearest_bid"
	SourceNearestAsk PriceSource = "nearest_ask"
	SourceSynthetic  PriceSource = "synthetic"
)

// PriceSnapshot is the per-tick result of reference price resolution.
// Ephemeral: rebuilt every tick, never persisted.
type PriceSnapshot struct {
	BestBid decimal.Decimal // zero when the filtered side is empty
	BestAsk decimal.Decimal
	Mid     decimal.Decimal
	Source  PriceSource

	// Synthetic flags mark directional placeholder quotes injected to keep
	// the mid computable. They are never real orders.
	SyntheticBid bool
	SyntheticAsk bool
}

// GridAnchor is the mid-price the currently-resting ladder was computed at.
type GridAnchor struct {
	Mid       decimal.Decimal
	UpdatedAt time.Time
}

// Balance is a per-currency venue balance.
type Balance struct {
	Free  decimal.Decimal // not tied up in open orders
	Total decimal.Decimal
}

// Market describes a tradable instrument on the venue.
type Market struct {
	ID     string // venue-internal identifier
	Symbol string // unified "BASE/QUOTE" symbol
}
