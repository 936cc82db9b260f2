package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TrackedOrder is a resting limit order as last reported by the venue.
// All monetary values are decimal.Decimal, never binary floats.
type TrackedOrder struct {
	ID        string // venue-assigned, opaque
	Pair      string // "ATOM/USDT" format
	Side      string // "buy", "sell"
	Price     decimal.Decimal
	Size      decimal.Decimal
	Filled    decimal.Decimal // cumulative filled quantity
	Status    string          // venue-reported, uppercased: "OPEN", "CLOSED", "CANCELLED", ...
	Raw       json.RawMessage // raw venue payload, retained for audit only
	CreatedAt time.Time
}

const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderTypeLimit = "limit"

	OrderStatusOpen      = "OPEN"
	OrderStatusClosed    = "CLOSED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusRejected  = "REJECTED"
	OrderStatusExpired   = "EXPIRED"
)

// IsDead reports whether the venue considers the order terminally unusable.
func (o *TrackedOrder) IsDead() bool {
	switch o.Status {
	case OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired, "CANCELED":
		return true
	}
	return false
}

// TradeRecord is the immutable outcome of a finalized order.
// Created at most once per order, never updated.
type TradeRecord struct {
	ID       string
	OrderID  string
	Pair     string
	Side     string
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// PerformanceSnapshot captures portfolio state once per tick for audit.
type PerformanceSnapshot struct {
	BaseBalance     decimal.Decimal
	QuoteBalance    decimal.Decimal
	TotalValueQuote decimal.Decimal
	InventoryRatio  decimal.Decimal
}
