package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Venue defines the remote exchange capability set. Every call may fail
// with a transient or fatal VenueError; callers never assume success
// without the retry transport and, for placements, a verification poll.
type Venue interface {
	FetchMarkets(ctx context.Context) ([]Market, error)
	FetchOrderBook(ctx context.Context, pair string) (*OrderBook, error)
	FetchTicker(ctx context.Context, pair string) (*Ticker, error)
	FetchBalance(ctx context.Context) (map[string]Balance, error)
	FetchOpenOrders(ctx context.Context, pair string) ([]TrackedOrder, error)
	FetchOrder(ctx context.Context, id, pair string) (*TrackedOrder, error)
	CreateOrder(ctx context.Context, pair, orderType, side string, size, price decimal.Decimal) (*TrackedOrder, error)
	CancelOrder(ctx context.Context, id, pair string) error
}

// Store is the audit sink. Writes are fire-and-forget: engine correctness
// never depends on store responses.
type Store interface {
	RecordOrder(order *TrackedOrder) error
	UpdateOrderStatus(id, status string) error
	RecordTrade(trade *TradeRecord) error
	RecordPerformance(p *PerformanceSnapshot) error
}
