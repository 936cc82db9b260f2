package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"gridmaker_go/internal/domain"
	"gridmaker_go/internal/infra"
	"gridmaker_go/internal/pricing"
	"gridmaker_go/internal/strategy"
)

const (
	maxConsecutiveErrors = 5
	errorBackoffBase     = 5 * time.Second
	errorBackoffMax      = 60 * time.Second
	shutdownTimeout      = 30 * time.Second

	placementVerifyAttempts = 3
	placementVerifyDelay    = time.Second
)

var (
	// quote reserved per buy must cover taker/maker fees
	feeBuffer = decimal.RequireFromString("1.002")

	// resting orders within 0.1% of a desired level are kept as-is
	duplicateThreshold = decimal.RequireFromString("0.001")
)

// Maker is the market-making orchestrator. Each tick it reconciles
// order state, resolves a trusted mid-price, and converges the resting
// ladder toward the planner's desired grid.
type Maker struct {
	cfg      *infra.Config
	venue    domain.Venue
	store    domain.Store
	rt       *infra.RetryTransport
	resolver *pricing.Resolver
	planner  *strategy.Planner
	tracker  *Tracker
	log      *slog.Logger

	pair  string
	base  string
	quote string

	cache  pricing.Cache
	anchor domain.GridAnchor

	now func() time.Time
}

// NewMaker wires the orchestrator.
func NewMaker(cfg *infra.Config, venue domain.Venue, store domain.Store, rt *infra.RetryTransport, resolver *pricing.Resolver, planner *strategy.Planner, tracker *Tracker) *Maker {
	base, quote := cfg.BaseQuote()
	return &Maker{
		cfg:      cfg,
		venue:    venue,
		store:    store,
		rt:       rt,
		resolver: resolver,
		planner:  planner,
		tracker:  tracker,
		log:      slog.Default().With("module", "maker"),
		pair:     cfg.Venue.Symbol,
		base:     base,
		quote:    quote,
		now:      time.Now,
	}
}

// Run executes the trading loop until ctx is cancelled, then cancels
// all resting orders under a bounded shutdown window. It returns an
// error only on unrecoverable startup or repeated tick failures.
func (m *Maker) Run(ctx context.Context) error {
	if err := m.probeMarket(ctx); err != nil {
		return err
	}
	m.log.Info("market maker started",
		slog.String("pair", m.pair),
		slog.Duration("polling_interval", m.cfg.PollingInterval()))

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			m.shutdown(ctx)
			return nil
		default:
		}

		if err := m.tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				m.shutdown(ctx)
				return nil
			}
			consecutiveErrors++
			infra.IncTickError()
			m.log.Error("tick failed",
				slog.Int("consecutive_errors", consecutiveErrors),
				slog.String("error", err.Error()))
			if consecutiveErrors >= maxConsecutiveErrors {
				m.shutdown(ctx)
				return fmt.Errorf("%d consecutive tick failures, giving up: %w", consecutiveErrors, err)
			}

			backoff := errorBackoffBase << uint(consecutiveErrors-1)
			if backoff > errorBackoffMax {
				backoff = errorBackoffMax
			}
			if !m.pause(ctx, backoff) {
				m.shutdown(ctx)
				return nil
			}
			continue
		}

		consecutiveErrors = 0
		if !m.pause(ctx, m.cfg.PollingInterval()) {
			m.shutdown(ctx)
			return nil
		}
	}
}

// probeMarket verifies the configured pair exists on the venue before
// trading starts. A missing market is a configuration error, not a
// transient condition.
func (m *Maker) probeMarket(ctx context.Context) error {
	markets, err := infra.Retry(ctx, m.rt, "fetch_markets", func(ctx context.Context) ([]domain.Market, error) {
		return m.venue.FetchMarkets(ctx)
	})
	if err != nil {
		return fmt.Errorf("market probe failed: %w", err)
	}
	for _, mk := range markets {
		if mk.Symbol == m.pair {
			m.log.Info("market found", slog.String("pair", m.pair), slog.String("venue_id", mk.ID))
			return nil
		}
	}
	return fmt.Errorf("pair %s: %w", m.pair, domain.ErrMarketNotFound)
}

// tick runs one full cycle: reconcile, price, gate, converge.
func (m *Maker) tick(ctx context.Context) error {
	if err := m.tracker.Poll(ctx); err != nil {
		return fmt.Errorf("order reconciliation: %w", err)
	}

	balances, err := infra.Retry(ctx, m.rt, "fetch_balance", func(ctx context.Context) (map[string]domain.Balance, error) {
		return m.venue.FetchBalance(ctx)
	})
	if err != nil {
		return fmt.Errorf("balance fetch: %w", err)
	}
	baseBal := balances[m.base]
	quoteBal := balances[m.quote]

	book, err := infra.Retry(ctx, m.rt, "fetch_order_book", func(ctx context.Context) (*domain.OrderBook, error) {
		return m.venue.FetchOrderBook(ctx, m.pair)
	})
	if err != nil {
		return fmt.Errorf("order book fetch: %w", err)
	}

	// A failed ticker is tolerable: the resolver falls back to cached
	// values from earlier ticks.
	tick, err := infra.Retry(ctx, m.rt, "fetch_ticker", func(ctx context.Context) (*domain.Ticker, error) {
		return m.venue.FetchTicker(ctx, m.pair)
	})
	if err != nil {
		m.log.Warn("ticker fetch failed, resolving from cached state", slog.String("error", err.Error()))
		tick = nil
	}

	inv := m.inventoryView(baseBal, quoteBal)

	bids, asks := m.tracker.OwnPrices()
	own := pricing.OwnOrders{BidPrices: bids, AskPrices: asks}

	snap, err := m.resolver.Resolve(book, tick, own, inv, &m.cache)
	if errors.Is(err, domain.ErrPriceUnavailable) {
		m.log.Warn("no trustworthy price this tick, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("price resolution: %w", err)
	}

	mid, _ := snap.Mid.Float64()
	infra.SetMidPrice(mid)
	if inv.Known {
		ratio, _ := inv.Ratio.Float64()
		infra.SetInventoryRatio(ratio)
	}

	if m.planner.ShouldUpdate(snap.Mid, &m.anchor, m.now()) {
		m.anchor = domain.GridAnchor{Mid: snap.Mid, UpdatedAt: m.now()}
		if err := m.convergeGrid(ctx, snap, baseBal, quoteBal, inv); err != nil {
			return err
		}
	}

	m.recordPerformance(baseBal, quoteBal, inv)
	return nil
}

// convergeGrid cancels stale orders and places the missing levels of
// the freshly anchored grid. Per-order placement failures are logged
// and skipped; they do not abort the tick.
func (m *Maker) convergeGrid(ctx context.Context, snap *domain.PriceSnapshot, baseBal, quoteBal domain.Balance, inv pricing.InventoryView) error {
	ratio := m.cfg.Bot.TargetInventoryRatio
	if inv.Known {
		ratio = inv.Ratio
	}
	grid := m.planner.BuildGrid(snap.Mid, baseBal.Total, ratio)

	for _, stale := range m.planner.OutOfRange(m.tracker.OpenOrders(), grid, m.anchor.Mid) {
		if err := m.tracker.Cancel(ctx, stale.ID); err != nil {
			m.log.Warn("failed to cancel out-of-range order",
				slog.String("order_id", stale.ID),
				slog.String("error", err.Error()))
			continue
		}
		m.log.Info("cancelled out-of-range order",
			slog.String("order_id", stale.ID),
			slog.String("side", stale.Side),
			slog.String("price", stale.Price.String()))
	}

	// free funds decrease as this tick reserves them
	freeBase := baseBal.Free
	freeQuote := quoteBal.Free

	for _, g := range grid {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		placed, err := m.maybePlace(ctx, g, &freeBase, &freeQuote)
		if err != nil {
			m.log.Warn("order placement failed",
				slog.String("side", g.Side),
				slog.String("price", g.Price.String()),
				slog.String("error", err.Error()))
			continue
		}
		if placed {
			infra.IncOrderPlaced(g.Side)
		}
	}
	return nil
}

// maybePlace places one grid level unless an equivalent order already
// rests within 0.1% of the desired price. Sizes are shrunk to fit free
// funds (with a fee buffer on the quote side); a level that cannot
// meet the minimum size is skipped.
func (m *Maker) maybePlace(ctx context.Context, g strategy.GridOrder, freeBase, freeQuote *decimal.Decimal) (bool, error) {
	for _, o := range m.tracker.OpenOrders() {
		if o.Side != g.Side || !o.Price.IsPositive() {
			continue
		}
		if g.Price.Sub(o.Price).Abs().Div(o.Price).LessThan(duplicateThreshold) {
			m.log.Debug("equivalent order already resting",
				slog.String("side", g.Side),
				slog.String("desired", g.Price.String()),
				slog.String("resting", o.Price.String()))
			return false, nil
		}
	}

	size, ok := m.fitToFunds(g, freeBase, freeQuote)
	if !ok {
		return false, nil
	}

	order, err := infra.Retry(ctx, m.rt, "create_order", func(ctx context.Context) (*domain.TrackedOrder, error) {
		return m.venue.CreateOrder(ctx, m.pair, domain.OrderTypeLimit, g.Side, size, g.Price)
	})
	if err != nil {
		return false, err
	}
	if order.ID == "" {
		return false, errors.New("venue accepted order without an id")
	}
	if order.IsDead() {
		return false, fmt.Errorf("venue rejected order immediately: status %s", order.Status)
	}

	if !m.verifyPlacement(ctx, order.ID) {
		m.log.Warn("order not visible after placement, leaving it for reconciliation",
			slog.String("order_id", order.ID))
		return false, nil
	}

	m.tracker.Track(order)
	if err := m.store.RecordOrder(order); err != nil {
		m.log.Warn("failed to record placed order",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()))
	}
	m.log.Info("order placed",
		slog.String("order_id", order.ID),
		slog.String("side", g.Side),
		slog.String("price", g.Price.String()),
		slog.String("size", size.String()))

	m.reserveFunds(g.Side, size, g.Price, freeBase, freeQuote)
	return true, nil
}

// fitToFunds shrinks the level size to the free funds available this
// tick. Buys reserve price*size plus a fee buffer on the quote side.
func (m *Maker) fitToFunds(g strategy.GridOrder, freeBase, freeQuote *decimal.Decimal) (decimal.Decimal, bool) {
	size := g.Size
	switch g.Side {
	case domain.SideBuy:
		needed := g.Price.Mul(size).Mul(feeBuffer)
		if freeQuote.GreaterThanOrEqual(needed) {
			return size, true
		}
		size = freeQuote.Div(g.Price.Mul(feeBuffer))
	case domain.SideSell:
		if freeBase.GreaterThanOrEqual(size) {
			return size, true
		}
		size = *freeBase
	}

	if size.LessThan(m.cfg.Bot.MinOrderSize) {
		m.log.Debug("insufficient funds for grid level",
			slog.String("side", g.Side),
			slog.String("price", g.Price.String()))
		return decimal.Zero, false
	}
	m.log.Info("order size reduced to fit available funds",
		slog.String("side", g.Side),
		slog.String("requested", g.Size.String()),
		slog.String("adjusted", size.String()))
	return size, true
}

func (m *Maker) reserveFunds(side string, size, price decimal.Decimal, freeBase, freeQuote *decimal.Decimal) {
	switch side {
	case domain.SideBuy:
		*freeQuote = freeQuote.Sub(price.Mul(size).Mul(feeBuffer))
	case domain.SideSell:
		*freeBase = freeBase.Sub(size)
	}
}

// verifyPlacement confirms a freshly placed order is actually visible
// on the venue, first via the open list, then via a direct fetch.
func (m *Maker) verifyPlacement(ctx context.Context, id string) bool {
	for attempt := 1; attempt <= placementVerifyAttempts; attempt++ {
		open, err := infra.Retry(ctx, m.rt, "fetch_open_orders", func(ctx context.Context) ([]domain.TrackedOrder, error) {
			return m.venue.FetchOpenOrders(ctx, m.pair)
		})
		if err == nil {
			for _, o := range open {
				if o.ID == id {
					return true
				}
			}
		}

		order, err := infra.Retry(ctx, m.rt, "fetch_order", func(ctx context.Context) (*domain.TrackedOrder, error) {
			return m.venue.FetchOrder(ctx, id, m.pair)
		})
		if err == nil && !order.IsDead() {
			return true
		}

		if attempt < placementVerifyAttempts {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(placementVerifyDelay):
			}
		}
	}
	return false
}

// inventoryView values the portfolio at the last accepted mid. Before
// any mid has ever been accepted the ratio is unknown and the tick
// behaves as if inventory were on target.
func (m *Maker) inventoryView(baseBal, quoteBal domain.Balance) pricing.InventoryView {
	if !m.cache.AcceptedMid.IsPositive() {
		return pricing.InventoryView{}
	}
	baseValue := baseBal.Total.Mul(m.cache.AcceptedMid)
	total := baseValue.Add(quoteBal.Total)
	if !total.IsPositive() {
		return pricing.InventoryView{}
	}
	return pricing.InventoryView{Ratio: baseValue.Div(total), Known: true}
}

func (m *Maker) recordPerformance(baseBal, quoteBal domain.Balance, inv pricing.InventoryView) {
	if !m.cache.AcceptedMid.IsPositive() {
		return
	}
	p := &domain.PerformanceSnapshot{
		BaseBalance:     baseBal.Total,
		QuoteBalance:    quoteBal.Total,
		TotalValueQuote: baseBal.Total.Mul(m.cache.AcceptedMid).Add(quoteBal.Total),
		InventoryRatio:  inv.Ratio,
	}
	if err := m.store.RecordPerformance(p); err != nil {
		m.log.Warn("failed to record performance snapshot", slog.String("error", err.Error()))
	}
}

// pause sleeps cooperatively; false means ctx was cancelled.
func (m *Maker) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// shutdown cancels all resting orders under a bounded window, detached
// from the already-cancelled run context.
func (m *Maker) shutdown(ctx context.Context) {
	m.log.Info("shutting down, cancelling all open orders")
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	m.tracker.CancelAll(cancelCtx)
	m.log.Info("shutdown complete")
}
