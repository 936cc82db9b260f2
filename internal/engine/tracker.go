package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridmaker_go/internal/domain"
	"gridmaker_go/internal/infra"
)

type phase int

const (
	phaseOpen phase = iota
	phaseDisappeared
)

type orderState struct {
	order         domain.TrackedOrder
	phase         phase
	disappearedAt time.Time
}

// Tracker owns the order lifecycle: every order the bot places is
// tracked until it settles. An order missing from the venue's open
// list is not finalized immediately; it enters a settlement window
// first, because a just-filled order can briefly vanish from the open
// list before its final state is queryable.
type Tracker struct {
	venue             domain.Venue
	store             domain.Store
	rt                *infra.RetryTransport
	log               *slog.Logger
	pair              string
	settlementTimeout time.Duration

	mu     sync.Mutex
	orders map[string]*orderState

	now func() time.Time
}

// NewTracker creates a tracker for the given pair.
func NewTracker(venue domain.Venue, store domain.Store, rt *infra.RetryTransport, pair string, settlementTimeout time.Duration) *Tracker {
	return &Tracker{
		venue:             venue,
		store:             store,
		rt:                rt,
		log:               slog.Default().With("module", "tracker"),
		pair:              pair,
		settlementTimeout: settlementTimeout,
		orders:            make(map[string]*orderState),
		now:               time.Now,
	}
}

// Track registers a freshly placed order.
func (t *Tracker) Track(order *domain.TrackedOrder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orders[order.ID] = &orderState{order: *order, phase: phaseOpen}
}

// Poll fetches the venue's open orders and reconciles tracked state
// against them.
func (t *Tracker) Poll(ctx context.Context) error {
	open, err := infra.Retry(ctx, t.rt, "fetch_open_orders", func(ctx context.Context) ([]domain.TrackedOrder, error) {
		return t.venue.FetchOpenOrders(ctx, t.pair)
	})
	if err != nil {
		return err
	}
	t.Reconcile(ctx, open, t.now())
	return nil
}

// Reconcile updates every tracked order against the venue's open list.
// It is idempotent: reconciling the same list twice changes nothing.
//
// Still-open orders are refreshed in place. Orders missing from the
// list enter the settlement window; they finalize only after the
// window elapses, exactly once. Venue orders the tracker has never
// seen are adopted so a restart does not orphan live quotes.
func (t *Tracker) Reconcile(ctx context.Context, open []domain.TrackedOrder, now time.Time) {
	byID := make(map[string]domain.TrackedOrder, len(open))
	for _, o := range open {
		byID[o.ID] = o
	}

	t.mu.Lock()
	var due []*orderState
	for id, st := range t.orders {
		if fresh, ok := byID[id]; ok {
			st.order.Filled = fresh.Filled
			st.order.Status = fresh.Status
			st.phase = phaseOpen
			st.disappearedAt = time.Time{}
			continue
		}
		switch st.phase {
		case phaseOpen:
			st.phase = phaseDisappeared
			st.disappearedAt = now
			t.log.Info("order left the open list, settlement window started",
				slog.String("order_id", id),
				slog.Duration("window", t.settlementTimeout))
		case phaseDisappeared:
			if now.Sub(st.disappearedAt) >= t.settlementTimeout {
				due = append(due, st)
				delete(t.orders, id)
			}
		}
	}
	for id, o := range byID {
		if _, tracked := t.orders[id]; !tracked {
			t.orders[id] = &orderState{order: o, phase: phaseOpen}
			t.log.Info("adopted untracked open order", slog.String("order_id", id))
		}
	}
	t.mu.Unlock()

	for _, st := range due {
		t.finalize(ctx, st)
	}
}

// finalize settles an order that stayed off the open list for the full
// settlement window. The final fill is fetched directly from the venue
// when possible; on failure the last known fill is used, so settlement
// always completes.
func (t *Tracker) finalize(ctx context.Context, st *orderState) {
	final := st.order
	fetched, err := infra.Retry(ctx, t.rt, "fetch_order", func(ctx context.Context) (*domain.TrackedOrder, error) {
		return t.venue.FetchOrder(ctx, st.order.ID, t.pair)
	})
	switch {
	case err == nil:
		final = *fetched
	case errors.Is(err, domain.ErrOrderNotFound):
		t.log.Warn("order vanished from venue history, settling on last known state",
			slog.String("order_id", st.order.ID))
	default:
		t.log.Warn("could not fetch final order state, settling on last known state",
			slog.String("order_id", st.order.ID),
			slog.String("error", err.Error()))
	}

	if err := t.store.UpdateOrderStatus(final.ID, domain.OrderStatusClosed); err != nil {
		t.log.Error("failed to record order closure",
			slog.String("order_id", final.ID),
			slog.String("error", err.Error()))
	}

	if final.Filled.IsPositive() {
		trade := &domain.TradeRecord{
			ID:       uuid.NewString(),
			OrderID:  final.ID,
			Pair:     final.Pair,
			Side:     final.Side,
			Price:    final.Price,
			Quantity: final.Filled,
		}
		if err := t.store.RecordTrade(trade); err != nil {
			t.log.Error("failed to record trade",
				slog.String("order_id", final.ID),
				slog.String("error", err.Error()))
		}
		infra.IncTradeFinalized()
		t.log.Info("trade finalized",
			slog.String("order_id", final.ID),
			slog.String("side", final.Side),
			slog.String("price", final.Price.String()),
			slog.String("filled", final.Filled.String()))
	} else {
		t.log.Info("order settled without fills", slog.String("order_id", final.ID))
	}
}

// Cancel cancels a tracked order and stops tracking it. An order the
// venue no longer knows counts as cancelled.
func (t *Tracker) Cancel(ctx context.Context, id string) error {
	_, err := infra.Retry(ctx, t.rt, "cancel_order", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.venue.CancelOrder(ctx, id, t.pair)
	})
	if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		return err
	}

	t.mu.Lock()
	delete(t.orders, id)
	t.mu.Unlock()

	if err := t.store.UpdateOrderStatus(id, domain.OrderStatusCancelled); err != nil {
		t.log.Error("failed to record cancellation",
			slog.String("order_id", id),
			slog.String("error", err.Error()))
	}
	infra.IncOrderCancelled()
	return nil
}

// CancelAll cancels every tracked order concurrently, then verifies
// against the venue that nothing survived, re-cancelling residuals for
// up to five passes. Residuals after the last pass are logged, never
// fatal: shutdown must complete regardless.
func (t *Tracker) CancelAll(ctx context.Context) {
	t.mu.Lock()
	ids := make([]string, 0, len(t.orders))
	for id := range t.orders {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	t.log.Info("cancelling all open orders", slog.Int("count", len(ids)))

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := t.Cancel(ctx, id); err != nil {
				t.log.Warn("cancel failed",
					slog.String("order_id", id),
					slog.String("error", err.Error()))
			}
		}(id)
	}
	wg.Wait()

	for pass := 1; pass <= 5; pass++ {
		select {
		case <-ctx.Done():
			t.log.Warn("cancel verification aborted", slog.String("error", ctx.Err().Error()))
			return
		case <-time.After(2 * time.Second):
		}

		open, err := infra.Retry(ctx, t.rt, "fetch_open_orders", func(ctx context.Context) ([]domain.TrackedOrder, error) {
			return t.venue.FetchOpenOrders(ctx, t.pair)
		})
		if err != nil {
			t.log.Warn("cancel verification fetch failed",
				slog.Int("pass", pass),
				slog.String("error", err.Error()))
			continue
		}
		if len(open) == 0 {
			t.log.Info("all orders cancelled", slog.Int("passes", pass))
			t.mu.Lock()
			t.orders = make(map[string]*orderState)
			t.mu.Unlock()
			return
		}

		t.log.Warn("orders survived cancellation, retrying",
			slog.Int("pass", pass),
			slog.Int("remaining", len(open)))
		for _, o := range open {
			if err := t.Cancel(ctx, o.ID); err != nil {
				t.log.Warn("residual cancel failed",
					slog.String("order_id", o.ID),
					slog.String("error", err.Error()))
			}
		}
	}
	t.log.Error("orders may still be open after cancellation passes")
}

// OpenOrders returns a snapshot of tracked orders still resting on the
// venue. Orders in the settlement window are excluded: they are no
// longer cancellable quotes, and cancelling one would lose its fill.
func (t *Tracker) OpenOrders() []domain.TrackedOrder {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.TrackedOrder, 0, len(t.orders))
	for _, st := range t.orders {
		if st.phase == phaseOpen {
			out = append(out, st.order)
		}
	}
	return out
}

// OwnPrices returns the tracked resting prices by side, for self-order
// exclusion in price resolution.
func (t *Tracker) OwnPrices() (bids, asks []decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, st := range t.orders {
		switch st.order.Side {
		case domain.SideBuy:
			bids = append(bids, st.order.Price)
		case domain.SideSell:
			asks = append(asks, st.order.Price)
		}
	}
	return bids, asks
}
