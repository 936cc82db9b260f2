package pricing

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"gridmaker_go/internal/domain"
	"gridmaker_go/internal/infra"
)

var (
	two           = decimal.NewFromInt(2)
	one           = decimal.NewFromInt(1)
	half          = decimal.RequireFromString("0.5")
	synthBidScale = decimal.RequireFromString("0.999")
	synthAskScale = decimal.RequireFromString("1.001")
)

// Config is the resolver policy, taken from the bot configuration.
type Config struct {
	FilterReference      string          // primary source for the outlier band reference
	MaxDeviation         decimal.Decimal // band half-width as a fraction; zero disables filtering
	OutOfRangeFallback   bool            // enable fallback pricing when the filtered book is unusable
	OutOfRangePriceMode  string          // price mode when all levels are filtered out
	ClampPolicy          string          // infra.ClampUp or infra.ClampBoth
	TargetInventoryRatio decimal.Decimal
	InventoryTolerance   decimal.Decimal
}

// OwnOrders lists the bot's own resting prices. Levels at these prices
// are excluded from filtering and reference selection so the strategy
// never prices against itself.
type OwnOrders struct {
	BidPrices []decimal.Decimal
	AskPrices []decimal.Decimal
}

// InventoryView is the per-tick inventory ratio input for directional
// synthetic quoting. Known is false when no price was available to
// value the portfolio; the resolver then assumes on-target inventory.
type InventoryView struct {
	Ratio decimal.Decimal
	Known bool
}

// Cache is the explicit "last known market state" threaded between
// ticks. It replaces ad hoc mutable fields so Resolve stays
// deterministic given its inputs.
type Cache struct {
	VWAP        decimal.Decimal // last venue-reported VWAP
	TickerBid   decimal.Decimal
	TickerAsk   decimal.Decimal
	LastPrice   decimal.Decimal // last observed trade price
	AcceptedMid decimal.Decimal // last mid-price accepted by a tick

	// nearest_bid/nearest_ask references snapped during the current tick
	nearestBid decimal.Decimal
	nearestAsk decimal.Decimal
}

// Resolver turns a raw book + ticker snapshot into a single trusted
// mid-price, applying outlier filtering and an ordered fallback
// hierarchy when the book is unusable.
type Resolver struct {
	cfg Config
	log *slog.Logger
}

// NewResolver creates a resolver with the given policy.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg, log: slog.Default().With("module", "pricing")}
}

// Resolve produces the tick's PriceSnapshot, or domain.ErrPriceUnavailable
// when no source yields a positive price. Callers must skip grid
// computation that tick, not crash.
func (r *Resolver) Resolve(book *domain.OrderBook, tick *domain.Ticker, own OwnOrders, inv InventoryView, cache *Cache) (*domain.PriceSnapshot, error) {
	if book == nil {
		book = &domain.OrderBook{}
	}
	cache.observeTicker(tick)
	cache.nearestBid = decimal.Zero
	cache.nearestAsk = decimal.Zero

	ref := r.filterReference(cache)

	filtered := book
	snap := &domain.PriceSnapshot{}
	if ref.IsPositive() && r.cfg.MaxDeviation.IsPositive() {
		filtered = filterBook(book, ref, r.cfg.MaxDeviation, own)

		// nearest_bid/nearest_ask snap the reference to the closest real
		// level, then re-filter once around it.
		switch r.cfg.FilterReference {
		case infra.RefModeNearestBid:
			if snapped, ok := nearestLevel(book.Bids, own.BidPrices, ref); ok {
				cache.nearestBid = snapped
				ref = snapped
				filtered = filterBook(book, ref, r.cfg.MaxDeviation, own)
			}
		case infra.RefModeNearestAsk:
			if snapped, ok := nearestLevel(book.Asks, own.AskPrices, ref); ok {
				cache.nearestAsk = snapped
				ref = snapped
				filtered = filterBook(book, ref, r.cfg.MaxDeviation, own)
			}
		}

		r.log.Debug("order book filtered",
			slog.String("reference", ref.String()),
			slog.Int("bids", len(filtered.Bids)),
			slog.Int("asks", len(filtered.Asks)),
			slog.Int("raw_bids", len(book.Bids)),
			slog.Int("raw_asks", len(book.Asks)))

		// Directional synthetic quote: keep the mid computable when a side
		// filtered empty, biased toward the side that helps rebalancing.
		if r.cfg.OutOfRangeFallback && (len(filtered.Bids) == 0 || len(filtered.Asks) == 0) {
			if dir, ok := r.directionalReference(book, own, inv); ok {
				if len(filtered.Bids) == 0 {
					price := dir.Mul(synthBidScale)
					filtered.Bids = []domain.BookLevel{{Price: price, Size: one}}
					snap.SyntheticBid = true
					r.log.Info("injected synthetic bid for directional rebalancing",
						slog.String("price", price.String()))
				}
				if len(filtered.Asks) == 0 {
					price := dir.Mul(synthAskScale)
					filtered.Asks = []domain.BookLevel{{Price: price, Size: one}}
					snap.SyntheticAsk = true
					r.log.Info("injected synthetic ask for directional rebalancing",
						slog.String("price", price.String()))
				}
			}
		}
	}

	var mid decimal.Decimal
	var source domain.PriceSource

	bb, hasBid := filtered.BestBid()
	ba, hasAsk := filtered.BestAsk()
	if hasBid {
		snap.BestBid = bb.Price
	}
	if hasAsk {
		snap.BestAsk = ba.Price
	}

	switch {
	case hasBid && hasAsk:
		mid = bb.Price.Add(ba.Price).Div(two)
		source = domain.SourceBook
		if snap.SyntheticBid || snap.SyntheticAsk {
			source = domain.SourceSynthetic
		}
	case !r.cfg.OutOfRangeFallback:
		r.log.Warn("order book unusable and fallback pricing disabled")
		return nil, domain.ErrPriceUnavailable
	default:
		var ok bool
		mid, source, ok = r.fallbackMid(book, own, cache)
		if !ok {
			r.log.Error("no source yielded a positive price")
			return nil, domain.ErrPriceUnavailable
		}
	}

	mid = r.clampExtremeMove(mid, cache)
	cache.AcceptedMid = mid

	snap.Mid = mid
	snap.Source = source
	return snap, nil
}

// observeTicker folds a fresh ticker into the cache.
func (c *Cache) observeTicker(tick *domain.Ticker) {
	if tick == nil {
		return
	}
	if tick.VWAP.IsPositive() {
		c.VWAP = tick.VWAP
	}
	if tick.Last.IsPositive() {
		c.LastPrice = tick.Last
	}
	if tick.Bid.IsPositive() {
		c.TickerBid = tick.Bid
	}
	if tick.Ask.IsPositive() {
		c.TickerAsk = tick.Ask
	}
}

func (c *Cache) tickerMid() (decimal.Decimal, bool) {
	t := domain.Ticker{Bid: c.TickerBid, Ask: c.TickerAsk}
	return t.Mid()
}

// filterReference picks the outlier-band reference from the configured
// source, falling through stored VWAP → guarded ticker mid → last price.
func (r *Resolver) filterReference(cache *Cache) decimal.Decimal {
	var ref decimal.Decimal

	switch r.cfg.FilterReference {
	case infra.RefModeVWAP:
		ref = cache.VWAP
	case infra.RefModeNearestBid, infra.RefModeNearestAsk:
		// These need a stable base first; the snap to an actual level
		// happens after the book is known.
		ref = cache.VWAP
		if !ref.IsPositive() {
			if mid, ok := cache.tickerMid(); ok {
				ref = mid
			}
		}
	case infra.RefModeTickerMid:
		if cache.TickerBid.IsPositive() && cache.TickerAsk.IsPositive() {
			ref = cache.TickerBid.Add(cache.TickerAsk).Div(two)
		}
	case infra.RefModeLast:
		ref = cache.LastPrice
	}
	if ref.IsPositive() {
		return ref
	}

	if cache.VWAP.IsPositive() {
		r.log.Warn("using stored VWAP as filter reference fallback",
			slog.String("reference", cache.VWAP.String()))
		return cache.VWAP
	}
	if mid, ok := cache.tickerMid(); ok {
		r.log.Warn("using ticker mid as filter reference fallback",
			slog.String("reference", mid.String()))
		return mid
	}
	if cache.LastPrice.IsPositive() {
		r.log.Warn("using last observed price as filter reference fallback (may be unreliable)",
			slog.String("reference", cache.LastPrice.String()))
		return cache.LastPrice
	}
	return decimal.Zero
}

// fallbackMid evaluates the ordered fallback strategies for the
// configured out-of-range price mode. Each strategy is pure: it either
// yields a positive price or defers to the next one.
func (r *Resolver) fallbackMid(book *domain.OrderBook, own OwnOrders, cache *Cache) (decimal.Decimal, domain.PriceSource, bool) {
	type priceStrategy struct {
		source domain.PriceSource
		fn     func() (decimal.Decimal, bool)
	}

	positive := func(d decimal.Decimal) (decimal.Decimal, bool) { return d, d.IsPositive() }

	vwap := priceStrategy{domain.SourceVWAP, func() (decimal.Decimal, bool) { return positive(cache.VWAP) }}
	tickerMid := priceStrategy{domain.SourceTickerMid, cache.tickerMid}
	last := priceStrategy{domain.SourceLast, func() (decimal.Decimal, bool) { return positive(cache.LastPrice) }}

	var chain []priceStrategy
	switch r.cfg.OutOfRangePriceMode {
	case infra.RefModeNearestBid:
		chain = append(chain,
			priceStrategy{domain.SourceNearestBid, func() (decimal.Decimal, bool) { return positive(cache.nearestBid) }},
			priceStrategy{domain.SourceNearestBid, func() (decimal.Decimal, bool) {
				return bestLevelExcluding(book.Bids, own.BidPrices)
			}})
	case infra.RefModeNearestAsk:
		chain = append(chain,
			priceStrategy{domain.SourceNearestAsk, func() (decimal.Decimal, bool) { return positive(cache.nearestAsk) }},
			priceStrategy{domain.SourceNearestAsk, func() (decimal.Decimal, bool) {
				return bestLevelExcluding(book.Asks, own.AskPrices)
			}})
	case infra.RefModeVWAP, infra.RefModeAuto:
		chain = append(chain, vwap)
	}
	chain = append(chain, tickerMid, last)

	for _, s := range chain {
		if price, ok := s.fn(); ok {
			r.log.Info("using fallback price source",
				slog.String("mode", r.cfg.OutOfRangePriceMode),
				slog.String("source", string(s.source)),
				slog.String("price", price.String()))
			return price, s.source, true
		}
	}
	return decimal.Zero, "", false
}

// directionalReference picks the raw-book price that helps inventory
// rebalancing: too much base favors bids (to sell), too little favors
// asks (to buy). Within tolerance there is no preference.
func (r *Resolver) directionalReference(book *domain.OrderBook, own OwnOrders, inv InventoryView) (decimal.Decimal, bool) {
	ratio := r.cfg.TargetInventoryRatio
	if inv.Known {
		ratio = inv.Ratio
	}
	diff := ratio.Sub(r.cfg.TargetInventoryRatio)

	switch {
	case diff.GreaterThan(r.cfg.InventoryTolerance): // too much base, need to sell
		if best, ok := bestLevelExcluding(book.Bids, own.BidPrices); ok {
			r.log.Info("favoring bid side for rebalancing", slog.String("reference", best.String()))
			return best, true
		}
	case diff.LessThan(r.cfg.InventoryTolerance.Neg()): // too little base, need to buy
		if best, ok := bestLevelExcluding(book.Asks, own.AskPrices); ok {
			r.log.Info("favoring ask side for rebalancing", slog.String("reference", best.String()))
			return best, true
		}
	}
	return decimal.Zero, false
}

// clampExtremeMove guards against a single corrupted tick causing an
// extreme re-price. Moves beyond 50% of the last accepted mid are
// logged; inflated mids are replaced by the last accepted mid, and
// with ClampBoth collapsed mids are too.
func (r *Resolver) clampExtremeMove(mid decimal.Decimal, cache *Cache) decimal.Decimal {
	if !cache.AcceptedMid.IsPositive() {
		return mid
	}
	change := mid.Sub(cache.AcceptedMid).Abs().Div(cache.AcceptedMid)
	if change.LessThanOrEqual(half) {
		return mid
	}

	r.log.Warn("extreme price movement detected",
		slog.String("mid", mid.String()),
		slog.String("last_accepted", cache.AcceptedMid.String()),
		slog.String("change", change.String()))

	if mid.GreaterThan(cache.AcceptedMid) {
		r.log.Warn("using last accepted mid instead of inflated mid")
		return cache.AcceptedMid
	}
	if r.cfg.ClampPolicy == infra.ClampBoth {
		r.log.Warn("using last accepted mid instead of collapsed mid")
		return cache.AcceptedMid
	}
	return mid
}

// filterBook retains levels within ref × (1 ± dev). The bot's own
// resting prices are dropped regardless of the band.
func filterBook(book *domain.OrderBook, ref, dev decimal.Decimal, own OwnOrders) *domain.OrderBook {
	min := ref.Mul(one.Sub(dev))
	max := ref.Mul(one.Add(dev))

	out := &domain.OrderBook{}
	for _, lvl := range book.Bids {
		if containsPrice(own.BidPrices, lvl.Price) {
			continue
		}
		if lvl.Price.GreaterThanOrEqual(min) && lvl.Price.LessThanOrEqual(max) {
			out.Bids = append(out.Bids, lvl)
		}
	}
	for _, lvl := range book.Asks {
		if containsPrice(own.AskPrices, lvl.Price) {
			continue
		}
		if lvl.Price.GreaterThanOrEqual(min) && lvl.Price.LessThanOrEqual(max) {
			out.Asks = append(out.Asks, lvl)
		}
	}
	return out
}

// nearestLevel returns the non-self level closest to ref by absolute distance.
func nearestLevel(levels []domain.BookLevel, ownPrices []decimal.Decimal, ref decimal.Decimal) (decimal.Decimal, bool) {
	var nearest decimal.Decimal
	var nearestDist decimal.Decimal
	found := false
	for _, lvl := range levels {
		if containsPrice(ownPrices, lvl.Price) {
			continue
		}
		dist := lvl.Price.Sub(ref).Abs()
		if !found || dist.LessThan(nearestDist) {
			nearest, nearestDist, found = lvl.Price, dist, true
		}
	}
	return nearest, found
}

// bestLevelExcluding returns the first (best) non-self level price.
func bestLevelExcluding(levels []domain.BookLevel, ownPrices []decimal.Decimal) (decimal.Decimal, bool) {
	for _, lvl := range levels {
		if !containsPrice(ownPrices, lvl.Price) {
			return lvl.Price, true
		}
	}
	return decimal.Zero, false
}

func containsPrice(prices []decimal.Decimal, p decimal.Decimal) bool {
	for _, q := range prices {
		if q.Equal(p) {
			return true
		}
	}
	return false
}
