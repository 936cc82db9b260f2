package strategy

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"gridmaker_go/internal/domain"
)

var (
	one  = decimal.NewFromInt(1)
	two  = decimal.NewFromInt(2)
	half = decimal.RequireFromString("0.5")

	// cancellation buffer beyond the ladder extremes
	rangeBuffer = decimal.RequireFromString("0.1")
)

// GridConfig is the grid shape and rebalancing policy.
type GridConfig struct {
	Levels               int
	Spread               decimal.Decimal // per-level spacing as a fraction of the mid
	MinOrderSize         decimal.Decimal // base order size per level
	MaxPosition          decimal.Decimal // max base exposure including pending buys
	TargetInventoryRatio decimal.Decimal
	InventoryTolerance   decimal.Decimal
	PollingInterval      time.Duration
}

// GridOrder is a desired quote produced by the planner. Placement,
// funds validation, and duplicate suppression happen downstream.
type GridOrder struct {
	Side  string
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Planner decides when the grid re-anchors and what quotes it carries.
type Planner struct {
	cfg GridConfig
	log *slog.Logger
}

// NewPlanner creates a grid planner with the given policy.
func NewPlanner(cfg GridConfig) *Planner {
	return &Planner{cfg: cfg, log: slog.Default().With("module", "strategy")}
}

// ShouldUpdate is the grid stability gate. The grid re-anchors only
// when the mid has drifted more than half a grid step AND the cooldown
// of three polling intervals has elapsed. Both conditions together
// prevent churn from noise and from rapid oscillation.
func (p *Planner) ShouldUpdate(mid decimal.Decimal, anchor *domain.GridAnchor, now time.Time) bool {
	if anchor == nil || !anchor.Mid.IsPositive() {
		return true
	}

	cooldown := 3 * p.cfg.PollingInterval
	if now.Sub(anchor.UpdatedAt) < cooldown {
		p.log.Debug("grid update suppressed by cooldown",
			slog.Duration("since_update", now.Sub(anchor.UpdatedAt)),
			slog.Duration("cooldown", cooldown))
		return false
	}

	threshold := anchor.Mid.Mul(p.cfg.Spread).Div(two)
	drift := mid.Sub(anchor.Mid).Abs()
	if drift.LessThan(threshold) {
		p.log.Debug("grid update suppressed by drift threshold",
			slog.String("drift", drift.String()),
			slog.String("threshold", threshold.String()))
		return false
	}

	p.log.Info("grid re-anchoring",
		slog.String("old_mid", anchor.Mid.String()),
		slog.String("new_mid", mid.String()),
		slog.String("drift", drift.String()))
	return true
}

// BuildGrid lays symmetric buy/sell ladders around the mid. Buy levels
// stop once base exposure (held plus pending buys) would exceed
// MaxPosition. Sizes are skewed toward the side that restores the
// target inventory ratio.
func (p *Planner) BuildGrid(mid, heldBase, invRatio decimal.Decimal) []GridOrder {
	if !mid.IsPositive() {
		return nil
	}

	var orders []GridOrder
	pendingBuys := decimal.Zero

	for i := 1; i <= p.cfg.Levels; i++ {
		step := p.cfg.Spread.Mul(decimal.NewFromInt(int64(i)))

		buySize := p.AdjustForInventory(domain.SideBuy, p.cfg.MinOrderSize, invRatio)
		if buySize.IsPositive() {
			exposure := heldBase.Add(pendingBuys).Add(buySize)
			if p.cfg.MaxPosition.IsPositive() && exposure.GreaterThan(p.cfg.MaxPosition) {
				p.log.Debug("buy level skipped, max position reached",
					slog.Int("level", i),
					slog.String("exposure", exposure.String()))
			} else {
				orders = append(orders, GridOrder{
					Side:  domain.SideBuy,
					Price: mid.Mul(one.Sub(step)),
					Size:  buySize,
				})
				pendingBuys = pendingBuys.Add(buySize)
			}
		}

		sellSize := p.AdjustForInventory(domain.SideSell, p.cfg.MinOrderSize, invRatio)
		if sellSize.IsPositive() {
			orders = append(orders, GridOrder{
				Side:  domain.SideSell,
				Price: mid.Mul(one.Add(step)),
				Size:  sellSize,
			})
		}
	}
	return orders
}

// AdjustForInventory skews a level size toward rebalancing. Within
// tolerance sizes are untouched. Beyond it the favored side scales up
// to 1.5x and the disfavored side down to 0.5x, proportional to how
// far the ratio sits outside the tolerance band (capped at 2x the
// band width).
func (p *Planner) AdjustForInventory(side string, size, ratio decimal.Decimal) decimal.Decimal {
	diff := ratio.Sub(p.cfg.TargetInventoryRatio)
	if diff.Abs().LessThanOrEqual(p.cfg.InventoryTolerance) {
		return size
	}
	if !p.cfg.InventoryTolerance.IsPositive() {
		return size
	}

	// skew in (0, 1]: how far past the tolerance band we are
	skew := diff.Abs().Sub(p.cfg.InventoryTolerance).Div(p.cfg.InventoryTolerance)
	if skew.GreaterThan(one) {
		skew = one
	}

	tooMuchBase := diff.IsPositive()
	favored := (tooMuchBase && side == domain.SideSell) || (!tooMuchBase && side == domain.SideBuy)
	if favored {
		return size.Mul(one.Add(skew.Mul(half)))
	}
	return size.Mul(one.Sub(skew.Mul(half)))
}

// OutOfRange returns open orders that no longer belong to the current
// grid: priced beyond the ladder extremes plus a 10% buffer, or
// resting on the wrong side of the anchor (a buy at or above the mid,
// a sell at or below it).
func (p *Planner) OutOfRange(open []domain.TrackedOrder, grid []GridOrder, anchorMid decimal.Decimal) []domain.TrackedOrder {
	if len(open) == 0 {
		return nil
	}

	var lowestBuy, highestSell decimal.Decimal
	for _, g := range grid {
		switch g.Side {
		case domain.SideBuy:
			if !lowestBuy.IsPositive() || g.Price.LessThan(lowestBuy) {
				lowestBuy = g.Price
			}
		case domain.SideSell:
			if g.Price.GreaterThan(highestSell) {
				highestSell = g.Price
			}
		}
	}

	var stale []domain.TrackedOrder
	for _, o := range open {
		switch {
		case lowestBuy.IsPositive() && o.Price.LessThan(lowestBuy.Mul(one.Sub(rangeBuffer))):
			stale = append(stale, o)
		case highestSell.IsPositive() && o.Price.GreaterThan(highestSell.Mul(one.Add(rangeBuffer))):
			stale = append(stale, o)
		case anchorMid.IsPositive() && o.Side == domain.SideBuy && o.Price.GreaterThanOrEqual(anchorMid):
			stale = append(stale, o)
		case anchorMid.IsPositive() && o.Side == domain.SideSell && o.Price.LessThanOrEqual(anchorMid):
			stale = append(stale, o)
		}
	}
	if len(stale) > 0 {
		p.log.Info("found out-of-range orders", slog.Int("count", len(stale)))
	}
	return stale
}
