package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gridmaker_go/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testPlanner() *Planner {
	return NewPlanner(GridConfig{
		Levels:               3,
		Spread:               d("0.01"),
		MinOrderSize:         d("1"),
		TargetInventoryRatio: d("0.5"),
		InventoryTolerance:   d("0.15"),
		PollingInterval:      time.Second,
	})
}

func TestShouldUpdate(t *testing.T) {
	p := testPlanner()
	now := time.Now()
	// anchor old enough that the cooldown has elapsed
	anchor := &domain.GridAnchor{Mid: d("100"), UpdatedAt: now.Add(-10 * time.Second)}

	t.Run("no anchor yet", func(t *testing.T) {
		assert.True(t, p.ShouldUpdate(d("100"), nil, now))
		assert.True(t, p.ShouldUpdate(d("100"), &domain.GridAnchor{}, now))
	})

	t.Run("drift below half a grid step", func(t *testing.T) {
		// threshold = 100 * 0.01 / 2 = 0.5
		assert.False(t, p.ShouldUpdate(d("100.4"), anchor, now))
	})

	t.Run("drift at or above half a grid step", func(t *testing.T) {
		assert.True(t, p.ShouldUpdate(d("100.5"), anchor, now))
		assert.True(t, p.ShouldUpdate(d("100.6"), anchor, now))
		assert.True(t, p.ShouldUpdate(d("99.4"), anchor, now))
	})

	t.Run("cooldown suppresses even large moves", func(t *testing.T) {
		fresh := &domain.GridAnchor{Mid: d("100"), UpdatedAt: now.Add(-time.Second)}
		assert.False(t, p.ShouldUpdate(d("150"), fresh, now))
	})
}

func TestBuildGrid(t *testing.T) {
	p := testPlanner()

	t.Run("symmetric ladder at target inventory", func(t *testing.T) {
		grid := p.BuildGrid(d("100"), decimal.Zero, d("0.5"))
		assert.Len(t, grid, 6)

		var buys, sells []GridOrder
		for _, g := range grid {
			if g.Side == domain.SideBuy {
				buys = append(buys, g)
			} else {
				sells = append(sells, g)
			}
		}
		assert.Len(t, buys, 3)
		assert.Len(t, sells, 3)
		assert.True(t, buys[0].Price.Equal(d("99")), "level 1 buy = %s", buys[0].Price)
		assert.True(t, buys[2].Price.Equal(d("97")))
		assert.True(t, sells[0].Price.Equal(d("101")))
		assert.True(t, sells[2].Price.Equal(d("103")))
		for _, g := range grid {
			assert.True(t, g.Size.Equal(d("1")))
		}
	})

	t.Run("max position caps buy levels", func(t *testing.T) {
		cfg := testPlanner().cfg
		cfg.MaxPosition = d("2")
		p := NewPlanner(cfg)

		grid := p.BuildGrid(d("100"), d("1"), d("0.5"))
		buys := 0
		for _, g := range grid {
			if g.Side == domain.SideBuy {
				buys++
			}
		}
		// held 1 + one pending buy reaches the cap of 2
		assert.Equal(t, 1, buys)
	})

	t.Run("no grid without a price", func(t *testing.T) {
		assert.Nil(t, p.BuildGrid(decimal.Zero, decimal.Zero, d("0.5")))
	})
}

func TestAdjustForInventory(t *testing.T) {
	p := testPlanner()

	t.Run("within tolerance unchanged", func(t *testing.T) {
		assert.True(t, p.AdjustForInventory(domain.SideBuy, d("1"), d("0.6")).Equal(d("1")))
		assert.True(t, p.AdjustForInventory(domain.SideSell, d("1"), d("0.4")).Equal(d("1")))
	})

	t.Run("too much base skews toward sells", func(t *testing.T) {
		// ratio 0.8: skew capped at 1 -> sell 1.5x, buy 0.5x
		sell := p.AdjustForInventory(domain.SideSell, d("1"), d("0.8"))
		buy := p.AdjustForInventory(domain.SideBuy, d("1"), d("0.8"))
		assert.True(t, sell.Equal(d("1.5")), "sell = %s", sell)
		assert.True(t, buy.Equal(d("0.5")), "buy = %s", buy)
	})

	t.Run("too little base skews toward buys", func(t *testing.T) {
		buy := p.AdjustForInventory(domain.SideBuy, d("1"), d("0.2"))
		sell := p.AdjustForInventory(domain.SideSell, d("1"), d("0.2"))
		assert.True(t, buy.Equal(d("1.5")))
		assert.True(t, sell.Equal(d("0.5")))
	})
}

func TestOutOfRange(t *testing.T) {
	p := testPlanner()
	grid := p.BuildGrid(d("100"), decimal.Zero, d("0.5")) // buys 99..97, sells 101..103
	anchor := d("100")

	open := []domain.TrackedOrder{
		{ID: "keep-buy", Side: domain.SideBuy, Price: d("98")},
		{ID: "keep-sell", Side: domain.SideSell, Price: d("102")},
		{ID: "far-buy", Side: domain.SideBuy, Price: d("85")},     // below 97*0.9
		{ID: "far-sell", Side: domain.SideSell, Price: d("120")},  // above 103*1.1
		{ID: "wrong-buy", Side: domain.SideBuy, Price: d("101")},  // buy above anchor
		{ID: "wrong-sell", Side: domain.SideSell, Price: d("99")}, // sell below anchor
	}

	stale := p.OutOfRange(open, grid, anchor)
	ids := make([]string, 0, len(stale))
	for _, o := range stale {
		ids = append(ids, o.ID)
	}
	assert.ElementsMatch(t, []string{"far-buy", "far-sell", "wrong-buy", "wrong-sell"}, ids)

	assert.Nil(t, p.OutOfRange(nil, grid, anchor))
}
