// Prometheus metrics the bot updates during operation:
//
//   - mm_venue_calls_total{op,outcome}  – venue calls by operation and outcome
//   - mm_retry_attempts_total{op}       – retry attempts per operation label
//   - mm_orders_placed_total{side}      – verified order placements
//   - mm_orders_cancelled_total         – acknowledged cancellations
//   - mm_trades_finalized_total         – trade records emitted at finalization
//   - mm_tick_errors_total              – market-making ticks that failed
//   - mm_mid_price                      – last accepted mid-price (gauge)
//   - mm_inventory_ratio                – current inventory ratio (gauge)
//
// Registered in init() and served at /metrics by the HTTP listener
// started at application bootstrap.
package infra

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxVenueCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mm_venue_calls_total",
			Help: "Venue calls by operation and outcome",
		},
		[]string{"op", "outcome"}, // outcome: ok|error
	)

	mtxRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mm_retry_attempts_total",
			Help: "Retry attempts per operation label",
		},
		[]string{"op"},
	)

	mtxOrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mm_orders_placed_total",
			Help: "Verified order placements",
		},
		[]string{"side"},
	)

	mtxOrdersCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mm_orders_cancelled_total",
			Help: "Acknowledged order cancellations",
		},
	)

	mtxTradesFinalized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mm_trades_finalized_total",
			Help: "Trade records emitted at finalization",
		},
	)

	mtxTickErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mm_tick_errors_total",
			Help: "Market-making ticks that failed",
		},
	)

	mtxMidPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mm_mid_price",
			Help: "Last accepted mid-price",
		},
	)

	mtxInventoryRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mm_inventory_ratio",
			Help: "Current inventory ratio",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxVenueCalls,
		mtxRetries,
		mtxOrdersPlaced,
		mtxOrdersCancelled,
		mtxTradesFinalized,
		mtxTickErrors,
		mtxMidPrice,
		mtxInventoryRatio,
	)
}

// ObserveVenueCall records the outcome of a venue call.
func ObserveVenueCall(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	mtxVenueCalls.WithLabelValues(op, outcome).Inc()
}

// IncRetry records one retry attempt for an operation label.
func IncRetry(op string) { mtxRetries.WithLabelValues(op).Inc() }

// IncOrderPlaced records a verified placement.
func IncOrderPlaced(side string) { mtxOrdersPlaced.WithLabelValues(side).Inc() }

// IncOrderCancelled records an acknowledged cancellation.
func IncOrderCancelled() { mtxOrdersCancelled.Inc() }

// IncTradeFinalized records an emitted trade record.
func IncTradeFinalized() { mtxTradesFinalized.Inc() }

// IncTickError records a failed tick.
func IncTickError() { mtxTickErrors.Inc() }

// SetMidPrice updates the mid-price gauge.
func SetMidPrice(v float64) { mtxMidPrice.Set(v) }

// SetInventoryRatio updates the inventory ratio gauge.
func SetInventoryRatio(v float64) { mtxInventoryRatio.Set(v) }
