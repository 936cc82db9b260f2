package venue

import (
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"
)

// apiResponse is the venue's common response envelope.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

const apiCodeOK = "0"

// Venue business error codes.
const (
	apiCodeInsufficientFunds = "10010"
	apiCodeInvalidParams     = "10011"
	apiCodeOrderNotFound     = "40404"
)

type instrumentPayload struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
}

type depthPayload struct {
	Bids [][]string `json:"bids"` // [price, size], best first
	Asks [][]string `json:"asks"`
}

type tickerPayload struct {
	Bid  string `json:"bid"`
	Ask  string `json:"ask"`
	Last string `json:"last"`
	VWAP string `json:"vwap"`
}

type balancePayload struct {
	Currency string `json:"currency"`
	Free     string `json:"free"`
	Total    string `json:"total"`
}

type orderPayload struct {
	OrderID     string `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	Filled      string `json:"filled"`
	Status      string `json:"status"`
	CreatedAtMs int64  `json:"createdAt"`
}

type placeOrderRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`      // buy, sell
	OrderType string `json:"orderType"` // limit
	Price     string `json:"price,omitempty"`
	Size      string `json:"size"`
}

type cancelOrderRequest struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"orderId"`
}

// safeDecimal coerces a venue-reported numeric string to a decimal.
// Malformed fields become zero with a warning; a bad numeric field
// must never crash a tick.
func safeDecimal(value string, field string, log *slog.Logger) decimal.Decimal {
	if value == "" || value == "null" || value == "None" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		log.Warn("could not parse venue numeric field, using zero",
			slog.String("field", field), slog.String("value", value))
		return decimal.Zero
	}
	return d
}
