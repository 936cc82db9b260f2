package venue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridmaker_go/internal/domain"
	"gridmaker_go/internal/infra"
)

func newTestClient(serverURL string) *Client {
	cfg := &infra.Config{}
	cfg.Venue.RestURL = serverURL
	cfg.Venue.AccessKey = "key"
	cfg.Venue.SecretKey = "secret"
	cfg.Venue.Symbol = "ATOM/USDT"
	return NewClient(cfg)
}

func envelope(data string) string {
	return `{"code":"0","msg":"","data":` + data + `}`
}

func TestClient_FetchTicker(t *testing.T) {
	var gotAuth http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header
		assert.Equal(t, "/api/v1/market/ticker", r.URL.Path)
		assert.Equal(t, "ATOM_USDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(envelope(`{"bid":"99","ask":"101","last":"100","vwap":"100.5"}`)))
	}))
	defer srv.Close()

	tick, err := newTestClient(srv.URL).FetchTicker(context.Background(), "ATOM/USDT")
	require.NoError(t, err)

	assert.True(t, tick.Bid.Equal(decimal.RequireFromString("99")))
	assert.True(t, tick.Ask.Equal(decimal.RequireFromString("101")))
	assert.True(t, tick.VWAP.Equal(decimal.RequireFromString("100.5")))

	assert.Equal(t, "key", gotAuth.Get("ACCESS-KEY"))
	assert.NotEmpty(t, gotAuth.Get("ACCESS-SIGN"))
	assert.NotEmpty(t, gotAuth.Get("ACCESS-TIMESTAMP"))
}

func TestClient_FetchOrderBook_CoercesBadNumerics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(envelope(`{"bids":[["100","1"],["null","2"],["99"]],"asks":[["101","1"]]}`)))
	}))
	defer srv.Close()

	book, err := newTestClient(srv.URL).FetchOrderBook(context.Background(), "ATOM/USDT")
	require.NoError(t, err)

	// short level dropped; "null" price coerced to zero rather than crashing
	require.Len(t, book.Bids, 2)
	assert.True(t, book.Bids[0].Price.Equal(decimal.RequireFromString("100")))
	assert.True(t, book.Bids[1].Price.IsZero())
	require.Len(t, book.Asks, 1)
}

func TestClient_ServerErrorIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchTicker(context.Background(), "ATOM/USDT")
	require.Error(t, err)
	assert.True(t, domain.IsRetriable(err), "5xx responses must be retriable")
}

func TestClient_BusinessErrorsAreFatal(t *testing.T) {
	cases := []struct {
		name string
		code string
		kind domain.ErrorKind
	}{
		{"insufficient funds", "10010", domain.KindInsufficientFunds},
		{"invalid params", "10011", domain.KindInvalidParams},
		{"other", "50000", domain.KindAPI},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"code":"` + tc.code + `","msg":"rejected","data":null}`))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).CreateOrder(context.Background(),
				"ATOM/USDT", domain.OrderTypeLimit, domain.SideBuy,
				decimal.RequireFromString("1"), decimal.RequireFromString("100"))
			require.Error(t, err)
			assert.False(t, domain.IsRetriable(err), "business errors must not be retried")
			assert.Equal(t, tc.kind, domain.ErrorKindOf(err))
		})
	}
}

func TestClient_OrderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"40404","msg":"unknown order","data":null}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchOrder(context.Background(), "missing", "ATOM/USDT")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestClient_CreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req placeOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ATOM_USDT", req.Symbol)
		assert.Equal(t, "buy", req.Side)
		assert.Equal(t, "limit", req.OrderType)

		w.Write([]byte(envelope(`{"orderId":"abc","symbol":"ATOM_USDT","side":"BUY","price":"100","size":"1","filled":"0","status":"open","createdAt":1700000000000}`)))
	}))
	defer srv.Close()

	order, err := newTestClient(srv.URL).CreateOrder(context.Background(),
		"ATOM/USDT", domain.OrderTypeLimit, domain.SideBuy,
		decimal.RequireFromString("1"), decimal.RequireFromString("100"))
	require.NoError(t, err)

	assert.Equal(t, "abc", order.ID)
	assert.Equal(t, "ATOM/USDT", order.Pair)
	assert.Equal(t, domain.SideBuy, order.Side, "side is normalized to lowercase")
	assert.Equal(t, domain.OrderStatusOpen, order.Status, "status is normalized to uppercase")
	assert.NotEmpty(t, order.Raw)
	assert.False(t, order.CreatedAt.IsZero())
}

func TestClient_FetchOpenOrdersSkipsUnparsable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(envelope(`[
			{"orderId":"good","side":"buy","price":"100","size":"1","status":"OPEN"},
			{"side":"buy","price":"100","size":"1","status":"OPEN"}
		]`)))
	}))
	defer srv.Close()

	orders, err := newTestClient(srv.URL).FetchOpenOrders(context.Background(), "ATOM/USDT")
	require.NoError(t, err)

	require.Len(t, orders, 1, "payload without an order id must be skipped")
	assert.Equal(t, "good", orders[0].ID)
}

func TestClient_CancelOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req cancelOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "abc", req.OrderID)
		w.Write([]byte(envelope(`{}`)))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).CancelOrder(context.Background(), "abc", "ATOM/USDT")
	require.NoError(t, err)
}

func TestClient_ConnectionErrorIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := newTestClient(srv.URL).FetchTicker(context.Background(), "ATOM/USDT")
	require.Error(t, err)
	assert.True(t, domain.IsRetriable(err))

	var ve *domain.VenueError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, domain.KindNetwork, ve.Kind)
}
