package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gridmaker_go/internal/domain"
	"gridmaker_go/internal/infra"
)

// Client is the venue REST API client (boundary layer). It classifies
// every failure as transient (network/timeout/5xx) or fatal (business)
// so the retry transport can decide whether to retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

var _ domain.Venue = (*Client)(nil)

// NewClient creates a new venue API client.
func NewClient(cfg *infra.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Venue.RestURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: NewSigner(cfg.Venue.AccessKey, cfg.Venue.SecretKey),
		logger: slog.Default().With("module", "venue_client"),
	}
}

// pairToSymbol converts a unified "BASE/QUOTE" pair to the venue form.
func pairToSymbol(pair string) string {
	return strings.ReplaceAll(pair, "/", "_")
}

func symbolToPair(symbol string) string {
	return strings.ReplaceAll(symbol, "_", "/")
}

// FetchMarkets lists tradable instruments. Used once at startup to probe
// that the configured pair exists; failure there is fatal.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/market/instruments", nil, nil)
	if err != nil {
		return nil, err
	}

	var payload []instrumentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domain.NewFatalVenueError("fetch markets", domain.KindAPI, err)
	}

	markets := make([]domain.Market, 0, len(payload))
	for _, p := range payload {
		markets = append(markets, domain.Market{ID: p.ID, Symbol: symbolToPair(p.Symbol)})
	}
	return markets, nil
}

// FetchOrderBook returns a raw depth snapshot, best levels first.
func (c *Client) FetchOrderBook(ctx context.Context, pair string) (*domain.OrderBook, error) {
	query := url.Values{"symbol": {pairToSymbol(pair)}, "limit": {"50"}}
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/market/depth", query, nil)
	if err != nil {
		return nil, err
	}

	var payload depthPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domain.NewFatalVenueError("fetch order book", domain.KindAPI, err)
	}

	book := &domain.OrderBook{
		Bids: make([]domain.BookLevel, 0, len(payload.Bids)),
		Asks: make([]domain.BookLevel, 0, len(payload.Asks)),
	}
	for _, lvl := range payload.Bids {
		if len(lvl) < 2 {
			continue
		}
		book.Bids = append(book.Bids, domain.BookLevel{
			Price: safeDecimal(lvl[0], "bid price", c.logger),
			Size:  safeDecimal(lvl[1], "bid size", c.logger),
		})
	}
	for _, lvl := range payload.Asks {
		if len(lvl) < 2 {
			continue
		}
		book.Asks = append(book.Asks, domain.BookLevel{
			Price: safeDecimal(lvl[0], "ask price", c.logger),
			Size:  safeDecimal(lvl[1], "ask size", c.logger),
		})
	}
	return book, nil
}

// FetchTicker returns the current ticker snapshot.
func (c *Client) FetchTicker(ctx context.Context, pair string) (*domain.Ticker, error) {
	query := url.Values{"symbol": {pairToSymbol(pair)}}
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/market/ticker", query, nil)
	if err != nil {
		return nil, err
	}

	var payload tickerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domain.NewFatalVenueError("fetch ticker", domain.KindAPI, err)
	}

	return &domain.Ticker{
		Bid:  safeDecimal(payload.Bid, "ticker bid", c.logger),
		Ask:  safeDecimal(payload.Ask, "ticker ask", c.logger),
		Last: safeDecimal(payload.Last, "ticker last", c.logger),
		VWAP: safeDecimal(payload.VWAP, "ticker vwap", c.logger),
	}, nil
}

// FetchBalance returns per-currency balances.
func (c *Client) FetchBalance(ctx context.Context) (map[string]domain.Balance, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/account/balances", nil, nil)
	if err != nil {
		return nil, err
	}

	var payload []balancePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domain.NewFatalVenueError("fetch balance", domain.KindAPI, err)
	}

	balances := make(map[string]domain.Balance, len(payload))
	for _, b := range payload {
		balances[b.Currency] = domain.Balance{
			Free:  safeDecimal(b.Free, "balance free", c.logger),
			Total: safeDecimal(b.Total, "balance total", c.logger),
		}
	}
	return balances, nil
}

// FetchOpenOrders returns all currently resting orders for the pair.
func (c *Client) FetchOpenOrders(ctx context.Context, pair string) ([]domain.TrackedOrder, error) {
	query := url.Values{"symbol": {pairToSymbol(pair)}}
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/trade/open-orders", query, nil)
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, domain.NewFatalVenueError("fetch open orders", domain.KindAPI, err)
	}

	orders := make([]domain.TrackedOrder, 0, len(raws))
	for _, raw := range raws {
		order, err := c.parseOrder(raw, pair)
		if err != nil {
			c.logger.Warn("skipping unparsable open order", slog.Any("error", err))
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// FetchOrder fetches a single order by id.
func (c *Client) FetchOrder(ctx context.Context, id, pair string) (*domain.TrackedOrder, error) {
	query := url.Values{"symbol": {pairToSymbol(pair)}, "orderId": {id}}
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/trade/order", query, nil)
	if err != nil {
		return nil, err
	}

	order, err := c.parseOrder(data, pair)
	if err != nil {
		return nil, domain.NewFatalVenueError("fetch order", domain.KindAPI, err)
	}
	return &order, nil
}

// CreateOrder places an order. Placement is not idempotent; the caller
// must verify the order appears in open orders before trusting it.
func (c *Client) CreateOrder(ctx context.Context, pair, orderType, side string, size, price decimal.Decimal) (*domain.TrackedOrder, error) {
	reqBody := placeOrderRequest{
		Symbol:    pairToSymbol(pair),
		Side:      side,
		OrderType: orderType,
		Price:     price.String(),
		Size:      size.String(),
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/api/v1/trade/place-order", nil, reqBody)
	if err != nil {
		return nil, err
	}

	order, err := c.parseOrder(data, pair)
	if err != nil {
		return nil, domain.NewFatalVenueError("create order", domain.KindAPI, err)
	}
	c.logger.Info("order submitted",
		slog.String("oid", order.ID),
		slog.String("side", side),
		slog.String("price", price.String()),
		slog.String("size", size.String()))
	return &order, nil
}

// CancelOrder requests cancellation of a resting order.
func (c *Client) CancelOrder(ctx context.Context, id, pair string) error {
	reqBody := cancelOrderRequest{Symbol: pairToSymbol(pair), OrderID: id}
	_, err := c.doRequest(ctx, http.MethodPost, "/api/v1/trade/cancel-order", nil, reqBody)
	return err
}

// parseOrder maps a raw venue order payload into the domain type,
// retaining the raw bytes for audit. Numeric fields are coerced.
func (c *Client) parseOrder(raw json.RawMessage, pair string) (domain.TrackedOrder, error) {
	var p orderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.TrackedOrder{}, err
	}
	if p.OrderID == "" {
		return domain.TrackedOrder{}, errors.New("order payload missing id")
	}

	status := strings.ToUpper(p.Status)
	if status == "" {
		status = domain.OrderStatusOpen
	}

	createdAt := time.Now()
	if p.CreatedAtMs > 0 {
		createdAt = time.UnixMilli(p.CreatedAtMs)
	}

	orderPair := pair
	if p.Symbol != "" {
		orderPair = symbolToPair(p.Symbol)
	}

	return domain.TrackedOrder{
		ID:        p.OrderID,
		Pair:      orderPair,
		Side:      strings.ToLower(p.Side),
		Price:     safeDecimal(p.Price, "order price", c.logger),
		Size:      safeDecimal(p.Size, "order size", c.logger),
		Filled:    safeDecimal(p.Filled, "order filled", c.logger),
		Status:    status,
		Raw:       raw,
		CreatedAt: createdAt,
	}, nil
}

// doRequest handles auth headers, serialization, and error classification.
// It returns the envelope's data payload on success.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (json.RawMessage, error) {
	op := method + " " + path

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, domain.NewFatalVenueError(op, domain.KindInvalidParams, err)
		}
		bodyReader = bytes.NewBuffer(jsonBytes)
		bodyStr = string(jsonBytes)
	}

	reqURL := c.baseURL + path
	queryStr := ""
	if len(query) > 0 {
		queryStr = query.Encode()
		reqURL += "?" + queryStr
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, domain.NewFatalVenueError(op, domain.KindInvalidParams, err)
	}
	for k, v := range c.signer.GenerateHeaders(method, path, queryStr, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransientVenueError(op, domain.KindNetwork, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, domain.NewTransientVenueError(op, domain.KindNetwork,
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(bodyBytes)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewFatalVenueError(op, domain.KindAPI,
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(bodyBytes)))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, domain.NewFatalVenueError(op, domain.KindAPI,
			fmt.Errorf("failed to parse response: %w", err))
	}
	if apiResp.Code != apiCodeOK {
		return nil, classifyBusinessError(op, apiResp.Code, apiResp.Msg)
	}

	return apiResp.Data, nil
}

// classifyTransportError marks timeouts and connection failures retriable.
func classifyTransportError(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewTransientVenueError(op, domain.KindTimeout, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewFatalVenueError(op, domain.KindTimeout, err)
	}
	return domain.NewTransientVenueError(op, domain.KindNetwork, err)
}

// classifyBusinessError maps venue business codes to fatal error kinds.
func classifyBusinessError(op, code, msg string) error {
	err := fmt.Errorf("venue business error: code=%s msg=%s", code, msg)
	switch code {
	case apiCodeInsufficientFunds:
		return domain.NewFatalVenueError(op, domain.KindInsufficientFunds, err)
	case apiCodeInvalidParams:
		return domain.NewFatalVenueError(op, domain.KindInvalidParams, err)
	case apiCodeOrderNotFound:
		return domain.NewFatalVenueError(op, domain.KindAPI, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, msg))
	default:
		return domain.NewFatalVenueError(op, domain.KindAPI, err)
	}
}
