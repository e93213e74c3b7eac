// Package rit is the client for the Rotman-style simulator REST API. It
// implements core.IVenue with rate limiting, retries, and the risk-limit
// rejection classification the order manager depends on.
package rit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"spread_trader/internal/config"
	"spread_trader/internal/core"
	apperrors "spread_trader/pkg/errors"
	httpclient "spread_trader/pkg/http"
)

// apiKeySigner attaches the simulator's authentication header.
type apiKeySigner struct {
	key string
}

func (s *apiKeySigner) SignRequest(req *http.Request) error {
	req.Header.Set("X-API-Key", s.key)
	return nil
}

// Client talks to one simulator instance. Safe for use from the single
// tick-loop goroutine plus the recorder's fetch pool; the underlying HTTP
// client and limiter are concurrency-safe.
type Client struct {
	http    *httpclient.Client
	limiter *rate.Limiter
	logger  core.ILogger
}

var _ core.IVenue = (*Client)(nil)

func NewClient(cfg config.VenueConfig, logger core.ILogger) *Client {
	return &Client{
		http: httpclient.NewClient(
			strings.TrimRight(cfg.BaseURL, "/"),
			time.Duration(cfg.TimeoutMs)*time.Millisecond,
			&apiKeySigner{key: cfg.APIKey},
		),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:  logger,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// GetCase returns the current session descriptor.
func (c *Client) GetCase(ctx context.Context) (*core.Case, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	body, err := c.http.Get(ctx, "/case", nil)
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	var resp caseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("get case: %w: %s", apperrors.ErrProtocol, err)
	}
	return &core.Case{
		Name:           resp.Name,
		Period:         resp.Period,
		Tick:           resp.Tick,
		TicksPerPeriod: resp.TicksPerPeriod,
		Status:         core.CaseStatus(resp.Status),
	}, nil
}

// GetSnapshot returns quotes and positions for all instruments.
func (c *Client) GetSnapshot(ctx context.Context) (map[string]core.Security, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	body, err := c.http.Get(ctx, "/securities", nil)
	if err != nil {
		return nil, fmt.Errorf("get securities: %w", err)
	}
	var resp []securityResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("get securities: %w: %s", apperrors.ErrProtocol, err)
	}
	out := make(map[string]core.Security, len(resp))
	for _, s := range resp {
		out[s.Ticker] = core.Security{
			Ticker:   s.Ticker,
			Bid:      s.Bid,
			Ask:      s.Ask,
			Last:     s.Last,
			Position: s.Position,
		}
	}
	return out, nil
}

// GetNLV returns the trader's net liquidation value.
func (c *Client) GetNLV(ctx context.Context) (float64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	body, err := c.http.Get(ctx, "/trader", nil)
	if err != nil {
		return 0, fmt.Errorf("get trader: %w", err)
	}
	var resp traderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("get trader: %w: %s", apperrors.ErrProtocol, err)
	}
	return resp.NLV, nil
}

// PlaceOrder submits a limit order.
func (c *Client) PlaceOrder(ctx context.Context, ticker string, intent core.OrderIntent) (*core.VenueOrder, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	params := map[string]string{
		"ticker":   ticker,
		"type":     "LIMIT",
		"quantity": intent.Quantity.String(),
		"action":   string(intent.Side),
		"price":    intent.Price.String(),
	}
	body, err := c.http.Post(ctx, "/orders", params)
	if err != nil {
		return nil, classifyOrderError(err)
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("place order %s %s: %w: %s", intent.Side, ticker, apperrors.ErrProtocol, err)
	}
	if resp.OrderID == 0 {
		return nil, fmt.Errorf("place order %s %s: %w: response carried no order id, body %q",
			intent.Side, ticker, apperrors.ErrProtocol, string(body))
	}
	return toVenueOrder(resp), nil
}

// CancelOrders requests cancellation of each order id. A missing order is
// not an error; it may already be done server-side.
func (c *Client) CancelOrders(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := c.wait(ctx); err != nil {
			return err
		}
		if _, err := c.http.Delete(ctx, "/orders/"+strconv.FormatInt(id, 10), nil); err != nil {
			var apiErr *httpclient.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				c.logger.Debug("cancel target already gone", "order_id", id)
				continue
			}
			return fmt.Errorf("cancel order %d: %w", id, err)
		}
	}
	return nil
}

// GetOrders returns all orders in one status bucket.
func (c *Client) GetOrders(ctx context.Context, status core.OrderStatus) ([]*core.VenueOrder, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	body, err := c.http.Get(ctx, "/orders", map[string]string{"status": string(status)})
	if err != nil {
		return nil, fmt.Errorf("get %s orders: %w", status, err)
	}
	var resp []orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("get %s orders: %w: %s", status, apperrors.ErrProtocol, err)
	}
	out := make([]*core.VenueOrder, 0, len(resp))
	for _, o := range resp {
		out = append(out, toVenueOrder(o))
	}
	return out, nil
}

// GetOrderBook returns a depth snapshot for one instrument.
func (c *Client) GetOrderBook(ctx context.Context, ticker string, limit int) (*core.OrderBook, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	params := map[string]string{"ticker": ticker}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	body, err := c.http.Get(ctx, "/securities/book", params)
	if err != nil {
		return nil, fmt.Errorf("get book %s: %w", ticker, err)
	}
	var resp bookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("get book %s: %w: %s", ticker, apperrors.ErrProtocol, err)
	}
	book := &core.OrderBook{Ticker: ticker}
	for _, o := range resp.Bids {
		book.Bids = append(book.Bids, core.BookLevel{Price: o.Price, Quantity: o.Quantity - o.QuantityFilled})
	}
	for _, o := range resp.Asks {
		book.Asks = append(book.Asks, core.BookLevel{Price: o.Price, Quantity: o.Quantity - o.QuantityFilled})
	}
	return book, nil
}

func toVenueOrder(o orderResponse) *core.VenueOrder {
	return &core.VenueOrder{
		OrderID:        o.OrderID,
		Ticker:         o.Ticker,
		Side:           core.Side(o.Action),
		Quantity:       decimal.NewFromFloat(o.Quantity),
		Price:          decimal.NewFromFloat(o.Price),
		QuantityFilled: decimal.NewFromFloat(o.QuantityFilled),
		Status:         core.OrderStatus(o.Status),
	}
}

// riskLimitMarker is the fragment of the simulator's human-readable error
// for submissions that would breach the venue-side exposure limits. The
// match lives here, and only here, so it can be replaced with a structured
// code without touching reconciliation.
const riskLimitMarker = "exceed gross trading limits"

// classifyOrderError maps a raw submission error onto the engine's error
// taxonomy.
func classifyOrderError(err error) error {
	var apiErr *httpclient.APIError
	if errors.As(err, &apiErr) && strings.Contains(strings.ToLower(string(apiErr.Body)), riskLimitMarker) {
		return fmt.Errorf("%w: %s", apperrors.ErrRiskLimitRejected, strings.TrimSpace(string(apiErr.Body)))
	}
	return err
}
