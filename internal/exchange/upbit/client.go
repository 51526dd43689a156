// Package upbit implements the exchange boundary against the Upbit spot
// API: an authenticated REST client for trading and account state, and a
// websocket stream for live ticker data.
package upbit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/JihoJu/one-bailey/internal/domain"
	"github.com/JihoJu/one-bailey/internal/exchange"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const requestTimeout = 10 * time.Second

// Client talks to the Upbit REST API. Safe for concurrent use.
type Client struct {
	baseURL    string
	auth       *authorizer
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ exchange.Exchange        = (*Client)(nil)
	_ exchange.OrderbookSource = (*Client)(nil)
)

// NewClient creates a REST client against the given base URL
// (https://api.upbit.com) with the session credentials.
func NewClient(baseURL, accessKey, secretKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		auth:    newAuthorizer(accessKey, secretKey),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger.With(slog.String("component", "upbit")),
	}
}

// PlaceOrder submits a limit order carrying the correlation id as Upbit's
// identifier field. A transport failure after the request may have been sent
// is classified ambiguous so the caller reconciles instead of retrying
// blindly.
func (c *Client) PlaceOrder(ctx context.Context, intent domain.OrderIntent) (exchange.Ack, error) {
	params := url.Values{}
	params.Set("market", intent.Symbol)
	params.Set("side", sideFor(intent.Side))
	params.Set("volume", formatFloat(intent.Quantity))
	params.Set("price", formatFloat(intent.Price))
	params.Set("ord_type", "limit")
	params.Set("identifier", intent.CorrelationID)

	body := placeOrderRequest{
		Market:     intent.Symbol,
		Side:       sideFor(intent.Side),
		Volume:     formatFloat(intent.Quantity),
		Price:      formatFloat(intent.Price),
		OrdType:    "limit",
		Identifier: intent.CorrelationID,
	}

	var resp orderResponse
	err := c.do(ctx, http.MethodPost, "/v1/orders", params, body, &resp)
	if err != nil {
		if isTransport(err) {
			return exchange.Ack{}, domain.WithKind(domain.KindAmbiguous,
				fmt.Errorf("upbit: place order %s: outcome unknown: %w", intent.CorrelationID, err))
		}
		return exchange.Ack{}, fmt.Errorf("upbit: place order %s: %w", intent.CorrelationID, err)
	}

	c.logger.Info("order placed",
		slog.String("market", intent.Symbol),
		slog.String("side", body.Side),
		slog.String("uuid", resp.UUID),
		slog.String("identifier", intent.CorrelationID))
	return exchange.Ack{ExchangeOrderID: resp.UUID}, nil
}

// GetOrderByClientID fetches an order by the identifier it was submitted
// with.
func (c *Client) GetOrderByClientID(ctx context.Context, clientOrderID string) (exchange.OrderState, error) {
	params := url.Values{}
	params.Set("identifier", clientOrderID)

	var resp orderResponse
	if err := c.do(ctx, http.MethodGet, "/v1/order", params, nil, &resp); err != nil {
		return exchange.OrderState{}, fmt.Errorf("upbit: get order %s: %w", clientOrderID, err)
	}
	return resp.toState(), nil
}

// CancelOrder cancels by Upbit order uuid.
func (c *Client) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	params := url.Values{}
	params.Set("uuid", exchangeOrderID)

	var resp orderResponse
	if err := c.do(ctx, http.MethodDelete, "/v1/order", params, nil, &resp); err != nil {
		return fmt.Errorf("upbit: cancel order %s: %w", exchangeOrderID, err)
	}
	return nil
}

// Balances returns the account's currency lines.
func (c *Client) Balances(ctx context.Context) ([]exchange.Balance, error) {
	var resp []accountResponse
	if err := c.do(ctx, http.MethodGet, "/v1/accounts", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("upbit: accounts: %w", err)
	}

	out := make([]exchange.Balance, 0, len(resp))
	for _, a := range resp {
		out = append(out, a.toBalance())
	}
	return out, nil
}

// Candles returns up to count minute bars ending at to, oldest first. Upbit
// serves newest-first pages of at most 200, so long ranges are paged
// backwards and reversed.
func (c *Client) Candles(ctx context.Context, symbol string, count int, to time.Time) ([]exchange.Candle, error) {
	const pageSize = 200

	out := make([]exchange.Candle, 0, count)
	cursor := to
	for len(out) < count {
		n := count - len(out)
		if n > pageSize {
			n = pageSize
		}

		params := url.Values{}
		params.Set("market", symbol)
		params.Set("count", fmt.Sprintf("%d", n))
		// A zero to means "most recent"; the parameter is omitted.
		if !cursor.IsZero() {
			params.Set("to", cursor.UTC().Format("2006-01-02T15:04:05Z"))
		}

		var page []candleResponse
		if err := c.do(ctx, http.MethodGet, "/v1/candles/minutes/1", params, nil, &page); err != nil {
			return nil, fmt.Errorf("upbit: candles %s: %w", symbol, err)
		}
		if len(page) == 0 {
			break
		}
		for _, raw := range page {
			out = append(out, raw.toCandle())
		}
		cursor = page[len(page)-1].toCandle().Timestamp
	}

	// Newest-first across pages; flip to oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Orderbook returns the current book snapshot for each requested market.
func (c *Client) Orderbook(ctx context.Context, symbols []string) ([]exchange.Orderbook, error) {
	params := url.Values{}
	params.Set("markets", strings.Join(symbols, ","))

	var resp []orderbookResponse
	if err := c.do(ctx, http.MethodGet, "/v1/orderbook", params, nil, &resp); err != nil {
		return nil, fmt.Errorf("upbit: orderbook: %w", err)
	}

	out := make([]exchange.Orderbook, 0, len(resp))
	for _, raw := range resp {
		out = append(out, raw.toOrderbook())
	}
	return out, nil
}

// do builds, signs, sends, and decodes one request. authParams is the
// parameter set covered by the token's query hash; it must match what is
// actually sent in the query string or body.
func (c *Client) do(ctx context.Context, method, path string, authParams url.Values, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	endpoint := c.baseURL + path
	if body == nil && len(authParams) > 0 {
		endpoint += "?" + authParams.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	bearer, err := c.auth.bearer(authParams)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError{err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError{fmt.Errorf("read response: %w", err)}
	}

	if err := checkStatus(resp.StatusCode, raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus maps non-2xx responses onto the error taxonomy: 404 is a
// lookup miss, other 4xx are business rejections, 5xx and 429 stay
// transient.
func checkStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: HTTP 404: %s", domain.ErrNotFound, body)
	case status == http.StatusTooManyRequests:
		return domain.WithKind(domain.KindTransient, fmt.Errorf("HTTP 429: %s", body))
	case status >= 400 && status < 500:
		return domain.WithKind(domain.KindBusiness, fmt.Errorf("HTTP %d: %s", status, body))
	default:
		return domain.WithKind(domain.KindTransient, fmt.Errorf("HTTP %d: %s", status, body))
	}
}

// transportError marks failures where the request may or may not have
// reached the exchange.
type transportError struct{ err error }

func (e transportError) Error() string { return e.err.Error() }
func (e transportError) Unwrap() error { return e.err }

func isTransport(err error) bool {
	var te transportError
	return errors.As(err, &te)
}
