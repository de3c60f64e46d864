package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"binance-spot-bot/internal/domain"
)

// Default configuration values.
const (
	DefaultBaseURL      = "https://api.binance.com"
	DefaultTimeout      = 15 * time.Second
	DefaultRecvWindowMs = 5000
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultBackoffMult  = 2.0
)

// BinanceClient implements Client against the Binance spot REST API.
type BinanceClient struct {
	baseURL      string
	apiKey       string
	secretKey    string
	client       *http.Client
	recvWindowMs int64
	maxRetries   int
	retryDelay   time.Duration
	maxDelay     time.Duration
	backoffMult  float64

	// timeOffsetMs is serverTime - localTime, refreshed by SyncTime.
	timeOffsetMs atomic.Int64
}

// BinanceOption configures BinanceClient.
type BinanceOption func(*BinanceClient)

// WithBaseURL overrides the REST endpoint (testnet, tests).
func WithBaseURL(u string) BinanceOption {
	return func(c *BinanceClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) BinanceOption {
	return func(c *BinanceClient) {
		c.client = client
	}
}

// WithRecvWindow sets the signed-request receive window in ms.
func WithRecvWindow(ms int64) BinanceOption {
	return func(c *BinanceClient) {
		c.recvWindowMs = ms
	}
}

// WithMaxRetries sets maximum retry attempts for transient failures.
func WithMaxRetries(n int) BinanceOption {
	return func(c *BinanceClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) BinanceOption {
	return func(c *BinanceClient) {
		c.retryDelay = d
	}
}

// NewBinanceClient creates a Binance spot REST client. Keys may be empty
// for public-endpoint use (klines, exchangeInfo).
func NewBinanceClient(apiKey, secretKey string, opts ...BinanceOption) *BinanceClient {
	c := &BinanceClient{
		baseURL:      DefaultBaseURL,
		apiKey:       apiKey,
		secretKey:    secretKey,
		client:       &http.Client{Timeout: DefaultTimeout},
		recvWindowMs: DefaultRecvWindowMs,
		maxRetries:   DefaultMaxRetries,
		retryDelay:   DefaultRetryDelay,
		maxDelay:     DefaultMaxDelay,
		backoffMult:  DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// sign returns the hex HMAC-SHA256 of the encoded query under the secret
// key. url.Values.Encode sorts parameters by key, which keeps signatures
// stable regardless of insertion order.
func (c *BinanceClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// do performs one request with retries and exponential backoff. Signed
// requests get timestamp, recvWindow and signature appended per attempt
// so retries carry a fresh timestamp. A -1021 response (timestamp out of
// recvWindow) triggers one clock resync followed by a single retry.
func (c *BinanceClient) do(ctx context.Context, method, path string, params url.Values, signed bool, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}

	delay := c.retryDelay
	resynced := false
	immediate := false
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && !immediate {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}
		immediate = false

		query := params.Encode()
		if signed {
			attemptParams := url.Values{}
			for k, vs := range params {
				attemptParams[k] = vs
			}
			ts := time.Now().UnixMilli() + c.timeOffsetMs.Load()
			attemptParams.Set("timestamp", strconv.FormatInt(ts, 10))
			attemptParams.Set("recvWindow", strconv.FormatInt(c.recvWindowMs, 10))
			query = attemptParams.Encode()
			query += "&signature=" + c.sign(query)
		}

		reqURL := c.baseURL + path
		if query != "" {
			reqURL += "?" + query
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("X-MBX-APIKEY", c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := &APIError{StatusCode: resp.StatusCode}
			var parsed struct {
				Code int    `json:"code"`
				Msg  string `json:"msg"`
			}
			if json.Unmarshal(body, &parsed) == nil {
				apiErr.Code = parsed.Code
				apiErr.Message = parsed.Msg
			}

			if apiErr.Code == codeTimestampOutOfWindow && signed && !resynced {
				resynced = true
				if syncErr := c.SyncTime(ctx); syncErr != nil {
					return fmt.Errorf("clock resync after -1021: %w", syncErr)
				}
				lastErr = apiErr
				// Retry immediately with the corrected offset.
				immediate = true
				continue
			}

			if !apiErr.Retryable() {
				return apiErr
			}

			if ra := retryAfter(resp); ra > delay {
				delay = ra
			}
			lastErr = apiErr
			continue
		}

		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// retryAfter parses the Retry-After header, zero when absent.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Ping checks REST connectivity.
func (c *BinanceClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v3/ping", nil, false, nil)
}

// ServerTimeMs returns the exchange server time.
func (c *BinanceClient) ServerTimeMs(ctx context.Context) (int64, error) {
	var result struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v3/time", nil, false, &result); err != nil {
		return 0, err
	}
	return result.ServerTime, nil
}

// SyncTime refreshes the local-to-server clock offset used to timestamp
// signed requests.
func (c *BinanceClient) SyncTime(ctx context.Context) error {
	serverMs, err := c.ServerTimeMs(ctx)
	if err != nil {
		return fmt.Errorf("sync time: %w", err)
	}
	c.timeOffsetMs.Store(serverMs - time.Now().UnixMilli())
	return nil
}

// rawKline is one row of the klines response:
// [openTime, open, high, low, close, volume, closeTime, ...].
type rawKline []json.RawMessage

func parseKline(row rawKline) (domain.Kline, error) {
	var k domain.Kline
	if len(row) < 7 {
		return k, fmt.Errorf("kline row has %d fields, want at least 7", len(row))
	}
	if err := json.Unmarshal(row[0], &k.OpenTimeMs); err != nil {
		return k, fmt.Errorf("open time: %w", err)
	}
	if err := json.Unmarshal(row[6], &k.CloseTimeMs); err != nil {
		return k, fmt.Errorf("close time: %w", err)
	}
	fields := []struct {
		idx int
		dst *decimal.Decimal
	}{
		{1, &k.Open}, {2, &k.High}, {3, &k.Low}, {4, &k.Close}, {5, &k.Volume},
	}
	for _, f := range fields {
		var s string
		if err := json.Unmarshal(row[f.idx], &s); err != nil {
			return k, fmt.Errorf("kline field %d: %w", f.idx, err)
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return k, fmt.Errorf("kline field %d: %w", f.idx, err)
		}
		*f.dst = v
	}
	return k, nil
}

func (c *BinanceClient) klines(ctx context.Context, params url.Values) ([]domain.Kline, error) {
	var rows []rawKline
	if err := c.do(ctx, http.MethodGet, "/api/v3/klines", params, false, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.Kline, 0, len(rows))
	for _, row := range rows {
		k, err := parseKline(row)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// Klines returns the most recent limit klines, oldest first.
func (c *BinanceClient) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	return c.klines(ctx, params)
}

// KlinesRange returns klines opening in [startMs, endMs], oldest first.
func (c *BinanceClient) KlinesRange(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]domain.Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("startTime", strconv.FormatInt(startMs, 10))
	params.Set("endTime", strconv.FormatInt(endMs, 10))
	params.Set("limit", strconv.Itoa(limit))
	return c.klines(ctx, params)
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
		Filters    []struct {
			FilterType  string `json:"filterType"`
			StepSize    string `json:"stepSize"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

// SymbolRules fetches exchangeInfo for symbol and extracts the LOT_SIZE
// step and the minimum notional. Binance has shipped the latter as both
// MIN_NOTIONAL and NOTIONAL filter types.
func (c *BinanceClient) SymbolRules(ctx context.Context, symbol string) (domain.SymbolTradingRules, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var info exchangeInfoResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false, &info); err != nil {
		return domain.SymbolTradingRules{}, err
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		rules := domain.SymbolTradingRules{
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				if v, err := decimal.NewFromString(f.StepSize); err == nil {
					rules.StepSize = v
				}
			case "MIN_NOTIONAL", "NOTIONAL":
				if v, err := decimal.NewFromString(f.MinNotional); err == nil {
					rules.MinNotional = v
				}
			}
		}
		return rules, nil
	}
	return domain.SymbolTradingRules{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
}

// AccountBalances returns free balances by asset for the API key's
// account. Signed endpoint.
func (c *BinanceClient) AccountBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var result struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v3/account", nil, true, &result); err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(result.Balances))
	for _, b := range result.Balances {
		v, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", b.Asset, err)
		}
		out[b.Asset] = v
	}
	return out, nil
}

// NewMarketOrder submits a MARKET order sized by base quantity or quote
// notional and returns the full fill report.
func (c *BinanceClient) NewMarketOrder(ctx context.Context, req domain.OrderRequest) (*OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", "MARKET")
	params.Set("newOrderRespType", "FULL")
	if req.Quantity != nil {
		params.Set("quantity", req.Quantity.String())
	}
	if req.QuoteOrderQty != nil {
		params.Set("quoteOrderQty", req.QuoteOrderQty.String())
	}

	var result struct {
		OrderID             int64  `json:"orderId"`
		ClientOrderID       string `json:"clientOrderId"`
		Symbol              string `json:"symbol"`
		Status              string `json:"status"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
		TransactTime        int64  `json:"transactTime"`
		Fills               []struct {
			Price           string `json:"price"`
			Qty             string `json:"qty"`
			Commission      string `json:"commission"`
			CommissionAsset string `json:"commissionAsset"`
		} `json:"fills"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true, &result); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: %s", ErrOrderRejected, apiErr.Message)
		}
		return nil, err
	}

	order := &OrderResult{
		OrderID:        result.OrderID,
		ClientOrderID:  result.ClientOrderID,
		Symbol:         result.Symbol,
		Side:           req.Side,
		Status:         result.Status,
		TransactTimeMs: result.TransactTime,
	}
	var err error
	if order.ExecutedQty, err = decimal.NewFromString(result.ExecutedQty); err != nil {
		return nil, fmt.Errorf("executed qty: %w", err)
	}
	if order.CummulativeQuoteQty, err = decimal.NewFromString(result.CummulativeQuoteQty); err != nil {
		return nil, fmt.Errorf("cummulative quote qty: %w", err)
	}
	for _, f := range result.Fills {
		fill := Fill{CommissionAsset: f.CommissionAsset}
		if fill.Price, err = decimal.NewFromString(f.Price); err != nil {
			return nil, fmt.Errorf("fill price: %w", err)
		}
		if fill.Quantity, err = decimal.NewFromString(f.Qty); err != nil {
			return nil, fmt.Errorf("fill qty: %w", err)
		}
		if fill.Commission, err = decimal.NewFromString(f.Commission); err != nil {
			return nil, fmt.Errorf("fill commission: %w", err)
		}
		order.Fills = append(order.Fills, fill)
	}
	return order, nil
}

var _ Client = (*BinanceClient)(nil)
