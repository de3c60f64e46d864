package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-spot-bot/internal/domain"
)

func testClient(t *testing.T, handler http.Handler) (*BinanceClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewBinanceClient("test-key", "test-secret",
		WithBaseURL(srv.URL),
		WithRetryDelay(time.Millisecond),
	)
	return c, srv
}

func TestKlines_ParsesRows(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			[1000, "1.1", "1.5", "0.9", "1.2", "100.5", 1999, "0", 0, "0", "0", "0"],
			[2000, "1.2", "1.6", "1.0", "1.3", "200.5", 2999, "0", 0, "0", "0", "0"]
		]`))
	}))

	klines, err := c.Klines(context.Background(), "ETHUSDT", "1m", 5)
	require.NoError(t, err)
	require.Len(t, klines, 2)

	assert.Equal(t, int64(1000), klines[0].OpenTimeMs)
	assert.Equal(t, int64(1999), klines[0].CloseTimeMs)
	assert.True(t, klines[0].Open.Equal(decimal.RequireFromString("1.1")))
	assert.True(t, klines[0].Close.Equal(decimal.RequireFromString("1.2")))
	assert.True(t, klines[1].Volume.Equal(decimal.RequireFromString("200.5")))
}

func TestDo_RetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
			return
		}
		w.Write([]byte(`{"serverTime": 12345}`))
	}))

	ms, err := c.ServerTimeMs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12345), ms)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_BadRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))

	_, err := c.Klines(context.Background(), "NOPE", "1m", 5)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, -1121, apiErr.Code)
	assert.False(t, IsRetryable(err))
}

func TestDo_TimestampResyncRetriesExactlyOnce(t *testing.T) {
	var accountCalls, timeCalls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/time":
			timeCalls.Add(1)
			w.Write([]byte(`{"serverTime": 99999999}`))
		case "/api/v3/account":
			accountCalls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-1021,"msg":"Timestamp for this request is outside of the recvWindow."}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	_, err := c.AccountBalances(context.Background())
	require.Error(t, err)

	// One resync, one retry, then the error surfaces without looping.
	assert.Equal(t, int32(1), timeCalls.Load())
	assert.Equal(t, int32(2), accountCalls.Load())
}

func TestDo_TimestampResyncRecovers(t *testing.T) {
	var accountCalls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/time":
			w.Write([]byte(`{"serverTime": 99999999}`))
		case "/api/v3/account":
			if accountCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"code":-1021,"msg":"outside of the recvWindow"}`))
				return
			}
			w.Write([]byte(`{"balances":[{"asset":"USDT","free":"100.5","locked":"0"}]}`))
		}
	}))

	balances, err := c.AccountBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, balances["USDT"].Equal(decimal.RequireFromString("100.5")))
	assert.Equal(t, int32(2), accountCalls.Load())
}

func TestSignedRequest_CarriesValidSignature(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))

		raw := r.URL.RawQuery
		idx := strings.Index(raw, "&signature=")
		require.Greater(t, idx, 0, "signature must be the last parameter")
		payload, got := raw[:idx], raw[idx+len("&signature="):]

		mac := hmac.New(sha256.New, []byte("test-secret"))
		mac.Write([]byte(payload))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), got)

		ts, err := strconv.ParseInt(r.URL.Query().Get("timestamp"), 10, 64)
		require.NoError(t, err)
		assert.InDelta(t, time.Now().UnixMilli(), ts, 5000)
		assert.Equal(t, "5000", r.URL.Query().Get("recvWindow"))

		w.Write([]byte(`{"balances":[]}`))
	}))

	_, err := c.AccountBalances(context.Background())
	require.NoError(t, err)
}

func TestSymbolRules_ExtractsFilters(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[{
			"symbol":"ETHUSDT","baseAsset":"ETH","quoteAsset":"USDT",
			"filters":[
				{"filterType":"LOT_SIZE","stepSize":"0.0001","minQty":"0.0001"},
				{"filterType":"NOTIONAL","minNotional":"5.00000000"}
			]}]}`))
	}))

	rules, err := c.SymbolRules(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "ETH", rules.BaseAsset)
	assert.Equal(t, "USDT", rules.QuoteAsset)
	assert.True(t, rules.StepSize.Equal(decimal.RequireFromString("0.0001")))
	assert.True(t, rules.MinNotional.Equal(decimal.RequireFromString("5")))
}

func TestSymbolRules_UnknownSymbol(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[]}`))
	}))

	_, err := c.SymbolRules(context.Background(), "NOPEUSDT")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestNewMarketOrder_ParsesFills(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, "BUY", r.URL.Query().Get("side"))
		assert.Equal(t, "MARKET", r.URL.Query().Get("type"))
		assert.Equal(t, "100", r.URL.Query().Get("quoteOrderQty"))
		assert.Empty(t, r.URL.Query().Get("quantity"))

		w.Write([]byte(`{
			"orderId": 42, "clientOrderId": "abc", "symbol": "ETHUSDT",
			"status": "FILLED", "executedQty": "0.05",
			"cummulativeQuoteQty": "99.99", "transactTime": 1700000000000,
			"fills": [
				{"price":"2000.0","qty":"0.03","commission":"0.00003","commissionAsset":"ETH"},
				{"price":"1999.0","qty":"0.02","commission":"0.00002","commissionAsset":"ETH"}
			]}`))
	}))

	quote := decimal.RequireFromString("100")
	order, err := c.NewMarketOrder(context.Background(), domain.OrderRequest{
		Symbol:        "ETHUSDT",
		Side:          domain.SideBuy,
		QuoteOrderQty: &quote,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), order.OrderID)
	assert.Equal(t, "FILLED", order.Status)
	require.Len(t, order.Fills, 2)

	// (2000*0.03 + 1999*0.02) / 0.05 = 1999.6
	assert.True(t, order.AvgFillPrice().Equal(decimal.RequireFromString("1999.6")),
		"avg fill price = %s", order.AvgFillPrice())
}

func TestNewMarketOrder_Rejected(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	}))

	qty := decimal.RequireFromString("1")
	_, err := c.NewMarketOrder(context.Background(), domain.OrderRequest{
		Symbol:   "ETHUSDT",
		Side:     domain.SideSell,
		Quantity: &qty,
	})
	assert.ErrorIs(t, err, ErrOrderRejected)
	assert.False(t, IsRetryable(err))
}

func TestNewMarketOrder_ValidatesRequest(t *testing.T) {
	c := NewBinanceClient("", "")
	_, err := c.NewMarketOrder(context.Background(), domain.OrderRequest{
		Symbol: "ETHUSDT",
		Side:   domain.SideBuy,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestAvgFillPrice_NoFills(t *testing.T) {
	r := &OrderResult{}
	assert.True(t, r.AvgFillPrice().IsZero())
}
