package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"binance-spot-bot/internal/domain"
)

// Client is the exchange surface the trader, backtester and collectors
// depend on. Implementations must be safe for concurrent use.
type Client interface {
	// Klines returns the most recent klines for symbol, oldest first.
	// The final element may be the currently-forming candle.
	Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error)

	// KlinesRange returns klines with open time in [startMs, endMs],
	// oldest first, up to limit rows.
	KlinesRange(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]domain.Kline, error)

	// SymbolRules returns the trading filters for symbol.
	SymbolRules(ctx context.Context, symbol string) (domain.SymbolTradingRules, error)

	// AccountBalances returns free balances by asset.
	AccountBalances(ctx context.Context) (map[string]decimal.Decimal, error)

	// NewMarketOrder submits a market order and returns the fill report.
	NewMarketOrder(ctx context.Context, req domain.OrderRequest) (*OrderResult, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// ServerTimeMs returns the exchange server time in epoch ms.
	ServerTimeMs(ctx context.Context) (int64, error)
}

// Fill is a single partial execution of an order.
type Fill struct {
	Price           decimal.Decimal
	Quantity        decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
}

// OrderResult is the exchange's report for a submitted order.
type OrderResult struct {
	OrderID             int64
	ClientOrderID       string
	Symbol              string
	Side                domain.Side
	Status              string
	ExecutedQty         decimal.Decimal
	CummulativeQuoteQty decimal.Decimal
	TransactTimeMs      int64
	Fills               []Fill
}

// AvgFillPrice returns the quantity-weighted average fill price, or zero
// when the report carries no fills.
func (r *OrderResult) AvgFillPrice() decimal.Decimal {
	totalQty := decimal.Zero
	totalQuote := decimal.Zero
	for _, f := range r.Fills {
		totalQty = totalQty.Add(f.Quantity)
		totalQuote = totalQuote.Add(f.Price.Mul(f.Quantity))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalQuote.Div(totalQty)
}
