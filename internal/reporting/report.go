// Package reporting renders backtest results as a report directory
// (summary.json, trades.csv, equity.csv, report.md), grid-search tables
// and Telegram summary text.
package reporting

import (
	"sort"

	"github.com/shopspring/decimal"

	"binance-spot-bot/internal/domain"
)

var dec100 = decimal.NewFromInt(100)

// Summary is the flat backtest summary persisted as summary.json.
type Summary struct {
	Symbol                 string          `json:"symbol"`
	Interval               string          `json:"interval"`
	StrategyID             string          `json:"strategy_id"`
	MAType                 string          `json:"ma_type"`
	Fast                   int             `json:"fast"`
	Slow                   int             `json:"slow"`
	RequestedStartUTC      string          `json:"requested_start_utc"`
	RequestedEndUTC        string          `json:"requested_end_utc"`
	Bars                   int             `json:"bars"`
	Trades                 int             `json:"trades"`
	StartEquity            decimal.Decimal `json:"start_equity_usdt"`
	EndEquity              decimal.Decimal `json:"end_equity_usdt"`
	ReturnPct              decimal.Decimal `json:"return_pct"`
	MaxDrawdownPct         decimal.Decimal `json:"max_drawdown_pct"`
	FeeRate                decimal.Decimal `json:"fee_rate"`
	SlippageBps            decimal.Decimal `json:"slippage_bps"`
	PositionSizing         string          `json:"position_sizing"`
	CashFraction           decimal.Decimal `json:"cash_fraction"`
	OrderNotional          decimal.Decimal `json:"order_notional_usdt"`
	TrailingStopEnabled    bool            `json:"trailing_stop_enabled"`
	TrailingStartProfitPct decimal.Decimal `json:"trailing_start_profit_pct"`
	TrailingDrawdownPct    decimal.Decimal `json:"trailing_drawdown_pct"`
	TradesCSV              string          `json:"trades_csv"`
}

// TradeStats aggregates the completed trades of one run.
type TradeStats struct {
	Wins          int
	WinRatePct    decimal.Decimal
	TrailingExits int
	CrossExits    int
	AvgRunupPct   decimal.Decimal
	MaxRunupPct   decimal.Decimal
}

// ComputeTradeStats derives win rate, exit counts and run-up aggregates.
func ComputeTradeStats(trades []domain.Trade) TradeStats {
	stats := TradeStats{
		WinRatePct:  decimal.Zero,
		AvgRunupPct: decimal.Zero,
		MaxRunupPct: decimal.Zero,
	}
	if len(trades) == 0 {
		return stats
	}

	runupSum := decimal.Zero
	for _, t := range trades {
		if t.PnL.IsPositive() {
			stats.Wins++
		}
		switch t.ExitReason {
		case domain.ExitReasonTrailingStop:
			stats.TrailingExits++
		case domain.ExitReasonCrossDown:
			stats.CrossExits++
		}
		runupSum = runupSum.Add(t.MaxRunupPct)
		if t.MaxRunupPct.GreaterThan(stats.MaxRunupPct) {
			stats.MaxRunupPct = t.MaxRunupPct
		}
	}

	n := decimal.NewFromInt(int64(len(trades)))
	stats.WinRatePct = decimal.NewFromInt(int64(stats.Wins)).Div(n).Mul(dec100)
	stats.AvgRunupPct = runupSum.Div(n)
	return stats
}

// GridRow is one (fast, slow) combination of a grid search.
type GridRow struct {
	Fast           int
	Slow           int
	Trades         int
	WinRatePct     decimal.Decimal
	ReturnPct      decimal.Decimal
	MaxDrawdownPct decimal.Decimal
	EndEquity      decimal.Decimal
}

// RankGridRows sorts rows best-first: highest return, then lowest drawdown,
// then most trades.
func RankGridRows(rows []GridRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].ReturnPct.Equal(rows[j].ReturnPct) {
			return rows[i].ReturnPct.GreaterThan(rows[j].ReturnPct)
		}
		if !rows[i].MaxDrawdownPct.Equal(rows[j].MaxDrawdownPct) {
			return rows[i].MaxDrawdownPct.LessThan(rows[j].MaxDrawdownPct)
		}
		return rows[i].Trades > rows[j].Trades
	})
}
