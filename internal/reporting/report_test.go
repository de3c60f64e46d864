package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-spot-bot/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleTrades() []domain.Trade {
	return []domain.Trade{
		{
			EntryTimeMs: 1_700_000_000_000,
			ExitTimeMs:  1_700_000_060_000,
			Side:        "LONG",
			ExitReason:  domain.ExitReasonCrossDown,
			EntryPrice:  dec("100"),
			ExitPrice:   dec("110"),
			Quantity:    dec("1"),
			PnL:         dec("9.5"),
			MaxRunupPct: dec("12"),
		},
		{
			EntryTimeMs: 1_700_000_120_000,
			ExitTimeMs:  1_700_000_180_000,
			Side:        "LONG",
			ExitReason:  domain.ExitReasonTrailingStop,
			EntryPrice:  dec("110"),
			ExitPrice:   dec("105"),
			Quantity:    dec("1"),
			PnL:         dec("-5.2"),
			MaxRunupPct: dec("4"),
		},
	}
}

func sampleSummary() *Summary {
	return &Summary{
		Symbol:         "ETHUSDT",
		Interval:       "1m",
		StrategyID:     "ema_cross_12_26",
		MAType:         "ema",
		Fast:           12,
		Slow:           26,
		Bars:           500,
		Trades:         2,
		StartEquity:    dec("1000"),
		EndEquity:      dec("1004.3"),
		ReturnPct:      dec("0.43"),
		MaxDrawdownPct: dec("1.2"),
		FeeRate:        dec("0.001"),
		SlippageBps:    dec("5"),
		PositionSizing: "fixed_notional",
		CashFraction:   dec("0.5"),
		OrderNotional:  dec("100"),
	}
}

func TestComputeTradeStats(t *testing.T) {
	stats := ComputeTradeStats(sampleTrades())

	assert.Equal(t, 1, stats.Wins)
	assert.True(t, stats.WinRatePct.Equal(dec("50")), "win rate %s", stats.WinRatePct)
	assert.Equal(t, 1, stats.TrailingExits)
	assert.Equal(t, 1, stats.CrossExits)
	assert.True(t, stats.AvgRunupPct.Equal(dec("8")), "avg runup %s", stats.AvgRunupPct)
	assert.True(t, stats.MaxRunupPct.Equal(dec("12")), "max runup %s", stats.MaxRunupPct)
}

func TestComputeTradeStats_NoTrades(t *testing.T) {
	stats := ComputeTradeStats(nil)
	assert.Equal(t, 0, stats.Wins)
	assert.True(t, stats.WinRatePct.IsZero())
	assert.True(t, stats.AvgRunupPct.IsZero())
}

func TestRankGridRows(t *testing.T) {
	rows := []GridRow{
		{Fast: 5, Slow: 20, Trades: 3, ReturnPct: dec("1.0"), MaxDrawdownPct: dec("2.0")},
		{Fast: 8, Slow: 30, Trades: 5, ReturnPct: dec("2.5"), MaxDrawdownPct: dec("3.0")},
		{Fast: 10, Slow: 40, Trades: 9, ReturnPct: dec("1.0"), MaxDrawdownPct: dec("1.5")},
		{Fast: 12, Slow: 40, Trades: 2, ReturnPct: dec("1.0"), MaxDrawdownPct: dec("1.5")},
	}

	RankGridRows(rows)

	assert.Equal(t, 8, rows[0].Fast)  // best return
	assert.Equal(t, 10, rows[1].Fast) // equal return, lower drawdown, more trades
	assert.Equal(t, 12, rows[2].Fast)
	assert.Equal(t, 5, rows[3].Fast)
}

func TestRenderTradesCSV(t *testing.T) {
	out := RenderTradesCSV(sampleTrades())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t,
		"entry_time_ms,entry_time_utc,exit_time_ms,exit_time_utc,side,exit_reason,"+
			"entry_price,exit_price,quantity,pnl_usdt,max_runup_pct",
		lines[0])
	assert.Contains(t, lines[1], "cross_down")
	assert.Contains(t, lines[1], "9.5")
	assert.Contains(t, lines[2], "trailing_stop")
}

func TestRenderEquityCSV(t *testing.T) {
	out := RenderEquityCSV([]domain.EquityPoint{
		{TimeMs: 1000, Close: dec("100"), Cash: dec("900"), Qty: dec("1"), Equity: dec("1000")},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "time_ms,close,cash,qty,equity", lines[0])
	assert.Equal(t, "1000,100,900,1,1000", lines[1])
}

func TestRenderGridCSV(t *testing.T) {
	rows := []GridRow{
		{Fast: 8, Slow: 30, Trades: 5, WinRatePct: dec("60"), ReturnPct: dec("2.5"),
			MaxDrawdownPct: dec("3"), EndEquity: dec("1025")},
	}
	out := RenderGridCSV(rows)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "rank,fast,slow,trades,win_rate_pct,return_pct,max_drawdown_pct,end_equity_usdt", lines[0])
	assert.Equal(t, "1,8,30,5,60,2.5,3,1025", lines[1])
}

func TestTelegramSummary(t *testing.T) {
	s := sampleSummary()
	stats := ComputeTradeStats(sampleTrades())

	text := TelegramSummary(s, stats, 1_700_000_000_000, 1_700_000_180_000)

	assert.Contains(t, text, "Backtest finished")
	assert.Contains(t, text, "ETHUSDT | 1m | EMA(12,26)")
	assert.Contains(t, text, "Win rate: 50.00%")
	assert.Contains(t, text, "Exits: trailing 1 | cross 1")
	assert.Contains(t, text, "Sizing: fixed notional 100.00 USDT")
	assert.Contains(t, text, "Trailing stop: off")
	assert.Contains(t, text, "slippage 0.05% (5 bps)")
}

func TestTelegramSummary_CashFractionAndTrailing(t *testing.T) {
	s := sampleSummary()
	s.PositionSizing = "cash_fraction"
	s.TrailingStopEnabled = true
	s.TrailingStartProfitPct = dec("3")
	s.TrailingDrawdownPct = dec("1")

	text := TelegramSummary(s, TradeStats{}, 0, 0)

	assert.Contains(t, text, "Sizing: compounding 50.00% of cash")
	assert.Contains(t, text, "Trailing stop: start=3.00% dd=1.00%")
}

func TestWriteReportDir(t *testing.T) {
	orig := timeNow
	timeNow = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { timeNow = orig }()

	root := t.TempDir()
	dir, err := WriteReportDir(root, "eth backtest", sampleSummary(), sampleTrades(), []domain.EquityPoint{
		{TimeMs: 1000, Close: dec("100"), Cash: dec("900"), Qty: dec("1"), Equity: dec("1000")},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "20240501T120000Z_eth_backtest"), dir)

	for _, name := range []string{"summary.json", "trades.csv", "equity.csv", "report.md"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "missing %s", name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "ETHUSDT", decoded["symbol"])
	assert.Equal(t, "1000", decoded["start_equity_usdt"])

	md, err := os.ReadFile(filepath.Join(dir, "report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Backtest Report: ETHUSDT 1m")
	assert.Contains(t, string(md), "win_rate_pct")
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "eth_1m", safeName("eth 1m"))
	assert.Equal(t, "run", safeName("///"))
	assert.Equal(t, "a-b.c_d", safeName(" a-b.c_d "))
}
