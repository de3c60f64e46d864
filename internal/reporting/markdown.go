package reporting

import (
	"fmt"
	"strings"
)

// RenderMarkdown renders the human-readable report.md for one run.
func RenderMarkdown(s *Summary, stats TradeStats) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Backtest Report: %s %s\n\n", s.Symbol, s.Interval))

	sb.WriteString("## Summary\n")
	sb.WriteString(fmt.Sprintf("- strategy_id: `%s`\n", s.StrategyID))
	sb.WriteString(fmt.Sprintf("- ma_type: `%s`\n", s.MAType))
	sb.WriteString(fmt.Sprintf("- fast: `%d`\n", s.Fast))
	sb.WriteString(fmt.Sprintf("- slow: `%d`\n", s.Slow))
	sb.WriteString(fmt.Sprintf("- bars: `%d`\n", s.Bars))
	sb.WriteString(fmt.Sprintf("- trades: `%d`\n", s.Trades))
	sb.WriteString(fmt.Sprintf("- start_equity_usdt: `%s`\n", s.StartEquity))
	sb.WriteString(fmt.Sprintf("- end_equity_usdt: `%s`\n", s.EndEquity))
	sb.WriteString(fmt.Sprintf("- return_pct: `%s`\n", s.ReturnPct))
	sb.WriteString(fmt.Sprintf("- max_drawdown_pct: `%s`\n", s.MaxDrawdownPct))
	sb.WriteString(fmt.Sprintf("- fee_rate: `%s`\n", s.FeeRate))
	sb.WriteString(fmt.Sprintf("- order_notional_usdt: `%s`\n", s.OrderNotional))
	sb.WriteString("\n")

	if s.Trades > 0 {
		sb.WriteString("## Trades\n")
		sb.WriteString(fmt.Sprintf("- win_rate_pct: `%s`\n", stats.WinRatePct))
		sb.WriteString(fmt.Sprintf("- trailing_exits: `%d`\n", stats.TrailingExits))
		sb.WriteString(fmt.Sprintf("- cross_exits: `%d`\n", stats.CrossExits))
		sb.WriteString(fmt.Sprintf("- avg_runup_pct: `%s`\n", stats.AvgRunupPct))
		sb.WriteString(fmt.Sprintf("- max_runup_pct: `%s`\n", stats.MaxRunupPct))
		sb.WriteString("\n")
		sb.WriteString("See `trades.csv` for details.\n\n")
	}

	sb.WriteString("## Files\n")
	sb.WriteString("- `summary.json`\n")
	sb.WriteString("- `trades.csv`\n")
	sb.WriteString("- `equity.csv`\n")

	return sb.String()
}

// TelegramSummary builds the plain-text backtest summary sent to Telegram.
// startMs and endMs bound the bar window the run actually covered.
func TelegramSummary(s *Summary, stats TradeStats, startMs, endMs int64) string {
	pnl := s.EndEquity.Sub(s.StartEquity)
	feePct := s.FeeRate.Mul(dec100)
	slippagePct := s.SlippageBps.Div(dec100)

	sizing := fmt.Sprintf("Sizing: fixed notional %s USDT", s.OrderNotional.StringFixed(2))
	if s.PositionSizing == "cash_fraction" {
		sizing = fmt.Sprintf("Sizing: compounding %s%% of cash", s.CashFraction.Mul(dec100).StringFixed(2))
	}

	trailing := "Trailing stop: off"
	if s.TrailingStopEnabled {
		trailing = fmt.Sprintf("Trailing stop: start=%s%% dd=%s%%",
			s.TrailingStartProfitPct.StringFixed(2), s.TrailingDrawdownPct.StringFixed(2))
	}

	lines := []string{
		"Backtest finished",
		fmt.Sprintf("%s | %s | %s(%d,%d)", s.Symbol, s.Interval, strings.ToUpper(s.MAType), s.Fast, s.Slow),
		fmt.Sprintf("Period: %s ~ %s", msToUTC(startMs), msToUTC(endMs)),
		fmt.Sprintf("Bars: %d Trades: %d Win rate: %s%%", s.Bars, s.Trades, stats.WinRatePct.StringFixed(2)),
		fmt.Sprintf("Exits: trailing %d | cross %d", stats.TrailingExits, stats.CrossExits),
		fmt.Sprintf("Run-up: avg %s%% max %s%%", stats.AvgRunupPct.StringFixed(2), stats.MaxRunupPct.StringFixed(2)),
		fmt.Sprintf("PnL: %s USDT (%s%%) End equity: %s",
			pnl.StringFixed(2), s.ReturnPct.StringFixed(2), s.EndEquity.StringFixed(2)),
		fmt.Sprintf("Max drawdown: %s%%", s.MaxDrawdownPct.StringFixed(2)),
		sizing,
		trailing,
		fmt.Sprintf("Costs: fee %s%% | slippage %s%% (%s bps)",
			feePct.StringFixed(2), slippagePct.StringFixed(2), s.SlippageBps),
	}
	return strings.Join(lines, "\n")
}
