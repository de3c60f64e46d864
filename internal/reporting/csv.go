package reporting

import (
	"fmt"
	"strings"
	"time"

	"binance-spot-bot/internal/domain"
)

// RenderTradesCSV renders completed trades as CSV string.
func RenderTradesCSV(trades []domain.Trade) string {
	var sb strings.Builder

	sb.WriteString("entry_time_ms,entry_time_utc,exit_time_ms,exit_time_utc,side,exit_reason,")
	sb.WriteString("entry_price,exit_price,quantity,pnl_usdt,max_runup_pct\n")

	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%d,%s,%d,%s,%s,%s,%s,%s,%s,%s,%s\n",
			t.EntryTimeMs,
			msToUTC(t.EntryTimeMs),
			t.ExitTimeMs,
			msToUTC(t.ExitTimeMs),
			t.Side,
			t.ExitReason,
			t.EntryPrice,
			t.ExitPrice,
			t.Quantity,
			t.PnL,
			t.MaxRunupPct,
		))
	}

	return sb.String()
}

// RenderEquityCSV renders the equity curve as CSV string.
func RenderEquityCSV(points []domain.EquityPoint) string {
	var sb strings.Builder

	sb.WriteString("time_ms,close,cash,qty,equity\n")
	for _, p := range points {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s\n",
			p.TimeMs, p.Close, p.Cash, p.Qty, p.Equity))
	}

	return sb.String()
}

// RenderGridCSV renders ranked grid-search rows as CSV string. Rows are
// expected to already be in rank order (see RankGridRows).
func RenderGridCSV(rows []GridRow) string {
	var sb strings.Builder

	sb.WriteString("rank,fast,slow,trades,win_rate_pct,return_pct,max_drawdown_pct,end_equity_usdt\n")
	for i, r := range rows {
		sb.WriteString(fmt.Sprintf("%d,%d,%d,%d,%s,%s,%s,%s\n",
			i+1, r.Fast, r.Slow, r.Trades,
			r.WinRatePct, r.ReturnPct, r.MaxDrawdownPct, r.EndEquity))
	}

	return sb.String()
}

func msToUTC(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04 UTC")
}
