package domain

import "github.com/shopspring/decimal"

// Exit reason codes recorded on completed trades.
const (
	ExitReasonCrossDown    = "cross_down"
	ExitReasonTrailingStop = "trailing_stop"
)

// Trade is one completed round-trip recorded by the backtest engine.
type Trade struct {
	EntryTimeMs int64
	ExitTimeMs  int64
	Side        string // always "LONG" for spot
	ExitReason  string
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	Quantity    decimal.Decimal
	PnL         decimal.Decimal // quote currency, after fees and slippage
	MaxRunupPct decimal.Decimal // peak unrealized profit observed while open
}

// EquityPoint is one sample of the backtest equity curve, taken after each
// processed bar.
type EquityPoint struct {
	TimeMs int64
	Close  decimal.Decimal
	Cash   decimal.Decimal
	Qty    decimal.Decimal
	Equity decimal.Decimal
}

// BacktestResult summarizes one backtest run.
type BacktestResult struct {
	Symbol         string
	Interval       string
	Bars           int
	Trades         int
	StartEquity    decimal.Decimal
	EndEquity      decimal.Decimal
	ReturnPct      decimal.Decimal
	MaxDrawdownPct decimal.Decimal
}

// TradeLog is one executed or simulated fill recorded by the live trader.
type TradeLog struct {
	ID        int64
	Symbol    string
	Side      Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Reason    string
	Mode      string // "dry_run" or "live"
	OrderID   string
	CreatedMs int64
}
