// Package backtest replays a strategy over historical bars with a simulated
// cash/inventory ledger.
package backtest

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/strategy"
)

// Configuration errors.
var (
	ErrInvalidConfig = errors.New("invalid backtest config")
)

// Sizing modes for BUY orders.
const (
	SizingFixedNotional = "fixed_notional"
	SizingCashFraction  = "cash_fraction"
)

var (
	hundred     = decimal.NewFromInt(100)
	bpsPerUnit  = decimal.NewFromInt(10000)
	decimalOne  = decimal.NewFromInt(1)
	maxSlippage = decimal.NewFromInt(10000)
)

// Config holds the parameters of one backtest run.
type Config struct {
	Symbol   string
	Interval string
	Strategy strategy.Strategy

	InitialCash decimal.Decimal

	// Sizing is SizingFixedNotional or SizingCashFraction.
	// Fixed notional spends OrderNotional per BUY; cash fraction spends
	// CashFraction of current cash all-in: the pre-fee cost is
	// allocation/(1+FeeRate) so that cost plus fee equals the allocation
	// exactly.
	Sizing        string
	CashFraction  decimal.Decimal
	OrderNotional decimal.Decimal

	FeeRate     decimal.Decimal
	SlippageBps decimal.Decimal

	TrailingStopEnabled    bool
	TrailingStartProfitPct decimal.Decimal
	TrailingDrawdownPct    decimal.Decimal
}

// Engine replays one strategy over one bar sequence. State is reset on
// every Run call; an Engine holds no shared state, so parallel parameter
// sweeps construct one Engine per run.
type Engine struct {
	cfg      Config
	lookback int

	// ledger
	cash       decimal.Decimal
	qty        decimal.Decimal
	inPosition bool

	// open position tracking
	entryTimeMs    int64
	entryPrice     decimal.Decimal
	entryQty       decimal.Decimal
	entryTotalCost decimal.Decimal
	peakPrice      decimal.Decimal

	trades      []domain.Trade
	equityCurve []domain.EquityPoint
}

// NewEngine validates cfg and creates an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("%w: strategy is required", ErrInvalidConfig)
	}
	if cfg.InitialCash.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: initial cash must be > 0", ErrInvalidConfig)
	}
	if cfg.Sizing != SizingFixedNotional && cfg.Sizing != SizingCashFraction {
		return nil, fmt.Errorf("%w: sizing must be %s or %s", ErrInvalidConfig, SizingFixedNotional, SizingCashFraction)
	}
	if cfg.FeeRate.IsNegative() {
		return nil, fmt.Errorf("%w: fee rate must be >= 0", ErrInvalidConfig)
	}
	if cfg.SlippageBps.IsNegative() || cfg.SlippageBps.GreaterThanOrEqual(maxSlippage) {
		return nil, fmt.Errorf("%w: slippage bps must be within [0, 10000)", ErrInvalidConfig)
	}
	return &Engine{cfg: cfg, lookback: cfg.Strategy.LookbackBars()}, nil
}

// Trades returns the trades recorded by the last Run.
func (e *Engine) Trades() []domain.Trade {
	return e.trades
}

// EquityCurve returns the per-bar equity samples of the last Run.
func (e *Engine) EquityCurve() []domain.EquityPoint {
	return e.equityCurve
}

// Run replays the strategy over klines. The final bar is treated as the
// currently-forming candle and excluded, matching the live trader.
func (e *Engine) Run(klines []domain.Kline) (domain.BacktestResult, error) {
	e.reset()

	closed := domain.ClosedOnly(klines)
	if len(closed) == 0 {
		return domain.BacktestResult{
			Symbol:      e.cfg.Symbol,
			Interval:    e.cfg.Interval,
			StartEquity: e.cfg.InitialCash,
			EndEquity:   e.cfg.InitialCash,
		}, nil
	}

	startEquity := e.cfg.InitialCash
	peakEquity := startEquity
	maxDrawdownPct := decimal.Zero

	var window []domain.Kline
	for _, k := range closed {
		window = append(window, k)
		if len(window) > e.lookback {
			window = window[len(window)-e.lookback:]
		}

		if err := e.step(window, k); err != nil {
			return domain.BacktestResult{}, err
		}

		equity := e.cash.Add(e.qty.Mul(k.Close))
		e.equityCurve = append(e.equityCurve, domain.EquityPoint{
			TimeMs: k.CloseTimeMs,
			Close:  k.Close,
			Cash:   e.cash,
			Qty:    e.qty,
			Equity: equity,
		})

		if equity.GreaterThan(peakEquity) {
			peakEquity = equity
		}
		dd := pct(peakEquity.Sub(equity), peakEquity)
		if dd.GreaterThan(maxDrawdownPct) {
			maxDrawdownPct = dd
		}
	}

	endEquity := e.cash.Add(e.qty.Mul(closed[len(closed)-1].Close))
	return domain.BacktestResult{
		Symbol:         e.cfg.Symbol,
		Interval:       e.cfg.Interval,
		Bars:           len(closed),
		Trades:         len(e.trades),
		StartEquity:    startEquity,
		EndEquity:      endEquity,
		ReturnPct:      pct(endEquity.Sub(startEquity), startEquity),
		MaxDrawdownPct: maxDrawdownPct,
	}, nil
}

// step processes one closed bar: trailing-stop check first, then strategy
// evaluation. A triggered stop consumes the bar.
func (e *Engine) step(window []domain.Kline, k domain.Kline) error {
	if e.inPosition {
		if k.Close.GreaterThan(e.peakPrice) {
			e.peakPrice = k.Close
		}
		if e.cfg.TrailingStopEnabled && e.shouldTrailingExit(k.Close) {
			e.sell(k.Close, k.CloseTimeMs, domain.ExitReasonTrailingStop)
			return nil
		}
	}

	ctx := domain.StrategyContext{
		Symbol:      e.cfg.Symbol,
		InPosition:  e.inPosition,
		PositionQty: e.qty,
	}
	sig, err := e.cfg.Strategy.GenerateSignal(window, ctx)
	if err != nil {
		return fmt.Errorf("generate signal: %w", err)
	}
	if sig == nil {
		return nil
	}

	switch sig.Side {
	case domain.SideBuy:
		e.buy(k.Close, k.CloseTimeMs)
	case domain.SideSell:
		e.sell(k.Close, k.CloseTimeMs, domain.ExitReasonCrossDown)
	}
	return nil
}

// shouldTrailingExit reports whether the trailing stop fires at price.
// The stop arms once peak profit from entry reaches the start threshold and
// fires when the drop from peak reaches the drawdown threshold. Close
// prices only; intrabar extremes are ignored for parity with recorded
// results.
func (e *Engine) shouldTrailingExit(price decimal.Decimal) bool {
	if e.entryPrice.LessThanOrEqual(decimal.Zero) || e.peakPrice.LessThanOrEqual(decimal.Zero) {
		return false
	}
	peakProfit := pct(e.peakPrice.Sub(e.entryPrice), e.entryPrice)
	if peakProfit.LessThan(e.cfg.TrailingStartProfitPct) {
		return false
	}
	dd := pct(e.peakPrice.Sub(price), e.peakPrice)
	return dd.GreaterThanOrEqual(e.cfg.TrailingDrawdownPct)
}

// buy opens a position at the bar close, applying slippage and fees.
// Skipped quietly when already long, the price is not positive, or the
// sized total exceeds available cash.
func (e *Engine) buy(price decimal.Decimal, timeMs int64) {
	if e.inPosition || price.LessThanOrEqual(decimal.Zero) {
		return
	}

	cost, total := e.entryCost()
	if total.LessThanOrEqual(decimal.Zero) || e.cash.LessThan(total) {
		return
	}

	fill := price.Mul(decimalOne.Add(e.cfg.SlippageBps.Div(bpsPerUnit)))
	qty := cost.Div(fill)

	e.cash = e.cash.Sub(total)
	e.qty = e.qty.Add(qty)
	e.inPosition = true

	e.entryTimeMs = timeMs
	e.entryPrice = fill
	e.entryQty = qty
	e.entryTotalCost = total
	e.peakPrice = fill
}

// entryCost returns the pre-fee cost and the all-in total of a BUY under
// the configured sizing mode.
func (e *Engine) entryCost() (cost, total decimal.Decimal) {
	switch e.cfg.Sizing {
	case SizingCashFraction:
		allocation := e.cash.Mul(e.cfg.CashFraction)
		cost = allocation.Div(decimalOne.Add(e.cfg.FeeRate))
	default:
		cost = e.cfg.OrderNotional
	}
	fee := cost.Mul(e.cfg.FeeRate)
	return cost, cost.Add(fee)
}

// sell closes the position at the bar close, applying slippage and fees,
// and records the completed trade. A no-op without an open position.
func (e *Engine) sell(price decimal.Decimal, timeMs int64, reason string) {
	if !e.inPosition || e.qty.LessThanOrEqual(decimal.Zero) {
		return
	}

	fill := price.Mul(decimalOne.Sub(e.cfg.SlippageBps.Div(bpsPerUnit)))
	proceeds := e.qty.Mul(fill)
	fee := proceeds.Mul(e.cfg.FeeRate)
	netProceeds := proceeds.Sub(fee)

	e.cash = e.cash.Add(netProceeds)
	pnl := netProceeds.Sub(e.entryTotalCost)

	e.trades = append(e.trades, domain.Trade{
		EntryTimeMs: e.entryTimeMs,
		ExitTimeMs:  timeMs,
		Side:        "LONG",
		ExitReason:  reason,
		EntryPrice:  e.entryPrice,
		ExitPrice:   fill,
		Quantity:    e.entryQty,
		PnL:         pnl,
		MaxRunupPct: pct(e.peakPrice.Sub(e.entryPrice), e.entryPrice),
	})

	e.qty = decimal.Zero
	e.inPosition = false
	e.entryTimeMs = 0
	e.entryPrice = decimal.Zero
	e.entryQty = decimal.Zero
	e.entryTotalCost = decimal.Zero
	e.peakPrice = decimal.Zero
}

// reset clears all per-run state.
func (e *Engine) reset() {
	e.cash = e.cfg.InitialCash
	e.qty = decimal.Zero
	e.inPosition = false
	e.entryTimeMs = 0
	e.entryPrice = decimal.Zero
	e.entryQty = decimal.Zero
	e.entryTotalCost = decimal.Zero
	e.peakPrice = decimal.Zero
	e.trades = nil
	e.equityCurve = nil
}

// pct returns numerator/denominator as a percentage, zero when the
// denominator is zero.
func pct(numerator, denominator decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		return decimal.Zero
	}
	return numerator.Div(denominator).Mul(hundred)
}
