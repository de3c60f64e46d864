// Package trader runs the live decision loop: poll closed klines, ask
// the strategy for a signal, translate it into an exchange order under
// the symbol's trading rules, and track the resulting position.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"binance-spot-bot/internal/config"
	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/exchange"
	"binance-spot-bot/internal/notify"
	"binance-spot-bot/internal/observability"
	"binance-spot-bot/internal/strategy"
)

// Position sizing modes for BUY orders.
const (
	SizingFixedNotional = "fixed_notional"
	SizingCashFraction  = "cash_fraction"
)

const (
	// minWindowBars is the smallest kline window ever requested; real
	// strategies need warmup history beyond their lookback.
	minWindowBars = 200
	// maxWindowBars caps the window at the exchange page limit.
	maxWindowBars = 1000
	// minClosedBars is the minimum closed history before any decision.
	minClosedBars = 3

	// tickErrorBackoff is the fixed pause after a failed tick.
	tickErrorBackoff = 10 * time.Second
	// errorNotifyCooldown rate-limits error notifications.
	errorNotifyCooldown = 5 * time.Minute

	// pollLag is added past the bar close before polling, giving the
	// exchange time to finalize the candle.
	pollLag = 2 * time.Second
	// minPollSleep and maxPollSleep clamp the poll schedule.
	minPollSleep = 3 * time.Second
	maxPollSleep = time.Minute
)

var ErrInvalidOptions = errors.New("invalid trader options")

// State is the trader's view of its own position.
type State struct {
	InPosition               bool
	PositionQty              decimal.Decimal
	LastProcessedCloseTimeMs int64
	LastTradeTime            time.Time
	EntryPrice               decimal.Decimal
	PeakPrice                decimal.Decimal
}

// TradeLogRecorder persists executed trades. Persistence is best
// effort; failures never affect trading.
type TradeLogRecorder interface {
	Insert(ctx context.Context, rec *domain.TradeLog) error
}

// Options configures a Trader.
type Options struct {
	Settings config.Settings
	Client   exchange.Client
	Strategy strategy.Strategy

	// Notifier defaults to notify.Noop.
	Notifier notify.Notifier
	// TradeLogs is optional.
	TradeLogs TradeLogRecorder
	// Logger defaults to stdout with a "[trader] " prefix.
	Logger *log.Logger

	// Sizing is SizingFixedNotional (default) or SizingCashFraction.
	Sizing string
	// OrderNotional is the per-BUY quote spend under fixed notional
	// sizing. Defaults to Settings.MaxOrderNotional.
	OrderNotional decimal.Decimal

	// now overrides the clock in tests.
	now func() time.Time
}

// Trader is the stateful live trading loop for a single symbol.
type Trader struct {
	settings  config.Settings
	client    exchange.Client
	strategy  strategy.Strategy
	notifier  notify.Notifier
	tradeLogs TradeLogRecorder
	logger    *log.Logger

	sizing        string
	orderNotional decimal.Decimal
	interval      time.Duration
	now           func() time.Time

	state           State
	rules           domain.SymbolTradingRules
	lastErrorNotify time.Time
}

// New creates a Trader. The symbol, interval and strategy are fixed for
// the trader's lifetime.
func New(opts Options) (*Trader, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: client required", ErrInvalidOptions)
	}
	if opts.Strategy == nil {
		return nil, fmt.Errorf("%w: strategy required", ErrInvalidOptions)
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}

	interval, err := ParseInterval(opts.Settings.Interval)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	sizing := opts.Sizing
	if sizing == "" {
		sizing = SizingFixedNotional
	}
	if sizing != SizingFixedNotional && sizing != SizingCashFraction {
		return nil, fmt.Errorf("%w: unknown sizing %q", ErrInvalidOptions, sizing)
	}

	orderNotional := opts.OrderNotional
	if orderNotional.IsZero() {
		orderNotional = opts.Settings.MaxOrderNotional
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[trader] ", log.LstdFlags)
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}

	return &Trader{
		settings:      opts.Settings,
		client:        opts.Client,
		strategy:      opts.Strategy,
		notifier:      notifier,
		tradeLogs:     opts.TradeLogs,
		logger:        logger,
		sizing:        sizing,
		orderNotional: orderNotional,
		interval:      interval,
		now:           now,
	}, nil
}

// State returns a copy of the current trader state.
func (t *Trader) State() State {
	return t.state
}

// Run executes the trading loop until ctx is cancelled. Tick failures
// are logged, notified (rate limited) and retried after a fixed
// backoff; only cancellation ends the loop.
func (t *Trader) Run(ctx context.Context) error {
	rules, err := t.client.SymbolRules(ctx, t.settings.Symbol)
	if err != nil {
		return fmt.Errorf("fetch symbol rules: %w", err)
	}
	t.rules = rules

	mode := t.mode()
	t.logger.Printf("started: symbol=%s strategy=%s mode=%s", t.settings.Symbol, t.strategy.ID(), mode)
	t.notify(ctx, fmt.Sprintf("Started: %s %s mode=%s", t.settings.Symbol, t.strategy.ID(), mode))
	defer t.notifyStopped()

	if t.settings.LiveTradingEnabled() {
		if err := t.syncPositionFromAccount(ctx); err != nil {
			t.logger.Printf("position sync failed: %v", err)
		}
	}

	for {
		err := t.tick(ctx)
		observability.RecordTick(err)
		observability.SetLastTick(float64(t.now().Unix()))

		sleep := t.pollDelay()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.handleTickError(ctx, err)
			sleep = tickErrorBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// notifyStopped sends the shutdown notification on a fresh context; the
// loop context is already cancelled by the time it runs.
func (t *Trader) notifyStopped() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	t.notify(ctx, fmt.Sprintf("Stopped: %s %s", t.settings.Symbol, t.strategy.ID()))
	t.logger.Printf("stopped: symbol=%s", t.settings.Symbol)
}

// tick runs one decision cycle over the latest closed bar.
func (t *Trader) tick(ctx context.Context) error {
	klines, err := t.client.Klines(ctx, t.settings.Symbol, t.settings.Interval, t.windowSize())
	if err != nil {
		return fmt.Errorf("fetch klines: %w", err)
	}

	closed := domain.ClosedOnly(klines)
	if len(closed) < minClosedBars {
		return nil
	}

	lastClosed := closed[len(closed)-1]
	if lastClosed.CloseTimeMs == t.state.LastProcessedCloseTimeMs {
		return nil
	}
	t.state.LastProcessedCloseTimeMs = lastClosed.CloseTimeMs

	lastPrice := lastClosed.Close

	// Exit protection runs before the strategy and consumes the bar.
	if t.state.InPosition && t.settings.TrailingStopEnabled {
		if t.state.PeakPrice.LessThanOrEqual(decimal.Zero) {
			if t.state.EntryPrice.GreaterThan(decimal.Zero) {
				t.state.PeakPrice = t.state.EntryPrice
			} else {
				t.state.PeakPrice = lastPrice
			}
		}
		if lastPrice.GreaterThan(t.state.PeakPrice) {
			t.state.PeakPrice = lastPrice
		}

		if t.shouldTrailingExit(lastPrice) {
			sig := domain.Signal{Side: domain.SideSell, Reason: "trailing_stop"}
			order, err := t.buildOrder(ctx, sig)
			if err != nil {
				return err
			}
			if order != nil {
				return t.execute(ctx, order, sig, lastPrice)
			}
			return nil
		}
	}

	sig, err := t.strategy.GenerateSignal(closed, domain.StrategyContext{
		Symbol:      t.settings.Symbol,
		InPosition:  t.state.InPosition,
		PositionQty: t.state.PositionQty,
	})
	if err != nil {
		return fmt.Errorf("generate signal: %w", err)
	}
	if sig == nil {
		return nil
	}
	observability.RecordSignal(string(sig.Side), sig.Reason)

	if sig.Side == domain.SideBuy && t.now().Sub(t.state.LastTradeTime) < t.settings.BuyCooldown {
		t.logger.Printf("signal blocked by cooldown: %s %s", sig.Side, sig.Reason)
		return nil
	}

	order, err := t.buildOrder(ctx, *sig)
	if err != nil {
		return err
	}
	if order == nil {
		t.logger.Printf("signal produced no viable order: %s %s", sig.Side, sig.Reason)
		return nil
	}

	return t.execute(ctx, order, *sig, lastPrice)
}

func (t *Trader) windowSize() int {
	n := t.strategy.LookbackBars()
	if n < minWindowBars {
		n = minWindowBars
	}
	if n > maxWindowBars {
		n = maxWindowBars
	}
	return n
}

func (t *Trader) shouldTrailingExit(price decimal.Decimal) bool {
	entry, peak := t.state.EntryPrice, t.state.PeakPrice
	if entry.LessThanOrEqual(decimal.Zero) || peak.LessThanOrEqual(decimal.Zero) || price.LessThanOrEqual(decimal.Zero) {
		return false
	}
	peakProfit := pct(peak.Sub(entry), entry)
	if peakProfit.LessThan(t.settings.TrailingStartProfitPct) {
		return false
	}
	dd := pct(peak.Sub(price), peak)
	return dd.GreaterThanOrEqual(t.settings.TrailingDrawdownPct)
}

// buildOrder sizes the signal into an order request, or nil when the
// trading rules make the order unviable.
func (t *Trader) buildOrder(ctx context.Context, sig domain.Signal) (*domain.OrderRequest, error) {
	switch sig.Side {
	case domain.SideBuy:
		notional, err := t.buyQuoteNotional(ctx)
		if err != nil {
			return nil, err
		}
		if notional.LessThanOrEqual(decimal.Zero) || notional.LessThan(t.rules.MinNotional) {
			return nil, nil
		}
		return &domain.OrderRequest{
			Symbol:        t.settings.Symbol,
			Side:          domain.SideBuy,
			QuoteOrderQty: &notional,
		}, nil

	case domain.SideSell:
		qty, err := t.sellQuantity(ctx)
		if err != nil {
			return nil, err
		}
		if qty.LessThanOrEqual(decimal.Zero) {
			return nil, nil
		}
		return &domain.OrderRequest{
			Symbol:   t.settings.Symbol,
			Side:     domain.SideSell,
			Quantity: &qty,
		}, nil
	}
	return nil, nil
}

// buyQuoteNotional returns the quote amount to spend on a BUY, clipped
// to the configured maximum. Cash-fraction sizing reads the live free
// quote balance; outside live trading it falls back to the cap.
func (t *Trader) buyQuoteNotional(ctx context.Context) (decimal.Decimal, error) {
	var desired decimal.Decimal
	switch t.sizing {
	case SizingCashFraction:
		if t.settings.LiveTradingEnabled() {
			balances, err := t.client.AccountBalances(ctx)
			if err != nil {
				return decimal.Zero, fmt.Errorf("fetch balances: %w", err)
			}
			desired = balances[t.rules.QuoteAsset].Mul(t.settings.CashFraction)
		} else {
			desired = t.settings.MaxOrderNotional
		}
	default:
		desired = t.orderNotional
	}

	if desired.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, nil
	}
	if desired.GreaterThan(t.settings.MaxOrderNotional) {
		desired = t.settings.MaxOrderNotional
	}
	return desired, nil
}

// sellQuantity returns the full position quantity floored to the lot
// step. Live trading reads the actual free base balance instead of the
// locally tracked quantity.
func (t *Trader) sellQuantity(ctx context.Context) (decimal.Decimal, error) {
	qty := t.state.PositionQty
	if t.settings.LiveTradingEnabled() {
		balances, err := t.client.AccountBalances(ctx)
		if err != nil {
			return decimal.Zero, fmt.Errorf("fetch balances: %w", err)
		}
		qty = balances[t.rules.BaseAsset]
	}
	return floorToStep(qty, t.rules.StepSize), nil
}

// execute submits the order (or simulates it in dry-run) and applies
// the fill to local state. Notification failures are logged only.
func (t *Trader) execute(ctx context.Context, order *domain.OrderRequest, sig domain.Signal, lastPrice decimal.Decimal) error {
	mode := t.mode()

	if !t.settings.LiveTradingEnabled() {
		t.logger.Printf("dry-run order: %s %s reason=%s price=%s", order.Side, order.Symbol, sig.Reason, lastPrice)
		t.notify(ctx, fmt.Sprintf("[DRY_RUN] %s %s %s price≈%s reason=%s",
			order.Symbol, order.Side, orderSizeHint(order, t.rules.QuoteAsset), lastPrice, sig.Reason))
		observability.RecordOrder(string(order.Side), mode)
		t.applyFill(order, lastPrice, nil)
		t.state.LastTradeTime = t.now()
		t.recordTradeLog(ctx, order, sig, lastPrice, "")
		return nil
	}

	result, err := t.client.NewMarketOrder(ctx, *order)
	if err != nil {
		observability.RecordOrderError(string(order.Side))
		return fmt.Errorf("submit %s order: %w", order.Side, err)
	}

	t.logger.Printf("order placed: %s %s id=%d status=%s", order.Side, order.Symbol, result.OrderID, result.Status)
	t.notify(ctx, fmt.Sprintf("[LIVE] %s %s %s order_id=%d reason=%s",
		order.Symbol, order.Side, orderSizeHint(order, t.rules.QuoteAsset), result.OrderID, sig.Reason))
	observability.RecordOrder(string(order.Side), mode)
	t.applyFill(order, lastPrice, result)
	t.state.LastTradeTime = t.now()
	t.recordTradeLog(ctx, order, sig, lastPrice, fmt.Sprintf("%d", result.OrderID))
	return nil
}

// applyFill mutates position state from the order outcome. State always
// moves, even when the fill report is incomplete; the next account sync
// corrects any drift.
func (t *Trader) applyFill(order *domain.OrderRequest, lastPrice decimal.Decimal, result *exchange.OrderResult) {
	executedQty := decimal.Zero
	avgPrice := decimal.Zero
	if result != nil {
		executedQty = result.ExecutedQty
		avgPrice = result.AvgFillPrice()
	}

	if order.Side == domain.SideBuy {
		t.state.InPosition = true
		if executedQty.LessThanOrEqual(decimal.Zero) && order.Quantity != nil {
			executedQty = *order.Quantity
		}
		if executedQty.LessThanOrEqual(decimal.Zero) && order.QuoteOrderQty != nil && lastPrice.GreaterThan(decimal.Zero) {
			executedQty = order.QuoteOrderQty.Div(lastPrice)
		}
		if executedQty.GreaterThan(decimal.Zero) {
			t.state.PositionQty = t.state.PositionQty.Add(executedQty)
		}
		if t.state.EntryPrice.LessThanOrEqual(decimal.Zero) {
			if avgPrice.GreaterThan(decimal.Zero) {
				t.state.EntryPrice = avgPrice
			} else {
				t.state.EntryPrice = lastPrice
			}
		}
		if t.state.PeakPrice.LessThanOrEqual(decimal.Zero) {
			t.state.PeakPrice = t.state.EntryPrice
		}
	} else {
		t.state.InPosition = false
		t.state.PositionQty = decimal.Zero
		t.state.EntryPrice = decimal.Zero
		t.state.PeakPrice = decimal.Zero
	}

	qty, _ := t.state.PositionQty.Float64()
	observability.SetPosition(t.state.InPosition, qty)
}

// syncPositionFromAccount adopts the account's free base balance as the
// current position.
func (t *Trader) syncPositionFromAccount(ctx context.Context) error {
	balances, err := t.client.AccountBalances(ctx)
	if err != nil {
		return err
	}
	qty := balances[t.rules.BaseAsset]
	if qty.GreaterThan(decimal.Zero) {
		t.state.InPosition = true
		t.state.PositionQty = qty
	} else {
		t.state.InPosition = false
		t.state.PositionQty = decimal.Zero
	}
	t.logger.Printf("position synced: qty=%s", t.state.PositionQty)
	return nil
}

// recordTradeLog persists the executed trade, best effort.
func (t *Trader) recordTradeLog(ctx context.Context, order *domain.OrderRequest, sig domain.Signal, lastPrice decimal.Decimal, orderID string) {
	if t.tradeLogs == nil {
		return
	}

	qty := decimal.Zero
	if order.Quantity != nil {
		qty = *order.Quantity
	} else if order.QuoteOrderQty != nil && lastPrice.GreaterThan(decimal.Zero) {
		qty = order.QuoteOrderQty.Div(lastPrice)
	}

	rec := domain.TradeLog{
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  qty,
		Price:     lastPrice,
		Reason:    sig.Reason,
		Mode:      t.mode(),
		OrderID:   orderID,
		CreatedMs: t.now().UnixMilli(),
	}
	if err := t.tradeLogs.Insert(ctx, &rec); err != nil {
		t.logger.Printf("trade log insert failed: %v", err)
	}
}

// handleTickError logs the failure and notifies at most once per
// cooldown window.
func (t *Trader) handleTickError(ctx context.Context, err error) {
	t.logger.Printf("tick failed: %v", err)

	now := t.now()
	if now.Sub(t.lastErrorNotify) < errorNotifyCooldown {
		return
	}
	t.lastErrorNotify = now
	t.notify(ctx, fmt.Sprintf("Error: %s %s: %v", t.settings.Symbol, t.settings.Interval, err))
}

// pollDelay returns how long to sleep before the next tick: shortly
// after the next expected bar close, clamped so the loop neither spins
// nor oversleeps long intervals.
func (t *Trader) pollDelay() time.Duration {
	ceiling := t.interval
	if ceiling > maxPollSleep {
		ceiling = maxPollSleep
	}
	if ceiling < minPollSleep {
		ceiling = minPollSleep
	}

	if t.state.LastProcessedCloseTimeMs == 0 {
		return ceiling
	}

	target := time.UnixMilli(t.state.LastProcessedCloseTimeMs).Add(t.interval).Add(pollLag)
	d := target.Sub(t.now())
	if d < minPollSleep {
		return minPollSleep
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

func (t *Trader) mode() string {
	if t.settings.LiveTradingEnabled() {
		return config.ModeLive
	}
	return config.ModeDryRun
}

func (t *Trader) notify(ctx context.Context, text string) {
	if err := t.notifier.Send(ctx, text); err != nil {
		t.logger.Printf("notification failed: %v", err)
		observability.RecordNotifyFailure()
	}
}

func orderSizeHint(order *domain.OrderRequest, quoteAsset string) string {
	if order.Quantity != nil {
		return fmt.Sprintf("qty=%s", order.Quantity)
	}
	if order.QuoteOrderQty != nil {
		return fmt.Sprintf("quote≈%s %s", order.QuoteOrderQty, quoteAsset)
	}
	return ""
}

// floorToStep rounds quantity down to a multiple of step. A non-positive
// step leaves the quantity unchanged.
func floorToStep(quantity, step decimal.Decimal) decimal.Decimal {
	if step.LessThanOrEqual(decimal.Zero) {
		return quantity
	}
	steps := quantity.Div(step).Floor()
	return steps.Mul(step)
}

func pct(numerator, denominator decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		return decimal.Zero
	}
	return numerator.Div(denominator).Mul(decimal.NewFromInt(100))
}
