package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/indicator"
)

// MAKind selects the moving-average function used by MACross.
type MAKind string

// MAKind constants.
const (
	KindSMA MAKind = "sma"
	KindEMA MAKind = "ema"
)

// MACross is the double moving average crossover strategy: it enters when
// the fast average crosses above the slow one and exits on the opposite
// crossing. Kind selects simple or exponential averaging.
type MACross struct {
	fast int
	slow int
	kind MAKind
}

// NewMACross creates a MACross strategy. Both periods must be positive and
// fast must be strictly less than slow.
func NewMACross(fast, slow int, kind MAKind) (*MACross, error) {
	if fast <= 0 || slow <= 0 {
		return nil, fmt.Errorf("%w: periods must be > 0", ErrInvalidParams)
	}
	if fast >= slow {
		return nil, fmt.Errorf("%w: fast period must be < slow period", ErrInvalidParams)
	}
	if kind != KindSMA && kind != KindEMA {
		return nil, fmt.Errorf("%w: ma kind must be sma or ema", ErrInvalidParams)
	}
	return &MACross{fast: fast, slow: slow, kind: kind}, nil
}

// ID returns the strategy identifier.
func (s *MACross) ID() string {
	return fmt.Sprintf("ma_cross_%s_%d_%d", s.kind, s.fast, s.slow)
}

// LookbackBars returns slow period + 2.
func (s *MACross) LookbackBars() int {
	return s.slow + 2
}

// GenerateSignal implements Strategy.
func (s *MACross) GenerateSignal(klines []domain.Kline, ctx domain.StrategyContext) (*domain.Signal, error) {
	if len(klines) < s.LookbackBars() {
		return nil, nil
	}

	prices := closePrices(klines)
	fastPrev, fastNow, err := s.prevNow(prices, s.fast)
	if err != nil {
		return nil, err
	}
	slowPrev, slowNow, err := s.prevNow(prices, s.slow)
	if err != nil {
		return nil, err
	}

	if !ctx.InPosition && crossedUp(fastPrev, fastNow, slowPrev, slowNow) {
		return &domain.Signal{Side: domain.SideBuy, Reason: string(s.kind) + "_cross_up"}, nil
	}
	if ctx.InPosition && crossedDown(fastPrev, fastNow, slowPrev, slowNow) {
		return &domain.Signal{Side: domain.SideSell, Reason: string(s.kind) + "_cross_down"}, nil
	}
	return nil, nil
}

// prevNow computes the moving average at the previous and the latest bar.
func (s *MACross) prevNow(prices []decimal.Decimal, period int) (prev, now decimal.Decimal, err error) {
	if s.kind == KindSMA {
		prev, err = indicator.SMA(prices[:len(prices)-1], period)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		now, err = indicator.SMA(prices, period)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		return prev, now, nil
	}

	ema, err := indicator.EMASeries(prices, period)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return ema[len(ema)-2], ema[len(ema)-1], nil
}

// Compile-time interface check.
var _ Strategy = (*MACross)(nil)
