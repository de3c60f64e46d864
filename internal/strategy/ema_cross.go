package strategy

import (
	"fmt"

	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/indicator"
)

// EMACross is the exponential moving average crossover strategy. It is the
// default live strategy: enter on the fast EMA crossing above the slow EMA,
// exit on the opposite crossing.
type EMACross struct {
	fast int
	slow int
}

// NewEMACross creates an EMACross strategy. Both periods must be positive
// and fast must be strictly less than slow.
func NewEMACross(fast, slow int) (*EMACross, error) {
	if fast <= 0 || slow <= 0 {
		return nil, fmt.Errorf("%w: periods must be > 0", ErrInvalidParams)
	}
	if fast >= slow {
		return nil, fmt.Errorf("%w: fast period must be < slow period", ErrInvalidParams)
	}
	return &EMACross{fast: fast, slow: slow}, nil
}

// ID returns the strategy identifier.
func (s *EMACross) ID() string {
	return fmt.Sprintf("ema_cross_%d_%d", s.fast, s.slow)
}

// LookbackBars returns slow period + 2.
func (s *EMACross) LookbackBars() int {
	return s.slow + 2
}

// GenerateSignal implements Strategy.
func (s *EMACross) GenerateSignal(klines []domain.Kline, ctx domain.StrategyContext) (*domain.Signal, error) {
	if len(klines) < s.LookbackBars() {
		return nil, nil
	}

	prices := closePrices(klines)
	fast, err := indicator.EMASeries(prices, s.fast)
	if err != nil {
		return nil, err
	}
	slow, err := indicator.EMASeries(prices, s.slow)
	if err != nil {
		return nil, err
	}

	n := len(prices)
	fastPrev, fastNow := fast[n-2], fast[n-1]
	slowPrev, slowNow := slow[n-2], slow[n-1]

	if !ctx.InPosition && crossedUp(fastPrev, fastNow, slowPrev, slowNow) {
		return &domain.Signal{Side: domain.SideBuy, Reason: "ema_cross_up"}, nil
	}
	if ctx.InPosition && crossedDown(fastPrev, fastNow, slowPrev, slowNow) {
		return &domain.Signal{Side: domain.SideSell, Reason: "ema_cross_down"}, nil
	}
	return nil, nil
}

// Compile-time interface check.
var _ Strategy = (*EMACross)(nil)
