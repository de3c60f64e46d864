package backtest

import (
	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/strategy"
)

// StubStrategy emits pre-scripted signals keyed by the close time of the
// latest bar in the window. Used by engine tests to exercise the ledger
// independently of crossover arithmetic.
type StubStrategy struct {
	// Script maps a bar close time (ms) to the signal to emit on that bar.
	Script map[int64]domain.Signal
	// Lookback is the reported lookback requirement (minimum 1).
	Lookback int
}

// ID returns the strategy identifier.
func (s *StubStrategy) ID() string {
	return "stub"
}

// LookbackBars returns the scripted lookback requirement.
func (s *StubStrategy) LookbackBars() int {
	if s.Lookback < 1 {
		return 1
	}
	return s.Lookback
}

// GenerateSignal returns the scripted signal for the latest bar, if any.
func (s *StubStrategy) GenerateSignal(klines []domain.Kline, _ domain.StrategyContext) (*domain.Signal, error) {
	if len(klines) == 0 {
		return nil, nil
	}
	last := klines[len(klines)-1]
	if sig, ok := s.Script[last.CloseTimeMs]; ok {
		return &sig, nil
	}
	return nil, nil
}

// Compile-time interface check.
var _ strategy.Strategy = (*StubStrategy)(nil)
