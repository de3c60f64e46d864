// Package strategy implements the moving-average-crossover signal
// evaluators.
package strategy

import (
	"github.com/shopspring/decimal"

	"binance-spot-bot/internal/domain"
)

// Strategy produces directional signals from a window of closed bars.
// Implementations are stateless per call: identical input always yields
// identical output.
type Strategy interface {
	// GenerateSignal evaluates the closed-bar window against the position
	// context. Returns nil when no rule fires, including when fewer than
	// LookbackBars bars are supplied.
	GenerateSignal(klines []domain.Kline, ctx domain.StrategyContext) (*domain.Signal, error)

	// ID returns the strategy identifier.
	ID() string

	// LookbackBars returns the minimum number of closed bars required to
	// evaluate: the slow window plus the two bars needed to observe a
	// crossing transition.
	LookbackBars() int
}

// closePrices extracts the close of each bar.
func closePrices(klines []domain.Kline) []decimal.Decimal {
	out := make([]decimal.Decimal, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

// crossedUp reports a fast-over-slow upward crossing between consecutive bars.
func crossedUp(fastPrev, fastNow, slowPrev, slowNow decimal.Decimal) bool {
	return fastPrev.LessThanOrEqual(slowPrev) && fastNow.GreaterThan(slowNow)
}

// crossedDown reports a fast-under-slow downward crossing between consecutive bars.
func crossedDown(fastPrev, fastNow, slowPrev, slowNow decimal.Decimal) bool {
	return fastPrev.GreaterThanOrEqual(slowPrev) && fastNow.LessThan(slowNow)
}
