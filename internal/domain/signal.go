package domain

import "github.com/shopspring/decimal"

// Side is an order direction.
type Side string

// Side constants.
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Signal is a directional trade signal produced by a strategy.
// Reason records the triggering rule (e.g. "sma_cross_up", "trailing_stop")
// for audit logs and notifications.
type Signal struct {
	Side   Side
	Reason string
}

// StrategyContext is the position context passed to a strategy on every
// evaluation. It is rebuilt by the caller per call and never owned or
// mutated by the strategy.
type StrategyContext struct {
	Symbol      string
	InPosition  bool
	PositionQty decimal.Decimal
}
