// Package domain holds the core market data and trade types shared by the
// strategy, backtest and trader packages.
package domain

import "github.com/shopspring/decimal"

// Kline represents one OHLCV candle for a fixed interval.
// All prices and the volume use arbitrary-precision decimals so that
// thousands of simulated fills do not accumulate binary rounding error.
type Kline struct {
	OpenTimeMs  int64
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	CloseTimeMs int64
}

// ClosedOnly drops the final bar of a fetched window. Binance REST /klines
// includes the currently-forming candle as the last element, and decisions
// must never be made on partial data.
func ClosedOnly(klines []Kline) []Kline {
	if len(klines) <= 1 {
		return nil
	}
	return klines[:len(klines)-1]
}
