// Package indicator provides moving-average primitives over decimal price
// series.
package indicator

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Indicator errors.
var (
	ErrInvalidPeriod = errors.New("period must be > 0")
	ErrNotEnoughData = errors.New("not enough values for period")
)

var one = decimal.NewFromInt(1)

// SMA returns the arithmetic mean of the last period elements of values.
func SMA(values []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, ErrInvalidPeriod
	}
	if len(values) < period {
		return decimal.Zero, ErrNotEnoughData
	}

	sum := decimal.Zero
	for _, v := range values[len(values)-period:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), nil
}

// EMASeries returns the exponential moving average of values, one output per
// input. The series is seeded with the first value and uses the standard
// smoothing weight k = 2/(period+1):
//
//	ema[i] = values[i]*k + ema[i-1]*(1-k)
func EMASeries(values []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) == 0 {
		return nil, nil
	}

	k := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))
	oneMinusK := one.Sub(k)

	ema := make([]decimal.Decimal, len(values))
	ema[0] = values[0]
	for i := 1; i < len(values); i++ {
		ema[i] = values[i].Mul(k).Add(ema[i-1].Mul(oneMinusK))
	}
	return ema, nil
}
