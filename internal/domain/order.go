package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidOrder is returned when an OrderRequest fails validation.
var ErrInvalidOrder = errors.New("invalid order request")

// OrderRequest is a MARKET order to submit or simulate. Exactly one of
// Quantity (base asset, used for SELL) and QuoteOrderQty (quote notional,
// used for BUY) must be set.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Quantity      *decimal.Decimal
	QuoteOrderQty *decimal.Decimal
}

// Validate checks the quantity-XOR-notional invariant.
func (o *OrderRequest) Validate() error {
	if o.Symbol == "" {
		return ErrInvalidOrder
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return ErrInvalidOrder
	}
	if (o.Quantity == nil) == (o.QuoteOrderQty == nil) {
		return ErrInvalidOrder
	}
	return nil
}

// SymbolTradingRules holds the exchange filters a trader must respect when
// sizing orders. Derived once at startup from exchange metadata, read-only
// afterwards.
type SymbolTradingRules struct {
	BaseAsset   string
	QuoteAsset  string
	StepSize    decimal.Decimal
	MinNotional decimal.Decimal
}
