package strategy

import "errors"

// Factory errors.
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
	ErrInvalidParams       = errors.New("invalid strategy params")
)

// Strategy type identifiers accepted by FromConfig.
const (
	TypeEMACross = "ema_cross"
	TypeMACross  = "ma_cross"
)

// Config selects a strategy variant and its parameters. Adding a new
// crossover variant means adding one case to FromConfig.
type Config struct {
	Type       string
	FastPeriod int
	SlowPeriod int
	MAKind     MAKind // ma_cross only; defaults to sma
}

// FromConfig creates a Strategy from Config, validating parameters per
// variant.
func FromConfig(cfg Config) (Strategy, error) {
	switch cfg.Type {
	case TypeEMACross:
		return NewEMACross(cfg.FastPeriod, cfg.SlowPeriod)
	case TypeMACross:
		kind := cfg.MAKind
		if kind == "" {
			kind = KindSMA
		}
		return NewMACross(cfg.FastPeriod, cfg.SlowPeriod, kind)
	default:
		return nil, ErrUnknownStrategyType
	}
}
