// Package config loads trading settings from environment variables,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Trading modes.
const (
	ModeDryRun = "dry_run"
	ModeLive   = "live"
)

// confirmLiveValue must be set verbatim alongside ModeLive before any
// real order is sent.
const confirmLiveValue = "YES"

var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the bot's runtime configuration.
type Settings struct {
	APIKey    string
	SecretKey string
	BaseURL   string

	Symbol   string
	Interval string

	TradingMode        string
	ConfirmLiveTrading string

	StrategyType string
	FastPeriod   int
	SlowPeriod   int
	MAKind       string

	MaxOrderNotional decimal.Decimal
	CashFraction     decimal.Decimal
	FeeRate          decimal.Decimal
	BuyCooldown      time.Duration

	TrailingStopEnabled    bool
	TrailingStartProfitPct decimal.Decimal
	TrailingDrawdownPct    decimal.Decimal

	TelegramToken  string
	TelegramChatID string

	PostgresDSN   string
	ClickHouseDSN string
	MetricsAddr   string
}

// FromEnv reads settings from the environment, applying defaults for
// everything that is safe to default. Credentials have no defaults.
func FromEnv() (Settings, error) {
	s := Settings{
		APIKey:    os.Getenv("BINANCE_API_KEY"),
		SecretKey: os.Getenv("BINANCE_API_SECRET"),
		BaseURL:   os.Getenv("BINANCE_BASE_URL"),

		Symbol:   envOr("SYMBOL", "ETHUSDT"),
		Interval: envOr("INTERVAL", "1m"),

		TradingMode:        envOr("TRADING_MODE", ModeDryRun),
		ConfirmLiveTrading: os.Getenv("CONFIRM_LIVE_TRADING"),

		StrategyType: envOr("STRATEGY_TYPE", "ma_cross"),
		MAKind:       envOr("MA_KIND", "sma"),

		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),

		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickHouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		MetricsAddr:   envOr("METRICS_ADDR", ":9090"),
	}

	var err error
	if s.FastPeriod, err = envInt("FAST_PERIOD", 12); err != nil {
		return s, err
	}
	if s.SlowPeriod, err = envInt("SLOW_PERIOD", 26); err != nil {
		return s, err
	}
	if s.MaxOrderNotional, err = envDecimal("MAX_ORDER_NOTIONAL", "100"); err != nil {
		return s, err
	}
	if s.CashFraction, err = envDecimal("CASH_FRACTION", "0.5"); err != nil {
		return s, err
	}
	if s.FeeRate, err = envDecimal("FEE_RATE", "0.001"); err != nil {
		return s, err
	}
	if s.BuyCooldown, err = envDuration("BUY_COOLDOWN", 5*time.Minute); err != nil {
		return s, err
	}
	if s.TrailingStopEnabled, err = envBool("TRAILING_STOP_ENABLED", false); err != nil {
		return s, err
	}
	if s.TrailingStartProfitPct, err = envDecimal("TRAILING_START_PROFIT_PCT", "3"); err != nil {
		return s, err
	}
	if s.TrailingDrawdownPct, err = envDecimal("TRAILING_DRAWDOWN_PCT", "1"); err != nil {
		return s, err
	}

	return s, s.Validate()
}

// Validate checks internal consistency. It does not require credentials;
// dry-run needs none.
func (s Settings) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: symbol required", ErrInvalidSettings)
	}
	if s.Interval == "" {
		return fmt.Errorf("%w: interval required", ErrInvalidSettings)
	}
	if s.TradingMode != ModeDryRun && s.TradingMode != ModeLive {
		return fmt.Errorf("%w: trading mode must be %s or %s, got %q",
			ErrInvalidSettings, ModeDryRun, ModeLive, s.TradingMode)
	}
	if s.MaxOrderNotional.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: max order notional must be positive", ErrInvalidSettings)
	}
	if s.CashFraction.LessThanOrEqual(decimal.Zero) || s.CashFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: cash fraction must be in (0, 1]", ErrInvalidSettings)
	}
	if s.LiveTradingEnabled() && (s.APIKey == "" || s.SecretKey == "") {
		return fmt.Errorf("%w: live trading requires API credentials", ErrInvalidSettings)
	}
	return nil
}

// LiveTradingEnabled reports whether real orders may be sent. Live mode
// alone is not enough; the confirmation variable must also be set.
func (s Settings) LiveTradingEnabled() bool {
	return s.TradingMode == ModeLive && s.ConfirmLiveTrading == confirmLiveValue
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment
// without overriding variables that are already set. A missing file is
// not an error.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidSettings, key, v)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidSettings, key, v)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalidSettings, key, v)
	}
	return d, nil
}

func envDecimal(key, def string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q is not a decimal", ErrInvalidSettings, key, v)
	}
	return d, nil
}
