// Package main sweeps fast/slow period combinations over one bar window
// and ranks them by return, drawdown and trade count.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"binance-spot-bot/internal/backtest"
	"binance-spot-bot/internal/config"
	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/exchange"
	"binance-spot-bot/internal/notify"
	"binance-spot-bot/internal/reporting"
	"binance-spot-bot/internal/strategy"
)

func main() {
	config.LoadEnvFile(".env")
	settings, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	symbol := flag.String("symbol", settings.Symbol, "Trading symbol, e.g. ETHUSDT")
	interval := flag.String("interval", settings.Interval, "Kline interval, e.g. 1m, 1h")
	maType := flag.String("ma-type", "sma", "Moving average type: sma or ema")
	fastValues := flag.String("fast-values", "", "Comma-separated fast periods, e.g. 8,10,12")
	slowValues := flag.String("slow-values", "", "Comma-separated slow periods, e.g. 30,40,60")
	limit := flag.Int("limit", 1000, "Bar count fetched once and reused for every combination")
	initialCash := flag.String("initial-cash", "1000", "Starting quote balance (USDT)")
	sizing := flag.String("sizing", backtest.SizingFixedNotional, "Position sizing: fixed_notional or cash_fraction")
	feeRate := flag.String("fee-rate", settings.FeeRate.String(), "Taker fee rate")
	slippageBps := flag.String("slippage-bps", "0", "Slippage in basis points")
	topN := flag.Int("top", 10, "Print the best N combinations")
	output := flag.String("output", "", "Write the full ranked grid as CSV to this path")
	doNotify := flag.Bool("notify", false, "Send the best combination to Telegram")
	flag.Parse()

	logger := log.New(os.Stderr, "[grid] ", log.LstdFlags)

	fasts, err := parsePeriodList(*fastValues, "fast-values", settings.FastPeriod)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	slows, err := parsePeriodList(*slowValues, "slow-values", settings.SlowPeriod)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var clientOpts []exchange.BinanceOption
	if settings.BaseURL != "" {
		clientOpts = append(clientOpts, exchange.WithBaseURL(settings.BaseURL))
	}
	client := exchange.NewBinanceClient(settings.APIKey, settings.SecretKey, clientOpts...)

	klines, err := client.Klines(ctx, *symbol, *interval, *limit)
	if err != nil {
		logger.Fatalf("load klines: %v", err)
	}
	logger.Printf("loaded %d bars, sweeping %d combinations", len(klines), len(fasts)*len(slows))

	base := backtest.Config{
		Symbol:                 *symbol,
		Interval:               *interval,
		InitialCash:            mustDecimal(logger, "initial-cash", *initialCash),
		Sizing:                 *sizing,
		CashFraction:           settings.CashFraction,
		OrderNotional:          settings.MaxOrderNotional,
		FeeRate:                mustDecimal(logger, "fee-rate", *feeRate),
		SlippageBps:            mustDecimal(logger, "slippage-bps", *slippageBps),
		TrailingStopEnabled:    settings.TrailingStopEnabled,
		TrailingStartProfitPct: settings.TrailingStartProfitPct,
		TrailingDrawdownPct:    settings.TrailingDrawdownPct,
	}

	rows, err := runGrid(klines, base, *maType, fasts, slows)
	if err != nil {
		logger.Fatalf("grid run failed: %v", err)
	}
	if len(rows) == 0 {
		logger.Fatal("no valid fast/slow combinations (fast must be < slow)")
	}

	reporting.RankGridRows(rows)
	printTop(rows, *topN)

	if *output != "" {
		if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
			logger.Fatalf("create output dir: %v", err)
		}
		if err := os.WriteFile(*output, []byte(reporting.RenderGridCSV(rows)), 0o644); err != nil {
			logger.Fatalf("write grid csv: %v", err)
		}
		logger.Printf("grid results written to %s", *output)
	}

	if *doNotify {
		best := rows[0]
		text := fmt.Sprintf(
			"Grid search finished\n%s | %s | %s\nBest: (%d,%d) return %s%% drawdown %s%% trades %d win rate %s%%",
			*symbol, *interval, strings.ToUpper(*maType),
			best.Fast, best.Slow,
			best.ReturnPct.StringFixed(2), best.MaxDrawdownPct.StringFixed(2),
			best.Trades, best.WinRatePct.StringFixed(2))
		notifier := notify.NewTelegram(settings.TelegramToken, settings.TelegramChatID)
		notifyCtx, cancelNotify := context.WithTimeout(ctx, 15*time.Second)
		defer cancelNotify()
		if err := notifier.Send(notifyCtx, text); err != nil {
			logger.Printf("telegram notify failed: %v", err)
		}
	}
}

// runGrid backtests every valid (fast, slow) pair over the same window.
func runGrid(klines []domain.Kline, base backtest.Config, maType string, fasts, slows []int) ([]reporting.GridRow, error) {
	var rows []reporting.GridRow
	for _, fast := range fasts {
		for _, slow := range slows {
			if fast >= slow {
				continue
			}

			strat, err := buildStrategy(maType, fast, slow)
			if err != nil {
				return nil, err
			}
			cfg := base
			cfg.Strategy = strat

			engine, err := backtest.NewEngine(cfg)
			if err != nil {
				return nil, fmt.Errorf("build engine (%d,%d): %w", fast, slow, err)
			}
			result, err := engine.Run(klines)
			if err != nil {
				return nil, fmt.Errorf("run (%d,%d): %w", fast, slow, err)
			}

			stats := reporting.ComputeTradeStats(engine.Trades())
			rows = append(rows, reporting.GridRow{
				Fast:           fast,
				Slow:           slow,
				Trades:         result.Trades,
				WinRatePct:     stats.WinRatePct,
				ReturnPct:      result.ReturnPct,
				MaxDrawdownPct: result.MaxDrawdownPct,
				EndEquity:      result.EndEquity,
			})
		}
	}
	return rows, nil
}

func buildStrategy(maType string, fast, slow int) (strategy.Strategy, error) {
	switch strings.ToLower(maType) {
	case "ema":
		return strategy.FromConfig(strategy.Config{Type: strategy.TypeEMACross, FastPeriod: fast, SlowPeriod: slow})
	case "sma":
		return strategy.FromConfig(strategy.Config{Type: strategy.TypeMACross, FastPeriod: fast, SlowPeriod: slow, MAKind: strategy.KindSMA})
	default:
		return nil, fmt.Errorf("unknown ma-type %q, expected sma or ema", maType)
	}
}

func printTop(rows []reporting.GridRow, n int) {
	if n > len(rows) {
		n = len(rows)
	}
	fmt.Println("rank  fast  slow  trades  win_rate%  return%  max_dd%  end_equity")
	for i := 0; i < n; i++ {
		r := rows[i]
		fmt.Printf("%4d  %4d  %4d  %6d  %9s  %7s  %7s  %10s\n",
			i+1, r.Fast, r.Slow, r.Trades,
			r.WinRatePct.StringFixed(2), r.ReturnPct.StringFixed(2),
			r.MaxDrawdownPct.StringFixed(2), r.EndEquity.StringFixed(2))
	}
}

// parsePeriodList parses a comma-separated list of positive integers,
// keeping order and dropping duplicates. Empty input yields the fallback.
func parsePeriodList(value, name string, fallback int) ([]int, error) {
	if strings.TrimSpace(value) == "" {
		return []int{fallback}, nil
	}

	seen := make(map[int]bool)
	var items []int
	for _, token := range strings.Split(value, ",") {
		t := strings.TrimSpace(token)
		if t == "" {
			continue
		}
		v, err := strconv.Atoi(t)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("-%s expects comma-separated positive integers, got %q", name, t)
		}
		if !seen[v] {
			seen[v] = true
			items = append(items, v)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("-%s is empty", name)
	}
	return items, nil
}

func mustDecimal(logger *log.Logger, name, value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		logger.Fatalf("invalid -%s value %q", name, value)
	}
	return d
}
