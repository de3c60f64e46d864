// Package main replays a crossover strategy over historical klines and
// writes a report directory (summary.json, trades.csv, equity.csv,
// report.md). Bars come from Binance REST or from the ClickHouse archive.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"binance-spot-bot/internal/backtest"
	"binance-spot-bot/internal/config"
	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/exchange"
	"binance-spot-bot/internal/notify"
	"binance-spot-bot/internal/reporting"
	chstore "binance-spot-bot/internal/storage/clickhouse"
	"binance-spot-bot/internal/strategy"
)

const timeLayout = "2006-01-02 15:04"

func main() {
	config.LoadEnvFile(".env")
	settings, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	symbol := flag.String("symbol", settings.Symbol, "Trading symbol, e.g. ETHUSDT")
	interval := flag.String("interval", settings.Interval, "Kline interval, e.g. 1m, 1h")
	maType := flag.String("ma-type", "sma", "Moving average type: sma or ema")
	fast := flag.Int("fast", settings.FastPeriod, "Fast period")
	slow := flag.Int("slow", settings.SlowPeriod, "Slow period")
	limit := flag.Int("limit", 1000, "Bar count when no start/end window is given")
	start := flag.String("start", "", "Window start, UTC, format: 2006-01-02 15:04")
	end := flag.String("end", "", "Window end, UTC, format: 2006-01-02 15:04")
	initialCash := flag.String("initial-cash", "1000", "Starting quote balance (USDT)")
	sizing := flag.String("sizing", backtest.SizingFixedNotional, "Position sizing: fixed_notional or cash_fraction")
	cashFraction := flag.String("cash-fraction", settings.CashFraction.String(), "Cash fraction per BUY for cash_fraction sizing")
	orderNotional := flag.String("order-notional", settings.MaxOrderNotional.String(), "Quote spend per BUY for fixed_notional sizing")
	feeRate := flag.String("fee-rate", settings.FeeRate.String(), "Taker fee rate, e.g. 0.001")
	slippageBps := flag.String("slippage-bps", "0", "Slippage in basis points applied to fills")
	reportRoot := flag.String("report-root", "reports", "Directory that receives the report subdirectory")
	reportName := flag.String("report-name", "", "Report name; defaults to <symbol>_<interval>")
	useArchive := flag.Bool("use-archive", false, "Load bars from the ClickHouse archive instead of REST")
	clickhouseDSN := flag.String("clickhouse-dsn", settings.ClickHouseDSN, "ClickHouse connection string (with -use-archive)")
	doNotify := flag.Bool("notify", false, "Send the summary to Telegram")
	flag.Parse()

	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	strat, err := buildStrategy(*maType, *fast, *slow)
	if err != nil {
		logger.Fatalf("build strategy: %v", err)
	}

	startMs, endMs, err := parseWindow(*start, *end)
	if err != nil {
		logger.Fatalf("parse window: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	klines, err := loadKlines(ctx, loadOptions{
		settings:      settings,
		symbol:        *symbol,
		interval:      *interval,
		limit:         *limit,
		startMs:       startMs,
		endMs:         endMs,
		useArchive:    *useArchive,
		clickhouseDSN: *clickhouseDSN,
	})
	if err != nil {
		logger.Fatalf("load klines: %v", err)
	}
	logger.Printf("loaded %d bars for %s %s", len(klines), *symbol, *interval)

	cfg := backtest.Config{
		Symbol:                 *symbol,
		Interval:               *interval,
		Strategy:               strat,
		InitialCash:            mustDecimal(logger, "initial-cash", *initialCash),
		Sizing:                 *sizing,
		CashFraction:           mustDecimal(logger, "cash-fraction", *cashFraction),
		OrderNotional:          mustDecimal(logger, "order-notional", *orderNotional),
		FeeRate:                mustDecimal(logger, "fee-rate", *feeRate),
		SlippageBps:            mustDecimal(logger, "slippage-bps", *slippageBps),
		TrailingStopEnabled:    settings.TrailingStopEnabled,
		TrailingStartProfitPct: settings.TrailingStartProfitPct,
		TrailingDrawdownPct:    settings.TrailingDrawdownPct,
	}

	engine, err := backtest.NewEngine(cfg)
	if err != nil {
		logger.Fatalf("build engine: %v", err)
	}

	runStart := time.Now()
	result, err := engine.Run(klines)
	if err != nil {
		logger.Fatalf("backtest failed: %v", err)
	}
	logger.Printf("backtest finished in %v: bars=%d trades=%d", time.Since(runStart), result.Bars, result.Trades)

	trades := engine.Trades()
	stats := reporting.ComputeTradeStats(trades)

	summary := &reporting.Summary{
		Symbol:                 result.Symbol,
		Interval:               result.Interval,
		StrategyID:             strat.ID(),
		MAType:                 *maType,
		Fast:                   *fast,
		Slow:                   *slow,
		RequestedStartUTC:      *start,
		RequestedEndUTC:        *end,
		Bars:                   result.Bars,
		Trades:                 result.Trades,
		StartEquity:            result.StartEquity,
		EndEquity:              result.EndEquity,
		ReturnPct:              result.ReturnPct,
		MaxDrawdownPct:         result.MaxDrawdownPct,
		FeeRate:                cfg.FeeRate,
		SlippageBps:            cfg.SlippageBps,
		PositionSizing:         cfg.Sizing,
		CashFraction:           cfg.CashFraction,
		OrderNotional:          cfg.OrderNotional,
		TrailingStopEnabled:    cfg.TrailingStopEnabled,
		TrailingStartProfitPct: cfg.TrailingStartProfitPct,
		TrailingDrawdownPct:    cfg.TrailingDrawdownPct,
	}

	name := *reportName
	if name == "" {
		name = fmt.Sprintf("%s_%s", *symbol, *interval)
	}
	reportDir, err := reporting.WriteReportDir(*reportRoot, name, summary, trades, engine.EquityCurve())
	if err != nil {
		logger.Fatalf("write report: %v", err)
	}
	summary.TradesCSV = reportDir + "/trades.csv"
	logger.Printf("report written to %s", reportDir)

	if *doNotify {
		coveredStart, coveredEnd := coveredRange(klines)
		text := reporting.TelegramSummary(summary, stats, coveredStart, coveredEnd)
		notifier := notify.NewTelegram(settings.TelegramToken, settings.TelegramChatID)
		notifyCtx, cancelNotify := context.WithTimeout(ctx, 15*time.Second)
		defer cancelNotify()
		if err := notifier.Send(notifyCtx, text); err != nil {
			logger.Printf("telegram notify failed: %v", err)
		}
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		logger.Fatalf("marshal summary: %v", err)
	}
	fmt.Println(string(out))
}

type loadOptions struct {
	settings      config.Settings
	symbol        string
	interval      string
	limit         int
	startMs       int64
	endMs         int64
	useArchive    bool
	clickhouseDSN string
}

// loadKlines fetches the bar window from the archive or Binance REST.
func loadKlines(ctx context.Context, opts loadOptions) ([]domain.Kline, error) {
	if opts.useArchive {
		if opts.clickhouseDSN == "" {
			return nil, fmt.Errorf("-use-archive requires -clickhouse-dsn")
		}
		if opts.startMs == 0 || opts.endMs == 0 {
			return nil, fmt.Errorf("-use-archive requires -start and -end")
		}
		conn, err := chstore.NewConn(ctx, opts.clickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()
		return chstore.NewKlineStore(conn).GetRange(ctx, opts.symbol, opts.interval, opts.startMs, opts.endMs)
	}

	var clientOpts []exchange.BinanceOption
	if opts.settings.BaseURL != "" {
		clientOpts = append(clientOpts, exchange.WithBaseURL(opts.settings.BaseURL))
	}
	client := exchange.NewBinanceClient(opts.settings.APIKey, opts.settings.SecretKey, clientOpts...)

	if opts.startMs > 0 && opts.endMs > 0 {
		return exchange.LoadKlineHistory(ctx, client, opts.symbol, opts.interval, opts.startMs, opts.endMs)
	}
	return client.Klines(ctx, opts.symbol, opts.interval, opts.limit)
}

// buildStrategy maps the CLI ma-type to a strategy variant.
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

// parseWindow parses optional UTC start/end flags into epoch millis.
// Both must be given together.
func parseWindow(start, end string) (int64, int64, error) {
	if start == "" && end == "" {
		return 0, 0, nil
	}
	if start == "" || end == "" {
		return 0, 0, fmt.Errorf("-start and -end must be given together")
	}
	s, err := time.ParseInLocation(timeLayout, start, time.UTC)
	if err != nil {
		return 0, 0, fmt.Errorf("parse -start: %w", err)
	}
	e, err := time.ParseInLocation(timeLayout, end, time.UTC)
	if err != nil {
		return 0, 0, fmt.Errorf("parse -end: %w", err)
	}
	if !e.After(s) {
		return 0, 0, fmt.Errorf("-end must be after -start")
	}
	return s.UnixMilli(), e.UnixMilli(), nil
}

// coveredRange reports the close-time span of the closed bars actually used.
func coveredRange(klines []domain.Kline) (int64, int64) {
	if len(klines) == 0 {
		return 0, 0
	}
	startMs := klines[0].CloseTimeMs
	endMs := klines[len(klines)-1].CloseTimeMs
	if len(klines) >= 2 {
		endMs = klines[len(klines)-2].CloseTimeMs
	}
	return startMs, endMs
}

func mustDecimal(logger *log.Logger, name, value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		logger.Fatalf("invalid -%s value %q", name, value)
	}
	return d
}
