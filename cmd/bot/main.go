// Package main runs the live/paper trading loop for a single spot symbol:
// poll closed klines, evaluate the crossover strategy, place market orders
// (or log them in dry-run), notify Telegram and expose Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binance-spot-bot/internal/config"
	"binance-spot-bot/internal/exchange"
	"binance-spot-bot/internal/notify"
	"binance-spot-bot/internal/observability"
	"binance-spot-bot/internal/storage/memory"
	"binance-spot-bot/internal/storage/migrations"
	pgstore "binance-spot-bot/internal/storage/postgres"
	"binance-spot-bot/internal/strategy"
	"binance-spot-bot/internal/trader"
)

func main() {
	envFile := flag.String("env-file", ".env", "Env file with configuration (optional)")
	sizing := flag.String("sizing", trader.SizingFixedNotional, "Position sizing: fixed_notional or cash_fraction")
	skipHealthCheck := flag.Bool("skip-health-check", false, "Skip the exchange ping/server-time check on startup")
	streamPrices := flag.Bool("stream", true, "Stream live kline updates over WebSocket for the last-price metric")
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags)

	config.LoadEnvFile(*envFile)
	settings, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("load settings: %v", err)
	}
	if err := settings.Validate(); err != nil {
		logger.Fatalf("invalid settings: %v", err)
	}

	mode := config.ModeDryRun
	if settings.LiveTradingEnabled() {
		mode = config.ModeLive
	} else if settings.TradingMode == config.ModeLive {
		logger.Fatal("TRADING_MODE=live requires CONFIRM_LIVE_TRADING=YES")
	}

	strat, err := strategy.FromConfig(strategy.Config{
		Type:       settings.StrategyType,
		FastPeriod: settings.FastPeriod,
		SlowPeriod: settings.SlowPeriod,
		MAKind:     strategy.MAKind(settings.MAKind),
	})
	if err != nil {
		logger.Fatalf("build strategy: %v", err)
	}

	printSettings(logger, settings, mode, *sizing, strat.ID())

	var clientOpts []exchange.BinanceOption
	if settings.BaseURL != "" {
		clientOpts = append(clientOpts, exchange.WithBaseURL(settings.BaseURL))
	}
	client := exchange.NewBinanceClient(settings.APIKey, settings.SecretKey, clientOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !*skipHealthCheck {
		if err := healthCheck(ctx, client, logger); err != nil {
			logger.Fatalf("exchange health check: %v", err)
		}
	}

	notifier := notify.NewTelegram(settings.TelegramToken, settings.TelegramChatID)
	if !notifier.Enabled() {
		logger.Println("telegram notifications disabled (no token/chat id)")
	}

	var tradeLogs trader.TradeLogRecorder = memory.NewTradeLogStore()
	if settings.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, settings.PostgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("apply postgres migrations: %v", err)
		}
		tradeLogs = pgstore.NewTradeLogStore(pool)
		logger.Println("trade logs persisted to postgres")
	} else {
		logger.Println("trade logs kept in memory (POSTGRES_DSN not set)")
	}

	bot, err := trader.New(trader.Options{
		Settings:  settings,
		Client:    client,
		Strategy:  strat,
		Notifier:  notifier,
		TradeLogs: tradeLogs,
		Sizing:    *sizing,
	})
	if err != nil {
		logger.Fatalf("build trader: %v", err)
	}

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	go startHTTPServer(settings.MetricsAddr, logger)

	if *streamPrices {
		go runPriceStream(ctx, logger, settings.Symbol, settings.Interval)
	}

	err = bot.Run(ctx)
	done <- err

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("trader error: %v", err)
	}
	logger.Println("shutdown complete")
}

// healthCheck verifies exchange connectivity and logs local clock skew.
func healthCheck(ctx context.Context, client *exchange.BinanceClient, logger *log.Logger) error {
	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := client.Ping(checkCtx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	serverMs, err := client.ServerTimeMs(checkCtx)
	if err != nil {
		return fmt.Errorf("server time: %w", err)
	}
	skew := time.Now().UnixMilli() - serverMs
	logger.Printf("exchange reachable, clock skew %dms", skew)
	return nil
}

// printSettings logs the effective configuration with secrets redacted.
func printSettings(logger *log.Logger, s config.Settings, mode, sizing, strategyID string) {
	logger.Printf("symbol=%s interval=%s mode=%s strategy=%s sizing=%s", s.Symbol, s.Interval, mode, strategyID, sizing)
	logger.Printf("max_order_notional=%s cash_fraction=%s fee_rate=%s buy_cooldown=%s",
		s.MaxOrderNotional, s.CashFraction, s.FeeRate, s.BuyCooldown)
	if s.TrailingStopEnabled {
		logger.Printf("trailing stop: start=%s%% dd=%s%%", s.TrailingStartProfitPct, s.TrailingDrawdownPct)
	} else {
		logger.Println("trailing stop: disabled")
	}
	logger.Printf("api_key=%s telegram=%v postgres=%v metrics=%s",
		redact(s.APIKey), s.TelegramToken != "", s.PostgresDSN != "", s.MetricsAddr)
}

func redact(secret string) string {
	if len(secret) <= 4 {
		if secret == "" {
			return "(unset)"
		}
		return "****"
	}
	return secret[:4] + "****"
}

// startHTTPServer serves health and Prometheus metrics endpoints.
func startHTTPServer(addr string, logger *log.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	logger.Printf("starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
	}
}

// runPriceStream feeds the last-price gauge from the public kline stream.
// Stream failures never affect the trading loop.
func runPriceStream(ctx context.Context, logger *log.Logger, symbol, interval string) {
	stream, err := exchange.NewKlineStream(ctx, symbol, interval, nil)
	if err != nil {
		logger.Printf("kline stream unavailable: %v", err)
		return
	}
	defer stream.Close()

	logger.Printf("streaming %s %s klines for metrics", symbol, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			observability.SetLastPrice(ev.Kline.Close.InexactFloat64())
			if ev.Final {
				logger.Printf("bar closed %s close=%s", symbol, ev.Kline.Close.String())
			}
		}
	}
}
