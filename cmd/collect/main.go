// Package main archives Binance klines into ClickHouse, page by page,
// so backtests can run against an offline bar source (-use-archive).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binance-spot-bot/internal/config"
	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/exchange"
	"binance-spot-bot/internal/storage"
	chstore "binance-spot-bot/internal/storage/clickhouse"
	"binance-spot-bot/internal/storage/migrations"
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
	start := flag.String("start", "", "Archive start, UTC, format: 2006-01-02 15:04 (ignored with -resume)")
	end := flag.String("end", "", "Archive end, UTC; defaults to now")
	resume := flag.Bool("resume", false, "Continue from the newest archived bar")
	clickhouseDSN := flag.String("clickhouse-dsn", settings.ClickHouseDSN, "ClickHouse connection string")
	flag.Parse()

	logger := log.New(os.Stdout, "[collect] ", log.LstdFlags)

	if *clickhouseDSN == "" {
		logger.Fatal("-clickhouse-dsn (or CLICKHOUSE_DSN) is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, stopping...", sig)
		cancel()
	}()

	conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
	if err != nil {
		logger.Fatalf("prepare clickhouse: %v", err)
	}
	defer conn.Close()
	store := chstore.NewKlineStore(conn)

	endMs := time.Now().UnixMilli()
	if *end != "" {
		t, err := time.ParseInLocation(timeLayout, *end, time.UTC)
		if err != nil {
			logger.Fatalf("parse -end: %v", err)
		}
		endMs = t.UnixMilli()
	}

	startMs, err := resolveStart(ctx, store, *symbol, *interval, *start, *resume)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if startMs >= endMs {
		logger.Fatalf("start %d is not before end %d", startMs, endMs)
	}

	var clientOpts []exchange.BinanceOption
	if settings.BaseURL != "" {
		clientOpts = append(clientOpts, exchange.WithBaseURL(settings.BaseURL))
	}
	client := exchange.NewBinanceClient(settings.APIKey, settings.SecretKey, clientOpts...)

	total, err := archive(ctx, client, store, *symbol, *interval, startMs, endMs, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("archive failed after %d bars: %v", total, err)
	}
	logger.Printf("done: %d bars archived for %s %s", total, *symbol, *interval)
}

// resolveStart picks the archive start: the bar after the newest archived
// one with -resume, or the parsed -start flag.
func resolveStart(ctx context.Context, store *chstore.KlineStore, symbol, interval, start string, resume bool) (int64, error) {
	if resume {
		latest, err := store.LatestOpenTime(ctx, symbol, interval)
		switch {
		case err == nil:
			return latest + 1, nil
		case errors.Is(err, storage.ErrNotFound):
			return 0, fmt.Errorf("-resume found no archived bars for %s %s, use -start", symbol, interval)
		default:
			return 0, fmt.Errorf("look up newest archived bar: %w", err)
		}
	}

	if start == "" {
		return 0, fmt.Errorf("-start is required (or use -resume)")
	}
	t, err := time.ParseInLocation(timeLayout, start, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse -start: %w", err)
	}
	return t.UnixMilli(), nil
}

// archive pages klines from REST into the store until the window is
// exhausted. Each page is inserted before the next is fetched, so an
// interrupted run can continue with -resume.
func archive(ctx context.Context, client exchange.Client, store *chstore.KlineStore, symbol, interval string, startMs, endMs int64, logger *log.Logger) (int, error) {
	total := 0
	cursor := startMs

	for cursor < endMs {
		page, err := client.KlinesRange(ctx, symbol, interval, cursor, endMs, exchange.HistoryPageLimit)
		if err != nil {
			return total, fmt.Errorf("fetch page from %d: %w", cursor, err)
		}
		if len(page) == 0 {
			break
		}

		closed := closedBars(page, endMs)
		if len(closed) > 0 {
			if err := store.InsertBulk(ctx, symbol, interval, closed); err != nil {
				return total, fmt.Errorf("insert page: %w", err)
			}
			total += len(closed)
			logger.Printf("archived %d bars up to %s", total,
				time.UnixMilli(closed[len(closed)-1].OpenTimeMs).UTC().Format(timeLayout))
		}

		next := page[len(page)-1].CloseTimeMs + 1
		if next <= cursor {
			break
		}
		cursor = next

		if len(page) < exchange.HistoryPageLimit {
			break
		}
	}

	return total, nil
}

// closedBars drops any bar that is still forming at the window end.
func closedBars(page []domain.Kline, endMs int64) []domain.Kline {
	out := make([]domain.Kline, 0, len(page))
	for _, k := range page {
		if k.CloseTimeMs <= endMs {
			out = append(out, k)
		}
	}
	return out
}
