package storage

import (
	"context"

	"binance-spot-bot/internal/domain"
)

// TradeLogStore provides access to trade_logs storage.
type TradeLogStore interface {
	// Insert adds a trade log record and assigns its ID.
	Insert(ctx context.Context, rec *domain.TradeLog) error

	// GetBySymbol retrieves the most recent records for a symbol,
	// newest first, up to limit rows. limit <= 0 means no limit.
	GetBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeLog, error)

	// GetByTimeRange retrieves records for a symbol with created time
	// in [startMs, endMs], oldest first.
	GetByTimeRange(ctx context.Context, symbol string, startMs, endMs int64) ([]*domain.TradeLog, error)
}

// KlineStore provides access to the kline archive used by offline
// backtests.
type KlineStore interface {
	// InsertBulk stores klines for a symbol/interval. Re-inserting an
	// existing bar is not an error; the archive keeps one row per
	// (symbol, interval, open time).
	InsertBulk(ctx context.Context, symbol, interval string, klines []domain.Kline) error

	// GetRange retrieves klines with open time in [startMs, endMs],
	// oldest first.
	GetRange(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]domain.Kline, error)

	// LatestOpenTime returns the newest archived open time for a
	// symbol/interval, or ErrNotFound when the archive is empty.
	LatestOpenTime(ctx context.Context, symbol, interval string) (int64, error)
}
