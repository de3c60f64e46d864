package clickhouse

import (
	"context"
	"fmt"

	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/storage"
)

// KlineStore implements storage.KlineStore using ClickHouse.
type KlineStore struct {
	conn *Conn
}

// NewKlineStore creates a new KlineStore.
func NewKlineStore(conn *Conn) *KlineStore {
	return &KlineStore{conn: conn}
}

// Compile-time interface check.
var _ storage.KlineStore = (*KlineStore)(nil)

// InsertBulk adds candles in one batch. Re-inserting a bar with the same
// (symbol, interval, open_time_ms) key is safe: the ReplacingMergeTree
// engine collapses duplicates at merge time.
func (s *KlineStore) InsertBulk(ctx context.Context, symbol, interval string, klines []domain.Kline) error {
	if symbol == "" || interval == "" {
		return storage.ErrInvalidInput
	}
	if len(klines) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO klines (
			symbol, interval, open_time_ms, close_time_ms,
			open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, k := range klines {
		err = batch.Append(
			symbol, interval, uint64(k.OpenTimeMs), uint64(k.CloseTimeMs),
			k.Open, k.High, k.Low, k.Close, k.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetRange retrieves candles with open time in [startMs, endMs], oldest first.
// FINAL forces ReplacingMergeTree deduplication for not-yet-merged parts.
func (s *KlineStore) GetRange(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]domain.Kline, error) {
	query := `
		SELECT open_time_ms, close_time_ms, open, high, low, close, volume
		FROM klines FINAL
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ? AND open_time_ms <= ?
		ORDER BY open_time_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, interval, uint64(startMs), uint64(endMs))
	if err != nil {
		return nil, fmt.Errorf("query klines by range: %w", err)
	}
	defer rows.Close()

	var out []domain.Kline
	for rows.Next() {
		var k domain.Kline
		var openMs, closeMs uint64

		err := rows.Scan(&openMs, &closeMs, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume)
		if err != nil {
			return nil, fmt.Errorf("scan kline row: %w", err)
		}

		k.OpenTimeMs = int64(openMs)
		k.CloseTimeMs = int64(closeMs)
		out = append(out, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kline rows: %w", err)
	}

	return out, nil
}

// LatestOpenTime returns the newest archived open time for a series.
// Returns storage.ErrNotFound when the series has no rows.
func (s *KlineStore) LatestOpenTime(ctx context.Context, symbol, interval string) (int64, error) {
	query := `
		SELECT max(open_time_ms), count(*)
		FROM klines
		WHERE symbol = ? AND interval = ?
	`

	var latest, count uint64
	if err := s.conn.QueryRow(ctx, query, symbol, interval).Scan(&latest, &count); err != nil {
		return 0, fmt.Errorf("query latest open time: %w", err)
	}
	if count == 0 {
		return 0, storage.ErrNotFound
	}
	return int64(latest), nil
}
