package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/storage"
)

// TradeLogStore implements storage.TradeLogStore using PostgreSQL.
type TradeLogStore struct {
	pool *Pool
}

// NewTradeLogStore creates a new TradeLogStore.
func NewTradeLogStore(pool *Pool) *TradeLogStore {
	return &TradeLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeLogStore = (*TradeLogStore)(nil)

// Insert adds a trade log record and fills in the generated ID.
func (s *TradeLogStore) Insert(ctx context.Context, rec *domain.TradeLog) error {
	if rec == nil || rec.Symbol == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_logs (
			symbol, side, quantity, price, reason, mode, order_id, created_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING id
	`

	err := s.pool.QueryRow(ctx, query,
		rec.Symbol, string(rec.Side), rec.Quantity, rec.Price,
		rec.Reason, rec.Mode, rec.OrderID, rec.CreatedMs,
	).Scan(&rec.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade log: %w", err)
	}
	return nil
}

// GetBySymbol retrieves the most recent records for a symbol, newest first.
// A limit of 0 or less returns all records.
func (s *TradeLogStore) GetBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeLog, error) {
	query := `
		SELECT id, symbol, side, quantity, price, reason, mode, order_id, created_ms
		FROM trade_logs
		WHERE symbol = $1
		ORDER BY created_ms DESC, id DESC
	`
	args := []any{symbol}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get trade logs by symbol: %w", err)
	}
	defer rows.Close()

	return scanTradeLogs(rows)
}

// GetByTimeRange retrieves records within [startMs, endMs], oldest first.
func (s *TradeLogStore) GetByTimeRange(ctx context.Context, symbol string, startMs, endMs int64) ([]*domain.TradeLog, error) {
	query := `
		SELECT id, symbol, side, quantity, price, reason, mode, order_id, created_ms
		FROM trade_logs
		WHERE symbol = $1 AND created_ms >= $2 AND created_ms <= $3
		ORDER BY created_ms ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("get trade logs by time range: %w", err)
	}
	defer rows.Close()

	return scanTradeLogs(rows)
}

// scanTradeLogs scans multiple rows into a slice of TradeLog.
func scanTradeLogs(rows pgx.Rows) ([]*domain.TradeLog, error) {
	var logs []*domain.TradeLog

	for rows.Next() {
		var rec domain.TradeLog
		var side string

		err := rows.Scan(
			&rec.ID, &rec.Symbol, &side, &rec.Quantity, &rec.Price,
			&rec.Reason, &rec.Mode, &rec.OrderID, &rec.CreatedMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade log row: %w", err)
		}

		rec.Side = domain.Side(side)
		logs = append(logs, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade log rows: %w", err)
	}

	return logs, nil
}
