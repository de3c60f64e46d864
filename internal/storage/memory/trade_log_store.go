// Package memory provides in-memory store implementations for tests
// and dry runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/storage"
)

// TradeLogStore is an in-memory implementation of storage.TradeLogStore.
type TradeLogStore struct {
	mu     sync.RWMutex
	nextID int64
	data   []*domain.TradeLog
}

// NewTradeLogStore creates a new in-memory trade log store.
func NewTradeLogStore() *TradeLogStore {
	return &TradeLogStore{nextID: 1}
}

// Compile-time interface check.
var _ storage.TradeLogStore = (*TradeLogStore)(nil)

// Insert adds a trade log record and assigns its ID.
func (s *TradeLogStore) Insert(_ context.Context, rec *domain.TradeLog) error {
	if rec == nil || rec.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.nextID
	s.nextID++

	copy := *rec
	s.data = append(s.data, &copy)
	return nil
}

// GetBySymbol retrieves the most recent records for a symbol, newest first.
func (s *TradeLogStore) GetBySymbol(_ context.Context, symbol string, limit int) ([]*domain.TradeLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TradeLog
	for _, rec := range s.data {
		if rec.Symbol != symbol {
			continue
		}
		copy := *rec
		out = append(out, &copy)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedMs != out[j].CreatedMs {
			return out[i].CreatedMs > out[j].CreatedMs
		}
		return out[i].ID > out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetByTimeRange retrieves records within [startMs, endMs], oldest first.
func (s *TradeLogStore) GetByTimeRange(_ context.Context, symbol string, startMs, endMs int64) ([]*domain.TradeLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TradeLog
	for _, rec := range s.data {
		if rec.Symbol != symbol || rec.CreatedMs < startMs || rec.CreatedMs > endMs {
			continue
		}
		copy := *rec
		out = append(out, &copy)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedMs != out[j].CreatedMs {
			return out[i].CreatedMs < out[j].CreatedMs
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
