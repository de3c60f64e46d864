package memory

import (
	"context"
	"sort"
	"sync"

	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/storage"
)

type seriesKey struct {
	symbol   string
	interval string
}

// KlineStore is an in-memory implementation of storage.KlineStore.
type KlineStore struct {
	mu   sync.RWMutex
	data map[seriesKey]map[int64]domain.Kline // keyed by open time
}

// NewKlineStore creates a new in-memory kline archive.
func NewKlineStore() *KlineStore {
	return &KlineStore{data: make(map[seriesKey]map[int64]domain.Kline)}
}

// Compile-time interface check.
var _ storage.KlineStore = (*KlineStore)(nil)

// InsertBulk stores klines, replacing existing bars at the same open time.
func (s *KlineStore) InsertBulk(_ context.Context, symbol, interval string, klines []domain.Kline) error {
	if symbol == "" || interval == "" {
		return storage.ErrInvalidInput
	}
	if len(klines) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey{symbol, interval}
	series, ok := s.data[key]
	if !ok {
		series = make(map[int64]domain.Kline, len(klines))
		s.data[key] = series
	}
	for _, k := range klines {
		series[k.OpenTimeMs] = k
	}
	return nil
}

// GetRange retrieves klines with open time in [startMs, endMs], oldest first.
func (s *KlineStore) GetRange(_ context.Context, symbol, interval string, startMs, endMs int64) ([]domain.Kline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.data[seriesKey{symbol, interval}]
	var out []domain.Kline
	for openMs, k := range series {
		if openMs >= startMs && openMs <= endMs {
			out = append(out, k)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenTimeMs < out[j].OpenTimeMs
	})
	return out, nil
}

// LatestOpenTime returns the newest archived open time.
func (s *KlineStore) LatestOpenTime(_ context.Context, symbol, interval string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.data[seriesKey{symbol, interval}]
	if len(series) == 0 {
		return 0, storage.ErrNotFound
	}

	var latest int64
	for openMs := range series {
		if openMs > latest {
			latest = openMs
		}
	}
	return latest, nil
}
