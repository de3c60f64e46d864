package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/storage"
)

func createTestTradeLog(symbol string, side domain.Side, createdMs int64) *domain.TradeLog {
	return &domain.TradeLog{
		Symbol:    symbol,
		Side:      side,
		Quantity:  decimal.RequireFromString("0.05"),
		Price:     decimal.RequireFromString("2000.50"),
		Reason:    "sma_cross_up",
		Mode:      "dry_run",
		OrderID:   "",
		CreatedMs: createdMs,
	}
}

func TestTradeLogStore_InsertAndGetBySymbol(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeLogStore(pool)

	rec := createTestTradeLog("ETHUSDT", domain.SideBuy, 1000)
	require.NoError(t, store.Insert(ctx, rec))
	assert.Greater(t, rec.ID, int64(0))

	logs, err := store.GetBySymbol(ctx, "ETHUSDT", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	got := logs[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "ETHUSDT", got.Symbol)
	assert.Equal(t, domain.SideBuy, got.Side)
	assert.True(t, got.Quantity.Equal(rec.Quantity), "quantity %s != %s", got.Quantity, rec.Quantity)
	assert.True(t, got.Price.Equal(rec.Price), "price %s != %s", got.Price, rec.Price)
	assert.Equal(t, "sma_cross_up", got.Reason)
	assert.Equal(t, "dry_run", got.Mode)
	assert.Equal(t, int64(1000), got.CreatedMs)
}

func TestTradeLogStore_InsertValidatesInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeLogStore(pool)
	assert.ErrorIs(t, store.Insert(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(context.Background(), &domain.TradeLog{}), storage.ErrInvalidInput)
}

func TestTradeLogStore_GetBySymbolNewestFirstWithLimit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeLogStore(pool)

	require.NoError(t, store.Insert(ctx, createTestTradeLog("ETHUSDT", domain.SideBuy, 1000)))
	require.NoError(t, store.Insert(ctx, createTestTradeLog("ETHUSDT", domain.SideSell, 3000)))
	require.NoError(t, store.Insert(ctx, createTestTradeLog("ETHUSDT", domain.SideBuy, 2000)))
	require.NoError(t, store.Insert(ctx, createTestTradeLog("BTCUSDT", domain.SideBuy, 4000)))

	logs, err := store.GetBySymbol(ctx, "ETHUSDT", 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, int64(3000), logs[0].CreatedMs)
	assert.Equal(t, int64(2000), logs[1].CreatedMs)
	assert.Equal(t, int64(1000), logs[2].CreatedMs)

	limited, err := store.GetBySymbol(ctx, "ETHUSDT", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, int64(3000), limited[0].CreatedMs)
	assert.Equal(t, int64(2000), limited[1].CreatedMs)
}

func TestTradeLogStore_GetByTimeRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeLogStore(pool)

	for _, ms := range []int64{1000, 2000, 3000, 4000} {
		require.NoError(t, store.Insert(ctx, createTestTradeLog("ETHUSDT", domain.SideBuy, ms)))
	}

	logs, err := store.GetByTimeRange(ctx, "ETHUSDT", 2000, 3000)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, int64(2000), logs[0].CreatedMs)
	assert.Equal(t, int64(3000), logs[1].CreatedMs)
}

func TestTradeLogStore_GetBySymbolUnknownIsEmpty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeLogStore(pool)
	logs, err := store.GetBySymbol(context.Background(), "DOGEUSDT", 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
