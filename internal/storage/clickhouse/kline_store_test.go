package clickhouse

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/storage"
)

func testKline(openMs int64, close string) domain.Kline {
	c := decimal.RequireFromString(close)
	return domain.Kline{
		OpenTimeMs:  openMs,
		CloseTimeMs: openMs + 59_999,
		Open:        c,
		High:        c.Add(decimal.NewFromInt(1)),
		Low:         c.Sub(decimal.NewFromInt(1)),
		Close:       c,
		Volume:      decimal.NewFromInt(10),
	}
}

func TestKlineStore_InsertBulkAndGetRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewKlineStore(conn)

	require.NoError(t, store.InsertBulk(ctx, "ETHUSDT", "1m", []domain.Kline{
		testKline(60_000, "2000"),
		testKline(120_000, "2001"),
		testKline(180_000, "2002"),
	}))

	out, err := store.GetRange(ctx, "ETHUSDT", "1m", 60_000, 120_000)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(60_000), out[0].OpenTimeMs)
	assert.Equal(t, int64(120_000), out[1].OpenTimeMs)
	assert.True(t, out[0].Close.Equal(decimal.RequireFromString("2000")),
		"close %s != 2000", out[0].Close)
}

func TestKlineStore_InsertBulkIsIdempotent(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewKlineStore(conn)

	bar := testKline(60_000, "2000")
	require.NoError(t, store.InsertBulk(ctx, "ETHUSDT", "1m", []domain.Kline{bar}))
	require.NoError(t, store.InsertBulk(ctx, "ETHUSDT", "1m", []domain.Kline{bar}))

	out, err := store.GetRange(ctx, "ETHUSDT", "1m", 0, 120_000)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestKlineStore_SeriesAreIsolated(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewKlineStore(conn)

	require.NoError(t, store.InsertBulk(ctx, "ETHUSDT", "1m", []domain.Kline{testKline(60_000, "2000")}))
	require.NoError(t, store.InsertBulk(ctx, "ETHUSDT", "5m", []domain.Kline{testKline(300_000, "2005")}))
	require.NoError(t, store.InsertBulk(ctx, "BTCUSDT", "1m", []domain.Kline{testKline(60_000, "60000")}))

	out, err := store.GetRange(ctx, "ETHUSDT", "1m", 0, 600_000)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(60_000), out[0].OpenTimeMs)
}

func TestKlineStore_LatestOpenTime(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewKlineStore(conn)

	_, err := store.LatestOpenTime(ctx, "ETHUSDT", "1m")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.InsertBulk(ctx, "ETHUSDT", "1m", []domain.Kline{
		testKline(60_000, "2000"),
		testKline(120_000, "2001"),
	}))

	latest, err := store.LatestOpenTime(ctx, "ETHUSDT", "1m")
	require.NoError(t, err)
	assert.Equal(t, int64(120_000), latest)
}

func TestKlineStore_InsertBulkValidatesInput(t *testing.T) {
	store := NewKlineStore(nil)
	assert.ErrorIs(t, store.InsertBulk(context.Background(), "", "1m", nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.InsertBulk(context.Background(), "ETHUSDT", "", nil), storage.ErrInvalidInput)
}
