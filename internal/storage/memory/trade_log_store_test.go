package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-spot-bot/internal/domain"
	"binance-spot-bot/internal/storage"
)

func tradeLog(symbol string, side domain.Side, createdMs int64) *domain.TradeLog {
	return &domain.TradeLog{
		Symbol:    symbol,
		Side:      side,
		Quantity:  decimal.NewFromInt(1),
		Price:     decimal.NewFromInt(100),
		Reason:    "sma_cross_up",
		Mode:      "dry_run",
		CreatedMs: createdMs,
	}
}

func TestTradeLogStore_InsertAssignsIDs(t *testing.T) {
	s := NewTradeLogStore()
	ctx := context.Background()

	a := tradeLog("ETHUSDT", domain.SideBuy, 1000)
	b := tradeLog("ETHUSDT", domain.SideSell, 2000)
	require.NoError(t, s.Insert(ctx, a))
	require.NoError(t, s.Insert(ctx, b))

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
}

func TestTradeLogStore_InsertValidatesInput(t *testing.T) {
	s := NewTradeLogStore()
	assert.ErrorIs(t, s.Insert(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, s.Insert(context.Background(), &domain.TradeLog{}), storage.ErrInvalidInput)
}

func TestTradeLogStore_GetBySymbolNewestFirst(t *testing.T) {
	s := NewTradeLogStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, tradeLog("ETHUSDT", domain.SideBuy, 1000)))
	require.NoError(t, s.Insert(ctx, tradeLog("ETHUSDT", domain.SideSell, 3000)))
	require.NoError(t, s.Insert(ctx, tradeLog("BTCUSDT", domain.SideBuy, 2000)))

	out, err := s.GetBySymbol(ctx, "ETHUSDT", 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(3000), out[0].CreatedMs)
	assert.Equal(t, int64(1000), out[1].CreatedMs)

	limited, err := s.GetBySymbol(ctx, "ETHUSDT", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(3000), limited[0].CreatedMs)
}

func TestTradeLogStore_GetByTimeRange(t *testing.T) {
	s := NewTradeLogStore()
	ctx := context.Background()

	for _, ms := range []int64{1000, 2000, 3000, 4000} {
		require.NoError(t, s.Insert(ctx, tradeLog("ETHUSDT", domain.SideBuy, ms)))
	}

	out, err := s.GetByTimeRange(ctx, "ETHUSDT", 2000, 3000)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2000), out[0].CreatedMs)
	assert.Equal(t, int64(3000), out[1].CreatedMs)
}

func TestTradeLogStore_ReturnsCopies(t *testing.T) {
	s := NewTradeLogStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, tradeLog("ETHUSDT", domain.SideBuy, 1000)))
	out, err := s.GetBySymbol(ctx, "ETHUSDT", 0)
	require.NoError(t, err)

	out[0].Reason = "mutated"
	again, err := s.GetBySymbol(ctx, "ETHUSDT", 0)
	require.NoError(t, err)
	assert.Equal(t, "sma_cross_up", again[0].Reason)
}
