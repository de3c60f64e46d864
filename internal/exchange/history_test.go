package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-spot-bot/internal/domain"
)

// pagingClient serves canned kline pages keyed by the requested start.
type pagingClient struct {
	pages map[int64][]domain.Kline
	calls int
}

func (p *pagingClient) KlinesRange(_ context.Context, _, _ string, startMs, _ int64, _ int) ([]domain.Kline, error) {
	p.calls++
	return p.pages[startMs], nil
}

func (p *pagingClient) Klines(context.Context, string, string, int) ([]domain.Kline, error) {
	return nil, nil
}
func (p *pagingClient) SymbolRules(context.Context, string) (domain.SymbolTradingRules, error) {
	return domain.SymbolTradingRules{}, nil
}
func (p *pagingClient) AccountBalances(context.Context) (map[string]decimal.Decimal, error) {
	return nil, nil
}
func (p *pagingClient) NewMarketOrder(context.Context, domain.OrderRequest) (*OrderResult, error) {
	return nil, nil
}
func (p *pagingClient) Ping(context.Context) error                  { return nil }
func (p *pagingClient) ServerTimeMs(context.Context) (int64, error) { return 0, nil }

func barAt(openMs int64) domain.Kline {
	return domain.Kline{
		OpenTimeMs:  openMs,
		CloseTimeMs: openMs + 59_999,
		Close:       decimal.NewFromInt(1),
	}
}

func fullPage(fromMs int64) []domain.Kline {
	page := make([]domain.Kline, HistoryPageLimit)
	for i := range page {
		page[i] = barAt(fromMs + int64(i)*60_000)
	}
	return page
}

func TestLoadKlineHistory_PagesUntilShortPage(t *testing.T) {
	first := fullPage(0)
	resume := first[len(first)-1].CloseTimeMs + 1
	second := []domain.Kline{barAt(60_000_000), barAt(60_060_000)}

	client := &pagingClient{pages: map[int64][]domain.Kline{
		0:      first,
		resume: second,
	}}

	end := int64(100_000_000)
	out, err := LoadKlineHistory(context.Background(), client, "ETHUSDT", "1m", 0, end)
	require.NoError(t, err)

	assert.Equal(t, 2, client.calls)
	require.Len(t, out, HistoryPageLimit+2)
	for i := 1; i < len(out); i++ {
		assert.Greater(t, out[i].OpenTimeMs, out[i-1].OpenTimeMs)
	}
}

func TestLoadKlineHistory_DropsOverlappingRows(t *testing.T) {
	first := fullPage(0)
	resume := first[len(first)-1].CloseTimeMs + 1
	// Second page re-serves the last bar of the first page.
	second := []domain.Kline{first[len(first)-1], barAt(60_000_000)}

	client := &pagingClient{pages: map[int64][]domain.Kline{
		0:      first,
		resume: second,
	}}

	out, err := LoadKlineHistory(context.Background(), client, "ETHUSDT", "1m", 0, 100_000_000)
	require.NoError(t, err)
	assert.Len(t, out, HistoryPageLimit+1)
}

func TestLoadKlineHistory_EmptyPageStops(t *testing.T) {
	client := &pagingClient{pages: map[int64][]domain.Kline{}}
	out, err := LoadKlineHistory(context.Background(), client, "ETHUSDT", "1m", 0, 1000)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, client.calls)
}

func TestLoadKlineHistory_InvalidRange(t *testing.T) {
	client := &pagingClient{}
	_, err := LoadKlineHistory(context.Background(), client, "ETHUSDT", "1m", 5, 5)
	assert.Error(t, err)
	assert.Zero(t, client.calls)
}
