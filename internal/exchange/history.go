package exchange

import (
	"context"
	"fmt"

	"binance-spot-bot/internal/domain"
)

// HistoryPageLimit is the maximum rows per klines request.
const HistoryPageLimit = 1000

// LoadKlineHistory pages through KlinesRange until the range [startMs,
// endMs] is exhausted, returning klines oldest first with no duplicates.
// Each page resumes from the close time of the previous page's last bar.
func LoadKlineHistory(ctx context.Context, client Client, symbol, interval string, startMs, endMs int64) ([]domain.Kline, error) {
	if startMs >= endMs {
		return nil, fmt.Errorf("invalid history range: start %d >= end %d", startMs, endMs)
	}

	var out []domain.Kline
	cursor := startMs
	for cursor < endMs {
		page, err := client.KlinesRange(ctx, symbol, interval, cursor, endMs, HistoryPageLimit)
		if err != nil {
			return nil, fmt.Errorf("load klines page from %d: %w", cursor, err)
		}
		if len(page) == 0 {
			break
		}

		for _, k := range page {
			if len(out) > 0 && k.OpenTimeMs <= out[len(out)-1].OpenTimeMs {
				continue
			}
			out = append(out, k)
		}

		last := page[len(page)-1]
		next := last.CloseTimeMs + 1
		if next <= cursor {
			break
		}
		cursor = next

		if len(page) < HistoryPageLimit {
			break
		}
	}
	return out, nil
}
