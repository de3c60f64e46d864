package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"binance-spot-bot/internal/domain"
)

// timeNow is swapped in tests for deterministic directory names.
var timeNow = time.Now

// WriteReportDir writes one run's artifacts into a timestamped directory
// under root and returns its path. The directory name is
// <UTC stamp>_<sanitized name>.
func WriteReportDir(root, name string, s *Summary, trades []domain.Trade, equity []domain.EquityPoint) (string, error) {
	dir := filepath.Join(root, fmt.Sprintf("%s_%s", nowStamp(), safeName(name)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	stats := ComputeTradeStats(trades)

	summaryJSON, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.json"), summaryJSON, 0o644); err != nil {
		return "", fmt.Errorf("write summary.json: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "trades.csv"), []byte(RenderTradesCSV(trades)), 0o644); err != nil {
		return "", fmt.Errorf("write trades.csv: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "equity.csv"), []byte(RenderEquityCSV(equity)), 0o644); err != nil {
		return "", fmt.Errorf("write equity.csv: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(RenderMarkdown(s, stats)), 0o644); err != nil {
		return "", fmt.Errorf("write report.md: %w", err)
	}

	return dir, nil
}

func nowStamp() string {
	return timeNow().UTC().Format("20060102T150405Z")
}

// safeName keeps alphanumerics, dash, underscore and dot; everything else
// becomes an underscore.
func safeName(value string) string {
	var sb strings.Builder
	for _, ch := range strings.TrimSpace(value) {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			sb.WriteRune(ch)
		case ch == '-' || ch == '_' || ch == '.':
			sb.WriteRune(ch)
		default:
			sb.WriteRune('_')
		}
	}
	out := strings.Trim(sb.String(), "_")
	if out == "" {
		return "run"
	}
	return out
}
