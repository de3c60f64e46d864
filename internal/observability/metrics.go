// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Trader metrics
	TicksProcessed   prometheus.Counter
	TickErrors       prometheus.Counter
	SignalsGenerated *prometheus.CounterVec
	OrdersSubmitted  *prometheus.CounterVec
	OrdersFailed     *prometheus.CounterVec
	InPosition       prometheus.Gauge
	PositionQty      prometheus.Gauge
	LastTickUnixSec  prometheus.Gauge

	// Exchange metrics
	ExchangeCallLatency *prometheus.HistogramVec
	MarketLastPrice     prometheus.Gauge

	// Notification metrics
	NotifyFailures prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Backtest metrics
	BacktestRuns     *prometheus.CounterVec
	BacktestDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "spot_bot"
	}

	return &Metrics{
		TicksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trader",
			Name:      "ticks_processed_total",
			Help:      "Total number of trader ticks processed",
		}),
		TickErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trader",
			Name:      "tick_errors_total",
			Help:      "Total number of trader ticks that ended in error",
		}),
		SignalsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trader",
			Name:      "signals_generated_total",
			Help:      "Total number of strategy signals by side and reason",
		}, []string{"side", "reason"}),
		OrdersSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trader",
			Name:      "orders_submitted_total",
			Help:      "Total number of orders submitted by side and mode",
		}, []string{"side", "mode"}),
		OrdersFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trader",
			Name:      "orders_failed_total",
			Help:      "Total number of order submissions that failed by side",
		}, []string{"side"}),
		InPosition: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trader",
			Name:      "in_position",
			Help:      "1 when the trader holds a position, 0 otherwise",
		}),
		PositionQty: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trader",
			Name:      "position_qty",
			Help:      "Base asset quantity of the open position",
		}),
		LastTickUnixSec: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trader",
			Name:      "last_tick_timestamp_seconds",
			Help:      "Unix time of the last completed tick",
		}),

		ExchangeCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "call_duration_seconds",
			Help:      "Exchange REST call latency by endpoint",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		MarketLastPrice: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "last_price",
			Help:      "Last traded price seen on the kline stream",
		}),

		NotifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Total number of failed notification deliveries",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Database query latency by database and operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors by database and operation",
		}, []string{"database", "operation"}),

		BacktestRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by status",
		}, []string{"status"}),
		BacktestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Backtest run duration",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTick records a completed trader tick.
func RecordTick(err error) {
	DefaultMetrics.TicksProcessed.Inc()
	if err != nil {
		DefaultMetrics.TickErrors.Inc()
	}
}

// RecordSignal records a generated strategy signal.
func RecordSignal(side, reason string) {
	DefaultMetrics.SignalsGenerated.WithLabelValues(side, reason).Inc()
}

// RecordOrder records a submitted order.
func RecordOrder(side, mode string) {
	DefaultMetrics.OrdersSubmitted.WithLabelValues(side, mode).Inc()
}

// RecordOrderError records a failed order submission.
func RecordOrderError(side string) {
	DefaultMetrics.OrdersFailed.WithLabelValues(side).Inc()
}

// SetPosition updates the position gauges.
func SetPosition(inPosition bool, qty float64) {
	if inPosition {
		DefaultMetrics.InPosition.Set(1)
	} else {
		DefaultMetrics.InPosition.Set(0)
	}
	DefaultMetrics.PositionQty.Set(qty)
}

// SetLastTick updates the last tick timestamp gauge.
func SetLastTick(unixSec float64) {
	DefaultMetrics.LastTickUnixSec.Set(unixSec)
}

// RecordExchangeCall records exchange REST call latency.
func RecordExchangeCall(endpoint string, seconds float64) {
	DefaultMetrics.ExchangeCallLatency.WithLabelValues(endpoint).Observe(seconds)
}

// SetLastPrice updates the last traded price gauge.
func SetLastPrice(price float64) {
	DefaultMetrics.MarketLastPrice.Set(price)
}

// RecordNotifyFailure records a failed notification delivery.
func RecordNotifyFailure() {
	DefaultMetrics.NotifyFailures.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordBacktestRun records a backtest run.
func RecordBacktestRun(status string, durationSeconds float64) {
	DefaultMetrics.BacktestRuns.WithLabelValues(status).Inc()
	DefaultMetrics.BacktestDuration.Observe(durationSeconds)
}
