package observability

// Metrics provides counter and gauge recording primitives.
type Metrics interface {
	IncCounter(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

// Counter names emitted by the trading core.
const (
	// MetricSequenceGaps counts order-book increments rejected for gaps.
	MetricSequenceGaps = "tradecore.book.sequence_gaps"
	// MetricStaleCandles counts candle updates dropped as stale.
	MetricStaleCandles = "tradecore.candle.stale_dropped"
	// MetricReconnects counts session reconnect attempts.
	MetricReconnects = "tradecore.session.reconnects"
	// MetricUnknownReports counts order reports with unrecognized kinds.
	MetricUnknownReports = "tradecore.order.unknown_report_kinds"
)

var defaultMetrics Metrics = noopMetrics{}

// SetMetrics overrides the global metrics implementation used by the system.
func SetMetrics(metrics Metrics) {
	if metrics == nil {
		defaultMetrics = noopMetrics{}
		return
	}
	defaultMetrics = metrics
}

// Telemetry returns the current global metrics collector.
func Telemetry() Metrics {
	return defaultMetrics
}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, map[string]string) {}
func (noopMetrics) SetGauge(string, float64, map[string]string)   {}
