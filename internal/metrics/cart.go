package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records cart transitions and persistence writes.
// A nil *CartMetrics is valid and records nothing.
type CartMetrics struct {
	operations    *prometheus.CounterVec
	items         prometheus.Gauge
	writes        *prometheus.CounterVec
	writeDuration prometheus.Histogram
}

func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return nil
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Committed cart transitions by operation.",
	}, []string{"op"})
	items := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cart_item_count",
		Help: "Current sum of quantities in the cart.",
	})
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_persist_writes_total",
		Help: "Persistence writes by result.",
	}, []string{"result"})
	writeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_persist_write_duration_seconds",
		Help:    "Duration of persistence writes in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(operations, items, writes, writeDuration)

	return &CartMetrics{
		operations:    operations,
		items:         items,
		writes:        writes,
		writeDuration: writeDuration,
	}
}

func (m *CartMetrics) ObserveOperation(op string, count int) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op).Inc()
	m.items.Set(float64(count))
}

// Write results.
const (
	WriteOK    = "ok"
	WriteStale = "stale"
	WriteError = "error"
)

func (m *CartMetrics) ObserveWrite(duration time.Duration, result string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(result).Inc()
	m.writeDuration.Observe(duration.Seconds())
}
