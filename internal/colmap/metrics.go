package colmap

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	saved     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receipts",
			Subsystem: "colmap",
			Name:      "hits_total",
			Help:      "Column-mapping cache hits.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receipts",
			Subsystem: "colmap",
			Name:      "misses_total",
			Help:      "Column-mapping cache misses.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receipts",
			Subsystem: "colmap",
			Name:      "evictions_total",
			Help:      "Column-mapping cache entries evicted.",
		}),
		saved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receipts",
			Subsystem: "colmap",
			Name:      "time_saved_seconds_total",
			Help:      "Estimated build time avoided by cache hits.",
		}),
	}
	if reg != nil {
		m.hits = register(reg, m.hits)
		m.misses = register(reg, m.misses)
		m.evictions = register(reg, m.evictions)
		m.saved = register(reg, m.saved)
	}
	return m
}

// register returns the already registered collector when one exists, so two
// caches sharing a registry report into the same series.
func register(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) hit(saved time.Duration) {
	if m == nil {
		return
	}
	m.hits.Inc()
	m.saved.Add(saved.Seconds())
}

func (m *metrics) miss() {
	if m == nil {
		return
	}
	m.misses.Inc()
}

func (m *metrics) evicted(n int) {
	if m == nil {
		return
	}
	m.evictions.Add(float64(n))
}
