package engine

import (
	"errors"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	documents *prometheus.CounterVec
	items     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipts",
			Name:      "documents_total",
			Help:      "Documents processed, by extraction path.",
		}, []string{"path"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipts",
			Name:      "items_classified_total",
			Help:      "Line items classified, by category source.",
		}, []string{"source"}),
	}
	if reg != nil {
		m.documents = register(reg, m.documents)
		m.items = register(reg, m.items)
	}
	return m
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) observe(r *model.Receipt) {
	m.documents.WithLabelValues(r.ExtractionPath).Inc()
	for i := range r.Items {
		m.items.WithLabelValues(r.Items[i].CategorySource).Inc()
	}
}
