// Package metrics exposes Prometheus collectors for the seckill service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rl1809/seckill/internal/core/domain"
)

const namespace = "seckill"

type Metrics struct {
	purchases        *prometheus.CounterVec
	purchaseDuration *prometheus.HistogramVec
	exposures        *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	events           *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_results_total",
			Help:      "Purchase attempts by resulting state.",
		}, []string{"path", "state"}),
		purchaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "purchase_duration_seconds",
			Help:      "Time spent executing a purchase attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"path"}),
		exposures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exposures_total",
			Help:      "Token requests by exposure state.",
		}, []string{"state"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by kind and outcome (hit, miss, error).",
		}, []string{"kind", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_events_total",
			Help:      "Purchase events by outcome (published, failed, dropped).",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.purchases, m.purchaseDuration, m.exposures, m.cacheLookups, m.events)
	return m
}

func (m *Metrics) ObservePurchase(path string, state domain.PurchaseState, elapsed time.Duration) {
	m.purchases.WithLabelValues(path, state.String()).Inc()
	m.purchaseDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveExposure(state domain.ExposureState) {
	m.exposures.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) CacheLookup(kind, outcome string) {
	m.cacheLookups.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) PurchaseEvent(outcome string) {
	m.events.WithLabelValues(outcome).Inc()
}

// Purchases is exported for tests.
func (m *Metrics) Purchases() *prometheus.CounterVec { return m.purchases }

func (m *Metrics) CacheLookups() *prometheus.CounterVec { return m.cacheLookups }

func (m *Metrics) Events() *prometheus.CounterVec { return m.events }
