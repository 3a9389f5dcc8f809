package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions      *prometheus.CounterVec
	StoreErrors    prometheus.Counter
	CircuitOpen    prometheus.Gauge
	FallbackChecks prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webdir_ratelimit_decisions_total",
			Help: "Vote rate limit decisions, by result",
		}, []string{"result"}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "webdir_ratelimit_store_errors_total",
			Help: "Errors returned by the primary rate limit store",
		}),
		CircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "webdir_ratelimit_circuit_open",
			Help: "1 while the limiter serves from the in-process fallback",
		}),
		FallbackChecks: factory.NewCounter(prometheus.CounterOpts{
			Name: "webdir_ratelimit_fallback_checks_total",
			Help: "Checks answered by the in-process fallback window",
		}),
	}
}

func (m *Metrics) IncrementDecision(allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.Decisions.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.StoreErrors.Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}

func (m *Metrics) IncrementFallback() {
	m.FallbackChecks.Inc()
}
