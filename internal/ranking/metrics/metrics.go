package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks rank recalculation runs.
type Metrics struct {
	Runs              *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	RankedMemberships prometheus.Counter
	LastPassFailures  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webdir_rank_runs_total",
			Help: "Category rank recalculations, by result (success, failure, skipped)",
		}, []string{"result"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "webdir_rank_run_duration_seconds",
			Help:    "Duration of one category's rank recalculation",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		RankedMemberships: factory.NewCounter(prometheus.CounterOpts{
			Name: "webdir_rank_memberships_ranked_total",
			Help: "Memberships assigned a score and rank",
		}),
		LastPassFailures: factory.NewGauge(prometheus.GaugeOpts{
			Name: "webdir_rank_last_pass_failures",
			Help: "Categories that failed in the most recent full pass",
		}),
	}
}

func (m *Metrics) ObserveRun(result string, ranked int, start time.Time) {
	m.Runs.WithLabelValues(result).Inc()
	if result == "success" {
		m.RunDuration.Observe(time.Since(start).Seconds())
		m.RankedMemberships.Add(float64(ranked))
	}
}

func (m *Metrics) SetLastPassFailures(n int) {
	m.LastPassFailures.Set(float64(n))
}
