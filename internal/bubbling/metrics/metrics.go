package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheErrors   prometheus.Counter
	BuildDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "webdir_bubbling_cache_hits_total",
			Help: "Bubbled views served from cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "webdir_bubbling_cache_misses_total",
			Help: "Bubbled view lookups that missed the cache",
		}),
		CacheErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "webdir_bubbling_cache_errors_total",
			Help: "Cache backend errors; the view is rebuilt from the store",
		}),
		BuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "webdir_bubbling_build_duration_seconds",
			Help:    "Time to build a bubbled view from the store",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementHit()   { m.CacheHits.Inc() }
func (m *Metrics) IncrementMiss()  { m.CacheMisses.Inc() }
func (m *Metrics) IncrementError() { m.CacheErrors.Inc() }

func (m *Metrics) ObserveBuild(start time.Time) {
	m.BuildDuration.Observe(time.Since(start).Seconds())
}
