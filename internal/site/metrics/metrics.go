package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the site health state machine.
type Metrics struct {
	HealthChecks    *prometheus.CounterVec
	SitesMarkedDead prometheus.Counter
	SitesRevived    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HealthChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webdir_site_health_checks_total",
			Help: "Health check results recorded, by result",
		}, []string{"result"}),
		SitesMarkedDead: factory.NewCounter(prometheus.CounterOpts{
			Name: "webdir_sites_marked_dead_total",
			Help: "Sites moved to dead after consecutive failed checks",
		}),
		SitesRevived: factory.NewCounter(prometheus.CounterOpts{
			Name: "webdir_sites_revived_total",
			Help: "Dead sites revived by a moderator",
		}),
	}
}

func (m *Metrics) IncrementCheck(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.HealthChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementMarkedDead() {
	m.SitesMarkedDead.Inc()
}

func (m *Metrics) IncrementRevived() {
	m.SitesRevived.Inc()
}
