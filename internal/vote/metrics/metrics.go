package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "webdir/pkg/domain-errors"
)

type Metrics struct {
	VotesCast      *prometheus.CounterVec
	VoteRejections *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VotesCast: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webdir_votes_total",
			Help: "Votes applied to the ledger, by outcome (cast, retracted, changed)",
		}, []string{"outcome"}),
		VoteRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webdir_vote_rejections_total",
			Help: "Vote calls refused, by error code",
		}, []string{"code"}),
	}
}

func (m *Metrics) IncrementVote(outcome string) {
	m.VotesCast.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementRejection(code dErrors.Code) {
	m.VoteRejections.WithLabelValues(string(code)).Inc()
}
