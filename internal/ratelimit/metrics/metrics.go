package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AttemptsChecked *prometheus.CounterVec
	AttemptsDenied  *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AttemptsChecked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authchain_ratelimit_attempts_checked_total",
			Help: "Total number of step attempts checked against the per-state limit",
		}, []string{"module"}),
		AttemptsDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authchain_ratelimit_attempts_denied_total",
			Help: "Total number of step attempts rejected by the per-state limit",
		}, []string{"module"}),
	}
}

func (m *Metrics) IncrementChecked(module string) {
	m.AttemptsChecked.WithLabelValues(module).Inc()
}

func (m *Metrics) IncrementDenied(module string) {
	m.AttemptsDenied.WithLabelValues(module).Inc()
}
