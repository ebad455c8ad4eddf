package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Step outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeSuspended = "suspended"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Metrics tracks chain progress: starts, per-module step outcomes,
// completions and failures by kind.
type Metrics struct {
	ChainsStarted   *prometheus.CounterVec
	ChainsCompleted *prometheus.CounterVec
	ChainFailures   *prometheus.CounterVec
	Steps           *prometheus.CounterVec
	StepDuration    *prometheus.HistogramVec
	Callbacks       *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg. Tests pass a fresh
// registry to avoid duplicate registration.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChainsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authchain_chains_started_total",
			Help: "Chains started, by initiating protocol",
		}, []string{"protocol"}),
		ChainsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authchain_chains_completed_total",
			Help: "Chains completed and handed back to the protocol",
		}, []string{"protocol"}),
		ChainFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authchain_chain_failures_total",
			Help: "Chain-level failures by error kind",
		}, []string{"kind"}),
		Steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authchain_steps_total",
			Help: "Module dispatches by outcome",
		}, []string{"module", "outcome"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authchain_step_duration_seconds",
			Help:    "Duration of a single module dispatch",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"module"}),
		Callbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authchain_callbacks_total",
			Help: "Continuation link callbacks by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementStarted(protocol string) {
	m.ChainsStarted.WithLabelValues(protocol).Inc()
}

func (m *Metrics) IncrementCompleted(protocol string) {
	m.ChainsCompleted.WithLabelValues(protocol).Inc()
}

func (m *Metrics) IncrementFailure(kind string) {
	m.ChainFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementCallback(result string) {
	m.Callbacks.WithLabelValues(result).Inc()
}

// ObserveStep records one dispatch. Call with time.Now() taken before Process.
func (m *Metrics) ObserveStep(module, outcome string, start time.Time) {
	m.Steps.WithLabelValues(module, outcome).Inc()
	m.StepDuration.WithLabelValues(module).Observe(time.Since(start).Seconds())
}
