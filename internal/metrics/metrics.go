package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/ekyc/internal/challenge"
	"github.com/example/ekyc/internal/session"
)

// Metrics exposes counters for the verification pipeline. It implements
// both the workflow and challenge observer interfaces.
type Metrics struct {
	SessionsCreated   prometheus.Counter
	Transitions       *prometheus.CounterVec
	Dispositions      *prometheus.CounterVec
	ChallengeOutcomes *prometheus.CounterVec
}

// New registers the pipeline counters with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ekyc_sessions_created_total",
			Help: "Total number of verification sessions created",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ekyc_session_transitions_total",
			Help: "Total number of session status transitions by target status",
		}, []string{"status"}),
		Dispositions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ekyc_session_dispositions_total",
			Help: "Total number of terminal session dispositions by kind",
		}, []string{"status"}),
		ChallengeOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ekyc_challenge_outcomes_total",
			Help: "Total number of finished active-liveness challenge runs by outcome",
		}, []string{"outcome"}),
	}
}

// SessionCreated counts a new session.
func (m *Metrics) SessionCreated() {
	m.SessionsCreated.Inc()
}

// Transition counts a status transition.
func (m *Metrics) Transition(to session.Status) {
	m.Transitions.WithLabelValues(string(to)).Inc()
}

// Disposition counts a terminal disposition.
func (m *Metrics) Disposition(status session.Status) {
	m.Dispositions.WithLabelValues(string(status)).Inc()
}

// ChallengeOutcome counts a finished challenge run.
func (m *Metrics) ChallengeOutcome(outcome challenge.Outcome) {
	m.ChallengeOutcomes.WithLabelValues(string(outcome)).Inc()
}
