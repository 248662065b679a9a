package refresh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels recorded by Metrics.Attempts
const (
	OutcomeSuccess    = "success"
	OutcomeTransient  = "transient"
	OutcomeRejected   = "rejected"
	OutcomeMalformed  = "malformed"
	OutcomeNoToken    = "no_token"
	OutcomeExhausted  = "exhausted"
	OutcomeSuperseded = "superseded" // a login or logout replaced the session mid-refresh
)

// Metrics counts refresh activity. A nil *Metrics records nothing.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Joined   prometheus.Counter
}

// NewMetrics creates the refresh counters and registers them with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brew",
			Subsystem: "session",
			Name:      "refresh_attempts_total",
			Help:      "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
		Joined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "brew",
			Subsystem: "session",
			Name:      "refresh_joined_total",
			Help:      "Callers that joined a refresh already in flight instead of starting one.",
		}),
	}
}

func (m *Metrics) observe(outcome string) {
	if m != nil {
		m.Attempts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) joined() {
	if m != nil {
		m.Joined.Inc()
	}
}
