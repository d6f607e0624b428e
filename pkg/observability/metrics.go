package observability

import (
	"context"
	"time"

	"github.com/aretw0/settle/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records machine transitions and acquisition outcomes.
// It implements acquisition.Observer.
type Metrics struct {
	transitions  *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	state        *prometheus.GaugeVec
	acquisitions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	resets       *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settle_transitions_total",
				Help: "State transitions applied, by machine.",
			},
			[]string{"machine", "from", "to"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settle_transitions_rejected_total",
				Help: "Transitions refused by the transition table, by machine.",
			},
			[]string{"machine", "from", "to"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "settle_machine_state",
				Help: "1 for the current state of each machine, 0 otherwise.",
			},
			[]string{"machine", "state"},
		),
		acquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settle_acquisitions_total",
				Help: "Finished acquisition sessions, by outcome.",
			},
			[]string{"engine", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settle_acquisition_duration_seconds",
				Help:    "Time from trigger to the end of a session.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"engine"},
		),
		resets: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settle_validation_window_resets",
				Help:    "Validation windows restarted by late detector updates, per session.",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
			},
			[]string{"engine"},
		),
	}
	for _, c := range []prometheus.Collector{m.transitions, m.rejected, m.state, m.acquisitions, m.duration, m.resets} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns transition hooks feeding the transition series.
func (m *Metrics) Hooks() domain.TransitionHooks {
	return domain.TransitionHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.transitions.WithLabelValues(e.Machine, e.From, e.To).Inc()
			m.state.WithLabelValues(e.Machine, e.From).Set(0)
			m.state.WithLabelValues(e.Machine, e.To).Set(1)
		},
		OnRejected: func(_ context.Context, e *domain.TransitionEvent) {
			m.rejected.WithLabelValues(e.Machine, e.From, e.To).Inc()
		},
	}
}

// AcquisitionDone records one finished session.
func (m *Metrics) AcquisitionDone(engine, outcome string, elapsed time.Duration, windowResets int) {
	m.acquisitions.WithLabelValues(engine, outcome).Inc()
	m.duration.WithLabelValues(engine).Observe(elapsed.Seconds())
	m.resets.WithLabelValues(engine).Observe(float64(windowResets))
}
