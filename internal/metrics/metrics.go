package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of one component. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	RequestsTotal          *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec
	RenewalsTotal          *prometheus.CounterVec
	TransitionsTotal       *prometheus.CounterVec
	IdempotentReplaysTotal prometheus.Counter
}

func New(component string, reg prometheus.Registerer) *Metrics {
	labels := prometheus.Labels{"component": component}
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "banksession_requests_total",
				Help:        "Total number of backend requests.",
				ConstLabels: labels,
			},
			[]string{"method", "route", "status"},
		),
		RequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "banksession_request_duration_seconds",
				Help:        "Duration of backend requests.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"method", "route"},
		),
		RenewalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "banksession_token_renewals_total",
				Help:        "Access token renewals by outcome.",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "banksession_session_transitions_total",
				Help:        "Session state transitions by target state.",
				ConstLabels: labels,
			},
			[]string{"state"},
		),
		IdempotentReplaysTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "banksession_idempotent_replays_total",
				Help:        "Mutating requests answered from the idempotency cache.",
				ConstLabels: labels,
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.RequestsTotal,
			m.RequestDurationSeconds,
			m.RenewalsTotal,
			m.TransitionsTotal,
			m.IdempotentReplaysTotal,
		)
	}
	return m
}

// ObserveRequest records one backend call. Status 0 means no response arrived.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.RequestsTotal.WithLabelValues(method, route, label).Inc()
	m.RequestDurationSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) Renewal(outcome string) {
	if m == nil {
		return
	}
	m.RenewalsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) IdempotentReplay() {
	if m == nil {
		return
	}
	m.IdempotentReplaysTotal.Inc()
}
