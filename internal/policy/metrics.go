package policy

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Suppression reasons recorded by the suppressed counter.
const (
	reasonExcludedStore = "excluded_store"
	reasonFiltered      = "filtered"
	reasonFirstEvent    = "first_event"
)

// Metrics are the dispatcher's Prometheus collectors.
type Metrics struct {
	invoked    *prometheus.CounterVec
	failed     *prometheus.CounterVec
	suppressed *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. When a
// collector with the same description is already registered (for example
// by another Dispatcher on the default registry), the existing one is
// reused. A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		invoked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "noderepo",
				Subsystem: "policy",
				Name:      "behaviours_invoked_total",
				Help:      "Behaviour invocations by policy and frequency.",
			},
			[]string{"policy", "frequency"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "noderepo",
				Subsystem: "policy",
				Name:      "behaviour_failures_total",
				Help:      "Behaviour invocations that returned an error.",
			},
			[]string{"policy"},
		),
		suppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "noderepo",
				Subsystem: "policy",
				Name:      "dispatch_suppressed_total",
				Help:      "Dispatches or firings skipped, by reason.",
			},
			[]string{"policy", "reason"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "noderepo",
				Subsystem: "policy",
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent invoking behaviours for one event.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"policy"},
		),
	}
	if reg == nil {
		return m
	}
	m.invoked = register(reg, m.invoked)
	m.failed = register(reg, m.failed)
	m.suppressed = register(reg, m.suppressed)
	m.duration = register(reg, m.duration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) recordInvoked(p Name, f Frequency) {
	m.invoked.WithLabelValues(string(p), f.String()).Inc()
}

func (m *Metrics) recordFailed(p Name) {
	m.failed.WithLabelValues(string(p)).Inc()
}

func (m *Metrics) recordSuppressed(p Name, reason string) {
	m.suppressed.WithLabelValues(string(p), reason).Inc()
}

func (m *Metrics) recordDuration(p Name, d time.Duration) {
	m.duration.WithLabelValues(string(p)).Observe(d.Seconds())
}
