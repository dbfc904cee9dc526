package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "refineloop"

// Metrics holds the collectors for loop, provider, memory and search behaviour.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Transitions      *prometheus.CounterVec
	Verdicts         *prometheus.CounterVec
	Iterations       prometheus.Histogram
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	MemoryOps        *prometheus.CounterVec
	SearchRequests   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_transitions_total",
				Help:      "Loop controller state transitions",
			},
			[]string{"from", "to"},
		),
		Verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "critic_verdicts_total",
				Help:      "Critic verdicts by classification",
			},
			[]string{"class"},
		),
		Iterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_iterations",
				Help:      "Critic evaluations per run",
				Buckets:   []float64{1, 2, 3, 4, 5, 6},
			},
		),
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Model provider calls by outcome",
			},
			[]string{"provider", "outcome"},
		),
		ProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Model provider call latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		MemoryOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memory_operations_total",
				Help:      "Memory provider operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		SearchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_requests_total",
				Help:      "Search requests by caller and outcome",
			},
			[]string{"caller", "outcome"},
		),
	}
	reg.MustRegister(
		m.Transitions,
		m.Verdicts,
		m.Iterations,
		m.ProviderCalls,
		m.ProviderDuration,
		m.MemoryOps,
		m.SearchRequests,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Verdict(class string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(class).Inc()
}

func (m *Metrics) RunFinished(iterations int) {
	if m == nil {
		return
	}
	m.Iterations.Observe(float64(iterations))
}

func (m *Metrics) ProviderCall(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, outcome(err)).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) MemoryOp(op string, err error) {
	if m == nil {
		return
	}
	m.MemoryOps.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) Search(caller string, err error) {
	if m == nil {
		return
	}
	m.SearchRequests.WithLabelValues(caller, outcome(err)).Inc()
}
