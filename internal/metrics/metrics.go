package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	resultsServed   *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	resultsFailures prometheus.Counter
	submissions     *prometheus.CounterVec
	liveSubscribers prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resultsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usbest",
			Name:      "survey_results_served_total",
			Help:      "Survey results returned, by the source that produced them.",
		}, []string{"source"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usbest",
			Name:      "survey_results_fallbacks_total",
			Help:      "Times the precomputed aggregate was skipped, by reason.",
		}, []string{"reason"}),
		resultsFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "usbest",
			Name:      "survey_results_unavailable_total",
			Help:      "Requests for which no source could produce results.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usbest",
			Name:      "survey_submissions_total",
			Help:      "Survey answer submissions, by outcome.",
		}, []string{"outcome"}),
		liveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "usbest",
			Name:      "live_results_subscribers",
			Help:      "Open websocket subscriptions to survey results.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.resultsServed, m.fallbacks, m.resultsFailures, m.submissions, m.liveSubscribers)
	}
	return m
}

// ResultsServed counts results produced by source.
func (m *Metrics) ResultsServed(source string) {
	if m == nil {
		return
	}
	m.resultsServed.WithLabelValues(source).Inc()
}

// Fallback counts a skipped precomputed aggregate.
func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// ResultsUnavailable counts a request that failed on every source.
func (m *Metrics) ResultsUnavailable() {
	if m == nil {
		return
	}
	m.resultsFailures.Inc()
}

// Submission counts a submission attempt by outcome.
func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// LiveSubscribers tracks the open websocket subscriptions.
func (m *Metrics) LiveSubscribers(delta int) {
	if m == nil {
		return
	}
	m.liveSubscribers.Add(float64(delta))
}
