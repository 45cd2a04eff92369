// Package metrics exposes prometheus counters and histograms for workflow outcomes and HTTP traffic.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hydrocred"

const labelOutcome = "outcome"

// OutcomeSuccess is the outcome label for operations that succeeded. Failed operations use their error code.
const OutcomeSuccess = "success"

type Metrics struct {
	registry *prometheus.Registry

	submissions    *prometheus.CounterVec
	certifications *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	claims         *prometheus.CounterVec
	settlement     *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the metrics on a dedicated registry, together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Number of production request submissions by outcome",
		}, []string{labelOutcome}),
		certifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certifications_total",
			Help:      "Number of certification attempts by outcome",
		}, []string{labelOutcome}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Number of rejection attempts by outcome",
		}, []string{labelOutcome}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Number of claim-mint attempts by outcome",
		}, []string{labelOutcome}),
		settlement: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Histogram of settlement collaborator call durations",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{labelOutcome}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "The total number of HTTP requests received",
		}, []string{"code", "method", "route"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submissions,
		m.certifications,
		m.rejections,
		m.claims,
		m.settlement,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CountSubmission(outcome string) {
	if m != nil {
		m.submissions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) CountCertification(outcome string) {
	if m != nil {
		m.certifications.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) CountRejection(outcome string) {
	if m != nil {
		m.rejections.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) CountClaim(outcome string) {
	if m != nil {
		m.claims.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveSettlement(outcome string, d time.Duration) {
	if m != nil {
		m.settlement.WithLabelValues(outcome).Observe(d.Seconds())
	}
}
