// Package observability holds the service's metrics sinks: Prometheus for the
// long-running API and CloudWatch for the Lambda worker.
package observability

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"resilience/internal/types"
)

const namespace = "resilience"

// Metrics holds the Prometheus collectors of the API process.
type Metrics struct {
	AssessmentsCreated *prometheus.CounterVec   // labels: risk_level, model_version
	SnapshotsIngested  *prometheus.CounterVec   // labels: source, seismic
	PlansGenerated     *prometheus.CounterVec   // labels: provider, fallback
	ProviderCalls      *prometheus.CounterVec   // labels: provider, outcome
	ProviderDuration   *prometheus.HistogramVec // labels: provider
	HTTPRequests       *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration       *prometheus.HistogramVec // labels: method, route
}

func newMetrics() *Metrics {
	return &Metrics{
		AssessmentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_created_total",
			Help:      "Risk assessments persisted, by level and model version.",
		}, []string{"risk_level", "model_version"}),
		SnapshotsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_ingested_total",
			Help:      "Environmental snapshots stored, by weather source and seismic availability.",
		}, []string{"source", "seismic"}),
		PlansGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mitigation_plans_total",
			Help:      "Mitigation plans created, by generator and whether the AI path fell back.",
		}, []string{"provider", "fallback"}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Outbound provider calls by outcome.",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Outbound provider call duration including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"provider"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// NewMetrics creates the collectors and registers them with reg, or with the
// default registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := newMetrics()
	reg.MustRegister(
		m.AssessmentsCreated,
		m.SnapshotsIngested,
		m.PlansGenerated,
		m.ProviderCalls,
		m.ProviderDuration,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// RecordAssessment implements assessment.Metrics.
func (m *Metrics) RecordAssessment(level types.RiskLevel, modelVersion string) {
	m.AssessmentsCreated.WithLabelValues(string(level), modelVersion).Inc()
}

// RecordSnapshot implements ingest.Metrics.
func (m *Metrics) RecordSnapshot(source string, seismicAvailable bool) {
	m.SnapshotsIngested.WithLabelValues(source, strconv.FormatBool(seismicAvailable)).Inc()
}

// RecordPlan implements mitigation.Metrics.
func (m *Metrics) RecordPlan(provider types.AIProviderTag, fellBack bool) {
	m.PlansGenerated.WithLabelValues(string(provider), strconv.FormatBool(fellBack)).Inc()
}

// ObserveProviderCall implements external.CallObserver.
func (m *Metrics) ObserveProviderCall(provider string, err error, elapsed time.Duration) {
	m.ProviderCalls.WithLabelValues(provider, callOutcome(err)).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveHTTPRequest records one served request. route is the chi route
// pattern, never the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func callOutcome(err error) string {
	if err == nil {
		return "success"
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeUpstreamRateLimited:
			return "rate_limited"
		case types.ErrCodeUpstreamInvalidPayload:
			return "invalid_payload"
		case types.ErrCodeUpstreamUnavailable:
			return "unavailable"
		}
	}
	return "error"
}
