// Package metrics provides Prometheus metrics for the proof pipeline.
package metrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Run outcomes used as label values.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeFatal   = "fatal"
)

// Manager owns the Prometheus collectors for the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	constLabels    prometheus.Labels
	registry       prometheus.Registerer

	// Pipeline
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	stageLatency    *prometheus.HistogramVec
	scoreHistogram  prometheus.Histogram
	pointsAwarded   *prometheus.CounterVec
	checkFailures   *prometheus.CounterVec
	excludedEvents  prometheus.Counter
	authenticityPct prometheus.Histogram

	// Provider
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	tokenRefreshes   *prometheus.CounterVec

	// Ledger
	ledgerSessions   *prometheus.CounterVec
	ledgerLatency    prometheus.Histogram
	ledgerContention prometheus.Counter

	// Artifact export
	artifactUploads *prometheus.CounterVec
	artifactBytes   prometheus.Counter

	// HTTP (serve mode)
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

var pushMu sync.Mutex

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "listenproof",
		subsystem:      "proof",
		latencyBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	ratioBuckets := prometheus.LinearBuckets(0, 0.1, 11)

	m.runsTotal = auto.NewCounterVec(m.counterOpts("runs_total", "Pipeline runs by outcome (valid, invalid, fatal)"), []string{"outcome"})
	m.runDuration = auto.NewHistogram(m.histogramOpts("run_duration_milliseconds", "Wall-clock duration of a pipeline run", m.latencyBuckets))
	m.stageLatency = auto.NewHistogramVec(m.histogramOpts("stage_latency_milliseconds", "Latency of each pipeline stage", m.latencyBuckets), []string{"stage"})
	m.scoreHistogram = auto.NewHistogram(m.histogramOpts("score", "Emitted proof scores", ratioBuckets))
	m.pointsAwarded = auto.NewCounterVec(m.counterOpts("points_total", "Points computed for valid runs by kind (total, differential)"), []string{"kind"})
	m.checkFailures = auto.NewCounterVec(m.counterOpts("check_failures_total", "Failed validity checks by check"), []string{"check"})
	m.excludedEvents = auto.NewCounter(m.counterOpts("excluded_events_total", "Events excluded from totals for non-positive duration"))
	m.authenticityPct = auto.NewHistogram(m.histogramOpts("authenticity_ratio", "Share of submitted events confirmed by the provider", ratioBuckets))

	m.providerRequests = auto.NewCounterVec(m.counterOpts("provider_requests_total", "Provider API requests by endpoint and outcome"), []string{"endpoint", "outcome"})
	m.providerLatency = auto.NewHistogramVec(m.histogramOpts("provider_latency_milliseconds", "Provider API request latency", m.latencyBuckets), []string{"endpoint"})
	m.retries = auto.NewCounterVec(m.counterOpts("retries_total", "Retries scheduled by operation"), []string{"operation"})
	m.tokenRefreshes = auto.NewCounterVec(m.counterOpts("token_refreshes_total", "Access token refresh attempts by outcome"), []string{"outcome"})

	m.ledgerSessions = auto.NewCounterVec(m.counterOpts("ledger_sessions_total", "Ledger sessions by outcome (committed, read_only, failed)"), []string{"outcome"})
	m.ledgerLatency = auto.NewHistogram(m.histogramOpts("ledger_session_latency_milliseconds", "Ledger read-modify-write latency", m.latencyBuckets))
	m.ledgerContention = auto.NewCounter(m.counterOpts("ledger_contention_total", "Ledger sessions that hit a lock or serialization conflict"))

	m.artifactUploads = auto.NewCounterVec(m.counterOpts("artifact_uploads_total", "Encrypted export uploads by outcome"), []string{"outcome"})
	m.artifactBytes = auto.NewCounter(m.counterOpts("artifact_bytes_total", "Bytes of encrypted export uploaded"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.latencyBuckets), []string{"endpoint", "method", "status_code"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total", "Errors by type and severity"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "Errors by endpoint, method and type"), []string{"endpoint", "method", "error_type"})
}

// RecordRun counts a finished run and its duration.
func RecordRun(outcome string, durationMs float64) {
	globalManager.runsTotal.WithLabelValues(outcome).Inc()
	globalManager.runDuration.Observe(durationMs)
}

// RecordStageLatency records how long one pipeline stage took.
func RecordStageLatency(stage string, latencyMs float64) {
	globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
}

// RecordScore records an emitted score and the points behind it.
func RecordScore(score float64, totalPoints, differentialPoints int) {
	globalManager.scoreHistogram.Observe(score)
	globalManager.pointsAwarded.WithLabelValues("total").Add(float64(totalPoints))
	globalManager.pointsAwarded.WithLabelValues("differential").Add(float64(differentialPoints))
}

// RecordCheckFailure counts a failed validity check (authenticity, ownership, ...).
func RecordCheckFailure(check string) {
	globalManager.checkFailures.WithLabelValues(check).Inc()
}

// RecordExcludedEvents counts events dropped from totals.
func RecordExcludedEvents(n int) {
	if n > 0 {
		globalManager.excludedEvents.Add(float64(n))
	}
}

// RecordAuthenticity records the reconciliation ratio of a run.
func RecordAuthenticity(ratio float64) {
	globalManager.authenticityPct.Observe(ratio)
}

// RecordProviderRequest records one provider API round trip.
func RecordProviderRequest(endpoint, outcome string, latencyMs float64) {
	globalManager.providerRequests.WithLabelValues(endpoint, outcome).Inc()
	globalManager.providerLatency.WithLabelValues(endpoint).Observe(latencyMs)
}

// RecordRetry counts a scheduled retry for operation.
func RecordRetry(operation string) {
	globalManager.retries.WithLabelValues(operation).Inc()
}

// RecordTokenRefresh counts a refresh attempt by outcome (ok, failed).
func RecordTokenRefresh(outcome string) {
	globalManager.tokenRefreshes.WithLabelValues(outcome).Inc()
}

// RecordLedgerSession records a ledger session outcome and latency.
func RecordLedgerSession(outcome string, latencyMs float64) {
	globalManager.ledgerSessions.WithLabelValues(outcome).Inc()
	globalManager.ledgerLatency.Observe(latencyMs)
}

// RecordLedgerContention counts a ledger conflict.
func RecordLedgerContention() {
	globalManager.ledgerContention.Inc()
}

// RecordArtifactUpload records an export upload.
func RecordArtifactUpload(outcome string, bytes int) {
	globalManager.artifactUploads.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		globalManager.artifactBytes.Add(float64(bytes))
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Push sends the current registry to a Prometheus Pushgateway. Batch runs
// exit before a scrape could happen, so the prove command pushes instead.
func Push(ctx context.Context, gatewayURL, job string, grouping map[string]string) error {
	pushMu.Lock()
	defer pushMu.Unlock()

	p := push.New(gatewayURL, job).Gatherer(customRegistry)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	return nil
}
