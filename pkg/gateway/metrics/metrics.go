// Package metrics owns the Prometheus registry and implements the observer
// interfaces of the pipeline components.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kisansetu/voicecore/pkg/core/fallback"
	"github.com/kisansetu/voicecore/pkg/core/types"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimitHits   *prometheus.CounterVec

	// Provider chains (llm, tts, stt)
	ProviderAttempts *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec

	// Pipeline
	TTSCacheTotal  *prometheus.CounterVec
	ContextLookups *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec
	IVRTurnsTotal  *prometheus.CounterVec
	CallStatus     *prometheus.CounterVec

	// Broadcast
	SendsTotal        *prometheus.CounterVec
	ScheduledDispatch *prometheus.CounterVec
	ScheduledScanRuns *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicecore"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 12, 30},
		}, []string{"route"}),
		RateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter, by principal kind.",
		}, []string{"kind"}),
		ProviderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider attempts by chain, step and outcome.",
		}, []string{"chain", "step", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_attempt_duration_seconds",
			Help:      "Provider attempt duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 12},
		}, []string{"chain", "step"}),
		TTSCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_cache_requests_total",
			Help:      "TTS cache lookups by result.",
		}, []string{"result"}),
		ContextLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_lookups_total",
			Help:      "Context aggregator lookups by source and result.",
		}, []string{"source", "result"}),
		LookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_lookup_duration_seconds",
			Help:      "Context lookup duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 3},
		}, []string{"source"}),
		IVRTurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ivr_turns_total",
			Help:      "IVR webhook turns by step.",
		}, []string{"step"}),
		CallStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_status_callbacks_total",
			Help:      "Twilio call status callbacks by status.",
		}, []string{"status"}),
		SendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_sends_total",
			Help:      "Alert sends by channel and status.",
		}, []string{"channel", "status"}),
		ScheduledDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_alerts_total",
			Help:      "Scheduled alerts handled by the scan, by result.",
		}, []string{"result"}),
		ScheduledScanRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_scan_runs_total",
			Help:      "Scheduled alert scans by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.RateLimitHits,
		m.ProviderAttempts,
		m.ProviderDuration,
		m.TTSCacheTotal,
		m.ContextLookups,
		m.LookupDuration,
		m.IVRTurnsTotal,
		m.CallStatus,
		m.SendsTotal,
		m.ScheduledDispatch,
		m.ScheduledScanRuns,
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) ObserveRateLimited(kind string) {
	m.RateLimitHits.WithLabelValues(kind).Inc()
}

// ObserveAttempt implements fallback.Observer.
func (m *Metrics) ObserveAttempt(chain, step string, outcome fallback.Outcome, d time.Duration) {
	m.ProviderAttempts.WithLabelValues(chain, step, string(outcome)).Inc()
	m.ProviderDuration.WithLabelValues(chain, step).Observe(d.Seconds())
}

func (m *Metrics) ObserveCache(hit bool) {
	m.TTSCacheTotal.WithLabelValues(hitLabel(hit)).Inc()
}

func (m *Metrics) ObserveLookup(source string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.ContextLookups.WithLabelValues(source, result).Inc()
	m.LookupDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) ObserveTurn(step string) {
	m.IVRTurnsTotal.WithLabelValues(step).Inc()
}

func (m *Metrics) ObserveCallStatus(status string) {
	m.CallStatus.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveSend(channel types.Channel, status types.DeliveryStatus) {
	m.SendsTotal.WithLabelValues(string(channel), string(status)).Inc()
}

// ObserveScheduled counts one scheduled alert: dispatched, skipped (claimed
// elsewhere) or failed.
func (m *Metrics) ObserveScheduled(result string) {
	m.ScheduledDispatch.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveScan(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ScheduledScanRuns.WithLabelValues(result).Inc()
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
