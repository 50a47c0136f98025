// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for the demo backend and the
// OpenTelemetry provider setup. Metrics include:
//   - Request counters and latency histograms by endpoint
//   - Search result counts
//   - Provider call outcomes by provider
//   - Eval runs and configuration writes
//   - Active stream gauges for SSE and websocket endpoints
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for demo backend metrics
const demoSubsystem = "demo"

// Metrics holds all Prometheus metrics of the demo backend.
//
// # Description
//
// Create one instance at startup with NewMetrics and pass it to the
// middleware and services that record into it. Tests pass an isolated
// prometheus.NewRegistry().
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	// RequestsTotal counts HTTP requests.
	// Labels: endpoint (route template), status (HTTP code)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures HTTP request latency.
	// Labels: endpoint
	RequestDurationSeconds *prometheus.HistogramVec

	// SearchResults observes the number of matches per search.
	SearchResults prometheus.Histogram

	// ProviderCallsTotal counts generation calls.
	// Labels: provider, status (ok, error, unavailable)
	ProviderCallsTotal *prometheus.CounterVec

	// EvalRunsTotal counts completed eval runs.
	// Labels: corpus_id
	EvalRunsTotal *prometheus.CounterVec

	// ConfigWritesTotal counts settings writes.
	// Labels: op (patch, replace, reset, prompt)
	ConfigWritesTotal *prometheus.CounterVec

	// ActiveStreams tracks open SSE and websocket connections.
	// Labels: endpoint
	ActiveStreams *prometheus.GaugeVec

	// ClientDisconnectsTotal counts clients gone before a stream finished.
	// Labels: endpoint
	ClientDisconnectsTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics on reg.
//
// # Limitations
//
//   - Panics if the metrics are already registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: demoSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: demoSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),

		SearchResults: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: demoSubsystem,
				Name:      "search_results",
				Help:      "Number of matches returned per search",
				Buckets:   []float64{0, 1, 5, 10, 20, 50},
			},
		),

		ProviderCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: demoSubsystem,
				Name:      "provider_calls_total",
				Help:      "Generation provider calls by provider and outcome",
			},
			[]string{"provider", "status"},
		),

		EvalRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: demoSubsystem,
				Name:      "eval_runs_total",
				Help:      "Completed eval runs by corpus",
			},
			[]string{"corpus_id"},
		),

		ConfigWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: demoSubsystem,
				Name:      "config_writes_total",
				Help:      "Settings writes by operation",
			},
			[]string{"op"},
		),

		ActiveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: demoSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open streaming connections",
			},
			[]string{"endpoint"},
		),

		ClientDisconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: demoSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
			[]string{"endpoint"},
		),

		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: demoSubsystem,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
		),
	}
}

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint names a streaming endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointChatStream is the SSE chat endpoint.
	EndpointChatStream Endpoint = "chat_stream"

	// EndpointChatWS is the websocket chat endpoint.
	EndpointChatWS Endpoint = "chat_ws"

	// EndpointEvalStream is the SSE eval run endpoint.
	EndpointEvalStream Endpoint = "eval_stream"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records one completed HTTP request.
func (m *Metrics) RecordRequest(endpoint, status string, seconds float64) {
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.RequestDurationSeconds.WithLabelValues(endpoint).Observe(seconds)
}

// RecordSearch records the size of one search result.
func (m *Metrics) RecordSearch(results int) {
	m.SearchResults.Observe(float64(results))
}

// RecordProviderCall records one generation call outcome.
func (m *Metrics) RecordProviderCall(provider, status string) {
	if provider == "" {
		provider = "unknown"
	}
	m.ProviderCallsTotal.WithLabelValues(provider, status).Inc()
}

// RecordEvalRun records one completed eval run.
func (m *Metrics) RecordEvalRun(corpusID string) {
	m.EvalRunsTotal.WithLabelValues(corpusID).Inc()
}

// RecordConfigWrite records one settings write.
func (m *Metrics) RecordConfigWrite(op string) {
	m.ConfigWritesTotal.WithLabelValues(op).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *Metrics) StreamStarted(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *Metrics) StreamEnded(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *Metrics) RecordClientDisconnect(endpoint Endpoint) {
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordRateLimited increments the rate limited counter.
func (m *Metrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}
