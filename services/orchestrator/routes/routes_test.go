// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	router := gin.New()
	SetupRoutes(router, Dependencies{
		Metrics:  observability.NewMetrics(reg),
		Gatherer: reg,
	})
	return router, reg
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersEveryEndpoint(t *testing.T) {
	router, _ := newRouter(t)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"GET", "/corpora"},
		{"GET", "/corpus/:id"},
		{"POST", "/corpus/:id/reindex"},
		{"DELETE", "/corpus/:id"},
		{"POST", "/search"},
		{"POST", "/chat"},
		{"POST", "/chat/stream"},
		{"GET", "/chat/ws"},
		{"GET", "/graph/:corpusId/entities"},
		{"GET", "/graph/:corpusId/entity/:entityId/neighbors"},
		{"GET", "/graph/:corpusId/stats"},
		{"GET", "/config"},
		{"PUT", "/config"},
		{"PATCH", "/config/:section"},
		{"POST", "/config/reset"},
		{"GET", "/prompts"},
		{"GET", "/prompts/:key"},
		{"PUT", "/prompts/:key"},
		{"POST", "/prompts/reset/:key"},
		{"GET", "/dataset"},
		{"POST", "/dataset"},
		{"PUT", "/dataset/:entryId"},
		{"DELETE", "/dataset/:entryId"},
		{"GET", "/eval/runs"},
		{"GET", "/eval/results"},
		{"GET", "/eval/results/:runId"},
		{"POST", "/eval/run"},
		{"GET", "/eval/run/stream"},
		{"POST", "/eval/analyze_comparison"},
	}

	registered := map[string]bool{}
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, e := range expected {
		assert.True(t, registered[e.method+" "+e.path], "route not registered: %s %s", e.method, e.path)
	}
}

func TestSetupRoutes_MetricsEndpointServesRegistry(t *testing.T) {
	router, _ := newRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "aleutian_demo_rate_limited_total")
}

func TestSetupRoutes_RootRedirectsToHealth(t *testing.T) {
	router, _ := newRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/health", w.Header().Get("Location"))
}
