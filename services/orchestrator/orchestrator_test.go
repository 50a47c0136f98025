// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/llm"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// newTestService builds a Service on a temp database with no exporters and
// no generation providers.
func newTestService(t *testing.T, cfg Config) Service {
	t.Helper()
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(t.TempDir(), "demo.db")
	}
	svc, err := New(context.Background(), cfg, &Options{
		Providers: llm.NewRegistry(false),
		Registry:  prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func serve(svc Service, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)
	return w
}

// =============================================================================
// Config Tests
// =============================================================================

// TestApplyConfigDefaults_AllDefaults verifies default values are applied.
func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	result := applyConfigDefaults(Config{})

	assert.Equal(t, 12210, result.Port, "default port should be 12210")
	assert.Equal(t, "./data/demo.db", result.DBPath)
	assert.Equal(t, observability.ExporterNone, result.TraceExporter)
	assert.Equal(t, observability.ExporterNone, result.MetricExporter)
	assert.Equal(t, 20, result.RateLimitBurst)
	assert.Equal(t, 10*time.Second, result.ShutdownTimeout)
	assert.Equal(t, "eval-runs", result.ArchivePrefix)
	assert.Empty(t, result.SettingsPath, "settings stay in memory by default")
}

// TestApplyConfigDefaults_PreservesCustomValues verifies custom values are not overwritten.
func TestApplyConfigDefaults_PreservesCustomValues(t *testing.T) {
	cfg := Config{
		Port:           8080,
		DBPath:         "/var/lib/demo.db",
		TraceExporter:  observability.ExporterOTLP,
		OTLPEndpoint:   "collector:4317",
		RateLimitBurst: 5,
		Hosted:         true,
	}

	result := applyConfigDefaults(cfg)

	assert.Equal(t, 8080, result.Port)
	assert.Equal(t, "/var/lib/demo.db", result.DBPath)
	assert.Equal(t, observability.ExporterOTLP, result.TraceExporter)
	assert.Equal(t, "collector:4317", result.OTLPEndpoint)
	assert.Equal(t, 5, result.RateLimitBurst)
	assert.True(t, result.Providers.Hosted, "hosted flag flows into the provider registry")
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestNew_ServesHealth(t *testing.T) {
	svc := newTestService(t, Config{})

	w := serve(svc, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		OK       bool           `json:"ok"`
		Status   string         `json:"status"`
		Services map[string]any `json:"services"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Services["store"])
	assert.Equal(t, "ok", body.Services["graph"])
}

func TestNew_EmptyCorpora(t *testing.T) {
	svc := newTestService(t, Config{})

	w := serve(svc, http.MethodGet, "/corpora", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"corpora":[]}`, w.Body.String())
}

func TestNew_ConfigWritesAreCounted(t *testing.T) {
	svc := newTestService(t, Config{})

	w := serve(svc, http.MethodPatch, "/config/chat", `{"temperature":0.5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(svc, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `aleutian_demo_config_writes_total{op="patch"} 1`)
	assert.Contains(t, w.Body.String(), `aleutian_demo_requests_total{endpoint="/config/:section",status="200"} 1`)
}

func TestNew_ChatWithoutProviders(t *testing.T) {
	svc := newTestService(t, Config{})

	w := serve(svc, http.MethodPost, "/chat", `{"message":"where is login?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"], "an unregistered provider is reported, not failed")
}

func TestNew_ReadOnlyRejectsDelete(t *testing.T) {
	svc := newTestService(t, Config{ReadOnly: true})

	w := serve(svc, http.MethodDelete, "/corpus/demo", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "read-only")
}

func TestNew_RateLimit(t *testing.T) {
	svc := newTestService(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 1})

	assert.Equal(t, http.StatusOK, serve(svc, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(svc, http.MethodGet, "/health", "").Code)
}

func TestNew_DefaultsFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat:\n  temperature: 0.4\n"), 0o600))

	svc := newTestService(t, Config{SettingsDefaultsFile: path})

	w := serve(svc, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Config map[string]map[string]any `json:"config"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 0.4, body.Config["chat"]["temperature"])
	assert.Equal(t, 1024.0, body.Config["chat"]["max_tokens"])
}

func TestNew_BadDefaultsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nope:\n  x: 1\n"), 0o600))

	_, err := New(context.Background(), Config{
		DBPath:               filepath.Join(t.TempDir(), "demo.db"),
		SettingsDefaultsFile: path,
	}, &Options{Providers: llm.NewRegistry(false), Registry: prometheus.NewRegistry()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings defaults")
}

func TestNew_UnknownExporter(t *testing.T) {
	_, err := New(context.Background(), Config{
		DBPath:        filepath.Join(t.TempDir(), "demo.db"),
		TraceExporter: "zipkin",
	}, &Options{Providers: llm.NewRegistry(false), Registry: prometheus.NewRegistry()})
	require.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	svc := newTestService(t, Config{})
	assert.NoError(t, svc.Close())
	assert.NoError(t, svc.Close())
}

func TestRun_StopsOnCancel(t *testing.T) {
	svc := newTestService(t, Config{Port: 0})
	// Port 0 becomes the default; pick an unlikely port to avoid collisions.
	svc.(*service).config.Port = 38471

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
