// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/eval"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// EvalRunner is the evaluation capability behind /eval.
type EvalRunner interface {
	Latest(ctx context.Context, corpusID string) (datatypes.EvalRun, error)
	Run(ctx context.Context, req datatypes.RunRequest, progress eval.ProgressFunc) (datatypes.EvalRun, error)
	Get(ctx context.Context, runID string) (datatypes.EvalRun, error)
	List(ctx context.Context, corpusID string, limit int) ([]datatypes.RunSummary, error)
	Compare(ctx context.Context, req datatypes.CompareRequest) (datatypes.Comparison, error)
}

// defaultKeepAlive is the interval between SSE comments on an eval stream.
const defaultKeepAlive = 15 * time.Second

// EvalHandlers serves the /eval routes.
type EvalHandlers struct {
	runner    EvalRunner
	corpora   CorpusLookup
	settings  SettingsViewer
	metrics   *observability.Metrics
	keepAlive time.Duration
}

// NewEvalHandlers creates EvalHandlers. corpora rejects unknown corpus ids
// before any run or stream starts.
func NewEvalHandlers(runner EvalRunner, corpora CorpusLookup, settings SettingsViewer, metrics *observability.Metrics) *EvalHandlers {
	return &EvalHandlers{
		runner:    runner,
		corpora:   corpora,
		settings:  settings,
		metrics:   metrics,
		keepAlive: defaultKeepAlive,
	}
}

// SetKeepAlive changes the eval stream keep-alive interval. Non-positive
// values are ignored.
func (h *EvalHandlers) SetKeepAlive(interval time.Duration) {
	if interval > 0 {
		h.keepAlive = interval
	}
}

// Runs handles GET /eval/runs?corpus_id=&limit=. Without corpus_id every
// corpus is listed.
func (h *EvalHandlers) Runs(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleListEvalRuns")
	defer span.End()

	runs, err := h.runner.List(ctx, c.Query("corpus_id"), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// Latest handles GET /eval/results. The latest run of the corpus is
// served from cache and created on first request.
func (h *EvalHandlers) Latest(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleLatestEvalRun")
	defer span.End()

	corpusID, err := activeCorpus(ctx, h.corpora, h.settings, c.Query("corpus_id"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	run, err := h.runner.Latest(ctx, corpusID)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// Result handles GET /eval/results/:runId.
func (h *EvalHandlers) Result(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleGetEvalRun")
	defer span.End()

	run, err := h.runner.Get(ctx, c.Param("runId"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// Run handles POST /eval/run. The body is optional.
func (h *EvalHandlers) Run(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleEvalRun")
	defer span.End()

	var req datatypes.RunRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, span, &req) {
		return
	}
	corpusID, err := activeCorpus(ctx, h.corpora, h.settings, firstNonEmpty(req.CorpusID, c.Query("corpus_id")))
	if err != nil {
		respondError(c, span, err)
		return
	}
	req.CorpusID = corpusID
	span.SetAttributes(attribute.String("corpus_id", corpusID))

	run, err := h.runner.Run(ctx, req, nil)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// RunStream handles GET /eval/run/stream.
//
// # Description
//
// Takes the RunRequest fields as query parameters. Emits one "progress"
// event per synthesized entry and a final "complete" event carrying the
// run, or an "error" event.
func (h *EvalHandlers) RunStream(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleEvalRunStream")
	defer span.End()

	req, err := runRequestFromQuery(c)
	if err != nil {
		respondError(c, span, err)
		return
	}
	if req.CorpusID, err = activeCorpus(ctx, h.corpora, h.settings, req.CorpusID); err != nil {
		respondError(c, span, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, span, err)
		return
	}

	SetSSEHeaders(c.Writer)
	sse, err := NewSSEWriter(c.Writer)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.Status(http.StatusOK)
	h.metrics.StreamStarted(observability.EndpointEvalStream)
	defer h.metrics.StreamEnded(observability.EndpointEvalStream)

	stop := startKeepAlive(ctx, sse, h.keepAlive)
	run, err := h.runner.Run(ctx, req, func(done, total int) {
		if err := sse.WriteProgress(done, total); err != nil {
			slog.Debug("Failed to write progress event", "error", err)
		}
	})
	stop()
	if ctx.Err() != nil {
		h.metrics.RecordClientDisconnect(observability.EndpointEvalStream)
		slog.Info("Client disconnected during eval stream", "corpus_id", req.CorpusID)
		return
	}
	if err != nil {
		span.RecordError(err)
		slog.Error("Eval stream failed", "corpus_id", req.CorpusID, "error", err)
		_ = sse.WriteError(streamErrorMessage(err))
		return
	}
	if err := sse.WriteComplete(run); err != nil {
		slog.Warn("Failed to write complete event", "error", err)
	}
}

// startKeepAlive writes an SSE comment every interval until stop is called or
// ctx ends. stop returns once the writer goroutine has exited.
func startKeepAlive(ctx context.Context, sse SSEWriter, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := sse.WriteKeepAlive(); err != nil {
					slog.Debug("Failed to write keepalive", "error", err)
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// Compare handles POST /eval/analyze_comparison.
func (h *EvalHandlers) Compare(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleAnalyzeComparison")
	defer span.End()

	var req datatypes.CompareRequest
	if !bindJSON(c, span, &req) {
		return
	}
	cmp, err := h.runner.Compare(ctx, req)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// runRequestFromQuery reads a RunRequest from query parameters.
func runRequestFromQuery(c *gin.Context) (datatypes.RunRequest, error) {
	req := datatypes.RunRequest{
		CorpusID:   c.Query("corpus_id"),
		SampleSize: queryInt(c, "sample_size", 0),
		TopK:       queryInt(c, "top_k", 0),
	}
	if raw := c.Query("seed"); raw != "" {
		seed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return req, datatypes.NewValidation("seed", "must be a non-negative integer")
		}
		req.Seed = &seed
	}
	if raw := c.Query("accuracy_bias"); raw != "" {
		bias, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return req, datatypes.NewValidation("accuracy_bias", "must be a number")
		}
		req.AccuracyBias = &bias
	}
	return req, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
