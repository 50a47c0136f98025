// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// =============================================================================
// Dataset Types
// =============================================================================

// DatasetEntry is one benchmark question with ground-truth file paths.
type DatasetEntry struct {
	CorpusID       string    `json:"corpus_id"`
	EntryID        string    `json:"entry_id"`
	Question       string    `json:"question"`
	ExpectedPaths  []string  `json:"expected_paths"`
	ExpectedAnswer string    `json:"expected_answer,omitempty"`
	Tags           []string  `json:"tags"`
	CreatedAt      time.Time `json:"created_at"`
}

// DatasetEntryRequest is the body of POST /dataset and PUT /dataset/:entryId.
type DatasetEntryRequest struct {
	Question       string   `json:"question" validate:"required,notblank,maxbytes"`
	ExpectedPaths  []string `json:"expected_paths" validate:"max=64,dive,required"`
	ExpectedAnswer string   `json:"expected_answer" validate:"maxbytes"`
	Tags           []string `json:"tags" validate:"max=32"`
}

// Validate checks the request fields.
func (r *DatasetEntryRequest) Validate() error {
	return validateStruct(r)
}

// =============================================================================
// Run Types
// =============================================================================

// EntryResult is the synthesized retrieval outcome for one dataset entry.
type EntryResult struct {
	EntryID        string   `json:"entry_id"`
	Question       string   `json:"question"`
	ExpectedPaths  []string `json:"expected_paths"`
	RetrievedPaths []string `json:"retrieved_paths"`
	Rank           int      `json:"rank"`
	Top1Hit        bool     `json:"top1_hit"`
	TopKHit        bool     `json:"topk_hit"`
	ReciprocalRank float64  `json:"reciprocal_rank"`
	RecallAtK      float64  `json:"recall_at_k"`
	RecallAt5      float64  `json:"recall_at_5"`
	RecallAt10     float64  `json:"recall_at_10"`
	RecallAt20     float64  `json:"recall_at_20"`
	PrecisionAt5   float64  `json:"precision_at_5"`
	NDCGAt10       float64  `json:"ndcg_at_10"`
	LatencyMs      float64  `json:"latency_ms"`
}

// RunMetrics aggregates EntryResult values across a run.
type RunMetrics struct {
	Top1Accuracy float64 `json:"top1_accuracy"`
	TopKAccuracy float64 `json:"topk_accuracy"`
	MRR          float64 `json:"mrr"`
	RecallAtK    float64 `json:"recall_at_k"`
	RecallAt5    float64 `json:"recall_at_5"`
	RecallAt10   float64 `json:"recall_at_10"`
	RecallAt20   float64 `json:"recall_at_20"`
	PrecisionAt5 float64 `json:"precision_at_5"`
	NDCGAt10     float64 `json:"ndcg_at_10"`
	LatencyMean  float64 `json:"latency_mean_ms"`
	LatencyP50   float64 `json:"latency_p50_ms"`
	LatencyP95   float64 `json:"latency_p95_ms"`
}

// EvalRun is one completed evaluation pass.
//
// # Description
//
// RunID is derived from the corpus id and the completion time at second
// resolution. A run is immutable once written except for upserts that reuse
// the same RunID.
type EvalRun struct {
	RunID          string         `json:"run_id"`
	CorpusID       string         `json:"corpus_id"`
	DatasetID      string         `json:"dataset_id"`
	ConfigSnapshot map[string]any `json:"config_snapshot"`
	TopK           int            `json:"top_k"`
	Seed           uint64         `json:"seed"`
	AccuracyBias   float64        `json:"accuracy_bias"`
	Total          int            `json:"total"`
	Top1Hits       int            `json:"top1_hits"`
	TopKHits       int            `json:"topk_hits"`
	Metrics        RunMetrics     `json:"metrics"`
	Results        []EntryResult  `json:"results"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    time.Time      `json:"completed_at"`
}

// RunSummary is the denormalized listing row for a stored run.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	CorpusID     string    `json:"corpus_id"`
	Total        int       `json:"total"`
	Top1Accuracy float64   `json:"top1_accuracy"`
	TopKAccuracy float64   `json:"topk_accuracy"`
	MRR          float64   `json:"mrr"`
	CompletedAt  time.Time `json:"completed_at"`
}

// RunRequest is the body of POST /eval/run. Zero values use scope settings.
type RunRequest struct {
	CorpusID     string   `json:"corpus_id"`
	SampleSize   int      `json:"sample_size" validate:"gte=0"`
	TopK         int      `json:"top_k" validate:"gte=0,lte=50"`
	Seed         *uint64  `json:"seed,omitempty"`
	AccuracyBias *float64 `json:"accuracy_bias,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Validate checks the request fields.
func (r *RunRequest) Validate() error {
	return validateStruct(r)
}

// =============================================================================
// Comparison Types
// =============================================================================

// ConfigDiff is one configuration change between two runs.
type ConfigDiff struct {
	Key      string `json:"key" validate:"required"`
	Baseline any    `json:"baseline"`
	Current  any    `json:"current"`
}

// CompareRequest is the body of POST /eval/analyze_comparison.
//
// Runs may be referenced by id or supplied inline; inline runs win.
type CompareRequest struct {
	BaselineRunID string       `json:"baseline_run_id"`
	CurrentRunID  string       `json:"current_run_id"`
	Baseline      *EvalRun     `json:"baseline,omitempty"`
	Current       *EvalRun     `json:"current,omitempty"`
	ConfigDiffs   []ConfigDiff `json:"config_diffs" validate:"dive"`
}

// Validate checks the request fields.
func (r *CompareRequest) Validate() error {
	if r.Baseline == nil && r.BaselineRunID == "" {
		return NewValidation("baseline_run_id", "is required")
	}
	if r.Current == nil && r.CurrentRunID == "" {
		return NewValidation("current_run_id", "is required")
	}
	return validateStruct(r)
}

// MetricDelta is the change of one metric between two runs.
type MetricDelta struct {
	Metric      string  `json:"metric"`
	Baseline    float64 `json:"baseline"`
	Current     float64 `json:"current"`
	DeltaPoints float64 `json:"delta_pp"`
	Regression  bool    `json:"regression"`
}

// Comparison is the result of analyzing two runs.
type Comparison struct {
	BaselineRunID string        `json:"baseline_run_id"`
	CurrentRunID  string        `json:"current_run_id"`
	Deltas        []MetricDelta `json:"deltas"`
	Regressions   int           `json:"regressions"`
	ConfigDiffs   []ConfigDiff  `json:"config_diffs"`
	Analysis      string        `json:"analysis"`
}
