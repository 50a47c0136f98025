// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/settings"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.demo.eval")

// -----------------------------------------------------------------------------
// Dependencies
// -----------------------------------------------------------------------------

// Store is the persistence the service needs.
type Store interface {
	GetCorpus(ctx context.Context, corpusID string) (datatypes.Corpus, error)
	ListDataset(ctx context.Context, corpusID string) ([]datatypes.DatasetEntry, error)
	AddDatasetEntries(ctx context.Context, corpusID string, entries []datatypes.DatasetEntry, onlyIfEmpty bool) (int, error)
	DistinctFilePaths(ctx context.Context, corpusID string, limit int) ([]string, error)
	UpsertRun(ctx context.Context, run datatypes.EvalRun) error
	GetRun(ctx context.Context, runID string) (datatypes.EvalRun, error)
	LatestRun(ctx context.Context, corpusID string) (datatypes.EvalRun, error)
	ListRuns(ctx context.Context, corpusID string, limit int) ([]datatypes.RunSummary, error)
}

// SettingsReader reads scope settings.
type SettingsReader interface {
	Get(ctx context.Context, scope string) (map[string]any, error)
	View(ctx context.Context, scope string) (settings.View, error)
}

// Archiver copies completed runs to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, run datatypes.EvalRun) error
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

// Service runs, caches, and compares evaluation runs.
//
// Thread Safety: Safe for concurrent use. The latest run of each corpus is
// cached under a mutex; two concurrent Run calls for one corpus both
// complete and the later one wins the cache.
type Service struct {
	store    Store
	settings SettingsReader
	archiver Archiver
	now      func() time.Time
	onRun    func(corpusID string, run datatypes.EvalRun)

	mu     sync.RWMutex
	latest map[string]datatypes.EvalRun
}

// NewService creates a Service. archiver may be nil.
func NewService(store Store, settings SettingsReader, archiver Archiver) *Service {
	return &Service{
		store:    store,
		settings: settings,
		archiver: archiver,
		now:      time.Now,
		onRun:    func(string, datatypes.EvalRun) {},
		latest:   make(map[string]datatypes.EvalRun),
	}
}

// OnRun installs a hook called after each stored run.
func (s *Service) OnRun(fn func(corpusID string, run datatypes.EvalRun)) {
	if fn != nil {
		s.onRun = fn
	}
}

// SeedDataset creates generated entries for a corpus that has none.
// It returns the number of entries inserted, zero when the corpus already
// had a dataset.
func (s *Service) SeedDataset(ctx context.Context, corpusID string, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultSeedLimit
	}
	paths, err := s.store.DistinctFilePaths(ctx, corpusID, limit)
	if err != nil {
		return 0, fmt.Errorf("seeding dataset: %w", err)
	}
	if len(paths) == 0 {
		return 0, nil
	}
	n, err := s.store.AddDatasetEntries(ctx, corpusID, SeedEntries(corpusID, paths, limit, s.now()), true)
	if err != nil {
		return 0, fmt.Errorf("seeding dataset: %w", err)
	}
	if n > 0 {
		slog.Info("Seeded eval dataset", "corpus_id", corpusID, "entries", n)
	}
	return n, nil
}

// Latest returns the cached run of a corpus, else its newest stored run,
// else a freshly created one. An unknown corpus is a
// *datatypes.NotFoundError, even when a run is still cached.
func (s *Service) Latest(ctx context.Context, corpusID string) (datatypes.EvalRun, error) {
	if _, err := s.store.GetCorpus(ctx, corpusID); err != nil {
		return datatypes.EvalRun{}, err
	}
	s.mu.RLock()
	run, ok := s.latest[corpusID]
	s.mu.RUnlock()
	if ok {
		return run, nil
	}

	run, err := s.store.LatestRun(ctx, corpusID)
	switch {
	case err == nil:
		s.cache(run)
		return run, nil
	case errors.Is(err, datatypes.ErrNotFound):
		return s.Run(ctx, datatypes.RunRequest{CorpusID: corpusID}, nil)
	default:
		return datatypes.EvalRun{}, err
	}
}

// Run creates, stores, and caches a new run.
//
// # Description
//
// Zero fields of req fall back to the corpus' eval settings. The dataset is
// seeded first when empty. Archive failures are logged and do not fail the
// run.
//
// # Outputs
//
//   - datatypes.EvalRun: The stored run.
//   - error: *datatypes.ValidationError when corpus_id is missing,
//     *datatypes.NotFoundError when the corpus does not exist, store errors
//     otherwise.
func (s *Service) Run(ctx context.Context, req datatypes.RunRequest, progress ProgressFunc) (datatypes.EvalRun, error) {
	ctx, span := tracer.Start(ctx, "eval.Service.Run")
	defer span.End()

	if err := req.Validate(); err != nil {
		return datatypes.EvalRun{}, err
	}
	corpusID := strings.TrimSpace(req.CorpusID)
	if corpusID == "" {
		return datatypes.EvalRun{}, datatypes.NewValidation("corpus_id", "is required")
	}
	span.SetAttributes(attribute.String("corpus_id", corpusID))
	if _, err := s.store.GetCorpus(ctx, corpusID); err != nil {
		return datatypes.EvalRun{}, err
	}

	view, err := s.settings.View(ctx, corpusID)
	if err != nil {
		return datatypes.EvalRun{}, fmt.Errorf("loading eval settings: %w", err)
	}
	snapshot, err := s.settings.Get(ctx, corpusID)
	if err != nil {
		return datatypes.EvalRun{}, fmt.Errorf("loading config snapshot: %w", err)
	}

	opts := OptionsFromSettings(view.Eval)
	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	if req.SampleSize > 0 {
		opts.SampleSize = req.SampleSize
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	if req.AccuracyBias != nil {
		opts.AccuracyBias = *req.AccuracyBias
	}
	opts = opts.normalized()

	if _, err := s.SeedDataset(ctx, corpusID, view.Eval.DatasetLimit); err != nil {
		return datatypes.EvalRun{}, err
	}
	entries, err := s.store.ListDataset(ctx, corpusID)
	if err != nil {
		return datatypes.EvalRun{}, fmt.Errorf("loading dataset: %w", err)
	}
	paths, err := s.store.DistinctFilePaths(ctx, corpusID, 0)
	if err != nil {
		return datatypes.EvalRun{}, fmt.Errorf("loading file paths: %w", err)
	}

	started := s.now()
	results := Synthesize(entries, paths, opts, NewRNG(opts.Seed), progress)
	metrics, top1, topk := Aggregate(results)
	completed := s.now()

	run := datatypes.EvalRun{
		RunID:          fmt.Sprintf("%s-%d", corpusID, completed.Unix()),
		CorpusID:       corpusID,
		DatasetID:      datasetID(corpusID, entries),
		ConfigSnapshot: snapshot,
		TopK:           opts.TopK,
		Seed:           opts.Seed,
		AccuracyBias:   opts.AccuracyBias,
		Total:          len(results),
		Top1Hits:       top1,
		TopKHits:       topk,
		Metrics:        metrics,
		Results:        results,
		StartedAt:      started,
		CompletedAt:    completed,
	}
	if err := s.store.UpsertRun(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storing run failed")
		return datatypes.EvalRun{}, err
	}
	s.cache(run)
	s.onRun(corpusID, run)

	slog.Info("Eval run completed",
		"run_id", run.RunID,
		"total", run.Total,
		"top1_accuracy", metrics.Top1Accuracy,
		"mrr", metrics.MRR,
	)

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, run); err != nil {
			slog.Warn("Archiving eval run failed", "run_id", run.RunID, "error", err)
		}
	}
	return run, nil
}

// Get returns a run by id from the cache or the store.
func (s *Service) Get(ctx context.Context, runID string) (datatypes.EvalRun, error) {
	s.mu.RLock()
	for _, run := range s.latest {
		if run.RunID == runID {
			s.mu.RUnlock()
			return run, nil
		}
	}
	s.mu.RUnlock()
	return s.store.GetRun(ctx, runID)
}

// List returns stored run summaries, newest first.
func (s *Service) List(ctx context.Context, corpusID string, limit int) ([]datatypes.RunSummary, error) {
	return s.store.ListRuns(ctx, corpusID, limit)
}

// Compare resolves the runs named by req and compares them.
func (s *Service) Compare(ctx context.Context, req datatypes.CompareRequest) (datatypes.Comparison, error) {
	if err := req.Validate(); err != nil {
		return datatypes.Comparison{}, err
	}
	baseline, err := s.resolveRun(ctx, req.Baseline, req.BaselineRunID)
	if err != nil {
		return datatypes.Comparison{}, err
	}
	current, err := s.resolveRun(ctx, req.Current, req.CurrentRunID)
	if err != nil {
		return datatypes.Comparison{}, err
	}
	return Compare(baseline, current, req.ConfigDiffs), nil
}

func (s *Service) resolveRun(ctx context.Context, inline *datatypes.EvalRun, id string) (datatypes.EvalRun, error) {
	if inline != nil {
		return *inline, nil
	}
	return s.Get(ctx, id)
}

// Forget drops the cached run of a corpus. Call it when the corpus is
// reindexed or deleted.
func (s *Service) Forget(corpusID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.latest, corpusID)
}

func (s *Service) cache(run datatypes.EvalRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[run.CorpusID] = run
}

// datasetID names the exact entry set a run used.
func datasetID(corpusID string, entries []datatypes.DatasetEntry) string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.EntryID)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(corpusID+"\x00"+strings.Join(ids, ","))).String()
}
