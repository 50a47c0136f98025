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
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/settings"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/storage/badger"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Fixtures
// -----------------------------------------------------------------------------

func testPaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("pkg/file_%02d.go", i)
	}
	return paths
}

func testEntries(paths []string) []datatypes.DatasetEntry {
	entries := make([]datatypes.DatasetEntry, len(paths))
	for i, p := range paths {
		entries[i] = datatypes.DatasetEntry{
			EntryID:       fmt.Sprintf("e%02d", i),
			Question:      SeedQuestion(p),
			ExpectedPaths: []string{p},
		}
	}
	return entries
}

// -----------------------------------------------------------------------------
// Seeding
// -----------------------------------------------------------------------------

func TestSeedQuestion(t *testing.T) {
	assert.Equal(t, "Where is user auth handler implemented and what does it do?",
		SeedQuestion("src/user_auth-handler.py"))
	assert.Equal(t, "Where is Makefile implemented and what does it do?", SeedQuestion("Makefile"))
	assert.Equal(t, "Where is .env implemented and what does it do?", SeedQuestion("config/.env"))
}

func TestSeedEntries_Limit(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entries := SeedEntries("demo", testPaths(40), 0, now)
	require.Len(t, entries, DefaultSeedLimit)
	assert.Equal(t, []string{"pkg/file_00.go"}, entries[0].ExpectedPaths)
	assert.Equal(t, []string{SeedTag}, entries[0].Tags)
	assert.Equal(t, now, entries[0].CreatedAt)
	assert.NotEqual(t, entries[0].EntryID, entries[1].EntryID)
}

// -----------------------------------------------------------------------------
// Synthesis
// -----------------------------------------------------------------------------

func TestSynthesize_Deterministic(t *testing.T) {
	paths := testPaths(30)
	entries := testEntries(paths[:20])
	opts := DefaultOptions()
	opts.Seed = 7

	a := Synthesize(entries, paths, opts, NewRNG(opts.Seed), nil)
	b := Synthesize(entries, paths, opts, NewRNG(opts.Seed), nil)
	assert.Equal(t, a, b)

	c := Synthesize(entries, paths, opts, NewRNG(8), nil)
	assert.NotEqual(t, a, c)
}

func TestSynthesize_FullBiasIsPerfect(t *testing.T) {
	paths := testPaths(30)
	entries := testEntries(paths[:10])
	opts := DefaultOptions()
	opts.AccuracyBias = 1.0

	results := Synthesize(entries, paths, opts, NewRNG(1), nil)
	m, top1, topk := Aggregate(results)

	assert.Equal(t, 10, top1)
	assert.Equal(t, 10, topk)
	assert.InDelta(t, 1.0, m.Top1Accuracy, 1e-9)
	assert.InDelta(t, 1.0, m.TopKAccuracy, 1e-9)
	assert.InDelta(t, 1.0, m.MRR, 1e-9)
	assert.InDelta(t, 1.0, m.NDCGAt10, 1e-9)
	assert.InDelta(t, 1.0, m.RecallAt5, 1e-9)
	assert.InDelta(t, 0.2, m.PrecisionAt5, 1e-9)
	for _, r := range results {
		assert.Equal(t, r.ExpectedPaths[0], r.RetrievedPaths[0])
		assert.Len(t, r.RetrievedPaths, opts.TopK)
	}
}

func TestSynthesize_NoInjectionScoresZero(t *testing.T) {
	paths := testPaths(30)
	entries := testEntries(paths[:10])
	opts := DefaultOptions()
	opts.AccuracyBias = 0
	opts.WindowMass = 0

	results := Synthesize(entries, paths, opts, NewRNG(3), nil)
	m, top1, topk := Aggregate(results)

	assert.Zero(t, top1)
	assert.Zero(t, topk)
	assert.Zero(t, m.MRR)
	assert.Zero(t, m.RecallAt20)
	assert.Zero(t, m.NDCGAt10)
	for _, r := range results {
		assert.NotContains(t, r.RetrievedPaths, r.ExpectedPaths[0])
		assert.Zero(t, r.Rank)
	}
}

func TestSynthesize_WindowInjectsWithinTopK(t *testing.T) {
	paths := testPaths(40)
	entries := testEntries(paths[:20])
	opts := DefaultOptions()
	opts.AccuracyBias = 0
	opts.WindowMass = 1

	for _, r := range Synthesize(entries, paths, opts, NewRNG(11), nil) {
		assert.True(t, r.TopKHit)
		assert.GreaterOrEqual(t, r.Rank, 1)
		assert.LessOrEqual(t, r.Rank, opts.TopK)
	}
}

func TestSynthesize_SmallPoolAndSample(t *testing.T) {
	paths := testPaths(3)
	entries := testEntries(paths)
	opts := DefaultOptions()
	opts.SampleSize = 2

	var calls []int
	results := Synthesize(entries, paths, opts, NewRNG(5), func(done, total int) {
		assert.Equal(t, 2, total)
		calls = append(calls, done)
	})
	require.Len(t, results, 2)
	assert.Equal(t, []int{1, 2}, calls)
	for _, r := range results {
		assert.LessOrEqual(t, len(r.RetrievedPaths), 3)
		assert.GreaterOrEqual(t, r.LatencyMs, float64(DefaultLatencyMinMs))
		assert.LessOrEqual(t, r.LatencyMs, float64(DefaultLatencyMaxMs))
	}
}

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

func TestScoreEntry(t *testing.T) {
	r := ScoreEntry([]string{"x", "y"}, []string{"a", "x", "b", "y"}, 4)

	assert.Equal(t, 2, r.Rank)
	assert.InDelta(t, 0.5, r.ReciprocalRank, 1e-9)
	assert.False(t, r.Top1Hit)
	assert.True(t, r.TopKHit)
	assert.InDelta(t, 1.0, r.RecallAtK, 1e-9)
	assert.InDelta(t, 0.4, r.PrecisionAt5, 1e-9)

	dcg := 1/math.Log2(3) + 1/math.Log2(5)
	idcg := 1 + 1/math.Log2(3)
	assert.InDelta(t, dcg/idcg, r.NDCGAt10, 1e-9)
}

func TestScoreEntry_NoExpected(t *testing.T) {
	assert.Equal(t, datatypes.EntryResult{}, ScoreEntry(nil, []string{"a"}, 5))
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.InDelta(t, 2.5, percentile(sorted, 0.5), 1e-9)
	assert.InDelta(t, 3.85, percentile(sorted, 0.95), 1e-9)
	assert.Equal(t, 7.0, percentile([]float64{7}, 0.95))
	assert.Zero(t, percentile(nil, 0.5))
}

func TestAggregate_Empty(t *testing.T) {
	m, top1, topk := Aggregate(nil)
	assert.Equal(t, datatypes.RunMetrics{}, m)
	assert.Zero(t, top1)
	assert.Zero(t, topk)
}

// -----------------------------------------------------------------------------
// Compare
// -----------------------------------------------------------------------------

func TestCompare_FlagsRegressions(t *testing.T) {
	baseline := datatypes.EvalRun{
		RunID:          "demo-100",
		Metrics:        datatypes.RunMetrics{Top1Accuracy: 0.6, TopKAccuracy: 0.8, MRR: 0.7},
		ConfigSnapshot: map[string]any{"retrieval": map[string]any{"top_k": 10.0}},
	}
	current := datatypes.EvalRun{
		RunID:          "demo-200",
		Metrics:        datatypes.RunMetrics{Top1Accuracy: 0.5, TopKAccuracy: 0.85, MRR: 0.7},
		ConfigSnapshot: map[string]any{"retrieval": map[string]any{"top_k": 5.0}},
	}

	cmp := Compare(baseline, current, nil)

	require.Len(t, cmp.Deltas, 3)
	assert.Equal(t, MetricTop1Accuracy, cmp.Deltas[0].Metric)
	assert.InDelta(t, -10.0, cmp.Deltas[0].DeltaPoints, 1e-9)
	assert.True(t, cmp.Deltas[0].Regression)
	assert.InDelta(t, 5.0, cmp.Deltas[1].DeltaPoints, 1e-9)
	assert.False(t, cmp.Deltas[1].Regression)
	assert.False(t, cmp.Deltas[2].Regression)
	assert.Equal(t, 1, cmp.Regressions)

	require.Len(t, cmp.ConfigDiffs, 1)
	assert.Equal(t, "retrieval.top_k", cmp.ConfigDiffs[0].Key)

	assert.Contains(t, cmp.Analysis, "Top-1 accuracy: 60.0% -> 50.0% (-10.00 pp)  REGRESSION")
	assert.Contains(t, cmp.Analysis, "- retrieval.top_k: 10 -> 5")
	assert.Contains(t, cmp.Analysis, "Summary: 1 of 3 metrics regressed.")
	assert.Equal(t, cmp.Analysis, Compare(baseline, current, nil).Analysis)
}

func TestCompare_ExplicitDiffsAndNoRegression(t *testing.T) {
	run := datatypes.EvalRun{Metrics: datatypes.RunMetrics{Top1Accuracy: 0.5}}
	cmp := Compare(run, run, []datatypes.ConfigDiff{{Key: "eval.seed", Baseline: 1, Current: 2}})

	assert.Zero(t, cmp.Regressions)
	assert.Contains(t, cmp.Analysis, "(inline)")
	assert.Contains(t, cmp.Analysis, "- eval.seed: 1 -> 2")
	assert.Contains(t, cmp.Analysis, "Summary: no regressions.")
}

func TestDiffConfigs(t *testing.T) {
	diffs := DiffConfigs(
		map[string]any{"a": map[string]any{"b": 1.0, "c": []any{"x"}}, "gone": true},
		map[string]any{"a": map[string]any{"b": 1.0, "c": []any{"y"}}, "new": "v"},
	)
	keys := make([]string, 0, len(diffs))
	for _, d := range diffs {
		keys = append(keys, d.Key)
	}
	assert.Equal(t, []string{"a.c", "gone", "new"}, keys)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type recordingArchiver struct {
	runs []string
	err  error
}

func (r *recordingArchiver) Archive(ctx context.Context, run datatypes.EvalRun) error {
	r.runs = append(r.runs, run.RunID)
	return r.err
}

func newServiceFixture(t *testing.T) (*sqlite.Store, *settings.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "demo.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	chunks := make([]datatypes.Chunk, 0, 12)
	for i, p := range testPaths(12) {
		chunks = append(chunks, datatypes.Chunk{
			ChunkID: fmt.Sprintf("c%02d", i), FilePath: p, StartLine: 1, EndLine: 5, Content: "func f() {}",
		})
	}
	_, err = store.ReindexCorpus(ctx, datatypes.Snapshot{
		Corpus: datatypes.Corpus{CorpusID: "demo", Name: "demo", Path: "/src/demo"},
		Chunks: chunks,
	}, nil)
	require.NoError(t, err)

	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store, settings.NewStore(badger.NewScopeStore(db))
}

func TestService_RunSeedsStoresAndCaches(t *testing.T) {
	ctx := context.Background()
	store, cfg := newServiceFixture(t)
	archiver := &recordingArchiver{err: errors.New("bucket missing")}
	svc := NewService(store, cfg, archiver)
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }

	var progress int
	run, err := svc.Run(ctx, datatypes.RunRequest{CorpusID: "demo"}, func(done, total int) { progress = done })
	require.NoError(t, err)

	assert.Equal(t, "demo-1700000000", run.RunID)
	assert.Equal(t, 12, run.Total)
	assert.Equal(t, 12, progress)
	assert.Equal(t, DefaultTopK, run.TopK)
	assert.NotEmpty(t, run.DatasetID)
	assert.Contains(t, run.ConfigSnapshot, "retrieval")
	assert.Equal(t, []string{"demo-1700000000"}, archiver.runs)

	entries, err := store.ListDataset(ctx, "demo")
	require.NoError(t, err)
	assert.Len(t, entries, 12)

	latest, err := svc.Latest(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, run.RunID, latest.RunID)

	stored, err := store.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.Metrics, stored.Metrics)

	fresh := NewService(store, cfg, nil)
	fromStore, err := fresh.Latest(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, run.RunID, fromStore.RunID)
}

func TestService_LatestCreatesWhenNoneStored(t *testing.T) {
	store, cfg := newServiceFixture(t)
	svc := NewService(store, cfg, nil)

	var observed []string
	svc.OnRun(func(corpusID string, run datatypes.EvalRun) { observed = append(observed, corpusID) })

	run, err := svc.Latest(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, 12, run.Total)
	assert.Equal(t, []string{"demo"}, observed)
}

func TestService_RunRequestOverridesAndDeterminism(t *testing.T) {
	ctx := context.Background()
	store, cfg := newServiceFixture(t)
	svc := NewService(store, cfg, nil)

	seed := uint64(99)
	bias := 1.0
	req := datatypes.RunRequest{CorpusID: "demo", TopK: 3, Seed: &seed, AccuracyBias: &bias}

	svc.now = func() time.Time { return time.Unix(100, 0) }
	first, err := svc.Run(ctx, req, nil)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Unix(200, 0) }
	second, err := svc.Run(ctx, req, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, first.TopK)
	assert.InDelta(t, 1.0, first.Metrics.Top1Accuracy, 1e-9)
	assert.Equal(t, first.Results, second.Results)
	assert.NotEqual(t, first.RunID, second.RunID)

	cmp, err := svc.Compare(ctx, datatypes.CompareRequest{BaselineRunID: first.RunID, CurrentRunID: second.RunID})
	require.NoError(t, err)
	assert.Zero(t, cmp.Regressions)

	runs, err := svc.List(ctx, "demo", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].RunID)
}

func TestService_Errors(t *testing.T) {
	store, cfg := newServiceFixture(t)
	svc := NewService(store, cfg, nil)

	_, err := svc.Run(context.Background(), datatypes.RunRequest{}, nil)
	var verr *datatypes.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "corpus_id", verr.Field)

	_, err = svc.Get(context.Background(), "nope-1")
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))

	_, err = svc.Compare(context.Background(), datatypes.CompareRequest{CurrentRunID: "x"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "baseline_run_id", verr.Field)
}

func TestService_UnknownCorpusIsNotFound(t *testing.T) {
	ctx := context.Background()
	store, cfg := newServiceFixture(t)
	svc := NewService(store, cfg, nil)

	_, err := svc.Run(ctx, datatypes.RunRequest{CorpusID: "ghost"}, nil)
	var nf *datatypes.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "corpus", nf.Kind)
	assert.Equal(t, "ghost", nf.ID)

	_, err = svc.Latest(ctx, "ghost")
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))

	runs, err := svc.List(ctx, "ghost", 10)
	require.NoError(t, err)
	assert.Empty(t, runs, "a failed run must not be persisted")
}

func TestService_ForgetAfterDelete(t *testing.T) {
	ctx := context.Background()
	store, cfg := newServiceFixture(t)
	svc := NewService(store, cfg, nil)

	run, err := svc.Run(ctx, datatypes.RunRequest{CorpusID: "demo"}, nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteCorpus(ctx, "demo"))
	svc.Forget("demo")

	_, err = svc.Latest(ctx, "demo")
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))
	_, err = svc.Get(ctx, run.RunID)
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))
}
