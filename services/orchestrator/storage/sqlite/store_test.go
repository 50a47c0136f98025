// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DefaultConfig(filepath.Join(t.TempDir(), "demo.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func snapshotFor(corpusID string, prefix string) datatypes.Snapshot {
	return datatypes.Snapshot{
		Corpus: datatypes.Corpus{CorpusID: corpusID, Name: corpusID, Path: "/src/" + corpusID},
		Chunks: []datatypes.Chunk{
			{ChunkID: prefix + "-1", FilePath: "a.py", StartLine: 1, EndLine: 10, Language: "python", Content: "def login(user): return token"},
			{ChunkID: prefix + "-2", FilePath: "b.py", StartLine: 1, EndLine: 5, Language: "python", Content: "class Cache: pass"},
			{ChunkID: prefix + "-3", FilePath: "c.py", StartLine: 3, EndLine: 9, Language: "python", Content: "token token refresh"},
		},
		Entities: []datatypes.Entity{
			{EntityID: prefix + "-mod-a", Name: "a", EntityType: "module", FilePath: "a.py"},
			{EntityID: prefix + "-mod-b", Name: "b", EntityType: "module", FilePath: "b.py"},
		},
		Edges: []datatypes.Edge{
			{SourceID: prefix + "-mod-a", TargetID: prefix + "-mod-b", RelationType: "imports"},
		},
	}
}

// =============================================================================
// Schema Tests
// =============================================================================

func TestEnsureSchema_IdempotentKeepsData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ReindexCorpus(ctx, snapshotFor("demo-1", "d1"), nil)
	require.NoError(t, err)

	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx))

	chunks, entities, edges, err := s.CorpusCounts(ctx, "demo-1")
	require.NoError(t, err)
	assert.Equal(t, 3, chunks)
	assert.Equal(t, 2, entities)
	assert.Equal(t, 1, edges)
}

// =============================================================================
// Corpus Tests
// =============================================================================

func TestListCorpora_OrderedByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"zeta", "alpha", "mid"} {
		_, err := s.ReindexCorpus(ctx, datatypes.Snapshot{Corpus: datatypes.Corpus{CorpusID: id}}, nil)
		require.NoError(t, err)
	}

	corpora, err := s.ListCorpora(ctx)
	require.NoError(t, err)
	require.Len(t, corpora, 3)
	assert.Equal(t, "alpha", corpora[0].CorpusID)
	assert.Equal(t, "mid", corpora[1].CorpusID)
	assert.Equal(t, "zeta", corpora[2].CorpusID)
	assert.NotNil(t, corpora[0].LastIndexed)
}

func TestGetCorpus_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCorpus(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))

	var nf *datatypes.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing", nf.ID)
}

func TestReindexCorpus_ReplacesSnapshotExactly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ReindexCorpus(ctx, snapshotFor("demo-1", "old"), nil)
	require.NoError(t, err)
	_, err = s.ReindexCorpus(ctx, snapshotFor("demo-2", "other"), nil)
	require.NoError(t, err)

	first, err := s.GetCorpus(ctx, "demo-1")
	require.NoError(t, err)

	next := datatypes.Snapshot{
		Corpus: datatypes.Corpus{CorpusID: "demo-1", Name: "renamed"},
		Chunks: []datatypes.Chunk{
			{ChunkID: "new-1", FilePath: "z.go", Content: "package z"},
		},
		Entities: []datatypes.Entity{
			{EntityID: "new-ent", Name: "z", EntityType: "module"},
		},
	}
	res, err := s.ReindexCorpus(ctx, next, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, res.Entities)
	assert.Equal(t, 0, res.Edges)

	chunks, err := s.Chunks(ctx, "demo-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new-1", chunks[0].ChunkID)

	entities, err := s.Entities(ctx, "demo-1")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "new-ent", entities[0].EntityID)

	edges, err := s.Edges(ctx, "demo-1")
	require.NoError(t, err)
	assert.Empty(t, edges)

	// The other corpus is untouched.
	otherChunks, otherEntities, otherEdges, err := s.CorpusCounts(ctx, "demo-2")
	require.NoError(t, err)
	assert.Equal(t, 3, otherChunks)
	assert.Equal(t, 2, otherEntities)
	assert.Equal(t, 1, otherEdges)

	updated, err := s.GetCorpus(ctx, "demo-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)
	require.NotNil(t, updated.LastIndexed)
	assert.False(t, updated.LastIndexed.Before(*first.LastIndexed))
}

func TestReindexCorpus_FailureRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ReindexCorpus(ctx, snapshotFor("demo-1", "keep"), nil)
	require.NoError(t, err)

	broken := snapshotFor("demo-1", "dup")
	broken.Chunks = append(broken.Chunks, datatypes.Chunk{ChunkID: "dup-1", FilePath: "x.py", Content: "again"})

	_, err = s.ReindexCorpus(ctx, broken, nil)
	require.Error(t, err)

	chunks, err := s.Chunks(ctx, "demo-1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "keep-1", chunks[0].ChunkID)
}

func TestReindexCorpus_RequiresCorpusID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReindexCorpus(context.Background(), datatypes.Snapshot{}, nil)
	assert.True(t, errors.Is(err, datatypes.ErrValidation))
}

func TestDeleteCorpus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ReindexCorpus(ctx, snapshotFor("demo-1", "d1"), nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteCorpus(ctx, "demo-1"))

	_, err = s.GetCorpus(ctx, "demo-1")
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))

	chunks, entities, edges, err := s.CorpusCounts(ctx, "demo-1")
	require.NoError(t, err)
	assert.Zero(t, chunks+entities+edges)

	assert.True(t, errors.Is(s.DeleteCorpus(ctx, "demo-1"), datatypes.ErrNotFound))
}

// =============================================================================
// Edge Merge Tests
// =============================================================================

func TestMergeEdges_AdditiveAndKeepFirst(t *testing.T) {
	edges := []datatypes.Edge{
		{SourceID: "a", TargetID: "b", RelationType: "co_occurs", Weight: 1,
			Properties: map[string]any{"chunk_ids": []any{"c1", "c2"}}},
		{SourceID: "a", TargetID: "b", RelationType: "contains", Weight: 1,
			Properties: map[string]any{"note": "first"}},
		{SourceID: "a", TargetID: "b", RelationType: "co_occurs", Weight: 2,
			Properties: map[string]any{"chunk_ids": []any{"c2", "c3"}}},
		{SourceID: "a", TargetID: "b", RelationType: "contains", Weight: 5,
			Properties: map[string]any{"note": "second"}},
	}

	merged := MergeEdges(edges, nil)
	require.Len(t, merged, 2)

	assert.Equal(t, "co_occurs", merged[0].RelationType)
	assert.Equal(t, 3.0, merged[0].Weight)
	assert.Equal(t, []any{"c1", "c2", "c3"}, merged[0].Properties["chunk_ids"])

	assert.Equal(t, "contains", merged[1].RelationType)
	assert.Equal(t, 1.0, merged[1].Weight)
	assert.Equal(t, "first", merged[1].Properties["note"])
}

func TestMergeEdges_CapsPropertyLists(t *testing.T) {
	var edges []datatypes.Edge
	for i := 0; i < MaxEdgePropertyList+10; i++ {
		edges = append(edges, datatypes.Edge{
			SourceID: "x", TargetID: "y", RelationType: "co_occurs",
			Properties: map[string]any{"chunk_ids": []string{time.Duration(i).String()}},
		})
	}

	merged := MergeEdges(edges, nil)
	require.Len(t, merged, 1)
	assert.Len(t, merged[0].Properties["chunk_ids"], MaxEdgePropertyList)
	assert.Equal(t, float64(MaxEdgePropertyList+10), merged[0].Weight)
}

func TestMergePolicies_UnknownRelationKeepsFirst(t *testing.T) {
	policies := MergePolicies{"mentions": MergeAdditive}
	assert.Equal(t, MergeAdditive, policies.For("mentions"))
	assert.Equal(t, MergeKeepFirst, policies.For("co_occurs"))
	assert.Equal(t, "keep_first", MergeKeepFirst.String())
}

func TestReindexCorpus_MergesDuplicateEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := snapshotFor("demo-1", "d1")
	snap.Edges = append(snap.Edges,
		datatypes.Edge{SourceID: "d1-mod-a", TargetID: "d1-mod-b", RelationType: "co_occurs", Weight: 1},
		datatypes.Edge{SourceID: "d1-mod-a", TargetID: "d1-mod-b", RelationType: "co_occurs", Weight: 1},
		datatypes.Edge{SourceID: "d1-mod-a", TargetID: "d1-mod-b", RelationType: "imports", Weight: 9},
	)

	res, err := s.ReindexCorpus(ctx, snap, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Edges)

	edges, err := s.Edges(ctx, "demo-1")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "imports", edges[0].RelationType)
	assert.Equal(t, 1.0, edges[0].Weight)
	assert.Equal(t, 2.0, edges[1].Weight)
}

// =============================================================================
// Search Tests
// =============================================================================

func TestSearchChunks_RanksAndScopes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ReindexCorpus(ctx, snapshotFor("demo-1", "d1"), nil)
	require.NoError(t, err)
	_, err = s.ReindexCorpus(ctx, snapshotFor("demo-2", "d2"), nil)
	require.NoError(t, err)

	matches, err := s.SearchChunks(ctx, "demo-1", `"token"`, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// c.py mentions token twice in a shorter chunk.
	assert.Equal(t, "d1-3", matches[0].ChunkID)
	assert.Equal(t, "d1-1", matches[1].ChunkID)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	for _, m := range matches {
		assert.Equal(t, "sparse", m.Source)
		assert.Equal(t, "demo-1", m.Metadata["corpus_id"])
	}
}

func TestSearchChunks_NoMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ReindexCorpus(ctx, snapshotFor("demo-1", "d1"), nil)
	require.NoError(t, err)

	matches, err := s.SearchChunks(ctx, "demo-1", `"auth"`, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDistinctFilePaths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := snapshotFor("demo-1", "d1")
	snap.Chunks = append(snap.Chunks, datatypes.Chunk{ChunkID: "d1-4", FilePath: "a.py", Content: "more"})
	_, err := s.ReindexCorpus(ctx, snap, nil)
	require.NoError(t, err)

	paths, err := s.DistinctFilePaths(ctx, "demo-1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.py", "c.py"}, paths)

	paths, err = s.DistinctFilePaths(ctx, "demo-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.py"}, paths)
}

// =============================================================================
// Dataset Tests
// =============================================================================

func TestDataset_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.AddDatasetEntries(ctx, "demo-1", []datatypes.DatasetEntry{
		{EntryID: "e1", Question: "Where is login?", ExpectedPaths: []string{"a.py"}},
		{EntryID: "e2", Question: "Where is cache?", ExpectedPaths: []string{"b.py"}, Tags: []string{"manual"}},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A seeding insert is skipped once entries exist.
	n, err = s.AddDatasetEntries(ctx, "demo-1", []datatypes.DatasetEntry{
		{EntryID: "e3", Question: "ignored"},
	}, true)
	require.NoError(t, err)
	assert.Zero(t, n)

	entries, err := s.ListDataset(ctx, "demo-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].EntryID)
	assert.Equal(t, []string{"manual"}, entries[1].Tags)
	assert.Equal(t, []string{}, entries[0].Tags)

	e := entries[0]
	e.Question = "Where is the login flow?"
	require.NoError(t, s.UpdateDatasetEntry(ctx, e))

	got, err := s.GetDatasetEntry(ctx, "demo-1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "Where is the login flow?", got.Question)

	require.NoError(t, s.DeleteDatasetEntry(ctx, "demo-1", "e1"))
	assert.True(t, errors.Is(s.DeleteDatasetEntry(ctx, "demo-1", "e1"), datatypes.ErrNotFound))

	count, err := s.CountDataset(ctx, "demo-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRuns_UpsertAndLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	older := datatypes.EvalRun{
		RunID: "demo-1-1", CorpusID: "demo-1", Total: 2,
		Metrics:   datatypes.RunMetrics{Top1Accuracy: 0.5, MRR: 0.6},
		StartedAt: base, CompletedAt: base,
	}
	newer := older
	newer.RunID = "demo-1-2"
	newer.CompletedAt = base.Add(time.Minute)
	newer.Metrics.Top1Accuracy = 0.75

	require.NoError(t, s.UpsertRun(ctx, older))
	require.NoError(t, s.UpsertRun(ctx, newer))

	latest, err := s.LatestRun(ctx, "demo-1")
	require.NoError(t, err)
	assert.Equal(t, "demo-1-2", latest.RunID)

	// Upsert by id replaces the stored row.
	newer.Metrics.Top1Accuracy = 1.0
	require.NoError(t, s.UpsertRun(ctx, newer))

	runs, err := s.ListRuns(ctx, "demo-1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "demo-1-2", runs[0].RunID)
	assert.Equal(t, 1.0, runs[0].Top1Accuracy)

	_, err = s.GetRun(ctx, "nope")
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))

	_, err = s.LatestRun(ctx, "demo-9")
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))
}
