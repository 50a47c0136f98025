// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fixtures
// =============================================================================

func entity(id, name, typ string) datatypes.Entity {
	return datatypes.Entity{EntityID: id, Name: name, EntityType: typ, FilePath: name + ".py"}
}

func edge(src, dst, rel string) datatypes.Edge {
	return datatypes.Edge{SourceID: src, TargetID: dst, RelationType: rel, Weight: 1}
}

// chainGraph is a -> b -> c -> d -> e plus an isolated node z.
func chainGraph() *Graph {
	return NewGraph("demo-1",
		[]datatypes.Entity{
			entity("a", "alpha", "module"),
			entity("b", "beta", "module"),
			entity("c", "gamma", "symbol"),
			entity("d", "delta", "symbol"),
			entity("e", "epsilon", "concept"),
			entity("z", "zeta", "concept"),
		},
		[]datatypes.Edge{
			edge("a", "b", "imports"),
			edge("b", "c", "defines"),
			edge("c", "d", "references"),
			edge("d", "e", "co_occurs"),
		})
}

// completeGraph connects every pair of n nodes.
func completeGraph(n int) *Graph {
	var entities []datatypes.Entity
	var edges []datatypes.Edge
	for i := 0; i < n; i++ {
		entities = append(entities, entity(fmt.Sprintf("n%02d", i), fmt.Sprintf("node%02d", i), "symbol"))
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			edges = append(edges, edge(fmt.Sprintf("n%02d", i), fmt.Sprintf("n%02d", j), "co_occurs"))
		}
	}
	return NewGraph("dense", entities, edges)
}

func assertClosed(t *testing.T, n datatypes.Neighborhood) {
	t.Helper()
	ids := make(map[string]bool, len(n.Entities))
	for _, e := range n.Entities {
		assert.False(t, ids[e.EntityID], "duplicate entity %s", e.EntityID)
		ids[e.EntityID] = true
	}
	for _, e := range n.Relationships {
		assert.True(t, ids[e.SourceID], "missing source %s", e.SourceID)
		assert.True(t, ids[e.TargetID], "missing target %s", e.TargetID)
	}
}

// =============================================================================
// Neighbors
// =============================================================================

func TestNeighbors_HopBound(t *testing.T) {
	g := chainGraph()

	n, err := g.Neighbors(context.Background(), "c", 1, 50)
	require.NoError(t, err)
	assertClosed(t, n)
	assert.Len(t, n.Relationships, 2)
	assert.Equal(t, "c", n.Entities[0].EntityID)
	assert.Len(t, n.Entities, 3)

	n, err = g.Neighbors(context.Background(), "a", 2, 50)
	require.NoError(t, err)
	assertClosed(t, n)
	require.Len(t, n.Relationships, 2)
	assert.Equal(t, "imports", n.Relationships[0].RelationType)
	assert.Equal(t, "defines", n.Relationships[1].RelationType)
	assert.False(t, n.Truncated)
}

func TestNeighbors_UndirectedWalk(t *testing.T) {
	g := chainGraph()

	n, err := g.Neighbors(context.Background(), "e", 5, 50)
	require.NoError(t, err)
	assertClosed(t, n)
	assert.Len(t, n.Relationships, 4)
	assert.Len(t, n.Entities, 5)
}

func TestNeighbors_MissingSeed(t *testing.T) {
	_, err := chainGraph().Neighbors(context.Background(), "missing-entity", 2, 50)
	require.Error(t, err)
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))

	var nf *datatypes.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "entity", nf.Kind)
	assert.Equal(t, "missing-entity", nf.ID)
}

func TestNeighbors_IsolatedSeed(t *testing.T) {
	n, err := chainGraph().Neighbors(context.Background(), "z", 3, 50)
	require.NoError(t, err)
	require.Len(t, n.Entities, 1)
	assert.Equal(t, "z", n.Entities[0].EntityID)
	assert.NotNil(t, n.Relationships)
	assert.Empty(t, n.Relationships)
}

func TestNeighbors_CompleteGraphTerminates(t *testing.T) {
	g := completeGraph(30)

	done := make(chan datatypes.Neighborhood, 1)
	go func() {
		n, err := g.Neighbors(context.Background(), "n00", MaxMaxHops, MaxEdgeLimit)
		assert.NoError(t, err)
		done <- n
	}()

	select {
	case n := <-done:
		assertClosed(t, n)
		// Every edge of K30 is reachable within two hops.
		assert.Len(t, n.Relationships, 30*29/2)
		assert.Len(t, n.Entities, 30)
		assert.False(t, n.Truncated)
	case <-time.After(10 * time.Second):
		t.Fatal("neighbor walk did not terminate")
	}
}

func TestNeighbors_EdgeLimitTruncates(t *testing.T) {
	n, err := completeGraph(20).Neighbors(context.Background(), "n00", 2, 10)
	require.NoError(t, err)
	assertClosed(t, n)
	assert.Len(t, n.Relationships, 10)
	assert.True(t, n.Truncated)
}

func TestNeighbors_SelfLoopAndCycle(t *testing.T) {
	g := NewGraph("cyc",
		[]datatypes.Entity{entity("a", "a", "x"), entity("b", "b", "x"), entity("c", "c", "x")},
		[]datatypes.Edge{
			edge("a", "a", "references"),
			edge("a", "b", "references"),
			edge("b", "c", "references"),
			edge("c", "a", "references"),
		})

	n, err := g.Neighbors(context.Background(), "a", 5, 50)
	require.NoError(t, err)
	assertClosed(t, n)
	assert.Len(t, n.Relationships, 4)
	assert.Len(t, n.Entities, 3)
}

func TestNeighbors_DanglingEdgesDropped(t *testing.T) {
	g := NewGraph("d",
		[]datatypes.Entity{entity("a", "a", "x")},
		[]datatypes.Edge{edge("a", "ghost", "imports")})

	n, err := g.Neighbors(context.Background(), "a", 2, 50)
	require.NoError(t, err)
	assert.Empty(t, n.Relationships)
	assert.Equal(t, 0, g.Degree("a"))
}

func TestClamps(t *testing.T) {
	assert.Equal(t, DefaultMaxHops, ClampHops(0))
	assert.Equal(t, MaxMaxHops, ClampHops(99))
	assert.Equal(t, 3, ClampHops(3))

	assert.Equal(t, DefaultEdgeLimit, ClampEdgeLimit(0))
	assert.Equal(t, MinEdgeLimit, ClampEdgeLimit(2))
	assert.Equal(t, MaxEdgeLimit, ClampEdgeLimit(1_000_000))

	assert.Equal(t, DefaultEntityLimit, ClampEntityLimit(-1))
	assert.Equal(t, MaxEntityLimit, ClampEntityLimit(10_000))
}

// =============================================================================
// Ranking and stats
// =============================================================================

func TestRankedEntities_DegreeThenName(t *testing.T) {
	g := chainGraph()

	ranked := g.RankedEntities("", 0)
	require.Len(t, ranked, 6)

	var got []string
	for _, r := range ranked {
		got = append(got, r.EntityID)
	}
	// b, c, d have degree 2 (sorted by name: beta, delta, gamma),
	// a and e degree 1 (alpha, epsilon), z degree 0.
	assert.Equal(t, []string{"b", "d", "c", "a", "e", "z"}, got)
	assert.Equal(t, 2, ranked[0].Degree)
	assert.Equal(t, 0, ranked[5].Degree)

	for i := 0; i < 5; i++ {
		assert.Equal(t, ranked, g.RankedEntities("", 0))
	}
}

func TestRankedEntities_FilterAndLimit(t *testing.T) {
	g := chainGraph()

	ranked := g.RankedEntities("ETA", 0)
	var got []string
	for _, r := range ranked {
		got = append(got, r.Name)
	}
	assert.Equal(t, []string{"beta", "zeta"}, got)

	assert.Len(t, g.RankedEntities("", 2), 2)
	assert.Len(t, g.RankedEntities("gamma.py", 0), 1)
}

func TestStats(t *testing.T) {
	stats := chainGraph().Stats()

	assert.Equal(t, "demo-1", stats.CorpusID)
	assert.Equal(t, 6, stats.TotalEntities)
	assert.Equal(t, 4, stats.TotalRelations)
	assert.Equal(t, 2, stats.EntityTypes["module"])
	assert.Equal(t, 2, stats.EntityTypes["concept"])
	assert.Equal(t, 1, stats.RelationshipTypes["co_occurs"])
}

// =============================================================================
// Engine
// =============================================================================

type memSource struct {
	corpora  []string
	entities []datatypes.Entity
	edges    []datatypes.Edge
	err      error
}

func (m *memSource) GetCorpus(_ context.Context, corpusID string) (datatypes.Corpus, error) {
	for _, id := range m.corpora {
		if id == corpusID {
			return datatypes.Corpus{CorpusID: id}, nil
		}
	}
	return datatypes.Corpus{}, datatypes.NewNotFound("corpus", corpusID)
}

func (m *memSource) Entities(context.Context, string) ([]datatypes.Entity, error) {
	return m.entities, m.err
}

func (m *memSource) Edges(context.Context, string) ([]datatypes.Edge, error) {
	return m.edges, m.err
}

func TestEngine(t *testing.T) {
	src := &memSource{
		corpora:  []string{"demo-1"},
		entities: []datatypes.Entity{entity("a", "a", "module"), entity("b", "b", "module")},
		edges:    []datatypes.Edge{edge("a", "b", "imports")},
	}
	engine := NewEngine(src)
	ctx := context.Background()

	n, err := engine.Neighbors(ctx, "demo-1", "a", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxHops, n.MaxHops)
	assert.Equal(t, DefaultEdgeLimit, n.Limit)
	assert.Len(t, n.Relationships, 1)

	ranked, err := engine.RankedEntities(ctx, "demo-1", "", 10)
	require.NoError(t, err)
	assert.Len(t, ranked, 2)

	stats, err := engine.Stats(ctx, "demo-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRelations)

	src.err = errors.New("db down")
	_, err = engine.Neighbors(ctx, "demo-1", "a", 2, 50)
	require.Error(t, err)
	assert.False(t, errors.Is(err, datatypes.ErrNotFound))
}

func TestEngine_UnknownCorpus(t *testing.T) {
	engine := NewEngine(&memSource{corpora: []string{"demo-1"}})
	ctx := context.Background()

	_, err := engine.RankedEntities(ctx, "ghost", "", 10)
	var nf *datatypes.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "corpus", nf.Kind)
	assert.Equal(t, "ghost", nf.ID)

	_, err = engine.Stats(ctx, "ghost")
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))

	_, err = engine.Neighbors(ctx, "ghost", "a", 2, 50)
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))
}
