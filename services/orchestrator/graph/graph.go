// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph answers neighborhood and ranking queries over a corpus's
// knowledge graph.
//
// A Graph is built in memory from entity and edge slices, so every query is
// testable without a database. Edges are treated as undirected for
// traversal and degree.
package graph

import (
	"context"
	"slices"
	"strings"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
)

// Traversal and listing bounds.
const (
	DefaultMaxHops = 2
	MinMaxHops     = 1
	MaxMaxHops     = 5

	DefaultEdgeLimit = 200
	MinEdgeLimit     = 10
	MaxEdgeLimit     = 2000

	DefaultEntityLimit = 50
	MaxEntityLimit     = 500

	// contextCheckInterval is how many dequeued nodes pass between ctx checks.
	contextCheckInterval = 100
)

// ClampHops applies the default and bounds to a hop count.
func ClampHops(n int) int {
	if n <= 0 {
		return DefaultMaxHops
	}
	return min(max(n, MinMaxHops), MaxMaxHops)
}

// ClampEdgeLimit applies the default and bounds to a neighborhood edge limit.
func ClampEdgeLimit(n int) int {
	if n <= 0 {
		return DefaultEdgeLimit
	}
	return min(max(n, MinEdgeLimit), MaxEdgeLimit)
}

// ClampEntityLimit applies the default and bounds to an entity listing limit.
func ClampEntityLimit(n int) int {
	if n <= 0 {
		return DefaultEntityLimit
	}
	return min(n, MaxEntityLimit)
}

// Graph is an immutable undirected view of one corpus graph.
type Graph struct {
	corpusID string
	entities map[string]datatypes.Entity
	order    []string
	edges    []datatypes.Edge
	adjacent map[string][]int
}

// NewGraph indexes entities and edges.
//
// Edges whose endpoints are not among entities are dropped, so every edge
// a query returns can be paired with both of its entities.
func NewGraph(corpusID string, entities []datatypes.Entity, edges []datatypes.Edge) *Graph {
	g := &Graph{
		corpusID: corpusID,
		entities: make(map[string]datatypes.Entity, len(entities)),
		order:    make([]string, 0, len(entities)),
		adjacent: make(map[string][]int, len(entities)),
	}
	for _, e := range entities {
		if _, dup := g.entities[e.EntityID]; dup {
			continue
		}
		g.entities[e.EntityID] = e
		g.order = append(g.order, e.EntityID)
	}
	for _, e := range edges {
		_, okSrc := g.entities[e.SourceID]
		_, okDst := g.entities[e.TargetID]
		if !okSrc || !okDst {
			continue
		}
		idx := len(g.edges)
		g.edges = append(g.edges, e)
		g.adjacent[e.SourceID] = append(g.adjacent[e.SourceID], idx)
		if e.TargetID != e.SourceID {
			g.adjacent[e.TargetID] = append(g.adjacent[e.TargetID], idx)
		}
	}
	return g
}

// Degree returns the number of edges touching an entity in either direction.
func (g *Graph) Degree(entityID string) int {
	return len(g.adjacent[entityID])
}

// RankedEntities lists entities by degree.
//
// # Description
//
// An empty query lists the whole graph, so the first rows are the most
// connected entities. A non-empty query keeps entities whose name or file
// path contains it (case-insensitive). Order is degree descending, then
// name ascending, then entity id ascending, which makes the order total and
// repeatable for a fixed graph.
//
// # Inputs
//
//   - query: Optional substring filter.
//   - limit: Row cap, clamped with ClampEntityLimit.
func (g *Graph) RankedEntities(query string, limit int) []datatypes.RankedEntity {
	limit = ClampEntityLimit(limit)
	needle := strings.ToLower(strings.TrimSpace(query))

	ranked := make([]datatypes.RankedEntity, 0, len(g.order))
	for _, id := range g.order {
		e := g.entities[id]
		if needle != "" &&
			!strings.Contains(strings.ToLower(e.Name), needle) &&
			!strings.Contains(strings.ToLower(e.FilePath), needle) {
			continue
		}
		ranked = append(ranked, datatypes.RankedEntity{Entity: e, Degree: g.Degree(id)})
	}

	slices.SortFunc(ranked, func(a, b datatypes.RankedEntity) int {
		if a.Degree != b.Degree {
			return b.Degree - a.Degree
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.EntityID, b.EntityID)
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Neighbors returns the bounded-hop neighborhood of a seed entity.
//
// # Description
//
// Iterative breadth-first walk over undirected edges. Each queued branch
// carries the path that reached it and never steps back onto a node of that
// path. A node is expanded once, at the shallowest depth it is reached;
// later arrivals still contribute the edge they came over but do not fan
// out again, which keeps the walk finite and polynomial on dense cyclic
// graphs.
//
// Edges are returned in discovery order, de-duplicated, and capped at
// limit (Truncated is set when the cap cut the walk short). Entities are
// the seed followed by every endpoint of the returned edges.
//
// # Inputs
//
//   - ctx: Checked every contextCheckInterval nodes. Cancellation returns the
//     partial result with Truncated set.
//   - entityID: Seed entity.
//   - maxHops: Clamped with ClampHops.
//   - limit: Clamped with ClampEdgeLimit.
//
// # Outputs
//
//   - datatypes.Neighborhood: The subgraph. An isolated seed yields itself
//     and no relationships.
//   - error: *datatypes.NotFoundError if the seed is absent.
func (g *Graph) Neighbors(ctx context.Context, entityID string, maxHops, limit int) (datatypes.Neighborhood, error) {
	maxHops = ClampHops(maxHops)
	limit = ClampEdgeLimit(limit)

	seed, ok := g.entities[entityID]
	if !ok {
		return datatypes.Neighborhood{}, datatypes.NewNotFound("entity", entityID)
	}

	result := datatypes.Neighborhood{
		CorpusID:      g.corpusID,
		Seed:          entityID,
		MaxHops:       maxHops,
		Limit:         limit,
		Entities:      []datatypes.Entity{seed},
		Relationships: []datatypes.Edge{},
	}

	type queueItem struct {
		nodeID string
		depth  int
		path   []string
	}

	seenEntity := map[string]bool{entityID: true}
	seenEdge := make(map[int]bool)
	enqueued := map[string]bool{entityID: true}
	queue := []queueItem{{nodeID: entityID, depth: 0, path: []string{entityID}}}
	checkCounter := 0

walk:
	for len(queue) > 0 {
		checkCounter++
		if checkCounter%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				result.Truncated = true
				break
			}
		}

		item := queue[0]
		queue = queue[1:]
		if item.depth >= maxHops {
			continue
		}

		for _, idx := range g.adjacent[item.nodeID] {
			edge := g.edges[idx]
			next := edge.TargetID
			if next == item.nodeID {
				next = edge.SourceID
			}
			if slices.Contains(item.path, next) && next != item.nodeID {
				continue
			}

			if !seenEdge[idx] {
				if len(result.Relationships) >= limit {
					result.Truncated = true
					break walk
				}
				seenEdge[idx] = true
				result.Relationships = append(result.Relationships, edge)
				for _, id := range []string{edge.SourceID, edge.TargetID} {
					if !seenEntity[id] {
						seenEntity[id] = true
						result.Entities = append(result.Entities, g.entities[id])
					}
				}
			}

			if enqueued[next] {
				continue
			}
			enqueued[next] = true
			path := make([]string, len(item.path), len(item.path)+1)
			copy(path, item.path)
			queue = append(queue, queueItem{nodeID: next, depth: item.depth + 1, path: append(path, next)})
		}
	}

	return result, nil
}

// Stats returns totals and per-type counts.
func (g *Graph) Stats() datatypes.GraphStats {
	stats := datatypes.GraphStats{
		CorpusID:          g.corpusID,
		TotalEntities:     len(g.entities),
		TotalRelations:    len(g.edges),
		EntityTypes:       make(map[string]int),
		RelationshipTypes: make(map[string]int),
	}
	for _, e := range g.entities {
		stats.EntityTypes[e.EntityType]++
	}
	for _, e := range g.edges {
		stats.RelationshipTypes[e.RelationType]++
	}
	return stats
}
