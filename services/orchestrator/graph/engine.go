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
	"fmt"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("aleutian.demo.graph")

// Source loads the raw graph rows of a corpus.
type Source interface {
	GetCorpus(ctx context.Context, corpusID string) (datatypes.Corpus, error)
	Entities(ctx context.Context, corpusID string) ([]datatypes.Entity, error)
	Edges(ctx context.Context, corpusID string) ([]datatypes.Edge, error)
}

// Engine serves graph queries by loading the corpus graph per request.
type Engine struct {
	source Source
}

// NewEngine returns an Engine reading from source.
func NewEngine(source Source) *Engine {
	return &Engine{source: source}
}

// Load builds the in-memory graph of a corpus. An unknown corpus is a
// *datatypes.NotFoundError.
func (e *Engine) Load(ctx context.Context, corpusID string) (*Graph, error) {
	if _, err := e.source.GetCorpus(ctx, corpusID); err != nil {
		return nil, err
	}
	entities, err := e.source.Entities(ctx, corpusID)
	if err != nil {
		return nil, fmt.Errorf("loading entities: %w", err)
	}
	edges, err := e.source.Edges(ctx, corpusID)
	if err != nil {
		return nil, fmt.Errorf("loading edges: %w", err)
	}
	return NewGraph(corpusID, entities, edges), nil
}

// RankedEntities lists a corpus's entities by degree. See Graph.RankedEntities.
func (e *Engine) RankedEntities(ctx context.Context, corpusID, query string, limit int) ([]datatypes.RankedEntity, error) {
	ctx, span := tracer.Start(ctx, "graph.RankedEntities",
		trace.WithAttributes(attribute.String("corpus_id", corpusID)))
	defer span.End()

	g, err := e.Load(ctx, corpusID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, err
	}
	return g.RankedEntities(query, limit), nil
}

// Neighbors returns the neighborhood of an entity. See Graph.Neighbors.
func (e *Engine) Neighbors(ctx context.Context, corpusID, entityID string, maxHops, limit int) (datatypes.Neighborhood, error) {
	ctx, span := tracer.Start(ctx, "graph.Neighbors",
		trace.WithAttributes(
			attribute.String("corpus_id", corpusID),
			attribute.String("entity_id", entityID),
			attribute.Int("max_hops", maxHops),
		))
	defer span.End()

	g, err := e.Load(ctx, corpusID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return datatypes.Neighborhood{}, err
	}
	n, err := g.Neighbors(ctx, entityID, maxHops, limit)
	if err != nil {
		return datatypes.Neighborhood{}, err
	}
	span.SetAttributes(
		attribute.Int("relationships", len(n.Relationships)),
		attribute.Bool("truncated", n.Truncated),
	)
	return n, nil
}

// Stats returns the type breakdown of a corpus graph.
func (e *Engine) Stats(ctx context.Context, corpusID string) (datatypes.GraphStats, error) {
	g, err := e.Load(ctx, corpusID)
	if err != nil {
		return datatypes.GraphStats{}, err
	}
	return g.Stats(), nil
}
