// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search ranks corpus chunks against free-text queries.
//
// Ranking is delegated to the store's FTS5 index (BM25). This package owns
// query parsing and the bounds on result size.
package search

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.demo.search")

const (
	// DefaultTopK is used when the caller passes zero or less.
	DefaultTopK = 10

	// MaxTopK bounds every search.
	MaxTopK = 50
)

// ChunkSearcher is the store capability the engine needs.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, corpusID, match string, limit int) ([]datatypes.SearchMatch, error)
}

// Engine runs sparse searches.
type Engine struct {
	store ChunkSearcher
}

// NewEngine returns an Engine over store.
func NewEngine(store ChunkSearcher) *Engine {
	return &Engine{store: store}
}

// Search returns the top chunks of a corpus for query.
//
// # Description
//
// The query is reduced to an OR of quoted terms, so a chunk matching more
// terms scores higher. A query with no usable terms returns an empty slice
// and no error.
//
// # Inputs
//
//   - ctx: Context for the store call.
//   - corpusID: Corpus to search.
//   - query: Free text.
//   - topK: Result cap, clamped to [1, MaxTopK]; zero or less means DefaultTopK.
//
// # Outputs
//
//   - []datatypes.SearchMatch: Matches, best first. Never nil.
//   - error: Non-nil only if the store fails.
func (e *Engine) Search(ctx context.Context, corpusID, query string, topK int) ([]datatypes.SearchMatch, error) {
	ctx, span := tracer.Start(ctx, "search.Search")
	defer span.End()

	topK = ClampTopK(topK)
	match := BuildMatchQuery(query)
	span.SetAttributes(
		attribute.String("corpus_id", corpusID),
		attribute.Int("top_k", topK),
		attribute.String("match", match),
	)
	if match == "" {
		return []datatypes.SearchMatch{}, nil
	}

	matches, err := e.store.SearchChunks(ctx, corpusID, match, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, fmt.Errorf("sparse search in %s: %w", corpusID, err)
	}
	span.SetAttributes(attribute.Int("results", len(matches)))
	return matches, nil
}

// ClampTopK applies the default and bounds to a requested result count.
func ClampTopK(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	return min(topK, MaxTopK)
}

// Terms splits text into lowercase alphanumeric terms of two or more
// characters, dropping duplicates and keeping first-seen order.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// BuildMatchQuery turns free text into an FTS5 match expression, or ""
// when the text has no usable terms.
//
// Each term is quoted so FTS5 operators typed by users are treated as
// plain words.
func BuildMatchQuery(text string) string {
	terms := Terms(text)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}
