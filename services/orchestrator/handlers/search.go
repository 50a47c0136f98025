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
	"math"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/search"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// Searcher runs a sparse search over one corpus.
type Searcher interface {
	Search(ctx context.Context, corpusID, query string, topK int) ([]datatypes.SearchMatch, error)
}

// HandleSearch handles POST /search.
//
// A query without usable terms, or a corpus without matching chunks,
// yields an empty match list rather than an error.
func HandleSearch(searcher Searcher, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleSearch")
		defer span.End()

		var req datatypes.SearchRequest
		if !bindJSON(c, span, &req) {
			return
		}
		if err := req.Validate(); err != nil {
			respondError(c, span, err)
			return
		}
		topK := search.ClampTopK(req.TopK)
		span.SetAttributes(attribute.String("corpus_id", req.CorpusID), attribute.Int("top_k", topK))

		start := time.Now()
		matches, err := searcher.Search(ctx, req.CorpusID, req.Query, topK)
		if err != nil {
			respondError(c, span, err)
			return
		}
		latency := float64(time.Since(start).Microseconds()) / 1000
		metrics.RecordSearch(len(matches))

		c.JSON(http.StatusOK, datatypes.SearchResponse{
			Query:     req.Query,
			Matches:   matches,
			LatencyMs: math.Round(latency*100) / 100,
			Debug: map[string]any{
				"corpus_id":   req.CorpusID,
				"top_k":       topK,
				"terms":       search.Terms(req.Query),
				"match_query": search.BuildMatchQuery(req.Query),
				"mode":        datatypes.SourceSparse,
			},
		})
	}
}
