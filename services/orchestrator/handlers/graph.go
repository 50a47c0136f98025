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
	"net/http"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/settings"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GraphQuerier answers graph reads for one corpus.
type GraphQuerier interface {
	RankedEntities(ctx context.Context, corpusID, query string, limit int) ([]datatypes.RankedEntity, error)
	Neighbors(ctx context.Context, corpusID, entityID string, maxHops, limit int) (datatypes.Neighborhood, error)
	Stats(ctx context.Context, corpusID string) (datatypes.GraphStats, error)
}

// SettingsViewer reads the typed settings of a scope.
type SettingsViewer interface {
	View(ctx context.Context, scope string) (settings.View, error)
}

// GraphHandlers serves the /graph routes.
type GraphHandlers struct {
	graph    GraphQuerier
	settings SettingsViewer
}

// NewGraphHandlers creates GraphHandlers. Missing max_hops and limit
// parameters fall back to the corpus' graph settings.
func NewGraphHandlers(graph GraphQuerier, settings SettingsViewer) *GraphHandlers {
	return &GraphHandlers{graph: graph, settings: settings}
}

// Entities handles GET /graph/:corpusId/entities?q=&limit=.
func (h *GraphHandlers) Entities(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleGraphEntities")
	defer span.End()

	corpusID := c.Param("corpusId")
	entities, err := h.graph.RankedEntities(ctx, corpusID, c.Query("q"), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"corpus_id": corpusID, "entities": entities})
}

// Neighbors handles GET /graph/:corpusId/entity/:entityId/neighbors.
func (h *GraphHandlers) Neighbors(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleGraphNeighbors")
	defer span.End()

	corpusID, entityID := c.Param("corpusId"), c.Param("entityId")
	span.SetAttributes(attribute.String("corpus_id", corpusID), attribute.String("entity_id", entityID))

	view, err := h.settings.View(ctx, corpusID)
	if err != nil {
		respondError(c, span, err)
		return
	}
	maxHops := queryInt(c, "max_hops", view.Graph.MaxHops)
	limit := queryInt(c, "limit", view.Graph.NeighborLimit)

	hood, err := h.graph.Neighbors(ctx, corpusID, entityID, maxHops, limit)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, hood)
}

// Stats handles GET /graph/:corpusId/stats.
func (h *GraphHandlers) Stats(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleGraphStats")
	defer span.End()

	stats, err := h.graph.Stats(ctx, c.Param("corpusId"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
