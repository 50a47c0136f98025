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
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/storage/sqlite"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// CorpusStore is the corpus capability of the store.
type CorpusStore interface {
	ListCorpora(ctx context.Context) ([]datatypes.Corpus, error)
	GetCorpus(ctx context.Context, corpusID string) (datatypes.Corpus, error)
	ReindexCorpus(ctx context.Context, snap datatypes.Snapshot, policies sqlite.MergePolicies) (sqlite.ReindexResult, error)
	DeleteCorpus(ctx context.Context, corpusID string) error
}

// CorpusHandlers serves the /corpora and /corpus routes.
type CorpusHandlers struct {
	store    CorpusStore
	policies sqlite.MergePolicies
	readOnly bool
	onChange func(corpusID string)
}

// NewCorpusHandlers creates CorpusHandlers. In read-only mode reindex and
// delete answer with an unsupported-operation error.
func NewCorpusHandlers(store CorpusStore, policies sqlite.MergePolicies, readOnly bool) *CorpusHandlers {
	return &CorpusHandlers{store: store, policies: policies, readOnly: readOnly, onChange: func(string) {}}
}

// OnChange installs a hook called after a corpus is reindexed or deleted.
func (h *CorpusHandlers) OnChange(fn func(corpusID string)) {
	if fn != nil {
		h.onChange = fn
	}
}

// List handles GET /corpora.
func (h *CorpusHandlers) List(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleListCorpora")
	defer span.End()

	corpora, err := h.store.ListCorpora(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"corpora": corpora})
}

// Get handles GET /corpus/:id.
func (h *CorpusHandlers) Get(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleGetCorpus")
	defer span.End()

	corpus, err := h.store.GetCorpus(ctx, c.Param("id"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, corpus)
}

// Reindex handles POST /corpus/:id/reindex with a snapshot body.
//
// An empty corpus.corpus_id in the body takes the path id; a different one
// is rejected.
func (h *CorpusHandlers) Reindex(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleReindexCorpus")
	defer span.End()

	corpusID := c.Param("id")
	span.SetAttributes(attribute.String("corpus_id", corpusID))
	if h.readOnly {
		respondError(c, span, datatypes.NewUnsupported("reindex", "the demo is read-only"))
		return
	}

	var snap datatypes.Snapshot
	if !bindJSON(c, span, &snap) {
		return
	}
	switch snap.Corpus.CorpusID {
	case "":
		snap.Corpus.CorpusID = corpusID
	case corpusID:
	default:
		respondError(c, span, datatypes.NewValidation("corpus.corpus_id", "does not match the path"))
		return
	}
	if err := snap.Validate(); err != nil {
		respondError(c, span, err)
		return
	}

	result, err := h.store.ReindexCorpus(ctx, snap, h.policies)
	if err != nil {
		respondError(c, span, err)
		return
	}
	h.onChange(corpusID)
	slog.Info("Corpus reindexed",
		"corpus_id", corpusID,
		"chunks", result.Chunks,
		"entities", result.Entities,
		"edges", result.Edges,
	)
	c.JSON(http.StatusOK, result)
}

// Delete handles DELETE /corpus/:id.
func (h *CorpusHandlers) Delete(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleDeleteCorpus")
	defer span.End()

	corpusID := c.Param("id")
	if h.readOnly {
		respondError(c, span, datatypes.NewUnsupported("delete", "the demo is read-only"))
		return
	}
	if err := h.store.DeleteCorpus(ctx, corpusID); err != nil {
		respondError(c, span, err)
		return
	}
	h.onChange(corpusID)
	slog.Info("Corpus deleted", "corpus_id", corpusID)
	c.JSON(http.StatusOK, gin.H{"deleted": corpusID})
}
