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
	"strings"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/settings"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorpusLookup resolves a corpus id to its row.
type CorpusLookup interface {
	GetCorpus(ctx context.Context, corpusID string) (datatypes.Corpus, error)
}

// DatasetStore is the dataset capability of the store.
type DatasetStore interface {
	CorpusLookup
	ListDataset(ctx context.Context, corpusID string) ([]datatypes.DatasetEntry, error)
	GetDatasetEntry(ctx context.Context, corpusID, entryID string) (datatypes.DatasetEntry, error)
	AddDatasetEntries(ctx context.Context, corpusID string, entries []datatypes.DatasetEntry, onlyIfEmpty bool) (int, error)
	UpdateDatasetEntry(ctx context.Context, e datatypes.DatasetEntry) error
	DeleteDatasetEntry(ctx context.Context, corpusID, entryID string) error
}

// DatasetSeeder fills an empty dataset from the corpus' file paths.
type DatasetSeeder interface {
	SeedDataset(ctx context.Context, corpusID string, limit int) (int, error)
}

// DatasetHandlers serves the /dataset routes.
//
// Every route takes ?corpus_id=; without it the global ui.active_corpus
// setting selects the corpus.
type DatasetHandlers struct {
	store    DatasetStore
	seeder   DatasetSeeder
	settings SettingsViewer
	now      func() time.Time
}

// NewDatasetHandlers creates DatasetHandlers.
func NewDatasetHandlers(store DatasetStore, seeder DatasetSeeder, settings SettingsViewer) *DatasetHandlers {
	return &DatasetHandlers{store: store, seeder: seeder, settings: settings, now: time.Now}
}

// activeCorpus returns explicit when set, else the global active corpus.
// The corpus must exist: an unknown id is a *datatypes.NotFoundError.
func activeCorpus(ctx context.Context, corpora CorpusLookup, viewer SettingsViewer, explicit string) (string, error) {
	id := strings.TrimSpace(explicit)
	if id == "" {
		view, err := viewer.View(ctx, settings.GlobalScope)
		if err != nil {
			return "", err
		}
		if view.UI.ActiveCorpus == "" {
			return "", datatypes.NewValidation("corpus_id", "is required when no active corpus is set")
		}
		id = view.UI.ActiveCorpus
	}
	if _, err := corpora.GetCorpus(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// List handles GET /dataset. An empty dataset is seeded first.
func (h *DatasetHandlers) List(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleListDataset")
	defer span.End()

	corpusID, err := activeCorpus(ctx, h.store, h.settings, c.Query("corpus_id"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	view, err := h.settings.View(ctx, corpusID)
	if err != nil {
		respondError(c, span, err)
		return
	}
	if _, err := h.seeder.SeedDataset(ctx, corpusID, view.Eval.DatasetLimit); err != nil {
		respondError(c, span, err)
		return
	}
	entries, err := h.store.ListDataset(ctx, corpusID)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"corpus_id": corpusID, "entries": entries})
}

// Create handles POST /dataset.
func (h *DatasetHandlers) Create(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleCreateDatasetEntry")
	defer span.End()

	var req datatypes.DatasetEntryRequest
	if !bindJSON(c, span, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, span, err)
		return
	}
	corpusID, err := activeCorpus(ctx, h.store, h.settings, c.Query("corpus_id"))
	if err != nil {
		respondError(c, span, err)
		return
	}

	entry := applyEntryRequest(datatypes.DatasetEntry{
		CorpusID:  corpusID,
		EntryID:   uuid.NewString(),
		CreatedAt: h.now().UTC(),
	}, req)
	if _, err := h.store.AddDatasetEntries(ctx, corpusID, []datatypes.DatasetEntry{entry}, false); err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// Update handles PUT /dataset/:entryId.
func (h *DatasetHandlers) Update(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleUpdateDatasetEntry")
	defer span.End()

	var req datatypes.DatasetEntryRequest
	if !bindJSON(c, span, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, span, err)
		return
	}
	corpusID, err := activeCorpus(ctx, h.store, h.settings, c.Query("corpus_id"))
	if err != nil {
		respondError(c, span, err)
		return
	}

	entry, err := h.store.GetDatasetEntry(ctx, corpusID, c.Param("entryId"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	entry = applyEntryRequest(entry, req)
	if err := h.store.UpdateDatasetEntry(ctx, entry); err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Delete handles DELETE /dataset/:entryId.
func (h *DatasetHandlers) Delete(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleDeleteDatasetEntry")
	defer span.End()

	corpusID, err := activeCorpus(ctx, h.store, h.settings, c.Query("corpus_id"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	entryID := c.Param("entryId")
	if err := h.store.DeleteDatasetEntry(ctx, corpusID, entryID); err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": entryID})
}

func applyEntryRequest(e datatypes.DatasetEntry, req datatypes.DatasetEntryRequest) datatypes.DatasetEntry {
	e.Question = strings.TrimSpace(req.Question)
	e.ExpectedPaths = nonNil(req.ExpectedPaths)
	e.ExpectedAnswer = req.ExpectedAnswer
	e.Tags = nonNil(req.Tags)
	return e
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
