// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// =============================================================================
// Corpus Types
// =============================================================================

// Corpus identifies one independently indexed collection.
//
// # Description
//
// LastIndexed stays nil until at least one indexing pass has completed.
// Meta is an open bag written by the indexing job (for example derived
// keyword lists) and is returned to clients untouched.
type Corpus struct {
	CorpusID    string         `json:"corpus_id" validate:"required"`
	Name        string         `json:"name"`
	Path        string         `json:"path"`
	Slug        string         `json:"slug,omitempty"`
	Branch      string         `json:"branch,omitempty"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	LastIndexed *time.Time     `json:"last_indexed"`
	Meta        map[string]any `json:"meta"`
}

// Chunk is a contiguous slice of a source file, the unit of search and citation.
type Chunk struct {
	ChunkID   string `json:"chunk_id" validate:"required"`
	CorpusID  string `json:"corpus_id"`
	FilePath  string `json:"file_path" validate:"required"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Language  string `json:"language,omitempty"`
	Content   string `json:"content"`
}

// Entity is a node of the corpus knowledge graph (module, symbol, concept).
type Entity struct {
	CorpusID    string         `json:"corpus_id"`
	EntityID    string         `json:"entity_id" validate:"required"`
	Name        string         `json:"name" validate:"required"`
	EntityType  string         `json:"entity_type" validate:"required"`
	FilePath    string         `json:"file_path,omitempty"`
	Description string         `json:"description,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Edge is a typed relationship between two entities of the same corpus.
//
// Edges are unique per (corpus, source, target, relation type). Repeated
// observations are folded together by the store's merge policy.
type Edge struct {
	CorpusID     string         `json:"corpus_id"`
	SourceID     string         `json:"source_id" validate:"required"`
	TargetID     string         `json:"target_id" validate:"required"`
	RelationType string         `json:"relation_type" validate:"required"`
	Weight       float64        `json:"weight"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// Key returns the uniqueness key of the edge within its corpus.
func (e Edge) Key() string {
	return e.SourceID + "\x00" + e.TargetID + "\x00" + e.RelationType
}

// Snapshot is the full output of one indexing pass over a corpus.
//
// # Description
//
// A snapshot replaces everything previously stored for Corpus.CorpusID.
// It is produced by the external indexing job and loaded through
// POST /corpus/:id/reindex or `democtl reindex`.
type Snapshot struct {
	Corpus   Corpus   `json:"corpus"`
	Chunks   []Chunk  `json:"chunks" validate:"dive"`
	Entities []Entity `json:"entities" validate:"dive"`
	Edges    []Edge   `json:"edges" validate:"dive"`
}

// Validate checks the snapshot and its nested rows.
func (s *Snapshot) Validate() error {
	return validateStruct(s)
}
