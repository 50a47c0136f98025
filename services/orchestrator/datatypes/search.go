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

// SourceSparse labels matches produced by full-text search.
const SourceSparse = "sparse"

// SearchRequest is the body of POST /search.
//
// An empty query is valid and yields no matches.
type SearchRequest struct {
	Query    string `json:"query" validate:"maxbytes"`
	CorpusID string `json:"corpus_id" validate:"required"`
	TopK     int    `json:"top_k" validate:"gte=0"`
}

// Validate checks the request fields.
func (r *SearchRequest) Validate() error {
	return validateStruct(r)
}

// SearchMatch is one ranked chunk.
type SearchMatch struct {
	ChunkID   string            `json:"chunk_id"`
	Content   string            `json:"content"`
	FilePath  string            `json:"file_path"`
	StartLine int               `json:"start_line"`
	EndLine   int               `json:"end_line"`
	Language  string            `json:"language"`
	Score     float64           `json:"score"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata"`
}

// SearchResponse is the body returned by POST /search.
type SearchResponse struct {
	Query     string         `json:"query"`
	Matches   []SearchMatch  `json:"matches"`
	LatencyMs float64        `json:"latency_ms"`
	Debug     map[string]any `json:"debug"`
}
