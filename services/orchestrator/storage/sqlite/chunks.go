// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sqlite

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
)

// SearchChunks runs an FTS5 match inside one corpus.
//
// # Description
//
// Results are ordered by BM25 rank (best first) and then by chunk insertion
// order, so equal scores come back in the order the indexer wrote them.
// FTS5 ranks are negative with lower meaning better; Score is the negated
// rank so larger is better.
//
// # Inputs
//
//   - ctx: Context for the query.
//   - corpusID: Corpus to search.
//   - match: An FTS5 match expression. Callers build it from user input.
//   - limit: Maximum rows to return.
//
// # Outputs
//
//   - []datatypes.SearchMatch: Ranked matches with Source "sparse".
//   - error: Non-nil on query failure (including malformed match expressions).
func (s *Store) SearchChunks(ctx context.Context, corpusID, match string, limit int) ([]datatypes.SearchMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chunk_id, c.content, c.file_path, c.start_line, c.end_line, c.language, f.rank
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		WHERE chunks_fts MATCH ? AND c.corpus_id = ?
		ORDER BY f.rank, c.id
		LIMIT ?`, match, corpusID, limit)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	matches := []datatypes.SearchMatch{}
	for rows.Next() {
		var (
			m    datatypes.SearchMatch
			rank float64
		)
		if err := rows.Scan(&m.ChunkID, &m.Content, &m.FilePath, &m.StartLine,
			&m.EndLine, &m.Language, &rank); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		m.Score = -rank
		m.Source = datatypes.SourceSparse
		m.Metadata = map[string]string{"corpus_id": corpusID}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Chunks returns every chunk of a corpus in insertion order.
func (s *Store) Chunks(ctx context.Context, corpusID string) ([]datatypes.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, corpus_id, file_path, start_line, end_line, language, content
		FROM chunks WHERE corpus_id = ? ORDER BY id`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	chunks := []datatypes.Chunk{}
	for rows.Next() {
		var ch datatypes.Chunk
		if err := rows.Scan(&ch.ChunkID, &ch.CorpusID, &ch.FilePath, &ch.StartLine,
			&ch.EndLine, &ch.Language, &ch.Content); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// DistinctFilePaths returns the sorted distinct file paths of a corpus.
// A limit of zero or less returns all paths.
func (s *Store) DistinctFilePaths(ctx context.Context, corpusID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT file_path FROM chunks
		WHERE corpus_id = ?
		ORDER BY file_path
		LIMIT ?`, corpusID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing file paths: %w", err)
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning file path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
