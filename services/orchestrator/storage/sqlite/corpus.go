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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
)

const corpusColumns = `corpus_id, name, path, slug, branch, description, created_at, last_indexed, meta`

// ListCorpora returns all corpora ordered by id.
func (s *Store) ListCorpora(ctx context.Context) ([]datatypes.Corpus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+corpusColumns+` FROM corpora ORDER BY corpus_id`)
	if err != nil {
		return nil, fmt.Errorf("listing corpora: %w", err)
	}
	defer rows.Close()

	corpora := []datatypes.Corpus{}
	for rows.Next() {
		c, err := scanCorpus(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning corpus: %w", err)
		}
		corpora = append(corpora, c)
	}
	return corpora, rows.Err()
}

// GetCorpus returns one corpus or a *datatypes.NotFoundError.
func (s *Store) GetCorpus(ctx context.Context, corpusID string) (datatypes.Corpus, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+corpusColumns+` FROM corpora WHERE corpus_id = ?`, corpusID)
	c, err := scanCorpus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return datatypes.Corpus{}, datatypes.NewNotFound("corpus", corpusID)
	}
	if err != nil {
		return datatypes.Corpus{}, fmt.Errorf("getting corpus %s: %w", corpusID, err)
	}
	return c, nil
}

// ReindexResult summarizes a completed re-index.
type ReindexResult struct {
	CorpusID    string    `json:"corpus_id"`
	Chunks      int       `json:"chunks"`
	Entities    int       `json:"entities"`
	Edges       int       `json:"edges"`
	LastIndexed time.Time `json:"last_indexed"`
}

// ReindexCorpus replaces everything stored for a corpus with a new snapshot.
//
// # Description
//
// Runs in a single transaction:
//  1. Upsert the corpus row, keeping the original created_at.
//  2. Delete the corpus's edges, then entities, then chunks.
//  3. Insert the snapshot's chunks, entities, and merged edges.
//  4. Stamp last_indexed.
//
// Any failure rolls back the whole transaction, so readers see either the
// previous snapshot or the new one and never a mix. Other corpora are not
// touched.
//
// # Inputs
//
//   - ctx: Context for the transaction.
//   - snap: The new snapshot. Row corpus ids are overwritten with
//     snap.Corpus.CorpusID.
//   - policies: Edge merge policies. Nil uses DefaultMergePolicies.
//
// # Outputs
//
//   - ReindexResult: Row counts actually written.
//   - error: Non-nil if any statement failed.
func (s *Store) ReindexCorpus(ctx context.Context, snap datatypes.Snapshot, policies MergePolicies) (ReindexResult, error) {
	corpusID := snap.Corpus.CorpusID
	if corpusID == "" {
		return ReindexResult{}, datatypes.NewValidation("corpus.corpus_id", "is required")
	}

	edges := MergeEdges(snap.Edges, policies)
	now := time.Now().UTC()
	result := ReindexResult{CorpusID: corpusID, LastIndexed: now}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertCorpus(ctx, tx, snap.Corpus, now); err != nil {
			return err
		}

		for _, table := range []string{"graph_edges", "graph_entities", "chunks"} {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE corpus_id = ?`, corpusID); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}

		n, err := insertChunks(ctx, tx, corpusID, snap.Chunks)
		if err != nil {
			return err
		}
		result.Chunks = n

		if n, err = insertEntities(ctx, tx, corpusID, snap.Entities); err != nil {
			return err
		}
		result.Entities = n

		if n, err = insertEdges(ctx, tx, corpusID, edges); err != nil {
			return err
		}
		result.Edges = n

		if _, err := tx.ExecContext(ctx,
			`UPDATE corpora SET last_indexed = ? WHERE corpus_id = ?`,
			formatTime(now), corpusID); err != nil {
			return fmt.Errorf("stamping last_indexed: %w", err)
		}
		return nil
	})
	if err != nil {
		return ReindexResult{}, fmt.Errorf("reindexing corpus %s: %w", corpusID, err)
	}
	return result, nil
}

// DeleteCorpus removes a corpus and every row it owns.
func (s *Store) DeleteCorpus(ctx context.Context, corpusID string) error {
	if _, err := s.GetCorpus(ctx, corpusID); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"graph_edges", "graph_entities", "chunks", "eval_dataset", "eval_runs", "corpora"} {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE corpus_id = ?`, corpusID); err != nil {
				return fmt.Errorf("deleting from %s: %w", table, err)
			}
		}
		return nil
	})
}

// CorpusCounts returns the number of chunks, entities, and edges of a corpus.
func (s *Store) CorpusCounts(ctx context.Context, corpusID string) (chunks, entities, edges int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chunks WHERE corpus_id = ?),
			(SELECT COUNT(*) FROM graph_entities WHERE corpus_id = ?),
			(SELECT COUNT(*) FROM graph_edges WHERE corpus_id = ?)`,
		corpusID, corpusID, corpusID).Scan(&chunks, &entities, &edges)
	if err != nil {
		err = fmt.Errorf("counting corpus rows: %w", err)
	}
	return chunks, entities, edges, err
}

// =============================================================================
// Internal
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCorpus(row rowScanner) (datatypes.Corpus, error) {
	var (
		c           datatypes.Corpus
		createdAt   string
		lastIndexed sql.NullString
		meta        string
	)
	if err := row.Scan(&c.CorpusID, &c.Name, &c.Path, &c.Slug, &c.Branch,
		&c.Description, &createdAt, &lastIndexed, &meta); err != nil {
		return datatypes.Corpus{}, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.LastIndexed = parseNullTime(lastIndexed)
	c.Meta = decodeMap(meta)
	return c, nil
}

func upsertCorpus(ctx context.Context, tx *sql.Tx, c datatypes.Corpus, now time.Time) error {
	meta, err := encodeJSON(c.Meta, "{}")
	if err != nil {
		return fmt.Errorf("encoding corpus meta: %w", err)
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO corpora (corpus_id, name, path, slug, branch, description, created_at, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(corpus_id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			slug = excluded.slug,
			branch = excluded.branch,
			description = excluded.description,
			meta = excluded.meta`,
		c.CorpusID, c.Name, c.Path, c.Slug, c.Branch, c.Description, formatTime(createdAt), meta)
	if err != nil {
		return fmt.Errorf("upserting corpus: %w", err)
	}
	return nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, corpusID string, chunks []datatypes.Chunk) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, corpus_id, file_path, start_line, end_line, language, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, ch.ChunkID, corpusID, ch.FilePath,
			ch.StartLine, ch.EndLine, ch.Language, ch.Content); err != nil {
			return 0, fmt.Errorf("inserting chunk %s: %w", ch.ChunkID, err)
		}
	}
	return len(chunks), nil
}

func insertEntities(ctx context.Context, tx *sql.Tx, corpusID string, entities []datatypes.Entity) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO graph_entities (corpus_id, entity_id, name, entity_type, file_path, description, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(corpus_id, entity_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing entity insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, e := range entities {
		props, err := encodeJSON(e.Properties, "{}")
		if err != nil {
			return 0, fmt.Errorf("encoding entity %s properties: %w", e.EntityID, err)
		}
		res, err := stmt.ExecContext(ctx, corpusID, e.EntityID, e.Name, e.EntityType,
			e.FilePath, e.Description, props)
		if err != nil {
			return 0, fmt.Errorf("inserting entity %s: %w", e.EntityID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written++
		}
	}
	return written, nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, corpusID string, edges []datatypes.Edge) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO graph_edges (corpus_id, source_id, target_id, relation_type, weight, properties)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing edge insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		props, err := encodeJSON(e.Properties, "{}")
		if err != nil {
			return 0, fmt.Errorf("encoding edge properties: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, corpusID, e.SourceID, e.TargetID,
			e.RelationType, e.Weight, props); err != nil {
			return 0, fmt.Errorf("inserting edge %s->%s: %w", e.SourceID, e.TargetID, err)
		}
	}
	return len(edges), nil
}
