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

const datasetColumns = `corpus_id, entry_id, question, expected_paths, expected_answer, tags, created_at`

// ListDataset returns the eval dataset of a corpus in insertion order.
func (s *Store) ListDataset(ctx context.Context, corpusID string) ([]datatypes.DatasetEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+datasetColumns+` FROM eval_dataset WHERE corpus_id = ? ORDER BY id`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("listing dataset: %w", err)
	}
	defer rows.Close()

	entries := []datatypes.DatasetEntry{}
	for rows.Next() {
		e, err := scanDatasetEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning dataset entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountDataset returns the number of dataset entries of a corpus.
func (s *Store) CountDataset(ctx context.Context, corpusID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM eval_dataset WHERE corpus_id = ?`, corpusID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting dataset: %w", err)
	}
	return n, nil
}

// GetDatasetEntry returns one entry or a *datatypes.NotFoundError.
func (s *Store) GetDatasetEntry(ctx context.Context, corpusID, entryID string) (datatypes.DatasetEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+datasetColumns+` FROM eval_dataset WHERE corpus_id = ? AND entry_id = ?`,
		corpusID, entryID)
	e, err := scanDatasetEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return datatypes.DatasetEntry{}, datatypes.NewNotFound("dataset_entry", entryID)
	}
	if err != nil {
		return datatypes.DatasetEntry{}, fmt.Errorf("getting dataset entry: %w", err)
	}
	return e, nil
}

// AddDatasetEntries inserts entries in one transaction.
//
// When onlyIfEmpty is true the insert is skipped if the corpus already has
// entries; the check and the insert share the transaction so concurrent
// seeders cannot both write. It returns the number of rows inserted.
func (s *Store) AddDatasetEntries(ctx context.Context, corpusID string, entries []datatypes.DatasetEntry, onlyIfEmpty bool) (int, error) {
	inserted := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if onlyIfEmpty {
			var n int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM eval_dataset WHERE corpus_id = ?`, corpusID).Scan(&n); err != nil {
				return fmt.Errorf("counting dataset: %w", err)
			}
			if n > 0 {
				return nil
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO eval_dataset (corpus_id, entry_id, question, expected_paths, expected_answer, tags, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing dataset insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			paths, err := encodeJSON(e.ExpectedPaths, "[]")
			if err != nil {
				return err
			}
			tags, err := encodeJSON(e.Tags, "[]")
			if err != nil {
				return err
			}
			createdAt := e.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			if _, err := stmt.ExecContext(ctx, corpusID, e.EntryID, e.Question, paths,
				e.ExpectedAnswer, tags, formatTime(createdAt)); err != nil {
				return fmt.Errorf("inserting dataset entry %s: %w", e.EntryID, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// UpdateDatasetEntry overwrites the mutable fields of an entry.
func (s *Store) UpdateDatasetEntry(ctx context.Context, e datatypes.DatasetEntry) error {
	paths, err := encodeJSON(e.ExpectedPaths, "[]")
	if err != nil {
		return err
	}
	tags, err := encodeJSON(e.Tags, "[]")
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE eval_dataset
		SET question = ?, expected_paths = ?, expected_answer = ?, tags = ?
		WHERE corpus_id = ? AND entry_id = ?`,
		e.Question, paths, e.ExpectedAnswer, tags, e.CorpusID, e.EntryID)
	if err != nil {
		return fmt.Errorf("updating dataset entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return datatypes.NewNotFound("dataset_entry", e.EntryID)
	}
	return nil
}

// DeleteDatasetEntry removes an entry.
func (s *Store) DeleteDatasetEntry(ctx context.Context, corpusID, entryID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM eval_dataset WHERE corpus_id = ? AND entry_id = ?`, corpusID, entryID)
	if err != nil {
		return fmt.Errorf("deleting dataset entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return datatypes.NewNotFound("dataset_entry", entryID)
	}
	return nil
}

func scanDatasetEntry(row rowScanner) (datatypes.DatasetEntry, error) {
	var (
		e         datatypes.DatasetEntry
		paths     string
		tags      string
		createdAt string
	)
	if err := row.Scan(&e.CorpusID, &e.EntryID, &e.Question, &paths,
		&e.ExpectedAnswer, &tags, &createdAt); err != nil {
		return datatypes.DatasetEntry{}, err
	}
	e.ExpectedPaths = decodeStrings(paths)
	e.Tags = decodeStrings(tags)
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}
