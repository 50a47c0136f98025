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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
)

// UpsertRun stores a run keyed by run id.
//
// # Description
//
// run_json holds the full structure. The scalar columns duplicate the
// headline metrics so listings never have to decode the blob. A second run
// with the same id replaces the first.
func (s *Store) UpsertRun(ctx context.Context, run datatypes.EvalRun) error {
	blob, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO eval_runs (run_id, corpus_id, dataset_id, total, top1_accuracy, topk_accuracy, mrr,
			started_at, completed_at, run_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			corpus_id = excluded.corpus_id,
			dataset_id = excluded.dataset_id,
			total = excluded.total,
			top1_accuracy = excluded.top1_accuracy,
			topk_accuracy = excluded.topk_accuracy,
			mrr = excluded.mrr,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			run_json = excluded.run_json`,
		run.RunID, run.CorpusID, run.DatasetID, run.Total,
		run.Metrics.Top1Accuracy, run.Metrics.TopKAccuracy, run.Metrics.MRR,
		formatTime(run.StartedAt), formatTime(run.CompletedAt), string(blob))
	if err != nil {
		return fmt.Errorf("upserting run %s: %w", run.RunID, err)
	}
	return nil
}

// GetRun returns a stored run or a *datatypes.NotFoundError.
func (s *Store) GetRun(ctx context.Context, runID string) (datatypes.EvalRun, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_json FROM eval_runs WHERE run_id = ?`, runID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return datatypes.EvalRun{}, datatypes.NewNotFound("run", runID)
	}
	if err != nil {
		return datatypes.EvalRun{}, fmt.Errorf("getting run %s: %w", runID, err)
	}
	return decodeRun(blob)
}

// LatestRun returns the most recently completed run of a corpus, or a
// *datatypes.NotFoundError when the corpus has none.
func (s *Store) LatestRun(ctx context.Context, corpusID string) (datatypes.EvalRun, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_json FROM eval_runs
		WHERE corpus_id = ?
		ORDER BY completed_at DESC, run_id DESC
		LIMIT 1`, corpusID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return datatypes.EvalRun{}, datatypes.NewNotFound("run", corpusID)
	}
	if err != nil {
		return datatypes.EvalRun{}, fmt.Errorf("getting latest run: %w", err)
	}
	return decodeRun(blob)
}

// ListRuns returns run summaries, newest first. An empty corpusID lists all
// corpora.
func (s *Store) ListRuns(ctx context.Context, corpusID string, limit int) ([]datatypes.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, corpus_id, total, top1_accuracy, topk_accuracy, mrr, completed_at
		FROM eval_runs
		WHERE (? = '' OR corpus_id = ?)
		ORDER BY completed_at DESC, run_id DESC
		LIMIT ?`, corpusID, corpusID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []datatypes.RunSummary{}
	for rows.Next() {
		var (
			r           datatypes.RunSummary
			completedAt string
		)
		if err := rows.Scan(&r.RunID, &r.CorpusID, &r.Total, &r.Top1Accuracy,
			&r.TopKAccuracy, &r.MRR, &completedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.CompletedAt = parseTime(completedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func decodeRun(blob string) (datatypes.EvalRun, error) {
	var run datatypes.EvalRun
	if err := json.Unmarshal([]byte(blob), &run); err != nil {
		return datatypes.EvalRun{}, fmt.Errorf("decoding run: %w", err)
	}
	return run, nil
}
