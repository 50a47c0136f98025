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

// schemaStatements are applied in order by EnsureSchema. Every statement is
// idempotent so the schema can be bootstrapped on each start.
//
// chunks_fts is an external-content FTS5 table over chunks.content. The
// triggers keep it in step with the base table, so the search vector can
// never drift from the stored content.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS corpora (
		corpus_id    TEXT PRIMARY KEY,
		name         TEXT NOT NULL DEFAULT '',
		path         TEXT NOT NULL DEFAULT '',
		slug         TEXT NOT NULL DEFAULT '',
		branch       TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		last_indexed TEXT,
		meta         TEXT NOT NULL DEFAULT '{}'
	)`,

	`CREATE TABLE IF NOT EXISTS chunks (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id   TEXT NOT NULL UNIQUE,
		corpus_id  TEXT NOT NULL,
		file_path  TEXT NOT NULL,
		start_line INTEGER NOT NULL DEFAULT 0,
		end_line   INTEGER NOT NULL DEFAULT 0,
		language   TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_corpus_path ON chunks(corpus_id, file_path)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		content,
		content='chunks',
		content_rowid='id',
		tokenize='porter unicode61'
	)`,
	`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
		INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
		INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
	END`,

	`CREATE TABLE IF NOT EXISTS graph_entities (
		corpus_id   TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		name        TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		file_path   TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		properties  TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (corpus_id, entity_id)
	)`,

	`CREATE TABLE IF NOT EXISTS graph_edges (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		corpus_id     TEXT NOT NULL,
		source_id     TEXT NOT NULL,
		target_id     TEXT NOT NULL,
		relation_type TEXT NOT NULL,
		weight        REAL NOT NULL DEFAULT 1,
		properties    TEXT NOT NULL DEFAULT '{}',
		UNIQUE (corpus_id, source_id, target_id, relation_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_source ON graph_edges(corpus_id, source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_target ON graph_edges(corpus_id, target_id)`,

	`CREATE TABLE IF NOT EXISTS eval_dataset (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		corpus_id       TEXT NOT NULL,
		entry_id        TEXT NOT NULL,
		question        TEXT NOT NULL,
		expected_paths  TEXT NOT NULL DEFAULT '[]',
		expected_answer TEXT NOT NULL DEFAULT '',
		tags            TEXT NOT NULL DEFAULT '[]',
		created_at      TEXT NOT NULL,
		UNIQUE (corpus_id, entry_id)
	)`,

	`CREATE TABLE IF NOT EXISTS eval_runs (
		run_id        TEXT PRIMARY KEY,
		corpus_id     TEXT NOT NULL,
		dataset_id    TEXT NOT NULL DEFAULT '',
		total         INTEGER NOT NULL DEFAULT 0,
		top1_accuracy REAL NOT NULL DEFAULT 0,
		topk_accuracy REAL NOT NULL DEFAULT 0,
		mrr           REAL NOT NULL DEFAULT 0,
		started_at    TEXT NOT NULL,
		completed_at  TEXT NOT NULL,
		run_json      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_corpus ON eval_runs(corpus_id, completed_at)`,
}
