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

// Entities returns every graph entity of a corpus ordered by entity id.
func (s *Store) Entities(ctx context.Context, corpusID string) ([]datatypes.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT corpus_id, entity_id, name, entity_type, file_path, description, properties
		FROM graph_entities WHERE corpus_id = ? ORDER BY entity_id`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	entities := []datatypes.Entity{}
	for rows.Next() {
		var (
			e     datatypes.Entity
			props string
		)
		if err := rows.Scan(&e.CorpusID, &e.EntityID, &e.Name, &e.EntityType,
			&e.FilePath, &e.Description, &props); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		e.Properties = decodeMap(props)
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// Edges returns every graph edge of a corpus in insertion order.
func (s *Store) Edges(ctx context.Context, corpusID string) ([]datatypes.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT corpus_id, source_id, target_id, relation_type, weight, properties
		FROM graph_edges WHERE corpus_id = ? ORDER BY id`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}
	defer rows.Close()

	edges := []datatypes.Edge{}
	for rows.Next() {
		var (
			e     datatypes.Edge
			props string
		)
		if err := rows.Scan(&e.CorpusID, &e.SourceID, &e.TargetID, &e.RelationType,
			&e.Weight, &props); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		e.Properties = decodeMap(props)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
