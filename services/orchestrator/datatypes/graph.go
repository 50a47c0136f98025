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

// RankedEntity is an entity annotated with its connectivity degree.
type RankedEntity struct {
	Entity
	Degree int `json:"degree"`
}

// Neighborhood is the bounded-hop subgraph around a seed entity.
//
// Every edge endpoint in Relationships appears in Entities.
type Neighborhood struct {
	CorpusID      string   `json:"corpus_id"`
	Seed          string   `json:"seed"`
	MaxHops       int      `json:"max_hops"`
	Limit         int      `json:"limit"`
	Entities      []Entity `json:"entities"`
	Relationships []Edge   `json:"relationships"`
	Truncated     bool     `json:"truncated"`
}

// GraphStats breaks a corpus graph down by entity and relation type.
type GraphStats struct {
	CorpusID          string         `json:"corpus_id"`
	TotalEntities     int            `json:"total_entities"`
	TotalRelations    int            `json:"total_relationships"`
	EntityTypes       map[string]int `json:"entity_types"`
	RelationshipTypes map[string]int `json:"relationship_types"`
}
