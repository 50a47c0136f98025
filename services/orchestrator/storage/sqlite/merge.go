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
	"fmt"
	"maps"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
)

// MaxEdgePropertyList caps list-valued edge properties after an additive merge.
const MaxEdgePropertyList = 25

// MergePolicy decides how repeated observations of one edge are folded.
type MergePolicy int

const (
	// MergeKeepFirst keeps the first-seen edge record and drops later ones.
	MergeKeepFirst MergePolicy = iota

	// MergeAdditive sums weights and unions list-valued properties.
	MergeAdditive
)

// String returns the policy name.
func (p MergePolicy) String() string {
	switch p {
	case MergeKeepFirst:
		return "keep_first"
	case MergeAdditive:
		return "additive"
	default:
		return "unknown"
	}
}

// MergePolicies maps relation type to merge policy.
// Relation types without an entry use MergeKeepFirst.
type MergePolicies map[string]MergePolicy

// DefaultMergePolicies returns the relation policies used by the indexer
// output: co-occurrence and reference counts accumulate, structural
// relations do not.
func DefaultMergePolicies() MergePolicies {
	return MergePolicies{
		"co_occurs":  MergeAdditive,
		"references": MergeAdditive,
		"contains":   MergeKeepFirst,
		"imports":    MergeKeepFirst,
		"defines":    MergeKeepFirst,
	}
}

// For returns the policy for a relation type.
func (m MergePolicies) For(relationType string) MergePolicy {
	if p, ok := m[relationType]; ok {
		return p
	}
	return MergeKeepFirst
}

// MergeEdges folds duplicate edges (same source, target, relation type)
// according to the policies. Output order follows first occurrence.
//
// # Inputs
//
//   - edges: Raw edges of one corpus, possibly with duplicates.
//   - policies: Relation policy registry. Nil uses DefaultMergePolicies.
//
// # Outputs
//
//   - []datatypes.Edge: One edge per key. Inputs are not modified.
func MergeEdges(edges []datatypes.Edge, policies MergePolicies) []datatypes.Edge {
	if policies == nil {
		policies = DefaultMergePolicies()
	}

	index := make(map[string]int, len(edges))
	merged := make([]datatypes.Edge, 0, len(edges))

	for _, e := range edges {
		if e.Weight == 0 {
			e.Weight = 1
		}
		key := e.Key()
		pos, seen := index[key]
		if !seen {
			e.Properties = maps.Clone(e.Properties)
			index[key] = len(merged)
			merged = append(merged, e)
			continue
		}
		if policies.For(e.RelationType) != MergeAdditive {
			continue
		}
		existing := &merged[pos]
		existing.Weight += e.Weight
		existing.Properties = mergeProperties(existing.Properties, e.Properties)
	}
	return merged
}

// mergeProperties unions list-valued properties with set semantics and a
// size cap. Scalar properties keep the existing value.
func mergeProperties(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		incoming, ok := asList(v)
		if !ok {
			if _, exists := dst[k]; !exists {
				dst[k] = v
			}
			continue
		}
		current, _ := asList(dst[k])
		dst[k] = unionCapped(current, incoming, MaxEdgePropertyList)
	}
	return dst
}

func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func unionCapped(a, b []any, limit int) []any {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]any, 0, min(len(a)+len(b), limit))
	for _, list := range [][]any{a, b} {
		for _, v := range list {
			if len(out) >= limit {
				return out
			}
			key := fmt.Sprint(v)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
