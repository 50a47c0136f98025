// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import "slices"

const (
	// GlobalScope is the scope used when a request names no corpus.
	GlobalScope = "global"

	// MemoryCorpusID is the reserved recall pseudo-corpus. Its scope never
	// gets itself injected into the retrieval sources.
	MemoryCorpusID = "recall_default"
)

// Section names accepted by PatchSection and Replace.
const (
	SectionRetrieval = "retrieval"
	SectionChat      = "chat"
	SectionGraph     = "graph"
	SectionEval      = "eval"
	SectionPrompts   = "prompts"
	SectionUI        = "ui"
)

var knownSections = []string{
	SectionRetrieval, SectionChat, SectionGraph, SectionEval, SectionPrompts, SectionUI,
}

// Sections returns the known section names in display order.
func Sections() []string {
	return slices.Clone(knownSections)
}

// IsSection reports whether name is a known section.
func IsSection(name string) bool {
	return slices.Contains(knownSections, name)
}

// BuiltinDefaults returns a fresh copy of the compiled-in defaults tree.
func BuiltinDefaults() map[string]any {
	return map[string]any{
		SectionRetrieval: map[string]any{
			"sources": map[string]any{
				"corpus_ids": []any{},
			},
			"top_k":          float64(10),
			"include_sparse": true,
		},
		SectionChat: map[string]any{
			"provider":      "openai",
			"model":         "gpt-4o-mini",
			"temperature":   0.2,
			"max_tokens":    float64(1024),
			"system_prompt": defaultSystemPrompt,
		},
		SectionGraph: map[string]any{
			"max_hops":       float64(2),
			"neighbor_limit": float64(200),
		},
		SectionEval: map[string]any{
			"top_k":         float64(5),
			"sample_size":   float64(0),
			"accuracy_bias": 0.65,
			"seed":          float64(42),
			"dataset_limit": float64(25),
		},
		SectionPrompts: map[string]any{
			"query_rewrite":       defaultQueryRewritePrompt,
			"chunk_summarization": defaultChunkSummarizationPrompt,
			"eval_analysis":       defaultEvalAnalysisPrompt,
		},
		SectionUI: map[string]any{
			"active_corpus": "",
			"show_debug":    false,
		},
	}
}

// scopeDefaults derives the initial tree of a scope from base.
func scopeDefaults(base map[string]any, scope string) map[string]any {
	tree := deepCopyMap(base)
	if scope == GlobalScope || scope == MemoryCorpusID || scope == "" {
		return tree
	}

	retrieval := childMap(tree, SectionRetrieval)
	sources := childMap(retrieval, "sources")
	ids, _ := sources["corpus_ids"].([]any)
	if !slices.Contains(ids, any(scope)) {
		ids = append(ids, scope)
	}
	sources["corpus_ids"] = ids

	if ui, ok := tree[SectionUI].(map[string]any); ok {
		ui["active_corpus"] = scope
	}
	return tree
}

// childMap returns m[key] as an object, creating it when absent or not an
// object.
func childMap(m map[string]any, key string) map[string]any {
	if child, ok := m[key].(map[string]any); ok {
		return child
	}
	child := map[string]any{}
	m[key] = child
	return child
}
