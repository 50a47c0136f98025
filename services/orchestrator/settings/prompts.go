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

import (
	"strings"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
)

// Well-known prompt slot keys.
const (
	PromptSystem             = "system_prompt"
	PromptQueryRewrite       = "query_rewrite"
	PromptChunkSummarization = "chunk_summarization"
	PromptEvalAnalysis       = "eval_analysis"
)

const defaultSystemPrompt = `You are the Aleutian code assistant. You answer questions about the indexed source code using only the context you are given.`

const defaultQueryRewritePrompt = `Rewrite this code search query to improve recall. Expand abbreviations and add likely identifier names.
Return ONLY the rewritten query.

Original: %s
Rewritten:`

const defaultChunkSummarizationPrompt = `Summarize what the following code does in at most %d characters. Name the main functions or types.

Code:
%s

Summary:`

const defaultEvalAnalysisPrompt = `Compare the two evaluation runs below. Call out every metric that regressed and relate it to the configuration changes listed.`

// PromptSlot describes one named prompt and where it lives in the tree.
type PromptSlot struct {
	Key         string
	Path        string
	Description string
	Default     string
}

var promptSlots = []PromptSlot{
	{PromptSystem, "chat.system_prompt", "Role prompt prepended to every chat request.", defaultSystemPrompt},
	{PromptQueryRewrite, "prompts.query_rewrite", "Expands a search query before retrieval.", defaultQueryRewritePrompt},
	{PromptChunkSummarization, "prompts.chunk_summarization", "Summarizes a chunk for result previews.", defaultChunkSummarizationPrompt},
	{PromptEvalAnalysis, "prompts.eval_analysis", "Frames the comparison of two evaluation runs.", defaultEvalAnalysisPrompt},
}

// PromptSlots returns the slot registry in display order.
func PromptSlots() []PromptSlot {
	out := make([]PromptSlot, len(promptSlots))
	copy(out, promptSlots)
	return out
}

// LookupPromptSlot returns the slot for key or a *datatypes.NotFoundError.
func LookupPromptSlot(key string) (PromptSlot, error) {
	for _, s := range promptSlots {
		if s.Key == key {
			return s, nil
		}
	}
	return PromptSlot{}, datatypes.NewNotFound("prompt", key)
}

// Prompt is one slot as seen from a scope.
type Prompt struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Default     string `json:"default"`
	Path        string `json:"path"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
}

// resolvePrompt reads a slot from tree, falling back to the slot default
// when the path is unset or not a string.
func resolvePrompt(tree map[string]any, slot PromptSlot) Prompt {
	value := slot.Default
	if v, ok := getPath(tree, slot.Path).(string); ok {
		value = v
	}
	return Prompt{
		Key:         slot.Key,
		Value:       value,
		Default:     slot.Default,
		Path:        slot.Path,
		Description: slot.Description,
		IsDefault:   value == slot.Default,
	}
}

func getPath(tree map[string]any, path string) any {
	var cur any = tree
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func setPath(tree map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	m := tree
	for _, part := range parts[:len(parts)-1] {
		m = childMap(m, part)
	}
	m[parts[len(parts)-1]] = value
}
