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
	"encoding/json"
	"errors"
	"fmt"
)

// RetrievalSources lists the corpora a chat searches by default.
type RetrievalSources struct {
	CorpusIDs []string `json:"corpus_ids"`
}

// RetrievalSettings is the typed retrieval section.
type RetrievalSettings struct {
	Sources       RetrievalSources `json:"sources"`
	TopK          int              `json:"top_k"`
	IncludeSparse bool             `json:"include_sparse"`
}

// ChatSettings is the typed chat section.
type ChatSettings struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	SystemPrompt string  `json:"system_prompt"`
}

// GraphSettings is the typed graph section.
type GraphSettings struct {
	MaxHops       int `json:"max_hops"`
	NeighborLimit int `json:"neighbor_limit"`
}

// EvalSettings is the typed eval section.
type EvalSettings struct {
	TopK         int     `json:"top_k"`
	SampleSize   int     `json:"sample_size"`
	AccuracyBias float64 `json:"accuracy_bias"`
	Seed         uint64  `json:"seed"`
	DatasetLimit int     `json:"dataset_limit"`
}

// UISettings is the typed ui section.
type UISettings struct {
	ActiveCorpus string `json:"active_corpus"`
	ShowDebug    bool   `json:"show_debug"`
}

// View is the typed read side of a settings tree.
type View struct {
	Retrieval RetrievalSettings `json:"retrieval"`
	Chat      ChatSettings      `json:"chat"`
	Graph     GraphSettings     `json:"graph"`
	Eval      EvalSettings      `json:"eval"`
	UI        UISettings        `json:"ui"`
}

var builtinView View

func init() {
	v, err := decodeOnto(View{}, BuiltinDefaults())
	if err != nil {
		panic(fmt.Sprintf("settings: builtin defaults do not decode: %v", err))
	}
	builtinView = v
}

// Decode reads a tree into a View.
//
// # Description
//
// Fields absent from the tree keep their built-in default, so a tree
// replaced with only some sections still yields usable settings. A value
// of the wrong type (for example a string temperature) is reported as a
// *datatypes.ValidationError naming the dotted field.
func Decode(tree map[string]any) (View, error) {
	return decodeOnto(builtinView, tree)
}

func decodeOnto(base View, tree map[string]any) (View, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return View{}, fmt.Errorf("encoding settings tree: %w", err)
	}
	// json.Unmarshal would reuse the base slice's backing array.
	v := base
	v.Retrieval.Sources.CorpusIDs = nil
	if err := json.Unmarshal(data, &v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return View{}, validationFor(typeErr)
		}
		return View{}, fmt.Errorf("decoding settings tree: %w", err)
	}
	if v.Retrieval.Sources.CorpusIDs == nil {
		v.Retrieval.Sources.CorpusIDs = []string{}
	}
	return v, nil
}
