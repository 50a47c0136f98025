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

// =============================================================================
// Message Types
// =============================================================================

// Message is one turn of a conversation sent to a generation provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// =============================================================================
// Chat Request Types
// =============================================================================

// ChatSources selects the corpora a chat request retrieves from.
type ChatSources struct {
	CorpusIDs []string `json:"corpus_ids" validate:"max=16,dive,required"`
}

// ChatRequest is the body of POST /chat, POST /chat/stream, and websocket frames.
//
// # Description
//
// Sources.CorpusIDs takes precedence over CorpusID; CorpusID is the single
// fallback scope used by clients that only track an active corpus.
// IncludeSparse and TopK override the scope's retrieval settings when set.
// ModelOverride accepts "provider:model", a bare provider name, or a bare
// model name for the configured provider.
//
// # Validation
//
//   - Message: required, not blank, at most 32KB.
//   - TopK: when set, 1-50 after clamping; negative values are rejected.
type ChatRequest struct {
	Message       string      `json:"message" validate:"required,notblank,maxbytes"`
	Sources       ChatSources `json:"sources"`
	CorpusID      string      `json:"corpus_id,omitempty"`
	ModelOverride string      `json:"model_override,omitempty"`
	IncludeSparse *bool       `json:"include_sparse,omitempty"`
	TopK          *int        `json:"top_k,omitempty" validate:"omitempty,gte=0"`
}

// Validate checks the request fields.
func (r *ChatRequest) Validate() error {
	return validateStruct(r)
}

// =============================================================================
// Chat Response Types
// =============================================================================

// ChatDebug exposes how a chat answer was produced.
type ChatDebug struct {
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	Scopes         []string `json:"scopes"`
	IncludeSparse  bool     `json:"include_sparse"`
	TopK           int      `json:"top_k"`
	RetrievedCount int      `json:"retrieved_count"`
	RetrievalMs    int64    `json:"retrieval_ms"`
	GenerationMs   int64    `json:"generation_ms"`
	PromptChars    int      `json:"prompt_chars"`
	Error          string   `json:"error,omitempty"`
}

// ChatResponse is the body returned by POST /chat.
//
// Error is set when the provider failed or is unavailable; Message then
// carries a diagnostic text instead of a model answer.
type ChatResponse struct {
	Message Message       `json:"message"`
	Sources []SearchMatch `json:"sources"`
	Debug   ChatDebug     `json:"debug"`
	Error   string        `json:"error,omitempty"`
}
