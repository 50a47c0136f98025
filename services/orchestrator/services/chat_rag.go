// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic services for the orchestrator.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers. Services are responsible for:
//   - Orchestrating calls to the search engine, settings, and LLM providers
//   - Applying request overrides on top of per-scope settings
//   - Degrading gracefully when a provider is missing or failing
//
// Dependencies are injected via constructors so handlers and tests can swap
// them for fakes.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/llm"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/search"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/settings"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// chatRAGTracer is the OpenTelemetry tracer for ChatRAGService operations.
var chatRAGTracer = otel.Tracer("aleutian.orchestrator.services.chat_rag")

// maxSearchFanOut bounds concurrent per-scope searches for one request.
const maxSearchFanOut = 4

const citationInstructions = `Answer using the numbered context blocks below the question.
Cite every claim with the block number in square brackets, for example [2].
If the context does not contain the answer, say so instead of guessing.`

const noContextNotice = "No context was retrieved for this question. Say that no sources were available before answering."

// =============================================================================
// Interfaces
// =============================================================================

// Searcher runs one sparse search over a corpus.
type Searcher interface {
	Search(ctx context.Context, corpusID, query string, topK int) ([]datatypes.SearchMatch, error)
}

// SettingsReader returns the typed settings of a scope.
type SettingsReader interface {
	View(ctx context.Context, scope string) (settings.View, error)
}

// ProviderRegistry resolves and builds generation clients.
type ProviderRegistry interface {
	Resolve(override string, defaults llm.Defaults) (llm.Selection, error)
	Client(sel llm.Selection) (llm.LLMClient, error)
}

// ProviderObserver is told the outcome of each provider call. status is
// "ok", "error", or "unavailable".
type ProviderObserver func(provider, status string)

// =============================================================================
// ChatRAGService
// =============================================================================

// ChatRAGService answers chat requests with retrieval-augmented generation.
//
// # Description
//
// One request runs: scope resolution, per-scope sparse search, prompt
// assembly, provider resolution, and a single provider call. Provider
// failures never fail the request; the answer is replaced by a diagnostic
// message and the cause is reported in Error and Debug.Error. Search and
// settings failures do fail the request.
//
// # Thread Safety
//
// Safe for concurrent use. The service holds no per-request state.
type ChatRAGService struct {
	searcher  Searcher
	settings  SettingsReader
	providers ProviderRegistry
	observe   ProviderObserver
}

// NewChatRAGService creates a ChatRAGService.
func NewChatRAGService(searcher Searcher, settings SettingsReader, providers ProviderRegistry) *ChatRAGService {
	return &ChatRAGService{
		searcher:  searcher,
		settings:  settings,
		providers: providers,
		observe:   func(string, string) {},
	}
}

// OnProviderCall installs an observer for provider outcomes.
func (s *ChatRAGService) OnProviderCall(fn ProviderObserver) {
	if fn != nil {
		s.observe = fn
	}
}

// Process handles a chat request end-to-end.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - req: Chat request. Validated here.
//
// # Outputs
//
//   - *datatypes.ChatResponse: Always non-nil when err is nil. Sources is
//     never nil.
//   - error: *datatypes.ValidationError for a bad request, or a wrapped
//     store/settings error.
func (s *ChatRAGService) Process(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	ctx, span := chatRAGTracer.Start(ctx, "ChatRAGService.Process")
	defer span.End()

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	scopes := ResolveScopes(req)
	settingsScope := settings.GlobalScope
	if len(scopes) > 0 {
		settingsScope = scopes[0]
	}
	view, err := s.settings.View(ctx, settingsScope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settings failed")
		return nil, fmt.Errorf("loading settings for %s: %w", settingsScope, err)
	}

	includeSparse := view.Retrieval.IncludeSparse
	if req.IncludeSparse != nil {
		includeSparse = *req.IncludeSparse
	}
	topK := view.Retrieval.TopK
	if req.TopK != nil && *req.TopK > 0 {
		topK = *req.TopK
	}
	topK = search.ClampTopK(topK)

	debug := datatypes.ChatDebug{
		Scopes:        scopes,
		IncludeSparse: includeSparse,
		TopK:          topK,
	}
	span.SetAttributes(
		attribute.StringSlice("chat.scopes", scopes),
		attribute.Bool("chat.include_sparse", includeSparse),
		attribute.Int("chat.top_k", topK),
	)

	sources := []datatypes.SearchMatch{}
	if includeSparse && len(scopes) > 0 {
		start := time.Now()
		sources, err = s.retrieve(ctx, scopes, req.Message, topK)
		debug.RetrievalMs = time.Since(start).Milliseconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "retrieval failed")
			return nil, err
		}
	}
	debug.RetrievedCount = len(sources)

	messages := BuildMessages(view.Chat.SystemPrompt, req.Message, sources)
	debug.PromptChars = len(messages[0].Content) + len(messages[1].Content)

	resp := &datatypes.ChatResponse{Sources: sources}
	answer, sel, err := s.generate(ctx, req.ModelOverride, view.Chat, messages)
	debug.Provider = string(sel.Kind)
	debug.Model = sel.Model
	if err != nil {
		span.RecordError(err)
		slog.Warn("Chat provider failed, returning diagnostic answer",
			"provider", sel.Kind, "model", sel.Model, "error", err)
		debug.Error = err.Error()
		resp.Error = err.Error()
		answer = diagnosticMessage(sel, err, len(sources))
	}
	resp.Message = datatypes.Message{Role: datatypes.RoleAssistant, Content: answer}
	resp.Debug = debug
	return resp, nil
}

// retrieve searches every scope with bounded concurrency and merges the
// results by descending score.
func (s *ChatRAGService) retrieve(ctx context.Context, scopes []string, query string, topK int) ([]datatypes.SearchMatch, error) {
	ctx, span := chatRAGTracer.Start(ctx, "ChatRAGService.retrieve")
	defer span.End()

	perScope := make([][]datatypes.SearchMatch, len(scopes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxSearchFanOut)
	for i, scope := range scopes {
		g.Go(func() error {
			matches, err := s.searcher.Search(gctx, scope, query, topK)
			if err != nil {
				return err
			}
			perScope[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	merged := make([]datatypes.SearchMatch, 0, len(scopes)*topK)
	for _, matches := range perScope {
		merged = append(merged, matches...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > topK {
		merged = merged[:topK]
	}
	span.SetAttributes(attribute.Int("retrieval.results", len(merged)))
	return merged, nil
}

func (s *ChatRAGService) generate(ctx context.Context, override string, chat settings.ChatSettings, messages []datatypes.Message) (string, llm.Selection, error) {
	ctx, span := chatRAGTracer.Start(ctx, "ChatRAGService.generate")
	defer span.End()

	sel, err := s.providers.Resolve(override, llm.Defaults{Provider: chat.Provider, Model: chat.Model})
	if err != nil {
		s.observe(string(sel.Kind), "unavailable")
		return "", sel, err
	}
	span.SetAttributes(attribute.String("llm.provider", string(sel.Kind)), attribute.String("llm.model", sel.Model))

	client, err := s.providers.Client(sel)
	if err != nil {
		s.observe(string(sel.Kind), "unavailable")
		return "", sel, err
	}

	params := llm.GenerationParams{Temperature: llm.Float32(float32(chat.Temperature))}
	if chat.MaxTokens > 0 {
		params.MaxTokens = llm.Int(chat.MaxTokens)
	}
	answer, err := client.Chat(ctx, messages, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider call failed")
		s.observe(string(sel.Kind), "error")
		return "", sel, err
	}
	s.observe(string(sel.Kind), "ok")
	return answer, sel, nil
}

// =============================================================================
// Helpers
// =============================================================================

// ResolveScopes returns the corpora a request retrieves from:
// Sources.CorpusIDs when non-empty, else CorpusID, else none. Blank and
// repeated ids are dropped.
func ResolveScopes(req *datatypes.ChatRequest) []string {
	ids := req.Sources.CorpusIDs
	if len(ids) == 0 && strings.TrimSpace(req.CorpusID) != "" {
		ids = []string{req.CorpusID}
	}
	scopes := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		scopes = append(scopes, id)
	}
	return scopes
}

// BuildMessages assembles the system and user messages for one question.
//
// The user message lists each source as a numbered block headed by
// "[n] path:start-end", followed by the question.
func BuildMessages(systemPrompt, question string, sources []datatypes.SearchMatch) []datatypes.Message {
	system := strings.TrimSpace(systemPrompt)
	if system != "" {
		system += "\n\n"
	}
	system += citationInstructions

	var user strings.Builder
	if len(sources) == 0 {
		user.WriteString(noContextNotice)
		user.WriteString("\n\n")
	} else {
		user.WriteString("Context:\n\n")
		for i, src := range sources {
			fmt.Fprintf(&user, "[%d] %s:%d-%d\n%s\n\n", i+1, src.FilePath, src.StartLine, src.EndLine, strings.TrimSpace(src.Content))
		}
	}
	user.WriteString("Question: ")
	user.WriteString(strings.TrimSpace(question))

	return []datatypes.Message{
		{Role: datatypes.RoleSystem, Content: system},
		{Role: datatypes.RoleUser, Content: user.String()},
	}
}

func diagnosticMessage(sel llm.Selection, err error, sourceCount int) string {
	provider := string(sel.Kind)
	if provider == "" {
		provider = "configured"
	}
	msg := fmt.Sprintf("The %s provider could not produce an answer (%v).", provider, err)
	if sourceCount > 0 {
		msg += fmt.Sprintf(" The %d retrieved sources are still listed.", sourceCount)
	}
	return msg
}
