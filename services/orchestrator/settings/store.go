// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package settings is the per-scope configuration store.
//
// A scope is a corpus id or GlobalScope. Each scope owns a JSON-shaped
// settings tree that is created from defaults on first read, patched by
// deep merge, and discarded by Reset so the next read re-derives it.
//
// # Concurrency
//
// All operations on one Store are serialized by a mutex. Concurrent patches
// to a scope are last-write-wins.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
)

// ScopeBackend persists scope trees.
type ScopeBackend interface {
	Load(ctx context.Context, scope string) (map[string]any, bool, error)
	Save(ctx context.Context, scope string, tree map[string]any) error
	Delete(ctx context.Context, scope string) error
	Scopes(ctx context.Context) ([]string, error)
}

// WriteHook observes successful writes. op is "patch", "replace", "reset",
// or "prompt".
type WriteHook func(scope, op string)

// Store is the scope-keyed settings store.
type Store struct {
	mu       sync.Mutex
	backend  ScopeBackend
	defaults map[string]any
	onWrite  WriteHook
}

// NewStore returns a Store over backend with the built-in defaults.
func NewStore(backend ScopeBackend) *Store {
	return &Store{backend: backend, defaults: BuiltinDefaults()}
}

// OnWrite installs a hook called after every successful write.
func (s *Store) OnWrite(hook WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = hook
}

// SetDefaults replaces the base defaults with builtin defaults overlaid by
// overlay. Scopes that already exist keep their trees until reset.
func (s *Store) SetDefaults(overlay map[string]any) error {
	normalized, err := normalize(overlay)
	if err != nil {
		return err
	}
	for section := range normalized {
		if !IsSection(section) {
			return datatypes.NewValidation(section, "unknown settings section")
		}
	}
	merged := DeepMerge(BuiltinDefaults(), normalized)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = merged
	return nil
}

// Defaults returns a copy of the current base defaults.
func (s *Store) Defaults() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopyMap(s.defaults)
}

// Get returns the tree of a scope, materializing it on first access.
//
// # Description
//
// A new scope starts from the base defaults. Scopes other than GlobalScope
// and MemoryCorpusID also get their own id appended to
// retrieval.sources.corpus_ids. The returned map is a copy.
func (s *Store) Get(ctx context.Context, scope string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, normalizeScope(scope))
}

// View returns the typed view of a scope.
func (s *Store) View(ctx context.Context, scope string) (View, error) {
	tree, err := s.Get(ctx, scope)
	if err != nil {
		return View{}, err
	}
	return Decode(tree)
}

// PatchSection deep-merges partial into one section of a scope.
//
// # Inputs
//
//   - scope: Scope to patch. Empty means GlobalScope.
//   - section: One of Sections(); anything else is a validation error.
//   - partial: Patch object.
//
// # Outputs
//
//   - map[string]any: The full tree after the patch.
//   - error: *datatypes.ValidationError for unknown sections or values that
//     no longer decode; backend errors otherwise.
func (s *Store) PatchSection(ctx context.Context, scope, section string, partial map[string]any) (map[string]any, error) {
	if !IsSection(section) {
		return nil, datatypes.NewValidation("section",
			fmt.Sprintf("unknown section %q, expected one of %s", section, strings.Join(Sections(), ", ")))
	}
	patch, err := normalize(partial)
	if err != nil {
		return nil, datatypes.NewValidation(section, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scope = normalizeScope(scope)
	tree, err := s.getLocked(ctx, scope)
	if err != nil {
		return nil, err
	}
	current, _ := tree[section].(map[string]any)
	tree[section] = DeepMerge(current, patch)

	if _, err := Decode(tree); err != nil {
		return nil, err
	}
	if err := s.saveLocked(ctx, scope, tree, "patch"); err != nil {
		return nil, err
	}
	return deepCopyMap(tree), nil
}

// Replace overwrites the whole tree of a scope. Unknown top-level sections
// are rejected.
func (s *Store) Replace(ctx context.Context, scope string, tree map[string]any) (map[string]any, error) {
	normalized, err := normalize(tree)
	if err != nil {
		return nil, datatypes.NewValidation("config", err.Error())
	}
	for section := range normalized {
		if !IsSection(section) {
			return nil, datatypes.NewValidation(section, "unknown settings section")
		}
	}
	if _, err := Decode(normalized); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveLocked(ctx, normalizeScope(scope), normalized, "replace"); err != nil {
		return nil, err
	}
	return deepCopyMap(normalized), nil
}

// Reset discards a scope so the next Get re-derives its defaults.
func (s *Store) Reset(ctx context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope = normalizeScope(scope)
	if err := s.backend.Delete(ctx, scope); err != nil {
		return err
	}
	s.notify(scope, "reset")
	return nil
}

// Scopes lists the materialized scopes.
func (s *Store) Scopes(ctx context.Context) ([]string, error) {
	return s.backend.Scopes(ctx)
}

// Prompts lists every prompt slot as resolved in a scope.
func (s *Store) Prompts(ctx context.Context, scope string) ([]Prompt, error) {
	tree, err := s.Get(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make([]Prompt, 0, len(promptSlots))
	for _, slot := range promptSlots {
		out = append(out, resolvePrompt(tree, slot))
	}
	return out, nil
}

// Prompt resolves one slot. Unknown keys return a *datatypes.NotFoundError.
func (s *Store) Prompt(ctx context.Context, scope, key string) (Prompt, error) {
	slot, err := LookupPromptSlot(key)
	if err != nil {
		return Prompt{}, err
	}
	tree, err := s.Get(ctx, scope)
	if err != nil {
		return Prompt{}, err
	}
	return resolvePrompt(tree, slot), nil
}

// SetPrompt writes a slot's text.
func (s *Store) SetPrompt(ctx context.Context, scope, key, value string) (Prompt, error) {
	slot, err := LookupPromptSlot(key)
	if err != nil {
		return Prompt{}, err
	}
	return s.writePrompt(ctx, scope, slot, value)
}

// ResetPrompt restores a slot's built-in text.
func (s *Store) ResetPrompt(ctx context.Context, scope, key string) (Prompt, error) {
	slot, err := LookupPromptSlot(key)
	if err != nil {
		return Prompt{}, err
	}
	return s.writePrompt(ctx, scope, slot, slot.Default)
}

func (s *Store) writePrompt(ctx context.Context, scope string, slot PromptSlot, value string) (Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope = normalizeScope(scope)
	tree, err := s.getLocked(ctx, scope)
	if err != nil {
		return Prompt{}, err
	}
	setPath(tree, slot.Path, value)
	if err := s.saveLocked(ctx, scope, tree, "prompt"); err != nil {
		return Prompt{}, err
	}
	return resolvePrompt(tree, slot), nil
}

// =============================================================================
// Internal
// =============================================================================

func (s *Store) getLocked(ctx context.Context, scope string) (map[string]any, error) {
	tree, found, err := s.backend.Load(ctx, scope)
	if err != nil {
		return nil, err
	}
	if found {
		if tree == nil {
			tree = map[string]any{}
		}
		return tree, nil
	}

	tree = scopeDefaults(s.defaults, scope)
	if err := s.backend.Save(ctx, scope, tree); err != nil {
		return nil, err
	}
	slog.Debug("materialized settings scope", "scope", scope)
	return deepCopyMap(tree), nil
}

func (s *Store) saveLocked(ctx context.Context, scope string, tree map[string]any, op string) error {
	if err := s.backend.Save(ctx, scope, tree); err != nil {
		return err
	}
	s.notify(scope, op)
	return nil
}

func (s *Store) notify(scope, op string) {
	if s.onWrite != nil {
		s.onWrite(scope, op)
	}
}

func normalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return GlobalScope
	}
	return scope
}

func validationFor(err *json.UnmarshalTypeError) error {
	field := err.Field
	if field == "" {
		field = "config"
	}
	return datatypes.NewValidation(field, fmt.Sprintf("expected %s, got %s", err.Type, err.Value))
}
