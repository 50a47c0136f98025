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
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(badger.NewScopeStore(db))
}

// =============================================================================
// DeepMerge
// =============================================================================

func TestDeepMerge_ObjectsMergeRecursively(t *testing.T) {
	base := DeepMerge(map[string]any{}, map[string]any{"a": map[string]any{"x": 1.0}})
	got := DeepMerge(base, map[string]any{"a": map[string]any{"y": 2.0}})

	assert.Equal(t, map[string]any{"a": map[string]any{"x": 1.0, "y": 2.0}}, got)
}

func TestDeepMerge_ArraysReplace(t *testing.T) {
	base := DeepMerge(map[string]any{}, map[string]any{"a": []any{1.0, 2.0}})
	got := DeepMerge(base, map[string]any{"a": []any{3.0}})

	assert.Equal(t, map[string]any{"a": []any{3.0}}, got)
}

func TestDeepMerge_ScalarReplacesObjectAndBack(t *testing.T) {
	got := DeepMerge(map[string]any{"a": map[string]any{"x": 1.0}}, map[string]any{"a": "flat"})
	assert.Equal(t, "flat", got["a"])

	got = DeepMerge(got, map[string]any{"a": map[string]any{"y": 2.0}})
	assert.Equal(t, map[string]any{"y": 2.0}, got["a"])
}

func TestDeepMerge_DoesNotMutateInputs(t *testing.T) {
	base := map[string]any{"a": map[string]any{"x": 1.0}}
	patch := map[string]any{"a": map[string]any{"y": 2.0}}

	_ = DeepMerge(base, patch)

	assert.Equal(t, map[string]any{"a": map[string]any{"x": 1.0}}, base)
	assert.Equal(t, map[string]any{"a": map[string]any{"y": 2.0}}, patch)
}

// =============================================================================
// Store
// =============================================================================

func TestGet_GlobalDefaults(t *testing.T) {
	s := newTestStore(t)

	tree, err := s.Get(context.Background(), "")
	require.NoError(t, err)

	view, err := Decode(tree)
	require.NoError(t, err)
	assert.Empty(t, view.Retrieval.Sources.CorpusIDs)
	assert.Equal(t, 10, view.Retrieval.TopK)
	assert.True(t, view.Retrieval.IncludeSparse)
	assert.Equal(t, 1024, view.Chat.MaxTokens)
	assert.Equal(t, uint64(42), view.Eval.Seed)
}

func TestGet_InjectsScopeCorpus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	view, err := s.View(ctx, "demo-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"demo-1"}, view.Retrieval.Sources.CorpusIDs)
	assert.Equal(t, "demo-1", view.UI.ActiveCorpus)

	view, err = s.View(ctx, MemoryCorpusID)
	require.NoError(t, err)
	assert.Empty(t, view.Retrieval.Sources.CorpusIDs)
}

func TestPatchSection_PreservesSiblings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.PatchSection(ctx, GlobalScope, SectionChat, map[string]any{"temperature": 0.9})
	require.NoError(t, err)

	view, err := s.View(ctx, GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, 0.9, view.Chat.Temperature)
	assert.Equal(t, 1024, view.Chat.MaxTokens)
	assert.Equal(t, "openai", view.Chat.Provider)
}

func TestPatchSection_ArrayReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.PatchSection(ctx, "demo-1", SectionRetrieval,
		map[string]any{"sources": map[string]any{"corpus_ids": []any{"a", "b"}}})
	require.NoError(t, err)
	tree, err := s.PatchSection(ctx, "demo-1", SectionRetrieval,
		map[string]any{"sources": map[string]any{"corpus_ids": []any{"c"}}})
	require.NoError(t, err)

	retrieval := tree[SectionRetrieval].(map[string]any)
	assert.Equal(t, []any{"c"}, retrieval["sources"].(map[string]any)["corpus_ids"])
	assert.Equal(t, 10.0, retrieval["top_k"])
}

func TestPatchSection_UnknownSection(t *testing.T) {
	s := newTestStore(t)

	_, err := s.PatchSection(context.Background(), GlobalScope, "bogus", map[string]any{"x": 1})
	require.Error(t, err)

	var ve *datatypes.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "section", ve.Field)
	assert.Contains(t, ve.Reason, "retrieval, chat, graph, eval, prompts, ui")
}

func TestPatchSection_WrongTypeRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.PatchSection(ctx, GlobalScope, SectionChat, map[string]any{"temperature": "hot"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, datatypes.ErrValidation))

	view, err := s.View(ctx, GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, 0.2, view.Chat.Temperature)
}

func TestReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Replace(ctx, "demo-1", map[string]any{"chat": map[string]any{"model": "tiny"}})
	require.NoError(t, err)

	tree, err := s.Get(ctx, "demo-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"chat": map[string]any{"model": "tiny"}}, tree)

	// Missing fields fall back to built-in values in the typed view.
	view, err := Decode(tree)
	require.NoError(t, err)
	assert.Equal(t, "tiny", view.Chat.Model)
	assert.Equal(t, 1024, view.Chat.MaxTokens)

	_, err = s.Replace(ctx, "demo-1", map[string]any{"weird": map[string]any{}})
	assert.True(t, errors.Is(err, datatypes.ErrValidation))
}

func TestReset_ReappliesScopeInjection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.PatchSection(ctx, "demo-1", SectionRetrieval,
		map[string]any{"sources": map[string]any{"corpus_ids": []any{}}})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx, "demo-1"))

	view, err := s.View(ctx, "demo-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"demo-1"}, view.Retrieval.Sources.CorpusIDs)
}

func TestWriteHook(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ops []string
	s.OnWrite(func(scope, op string) { ops = append(ops, scope+":"+op) })

	_, err := s.Get(ctx, "demo-1")
	require.NoError(t, err)
	_, err = s.PatchSection(ctx, "demo-1", SectionUI, map[string]any{"show_debug": true})
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx, "demo-1"))

	assert.Equal(t, []string{"demo-1:patch", "demo-1:reset"}, ops)
}

func TestConcurrentPatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.PatchSection(ctx, GlobalScope, SectionUI, map[string]any{"n": float64(i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	tree, err := s.Get(ctx, GlobalScope)
	require.NoError(t, err)
	assert.Contains(t, tree[SectionUI], "n")
}

// =============================================================================
// Prompts
// =============================================================================

func TestPrompts_DefaultsAndOverrides(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prompts, err := s.Prompts(ctx, GlobalScope)
	require.NoError(t, err)
	require.Len(t, prompts, 4)
	for _, p := range prompts {
		assert.True(t, p.IsDefault, p.Key)
		assert.NotEmpty(t, p.Value)
	}

	p, err := s.SetPrompt(ctx, GlobalScope, PromptQueryRewrite, "expand: %s")
	require.NoError(t, err)
	assert.Equal(t, "expand: %s", p.Value)
	assert.False(t, p.IsDefault)

	tree, err := s.Get(ctx, GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, "expand: %s", tree[SectionPrompts].(map[string]any)["query_rewrite"])

	p, err = s.ResetPrompt(ctx, GlobalScope, PromptQueryRewrite)
	require.NoError(t, err)
	assert.True(t, p.IsDefault)
}

func TestPrompts_SystemPromptFeedsChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SetPrompt(ctx, "demo-1", PromptSystem, "Be brief.")
	require.NoError(t, err)

	view, err := s.View(ctx, "demo-1")
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", view.Chat.SystemPrompt)
}

func TestPrompts_UnknownKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SetPrompt(ctx, GlobalScope, "nope", "x")
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))

	_, err = s.ResetPrompt(ctx, GlobalScope, "nope")
	var nf *datatypes.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "prompt", nf.Kind)

	_, err = s.Prompt(ctx, GlobalScope, "nope")
	assert.True(t, errors.Is(err, datatypes.ErrNotFound))
}

func TestPrompt_ResolvesScopeOverride(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SetPrompt(ctx, "demo-1", PromptSystem, "Be brief.")
	require.NoError(t, err)

	p, err := s.Prompt(ctx, "demo-1", PromptSystem)
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", p.Value)
	assert.False(t, p.IsDefault)

	p, err = s.Prompt(ctx, GlobalScope, PromptSystem)
	require.NoError(t, err)
	assert.True(t, p.IsDefault)
}

// =============================================================================
// Defaults overlay
// =============================================================================

func TestLoadDefaultsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat:\n  provider: anthropic\n  max_tokens: 512\n"), 0600))

	s := newTestStore(t)
	require.NoError(t, s.LoadDefaultsFile(path))

	view, err := s.View(context.Background(), GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", view.Chat.Provider)
	assert.Equal(t, 512, view.Chat.MaxTokens)
	assert.Equal(t, 0.2, view.Chat.Temperature)
}

func TestLoadDefaultsFile_UnknownSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bogus:\n  x: 1\n"), 0600))

	err := newTestStore(t).LoadDefaultsFile(path)
	assert.True(t, errors.Is(err, datatypes.ErrValidation))
}

func TestWatchDefaults_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("graph:\n  max_hops: 3\n"), 0600))

	s := newTestStore(t)
	require.NoError(t, s.LoadDefaultsFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan error, 4)
	require.NoError(t, s.WatchDefaults(ctx, path, 20*time.Millisecond, func(err error) {
		select {
		case reloaded <- err:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("graph:\n  max_hops: 4\n"), 0600))

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("defaults were not reloaded")
	}

	view, err := Decode(s.Defaults())
	require.NoError(t, err)
	assert.Equal(t, 4, view.Graph.MaxHops)
}
