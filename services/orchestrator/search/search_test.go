// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	calls   int
	lastArg string
	limit   int
	err     error
}

func (s *stubSearcher) SearchChunks(_ context.Context, _ string, match string, limit int) ([]datatypes.SearchMatch, error) {
	s.calls++
	s.lastArg = match
	s.limit = limit
	return []datatypes.SearchMatch{}, s.err
}

func TestBuildMatchQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace", "   \t", ""},
		{"single chars dropped", "a b c", ""},
		{"lowercased and quoted", "Auth Token", `"auth" OR "token"`},
		{"punctuation splits", "user_login(token)", `"user" OR "login" OR "token"`},
		{"operators neutralized", `NEAR("x" AND y)`, `"near" OR "and"`},
		{"duplicates removed", "cache Cache CACHE", `"cache"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildMatchQuery(tt.in))
		})
	}
}

func TestClampTopK(t *testing.T) {
	assert.Equal(t, DefaultTopK, ClampTopK(0))
	assert.Equal(t, DefaultTopK, ClampTopK(-3))
	assert.Equal(t, 1, ClampTopK(1))
	assert.Equal(t, MaxTopK, ClampTopK(500))
}

func TestSearch_EmptyQuerySkipsStore(t *testing.T) {
	stub := &stubSearcher{}
	matches, err := NewEngine(stub).Search(context.Background(), "demo-1", "  ", 5)

	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
	assert.Zero(t, stub.calls)
}

func TestSearch_ClampsLimit(t *testing.T) {
	stub := &stubSearcher{}
	_, err := NewEngine(stub).Search(context.Background(), "demo-1", "login", 1000)

	require.NoError(t, err)
	assert.Equal(t, MaxTopK, stub.limit)
	assert.Equal(t, `"login"`, stub.lastArg)
}

func TestSearch_StoreError(t *testing.T) {
	stub := &stubSearcher{err: errors.New("disk gone")}
	_, err := NewEngine(stub).Search(context.Background(), "demo-1", "login", 5)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestSearch_AgainstStore(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "demo.db")))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.ReindexCorpus(ctx, datatypes.Snapshot{
		Corpus: datatypes.Corpus{CorpusID: "demo-1"},
		Chunks: []datatypes.Chunk{
			{ChunkID: "c1", FilePath: "a.py", Content: "def parse_config(path): return load(path)"},
			{ChunkID: "c2", FilePath: "b.py", Content: "class Cache: def get(self, key): pass"},
			{ChunkID: "c3", FilePath: "c.py", Content: "cache config loader"},
		},
	}, nil)
	require.NoError(t, err)

	engine := NewEngine(store)

	t.Run("no match returns empty", func(t *testing.T) {
		matches, err := engine.Search(ctx, "demo-1", "auth", 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("coverage ranks higher", func(t *testing.T) {
		matches, err := engine.Search(ctx, "demo-1", "cache config", 5)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "c3", matches[0].ChunkID)
		for _, m := range matches {
			assert.Equal(t, datatypes.SourceSparse, m.Source)
		}
	})

	t.Run("other corpus is empty", func(t *testing.T) {
		matches, err := engine.Search(ctx, "demo-2", "cache", 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}
