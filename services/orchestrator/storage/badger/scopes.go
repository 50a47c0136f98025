// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const scopePrefix = "scope/"

// ScopeStore persists settings trees as JSON values keyed by scope.
type ScopeStore struct {
	db *DB
}

// NewScopeStore wraps an open database.
func NewScopeStore(db *DB) *ScopeStore {
	return &ScopeStore{db: db}
}

func scopeKey(scope string) []byte {
	return []byte(scopePrefix + scope)
}

// Load returns the stored tree of a scope. The boolean is false when the
// scope has never been written or was deleted.
func (s *ScopeStore) Load(ctx context.Context, scope string) (map[string]any, bool, error) {
	var (
		tree  map[string]any
		found bool
	)
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(scopeKey(scope))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tree)
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("loading scope %s: %w", scope, err)
	}
	return tree, found, nil
}

// Save writes the full tree of a scope.
func (s *ScopeStore) Save(ctx context.Context, scope string, tree map[string]any) error {
	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encoding scope %s: %w", scope, err)
	}
	err = s.db.Update(ctx, func(txn *badger.Txn) error {
		return txn.Set(scopeKey(scope), data)
	})
	if err != nil {
		return fmt.Errorf("saving scope %s: %w", scope, err)
	}
	return nil
}

// Delete removes a scope. Deleting a missing scope is not an error.
func (s *ScopeStore) Delete(ctx context.Context, scope string) error {
	err := s.db.Update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(scopeKey(scope))
	})
	if err != nil {
		return fmt.Errorf("deleting scope %s: %w", scope, err)
	}
	return nil
}

// Scopes lists the stored scope names in sorted order.
func (s *ScopeStore) Scopes(ctx context.Context) ([]string, error) {
	scopes := []string{}
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(scopePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			scopes = append(scopes, strings.TrimPrefix(string(it.Item().Key()), scopePrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing scopes: %w", err)
	}
	sort.Strings(scopes)
	return scopes, nil
}
