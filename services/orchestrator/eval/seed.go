// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import (
	"path"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/google/uuid"
)

// DefaultSeedLimit caps the number of seeded questions per corpus.
const DefaultSeedLimit = 25

// SeedTag marks generated dataset entries.
const SeedTag = "seeded"

// SeedQuestion returns the generated question for a file path.
func SeedQuestion(filePath string) string {
	return "Where is " + pathStem(filePath) + " implemented and what does it do?"
}

// pathStem is the file name without extension, with '_' and '-' as spaces.
func pathStem(filePath string) string {
	base := path.Base(strings.ReplaceAll(filePath, "\\", "/"))
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.NewReplacer("_", " ", "-", " ").Replace(base)
}

// SeedEntries builds one entry per path, in the given order, up to limit.
// A limit of zero or less means DefaultSeedLimit.
func SeedEntries(corpusID string, paths []string, limit int, now time.Time) []datatypes.DatasetEntry {
	if limit <= 0 {
		limit = DefaultSeedLimit
	}
	if len(paths) > limit {
		paths = paths[:limit]
	}
	entries := make([]datatypes.DatasetEntry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, datatypes.DatasetEntry{
			CorpusID:      corpusID,
			EntryID:       uuid.NewString(),
			Question:      SeedQuestion(p),
			ExpectedPaths: []string{p},
			Tags:          []string{SeedTag},
			CreatedAt:     now,
		})
	}
	return entries
}
