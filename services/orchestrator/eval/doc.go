// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package eval synthesizes retrieval benchmark runs for the demo dashboard.
//
// # Overview
//
// No trained reranker or judge runs in the demo, so a run is synthesized:
// for each dataset question a ranked list of file paths is drawn from the
// corpus, and the expected path is injected at rank 1, at a random rank in
// the window, or not at all, according to an accuracy bias. Standard IR
// metrics are then computed over the synthesized lists.
//
// # Pipeline
//
//	dataset ──► SeedDataset (once per corpus)
//	   │
//	   ▼
//	Synthesize(entries, paths, Options, RNG) ──► []EntryResult
//	   │
//	   ▼
//	Aggregate ──► RunMetrics ──► EvalRun ──► store / cache / archive
//
// # Determinism
//
// All randomness flows through the RNG interface. The same seed, bias,
// dataset, and path list produce identical results.
package eval
