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
	"math"
	"slices"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/settings"
)

// Synthesis defaults.
const (
	DefaultTopK         = 5
	MaxTopK             = 50
	DefaultAccuracyBias = 0.65
	DefaultWindowMass   = 0.2
	DefaultLatencyMinMs = 40
	DefaultLatencyMaxMs = 180
)

// Options controls one synthesized run.
type Options struct {
	// TopK is the length of each synthesized ranking.
	TopK int

	// SampleSize limits the entries evaluated. Zero evaluates all.
	SampleSize int

	// Seed feeds NewRNG.
	Seed uint64

	// AccuracyBias is the probability of injecting the expected path at
	// rank 1.
	AccuracyBias float64

	// WindowMass is the extra probability of injecting it at a random
	// rank in [1, TopK].
	WindowMass float64

	// LatencyMinMs and LatencyMaxMs bound the uniform synthetic latency.
	LatencyMinMs float64
	LatencyMaxMs float64
}

// DefaultOptions returns the built-in options.
func DefaultOptions() Options {
	return Options{
		TopK:         DefaultTopK,
		Seed:         42,
		AccuracyBias: DefaultAccuracyBias,
		WindowMass:   DefaultWindowMass,
		LatencyMinMs: DefaultLatencyMinMs,
		LatencyMaxMs: DefaultLatencyMaxMs,
	}
}

// OptionsFromSettings maps the eval settings section onto Options.
func OptionsFromSettings(s settings.EvalSettings) Options {
	opts := DefaultOptions()
	opts.TopK = s.TopK
	opts.SampleSize = s.SampleSize
	opts.Seed = s.Seed
	opts.AccuracyBias = s.AccuracyBias
	return opts.normalized()
}

func (o Options) normalized() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.TopK > MaxTopK {
		o.TopK = MaxTopK
	}
	if o.SampleSize < 0 {
		o.SampleSize = 0
	}
	o.AccuracyBias = clamp01(o.AccuracyBias)
	o.WindowMass = clamp01(o.WindowMass)
	if o.LatencyMaxMs < o.LatencyMinMs {
		o.LatencyMinMs, o.LatencyMaxMs = o.LatencyMaxMs, o.LatencyMinMs
	}
	return o
}

// ProgressFunc is called after each entry with the completed count.
type ProgressFunc func(done, total int)

// Synthesize produces one result per evaluated entry.
//
// # Description
//
// When SampleSize is set and smaller than the dataset, a sample is drawn
// with rng first. For each entry the candidate pool is every path except
// the expected ones, shuffled. A subset of TopK to 2*TopK paths (bounded by
// the pool) is taken, then one draw r decides injection of the first
// expected path:
//
//	r < bias                 rank 1
//	r < bias + window mass   uniform rank in [1, TopK]
//	otherwise                not injected
//
// The list is deduplicated and cut to TopK, and metrics are scored on it.
//
// # Inputs
//
//   - entries: Dataset entries in stored order.
//   - allPaths: Every distinct file path of the corpus.
//   - opts: Options; out-of-range values are clamped.
//   - rng: Randomness source.
//   - progress: Optional, may be nil.
func Synthesize(entries []datatypes.DatasetEntry, allPaths []string, opts Options, rng RNG, progress ProgressFunc) []datatypes.EntryResult {
	opts = opts.normalized()
	entries = sample(entries, opts.SampleSize, rng)

	results := make([]datatypes.EntryResult, 0, len(entries))
	for i, e := range entries {
		retrieved := synthesizeRanking(e.ExpectedPaths, allPaths, opts, rng)
		r := ScoreEntry(e.ExpectedPaths, retrieved, opts.TopK)
		r.EntryID = e.EntryID
		r.Question = e.Question
		r.ExpectedPaths = slices.Clone(e.ExpectedPaths)
		r.RetrievedPaths = retrieved
		r.LatencyMs = round2(opts.LatencyMinMs + rng.Float64()*(opts.LatencyMaxMs-opts.LatencyMinMs))
		results = append(results, r)
		if progress != nil {
			progress(i+1, len(entries))
		}
	}
	return results
}

func sample(entries []datatypes.DatasetEntry, n int, rng RNG) []datatypes.DatasetEntry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	shuffled := slices.Clone(entries)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}

func synthesizeRanking(expected, allPaths []string, opts Options, rng RNG) []string {
	pool := make([]string, 0, len(allPaths))
	for _, p := range allPaths {
		if !slices.Contains(expected, p) {
			pool = append(pool, p)
		}
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	size := opts.TopK + rng.IntN(opts.TopK+1)
	if size > len(pool) {
		size = len(pool)
	}
	ranking := slices.Clone(pool[:size])

	r := rng.Float64()
	if len(expected) > 0 {
		target := expected[0]
		switch {
		case r < opts.AccuracyBias:
			ranking = slices.Insert(ranking, 0, target)
		case r < opts.AccuracyBias+opts.WindowMass:
			pos := rng.IntN(min(opts.TopK, len(ranking)+1))
			ranking = slices.Insert(ranking, pos, target)
		}
	}

	seen := make(map[string]struct{}, len(ranking))
	out := make([]string, 0, opts.TopK)
	for _, p := range ranking {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
		if len(out) == opts.TopK {
			break
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
