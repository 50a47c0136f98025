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
)

// ScoreEntry computes the per-question metrics of one ranking.
//
// Relevance is binary: a retrieved path is relevant when it is one of the
// expected paths. With no expected paths every metric is zero.
func ScoreEntry(expected, retrieved []string, topK int) datatypes.EntryResult {
	var r datatypes.EntryResult
	if len(expected) == 0 {
		return r
	}
	relevant := make(map[string]struct{}, len(expected))
	for _, p := range expected {
		relevant[p] = struct{}{}
	}

	for i, p := range retrieved {
		if _, ok := relevant[p]; ok {
			r.Rank = i + 1
			break
		}
	}
	if r.Rank > 0 {
		r.ReciprocalRank = 1 / float64(r.Rank)
		r.Top1Hit = r.Rank == 1
		r.TopKHit = r.Rank <= topK
	}

	r.RecallAtK = recallAt(relevant, retrieved, topK)
	r.RecallAt5 = recallAt(relevant, retrieved, 5)
	r.RecallAt10 = recallAt(relevant, retrieved, 10)
	r.RecallAt20 = recallAt(relevant, retrieved, 20)
	r.PrecisionAt5 = float64(hitsAt(relevant, retrieved, 5)) / 5
	r.NDCGAt10 = ndcgAt(relevant, retrieved, 10)
	return r
}

func hitsAt(relevant map[string]struct{}, retrieved []string, k int) int {
	hits := 0
	for _, p := range retrieved[:min(k, len(retrieved))] {
		if _, ok := relevant[p]; ok {
			hits++
		}
	}
	return hits
}

func recallAt(relevant map[string]struct{}, retrieved []string, k int) float64 {
	return float64(hitsAt(relevant, retrieved, k)) / float64(len(relevant))
}

func ndcgAt(relevant map[string]struct{}, retrieved []string, k int) float64 {
	var dcg float64
	for i, p := range retrieved[:min(k, len(retrieved))] {
		if _, ok := relevant[p]; ok {
			dcg += 1 / math.Log2(float64(i+2))
		}
	}
	var idcg float64
	for i := range min(len(relevant), k) {
		idcg += 1 / math.Log2(float64(i+2))
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// Aggregate averages per-entry results into run metrics and counts hits.
func Aggregate(results []datatypes.EntryResult) (m datatypes.RunMetrics, top1Hits, topKHits int) {
	if len(results) == 0 {
		return m, 0, 0
	}
	latencies := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Top1Hit {
			top1Hits++
		}
		if r.TopKHit {
			topKHits++
		}
		m.MRR += r.ReciprocalRank
		m.RecallAtK += r.RecallAtK
		m.RecallAt5 += r.RecallAt5
		m.RecallAt10 += r.RecallAt10
		m.RecallAt20 += r.RecallAt20
		m.PrecisionAt5 += r.PrecisionAt5
		m.NDCGAt10 += r.NDCGAt10
		m.LatencyMean += r.LatencyMs
		latencies = append(latencies, r.LatencyMs)
	}
	n := float64(len(results))
	m.Top1Accuracy = float64(top1Hits) / n
	m.TopKAccuracy = float64(topKHits) / n
	m.MRR /= n
	m.RecallAtK /= n
	m.RecallAt5 /= n
	m.RecallAt10 /= n
	m.RecallAt20 /= n
	m.PrecisionAt5 /= n
	m.NDCGAt10 /= n
	m.LatencyMean = round2(m.LatencyMean / n)

	slices.Sort(latencies)
	m.LatencyP50 = round2(percentile(latencies, 0.50))
	m.LatencyP95 = round2(percentile(latencies, 0.95))
	return m, top1Hits, topKHits
}

// percentile calculates the p-th percentile of sorted samples using linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	index := p * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}

	fraction := index - float64(lower)
	return sorted[lower]*(1-fraction) + sorted[upper]*fraction
}
