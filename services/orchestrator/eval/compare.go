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
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
)

// -----------------------------------------------------------------------------
// Compared Metrics
// -----------------------------------------------------------------------------

// Metric names used in comparisons.
const (
	MetricTop1Accuracy = "top1_accuracy"
	MetricTopKAccuracy = "topk_accuracy"
	MetricMRR          = "mrr"
)

type comparedMetric struct {
	name  string
	label string
	value func(datatypes.RunMetrics) float64
}

var comparedMetrics = []comparedMetric{
	{MetricTop1Accuracy, "Top-1 accuracy", func(m datatypes.RunMetrics) float64 { return m.Top1Accuracy }},
	{MetricTopKAccuracy, "Top-k accuracy", func(m datatypes.RunMetrics) float64 { return m.TopKAccuracy }},
	{MetricMRR, "MRR", func(m datatypes.RunMetrics) float64 { return m.MRR }},
}

// regressionEpsilon absorbs float noise in deltas.
const regressionEpsilon = 1e-9

// -----------------------------------------------------------------------------
// Compare
// -----------------------------------------------------------------------------

// Compare analyzes current against baseline.
//
// # Description
//
// Deltas are percentage points (difference times 100) on top-1 accuracy,
// top-k accuracy, and MRR. Any negative delta is a regression. When diffs
// is empty, diffs are derived from the two runs' config snapshots. The
// analysis text follows a fixed template so two identical inputs always
// yield the same report.
func Compare(baseline, current datatypes.EvalRun, diffs []datatypes.ConfigDiff) datatypes.Comparison {
	if len(diffs) == 0 {
		diffs = DiffConfigs(baseline.ConfigSnapshot, current.ConfigSnapshot)
	}
	cmp := datatypes.Comparison{
		BaselineRunID: baseline.RunID,
		CurrentRunID:  current.RunID,
		Deltas:        make([]datatypes.MetricDelta, 0, len(comparedMetrics)),
		ConfigDiffs:   diffs,
	}
	for _, m := range comparedMetrics {
		b, c := m.value(baseline.Metrics), m.value(current.Metrics)
		delta := (c - b) * 100
		d := datatypes.MetricDelta{
			Metric:      m.name,
			Baseline:    b,
			Current:     c,
			DeltaPoints: math.Round(delta*100) / 100,
			Regression:  delta < -regressionEpsilon,
		}
		if d.Regression {
			cmp.Regressions++
		}
		cmp.Deltas = append(cmp.Deltas, d)
	}
	cmp.Analysis = renderAnalysis(cmp)
	return cmp
}

func renderAnalysis(cmp datatypes.Comparison) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Comparison of run %s against baseline %s\n\n", orUnnamed(cmp.CurrentRunID), orUnnamed(cmp.BaselineRunID))
	b.WriteString("Metrics:\n")
	for i, d := range cmp.Deltas {
		flag := ""
		if d.Regression {
			flag = "  REGRESSION"
		}
		fmt.Fprintf(&b, "- %s: %.1f%% -> %.1f%% (%+.2f pp)%s\n",
			comparedMetrics[i].label, d.Baseline*100, d.Current*100, d.DeltaPoints, flag)
	}

	b.WriteString("\nConfiguration changes:\n")
	if len(cmp.ConfigDiffs) == 0 {
		b.WriteString("- none\n")
	}
	for _, diff := range cmp.ConfigDiffs {
		fmt.Fprintf(&b, "- %s: %s -> %s\n", diff.Key, formatValue(diff.Baseline), formatValue(diff.Current))
	}

	b.WriteString("\n")
	switch cmp.Regressions {
	case 0:
		b.WriteString("Summary: no regressions.")
	default:
		fmt.Fprintf(&b, "Summary: %d of %d metrics regressed.", cmp.Regressions, len(cmp.Deltas))
	}
	return b.String()
}

func orUnnamed(id string) string {
	if id == "" {
		return "(inline)"
	}
	return id
}

func formatValue(v any) string {
	if v == nil {
		return "(unset)"
	}
	return fmt.Sprintf("%v", v)
}

// DiffConfigs returns the leaf differences between two settings trees,
// keyed by dotted path and sorted. Arrays are compared as leaves.
func DiffConfigs(baseline, current map[string]any) []datatypes.ConfigDiff {
	a, b := map[string]any{}, map[string]any{}
	flatten("", baseline, a)
	flatten("", current, b)

	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	diffs := []datatypes.ConfigDiff{}
	for _, k := range keys {
		if !reflect.DeepEqual(a[k], b[k]) {
			diffs = append(diffs, datatypes.ConfigDiff{Key: k, Baseline: a[k], Current: b[k]})
		}
	}
	return diffs
}

func flatten(prefix string, tree map[string]any, out map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(key, child, out)
			continue
		}
		out[key] = v
	}
}
