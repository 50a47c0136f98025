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
	"encoding/json"
	"fmt"
)

// DeepMerge returns a new tree with patch applied on top of base.
//
// Objects merge key by key, recursively. Arrays and scalars in patch
// replace the base value wholesale. Neither input is modified.
//
// Examples:
//
//	{a:{x:1}} + {a:{y:2}}  = {a:{x:1,y:2}}
//	{a:[1,2]} + {a:[3]}    = {a:[3]}
func DeepMerge(base, patch map[string]any) map[string]any {
	out := deepCopyMap(base)
	if out == nil {
		out = map[string]any{}
	}
	for k, pv := range patch {
		pm, patchIsObject := pv.(map[string]any)
		bm, baseIsObject := out[k].(map[string]any)
		if patchIsObject && baseIsObject {
			out[k] = DeepMerge(bm, pm)
			continue
		}
		out[k] = deepCopyValue(pv)
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// normalize converts an arbitrary decoded tree (for example from YAML) to
// the JSON value model: objects are map[string]any, arrays []any, numbers
// float64.
func normalize(tree map[string]any) (map[string]any, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("normalizing settings tree: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalizing settings tree: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
