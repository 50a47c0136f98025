// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObject struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (m *memObject) Close() error {
	m.closed = true
	return m.closeErr
}

func TestArchive_WritesRunJSON(t *testing.T) {
	objects := map[string]*memObject{}
	a := newArchiver("bucket", "/runs/", func(ctx context.Context, object string) io.WriteCloser {
		o := &memObject{}
		objects[object] = o
		return o
	})

	run := datatypes.EvalRun{RunID: "demo-42", CorpusID: "demo", Total: 3}
	require.NoError(t, a.Archive(context.Background(), run))

	obj, ok := objects["runs/demo/demo-42.json"]
	require.True(t, ok)
	assert.True(t, obj.closed)

	var got datatypes.EvalRun
	require.NoError(t, json.Unmarshal(obj.Bytes(), &got))
	assert.Equal(t, "demo-42", got.RunID)
	assert.Equal(t, 3, got.Total)
}

func TestArchive_CloseErrorSurfaces(t *testing.T) {
	a := newArchiver("bucket", "", func(ctx context.Context, object string) io.WriteCloser {
		return &memObject{closeErr: errors.New("403 forbidden")}
	})
	assert.Equal(t, "eval-runs/c/r.json", a.ObjectName(datatypes.EvalRun{CorpusID: "c", RunID: "r"}))

	err := a.Archive(context.Background(), datatypes.EvalRun{CorpusID: "c", RunID: "r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403 forbidden")
	assert.NoError(t, a.Close())
}

func TestNewGCSArchiver_Validation(t *testing.T) {
	_, err := NewGCSArchiver(context.Background(), "", "", "")
	assert.Error(t, err)

	_, err = NewGCSArchiver(context.Background(), "bucket", "", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service account key not found")
}
