// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive copies completed eval runs to Google Cloud Storage.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"google.golang.org/api/option"
)

// DefaultPrefix is the object prefix used when none is configured.
const DefaultPrefix = "eval-runs"

// writerFunc opens a writer for one object.
type writerFunc func(ctx context.Context, object string) io.WriteCloser

// GCSArchiver writes each run as JSON to gs://<bucket>/<prefix>/<corpus>/<run_id>.json.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	prefix string
	open   writerFunc
}

// NewGCSArchiver creates an archiver for bucket. When credentialsFile is
// set it must exist; otherwise application default credentials are used.
func NewGCSArchiver(ctx context.Context, bucket, prefix, credentialsFile string, opts ...option.ClientOption) (*GCSArchiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", credentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	a := newArchiver(bucket, prefix, nil)
	a.client = client
	a.open = func(ctx context.Context, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = "application/json"
		w.CacheControl = "no-cache, no-store, must-revalidate"
		return w
	}
	slog.Info("Eval run archive enabled", "bucket", bucket, "prefix", a.prefix)
	return a, nil
}

func newArchiver(bucket, prefix string, open writerFunc) *GCSArchiver {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &GCSArchiver{bucket: bucket, prefix: prefix, open: open}
}

// ObjectName returns the object path of a run.
func (a *GCSArchiver) ObjectName(run datatypes.EvalRun) string {
	return path.Join(a.prefix, run.CorpusID, run.RunID+".json")
}

// Archive uploads one run.
func (a *GCSArchiver) Archive(ctx context.Context, run datatypes.EvalRun) error {
	object := a.ObjectName(run)
	w := a.open(ctx, object)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write run %s to GCS object %s: %w", run.RunID, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", object, err)
	}
	slog.Info("Archived eval run", "run_id", run.RunID, "object", "gs://"+a.bucket+"/"+object)
	return nil
}

// Close releases the storage client.
func (a *GCSArchiver) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}
