// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianDemo/pkg/logging"
	"github.com/AleutianAI/AleutianDemo/pkg/ux"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/storage/sqlite"
)

// APIError is a non-success answer from the server.
type APIError struct {
	Status  int
	Message string
	Field   string
	Kind    string
	ID      string

	// Unsupported is set for 200 answers that carry only an error, which
	// the server uses for operations the deployment does not allow.
	Unsupported bool
}

func (e *APIError) Error() string {
	switch {
	case e.Unsupported:
		return "unsupported: " + e.Message
	case e.Field != "":
		return fmt.Sprintf("%s (field %s, HTTP %d)", e.Message, e.Field, e.Status)
	case e.Kind != "":
		return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
	default:
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
	}
}

// Client talks to the orchestrator's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logging.Logger
}

// NewClient creates a Client. timeout bounds non-streaming calls only.
func NewClient(baseURL string, timeout time.Duration, logger *logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends one JSON request and decodes a 2xx answer into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("API call", "method", method, "path", path, "status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if apiErr := unsupportedError(data); apiErr != nil {
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// stream sends a request with no client timeout and returns the open
// event stream. The caller closes it.
func (c *Client) stream(ctx context.Context, method, path string, body any) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	streaming := &http.Client{Transport: c.http.Transport}
	resp, err := streaming.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return resp.Body, nil
}

func decodeAPIError(status int, data []byte) error {
	var body struct {
		Error string `json:"error"`
		Field string `json:"field"`
		Kind  string `json:"kind"`
		ID    string `json:"id"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(status)
		}
	}
	return &APIError{Status: status, Message: body.Error, Field: body.Field, Kind: body.Kind, ID: body.ID}
}

func unsupportedError(data []byte) *APIError {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil || len(body) != 1 {
		return nil
	}
	raw, ok := body["error"]
	if !ok {
		return nil
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}
	return &APIError{Status: http.StatusOK, Message: msg, Unsupported: true}
}

// =============================================================================
// API Methods
// =============================================================================

// Health returns the raw /health body. A 503 is returned as a body, not an
// error, so the caller can show which service is down.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusServiceUnavailable {
		return map[string]any{"ok": false, "status": "unhealthy", "error": apiErr.Message}, nil
	}
	return out, err
}

// Corpora lists every corpus.
func (c *Client) Corpora(ctx context.Context) ([]datatypes.Corpus, error) {
	var out struct {
		Corpora []datatypes.Corpus `json:"corpora"`
	}
	err := c.do(ctx, http.MethodGet, "/corpora", nil, &out)
	return out.Corpora, err
}

// Search runs a sparse search.
func (c *Client) Search(ctx context.Context, req datatypes.SearchRequest) (datatypes.SearchResponse, error) {
	var out datatypes.SearchResponse
	err := c.do(ctx, http.MethodPost, "/search", req, &out)
	return out, err
}

// Reindex replaces a corpus with the snapshot in raw.
func (c *Client) Reindex(ctx context.Context, corpusID string, raw json.RawMessage) (sqlite.ReindexResult, error) {
	var out sqlite.ReindexResult
	err := c.do(ctx, http.MethodPost, "/corpus/"+url.PathEscape(corpusID)+"/reindex", raw, &out)
	return out, err
}

// Chat sends one chat request.
func (c *Client) Chat(ctx context.Context, req datatypes.ChatRequest) (datatypes.ChatResponse, error) {
	var out datatypes.ChatResponse
	err := c.do(ctx, http.MethodPost, "/chat", req, &out)
	return out, err
}

// ChatStream sends a chat request to the SSE endpoint and returns every
// event received.
func (c *Client) ChatStream(ctx context.Context, req datatypes.ChatRequest, cb ux.StreamCallback) ([]ux.StreamEvent, error) {
	body, err := c.stream(ctx, http.MethodPost, "/chat/stream", req)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return collect(ctx, body, cb)
}

// EvalRun starts a run and waits for it.
func (c *Client) EvalRun(ctx context.Context, req datatypes.RunRequest) (datatypes.EvalRun, error) {
	var out datatypes.EvalRun
	err := c.do(ctx, http.MethodPost, "/eval/run", req, &out)
	return out, err
}

// EvalRunStream starts a run on the SSE endpoint, reporting progress to cb.
func (c *Client) EvalRunStream(ctx context.Context, req datatypes.RunRequest, cb ux.StreamCallback) ([]ux.StreamEvent, error) {
	q := url.Values{}
	if req.CorpusID != "" {
		q.Set("corpus_id", req.CorpusID)
	}
	if req.TopK > 0 {
		q.Set("top_k", strconv.Itoa(req.TopK))
	}
	if req.SampleSize > 0 {
		q.Set("sample_size", strconv.Itoa(req.SampleSize))
	}
	if req.Seed != nil {
		q.Set("seed", strconv.FormatUint(*req.Seed, 10))
	}
	if req.AccuracyBias != nil {
		q.Set("accuracy_bias", strconv.FormatFloat(*req.AccuracyBias, 'f', -1, 64))
	}
	path := "/eval/run/stream"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	body, err := c.stream(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return collect(ctx, body, cb)
}

// EvalRuns lists stored runs, newest first.
func (c *Client) EvalRuns(ctx context.Context, corpusID string, limit int) ([]datatypes.RunSummary, error) {
	q := url.Values{}
	if corpusID != "" {
		q.Set("corpus_id", corpusID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Runs []datatypes.RunSummary `json:"runs"`
	}
	err := c.do(ctx, http.MethodGet, "/eval/runs?"+q.Encode(), nil, &out)
	return out.Runs, err
}

// Compare compares two stored runs.
func (c *Client) Compare(ctx context.Context, baselineID, currentID string) (datatypes.Comparison, error) {
	var out datatypes.Comparison
	err := c.do(ctx, http.MethodPost, "/eval/analyze_comparison", datatypes.CompareRequest{
		BaselineRunID: baselineID,
		CurrentRunID:  currentID,
	}, &out)
	return out, err
}

// Config returns the settings tree of a scope.
func (c *Client) Config(ctx context.Context, scope string) (map[string]any, error) {
	path := "/config"
	if scope != "" {
		path += "?scope=" + url.QueryEscape(scope)
	}
	var out struct {
		Config map[string]any `json:"config"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Config, err
}

func collect(ctx context.Context, r io.Reader, cb ux.StreamCallback) ([]ux.StreamEvent, error) {
	var events []ux.StreamEvent
	err := ux.ReadStream(ctx, r, func(e ux.StreamEvent) error {
		events = append(events, e)
		if cb != nil {
			return cb(e)
		}
		return nil
	})
	return events, err
}
