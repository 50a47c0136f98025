// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes Server-Sent Events to an HTTP response.
//
// # Description
//
// Each event is assigned:
//   - Id: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//   - Hash: SHA-256 of the event content
//   - PrevHash: Hash of the previous event
//
// The wire format is "event: {type}\ndata: {json}\n\n".
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The eval stream emits
// progress from the synthesis loop while the handler may write keepalives.
type SSEWriter interface {
	// WriteEvent fills the event metadata, writes it, and flushes.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteText writes the full assistant answer of a chat stream.
	WriteText(content string) error

	// WriteDone terminates a chat stream with its sources and debug data.
	WriteDone(sources []datatypes.SearchMatch, debug datatypes.ChatDebug, errMsg string) error

	// WriteProgress reports eval progress.
	WriteProgress(completed, total int) error

	// WriteComplete terminates an eval stream with the finished run.
	WriteComplete(run datatypes.EvalRun) error

	// WriteError terminates a stream that failed.
	WriteError(errMsg string) error

	// WriteKeepAlive sends an SSE comment. It does not advance the hash chain.
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// NewSSEWriter creates an SSEWriter for w.
//
// # Outputs
//
//   - SSEWriter: Ready to write events.
//   - error: Non-nil if w does not implement http.Flusher.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders().
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// =============================================================================
// Methods
// =============================================================================

func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash
	event.Hash = computeEventHash(event)
	w.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// computeEventHash hashes the event metadata and payload. The Hash field
// must be empty when called.
func computeEventHash(event datatypes.StreamEvent) string {
	payload, err := json.Marshal(struct {
		Sources []datatypes.SearchMatch `json:"sources,omitempty"`
		Debug   *datatypes.ChatDebug    `json:"debug,omitempty"`
		Run     *datatypes.EvalRun      `json:"run,omitempty"`
	}{event.Sources, event.Debug, event.Run})
	if err != nil {
		payload = nil
	}

	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%d|%d|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Content,
		event.Error,
		event.Completed,
		event.Total,
		payload,
	)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

func (w *sseWriter) WriteText(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventText,
		Content: content,
	})
}

func (w *sseWriter) WriteDone(sources []datatypes.SearchMatch, debug datatypes.ChatDebug, errMsg string) error {
	if sources == nil {
		sources = []datatypes.SearchMatch{}
	}
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventDone,
		Sources: sources,
		Debug:   &debug,
		Error:   errMsg,
	})
}

func (w *sseWriter) WriteProgress(completed, total int) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:      datatypes.StreamEventProgress,
		Completed: completed,
		Total:     total,
	})
}

func (w *sseWriter) WriteComplete(run datatypes.EvalRun) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:      datatypes.StreamEventComplete,
		Completed: run.Total,
		Total:     run.Total,
		Run:       &run,
	})
}

// WriteError writes an error event. errMsg must not carry internal details.
func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:  datatypes.StreamEventError,
		Error: errMsg,
	})
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders sets the response headers for an event stream. Must be
// called before any body write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

var _ SSEWriter = (*sseWriter)(nil)
