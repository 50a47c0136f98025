// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// StreamEventType names an SSE event.
type StreamEventType string

const (
	// StreamEventText carries the full assistant answer.
	StreamEventText StreamEventType = "text"

	// StreamEventDone terminates a chat stream with sources and debug data.
	StreamEventDone StreamEventType = "done"

	// StreamEventProgress reports eval run progress.
	StreamEventProgress StreamEventType = "progress"

	// StreamEventComplete terminates an eval stream with the finished run.
	StreamEventComplete StreamEventType = "complete"

	// StreamEventError terminates a stream that failed.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one server-sent event.
//
// # Description
//
// Id, CreatedAt, PrevHash, and Hash are filled by the SSE writer. Hash chains
// each event to its predecessor so a client can detect dropped events.
type StreamEvent struct {
	Id        string          `json:"id"`
	Type      StreamEventType `json:"type"`
	CreatedAt int64           `json:"created_at"`
	PrevHash  string          `json:"prev_hash,omitempty"`
	Hash      string          `json:"hash"`

	Content   string        `json:"content,omitempty"`
	Error     string        `json:"error,omitempty"`
	Sources   []SearchMatch `json:"sources,omitempty"`
	Debug     *ChatDebug    `json:"debug,omitempty"`
	Completed int           `json:"completed,omitempty"`
	Total     int           `json:"total,omitempty"`
	Run       *EvalRun      `json:"run,omitempty"`
}
