// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// StreamEventType names a server-sent event.
type StreamEventType string

const (
	StreamEventText     StreamEventType = "text"
	StreamEventDone     StreamEventType = "done"
	StreamEventProgress StreamEventType = "progress"
	StreamEventComplete StreamEventType = "complete"
	StreamEventError    StreamEventType = "error"
)

// StreamEvent is one event of a chat or eval stream as received.
//
// Sources, Debug, and Run stay raw so the client can recompute the event
// hash over the exact bytes the server sent.
type StreamEvent struct {
	Id        string          `json:"id"`
	Type      StreamEventType `json:"type"`
	CreatedAt int64           `json:"created_at"`
	PrevHash  string          `json:"prev_hash,omitempty"`
	Hash      string          `json:"hash"`

	Content   string          `json:"content,omitempty"`
	Error     string          `json:"error,omitempty"`
	Completed int             `json:"completed,omitempty"`
	Total     int             `json:"total,omitempty"`
	Sources   json.RawMessage `json:"sources,omitempty"`
	Debug     json.RawMessage `json:"debug,omitempty"`
	Run       json.RawMessage `json:"run,omitempty"`

	// Index is the event's position in the stream.
	Index int `json:"-"`
}

// IsTerminal reports whether the event ends its stream.
func (e StreamEvent) IsTerminal() bool {
	switch e.Type {
	case StreamEventDone, StreamEventComplete, StreamEventError:
		return true
	default:
		return false
	}
}

// StreamCallback receives each event. A non-nil error stops reading.
type StreamCallback func(StreamEvent) error

// ParseLine parses one SSE line.
//
// # Outputs
//
//   - *StreamEvent: The event of a "data:" line, nil for blank lines,
//     comments (keepalives), and "event:" lines.
//   - error: Non-nil if a data line is not a JSON event.
func ParseLine(line string) (*StreamEvent, error) {
	line = strings.TrimRight(line, "\r")
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return nil, nil
	}
	var event StreamEvent
	if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &event); err != nil {
		return nil, fmt.Errorf("invalid event data: %w", err)
	}
	return &event, nil
}

// ReadStream reads events from r until a terminal event, EOF, or ctx is
// done.
func ReadStream(ctx context.Context, r io.Reader, callback StreamCallback) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	index := 0

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		event, err := ParseLine(scanner.Text())
		if err != nil {
			return err
		}
		if event == nil {
			continue
		}
		event.Index = index
		index++
		if err := callback(*event); err != nil {
			return err
		}
		if event.IsTerminal() {
			return nil
		}
	}
	return scanner.Err()
}

// ReadAll collects every event of a stream.
func ReadAll(ctx context.Context, r io.Reader) ([]StreamEvent, error) {
	var events []StreamEvent
	err := ReadStream(ctx, r, func(e StreamEvent) error {
		events = append(events, e)
		return nil
	})
	return events, err
}
