// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// chain fills ids, timestamps, and hashes the way the server does.
func chain(events ...StreamEvent) []StreamEvent {
	prev := ""
	for i := range events {
		events[i].Id = fmt.Sprintf("evt-%d", i)
		events[i].CreatedAt = int64(1735657200000 + i)
		events[i].PrevHash = prev
		events[i].Hash = ComputeEventHash(events[i])
		prev = events[i].Hash
	}
	return events
}

func toSSE(t *testing.T, events []StreamEvent) string {
	t.Helper()
	var b strings.Builder
	for _, e := range events {
		data, err := json.Marshal(e)
		require.NoError(t, err)
		fmt.Fprintf(&b, "event: %s\ndata: %s\n\n", e.Type, data)
	}
	return b.String()
}

// =============================================================================
// Stream Tests
// =============================================================================

func TestParseLine(t *testing.T) {
	ev, err := ParseLine(`data: {"id":"a","type":"progress","completed":2,"total":5}`)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, StreamEventProgress, ev.Type)
	assert.Equal(t, 2, ev.Completed)

	for _, line := range []string{"", ": keepalive", "event: progress"} {
		ev, err := ParseLine(line)
		assert.NoError(t, err)
		assert.Nil(t, ev, line)
	}

	_, err = ParseLine("data: {not json")
	assert.Error(t, err)
}

func TestReadStream_StopsAtTerminalEvent(t *testing.T) {
	events := chain(
		StreamEvent{Type: StreamEventText, Content: "Login lives in a.py [1]."},
		StreamEvent{Type: StreamEventDone, Sources: json.RawMessage(`[{"chunk_id":"c1","score":1.5}]`)},
	)
	body := toSSE(t, events) + ": keepalive\n\ndata: {\"type\":\"text\"}\n\n"

	got, err := ReadAll(context.Background(), strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[1].Index)
	assert.True(t, got[1].IsTerminal())
	assert.JSONEq(t, `[{"chunk_id":"c1","score":1.5}]`, string(got[1].Sources))
}

func TestReadStream_CallbackError(t *testing.T) {
	events := chain(StreamEvent{Type: StreamEventProgress, Completed: 1, Total: 2})
	stop := errors.New("stop")
	err := ReadStream(context.Background(), strings.NewReader(toSSE(t, events)), func(StreamEvent) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
}

func TestReadStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ReadStream(ctx, strings.NewReader("data: {}\n"), func(StreamEvent) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Integrity Tests
// =============================================================================

func TestVerifyChain_RoundTrip(t *testing.T) {
	events := chain(
		StreamEvent{Type: StreamEventProgress, Completed: 1, Total: 2},
		StreamEvent{Type: StreamEventProgress, Completed: 2, Total: 2},
		StreamEvent{Type: StreamEventComplete, Run: json.RawMessage(`{"run_id":"demo-1","total":2}`)},
	)
	got, err := ReadAll(context.Background(), strings.NewReader(toSSE(t, events)))
	require.NoError(t, err)

	result := VerifyChain(got)
	assert.True(t, result.Valid, result.ErrorMessage)
	assert.Equal(t, 3, result.ChainLength)
	assert.Equal(t, -1, result.InvalidEventIndex)
	assert.Equal(t, events[2].Hash, result.FinalHash)
	assert.Contains(t, result.FormatForDisplay(), "chain verified: 3 events")
}

func TestVerifyChain_Empty(t *testing.T) {
	assert.True(t, VerifyChain(nil).Valid)
}

func TestVerifyChain_ModifiedContent(t *testing.T) {
	events := chain(
		StreamEvent{Type: StreamEventText, Content: "original"},
		StreamEvent{Type: StreamEventDone},
	)
	events[0].Content = "edited"

	result := VerifyChain(events)
	assert.False(t, result.Valid)
	assert.Equal(t, 0, result.InvalidEventIndex)
	assert.Contains(t, result.ErrorMessage, "hash mismatch")
}

func TestVerifyChain_DroppedEvent(t *testing.T) {
	events := chain(
		StreamEvent{Type: StreamEventProgress, Completed: 1, Total: 3},
		StreamEvent{Type: StreamEventProgress, Completed: 2, Total: 3},
		StreamEvent{Type: StreamEventProgress, Completed: 3, Total: 3},
	)
	result := VerifyChain([]StreamEvent{events[0], events[2]})
	assert.False(t, result.Valid)
	assert.Equal(t, 1, result.InvalidEventIndex)
	assert.Contains(t, result.FormatForDisplay(), "chain broken at event 1")
}

func TestTruncateHash(t *testing.T) {
	assert.Equal(t, "short", truncateHash("short"))
	assert.Equal(t, "abc123de...abc1", truncateHash("abc123def456abc123def456abc123def456abc123def456abc123def456abc1"))
}

// =============================================================================
// Output Tests
// =============================================================================

func newTestPrinter(level PersonalityLevel) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &Printer{Out: &out, Err: &errOut, Level: level}, &out, &errOut
}

func TestPrinter_Machine(t *testing.T) {
	p, out, errOut := newTestPrinter(PersonalityMachine)
	p.Title("Corpora")
	p.Success("reindexed")
	p.Warning("slow")
	p.Error("failed")
	p.Table([]string{"ID", "CHUNKS"}, [][]string{{"demo", "3"}})
	p.KeyValues("run_id", "demo-1")

	assert.Equal(t, "OK: reindexed\nID\tCHUNKS\ndemo\t3\nrun_id\tdemo-1\n", out.String())
	assert.Equal(t, "WARN: slow\nERROR: failed\n", errOut.String())
}

func TestPrinter_Minimal(t *testing.T) {
	p, out, _ := newTestPrinter(PersonalityMinimal)
	p.Success("done")
	p.KeyValues("a", "1", "longer", "2")
	p.Table([]string{"ID"}, [][]string{{"demo"}})

	s := out.String()
	assert.Contains(t, s, "✓ done\n")
	assert.Contains(t, s, "a       1\n")
	assert.Contains(t, s, "demo")
}

func TestPrinter_FullTable(t *testing.T) {
	p, out, _ := newTestPrinter(PersonalityFull)
	p.Table([]string{"ID", "CHUNKS"}, [][]string{{"demo", "3"}, {"docs", "12"}})
	s := out.String()
	assert.Contains(t, s, "demo")
	assert.Contains(t, s, "docs")
	assert.Contains(t, s, "╭", "full level draws a rounded border")
}

func TestParsePersonalityLevel(t *testing.T) {
	assert.Equal(t, PersonalityMachine, ParsePersonalityLevel("quiet"))
	assert.Equal(t, PersonalityMinimal, ParsePersonalityLevel("min"))
	assert.Equal(t, PersonalityFull, ParsePersonalityLevel("FULL"))
	assert.Equal(t, PersonalityStandard, ParsePersonalityLevel("whatever"))
}

func TestInitPersonality_Env(t *testing.T) {
	defer SetPersonalityLevel(GetPersonalityLevel())
	t.Setenv("DEMOCTL_PERSONALITY", "minimal")
	InitPersonality()
	assert.Equal(t, PersonalityMinimal, GetPersonalityLevel())
}
