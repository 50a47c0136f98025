// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// secureHashEqual compares hashes in constant time.
func secureHashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ChainVerificationResult describes the outcome of VerifyChain.
type ChainVerificationResult struct {
	// Valid is true when every link and every hash checks out.
	Valid bool

	// ChainLength is the number of events examined.
	ChainLength int

	// InvalidEventIndex is the first bad event, -1 when Valid.
	InvalidEventIndex int

	// ErrorMessage explains the first failure.
	ErrorMessage string

	// FinalHash is the hash of the last event when Valid.
	FinalHash string
}

// VerifyChain checks that each event links to its predecessor and that its
// hash matches its contents.
//
// # Description
//
// The first event must have an empty PrevHash. A stream with a dropped,
// reordered, or modified event fails at the first event that no longer
// matches.
func VerifyChain(events []StreamEvent) ChainVerificationResult {
	result := ChainVerificationResult{Valid: true, ChainLength: len(events), InvalidEventIndex: -1}

	prevHash := ""
	for i, event := range events {
		if !secureHashEqual(event.PrevHash, prevHash) {
			result.Valid = false
			result.InvalidEventIndex = i
			result.ErrorMessage = fmt.Sprintf("chain broken at event %d: expected prev_hash %s, got %s",
				i, truncateHash(prevHash), truncateHash(event.PrevHash))
			return result
		}
		computed := ComputeEventHash(event)
		if !secureHashEqual(computed, event.Hash) {
			result.Valid = false
			result.InvalidEventIndex = i
			result.ErrorMessage = fmt.Sprintf("hash mismatch at event %d: computed %s, stored %s",
				i, truncateHash(computed), truncateHash(event.Hash))
			return result
		}
		prevHash = event.Hash
	}
	result.FinalHash = prevHash
	return result
}

// ComputeEventHash returns the hex SHA-256 the server assigns to an event:
// the pipe-joined id, type, created_at, prev_hash, content, error,
// completed, and total, followed by the JSON of sources, debug, and run.
func ComputeEventHash(event StreamEvent) string {
	payload, err := json.Marshal(struct {
		Sources json.RawMessage `json:"sources,omitempty"`
		Debug   json.RawMessage `json:"debug,omitempty"`
		Run     json.RawMessage `json:"run,omitempty"`
	}{event.Sources, event.Debug, event.Run})
	if err != nil {
		payload = nil
	}
	input := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%d|%d|%s",
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
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// FormatForDisplay renders the result on one line.
func (r ChainVerificationResult) FormatForDisplay() string {
	if r.Valid {
		return fmt.Sprintf("chain verified: %d events, final %s", r.ChainLength, truncateHash(r.FinalHash))
	}
	return "chain invalid: " + r.ErrorMessage
}

// truncateHash shortens a hash to its first 8 and last 4 characters.
func truncateHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-4:]
}
