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

import (
	"errors"
	"fmt"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrNotFound marks lookups of unknown corpora, entities, dataset entries,
	// runs, or prompt keys.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks requests with a missing or malformed field.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupported marks operations that are disabled in the current mode
	// (read-only corpora, local models in hosted mode).
	ErrUnsupported = errors.New("unsupported operation")

	// ErrProviderUnavailable marks a generation provider that cannot serve
	// requests in this deployment.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// =============================================================================
// Typed Errors
// =============================================================================

// NotFoundError reports a missing resource together with its identifier.
//
// # Description
//
// Handlers echo Kind and ID back to the caller in a 404 response body.
// errors.Is(err, ErrNotFound) is true for any NotFoundError.
type NotFoundError struct {
	Kind string
	ID   string
}

// NewNotFound returns a *NotFoundError for the given kind and id.
func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError names the offending request field.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidation returns a *ValidationError for field.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid field %q", e.Field)
	}
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UnsupportedError reports an operation that is disabled rather than failed.
//
// # Description
//
// The HTTP layer answers these with 200 and an inline "error" field so the
// demo UI can render a degraded-mode message instead of an exception.
type UnsupportedError struct {
	Operation string
	Reason    string
}

// NewUnsupported returns a *UnsupportedError.
func NewUnsupported(operation, reason string) *UnsupportedError {
	return &UnsupportedError{Operation: operation, Reason: reason}
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s is not supported: %s", e.Operation, e.Reason)
}

// Is reports whether target is ErrUnsupported.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}
