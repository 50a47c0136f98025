// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP handlers of the demo backend.
//
// Each handler is a constructor taking its dependencies and returning a
// gin.HandlerFunc. Errors are translated by respondError:
//
//	*NotFoundError             → 404 {error, kind, id}
//	*ValidationError           → 422 {error, field}
//	ErrUnsupported             → 200 {error}
//	ErrProviderUnavailable     → 200 {error}
//	anything else              → 500 {error}
//
// Malformed JSON bodies are rejected with 400 before reaching a service.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("aleutian.orchestrator.handlers")

// respondError writes the response for err and records it on span.
func respondError(c *gin.Context, span trace.Span, err error) {
	var (
		notFound   *datatypes.NotFoundError
		validation *datatypes.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": notFound.Kind, "id": notFound.ID})
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "field": validation.Field})
	case errors.Is(err, datatypes.ErrUnsupported), errors.Is(err, datatypes.ErrProviderUnavailable):
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// bindJSON decodes the request body into dst. On failure it writes a 400
// and returns false.
func bindJSON(c *gin.Context, span trace.Span, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		span.RecordError(err)
		slog.Warn("Failed to parse request body", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

// queryInt parses an integer query parameter. A missing or malformed value
// yields def.
func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
