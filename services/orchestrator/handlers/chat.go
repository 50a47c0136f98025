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
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ChatProcessor runs one retrieval-augmented chat turn.
type ChatProcessor interface {
	Process(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.ChatResponse, error)
}

// HandleChat handles POST /chat.
//
// Provider failures come back as 200 with a diagnostic assistant message
// and the error field set; only validation and store failures are HTTP
// errors.
func HandleChat(chat ChatProcessor) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if !bindJSON(c, span, &req) {
			return
		}
		resp, err := chat.Process(ctx, &req)
		if err != nil {
			respondError(c, span, err)
			return
		}
		span.SetAttributes(
			attribute.String("provider", resp.Debug.Provider),
			attribute.Int("sources", len(resp.Sources)),
		)
		c.JSON(http.StatusOK, resp)
	}
}

// HandleChatStream handles POST /chat/stream.
//
// # Description
//
// The answer is computed in full, then sent as two events: "text" with the
// answer and "done" with sources and debug data. Request validation errors
// are answered as JSON before the stream starts.
func HandleChatStream(chat ChatProcessor, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleChatStream")
		defer span.End()

		var req datatypes.ChatRequest
		if !bindJSON(c, span, &req) {
			return
		}
		if err := req.Validate(); err != nil {
			respondError(c, span, err)
			return
		}

		SetSSEHeaders(c.Writer)
		sse, err := NewSSEWriter(c.Writer)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.Status(http.StatusOK)
		metrics.StreamStarted(observability.EndpointChatStream)
		defer metrics.StreamEnded(observability.EndpointChatStream)

		resp, err := chat.Process(ctx, &req)
		if ctx.Err() != nil {
			metrics.RecordClientDisconnect(observability.EndpointChatStream)
			slog.Info("Client disconnected during chat stream")
			return
		}
		if err != nil {
			span.RecordError(err)
			slog.Error("Chat stream failed", "error", err)
			_ = sse.WriteError(streamErrorMessage(err))
			return
		}

		if err := sse.WriteText(resp.Message.Content); err != nil {
			slog.Warn("Failed to write text event", "error", err)
			return
		}
		if err := sse.WriteDone(resp.Sources, resp.Debug, resp.Error); err != nil {
			slog.Warn("Failed to write done event", "error", err)
		}
	}
}

// streamErrorMessage is the client-facing text of a failed stream. Only
// caller-correctable errors are echoed.
func streamErrorMessage(err error) string {
	if errors.Is(err, datatypes.ErrValidation) || errors.Is(err, datatypes.ErrNotFound) {
		return err.Error()
	}
	return "chat failed"
}
