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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// wsReadLimit caps one inbound frame.
const wsReadLimit = 64 * 1024

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 64 * 1024,
}

// WSError is sent for a frame that could not be answered.
type WSError struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// HandleChatWebSocket handles GET /chat/ws.
//
// Every inbound text frame is a ChatRequest and is answered by one
// ChatResponse frame, or a WSError frame when the request is invalid. The
// connection stays open until the client closes it or a write fails.
func HandleChatWebSocket(chat ChatProcessor, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		ws.SetReadLimit(wsReadLimit)

		metrics.StreamStarted(observability.EndpointChatWS)
		defer metrics.StreamEnded(observability.EndpointChatWS)
		slog.Info("Websocket client connected")

		ctx := c.Request.Context()
		for {
			var req datatypes.ChatRequest
			if err := ws.ReadJSON(&req); err != nil {
				if isJSONError(err) {
					if sendJSON(ws, WSError{Error: "invalid request body"}) != nil {
						return
					}
					continue
				}
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					metrics.RecordClientDisconnect(observability.EndpointChatWS)
				}
				slog.Info("Websocket client disconnected", "error", err.Error())
				return
			}

			resp, err := chat.Process(ctx, &req)
			if err != nil {
				frame := WSError{Error: streamErrorMessage(err)}
				var validation *datatypes.ValidationError
				if errors.As(err, &validation) {
					frame.Field = validation.Field
				}
				if sendJSON(ws, frame) != nil {
					return
				}
				continue
			}
			if sendJSON(ws, resp) != nil {
				return
			}
		}
	}
}

func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// isJSONError reports whether a read failed on frame content rather than on
// the connection.
func isJSONError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
