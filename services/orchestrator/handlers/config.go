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
	"net/http"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/settings"
	"github.com/gin-gonic/gin"
)

// ConfigStore is the settings capability behind /config and /prompts.
type ConfigStore interface {
	Get(ctx context.Context, scope string) (map[string]any, error)
	Replace(ctx context.Context, scope string, tree map[string]any) (map[string]any, error)
	PatchSection(ctx context.Context, scope, section string, partial map[string]any) (map[string]any, error)
	Reset(ctx context.Context, scope string) error
	Prompts(ctx context.Context, scope string) ([]settings.Prompt, error)
	Prompt(ctx context.Context, scope, key string) (settings.Prompt, error)
	SetPrompt(ctx context.Context, scope, key, value string) (settings.Prompt, error)
	ResetPrompt(ctx context.Context, scope, key string) (settings.Prompt, error)
}

// ConfigHandlers serves the /config and /prompts routes. Every route takes
// an optional ?scope= that defaults to the global scope.
type ConfigHandlers struct {
	store ConfigStore
}

// NewConfigHandlers creates ConfigHandlers.
func NewConfigHandlers(store ConfigStore) *ConfigHandlers {
	return &ConfigHandlers{store: store}
}

func scopeOf(c *gin.Context) string {
	return c.DefaultQuery("scope", settings.GlobalScope)
}

// Get handles GET /config.
func (h *ConfigHandlers) Get(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleGetConfig")
	defer span.End()

	scope := scopeOf(c)
	tree, err := h.store.Get(ctx, scope)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "config": tree})
}

// Put handles PUT /config with a full settings tree.
func (h *ConfigHandlers) Put(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandlePutConfig")
	defer span.End()

	var tree map[string]any
	if !bindJSON(c, span, &tree) {
		return
	}
	scope := scopeOf(c)
	updated, err := h.store.Replace(ctx, scope, tree)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "config": updated})
}

// Patch handles PATCH /config/:section. Objects merge recursively, arrays
// and scalars replace.
func (h *ConfigHandlers) Patch(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandlePatchConfig")
	defer span.End()

	var partial map[string]any
	if !bindJSON(c, span, &partial) {
		return
	}
	scope := scopeOf(c)
	updated, err := h.store.PatchSection(ctx, scope, c.Param("section"), partial)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "config": updated})
}

// Reset handles POST /config/reset.
func (h *ConfigHandlers) Reset(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleResetConfig")
	defer span.End()

	scope := scopeOf(c)
	if err := h.store.Reset(ctx, scope); err != nil {
		respondError(c, span, err)
		return
	}
	tree, err := h.store.Get(ctx, scope)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "config": tree})
}

// ListPrompts handles GET /prompts.
func (h *ConfigHandlers) ListPrompts(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleListPrompts")
	defer span.End()

	scope := scopeOf(c)
	prompts, err := h.store.Prompts(ctx, scope)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "prompts": prompts})
}

// GetPrompt handles GET /prompts/:key.
func (h *ConfigHandlers) GetPrompt(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleGetPrompt")
	defer span.End()

	prompt, err := h.store.Prompt(ctx, scopeOf(c), c.Param("key"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// promptBody is the body of PUT /prompts/:key.
type promptBody struct {
	Value string `json:"value"`
}

// SetPrompt handles PUT /prompts/:key.
func (h *ConfigHandlers) SetPrompt(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleSetPrompt")
	defer span.End()

	var body promptBody
	if !bindJSON(c, span, &body) {
		return
	}
	prompt, err := h.store.SetPrompt(ctx, scopeOf(c), c.Param("key"), body.Value)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// ResetPrompt handles POST /prompts/reset/:key.
func (h *ConfigHandlers) ResetPrompt(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleResetPrompt")
	defer span.End()

	prompt, err := h.store.ResetPrompt(ctx, scopeOf(c), c.Param("key"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, prompt)
}
