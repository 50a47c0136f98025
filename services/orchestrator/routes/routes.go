// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/storage/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the corpus store surface the routes need.
type Store interface {
	handlers.Pinger
	handlers.CorpusStore
	handlers.DatasetStore
}

// Settings is the settings store surface the routes need.
type Settings interface {
	handlers.ConfigStore
	handlers.SettingsViewer
}

// EvalService is the eval surface the routes need.
type EvalService interface {
	handlers.EvalRunner
	handlers.DatasetSeeder
	Forget(corpusID string)
}

// Dependencies carries everything the handlers are built from.
type Dependencies struct {
	Store     Store
	Providers handlers.ProviderHealth
	Search    handlers.Searcher
	Graph     handlers.GraphQuerier
	Settings  Settings
	Chat      handlers.ChatProcessor
	Eval      EvalService
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer
	Policies  sqlite.MergePolicies
	ReadOnly  bool
}

// SetupRoutes registers every endpoint of the demo backend on router.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.GET("/health", handlers.HandleHealth(deps.Store, deps.Providers))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusTemporaryRedirect, "/health")
	})

	corpora := handlers.NewCorpusHandlers(deps.Store, deps.Policies, deps.ReadOnly)
	if deps.Eval != nil {
		corpora.OnChange(deps.Eval.Forget)
	}
	router.GET("/corpora", corpora.List)
	corpus := router.Group("/corpus/:id")
	{
		corpus.GET("", corpora.Get)
		corpus.POST("/reindex", corpora.Reindex)
		corpus.DELETE("", corpora.Delete)
	}

	router.POST("/search", handlers.HandleSearch(deps.Search, deps.Metrics))

	chat := router.Group("/chat")
	{
		chat.POST("", handlers.HandleChat(deps.Chat))
		chat.POST("/stream", handlers.HandleChatStream(deps.Chat, deps.Metrics))
		chat.GET("/ws", handlers.HandleChatWebSocket(deps.Chat, deps.Metrics))
	}

	g := handlers.NewGraphHandlers(deps.Graph, deps.Settings)
	graph := router.Group("/graph/:corpusId")
	{
		graph.GET("/entities", g.Entities)
		graph.GET("/entity/:entityId/neighbors", g.Neighbors)
		graph.GET("/stats", g.Stats)
	}

	conf := handlers.NewConfigHandlers(deps.Settings)
	config := router.Group("/config")
	{
		config.GET("", conf.Get)
		config.PUT("", conf.Put)
		config.PATCH("/:section", conf.Patch)
		config.POST("/reset", conf.Reset)
	}
	prompts := router.Group("/prompts")
	{
		prompts.GET("", conf.ListPrompts)
		prompts.GET("/:key", conf.GetPrompt)
		prompts.PUT("/:key", conf.SetPrompt)
		prompts.POST("/reset/:key", conf.ResetPrompt)
	}

	ds := handlers.NewDatasetHandlers(deps.Store, deps.Eval, deps.Settings)
	dataset := router.Group("/dataset")
	{
		dataset.GET("", ds.List)
		dataset.POST("", ds.Create)
		dataset.PUT("/:entryId", ds.Update)
		dataset.DELETE("/:entryId", ds.Delete)
	}

	ev := handlers.NewEvalHandlers(deps.Eval, deps.Store, deps.Settings, deps.Metrics)
	evals := router.Group("/eval")
	{
		evals.GET("/runs", ev.Runs)
		evals.GET("/results", ev.Latest)
		evals.GET("/results/:runId", ev.Result)
		evals.POST("/run", ev.Run)
		evals.GET("/run/stream", ev.RunStream)
		evals.POST("/analyze_comparison", ev.Compare)
	}
}
