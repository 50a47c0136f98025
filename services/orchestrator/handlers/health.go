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
	"time"

	"github.com/gin-gonic/gin"
)

// healthTimeout bounds the whole health check, provider probes included.
const healthTimeout = 3 * time.Second

// Pinger checks that the corpus store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderHealth probes every configured generation provider.
type ProviderHealth interface {
	Health(ctx context.Context) map[string]string
}

// HandleHealth reports liveness of the store, the graph, and the providers.
//
// The graph reads from the corpus store, so it shares the store's status.
// Provider failures are reported but do not make the service unhealthy.
func HandleHealth(store Pinger, providers ProviderHealth) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		storeStatus := "ok"
		if err := store.Ping(ctx); err != nil {
			storeStatus = err.Error()
		}
		graphStatus := storeStatus

		llmStatus := map[string]string{}
		if providers != nil {
			llmStatus = providers.Health(ctx)
		}

		ok := storeStatus == "ok"
		status, code := "healthy", http.StatusOK
		if !ok {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ok":     ok,
			"status": status,
			"services": gin.H{
				"store": storeStatus,
				"graph": graphStatus,
				"llm":   llmStatus,
			},
		})
	}
}
