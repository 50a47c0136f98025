// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the demo backend HTTP server.
//
// It reads configuration from environment variables, optionally loaded
// from a .env file in the working directory, and serves until SIGINT or
// SIGTERM.
//
// # Environment Variables
//
//   - DEMO_PORT: HTTP server port (default: 12210)
//   - DEMO_DB_PATH: sqlite database file (default: ./data/demo.db)
//   - DEMO_HOSTED: restrict generation to hosted providers (default: false)
//   - DEMO_READ_ONLY: reject corpus writes (default: false)
//   - SETTINGS_PATH: badger directory for scope settings (default: in memory)
//   - SETTINGS_DEFAULTS_FILE: YAML overlay on the built-in settings defaults
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: collector address (default: localhost:4317)
//   - RATE_LIMIT_RPS: per-client requests per second, 0 disables (default: 0)
//   - RATE_LIMIT_BURST: per-client burst (default: 20)
//   - EVAL_ARCHIVE_BUCKET: GCS bucket for eval runs (optional)
//   - EVAL_ARCHIVE_PREFIX: object prefix in the bucket (default: eval-runs)
//   - GCS_CREDENTIALS_FILE: service account key for the archive (optional)
//   - LOG_LEVEL: debug, info, warn, or error (default: info)
//   - OPENAI_API_KEY, OPENROUTER_API_KEY, ANTHROPIC_API_KEY, OLLAMA_BASE_URL:
//     generation providers, see services/llm
//
// # Usage
//
//	go build -o orchestrator ./cmd/orchestrator
//	./orchestrator
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/AleutianAI/AleutianDemo/services/llm"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(getEnvString("LOG_LEVEL", "info")),
	}))
	slog.SetDefault(logger)

	hosted := getEnvBool("DEMO_HOSTED", false)
	cfg := orchestrator.Config{
		Port:                 getEnvInt("DEMO_PORT", 12210),
		DBPath:               getEnvString("DEMO_DB_PATH", "./data/demo.db"),
		SettingsPath:         os.Getenv("SETTINGS_PATH"),
		SettingsDefaultsFile: os.Getenv("SETTINGS_DEFAULTS_FILE"),
		Hosted:               hosted,
		ReadOnly:             getEnvBool("DEMO_READ_ONLY", false),
		TraceExporter:        getEnvString("OTEL_TRACES_EXPORTER", "none"),
		MetricExporter:       getEnvString("OTEL_METRICS_EXPORTER", "none"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPS:         getEnvFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst:       getEnvInt("RATE_LIMIT_BURST", 20),
		ArchiveBucket:        os.Getenv("EVAL_ARCHIVE_BUCKET"),
		ArchivePrefix:        os.Getenv("EVAL_ARCHIVE_PREFIX"),
		GCSCredentialsFile:   os.Getenv("GCS_CREDENTIALS_FILE"),
		GinMode:              getEnvString("GIN_MODE", gin.ReleaseMode),
		Providers:            llm.RegistryConfigFromEnv(hosted),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := orchestrator.New(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Run the server (blocks until a signal arrives)
	if err := svc.Run(ctx); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
	slog.Info("Orchestrator stopped")
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool accepts anything strconv.ParseBool does.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
