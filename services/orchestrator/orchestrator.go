// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the service lifecycle of the demo backend.
//
// This package wires every component behind the HTTP entrypoint: the sqlite
// corpus store, the badger-backed settings store, sparse search, the graph
// engine, the chat/RAG pipeline, the eval harness, generation providers,
// metrics, and tracing.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12210, DBPath: "./data/demo.db"}
//	svc, err := orchestrator.New(ctx, cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Tests pass Options with a pre-built provider registry and a private
// Prometheus registry:
//
//	svc, err := orchestrator.New(ctx, cfg, &orchestrator.Options{
//	    Providers: registry,
//	    Registry:  prometheus.NewRegistry(),
//	})
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/llm"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/archive"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/eval"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/graph"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/search"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/services"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/settings"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/storage/badger"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/storage/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the demo orchestrator.
//
// # Description
//
// Service abstracts the orchestrator lifecycle so tests can drive the
// router without binding a port.
//
// # Thread Safety
//
// Run blocks and should only be called once per instance. Close is safe
// to call more than once.
type Service interface {
	// Run starts the HTTP server and blocks until ctx is cancelled or the
	// server fails.
	//
	// # Description
	//
	// On cancellation the server stops accepting connections and waits up
	// to ShutdownTimeout for in-flight requests, then releases every
	// resource held by the service.
	//
	// # Outputs
	//
	//   - error: Non-nil if the listener fails or shutdown times out.
	Run(ctx context.Context) error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Close releases the store, the settings database, the archive client,
	// and the telemetry providers.
	Close() error
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds orchestrator configuration options.
//
// # Description
//
// Values are populated from the environment by cmd/orchestrator or set
// directly in tests. Zero values are replaced by applyConfigDefaults.
type Config struct {
	// Port is the HTTP port. Default: 12210.
	Port int

	// DBPath is the sqlite database file. Default: ./data/demo.db.
	DBPath string

	// SettingsPath is the badger directory for scope settings. Empty keeps
	// settings in memory.
	SettingsPath string

	// SettingsDefaultsFile is an optional YAML overlay on the built-in
	// defaults. It is watched and reloaded on change.
	SettingsDefaultsFile string

	// Hosted restricts generation to hosted providers.
	Hosted bool

	// ReadOnly rejects corpus writes with an unsupported error.
	ReadOnly bool

	// TraceExporter is "otlp", "stdout", or "none". Default: none.
	TraceExporter string

	// MetricExporter is "prometheus", "stdout", or "none". Default: none.
	MetricExporter string

	// OTLPEndpoint is the collector address for the otlp trace exporter.
	OTLPEndpoint string

	// RateLimitRPS is the per-client request rate. Zero disables limiting.
	RateLimitRPS float64

	// RateLimitBurst is the per-client burst. Default: 20.
	RateLimitBurst int

	// ArchiveBucket enables copying eval runs to GCS when set.
	ArchiveBucket string

	// ArchivePrefix is the object prefix inside ArchiveBucket.
	ArchivePrefix string

	// GCSCredentialsFile is an optional service account key for the archive.
	GCSCredentialsFile string

	// GinMode is passed to gin.SetMode when set.
	GinMode string

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration

	// Providers configures the generation provider registry.
	Providers llm.RegistryConfig
}

// Options carries pre-built dependencies. Nil fields are constructed by New.
type Options struct {
	// Providers replaces the registry built from the environment.
	Providers *llm.Registry

	// Registry receives the service metrics and is served on /metrics.
	Registry *prometheus.Registry
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service.
//
// # Description
//
// service owns every long-lived resource. Construction order matters:
// telemetry first so spans from startup are exported, then storage, then
// the components that read it, and the router last.
//
// # Thread Safety
//
// All fields are read-only after New returns.
type service struct {
	config    Config
	router    *gin.Engine
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	store     *sqlite.Store
	scopes    *badger.DB
	settings  *settings.Store
	providers *llm.Registry
	search    *search.Engine
	chat      *services.ChatRAGService
	eval      *eval.Service
	archiver  *archive.GCSArchiver
	limiter   *middleware.RateLimiter

	shutdownTelemetry func(context.Context) error
	stopWatcher       context.CancelFunc
	closeOnce         sync.Once
	closeErr          error
}

// =============================================================================
// Constructor
// =============================================================================

// New creates an orchestrator Service.
//
// # Description
//
// New initializes, in order: telemetry, metrics, the corpus store, the
// settings store and its defaults overlay, generation providers, search,
// graph, chat, eval (with the optional archive), and the router. Any
// failure releases what was already opened.
//
// # Inputs
//
//   - ctx: Lifetime of background work started here (the overlay watcher).
//   - cfg: Service configuration. Zero values get defaults.
//   - opts: Optional pre-built dependencies. May be nil.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil if any component fails to initialize.
func New(ctx context.Context, cfg Config, opts *Options) (Service, error) {
	if opts == nil {
		opts = &Options{}
	}
	s := &service{config: applyConfigDefaults(cfg)}
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.registry = opts.Registry
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if err := s.initTelemetry(ctx); err != nil {
		return nil, err
	}
	s.metrics = observability.NewMetrics(s.registry)

	if err := s.initStorage(ctx); err != nil {
		s.cleanup()
		return nil, err
	}
	if err := s.initSettings(ctx); err != nil {
		s.cleanup()
		return nil, err
	}

	s.providers = opts.Providers
	if s.providers == nil {
		s.providers = llm.NewRegistryFromEnv(s.config.Providers)
	}

	if err := s.initEval(ctx); err != nil {
		s.cleanup()
		return nil, err
	}
	s.initRouter()

	slog.Info("Orchestrator initialized",
		"port", s.config.Port,
		"db_path", s.config.DBPath,
		"settings_path", s.config.SettingsPath,
		"hosted", s.config.Hosted,
		"read_only", s.config.ReadOnly,
	)
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until ctx is done or it fails.
func (s *service) Run(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting orchestrator", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down orchestrator", "timeout", s.config.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close releases every resource. Later calls return the first result.
func (s *service) Close() error {
	s.closeOnce.Do(s.cleanup)
	return s.closeErr
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./data/demo.db"
	}
	if cfg.TraceExporter == "" {
		cfg.TraceExporter = observability.ExporterNone
	}
	if cfg.MetricExporter == "" {
		cfg.MetricExporter = observability.ExporterNone
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = archive.DefaultPrefix
	}
	cfg.Providers.Hosted = cfg.Hosted
	return cfg
}

// initTelemetry installs the tracer and meter providers.
func (s *service) initTelemetry(ctx context.Context) error {
	shutdown, err := observability.InitTelemetry(ctx, observability.TelemetryConfig{
		ServiceName:    "demo-orchestrator",
		TraceExporter:  s.config.TraceExporter,
		MetricExporter: s.config.MetricExporter,
		OTLPEndpoint:   s.config.OTLPEndpoint,
		Registerer:     s.registry,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.shutdownTelemetry = shutdown
	return nil
}

// initStorage opens the corpus store and the scope database.
func (s *service) initStorage(ctx context.Context) error {
	store, err := sqlite.Open(ctx, sqlite.DefaultConfig(s.config.DBPath))
	if err != nil {
		return fmt.Errorf("failed to open corpus store: %w", err)
	}
	s.store = store

	bcfg := badger.DefaultConfig()
	if s.config.SettingsPath != "" {
		bcfg = badger.PersistentConfig(s.config.SettingsPath)
	}
	bcfg.Logger = slog.Default().With("component", "badger")
	db, err := badger.Open(bcfg)
	if err != nil {
		return fmt.Errorf("failed to open settings database: %w", err)
	}
	s.scopes = db
	return nil
}

// initSettings creates the settings store and installs the YAML overlay.
//
// # Description
//
// When SettingsDefaultsFile is set it must parse at startup. After that
// the file is watched; a reload that fails keeps the previous defaults.
func (s *service) initSettings(ctx context.Context) error {
	s.settings = settings.NewStore(badger.NewScopeStore(s.scopes))
	s.settings.OnWrite(func(scope, op string) {
		s.metrics.RecordConfigWrite(op)
		slog.Debug("Settings written", "scope", scope, "op", op)
	})

	path := s.config.SettingsDefaultsFile
	if path == "" {
		return nil
	}
	if err := s.settings.LoadDefaultsFile(path); err != nil {
		return fmt.Errorf("failed to load settings defaults: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	err := s.settings.WatchDefaults(watchCtx, path, 0, func(err error) {
		if err == nil {
			slog.Info("Settings defaults reloaded", "path", path)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to watch settings defaults: %w", err)
	}
	s.stopWatcher = cancel
	return nil
}

// initEval builds search, chat, and eval, and the archive when configured.
func (s *service) initEval(ctx context.Context) error {
	s.search = search.NewEngine(s.store)
	s.chat = services.NewChatRAGService(s.search, s.settings, s.providers)
	s.chat.OnProviderCall(s.metrics.RecordProviderCall)

	var archiver eval.Archiver
	if s.config.ArchiveBucket != "" {
		a, err := archive.NewGCSArchiver(ctx, s.config.ArchiveBucket, s.config.ArchivePrefix, s.config.GCSCredentialsFile)
		if err != nil {
			return fmt.Errorf("failed to initialize eval archive: %w", err)
		}
		s.archiver = a
		archiver = a
	}

	s.eval = eval.NewService(s.store, s.settings, archiver)
	s.eval.OnRun(func(corpusID string, _ datatypes.EvalRun) {
		s.metrics.RecordEvalRun(corpusID)
	})
	return nil
}

// initRouter sets up the Gin router with middleware and routes.
//
// # Description
//
// Middleware order: recovery, tracing, metrics, request logging, rate
// limiting. Rejected requests are still traced and counted.
func (s *service) initRouter() {
	s.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		RPS:       s.config.RateLimitRPS,
		Burst:     s.config.RateLimitBurst,
		OnLimited: s.metrics.RecordRateLimited,
	})

	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware("demo-orchestrator"),
		middleware.Metrics(s.metrics),
		middleware.RequestLogger(),
		s.limiter.Middleware(),
	)

	routes.SetupRoutes(router, routes.Dependencies{
		Store:     s.store,
		Providers: s.providers,
		Search:    s.search,
		Graph:     graph.NewEngine(s.store),
		Settings:  s.settings,
		Chat:      s.chat,
		Eval:      s.eval,
		Metrics:   s.metrics,
		Gatherer:  s.registry,
		Policies:  sqlite.DefaultMergePolicies(),
		ReadOnly:  s.config.ReadOnly,
	})
	s.router = router
}

// cleanup releases all resources held by the service.
//
// # Description
//
// Called by Close and on initialization failure. Each resource is released
// even if an earlier one fails; the errors are joined.
func (s *service) cleanup() {
	var errs []error
	if s.stopWatcher != nil {
		s.stopWatcher()
	}
	if s.archiver != nil {
		errs = append(errs, s.archiver.Close())
	}
	if s.scopes != nil {
		errs = append(errs, s.scopes.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, s.shutdownTelemetry(ctx))
		cancel()
	}
	s.closeErr = errors.Join(errs...)
	if s.closeErr != nil {
		slog.Error("Cleanup failed", "error", s.closeErr)
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
