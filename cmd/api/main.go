// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/converge-ai/support-platform/internal/capability"
	"github.com/converge-ai/support-platform/internal/config"
	"github.com/converge-ai/support-platform/internal/contextstore"
	"github.com/converge-ai/support-platform/internal/detector"
	"github.com/converge-ai/support-platform/internal/dispatcher"
	"github.com/converge-ai/support-platform/internal/executor"
	"github.com/converge-ai/support-platform/internal/handler"
	"github.com/converge-ai/support-platform/internal/llm"
	"github.com/converge-ai/support-platform/internal/middleware"
	natsclient "github.com/converge-ai/support-platform/internal/nats"
	"github.com/converge-ai/support-platform/internal/operator"
	"github.com/converge-ai/support-platform/internal/registry"
	"github.com/converge-ai/support-platform/internal/router"
	"github.com/converge-ai/support-platform/pkg/logger"
	"github.com/converge-ai/support-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	// Ensure JetStream stream exists
	streamManager := natsclient.NewStreamManager(natsClient)
	if err := streamManager.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}
	store := contextstore.NewJetStreamStore(streamManager)

	// Initialize LLM client
	provider := llm.Provider(cfg.DefaultLLM)
	apiKey := cfg.AnthropicAPIKey
	switch {
	case provider == llm.ProviderAnthropic && cfg.AnthropicAPIKey != "":
	case provider == llm.ProviderOpenAI && cfg.OpenAIAPIKey != "":
		apiKey = cfg.OpenAIAPIKey
	case cfg.AnthropicAPIKey != "":
		provider = llm.ProviderAnthropic
	case cfg.OpenAIAPIKey != "":
		provider = llm.ProviderOpenAI
		apiKey = cfg.OpenAIAPIKey
	default:
		log.Error("no LLM API key configured")
		os.Exit(1)
	}
	llmClient, err := llm.NewClient(provider, apiKey)
	if err != nil {
		log.Error("failed to create LLM client", zap.Error(err))
		os.Exit(1)
	}
	log.Info("LLM client ready", zap.String("provider", llmClient.Name()))

	known := llmClient.Models()
	for _, m := range []string{cfg.ClassifierModel, cfg.ExtractorModel} {
		if m != "" && !slices.Contains(known, m) {
			log.Warn("configured model not in provider catalog",
				zap.String("provider", llmClient.Name()),
				zap.String("model", m),
			)
		}
	}

	classifierOpts := []llm.TextProviderOption{
		llm.WithClassifyTimeout(cfg.ClassifyTimeout),
		llm.WithExtractTimeout(cfg.ExtractTimeout),
	}
	if cfg.ClassifierModel != "" {
		classifierOpts = append(classifierOpts, llm.WithModel(cfg.ClassifierModel))
	}
	classifier := llm.NewTextProvider(llmClient, classifierOpts...)

	extractor := classifier
	if cfg.ExtractorModel != "" && cfg.ExtractorModel != cfg.ClassifierModel {
		extractor = llm.NewTextProvider(llmClient,
			llm.WithModel(cfg.ExtractorModel),
			llm.WithClassifyTimeout(cfg.ClassifyTimeout),
			llm.WithExtractTimeout(cfg.ExtractTimeout),
		)
	}

	// Load handler definitions
	reg := registry.New()
	if err := reg.LoadFile(cfg.RegistrySeedFile); err != nil {
		log.Error("failed to load handler definitions",
			zap.String("path", cfg.RegistrySeedFile),
			zap.Error(err),
		)
		os.Exit(1)
	}

	// Operator pool: Postgres when a DSN is configured, in-memory otherwise
	var pool operator.Pool
	if cfg.PostgresDSN != "" {
		pgPool, err := operator.NewPostgresPool(cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to connect to Postgres", zap.Error(err))
			os.Exit(1)
		}
		defer pgPool.Close()
		pool = pgPool
	} else {
		memPool := operator.NewMemoryPool()
		if cfg.OperatorSeedFile != "" {
			if err := memPool.LoadFile(cfg.OperatorSeedFile); err != nil {
				log.Error("failed to load operator seed",
					zap.String("path", cfg.OperatorSeedFile),
					zap.Error(err),
				)
				os.Exit(1)
			}
		}
		pool = memPool
	}

	// Core components
	det := detector.New()
	for tenantID, keywords := range reg.EscalationKeywords() {
		det.SetTenantKeywords(tenantID, keywords)
	}
	disp := dispatcher.New(pool, streamManager, log)
	rt := router.New(reg, store, classifier, log)
	ex := executor.New(reg, store, extractor, capability.NewHTTPInvoker(log), log, executor.Config{
		CapabilityTimeout: cfg.CapabilityTimeout,
		RetryBackoff:      cfg.RetryBackoff,
	})

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	messageHandler := handler.NewMessageHandler(rt, ex, store, det, log)
	escalationHandler := handler.NewEscalationHandler(disp, log)
	operatorHandler := handler.NewOperatorHandler(pool, log)
	registryHandler := handler.NewRegistryHandler(reg, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Messages
		r.Post("/messages", messageHandler.Send)

		// Handler registry
		r.Route("/handlers", func(r chi.Router) {
			r.Get("/", registryHandler.List)
			r.Get("/{name}/capabilities", registryHandler.Capabilities)
		})

		// Escalations
		r.Route("/escalations", func(r chi.Router) {
			r.Post("/", escalationHandler.Request)
			r.Get("/", escalationHandler.Queue)
		})

		// Conversations
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/turns", messageHandler.History)

			r.Route("/escalation", func(r chi.Router) {
				r.Get("/", escalationHandler.Status)
				r.Post("/assign", escalationHandler.Assign)
				r.Post("/start", escalationHandler.Start)
				r.Post("/hold", escalationHandler.Hold)
				r.Post("/resume", escalationHandler.Resume)
				r.Post("/resolve", escalationHandler.Resolve)
				r.Post("/close", escalationHandler.Close)
			})
		})

		// Operators
		r.Route("/operators", func(r chi.Router) {
			r.Get("/available", operatorHandler.ListAvailable)
			r.Get("/{id}", operatorHandler.Get)
			r.Put("/{id}/availability", operatorHandler.SetAvailability)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
