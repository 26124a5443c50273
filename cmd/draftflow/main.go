package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/audit"
	"github.com/fraktionswerk/draftflow/internal/capability"
	"github.com/fraktionswerk/draftflow/internal/circuitbreaker"
	"github.com/fraktionswerk/draftflow/internal/clarify"
	"github.com/fraktionswerk/draftflow/internal/config"
	"github.com/fraktionswerk/draftflow/internal/health"
	"github.com/fraktionswerk/draftflow/internal/httpapi"
	"github.com/fraktionswerk/draftflow/internal/service"
	"github.com/fraktionswerk/draftflow/internal/session"
	"github.com/fraktionswerk/draftflow/internal/workflow"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Redis backs both the checkpoint store and the session manager.
	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	redisWrapper := circuitbreaker.NewRedisWrapper(redisClient, logger)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisWrapper.Ping(pingCtx).Err(); err != nil {
		cancel()
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	cancel()

	sessions := session.NewManager(redisWrapper, cfg.Session.TTL, logger)
	store := workflow.NewRedisStore(redisWrapper, cfg.Session.CheckpointTTL, logger)

	catalog, err := clarify.NewCatalog(cfg.Clarify.CatalogPath, logger)
	if err != nil {
		logger.Fatal("Failed to load question catalog", zap.Error(err))
	}
	defer catalog.Close()
	if cfg.Clarify.CatalogPath != "" {
		if err := catalog.Watch(); err != nil {
			logger.Warn("Question catalog watching disabled", zap.Error(err))
		}
	}

	auditor, err := audit.NewRecorder(cfg.Audit.PostgresDSN, logger)
	if err != nil {
		logger.Fatal("Failed to initialize audit recorder", zap.Error(err))
	}
	defer auditor.Close()

	svc, err := service.New(service.Deps{
		AI: capability.NewHTTPAIClient(
			cfg.Capabilities.AIServiceURL,
			cfg.Capabilities.AITimeout,
			cfg.Capabilities.AIRateLimit,
			cfg.Capabilities.AIRateBurst,
			logger,
		),
		Search: capability.NewHTTPSearchClient(
			cfg.Capabilities.SearchServiceURL,
			cfg.Capabilities.SearchTimeout,
			logger,
		),
		Fetch:    capability.NewHTTPFetchClient(logger),
		Sessions: sessions,
		Store:    store,
		Catalog:  catalog,
		Auditor:  auditor,
		Limits:   cfg.Limits,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Failed to build drafting service", zap.Error(err))
	}

	checkers := []health.Checker{
		health.NewRedisHealthChecker(redisWrapper, logger),
		health.NewCapabilityHealthChecker("ai", cfg.Capabilities.AIServiceURL, logger),
		health.NewCapabilityHealthChecker("search", cfg.Capabilities.SearchServiceURL, logger),
	}

	mux := http.NewServeMux()
	httpapi.NewDraftHandler(svc, logger).RegisterRoutes(mux)
	httpapi.NewHealthHandler(checkers, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // drafting requests wait on AI calls
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, metricsMux); err != nil {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down draftflow service")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := sessions.Close(); err != nil {
		logger.Error("Failed to close Redis client", zap.Error(err))
	}
}
