package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghxstship/search-service/internal/api/handlers"
	"github.com/ghxstship/search-service/internal/api/routes"
	"github.com/ghxstship/search-service/internal/app"
	"github.com/ghxstship/search-service/internal/infrastructure/observability"
	"github.com/ghxstship/search-service/pkg/config"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger(cfg.App.Name, cfg.App.Env)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Initialize dispatchers
	application, err := app.Build(ctx, cfg, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize search backend")
	}

	if err := application.StartBackground(ctx, cfg); err != nil {
		log.Warn().Err(err).Msg("Failed to start cache invalidation service")
	}

	// Warm caches from recent analytics
	go func() {
		warmed, err := application.Warming.WarmCache(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Cache warming finished with errors")
			return
		}
		log.Info().Int("queries", warmed).Msg("Cache warming complete")
	}()

	// Initialize handlers
	searchers := make(map[string]handlers.RowSearcher, len(application.Searchers))
	for table, svc := range application.Searchers {
		searchers[table] = svc
	}
	searchHandler := handlers.NewSearchHandler(searchers)

	// Set up router
	router := routes.NewRouter(searchHandler, cfg.Server.AllowedOrigins, metrics)
	handler := router.SetupRoutes()

	// Create HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", serverAddr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	// Stop background flushes, then flush what is left
	cancel()
	application.Close(shutdownCtx)

	log.Info().Msg("Server stopped")
}

// loadConfig reads CONFIG_FILE when set, otherwise the environment
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
