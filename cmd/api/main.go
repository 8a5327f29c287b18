// Command api is the Scoracle NHL pipeline server: HTTP job triggers and
// accuracy reads, the daily scheduler, and the game-data listener.
//
// Usage:
//
//	scoracle-api
//	API_PORT=8080 SCHEDULE_ENABLED=false scoracle-api
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/scoracle-nhl/internal/api"
	"github.com/albapepper/scoracle-nhl/internal/api/handler"
	"github.com/albapepper/scoracle-nhl/internal/cache"
	"github.com/albapepper/scoracle-nhl/internal/config"
	"github.com/albapepper/scoracle-nhl/internal/db"
	"github.com/albapepper/scoracle-nhl/internal/listener"
	"github.com/albapepper/scoracle-nhl/internal/maintenance"
	"github.com/albapepper/scoracle-nhl/internal/pipeline"
	"github.com/albapepper/scoracle-nhl/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	st := store.New(pool.Pool, logger)
	p := pipeline.New(st, cfg, logger)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	go appCache.Run(ctx, cfg.CacheTTL)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Rebuild strength rows when a game's shifts and plays land
	if cfg.ListenerEnabled {
		go listener.Start(ctx, cfg.DatabaseURL, p, logger)
	} else {
		logger.Info("Game data listener disabled (LISTENER_ENABLED=false)")
	}

	// Daily batch and stale run sweep
	hooks := []maintenance.Hook{
		maintenance.LogBatchErrors(logger),
		maintenance.PurgeAccuracyCache(appCache, logger),
	}
	go maintenance.Start(ctx, p, st, maintenance.ConfigFrom(cfg), hooks, logger)

	// Create router
	h := handler.New(ctx, pool.Pool, appCache, st, p, logger)
	router := api.NewRouter(h, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Scoracle NHL pipeline API",
			"addr", addr,
			"environment", cfg.Environment,
			"timezone", cfg.Timezone.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
