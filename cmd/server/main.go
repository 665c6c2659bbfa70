/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the circulation HTTP server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment
  2. Build the logger
  3. Initialize SQLite store and seed first-run data
  4. Create the engine and API handler
  5. Start server with graceful shutdown

ENVIRONMENT:
  PORT                HTTP server port (default: 8080)
  LIBRARY_DB          SQLite database path (default: library.db)
  LOG_MODE            dev or prod (default: dev)
  FINE_PER_DAY        Overdue fine per day (default: 2)
  *_LOAN_DAYS/*_LOAN_LIMIT  Per-category borrow policies

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/circulation-engine/api"
	"github.com/warp/circulation-engine/auth"
	"github.com/warp/circulation-engine/circulation"
	"github.com/warp/circulation-engine/config"
	"github.com/warp/circulation-engine/factory"
	"github.com/warp/circulation-engine/logging"
	"github.com/warp/circulation-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	fineRate, err := cfg.FineRate()
	if err != nil {
		logger.Fatal("invalid fine rate", zap.Error(err))
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	authSvc := auth.NewService(store, 0)

	seeded, err := factory.Seed(context.Background(), store, authSvc)
	if err != nil {
		logger.Fatal("failed to seed database", zap.Error(err))
	}
	if seeded {
		logger.Info("seeded default accounts and catalog")
	}

	engine := circulation.NewEngine(store,
		circulation.WithPolicies(cfg.Policies()),
		circulation.WithFinePerDay(fineRate),
	)

	handler := api.NewHandler(store, engine, authSvc, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("db", cfg.DBPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
