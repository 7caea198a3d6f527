/*
main.go - HTTP server entry point

PURPOSE:
  Starts the rental ledger API. Loads configuration, opens and migrates the
  SQLite database, wires the services, and serves until SIGINT/SIGTERM.

STARTUP SEQUENCE:
  1. Load config (file + environment) and build the logger
  2. Open the store (runs additive migrations)
  3. Create API handler with dependencies
  4. Start the optional drift monitor
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Config file (yaml/json/toml/env); environment overrides it
  -port    HTTP port, overrides HTTP_PORT
  -db      Database path, overrides DATABASE_PATH

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the drift monitor
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/rental-ledger/api"
	"github.com/warp/rental-ledger/auth"
	"github.com/warp/rental-ledger/config"
	"github.com/warp/rental-ledger/ledger"
	"github.com/warp/rental-ledger/logging"
	"github.com/warp/rental-ledger/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides HTTP_PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DATABASE_PATH)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	log := logging.New(cfg.Environment, cfg.LogLevel)

	// Initialize store
	store, err := sqlite.New(cfg.DatabasePath,
		sqlite.WithBusyTimeout(cfg.BusyTimeoutMS),
		sqlite.WithLogger(log),
	)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.DatabasePath).Msg("failed to initialize database")
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, log, api.HandlerOptions{
		AttachmentBaseDir: cfg.AttachmentBaseDir,
		FuzzyThreshold:    cfg.FuzzyThreshold,
		DefaultProjectID:  ledger.ProjectID(cfg.DefaultProjectID),
	})
	users := auth.NewDirectory(cfg.Users)
	if !users.Enabled() {
		log.Warn().Msg("no users configured, API is open")
	}

	monitor := api.NewDriftMonitor(handler.Engine, ledger.ViewFilter{ProjectID: handler.DefaultProjectID}, log)
	if err := monitor.Start(cfg.DriftCheckSchedule); err != nil {
		log.Fatal().Err(err).Msg("failed to start drift monitor")
	}

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      api.NewRouter(handler, log, users),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.HTTP.Port).Str("db", cfg.DatabasePath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	monitor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
