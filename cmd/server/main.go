/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the retail ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, then flags)
  2. Initialize logger and telemetry
  3. Open the store (sqlite, postgres or memory)
  4. Create the sales service and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -addr    HTTP listen address (HTTP_ADDR, default :8080)
  -store   sqlite | postgres | memory (STORE_DRIVER, default sqlite)
  -db      SQLite database path (SQLITE_PATH, default retail.db)
  -dsn     Postgres connection string (DATABASE_URL)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  3. Flush telemetry
  4. Close the store

EXAMPLES:
  ./server -store=memory
  STORE_DRIVER=postgres DATABASE_URL=postgres://retail@localhost/retail ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/warp/retail-ledger/api"
	"github.com/warp/retail-ledger/catalog"
	"github.com/warp/retail-ledger/config"
	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/obs"
	"github.com/warp/retail-ledger/sales"
	"github.com/warp/retail-ledger/store/memory"
	"github.com/warp/retail-ledger/store/postgres"
	"github.com/warp/retail-ledger/store/sqlite"
)

const serviceVersion = "0.1.0"

// backend is what every store driver provides.
type backend interface {
	ledger.Store
	catalog.Store
}

func main() {
	cfg := config.Load()

	// Flags
	flag.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	flag.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "store driver: sqlite, postgres or memory")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path")
	flag.StringVar(&cfg.DatabaseURL, "dsn", cfg.DatabaseURL, "Postgres connection string")
	flag.Parse()
	cfg.StoreDriver = strings.ToLower(cfg.StoreDriver)

	logger := obs.NewLogger(cfg.LogLevel, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx := context.Background()
	tel, err := obs.InitTelemetry(ctx, obs.TelemetryConfig{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: serviceVersion,
	})
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	// Initialize store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	logger.Info("store ready", "driver", cfg.StoreDriver)

	svc := sales.NewService(store,
		sales.WithLogger(logger),
		sales.WithTracerProvider(tel.TracerProvider),
		sales.WithMeterProvider(tel.MeterProvider),
		sales.WithUnitTimeout(cfg.UnitTimeout),
	)
	handler := api.NewHandler(svc, store, logger)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry flush failed", "error", err)
	}
	if err := closeStore(); err != nil {
		logger.Warn("store close failed", "error", err)
	}
	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg config.Config) (backend, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverPostgres:
		s, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DatabaseURL,
			MaxConns:        int32(cfg.DBMaxConns),
			ConnectAttempts: 10,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverMemory:
		return memory.New(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
