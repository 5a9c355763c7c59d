/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the revenue engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (revenue.yaml, .env, REVENUE_* env vars)
  2. Build the zap logger
  3. Open the SQLite store (migrations run on open)
  4. Register Prometheus metrics and build the engine
  5. Import the startup catalog, if configured
  6. Start the invoice scheduler, if enabled
  7. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: search ./revenue.yaml)
  -port    Overrides http.port
  -db      Overrides database.path; ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running job)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/revenue.db"
  REVENUE_SCHEDULER_ENABLED=true ./server -port=3000

SEE ALSO:
  - config/config.go: All configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/warp/revenue-engine/api"
	"github.com/warp/revenue-engine/config"
	"github.com/warp/revenue-engine/factory"
	"github.com/warp/revenue-engine/logging"
	"github.com/warp/revenue-engine/metrics"
	"github.com/warp/revenue-engine/revenue"
	"github.com/warp/revenue-engine/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "revenue-engine: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	// Engine and metrics
	opts := []revenue.Option{
		revenue.WithLogger(log.Named("engine")),
		revenue.WithPrefixes(cfg.Prefixes()),
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		opts = append(opts, revenue.WithObserver(m))
	}
	engine := revenue.NewEngine(store, opts...)

	if cfg.Catalog.Path != "" {
		if err := importCatalog(context.Background(), engine, cfg.Catalog.Path, log); err != nil {
			return err
		}
	}

	scheduler := api.NewInvoiceScheduler(engine, log.Named("scheduler"))
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Spec = cfg.Scheduler.Spec
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	handler := api.NewHandler(engine, log.Named("http"))
	handler.Pinger = store
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Metrics:        m,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr), zap.String("db", cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// importCatalog loads tiers and products from a JSON file. Nothing is
// imported when the store already holds tiers.
func importCatalog(ctx context.Context, engine *revenue.Engine, path string, log *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	f := factory.NewCatalogFactory()
	catalog, err := f.ParseCatalog(string(data))
	if err != nil {
		return err
	}
	if len(engine.Tiers(ctx)) > 0 {
		log.Info("catalog already imported, skipping", zap.String("path", path))
		return nil
	}
	result, err := f.Import(ctx, engine, catalog)
	if err != nil {
		return err
	}
	log.Info("catalog imported",
		zap.String("path", path),
		zap.Int("tiers", len(result.Tiers)),
		zap.Int("products", len(result.Products)))
	return nil
}
