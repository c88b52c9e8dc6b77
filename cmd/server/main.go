/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the pay comparison server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (defaults -> PAYCOMPARE_CONFIG file -> PAYCOMPARE_* env)
  2. Apply command-line flag overrides
  3. Open the SQLite history store (runs migrations)
  4. Load rate tables from the configured workbooks
  5. Create API handler, metrics and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -addr    HTTP listen address (overrides addr)
  -db      SQLite database path (overrides db_path)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with defaults
  ./server

  # Different rate workbooks and port
  PAYCOMPARE_DEFAULT_RATE_PATHS="rates/a.xlsx,rates/b.xlsx" ./server -addr=:3000

SEE ALSO:
  - config/loader.go: Configuration layers
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

	"github.com/warp/paycompare/api"
	"github.com/warp/paycompare/config"
	"github.com/warp/paycompare/logger"
	"github.com/warp/paycompare/metrics"
	"github.com/warp/paycompare/payroll"
	"github.com/warp/paycompare/ratesheet"
	"github.com/warp/paycompare/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	log := logger.New(os.Stderr).Named("server")

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	// Flags
	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Addr, cfg.DBPath = *addr, *dbPath
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Rate tables
	defaultSrc := ratesheet.NewSource(payroll.VariantSingleRate, cfg.DefaultRatePaths...)
	alternateSrc := ratesheet.NewSource(payroll.VariantBaseAndOvertime, cfg.AlternateRatePaths...)
	rates := payroll.NewRateStore(defaultSrc, alternateSrc)

	// Initialize handler
	handler := api.NewHandler(store, rates)
	handler.Log = logger.New(os.Stderr).Named("api")
	handler.Metrics = metrics.NewManager()
	handler.Enricher = payroll.NewEnricher(rates, payroll.WithWorkers(cfg.EnrichWorkers))
	handler.Extract.SetWorkers(cfg.EnrichWorkers)
	handler.Sources = map[string]*ratesheet.Source{
		api.TableDefault:   defaultSrc,
		api.TableAlternate: alternateSrc,
	}
	handler.MaxUploadBytes = cfg.MaxUploadBytes()
	handler.Extract.SetMaxMemberBytes(handler.MaxUploadBytes)
	handler.HistoryLimit = cfg.HistoryLimit

	// Load rates up front so a bad workbook shows at startup. Requests retry
	// the load lazily if this fails.
	snap, err := rates.Reload(ctx)
	if err != nil {
		log.Warn(ctx, "rate tables not loaded", logger.Error(err))
		handler.Metrics.RecordRateReload(err, 0, 0, 0)
	} else {
		log.Info(ctx, "rate tables loaded",
			logger.Int("default_entries", snap.Default.Len()),
			logger.Int("alternate_entries", snap.Alternate.Len()),
			logger.String("default_source", defaultSrc.Describe()),
			logger.String("alternate_source", alternateSrc.Describe()),
		)
		handler.Metrics.RecordRateReload(nil, snap.Default.Len(), snap.Alternate.Len(), snap.Generation)
	}

	// Create router
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "server starting",
			logger.String("addr", cfg.Addr),
			logger.String("db", cfg.DBPath),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info(ctx, "server stopped")
	return nil
}
