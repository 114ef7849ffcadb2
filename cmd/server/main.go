package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketcache/internal/config"
	"marketcache/internal/database"
	"marketcache/internal/fetch"
	"marketcache/internal/model"
	"marketcache/internal/provider"
	"marketcache/internal/refresh"
	"marketcache/internal/store"
	"marketcache/internal/universe"
	"marketcache/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/server.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting server",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	cache := store.New(pool, logger)
	if err := cache.Migrate(ctx); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

	// Build providers and the fetch path
	history, quotes, err := provider.FromConfig(cfg.Providers, logger)
	if err != nil {
		logger.Error("failed to build providers", "error", err)
		os.Exit(1)
	}
	logger.Info("providers configured",
		"history_order", cfg.Providers.HistoryOrder,
		"quote_order", cfg.Providers.QuoteOrder,
	)

	orch := fetch.New(fetch.Config{
		ProviderTimeout:  cfg.Fetch.ProviderTimeout,
		RetryBudget:      cfg.Fetch.RetryBudget,
		Backoff:          cfg.Fetch.Backoff,
		BackoffJitterPct: cfg.Fetch.BackoffJitterPct,
	}, cache, history, quotes, logger)
	defer orch.Drain()

	uni := universe.New(cfg.Universe.Symbols)
	logger.Info("universe loaded", "symbols", uni.Len())

	refreshHorizon, err := model.ParseHorizon(cfg.Refresh.Horizon)
	if err != nil {
		logger.Error("invalid refresh horizon", "error", err)
		os.Exit(1)
	}
	refresher := refresh.New(refresh.Config{
		StaleAfter:      cfg.Refresh.StaleAfter,
		BatchSize:       cfg.Refresh.BatchSize,
		Concurrency:     cfg.Refresh.Concurrency,
		InterBatchDelay: cfg.Refresh.InterBatchDelay,
		Horizon:         refreshHorizon,
	}, cache, orch, uni, logger)

	// Serve
	srv := &server{
		orch:     orch,
		refresh:  refresher,
		universe: uni,
		ping:     pool.Ping,
		logger:   logger,
	}
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	// Let in-flight async cache writes land before the pool closes.
	done := make(chan struct{})
	go func() {
		orch.Drain()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Server.ShutdownTimeout):
		logger.Warn("timed out waiting for cache writes")
	}

	logger.Info("server stopped")
}
