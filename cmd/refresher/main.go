// Command refresher runs the batch refresh scheduler on a cron cadence,
// keeping the cache warm without an external trigger.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

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
	configPath := flag.String("config", "configs/refresher.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting refresher",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

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

	history, quotes, err := provider.FromConfig(cfg.Providers, logger)
	if err != nil {
		logger.Error("failed to build providers", "error", err)
		os.Exit(1)
	}

	orch := fetch.New(fetch.Config{
		ProviderTimeout:  cfg.Fetch.ProviderTimeout,
		RetryBudget:      cfg.Fetch.RetryBudget,
		Backoff:          cfg.Fetch.Backoff,
		BackoffJitterPct: cfg.Fetch.BackoffJitterPct,
	}, cache, history, quotes, logger)
	defer orch.Drain()

	uni := universe.New(cfg.Universe.Symbols)

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

	invoke := func() {
		if _, err := refresher.Run(ctx); err != nil {
			logger.Error("refresh invocation failed", "error", err)
		}
	}

	if cfg.Refresh.RunOnStart {
		invoke()
	}

	// cron.SkipIfStillRunning keeps invocations from overlapping when one
	// runs long against a slow provider.
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	if _, err := c.AddFunc(cfg.Refresh.Cron, invoke); err != nil {
		logger.Error("invalid cron expression", "cron", cfg.Refresh.Cron, "error", err)
		os.Exit(1)
	}
	c.Start()
	logger.Info("refresher scheduled", "cron", cfg.Refresh.Cron, "universe", uni.Len())

	<-ctx.Done()
	logger.Info("shutting down...")

	// Stop scheduling and wait for a running invocation to finish.
	<-c.Stop().Done()
	orch.Drain()
	logger.Info("refresher stopped")
}
