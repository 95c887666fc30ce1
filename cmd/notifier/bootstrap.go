package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"roas-notifier/internal/api"
	"roas-notifier/internal/deliverylog"
	"roas-notifier/internal/interfaces"
	"roas-notifier/internal/logger"
	"roas-notifier/internal/notify"
	"roas-notifier/internal/source"
	"roas-notifier/internal/source/sourceobs"
	"roas-notifier/internal/store"
)

// initializeSystem loads .env and starts the logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs gzips delivery logs past retention.
// DELIVERY_LOG_RETENTION_DAYS overrides the configured value.
func compressOldLogs(ctx context.Context, dl *deliverylog.Log, days int) {
	if v := os.Getenv("DELIVERY_LOG_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			days = n
		}
	}
	if days <= 0 {
		return
	}
	n, err := dl.CompressOlder(days)
	if err != nil {
		logger.Warn(ctx, "Failed to compress old delivery logs", "error", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "Compressed old delivery logs", "files", n)
	}
}

// initializeSource builds the configured sheet reader with observability
func initializeSource(ctx context.Context, cfg *store.Config) interfaces.TabularSource {
	limiter := source.NewHostLimiter(cfg.Source.Burst, cfg.RefillRate())

	var src interfaces.TabularSource
	switch cfg.Source.Kind {
	case "xlsx":
		client := api.NewClient(api.WithTimeout(cfg.SourceTimeout()))
		src = source.NewXLSXSource(client, limiter, cfg.Columns)
	default:
		cache := source.NewCache(cfg.Source.CacheDir, cfg.CacheTTL())
		if err := cache.CleanupExpired(); err != nil {
			logger.Warn(ctx, "Failed to clean tab cache", "error", err)
		}
		src = source.NewGSheetSource(cfg.SourceTimeout(), limiter, cache, cfg.Columns)
	}

	logger.Info(ctx, "Sheet source ready", "kind", cfg.Source.Kind, "requests_per_minute", cfg.Source.RequestsPerMinute)
	return sourceobs.Wrap(src, cfg.Source.Kind)
}

// initializeNotifiers returns the factory for per-channel notifiers
func initializeNotifiers(ctx context.Context, cfg *store.Config, audit *deliverylog.Log) interfaces.NotifierFactory {
	if cfg.DryRun {
		logger.Info(ctx, ">> DRY_RUN mode, messages are logged instead of posted")
	}
	client := api.NewClient(api.WithTimeout(cfg.NotifyTimeout()))
	return notify.NewFactory(client, notify.FactoryConfig{DryRun: cfg.DryRun, Audit: audit})
}
