package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // America/Sao_Paulo on images without zoneinfo

	"github.com/go-co-op/gocron"

	"roas-notifier/internal/deliverylog"
	"roas-notifier/internal/job"
	"roas-notifier/internal/ledger"
	"roas-notifier/internal/logger"
	"roas-notifier/internal/metrics"
	"roas-notifier/internal/registry"
	"roas-notifier/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	siteName := flag.String("site", "", "process a single site (required for monitor and blocks)")
	mode := flag.String("mode", "once", "once, schedule, monitor or blocks")
	interval := flag.Duration("interval", 0, "monitor interval (default from config)")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *mode, *siteName, *interval); err != nil {
		logger.ErrorWithErr(ctx, "Notifier stopped with error", err, "mode", *mode)
		_ = logger.Shutdown(context.Background())
		os.Exit(1)
	}
	_ = logger.Shutdown(context.Background())
}

func run(ctx context.Context, configPath, mode, siteName string, interval time.Duration) error {
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	if (mode == "monitor" || mode == "blocks") && siteName == "" {
		return fmt.Errorf("-site is required in %s mode", mode)
	}

	reg, err := registry.Open(ctx, cfg.Registry)
	if err != nil {
		return err
	}
	defer reg.Close()

	led, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	defer led.Close()

	audit := deliverylog.New(cfg.DeliveryLog.Dir, cfg.Location())
	defer audit.Close()
	compressOldLogs(ctx, audit, cfg.DeliveryLog.RetentionDays)

	rec := metrics.NewRecorder()
	if cfg.Status.Addr != "" {
		srv := metrics.NewServer(cfg.Status.Addr, rec)
		srv.Start(ctx)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	runner := job.New(cfg, job.Deps{
		Registry:  reg,
		Source:    initializeSource(ctx, cfg),
		Ledger:    led,
		Notifiers: initializeNotifiers(ctx, cfg, audit),
		Metrics:   rec,
	})

	switch mode {
	case "once":
		if siteName != "" {
			_, err = runner.RunSite(ctx, siteName)
		} else {
			_, err = runner.RunAll(ctx)
		}
		return err
	case "blocks":
		_, err = runner.RunChannelBlocks(ctx, siteName)
		return err
	case "monitor":
		return runner.Monitor(ctx, siteName, interval)
	case "schedule":
		return schedule(ctx, cfg, runner, audit)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// schedule runs every site at the configured times of day until ctx is done.
func schedule(ctx context.Context, cfg *store.Config, runner *job.Runner, audit *deliverylog.Log) error {
	s := gocron.NewScheduler(cfg.Location())
	s.SingletonModeAll()

	for _, at := range cfg.Schedule.Times {
		if _, err := s.Every(1).Day().At(at).Do(func() {
			logger.Info(ctx, "Scheduled run starting", "at", at)
			if _, err := runner.RunAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorWithErr(ctx, "Scheduled run failed", err)
			}
			compressOldLogs(ctx, audit, cfg.DeliveryLog.RetentionDays)
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", at, err)
		}
	}

	s.StartAsync()
	logger.Info(ctx, "Scheduler started", "times", cfg.Schedule.Times, "timezone", cfg.Timezone)

	<-ctx.Done()
	logger.Info(ctx, "Shutting down scheduler")
	s.Stop()
	return nil
}
