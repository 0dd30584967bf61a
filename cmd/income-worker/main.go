package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledger/internal/backend"
	"ledger/internal/config"
	applog "ledger/internal/log"
	"ledger/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		applog.New(applog.DefaultConfig()).Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg).WithComponent(applog.ComponentScheduler)
	applog.SetDefault(logger)

	logger.Info("Starting income-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	if result.Publisher == nil {
		logger.Info("AMQP disabled - postings will not be mirrored to Google Sheets")
	}

	runner := services.NewDailyRunner(result.Provider, result.Publisher, services.DailyRunnerConfig{
		Schedule:        cfg.SchedulerCron,
		RunOnStart:      cfg.SchedulerRunOnStart,
		UserConcurrency: cfg.SchedulerConcurrency,
		Location:        cfg.Location(),
		Scheduler: services.SchedulerConfig{
			StorageTimeout: cfg.StorageTimeout,
			Concurrency:    cfg.SchedulerConcurrency,
		},
	})
	if err := runner.Start(ctx); err != nil {
		logger.Error("Failed to start daily runner", "error", err)
		os.Exit(1)
	}

	logger.Info("Daily income check configured",
		"schedule", cfg.SchedulerCron,
		"timezone", cfg.SchedulerTimezone,
		"run_on_start", cfg.SchedulerRunOnStart,
		"backend", cfg.DataBackend)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	// Let an in-flight pass finish before the store closes.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := runner.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown timeout reached", "error", err)
	}
	cancel()
	logger.Info("Income-worker shutdown complete")
}

func newLogger(cfg *config.Config) *applog.Logger {
	level, err := applog.ParseLevel(cfg.LogLevel)
	logger := applog.New(applog.Config{
		Level:  level,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	})
	if err != nil {
		logger.Warn("Falling back to info level", "error", err)
	}
	return logger
}
