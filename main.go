package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campaign_sync/config"
	"campaign_sync/internal/bootstrap"
	"campaign_sync/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all, once")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "campaign-sync",
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	needAPI := *mode == "api" || *mode == "all"
	if err := cfg.Validate(needAPI, true); err != nil {
		logger.Fatal("Invalid config: %v", err)
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	switch *mode {
	case "api":
		runAPI(deps)
	case "worker":
		runWorker(deps)
	case "all":
		w := bootstrap.NewWorker(deps)
		w.Start()
		defer w.Stop()
		runAPI(deps)
	case "once":
		runOnce(deps)
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

func runAPI(deps *bootstrap.Dependencies) {
	app := bootstrap.NewAPI(deps)

	// Graceful shutdown with timeout
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		deps.Shutdown()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + deps.Config.Port
	logger.Info("API server listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Error("API server stopped: %v", err)
	}
}

func runWorker(deps *bootstrap.Dependencies) {
	w := bootstrap.NewWorker(deps)
	w.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down worker...")
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker stopped")
	case <-time.After(shutdownTimeout):
		logger.Warn("Worker shutdown timed out after %v", shutdownTimeout)
	}
}

func runOnce(deps *bootstrap.Dependencies) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := bootstrap.RunOnce(ctx, deps)
	if err != nil {
		logger.Error("Sync cycle did not run: %v", err)
		return
	}
	logger.WithDuration(report.Duration).Info("Sync cycle %s finished, succeeded=%v", report.CycleID, report.Succeeded())
}
