// Package main 异步索引 worker 入口（index-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"project-context-api/internal/config"
	"project-context-api/internal/wire"
	"project-context-api/pkg/logger"
	"project-context-api/pkg/tracer"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()
	log := logger.FromContext(ctx)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "index-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	app, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := app.Consumer.Start(workerCtx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go app.Consumer.MonitorDLQ(workerCtx, 100)

	log.Info("index-worker started", "env", cfg.App.Env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down index-worker...")
	cancel()
	app.Consumer.Stop()
	log.Info("index-worker exited")
}
