// Package main is the entry point for the planetoidgen worker. It consumes
// stage jobs and runs the agents of due stages.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"planetoidgen/internal/agent/builtin"
	"planetoidgen/internal/config"
	"planetoidgen/internal/logger"
	"planetoidgen/internal/messaging/broker"
	"planetoidgen/internal/observability"
	"planetoidgen/internal/store/postgres"
	"planetoidgen/internal/worker"
	"planetoidgen/internal/worker/runtime"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if err := broker.RequireShared(cfg.BrokerDriver); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "planetoidgen-worker", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Error("failed to shutdown metrics", "error", err)
		}
	}()

	metricsAddr := fmt.Sprintf(":%d", cfg.MetricsPort)
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux(metricsHandler), ReadTimeout: 10 * time.Second}
	go func() {
		log.Info("worker metrics listening", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()
	defer metricsServer.Close()

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer db.Close()

	b, err := broker.Open(cfg, db, log)
	if err != nil {
		return err
	}
	defer b.Close()

	rt, err := runtime.New(cfg.Runtime, runtime.Options{
		WorkDir: cfg.RuntimeWorkDir,
		Kubernetes: runtime.KubernetesConfig{
			Namespace:          cfg.KubernetesNamespace,
			ServiceAccount:     cfg.KubernetesServiceAccount,
			DefaultCPULimit:    cfg.KubernetesCPULimit,
			DefaultMemoryLimit: cfg.KubernetesMemoryLimit,
		},
	}, log)
	if err != nil {
		return err
	}

	pool := worker.New(cfg, db, b, builtin.NewRegistry(), rt, cfg.WorkerCount, log)
	log.Info("worker started", "consumers", cfg.WorkerCount, "broker", cfg.BrokerDriver)

	err = pool.Run(ctx)
	<-pool.Done()
	if errors.Is(err, context.Canceled) {
		log.Info("worker exited")
		return nil
	}
	return err
}

func metricsMux(h http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return mux
}
