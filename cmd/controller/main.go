// Package main is the entry point for the planetoidgen controller.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"planetoidgen/internal/agent"
	"planetoidgen/internal/agent/builtin"
	"planetoidgen/internal/auth"
	"planetoidgen/internal/config"
	"planetoidgen/internal/controller"
	"planetoidgen/internal/controller/handlers"
	"planetoidgen/internal/logger"
	"planetoidgen/internal/messaging"
	"planetoidgen/internal/messaging/broker"
	"planetoidgen/internal/observability"
	"planetoidgen/internal/scheduler"
	"planetoidgen/internal/store"
	"planetoidgen/internal/store/postgres"
	"planetoidgen/internal/worker"
	"planetoidgen/internal/worker/runtime"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, *migrateFlag, log); err != nil {
		log.Error("controller stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, migrate bool, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer db.Close()

	if migrate {
		log.Info("running database migrations")
		if err := postgres.Migrate(db.DB()); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.Info("migrations completed")
	}

	shutdownTracer, err := observability.InitTracer(ctx, "planetoidgen-controller", cfg.OTELEndpoint)
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

	b, err := broker.Open(cfg, db, log)
	if err != nil {
		return err
	}
	defer b.Close()

	if inspector, ok := b.(store.QueueInspector); ok {
		if _, err := observability.RegisterQueueDepth(inspector, log); err != nil {
			log.Warn("failed to register queue depth metric", "error", err)
		}
	}

	topology := messaging.NewTopology(cfg.TopicPrefix)
	producer := messaging.NewProducer(b, topology, broker.Retry(cfg), log)
	admin := messaging.NewTopicAdmin(b, topology, cfg.TopicPartitions)
	registry := builtin.NewRegistry()
	expander := scheduler.NewExpander(db, registry, agent.Deps{Logger: log}, producer, admin, log)

	var pool *worker.Pool
	if cfg.EmbeddedWorkers > 0 {
		rt, err := runtime.New(cfg.Runtime, runtimeOptions(cfg), log)
		if err != nil {
			return err
		}
		pool = worker.New(cfg, db, b, registry, rt, cfg.EmbeddedWorkers, log)
		go func() {
			if err := pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("embedded workers stopped", "error", err)
			}
		}()
	}

	keyHash := ""
	if cfg.AdminAPIKey != "" {
		keyHash = auth.HashKey(cfg.AdminAPIKey)
	} else {
		log.Warn("ADMIN_API_KEY is not set, admin routes are unauthenticated")
	}

	h := handlers.New(db, expander, admin, registry, log)
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, h, controller.ServerConfig{
		InternalSecret: cfg.InternalSecret,
		AdminKeyHash:   keyHash,
		GenerateLimit:  cfg.GenerateRateLimit,
		GenerateBurst:  cfg.GenerateBurst,
		Metrics:        metricsHandler,
	})

	log.Info("controller starting", "addr", addr, "broker", cfg.BrokerDriver)
	err = srv.Run(ctx)

	if pool != nil {
		select {
		case <-pool.Done():
		case <-time.After(30 * time.Second):
			log.Warn("embedded workers did not stop in time")
		}
	}
	log.Info("controller exited")
	return err
}

func runtimeOptions(cfg *config.Config) runtime.Options {
	return runtime.Options{
		WorkDir: cfg.RuntimeWorkDir,
		Kubernetes: runtime.KubernetesConfig{
			Namespace:          cfg.KubernetesNamespace,
			ServiceAccount:     cfg.KubernetesServiceAccount,
			DefaultCPULimit:    cfg.KubernetesCPULimit,
			DefaultMemoryLimit: cfg.KubernetesMemoryLimit,
		},
	}
}
