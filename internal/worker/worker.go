package worker

import (
	"log/slog"
	"net/http"
	"time"

	"planetoidgen/internal/agent"
	"planetoidgen/internal/config"
	"planetoidgen/internal/messaging"
	"planetoidgen/internal/messaging/broker"
	"planetoidgen/internal/store"
	"planetoidgen/internal/worker/runtime"
)

// Store is what workers read and update.
type Store interface {
	store.TileStore
	store.AgentRegistry
}

// New assembles the processor, consumer and pool of one worker process from
// cfg. The returned pool is not started.
func New(cfg *config.Config, st Store, b broker.Broker, registry *agent.Registry, rt runtime.Runtime, size int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}

	topology := messaging.NewTopology(cfg.TopicPrefix)
	producer := messaging.NewProducer(b, topology, broker.Retry(cfg), logger)
	admin := messaging.NewTopicAdmin(b, topology, cfg.TopicPartitions)

	processor := NewProcessor(st, st, registry, agent.Deps{
		Logger:         logger,
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
		ControllerURL:  cfg.ControllerURL,
		InternalSecret: cfg.InternalSecret,
		Runtime:        rt,
	}, ProcessorConfig{
		SlidingTimeout: cfg.AgentSlidingTimeout,
		ExecRetry:      messaging.RetryPolicy{Retries: cfg.AgentRetryCount, Wait: cfg.AgentRetryWait},
	}, logger)

	consumer := messaging.NewConsumer(b, producer, topology, messaging.ConsumerConfig{
		ConsumeTimeout:    cfg.ConsumeTimeout,
		RetryWait:         cfg.BrokerRetryWait,
		CommitRetries:     cfg.BrokerRetryCount,
		HeartbeatInterval: cfg.QueueVisibility / 3,
	}, logger)

	return NewPool(consumer, admin, processor.Handle, PoolConfig{Size: size}, logger)
}
