package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Handler processes one consumed job.
type Handler func(ctx context.Context, job Job) (ProcessingStatus, error)

// ConsumerConfig holds the timings of the consume loop.
type ConsumerConfig struct {
	// ConsumeTimeout bounds each poll. It is also the delay before a job
	// waiting for a previous stage is republished.
	ConsumeTimeout time.Duration

	// RetryWait is the delay between fetch attempts while the broker is
	// unreachable. Failed jobs are republished after half of it.
	RetryWait time.Duration

	// CommitRetries bounds the commit retry, which waits RetryWait between attempts.
	CommitRetries int

	// HeartbeatInterval is how often a delivery being handled is extended on
	// transports that implement Extender. Zero disables the heartbeat.
	HeartbeatInterval time.Duration
}

// Consumer scans stage topics in ascending order and feeds jobs to a Handler.
type Consumer struct {
	transport Transport
	producer  *Producer
	topology  Topology
	cfg       ConsumerConfig
	logger    *slog.Logger

	republished metric.Int64Counter
}

func NewConsumer(transport Transport, producer *Producer, topology Topology, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConsumeTimeout <= 0 {
		cfg.ConsumeTimeout = time.Second
	}

	meter := otel.Meter("planetoidgen/messaging")
	republished, _ := meter.Int64Counter("planetoidgen.jobs.republished",
		metric.WithDescription("Jobs published again after a failure or deferral"))

	return &Consumer{
		transport:   transport,
		producer:    producer,
		topology:    topology,
		cfg:         cfg,
		logger:      logger.With("component", "consumer"),
		republished: republished,
	}
}

// Consume runs the consume loop until ctx is cancelled, which ends it with a
// nil error. stageCount is the number of stage topics initially scanned; it
// grows when a job reports a larger PlanetoidAgentsCount. Fetch errors are
// retried without limit. A failure to republish or commit ends the loop with
// an error so the caller can restart it.
func (c *Consumer) Consume(ctx context.Context, consumerID string, stageCount int, onMessage Handler) error {
	if stageCount < 1 {
		stageCount = 1
	}
	logger := c.logger.With("consumer_id", consumerID)
	topics := c.topology.Topics(stageCount)

	for ctx.Err() == nil {
		restart := false

		for _, topic := range topics {
			for ctx.Err() == nil {
				d, err := c.fetch(ctx, logger, topic, consumerID)
				if err != nil {
					return ignoreCanceled(ctx, err)
				}
				if d == nil {
					logger.Debug("read resulted with no data", "topic", topic)
					break
				}

				job, err := DecodeJob(d.Payload)
				if err != nil {
					logger.Error("dropping malformed message", "topic", topic, "error", err)
					if err := c.commit(ctx, logger, d); err != nil {
						return ignoreCanceled(ctx, err)
					}
					continue
				}

				restart, err = c.handle(ctx, logger, d, job, onMessage)
				if err != nil {
					return ignoreCanceled(ctx, err)
				}

				if job.PlanetoidAgentsCount > len(topics) {
					logger.Info("stage count grew, rescanning topics",
						"known", len(topics), "reported", job.PlanetoidAgentsCount)
					topics = c.topology.Topics(job.PlanetoidAgentsCount)
					restart = true
				}
				if restart {
					break
				}
			}

			if restart || ctx.Err() != nil {
				break
			}
		}
	}
	return nil
}

// handle runs the handler and settles the delivery. restart reports that the
// scan should begin again from stage 0.
func (c *Consumer) handle(ctx context.Context, logger *slog.Logger, d *Delivery, job Job, onMessage Handler) (restart bool, err error) {
	stopHeartbeat := c.heartbeat(ctx, logger, d)
	status, herr := onMessage(ctx, job)
	stopHeartbeat()
	if ctx.Err() != nil {
		// Left uncommitted so the broker hands it out again after restart.
		return false, ctx.Err()
	}

	switch {
	case herr != nil:
		logger.Debug("failed to process message",
			"job_id", job.ID, "attempt", job.DeliveryAttempt, "topic", d.Topic, "error", herr)
		if err := c.republish(ctx, logger, job, c.cfg.RetryWait/2, "failed"); err != nil {
			return false, err
		}
	case status == WaitingForPreviousAgent:
		if err := c.republish(ctx, logger, job, c.cfg.ConsumeTimeout, "waiting"); err != nil {
			return false, err
		}
		restart = true
	default:
		logger.Debug("committing message", "job_id", job.ID, "topic", d.Topic, "status", status.String())
	}

	if err := c.commit(ctx, logger, d); err != nil {
		return false, err
	}
	return restart, nil
}

// heartbeat extends d until the returned func is called, so a long running
// handler keeps its delivery.
func (c *Consumer) heartbeat(ctx context.Context, logger *slog.Logger, d *Delivery) (stop func()) {
	ext, ok := c.transport.(Extender)
	if !ok || c.cfg.HeartbeatInterval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ext.Extend(ctx, d); err != nil && ctx.Err() == nil {
					logger.Warn("heartbeat failed", "topic", d.Topic, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (c *Consumer) fetch(ctx context.Context, logger *slog.Logger, topic, consumerID string) (*Delivery, error) {
	var d *Delivery
	policy := RetryPolicy{
		Wait: c.cfg.RetryWait,
		OnRetry: func(attempt int, err error) {
			logger.Error("consume retry attempt", "topic", topic, "attempt", attempt, "error", err)
		},
	}
	err := policy.Forever(ctx, func(ctx context.Context) error {
		var err error
		d, err = c.transport.Fetch(ctx, topic, consumerID, c.cfg.ConsumeTimeout)
		return err
	})
	return d, err
}

func (c *Consumer) commit(ctx context.Context, logger *slog.Logger, d *Delivery) error {
	policy := RetryPolicy{
		Retries: c.cfg.CommitRetries,
		Wait:    c.cfg.RetryWait,
		OnRetry: func(attempt int, err error) {
			logger.Error("commit retry attempt", "topic", d.Topic, "attempt", attempt, "error", err)
		},
	}
	if err := policy.Do(ctx, func(ctx context.Context) error {
		return c.transport.Commit(ctx, d)
	}); err != nil {
		return fmt.Errorf("failed to commit message on %s: %w", d.Topic, err)
	}
	return nil
}

func (c *Consumer) republish(ctx context.Context, logger *slog.Logger, job Job, delay time.Duration, reason string) error {
	logger.Debug("message will be republished", "job_id", job.ID, "reason", reason, "delay", delay)

	if err := Sleep(ctx, delay); err != nil {
		return err
	}
	job.DeliveryAttempt++
	if err := c.producer.Produce(ctx, job); err != nil {
		return err
	}
	c.republished.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	return nil
}

// ignoreCanceled drops errors caused by shutdown.
func ignoreCanceled(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
