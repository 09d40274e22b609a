package messaging

import (
	"context"
	"fmt"
	"log/slog"
)

// Producer publishes jobs to the topic of their stage.
type Producer struct {
	transport Transport
	topology  Topology
	retry     RetryPolicy
	logger    *slog.Logger
}

// NewProducer builds a producer. Each publish is retried according to retry.
func NewProducer(transport Transport, topology Topology, retry RetryPolicy, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Producer{
		transport: transport,
		topology:  topology,
		logger:    logger.With("component", "producer"),
	}
	p.retry = retry
	p.retry.OnRetry = func(attempt int, err error) {
		p.logger.Error("publish retry attempt", "attempt", attempt, "error", err)
	}
	return p
}

// Produce publishes a single job to the topic of its AgentIndex.
func (p *Producer) Produce(ctx context.Context, job Job) error {
	payload, err := EncodeJob(job)
	if err != nil {
		return err
	}
	topic := p.topology.Topic(job.AgentIndex)

	err = p.retry.Do(ctx, func(ctx context.Context) error {
		return p.transport.Publish(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("failed to publish job %s to %s: %w", job.ID, topic, err)
	}
	return nil
}

// ProduceBatch publishes jobs in slice order and stops at the first failure.
// Jobs published before the failure stay published.
func (p *Producer) ProduceBatch(ctx context.Context, jobs []Job) error {
	for i := range jobs {
		if err := p.Produce(ctx, jobs[i]); err != nil {
			return err
		}
	}
	return nil
}
