package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"planetoidgen/internal/messaging"
)

// startingStageCount is what every consumer scans first; jobs reveal the rest.
const startingStageCount = 1

// PoolConfig holds configuration for the worker pool.
type PoolConfig struct {
	// Size is the number of concurrent consumers.
	Size int

	// RestartWait is the pause before a consume loop that ended with an
	// error is started again.
	RestartWait time.Duration
}

// Pool runs independent consume loops against the stage topics.
type Pool struct {
	consumer *messaging.Consumer
	admin    *messaging.TopicAdmin
	handler  messaging.Handler
	config   PoolConfig
	logger   *slog.Logger
	done     chan struct{}
}

func NewPool(consumer *messaging.Consumer, admin *messaging.TopicAdmin, handler messaging.Handler, config PoolConfig, logger *slog.Logger) *Pool {
	if config.Size <= 0 {
		config.Size = 1
	}
	if config.RestartWait <= 0 {
		config.RestartWait = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		consumer: consumer,
		admin:    admin,
		handler:  handler,
		config:   config,
		logger:   logger.With("component", "pool"),
		done:     make(chan struct{}),
	}
}

// Run makes sure the first stage topic exists and blocks until ctx is
// cancelled and every consumer has returned.
func (p *Pool) Run(ctx context.Context) error {
	defer close(p.done)

	created, err := p.admin.EnsureExists(ctx, startingStageCount)
	if err != nil {
		return fmt.Errorf("unable to start worker as messaging topics do not exist: %w", err)
	}
	if len(created) > 0 {
		p.logger.Info("topics created before worker start", "topics", created)
	}

	p.logger.Info("worker pool starting", "size", p.config.Size)

	restart := messaging.RetryPolicy{
		Wait: p.config.RestartWait,
		OnRetry: func(attempt int, err error) {
			p.logger.Error("consume loop failed, restarting", "attempt", attempt, "error", err)
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < p.config.Size; i++ {
		id := fmt.Sprintf("consumer_%d_%s", i, uuid.NewString())
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = restart.Forever(ctx, func(ctx context.Context) error {
				return p.consumer.Consume(ctx, id, startingStageCount, p.handler)
			})
			p.logger.Debug("consumer stopped", "consumer_id", id)
		}()
	}

	<-ctx.Done()
	p.logger.Info("context cancelled, waiting for running jobs to finish")
	wg.Wait()
	return ctx.Err()
}

// Done returns a channel that is closed when the pool has fully stopped.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}
