package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"planetoidgen/internal/agent"
	"planetoidgen/internal/messaging"
	"planetoidgen/internal/store"
)

// ErrConfiguration marks failures no retry can fix: an unknown agent title,
// settings the agent rejects or a stage the planetoid does not have.
var ErrConfiguration = errors.New("agent configuration error")

// persistTimeout bounds the tile update that follows an execution. It runs on
// a context detached from shutdown so a finished stage is not lost.
const persistTimeout = 10 * time.Second

// ProcessorConfig holds the execution policy.
type ProcessorConfig struct {
	SlidingTimeout time.Duration

	// LeaseRefresh is how often the tile lease is renewed while an agent
	// runs. It defaults to a third of SlidingTimeout.
	LeaseRefresh time.Duration

	// ExecRetry wraps every agent execution. OnRetry is set by the processor.
	ExecRetry messaging.RetryPolicy
}

// Processor applies the decision machine to consumed jobs.
type Processor struct {
	tiles    store.TileStore
	agents   store.AgentRegistry
	registry *agent.Registry
	deps     agent.Deps
	cfg      ProcessorConfig
	logger   *slog.Logger
	now      func() time.Time

	tracer     trace.Tracer
	processed  metric.Int64Counter
	executions metric.Int64Counter
	duration   metric.Float64Histogram
}

func NewProcessor(tiles store.TileStore, agents store.AgentRegistry, registry *agent.Registry, deps agent.Deps, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SlidingTimeout <= 0 {
		cfg.SlidingTimeout = DefaultSlidingTimeout
	}
	if cfg.LeaseRefresh <= 0 || cfg.LeaseRefresh >= cfg.SlidingTimeout {
		cfg.LeaseRefresh = cfg.SlidingTimeout / 3
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}

	meter := otel.Meter("planetoidgen/worker")
	processed, _ := meter.Int64Counter("planetoidgen.jobs.processed",
		metric.WithDescription("Consumed jobs by decision"))
	executions, _ := meter.Int64Counter("planetoidgen.agent.executions",
		metric.WithDescription("Agent executions by outcome"))
	duration, _ := meter.Float64Histogram("planetoidgen.agent.duration",
		metric.WithDescription("Agent execution time including retries"),
		metric.WithUnit("s"))

	return &Processor{
		tiles:      tiles,
		agents:     agents,
		registry:   registry,
		deps:       deps,
		cfg:        cfg,
		logger:     logger.With("component", "processor"),
		now:        time.Now,
		tracer:     otel.Tracer("planetoidgen/worker"),
		processed:  processed,
		executions: executions,
		duration:   duration,
	}
}

// Handle is the consumer callback. Configuration errors are logged and the
// job is dropped, every other error goes back to the consumer for republishing.
func (p *Processor) Handle(ctx context.Context, job messaging.Job) (messaging.ProcessingStatus, error) {
	status, err := p.Process(ctx, job)
	if errors.Is(err, ErrConfiguration) {
		p.logger.Error("dropping job", "job", job.String(), "error", err)
		return messaging.Completion, nil
	}
	return status, err
}

// Process evaluates one job and runs the agent when the stage is due.
func (p *Processor) Process(ctx context.Context, job messaging.Job) (messaging.ProcessingStatus, error) {
	ctx, span := p.tracer.Start(ctx, "process_job",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.Int("planetoid.id", job.PlanetoidID),
			attribute.Int("agent.index", job.AgentIndex),
			attribute.Int("tile.z", int(job.Z)),
			attribute.Int64("tile.x", job.X),
			attribute.Int64("tile.y", job.Y),
			attribute.Int("delivery.attempt", job.DeliveryAttempt),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	status, decision, err := p.process(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("decision", decision))
	p.processed.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
	return status, err
}

func (p *Processor) process(ctx context.Context, job messaging.Job) (messaging.ProcessingStatus, string, error) {
	logger := p.logger.With("job", job.String())

	agents, err := p.agents.GetAgents(ctx, job.PlanetoidID)
	if err != nil {
		return messaging.Completion, "error", fmt.Errorf("failed to load agents of planetoid %d: %w", job.PlanetoidID, err)
	}
	info, ok := stageOf(agents, job.AgentIndex)
	if !ok {
		return messaging.Completion, "error", fmt.Errorf("%w: planetoid %d has no stage %d", ErrConfiguration, job.PlanetoidID, job.AgentIndex)
	}

	t, err := p.tiles.SelectTile(ctx, job.PlanetoidID, job.Z, job.X, job.Y)
	if err != nil {
		return messaging.Completion, "error", fmt.Errorf("failed to select tile %s: %w", job.Address(), err)
	}

	decision := Decide(job, info, agents, t, p.now(), p.cfg.SlidingTimeout)
	logger.Debug("evaluated job", "tile", t.String(), "agent", info.String(), "decision", decision.String())
	if !decision.Runs() {
		return decision.status(), decision.String(), nil
	}

	if err := p.execute(ctx, logger, job, info, t); err != nil {
		return messaging.Completion, decision.String(), err
	}
	return messaging.Completion, decision.String(), nil
}

// stageOf finds the agent for a stage. Indices are contiguous, so the
// positional lookup is the common case.
func stageOf(agents []store.AgentInfo, index int) (store.AgentInfo, bool) {
	if index >= 0 && index < len(agents) && agents[index].IndexID == index {
		return agents[index], true
	}
	for _, a := range agents {
		if a.IndexID == index {
			return a, true
		}
	}
	return store.AgentInfo{}, false
}

func (p *Processor) execute(ctx context.Context, logger *slog.Logger, job messaging.Job, info store.AgentInfo, t *store.Tile) error {
	impl, err := p.registry.New(info.Title)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := impl.Initialize(info.Settings, p.deps); err != nil {
		return fmt.Errorf("%w: initialize %s: %v", ErrConfiguration, info.Title, err)
	}

	if _, err := p.tiles.AcquireLease(ctx, t.ID, info.IndexID, p.now()); err != nil {
		return fmt.Errorf("failed to lease tile %s: %w", t.ID, err)
	}

	retry := p.cfg.ExecRetry
	retry.OnRetry = func(attempt int, err error) {
		logger.Warn("agent execution failed, retrying", "agent", info.Title, "attempt", attempt, "error", err)
	}

	start := time.Now()
	stopRefresh := p.refreshLease(ctx, logger, t.ID, info.IndexID)
	execErr := retry.Do(ctx, func(ctx context.Context) error {
		return runAgent(ctx, impl, job)
	})
	stopRefresh()
	elapsed := time.Since(start).Seconds()

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	outcome := "success"
	if execErr != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(attribute.String("agent", info.Title), attribute.String("outcome", outcome))
	p.executions.Add(ctx, 1, attrs)
	p.duration.Record(ctx, elapsed, attrs)

	if execErr != nil {
		if _, err := p.tiles.ReleaseLease(persistCtx, t.ID); err != nil {
			logger.Error("failed to release tile lease", "tile_id", t.ID, "error", err)
		}
		return fmt.Errorf("agent %s failed: %w", info.Title, execErr)
	}

	updated, err := p.tiles.CompleteAgent(persistCtx, t.ID, info.IndexID)
	if err != nil {
		return fmt.Errorf("failed to record completion of stage %d on tile %s: %w", info.IndexID, t.ID, err)
	}
	logger.Info("stage completed", "agent", info.Title, "tile", updated.String(), "elapsed_s", elapsed)
	return nil
}

// refreshLease renews the tile lease until the returned func is called, so
// redeliveries of a stage that outlives SlidingTimeout are still skipped.
func (p *Processor) refreshLease(ctx context.Context, logger *slog.Logger, tileID string, stage int) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.cfg.LeaseRefresh)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.tiles.AcquireLease(ctx, tileID, stage, p.now()); err != nil && ctx.Err() == nil {
					logger.Warn("failed to refresh tile lease", "tile_id", tileID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// runAgent converts a panicking agent into an error.
func runAgent(ctx context.Context, impl agent.Agent, job messaging.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent %s panicked: %v", impl.Title(), r)
		}
	}()
	return impl.Execute(ctx, job)
}
