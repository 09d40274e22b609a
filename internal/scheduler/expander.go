// Package scheduler expands tile generation requests into stage jobs and
// publishes them in dependency order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"planetoidgen/internal/agent"
	"planetoidgen/internal/messaging"
	"planetoidgen/internal/store"
	"planetoidgen/internal/tile"
)

var (
	// ErrInvalidTile is returned for an address outside the grid of its zoom level.
	ErrInvalidTile = errors.New("invalid tile address")

	// ErrNoAgents is returned when the planetoid has no pipeline to run.
	ErrNoAgents = errors.New("planetoid has no agents")
)

// Expander turns tile requests into ordered jobs.
type Expander struct {
	agents   store.AgentRegistry
	registry *agent.Registry
	deps     agent.Deps
	producer *messaging.Producer
	guard    *topicGuard
	logger   *slog.Logger
	newID    func() string

	queued metric.Int64Counter
}

func NewExpander(agents store.AgentRegistry, registry *agent.Registry, deps agent.Deps, producer *messaging.Producer, admin *messaging.TopicAdmin, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	queued, _ := otel.Meter("planetoidgen/scheduler").Int64Counter("planetoidgen.jobs.queued",
		metric.WithDescription("Jobs published by tile expansion"))

	logger = logger.With("component", "expander")
	return &Expander{
		agents:   agents,
		registry: registry,
		deps:     deps,
		producer: producer,
		guard:    &topicGuard{admin: admin, logger: logger, maxCount: -1},
		logger:   logger,
		newID:    uuid.NewString,
		queued:   queued,
	}
}

// QueueTiles queues the tiles one after another and stops at the first
// failure. Tiles queued before the failure stay queued. It returns the number
// of jobs published.
func (e *Expander) QueueTiles(ctx context.Context, tiles []tile.Address, connectionID string) (int, error) {
	seen := make(map[messaging.JobKey]bool)
	total := 0
	for _, addr := range tiles {
		n, err := e.queueTile(ctx, addr, connectionID, seen)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// QueueTile expands and publishes the jobs for a single tile.
func (e *Expander) QueueTile(ctx context.Context, addr tile.Address, connectionID string) (int, error) {
	return e.queueTile(ctx, addr, connectionID, make(map[messaging.JobKey]bool))
}

func (e *Expander) queueTile(ctx context.Context, addr tile.Address, connectionID string, seen map[messaging.JobKey]bool) (int, error) {
	jobs, err := e.expand(ctx, addr, connectionID, seen)
	if err != nil {
		return 0, fmt.Errorf("failed to expand tile %s: %w", addr, err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	if err := e.guard.ensure(ctx, jobs[0].PlanetoidAgentsCount); err != nil {
		return 0, err
	}
	if err := e.producer.ProduceBatch(ctx, jobs); err != nil {
		return 0, fmt.Errorf("failed to queue tile %s: %w", addr, err)
	}

	e.queued.Add(ctx, int64(len(jobs)), metric.WithAttributes(attribute.Int("planetoid.id", addr.PlanetoidID)))
	e.logger.Info("tile queued", "tile", addr.String(), "jobs", len(jobs), "connection_id", connectionID)
	return len(jobs), nil
}

// Expand returns the jobs QueueTile would publish, in publish order.
func (e *Expander) Expand(ctx context.Context, addr tile.Address, connectionID string) ([]messaging.Job, error) {
	return e.expand(ctx, addr, connectionID, make(map[messaging.JobKey]bool))
}

// node is a (tile, stage) pair on the expansion work list. ready is set once
// its prerequisites have been pushed, so popping it again emits the job.
type node struct {
	addr  tile.Address
	stage int
	ready bool
}

func (n node) key() messaging.JobKey {
	return messaging.JobKey{PlanetoidID: n.addr.PlanetoidID, Z: n.addr.Z, X: n.addr.X, Y: n.addr.Y, AgentIndex: n.stage}
}

// expand walks every stage of addr depth first. Before a (tile, k) job is
// emitted, (tile, k-1) and every neighbor the stage-k agent depends on at k-1
// are emitted. Keys already in seen are not emitted again.
func (e *Expander) expand(ctx context.Context, addr tile.Address, connectionID string, seen map[messaging.JobKey]bool) ([]messaging.Job, error) {
	if !addr.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTile, addr)
	}

	infos, err := e.agents.GetAgents(ctx, addr.PlanetoidID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agents of planetoid %d: %w", addr.PlanetoidID, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoAgents, addr.PlanetoidID)
	}
	slices.SortStableFunc(infos, func(a, b store.AgentInfo) int { return a.IndexID - b.IndexID })

	impls, err := e.initialize(infos)
	if err != nil {
		return nil, err
	}
	// Dependencies only vary with zoom and every tile of one expansion shares it.
	dependencies := make([][]tile.Direction, len(impls))
	for i, impl := range impls {
		deps, err := impl.Dependencies(addr.Z)
		if err != nil {
			return nil, fmt.Errorf("failed to get dependencies of %s at z=%d: %w", infos[i].Title, addr.Z, err)
		}
		for _, d := range deps {
			dependencies[i] = append(dependencies[i], d.Direction)
		}
	}

	stack := make([]node, 0, len(infos))
	for stage := len(infos) - 1; stage >= 0; stage-- {
		stack = append(stack, node{addr: addr, stage: stage})
	}
	visiting := make(map[messaging.JobKey]bool)

	var jobs []messaging.Job
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		k := n.key()

		if n.ready {
			seen[k] = true
			jobs = append(jobs, messaging.Job{
				ID:                   e.newID(),
				PlanetoidID:          n.addr.PlanetoidID,
				AgentIndex:           n.stage,
				PlanetoidAgentsCount: len(infos),
				DeliveryAttempt:      1,
				Z:                    n.addr.Z,
				X:                    n.addr.X,
				Y:                    n.addr.Y,
				ConnectionID:         connectionID,
			})
			continue
		}
		if seen[k] || visiting[k] {
			continue
		}
		visiting[k] = true
		stack = append(stack, node{addr: n.addr, stage: n.stage, ready: true})
		if n.stage == 0 {
			continue
		}

		prereqs := []tile.Address{n.addr}
		for _, dir := range dependencies[n.stage] {
			if rel, ok := tile.Relative(n.addr, dir); ok {
				prereqs = append(prereqs, rel)
			}
		}
		// Pushed in reverse so they are emitted in declaration order.
		for i := len(prereqs) - 1; i >= 0; i-- {
			p := node{addr: prereqs[i], stage: n.stage - 1}
			if !seen[p.key()] && !visiting[p.key()] {
				stack = append(stack, p)
			}
		}
	}

	slices.SortStableFunc(jobs, func(a, b messaging.Job) int { return a.AgentIndex - b.AgentIndex })
	return jobs, nil
}

// initialize resolves every stage's implementation once per expansion.
func (e *Expander) initialize(infos []store.AgentInfo) ([]agent.Agent, error) {
	impls := make([]agent.Agent, len(infos))
	for i, info := range infos {
		impl, err := e.registry.New(info.Title)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", info.IndexID, err)
		}
		if err := impl.Initialize(info.Settings, e.deps); err != nil {
			return nil, fmt.Errorf("failed to initialize %s for stage %d: %w", info.Title, info.IndexID, err)
		}
		impls[i] = impl
	}
	return impls, nil
}

// topicGuard creates stage topics when a larger pipeline than any seen so far
// is queued. The mutex only spares redundant admin calls within the process.
type topicGuard struct {
	mu       sync.Mutex
	admin    *messaging.TopicAdmin
	logger   *slog.Logger
	maxCount int
}

func (g *topicGuard) ensure(ctx context.Context, count int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if count <= g.maxCount {
		return nil
	}
	created, err := g.admin.EnsureExists(ctx, count)
	if err != nil {
		return fmt.Errorf("failed to ensure topics for %d stages: %w", count, err)
	}
	if len(created) > 0 {
		g.logger.Info("created messaging topics", "topics", created)
	}
	g.maxCount = count
	return nil
}
