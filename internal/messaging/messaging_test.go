package messaging_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planetoidgen/internal/messaging"
	"planetoidgen/internal/messaging/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestTopology(t *testing.T) {
	top := messaging.NewTopology("  ")
	assert.Equal(t, messaging.DefaultTopicPrefix, top.Prefix)

	top = messaging.NewTopology("stage_")
	assert.Equal(t, "stage_4", top.Topic(4))
	assert.Equal(t, []string{"stage_0", "stage_1", "stage_2"}, top.Topics(3))
	assert.Empty(t, top.Topics(0))
	assert.True(t, top.IsAgentTopic("stage_9"))
	assert.False(t, top.IsAgentTopic("other"))

	stage, ok := top.Stage("stage_12")
	assert.True(t, ok)
	assert.Equal(t, 12, stage)
	_, ok = top.Stage("stage_x")
	assert.False(t, ok)
}

func TestJobWire(t *testing.T) {
	job := messaging.Job{ID: "j1", PlanetoidID: 2, AgentIndex: 1, PlanetoidAgentsCount: 3, DeliveryAttempt: 1, Z: 4, X: 5, Y: 6, ConnectionID: "c"}
	payload, err := messaging.EncodeJob(job)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"j1","planetoidId":2,"agentIndex":1,"planetoidAgentsCount":3,"deliveryAttempt":1,"z":4,"x":5,"y":6,"connectionId":"c"}`, string(payload))

	_, err = messaging.DecodeJob([]byte("{"))
	assert.Error(t, err)
}

func TestRetryPolicy_Do(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	calls, retries := 0, 0
	p := messaging.RetryPolicy{Retries: 2, OnRetry: func(int, error) { retries++ }}
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)

	calls = 0
	err = p.Do(ctx, func(context.Context) error {
		calls++
		if calls < 2 {
			return boom
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_Forever(t *testing.T) {
	calls := 0
	p := messaging.RetryPolicy{Wait: time.Millisecond}
	err := p.Forever(context.Background(), func(context.Context) error {
		calls++
		if calls < 5 {
			return errors.New("down")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 5, calls)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = p.Forever(ctx, func(context.Context) error { return errors.New("down") })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTopicAdmin(t *testing.T) {
	ctx := context.Background()
	broker := memory.New()
	admin := messaging.NewTopicAdmin(broker, messaging.NewTopology("agent_"), 1)

	created, err := admin.EnsureExists(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent_0", "agent_1"}, created)

	created, err = admin.EnsureExists(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent_2"}, created)

	created, err = admin.EnsureExists(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, created)

	all, err := admin.CreateTopics(ctx, []string{"audit"})
	require.NoError(t, err)
	assert.Equal(t, []string{"agent_0", "agent_1", "agent_2", "audit"}, all)

	deleted, err := admin.ResetAgentTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent_0", "agent_1", "agent_2"}, deleted)

	all, err = admin.GetAllTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent_0", "audit"}, all)

	deleted, err = admin.DeleteAllTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent_0", "audit"}, deleted)
}

func TestProducer_RoutesByStage(t *testing.T) {
	ctx := context.Background()
	broker := memory.New()
	producer := messaging.NewProducer(broker, messaging.NewTopology("agent_"), messaging.RetryPolicy{}, discard)

	jobs := []messaging.Job{
		{ID: "a", AgentIndex: 0},
		{ID: "b", AgentIndex: 1},
		{ID: "c", AgentIndex: 0},
	}
	require.NoError(t, producer.ProduceBatch(ctx, jobs))

	stage0 := decodeAll(t, broker.Messages("agent_0"))
	require.Len(t, stage0, 2)
	assert.Equal(t, "a", stage0[0].ID)
	assert.Equal(t, "c", stage0[1].ID)
	assert.Len(t, broker.Messages("agent_1"), 1)
}

func TestProducer_RetriesPublish(t *testing.T) {
	broker := memory.New()
	flaky := &flakyTransport{Transport: broker, publishFailures: 2}
	producer := messaging.NewProducer(flaky, messaging.NewTopology("agent_"), messaging.RetryPolicy{Retries: 2}, discard)

	require.NoError(t, producer.Produce(context.Background(), messaging.Job{ID: "a"}))
	assert.Equal(t, 1, broker.Pending("agent_0"))

	flaky.publishFailures = 3
	err := producer.Produce(context.Background(), messaging.Job{ID: "b"})
	assert.Error(t, err)
}

func TestConsumer_ScansTopicsInOrder(t *testing.T) {
	h := newHarness(t, 2)
	h.publish(messaging.Job{ID: "late", AgentIndex: 1, PlanetoidAgentsCount: 2, DeliveryAttempt: 1})
	h.publish(messaging.Job{ID: "early", AgentIndex: 0, PlanetoidAgentsCount: 2, DeliveryAttempt: 1})

	h.run(func(job messaging.Job) (messaging.ProcessingStatus, error) {
		return messaging.Completion, nil
	})
	h.waitSeen(2)
	h.waitSettled("agent_0", "agent_1")
	h.stop()

	seen := h.seenIDs()
	assert.Equal(t, []string{"early", "late"}, seen)
	assert.Equal(t, 0, h.broker.InFlight("agent_0"))
	assert.Equal(t, 0, h.broker.InFlight("agent_1"))
}

func TestConsumer_WaitingJobIsRepublished(t *testing.T) {
	h := newHarness(t, 2)
	h.publish(messaging.Job{ID: "j", AgentIndex: 1, PlanetoidAgentsCount: 2, DeliveryAttempt: 1})

	h.run(func(job messaging.Job) (messaging.ProcessingStatus, error) {
		if job.DeliveryAttempt == 1 {
			return messaging.WaitingForPreviousAgent, nil
		}
		return messaging.Completion, nil
	})
	h.waitSeen(2)
	h.waitSettled("agent_1")
	h.stop()

	attempts := h.seenAttempts()
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, 0, h.broker.Pending("agent_1"))
	assert.Equal(t, 0, h.broker.InFlight("agent_1"))
}

func TestConsumer_FailedJobIsRepublished(t *testing.T) {
	h := newHarness(t, 1)
	h.publish(messaging.Job{ID: "j", AgentIndex: 0, PlanetoidAgentsCount: 1, DeliveryAttempt: 1})

	h.run(func(job messaging.Job) (messaging.ProcessingStatus, error) {
		if job.DeliveryAttempt < 3 {
			return 0, errors.New("agent failed")
		}
		return messaging.Completion, nil
	})
	h.waitSeen(3)
	h.waitSettled("agent_0")
	h.stop()

	assert.Equal(t, []int{1, 2, 3}, h.seenAttempts())
	assert.Equal(t, 0, h.broker.InFlight("agent_0"))
}

func TestConsumer_DiscoversNewStages(t *testing.T) {
	h := newHarness(t, 2)
	h.publish(messaging.Job{ID: "grown", AgentIndex: 2, PlanetoidAgentsCount: 3, DeliveryAttempt: 1})
	h.publish(messaging.Job{ID: "announce", AgentIndex: 0, PlanetoidAgentsCount: 3, DeliveryAttempt: 1})

	h.run(func(job messaging.Job) (messaging.ProcessingStatus, error) {
		return messaging.Skip, nil
	})
	h.waitSeen(2)
	h.stop()

	assert.Equal(t, []string{"announce", "grown"}, h.seenIDs())
}

func TestConsumer_RetriesFetchAndCommit(t *testing.T) {
	h := newHarness(t, 1)
	h.flaky.fetchFailures = 3
	h.flaky.commitFailures = 1
	h.publish(messaging.Job{ID: "j", AgentIndex: 0, PlanetoidAgentsCount: 1, DeliveryAttempt: 1})

	h.run(func(job messaging.Job) (messaging.ProcessingStatus, error) {
		return messaging.Completion, nil
	})
	h.waitSeen(1)
	h.waitSettled("agent_0")
	h.stop()
	assert.NoError(t, h.err)
}

func TestConsumer_CommitExhaustionEndsLoop(t *testing.T) {
	h := newHarness(t, 1)
	h.flaky.commitFailures = 10
	h.publish(messaging.Job{ID: "j", AgentIndex: 0, PlanetoidAgentsCount: 1, DeliveryAttempt: 1})

	h.run(func(job messaging.Job) (messaging.ProcessingStatus, error) {
		return messaging.Completion, nil
	})
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consume loop did not stop")
	}
	assert.Error(t, h.err)
	h.cancel()
}

type harness struct {
	t        *testing.T
	broker   *memory.Broker
	flaky    *flakyTransport
	producer *messaging.Producer
	consumer *messaging.Consumer
	stages   int

	mu   sync.Mutex
	seen []messaging.Job

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newHarness(t *testing.T, stages int) *harness {
	t.Helper()
	broker := memory.New()
	flaky := &flakyTransport{Transport: broker}
	topology := messaging.NewTopology("agent_")
	producer := messaging.NewProducer(broker, topology, messaging.RetryPolicy{}, discard)
	consumer := messaging.NewConsumer(flaky, producer, topology, messaging.ConsumerConfig{
		ConsumeTimeout: 5 * time.Millisecond,
		RetryWait:      2 * time.Millisecond,
		CommitRetries:  2,
	}, discard)

	return &harness{t: t, broker: broker, flaky: flaky, producer: producer, consumer: consumer, stages: stages}
}

func (h *harness) publish(job messaging.Job) {
	h.t.Helper()
	require.NoError(h.t, h.producer.Produce(context.Background(), job))
}

func (h *harness) run(fn func(messaging.Job) (messaging.ProcessingStatus, error)) {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		h.err = h.consumer.Consume(ctx, "consumer_test", h.stages, func(ctx context.Context, job messaging.Job) (messaging.ProcessingStatus, error) {
			h.mu.Lock()
			h.seen = append(h.seen, job)
			h.mu.Unlock()
			return fn(job)
		})
	}()
}

func (h *harness) waitSeen(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.seen) >= n
	}, 2*time.Second, time.Millisecond)
}

// waitSettled waits until the topics have nothing queued or in flight.
func (h *harness) waitSettled(topics ...string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		for _, topic := range topics {
			if h.broker.Pending(topic) > 0 || h.broker.InFlight(topic) > 0 {
				return false
			}
		}
		return true
	}, 2*time.Second, time.Millisecond)
}

func (h *harness) stop() {
	h.t.Helper()
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		h.t.Fatal("consume loop did not stop")
	}
}

func (h *harness) seenIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, len(h.seen))
	for i, j := range h.seen {
		ids[i] = j.ID
	}
	return ids
}

func (h *harness) seenAttempts() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	attempts := make([]int, len(h.seen))
	for i, j := range h.seen {
		attempts[i] = j.DeliveryAttempt
	}
	return attempts
}

// flakyTransport fails the first N calls of each kind.
type flakyTransport struct {
	messaging.Transport

	mu              sync.Mutex
	publishFailures int
	fetchFailures   int
	commitFailures  int
}

func (f *flakyTransport) fail(counter *int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *counter > 0 {
		*counter--
		return true
	}
	return false
}

func (f *flakyTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	if f.fail(&f.publishFailures) {
		return errors.New("publish unavailable")
	}
	return f.Transport.Publish(ctx, topic, payload)
}

func (f *flakyTransport) Fetch(ctx context.Context, topic, consumerID string, timeout time.Duration) (*messaging.Delivery, error) {
	if f.fail(&f.fetchFailures) {
		return nil, errors.New("broker unreachable")
	}
	return f.Transport.Fetch(ctx, topic, consumerID, timeout)
}

func (f *flakyTransport) Commit(ctx context.Context, d *messaging.Delivery) error {
	if f.fail(&f.commitFailures) {
		return errors.New("commit rejected")
	}
	return f.Transport.Commit(ctx, d)
}

func decodeAll(t *testing.T, payloads [][]byte) []messaging.Job {
	t.Helper()
	jobs := make([]messaging.Job, len(payloads))
	for i, p := range payloads {
		job, err := messaging.DecodeJob(p)
		require.NoError(t, err)
		jobs[i] = job
	}
	return jobs
}

// extendingTransport records heartbeats for the deliveries it hands out.
type extendingTransport struct {
	messaging.Transport

	mu      sync.Mutex
	extends map[string]int
}

func (e *extendingTransport) Extend(ctx context.Context, d *messaging.Delivery) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.extends[d.ConsumerID+"/"+d.Topic]++
	return nil
}

func (e *extendingTransport) count(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.extends[key]
}

func TestConsumer_HeartbeatWhileHandling(t *testing.T) {
	broker := memory.New()
	transport := &extendingTransport{Transport: broker, extends: map[string]int{}}
	topology := messaging.NewTopology("agent_")
	producer := messaging.NewProducer(broker, topology, messaging.RetryPolicy{}, discard)
	consumer := messaging.NewConsumer(transport, producer, topology, messaging.ConsumerConfig{
		ConsumeTimeout:    5 * time.Millisecond,
		RetryWait:         2 * time.Millisecond,
		CommitRetries:     1,
		HeartbeatInterval: 5 * time.Millisecond,
	}, discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, producer.Produce(ctx, messaging.Job{ID: "slow", PlanetoidAgentsCount: 1, DeliveryAttempt: 1}))

	handled := make(chan int, 1)
	done := make(chan error, 1)
	go func() {
		done <- consumer.Consume(ctx, "consumer_0", 1, func(ctx context.Context, job messaging.Job) (messaging.ProcessingStatus, error) {
			deadline := time.Now().Add(2 * time.Second)
			for transport.count("consumer_0/agent_0") < 3 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			handled <- transport.count("consumer_0/agent_0")
			return messaging.Completion, nil
		})
	}()

	select {
	case n := <-handled:
		assert.GreaterOrEqual(t, n, 3)
	case <-time.After(3 * time.Second):
		t.Fatal("handler never saw a heartbeat")
	}
	require.Eventually(t, func() bool { return broker.InFlight("agent_0") == 0 }, 2*time.Second, time.Millisecond)

	// The heartbeat ends with the handler.
	after := transport.count("consumer_0/agent_0")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, transport.count("consumer_0/agent_0"))

	cancel()
	assert.NoError(t, <-done)
}
