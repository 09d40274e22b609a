package worker

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"planetoidgen/internal/config"
	"planetoidgen/internal/messaging"
	membroker "planetoidgen/internal/messaging/memory"
	"planetoidgen/internal/store"
)

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, what string, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPool_DrivesTileThroughPipeline(t *testing.T) {
	f := newFixture(t,
		store.AgentInfo{Title: "a"},
		store.AgentInfo{Title: "b"},
		store.AgentInfo{Title: "report", ShouldRerunIfLast: true},
	)

	broker := membroker.New()
	topology := messaging.NewTopology("")
	producer := messaging.NewProducer(broker, topology, messaging.RetryPolicy{Retries: 1, Wait: time.Millisecond}, nil)
	consumer := messaging.NewConsumer(broker, producer, topology, messaging.ConsumerConfig{
		ConsumeTimeout: 5 * time.Millisecond,
		RetryWait:      10 * time.Millisecond,
		CommitRetries:  2,
	}, nil)
	admin := messaging.NewTopicAdmin(broker, topology, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Published out of order: the later stages wait until their predecessor completes.
	for _, stage := range []int{2, 1, 0} {
		if err := producer.Produce(ctx, job(stage, 3)); err != nil {
			t.Fatalf("Produce failed: %v", err)
		}
	}

	pool := NewPool(consumer, admin, f.processor.Handle, PoolConfig{Size: 2, RestartWait: 10 * time.Millisecond}, nil)
	runErr := make(chan error, 1)
	go func() { runErr <- pool.Run(ctx) }()

	waitFor(t, "stage 2 to complete", 5*time.Second, func() bool {
		tl, ok := f.store.Tile(job(0, 3).Address())
		return ok && tl.LastIndexedAgent == 2
	})

	topics, err := broker.ListTopics(ctx)
	if err != nil {
		t.Fatalf("ListTopics failed: %v", err)
	}
	if !slices.Contains(topics, "agent_0") {
		t.Errorf("topics = %v, want agent_0 created", topics)
	}

	cancel()
	select {
	case <-pool.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}
	if err := <-runErr; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	f.expectRuns(t, "a", 1)
	f.expectRuns(t, "b", 1)
	if f.agents["report"].Runs() < 1 {
		t.Error("report stage never ran")
	}
}

func TestPool_FailsWithoutTopics(t *testing.T) {
	broker := membroker.New()
	if err := broker.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	topology := messaging.NewTopology("")
	admin := messaging.NewTopicAdmin(broker, topology, 1)
	producer := messaging.NewProducer(broker, topology, messaging.RetryPolicy{}, nil)
	consumer := messaging.NewConsumer(broker, producer, topology, messaging.ConsumerConfig{}, nil)

	pool := NewPool(consumer, admin, func(context.Context, messaging.Job) (messaging.ProcessingStatus, error) {
		return messaging.Completion, nil
	}, PoolConfig{}, nil)

	if err := pool.Run(context.Background()); err == nil {
		t.Fatal("expected error without topics, got nil")
	}
	<-pool.Done()
}

func TestNew_RunsConfiguredPipeline(t *testing.T) {
	f := newFixture(t, store.AgentInfo{Title: "a"}, store.AgentInfo{Title: "b"})
	cfg := &config.Config{
		TopicPrefix:         "stage_",
		TopicPartitions:     1,
		BrokerRetryCount:    2,
		BrokerRetryWait:     10 * time.Millisecond,
		ConsumeTimeout:      5 * time.Millisecond,
		AgentRetryCount:     1,
		AgentRetryWait:      time.Millisecond,
		AgentSlidingTimeout: 45 * time.Second,
	}
	b := membroker.New()
	pool := New(cfg, f.store, b, f.registry, nil, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer := messaging.NewProducer(b, messaging.NewTopology("stage_"), messaging.RetryPolicy{Retries: 1}, nil)
	for _, stage := range []int{0, 1} {
		if err := producer.Produce(ctx, job(stage, 2)); err != nil {
			t.Fatalf("Produce failed: %v", err)
		}
	}

	go func() { _ = pool.Run(ctx) }()

	waitFor(t, "stage 1 to complete", 5*time.Second, func() bool {
		tl, ok := f.store.Tile(job(0, 2).Address())
		return ok && tl.LastIndexedAgent == 1
	})

	cancel()
	<-pool.Done()
	f.expectRuns(t, "b", 1)
}
