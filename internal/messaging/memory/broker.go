// Package memory is an in-process broker for local runs and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"planetoidgen/internal/messaging"
)

var (
	ErrClosed          = errors.New("broker is closed")
	ErrUnknownDelivery = errors.New("delivery is not in flight")
)

type message struct {
	id      uint64
	payload []byte
}

type topic struct {
	queue    []message
	inflight map[uint64]message
}

// Broker keeps one FIFO per topic. Fetched messages stay in flight until
// committed; Redeliver puts uncommitted ones back.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
	nextID uint64
	closed bool

	// wake is closed and replaced on every publish.
	wake chan struct{}
}

var (
	_ messaging.Transport = (*Broker)(nil)
	_ messaging.Admin     = (*Broker)(nil)
)

func New() *Broker {
	return &Broker{
		topics: make(map[string]*topic),
		wake:   make(chan struct{}),
	}
}

func (b *Broker) topicLocked(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{inflight: make(map[uint64]message)}
		b.topics[name] = t
	}
	return t
}

func (b *Broker) notifyLocked() {
	close(b.wake)
	b.wake = make(chan struct{})
}

// Publish appends to the topic, creating it when missing.
func (b *Broker) Publish(ctx context.Context, name string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	b.nextID++
	t := b.topicLocked(name)
	t.queue = append(t.queue, message{id: b.nextID, payload: append([]byte(nil), payload...)})
	b.notifyLocked()
	return nil
}

func (b *Broker) Fetch(ctx context.Context, name, consumerID string, timeout time.Duration) (*messaging.Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		if t, ok := b.topics[name]; ok && len(t.queue) > 0 {
			m := t.queue[0]
			t.queue = t.queue[1:]
			t.inflight[m.id] = m
			b.mu.Unlock()
			return &messaging.Delivery{Topic: name, Payload: m.payload, ConsumerID: consumerID, Handle: m.id}, nil
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-wake:
		}
	}
}

func (b *Broker) Commit(ctx context.Context, d *messaging.Delivery) error {
	id, ok := d.Handle.(uint64)
	if !ok {
		return ErrUnknownDelivery
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[d.Topic]
	if !ok {
		return ErrUnknownDelivery
	}
	if _, ok := t.inflight[id]; !ok {
		return ErrUnknownDelivery
	}
	delete(t.inflight, id)
	return nil
}

// Redeliver moves every uncommitted message back to the front of its topic,
// the way a broker does after a consumer dies.
func (b *Broker) Redeliver() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, t := range b.topics {
		if len(t.inflight) == 0 {
			continue
		}
		back := make([]message, 0, len(t.inflight))
		for _, m := range t.inflight {
			back = append(back, m)
		}
		sort.Slice(back, func(i, j int) bool { return back[i].id < back[j].id })
		t.queue = append(back, t.queue...)
		t.inflight = make(map[uint64]message)
		n += len(back)
	}
	if n > 0 {
		b.notifyLocked()
	}
	return n
}

// Pending returns the number of queued, not yet fetched messages on a topic.
func (b *Broker) Pending(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[name]; ok {
		return len(t.queue)
	}
	return 0
}

// Depth returns the number of queued messages per topic.
func (b *Broker) Depth(ctx context.Context) (map[string]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	out := make(map[string]int64, len(b.topics))
	for name, t := range b.topics {
		out[name] = int64(len(t.queue))
	}
	return out, nil
}

// InFlight returns the number of fetched but uncommitted messages on a topic.
func (b *Broker) InFlight(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[name]; ok {
		return len(t.inflight)
	}
	return 0
}

// Messages returns copies of the queued payloads of a topic in order.
func (b *Broker) Messages(name string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[name]
	if !ok {
		return nil
	}
	out := make([][]byte, len(t.queue))
	for i, m := range t.queue {
		out[i] = append([]byte(nil), m.payload...)
	}
	return out
}

func (b *Broker) ListTopics(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CreateTopics is idempotent. Partitions are not modelled.
func (b *Broker) CreateTopics(ctx context.Context, names []string, partitions int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for _, name := range names {
		b.topicLocked(name)
	}
	return nil
}

func (b *Broker) DeleteTopics(ctx context.Context, names []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for _, name := range names {
		delete(b.topics, name)
	}
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.notifyLocked()
	}
	return nil
}
