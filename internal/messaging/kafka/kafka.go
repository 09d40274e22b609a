// Package kafka implements the messaging transport and admin on Apache Kafka.
package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"planetoidgen/internal/messaging"
)

// Config describes how to reach the cluster.
type Config struct {
	Brokers       []string
	ClientID      string
	ConsumerGroup string

	// SecurityProtocol is "plaintext" (default) or "ssl".
	SecurityProtocol  string
	ReplicationFactor int
	AdminTimeout      time.Duration
}

type readerKey struct {
	consumerID string
	topic      string
}

// Broker publishes through a single key-less writer and consumes through one
// group reader per consumer and topic. Offsets are committed explicitly.
type Broker struct {
	cfg    Config
	writer *kafkago.Writer
	client *kafkago.Client
	dialer *kafkago.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	readers map[readerKey]*kafkago.Reader
	closed  bool
}

var (
	_ messaging.Transport = (*Broker)(nil)
	_ messaging.Admin     = (*Broker)(nil)
)

func New(cfg Config, logger *slog.Logger) (*Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker address is required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, errors.New("kafka: consumer group is required")
	}
	if cfg.ReplicationFactor < 1 {
		cfg.ReplicationFactor = 1
	}
	if cfg.AdminTimeout <= 0 {
		cfg.AdminTimeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	var tlsConfig *tls.Config
	switch strings.ToLower(cfg.SecurityProtocol) {
	case "", "plaintext":
	case "ssl":
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	default:
		return nil, fmt.Errorf("kafka: unsupported security protocol %q", cfg.SecurityProtocol)
	}

	transport := &kafkago.Transport{ClientID: cfg.ClientID, TLS: tlsConfig}
	addr := kafkago.TCP(cfg.Brokers...)

	return &Broker{
		cfg: cfg,
		writer: &kafkago.Writer{
			Addr:         addr,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireAll,
			Transport:    transport,
		},
		client: &kafkago.Client{
			Addr:      addr,
			Timeout:   cfg.AdminTimeout,
			Transport: transport,
		},
		dialer: &kafkago.Dialer{
			ClientID:  cfg.ClientID,
			Timeout:   10 * time.Second,
			DualStack: true,
			TLS:       tlsConfig,
		},
		logger:  logger.With("component", "kafka"),
		readers: make(map[readerKey]*kafkago.Reader),
	}, nil
}

func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.writer.WriteMessages(ctx, kafkago.Message{Topic: topic, Value: payload})
}

func (b *Broker) reader(consumerID, topic string) (*kafkago.Reader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("kafka: broker is closed")
	}

	key := readerKey{consumerID: consumerID, topic: topic}
	if r, ok := b.readers[key]; ok {
		return r, nil
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        b.cfg.Brokers,
		GroupID:        b.cfg.ConsumerGroup,
		Topic:          topic,
		Dialer:         b.dialer,
		StartOffset:    kafkago.FirstOffset,
		CommitInterval: 0,
		MaxWait:        500 * time.Millisecond,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			b.logger.Error(fmt.Sprintf(msg, args...), "consumer_id", consumerID, "topic", topic)
		}),
	})
	b.readers[key] = r
	return r, nil
}

func (b *Broker) Fetch(ctx context.Context, topic, consumerID string, timeout time.Duration) (*messaging.Delivery, error) {
	r, err := b.reader(consumerID, topic)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := r.FetchMessage(fetchCtx)
	if err != nil {
		if noData(ctx, err) {
			return nil, nil
		}
		return nil, fmt.Errorf("kafka: fetch from %s: %w", topic, err)
	}
	return &messaging.Delivery{
		Topic:      topic,
		Payload:    msg.Value,
		ConsumerID: consumerID,
		Handle:     &committable{reader: r, msg: msg},
	}, nil
}

type committable struct {
	reader *kafkago.Reader
	msg    kafkago.Message
}

func (b *Broker) Commit(ctx context.Context, d *messaging.Delivery) error {
	c, ok := d.Handle.(*committable)
	if !ok {
		return fmt.Errorf("kafka: delivery on %s was not fetched from kafka", d.Topic)
	}
	return c.reader.CommitMessages(ctx, c.msg)
}

// noData reports whether a fetch error only means the poll timed out.
func noData(parent context.Context, err error) bool {
	return parent.Err() == nil && errors.Is(err, context.DeadlineExceeded)
}

func (b *Broker) ListTopics(ctx context.Context) ([]string, error) {
	resp, err := b.client.Metadata(ctx, &kafkago.MetadataRequest{})
	if err != nil {
		return nil, fmt.Errorf("kafka: metadata: %w", err)
	}
	return topicNames(resp), nil
}

func topicNames(resp *kafkago.MetadataResponse) []string {
	names := make([]string, 0, len(resp.Topics))
	for _, t := range resp.Topics {
		if t.Error != nil || t.Internal || t.Name == "" {
			continue
		}
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

func (b *Broker) CreateTopics(ctx context.Context, names []string, partitions int) error {
	if len(names) == 0 {
		return nil
	}
	req := &kafkago.CreateTopicsRequest{}
	for _, name := range names {
		req.Topics = append(req.Topics, kafkago.TopicConfig{
			Topic:             name,
			NumPartitions:     partitions,
			ReplicationFactor: b.cfg.ReplicationFactor,
		})
	}
	resp, err := b.client.CreateTopics(ctx, req)
	if err != nil {
		return fmt.Errorf("kafka: create topics: %w", err)
	}
	return joinTopicErrors(resp.Errors, kafkago.TopicAlreadyExists)
}

func (b *Broker) DeleteTopics(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	resp, err := b.client.DeleteTopics(ctx, &kafkago.DeleteTopicsRequest{Topics: names})
	if err != nil {
		return fmt.Errorf("kafka: delete topics: %w", err)
	}

	b.mu.Lock()
	for key, r := range b.readers {
		for _, name := range names {
			if key.topic == name {
				_ = r.Close()
				delete(b.readers, key)
			}
		}
	}
	b.mu.Unlock()

	return joinTopicErrors(resp.Errors, kafkago.UnknownTopicOrPartition)
}

// joinTopicErrors merges per-topic errors, dropping the tolerated one.
func joinTopicErrors(errs map[string]error, tolerated kafkago.Error) error {
	names := make([]string, 0, len(errs))
	for name, err := range errs {
		if err != nil && !errors.Is(err, tolerated) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	joined := make([]error, 0, len(names))
	for _, name := range names {
		joined = append(joined, fmt.Errorf("%s: %w", name, errs[name]))
	}
	return errors.Join(joined...)
}

// Close stops every reader and flushes the writer.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for key, r := range b.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader %s/%s: %w", key.consumerID, key.topic, err))
		}
	}
	b.readers = nil
	if err := b.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close writer: %w", err))
	}
	return errors.Join(errs...)
}
