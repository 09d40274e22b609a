package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"planetoidgen/internal/messaging"
	"planetoidgen/internal/store"

	"github.com/lib/pq"
)

// Default queue timings
const (
	VisibilityTimeout = 5 * time.Minute
	PollInterval      = 200 * time.Millisecond
)

// Queue is a broker backed by the job_queue table. A fetched message is hidden
// for the visibility timeout and reappears unless it is committed.
type Queue struct {
	store        *Store
	visibility   time.Duration
	pollInterval time.Duration
}

var (
	_ messaging.Transport  = (*Queue)(nil)
	_ messaging.Extender   = (*Queue)(nil)
	_ messaging.Admin      = (*Queue)(nil)
	_ store.QueueInspector = (*Queue)(nil)
)

// NewQueue returns a queue over the store's database. Zero durations use the defaults.
func NewQueue(s *Store, visibility, pollInterval time.Duration) *Queue {
	if visibility <= 0 {
		visibility = VisibilityTimeout
	}
	if pollInterval <= 0 {
		pollInterval = PollInterval
	}
	return &Queue{store: s, visibility: visibility, pollInterval: pollInterval}
}

// Publish adds a message to the topic.
func (q *Queue) Publish(ctx context.Context, topic string, payload []byte) error {
	_, err := q.store.db.ExecContext(ctx,
		`INSERT INTO job_queue (topic, payload) VALUES ($1, $2)`,
		topic, payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue on %s: %w", topic, err)
	}
	return nil
}

// Fetch polls the topic until a message is claimed or timeout passes.
func (q *Queue) Fetch(ctx context.Context, topic, consumerID string, timeout time.Duration) (*messaging.Delivery, error) {
	deadline := time.Now().Add(timeout)
	for {
		d, err := q.claim(ctx, topic, consumerID)
		if err != nil || d != nil {
			return d, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if err := messaging.Sleep(ctx, min(remaining, q.pollInterval)); err != nil {
			return nil, err
		}
	}
}

// claim takes the oldest visible message of a topic using SELECT ... FOR UPDATE SKIP LOCKED.
func (q *Queue) claim(ctx context.Context, topic, consumerID string) (*messaging.Delivery, error) {
	tx, err := q.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		id      int64
		payload []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, payload
		FROM job_queue
		WHERE topic = $1 AND visible_after <= NOW()
		ORDER BY id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, topic).Scan(&id, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE job_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second'), claimed_by = $2
		WHERE id = $3
	`, q.visibility.Seconds(), consumerID, id)
	if err != nil {
		return nil, fmt.Errorf("visibility update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &messaging.Delivery{Topic: topic, Payload: payload, ConsumerID: consumerID, Handle: id}, nil
}

// Commit deletes the claimed message.
func (q *Queue) Commit(ctx context.Context, d *messaging.Delivery) error {
	id, ok := d.Handle.(int64)
	if !ok {
		return fmt.Errorf("delivery on %s was not fetched from the queue", d.Topic)
	}
	_, err := q.store.db.ExecContext(ctx, `DELETE FROM job_queue WHERE id = $1`, id)
	return err
}

// Extend hides a claimed message for another visibility timeout. It fails when
// the message was committed or claimed by another consumer in the meantime.
func (q *Queue) Extend(ctx context.Context, d *messaging.Delivery) error {
	id, ok := d.Handle.(int64)
	if !ok {
		return fmt.Errorf("delivery on %s was not fetched from the queue", d.Topic)
	}
	res, err := q.store.db.ExecContext(ctx, `
		UPDATE job_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second')
		WHERE id = $2 AND claimed_by = $3
	`, q.visibility.Seconds(), id, d.ConsumerID)
	if err != nil {
		return fmt.Errorf("failed to extend message %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %d is no longer claimed by %s", id, d.ConsumerID)
	}
	return nil
}

// Close is a no-op; the pool belongs to the Store.
func (q *Queue) Close() error {
	return nil
}

func (q *Queue) ListTopics(ctx context.Context) ([]string, error) {
	rows, err := q.store.db.QueryContext(ctx, `SELECT name FROM topics ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	topics := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		topics = append(topics, name)
	}
	return topics, rows.Err()
}

func (q *Queue) CreateTopics(ctx context.Context, names []string, partitions int) error {
	if len(names) == 0 {
		return nil
	}
	_, err := q.store.db.ExecContext(ctx, `
		INSERT INTO topics (name, partitions)
		SELECT unnest($1::text[]), $2
		ON CONFLICT (name) DO NOTHING
	`, pq.Array(names), partitions)
	return err
}

// DeleteTopics drops the topics together with their queued messages.
func (q *Queue) DeleteTopics(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	tx, err := q.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_queue WHERE topic = ANY($1)`, pq.Array(names)); err != nil {
		return fmt.Errorf("failed to purge topics: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM topics WHERE name = ANY($1)`, pq.Array(names)); err != nil {
		return fmt.Errorf("failed to delete topics: %w", err)
	}
	return tx.Commit()
}

// Depth counts queued messages per topic.
func (q *Queue) Depth(ctx context.Context) (map[string]int64, error) {
	rows, err := q.store.db.QueryContext(ctx, `SELECT topic, COUNT(*) FROM job_queue GROUP BY topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	depth := make(map[string]int64)
	for rows.Next() {
		var (
			topic string
			count int64
		)
		if err := rows.Scan(&topic, &count); err != nil {
			return nil, err
		}
		depth[topic] = count
	}
	return depth, rows.Err()
}
