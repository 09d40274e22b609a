package store

import "context"

// QueueInspector exposes the backlog of a database backed broker.
type QueueInspector interface {
	// Depth returns the number of queued messages per topic.
	Depth(ctx context.Context) (map[string]int64, error)
}
