package messaging

import (
	"context"
	"fmt"
	"slices"
)

// TopicAdmin keeps the stage topics of the pipeline in place.
type TopicAdmin struct {
	admin      Admin
	topology   Topology
	partitions int
}

func NewTopicAdmin(admin Admin, topology Topology, partitions int) *TopicAdmin {
	if partitions < 1 {
		partitions = 1
	}
	return &TopicAdmin{admin: admin, topology: topology, partitions: partitions}
}

func (a *TopicAdmin) Topology() Topology {
	return a.topology
}

// EnsureExists creates whichever of the topics for stages 0..stageCount-1 are
// missing and returns the names it created. Existing topics are left alone.
func (a *TopicAdmin) EnsureExists(ctx context.Context, stageCount int) ([]string, error) {
	existing, err := a.admin.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}

	var missing []string
	for _, topic := range a.topology.Topics(stageCount) {
		if !slices.Contains(existing, topic) {
			missing = append(missing, topic)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	if err := a.admin.CreateTopics(ctx, missing, a.partitions); err != nil {
		return nil, fmt.Errorf("failed to create topics %v: %w", missing, err)
	}
	return missing, nil
}

// CreateTopics creates the named topics and returns every topic afterwards.
func (a *TopicAdmin) CreateTopics(ctx context.Context, names []string) ([]string, error) {
	if len(names) > 0 {
		if err := a.admin.CreateTopics(ctx, names, a.partitions); err != nil {
			return nil, fmt.Errorf("failed to create topics %v: %w", names, err)
		}
	}
	return a.GetAllTopics(ctx)
}

func (a *TopicAdmin) GetAllTopics(ctx context.Context) ([]string, error) {
	topics, err := a.admin.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	slices.Sort(topics)
	return topics, nil
}

// DeleteTopics deletes the named topics and returns them.
func (a *TopicAdmin) DeleteTopics(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return []string{}, nil
	}
	if err := a.admin.DeleteTopics(ctx, names); err != nil {
		return nil, fmt.Errorf("failed to delete topics %v: %w", names, err)
	}
	return names, nil
}

// DeleteAllTopics deletes every topic on the broker, not only stage topics.
func (a *TopicAdmin) DeleteAllTopics(ctx context.Context) ([]string, error) {
	topics, err := a.GetAllTopics(ctx)
	if err != nil {
		return nil, err
	}
	return a.DeleteTopics(ctx, topics)
}

// ResetAgentTopics deletes all stage topics and recreates the topic of stage 0
// so workers can start again. It returns the deleted topics.
func (a *TopicAdmin) ResetAgentTopics(ctx context.Context) ([]string, error) {
	topics, err := a.GetAllTopics(ctx)
	if err != nil {
		return nil, err
	}

	var stageTopics []string
	for _, topic := range topics {
		if a.topology.IsAgentTopic(topic) {
			stageTopics = append(stageTopics, topic)
		}
	}

	deleted, err := a.DeleteTopics(ctx, stageTopics)
	if err != nil {
		return nil, err
	}
	if _, err := a.EnsureExists(ctx, 1); err != nil {
		return nil, err
	}
	return deleted, nil
}
