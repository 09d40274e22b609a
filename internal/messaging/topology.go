package messaging

import (
	"strconv"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "agent_"

// Topology names the topic of every pipeline stage: prefix + stage index.
type Topology struct {
	Prefix string
}

func NewTopology(prefix string) Topology {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topology{Prefix: prefix}
}

// Topic returns the topic for a stage index.
func (t Topology) Topic(stage int) string {
	return t.Prefix + strconv.Itoa(stage)
}

// Topics returns the topics of stages 0..n-1 in ascending order.
func (t Topology) Topics(n int) []string {
	if n < 0 {
		n = 0
	}
	topics := make([]string, n)
	for i := range topics {
		topics[i] = t.Topic(i)
	}
	return topics
}

// IsAgentTopic reports whether name carries the stage prefix.
func (t Topology) IsAgentTopic(name string) bool {
	return strings.HasPrefix(name, t.Prefix)
}

// Stage parses the stage index out of a topic name.
func (t Topology) Stage(name string) (int, bool) {
	if !t.IsAgentTopic(name) {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(name, t.Prefix))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}
