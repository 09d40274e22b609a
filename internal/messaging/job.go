// Package messaging maps pipeline stages onto broker topics and implements
// the producer, consumer and topic administration used by the scheduler and
// the worker pool. Broker backends plug in through Transport and Admin.
package messaging

import (
	"encoding/json"
	"fmt"

	"planetoidgen/internal/tile"
)

// Job is one unit of scheduled work: a tile address plus a stage index.
// Only DeliveryAttempt changes after a job is published.
type Job struct {
	ID                   string `json:"id"`
	PlanetoidID          int    `json:"planetoidId"`
	AgentIndex           int    `json:"agentIndex"`
	PlanetoidAgentsCount int    `json:"planetoidAgentsCount"`
	DeliveryAttempt      int    `json:"deliveryAttempt"`
	Z                    int16  `json:"z"`
	X                    int64  `json:"x"`
	Y                    int64  `json:"y"`
	ConnectionID         string `json:"connectionId,omitempty"`
}

// JobKey is the tuple a job is valid for. Jobs sharing a key are duplicates.
type JobKey struct {
	PlanetoidID int
	Z           int16
	X           int64
	Y           int64
	AgentIndex  int
}

func (j Job) Key() JobKey {
	return JobKey{PlanetoidID: j.PlanetoidID, Z: j.Z, X: j.X, Y: j.Y, AgentIndex: j.AgentIndex}
}

// Address returns the tile the job targets.
func (j Job) Address() tile.Address {
	return tile.Address{PlanetoidID: j.PlanetoidID, Z: j.Z, X: j.X, Y: j.Y}
}

func (j Job) String() string {
	return fmt.Sprintf("Id=%s, %s, AgentIndex=%d, AgentsCount=%d, Attempt=%d",
		j.ID, j.Address(), j.AgentIndex, j.PlanetoidAgentsCount, j.DeliveryAttempt)
}

// EncodeJob serializes a job into its wire payload.
func EncodeJob(j Job) ([]byte, error) {
	payload, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job %s: %w", j.ID, err)
	}
	return payload, nil
}

// DecodeJob parses a wire payload produced by EncodeJob.
func DecodeJob(payload []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(payload, &j); err != nil {
		return Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	return j, nil
}
