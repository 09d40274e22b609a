// Package worker consumes stage jobs and drives tiles through their pipeline.
package worker

import (
	"time"

	"planetoidgen/internal/messaging"
	"planetoidgen/internal/store"
)

// DefaultSlidingTimeout is how long a lease on a tile stays fresh.
const DefaultSlidingTimeout = 45 * time.Second

// Decision is the outcome of evaluating a job against its tile.
type Decision int

const (
	// Execute runs the stage; it is the next one due on the tile.
	Execute Decision = iota
	// Skip drops the job because another worker holds a fresh lease for the stage.
	Skip
	// Rerun runs an already completed terminal stage again.
	Rerun
	// Completed drops the job because the stage, or a later one, is done.
	Completed
	// Waiting defers the job until an earlier stage completes.
	Waiting
)

var decisionNames = [...]string{
	Execute:   "execute",
	Skip:      "skip",
	Rerun:     "rerun",
	Completed: "completed",
	Waiting:   "waiting_for_previous_agent",
}

func (d Decision) String() string {
	if d < 0 || int(d) >= len(decisionNames) {
		return "unknown"
	}
	return decisionNames[d]
}

// Runs reports whether the decision executes the agent.
func (d Decision) Runs() bool {
	return d == Execute || d == Rerun
}

// Decide evaluates the branches in order: skip, rerun, completed, waiting, execute.
func Decide(job messaging.Job, info store.AgentInfo, agents []store.AgentInfo, t *store.Tile, now time.Time, slidingTimeout time.Duration) Decision {
	if t.LastAgent != nil && *t.LastAgent == job.AgentIndex &&
		t.ModifiedAt != nil && now.Sub(*t.ModifiedAt) < slidingTimeout {
		return Skip
	}
	if t.LastIndexedAgent == info.IndexID && info.IndexID == len(agents)-1 && info.ShouldRerunIfLast {
		return Rerun
	}
	if t.LastIndexedAgent >= info.IndexID {
		return Completed
	}
	if t.LastIndexedAgent < info.IndexID-1 {
		return Waiting
	}
	return Execute
}

// status maps a decision that does not execute to the consumer status.
func (d Decision) status() messaging.ProcessingStatus {
	switch d {
	case Skip:
		return messaging.Skip
	case Waiting:
		return messaging.WaitingForPreviousAgent
	default:
		return messaging.Completion
	}
}
