package messaging

// ProcessingStatus is what a message handler reports for a consumed job.
// A handler error is the implicit failure status.
type ProcessingStatus int

const (
	// Completion means the stage already ran for the tile; the message is committed.
	Completion ProcessingStatus = iota
	// Skip means another worker holds a fresh lease on the same stage.
	Skip
	// WaitingForPreviousAgent means an earlier stage has not finished yet.
	WaitingForPreviousAgent
)

func (s ProcessingStatus) String() string {
	switch s {
	case Completion:
		return "completion"
	case Skip:
		return "skip"
	case WaitingForPreviousAgent:
		return "waiting_for_previous_agent"
	default:
		return "unknown"
	}
}
