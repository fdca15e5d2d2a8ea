package pipeline

// Status is a node's execution state within one run.
//
// The per-node status machine is PENDING -> RUNNING -> {DONE, FAILED,
// STOP_PIPELINE}. Terminal statuses never transition further; an attempt to
// do so is rejected with StatusUpdateError. Statuses are persisted to the
// Result Store under the node's status key so they are observable externally
// and survive restarts.
type Status string

const (
	// StatusPending marks a node scheduled for this run but not yet claimed.
	StatusPending Status = "PENDING"

	// StatusRunning marks the single in-flight execution of a node.
	StatusRunning Status = "RUNNING"

	// StatusDone marks successful completion; successors become runnable.
	StatusDone Status = "DONE"

	// StatusFailed marks a component error or cancellation; successors
	// remain PENDING.
	StatusFailed Status = "FAILED"

	// StatusStopPipeline marks a node that completed and requested the run
	// be short-circuited. Successors are not scheduled.
	StatusStopPipeline Status = "STOP_PIPELINE"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusStopPipeline:
		return true
	}
	return false
}

// canTransition reports whether from -> to is a legal status-machine step.
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusDone || to == StatusFailed || to == StatusStopPipeline
	}
	return false
}
