package executor

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a pipeline run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// ErrInvalidTransition is returned for a state change the lifecycle does not
// allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to == StateSucceeded || to == StateFailed
	default:
		return false
	}
}

func transition(from, to State) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	// StageSkipped marks stages that never started because an earlier stage
	// failed.
	StageSkipped StageStatus = "skipped"
)
