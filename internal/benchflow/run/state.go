package run

import (
	"fmt"

	"github.com/benchflow/benchflow/pkg/errors"
)

// State represents the lifecycle state of a run.
type State string

const (
	StatePending  State = "PENDING"
	StateRunning  State = "RUNNING"
	StateSuccess  State = "SUCCESS"
	StateError    State = "ERROR"
	StateCanceled State = "CANCELED"
)

// transitions is the complete set of legal state changes. The lifecycle is
// monotonic: terminal states have no successors, and there is no path back
// to PENDING.
var transitions = map[State]map[State]bool{
	StatePending: {
		StateRunning:  true,
		StateCanceled: true,
		StateError:    true,
	},
	StateRunning: {
		StateSuccess:  true,
		StateError:    true,
		StateCanceled: true,
	},
	StateSuccess:  {},
	StateError:    {},
	StateCanceled: {},
}

// IsTerminal reports whether a run in this state can never change again.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateError || s == StateCanceled
}

// IsActive reports whether the run still occupies the execution pipeline.
func (s State) IsActive() bool {
	return s == StatePending || s == StateRunning
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s State) CanTransitionTo(next State) bool {
	return transitions[s][next]
}

func validateTransition(from, to State) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, from, to)
	}
	return nil
}
