// Package run holds the domain model of a workflow run: its identity, its
// lifecycle state machine, and the execution record accumulated while the
// sequencer drives it. State mutation is single-writer; concurrent readers
// receive deep copies from the tracker.
package run

import (
	"time"
)

// StepOutcome records the execution of one command within a run.
type StepOutcome struct {
	Step        int
	Environment string
	Command     string
	ExitCode    int
	Stdout      string
	Stderr      string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Run is one execution of a bound template. CreatedSeq is a process-wide
// monotonic sequence number assigned at creation; the leaderboard uses it to
// break ties deterministically.
type Run struct {
	ID           string
	TemplateName string
	State        State
	CreatedAt    time.Time
	CreatedSeq   int64
	StartedAt    *time.Time
	FinishedAt   *time.Time
	Dir          string
	Arguments    map[string]string
	Steps        []StepOutcome
	Messages     []string
	Result       map[string]interface{}
	Postproc     bool
}

// New creates a run in the PENDING state.
func New(id, templateName, dir string, seq int64, args map[string]string) *Run {
	argsCopy := make(map[string]string, len(args))
	for k, v := range args {
		argsCopy[k] = v
	}
	return &Run{
		ID:           id,
		TemplateName: templateName,
		State:        StatePending,
		CreatedAt:    time.Now(),
		CreatedSeq:   seq,
		Dir:          dir,
		Arguments:    argsCopy,
	}
}

// IsActive reports whether the run is still pending or executing.
func (r *Run) IsActive() bool {
	return r.State.IsActive()
}

// IsTerminal reports whether the run has reached a final state.
func (r *Run) IsTerminal() bool {
	return r.State.IsTerminal()
}

// Succeeded reports whether the run finished with all steps successful.
func (r *Run) Succeeded() bool {
	return r.State == StateSuccess
}

// Start moves the run from PENDING to RUNNING.
func (r *Run) Start() error {
	if err := validateTransition(r.State, StateRunning); err != nil {
		return err
	}
	now := time.Now()
	r.State = StateRunning
	r.StartedAt = &now
	return nil
}

// Succeed moves the run to SUCCESS.
func (r *Run) Succeed() error {
	if err := validateTransition(r.State, StateSuccess); err != nil {
		return err
	}
	r.finish(StateSuccess)
	return nil
}

// Fail moves the run to ERROR, recording the failure messages.
func (r *Run) Fail(messages ...string) error {
	if err := validateTransition(r.State, StateError); err != nil {
		return err
	}
	r.Messages = append(r.Messages, messages...)
	r.finish(StateError)
	return nil
}

// Cancel moves the run to CANCELED. Canceling a PENDING run is legal; the
// sequencer observes the state before it would start executing.
func (r *Run) Cancel(messages ...string) error {
	if err := validateTransition(r.State, StateCanceled); err != nil {
		return err
	}
	r.Messages = append(r.Messages, messages...)
	r.finish(StateCanceled)
	return nil
}

func (r *Run) finish(state State) {
	now := time.Now()
	r.State = state
	r.FinishedAt = &now
}

// RecordStep appends one step outcome to the execution record.
func (r *Run) RecordStep(outcome StepOutcome) {
	r.Steps = append(r.Steps, outcome)
}

// Duration returns how long the run has been executing, zero before start.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	if r.FinishedAt == nil {
		return time.Since(*r.StartedAt)
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// DeepCopy returns an independent copy of the run for snapshot readers.
func (r *Run) DeepCopy() *Run {
	if r == nil {
		return nil
	}
	cp := &Run{
		ID:           r.ID,
		TemplateName: r.TemplateName,
		State:        r.State,
		CreatedAt:    r.CreatedAt,
		CreatedSeq:   r.CreatedSeq,
		Dir:          r.Dir,
		Postproc:     r.Postproc,
		Arguments:    make(map[string]string, len(r.Arguments)),
		Steps:        append([]StepOutcome(nil), r.Steps...),
		Messages:     append([]string(nil), r.Messages...),
	}
	for k, v := range r.Arguments {
		cp.Arguments[k] = v
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	if r.Result != nil {
		cp.Result = make(map[string]interface{}, len(r.Result))
		for k, v := range r.Result {
			cp.Result[k] = v
		}
	}
	return cp
}
