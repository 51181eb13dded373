// Package sequencer drives a run through its workflow: steps execute
// serially, each step's commands resolve their run-time placeholders
// immediately before dispatch, and the first failing command ends the run.
// The sequencer is the only caller of the tracker's transition methods for
// the runs it executes.
package sequencer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/benchflow/benchflow/internal/benchflow/binder"
	"github.com/benchflow/benchflow/internal/benchflow/executor"
	"github.com/benchflow/benchflow/internal/benchflow/run"
	"github.com/benchflow/benchflow/internal/benchflow/template"
	"github.com/benchflow/benchflow/internal/benchflow/tracker"
	"github.com/benchflow/benchflow/pkg/errors"
	"github.com/benchflow/benchflow/pkg/logger"
)

// Sequencer executes bound workflows serially.
type Sequencer struct {
	tracker *tracker.Tracker
	exec    executor.Executor
	timeout time.Duration
	logger  *logger.Logger
}

// New creates a sequencer. timeout bounds each individual command; zero
// means no per-command limit.
func New(tr *tracker.Tracker, exec executor.Executor, timeout time.Duration, log *logger.Logger) *Sequencer {
	return &Sequencer{
		tracker: tr,
		exec:    exec,
		timeout: timeout,
		logger:  log.WithField("component", "sequencer"),
	}
}

// Execute drives the run identified by runID to a terminal state. The
// workflow must already be bind-time resolved. ctx cancellation stops the
// run cooperatively: the current command is terminated and the run moves to
// CANCELED. Execute returns the terminal state the run reached.
func (s *Sequencer) Execute(ctx context.Context, runID string, wf template.WorkflowSpec, runDir string) (run.State, error) {
	// Transitions and event publication must complete even when the run
	// context has been canceled.
	base := context.WithoutCancel(ctx)

	if err := s.tracker.Start(base, runID); err != nil {
		// A run canceled while still pending never starts.
		if errors.Is(err, errors.ErrInvalidTransition) {
			s.logger.Info("run not started", "runId", runID, "reason", err.Error())
			return s.currentState(runID), nil
		}
		return "", err
	}

	log := s.logger.WithField("runId", runID)
	steps := wf.Workflow.Specification.Steps
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return s.cancel(base, runID, "canceled before step %d", i)
		}

		commands, err := binder.ResolveCommands(wf.Inputs.Parameters, step.Commands)
		if err != nil {
			return s.fail(base, runID, fmt.Sprintf("step %d: %v", i, err))
		}

		for _, command := range commands {
			state, done, err := s.runCommand(ctx, base, runID, i, step.Environment, command, runDir, log)
			if done || err != nil {
				return state, err
			}
		}
	}

	if missing := missingOutputs(runDir, wf.Outputs.Files); len(missing) > 0 {
		return s.fail(base, runID,
			fmt.Sprintf("%v: %s", errors.ErrMissingOutput, missing[0]))
	}

	if err := s.tracker.Succeed(base, runID); err != nil {
		return "", err
	}
	log.Info("run succeeded", "steps", len(steps))
	return run.StateSuccess, nil
}

// runCommand executes one command and applies its outcome. done is true
// when the run reached a terminal state and execution must stop.
func (s *Sequencer) runCommand(ctx, base context.Context, runID string, step int, environment, command, runDir string, log *logger.Logger) (run.State, bool, error) {
	started := time.Now()
	result, execErr := s.exec.Run(ctx, executor.Command{
		Environment: environment,
		Line:        command,
		WorkDir:     runDir,
		Timeout:     s.timeout,
	})

	outcome := run.StepOutcome{
		Step:        step,
		Environment: environment,
		Command:     command,
		ExitCode:    result.ExitCode,
		Stdout:      result.Stdout,
		Stderr:      result.Stderr,
		StartedAt:   started,
		FinishedAt:  time.Now(),
	}
	if err := s.tracker.RecordStep(runID, outcome); err != nil {
		return "", true, err
	}

	if execErr != nil {
		if errors.IsContextError(execErr) {
			state, err := s.cancel(base, runID, "canceled during step %d", step)
			return state, true, err
		}
		state, err := s.fail(base, runID, fmt.Sprintf("step %d: %v", step, execErr))
		return state, true, err
	}
	if result.ExitCode != 0 {
		log.Info("step command failed", "step", step, "exitCode", result.ExitCode)
		state, err := s.fail(base, runID,
			fmt.Sprintf("%v: step %d exited with code %d", errors.ErrStepFailed, step, result.ExitCode))
		return state, true, err
	}
	return "", false, nil
}

func (s *Sequencer) fail(ctx context.Context, runID, message string) (run.State, error) {
	if err := s.tracker.Fail(ctx, runID, message); err != nil {
		return "", err
	}
	return run.StateError, nil
}

func (s *Sequencer) cancel(ctx context.Context, runID, format string, args ...interface{}) (run.State, error) {
	err := s.tracker.Cancel(ctx, runID, fmt.Sprintf(format, args...))
	if err != nil && !errors.Is(err, errors.ErrInvalidTransition) {
		return "", err
	}
	return run.StateCanceled, nil
}

func (s *Sequencer) currentState(runID string) run.State {
	r, err := s.tracker.Get(runID)
	if err != nil {
		return ""
	}
	return r.State
}

// missingOutputs returns the declared output files absent from the run
// directory, in declaration order.
func missingOutputs(runDir string, outputs []string) []string {
	var missing []string
	for _, rel := range outputs {
		if _, err := os.Stat(filepath.Join(runDir, rel)); err != nil {
			missing = append(missing, rel)
		}
	}
	return missing
}
