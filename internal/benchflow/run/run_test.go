package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchflow/benchflow/pkg/errors"
)

func newTestRun() *Run {
	return New("run-1", "hello-world", "/runs/run-1", 1, map[string]string{"greeting": "Hello"})
}

func TestNewRunIsPending(t *testing.T) {
	r := newTestRun()

	assert.Equal(t, StatePending, r.State)
	assert.True(t, r.IsActive())
	assert.False(t, r.IsTerminal())
	assert.Nil(t, r.StartedAt)
	assert.Nil(t, r.FinishedAt)
}

func TestLifecycleHappyPath(t *testing.T) {
	r := newTestRun()

	require.NoError(t, r.Start())
	assert.Equal(t, StateRunning, r.State)
	require.NotNil(t, r.StartedAt)

	require.NoError(t, r.Succeed())
	assert.Equal(t, StateSuccess, r.State)
	assert.True(t, r.Succeeded())
	assert.True(t, r.IsTerminal())
	require.NotNil(t, r.FinishedAt)
}

func TestFailRecordsMessages(t *testing.T) {
	r := newTestRun()
	require.NoError(t, r.Start())

	require.NoError(t, r.Fail("exit status 2", "step 1 failed"))
	assert.Equal(t, StateError, r.State)
	assert.Equal(t, []string{"exit status 2", "step 1 failed"}, r.Messages)
}

func TestCancelFromPending(t *testing.T) {
	r := newTestRun()

	require.NoError(t, r.Cancel("canceled by user"))
	assert.Equal(t, StateCanceled, r.State)
	assert.True(t, r.IsTerminal())
}

func TestTerminalStatesAreFinal(t *testing.T) {
	for _, terminal := range []State{StateSuccess, StateError, StateCanceled} {
		r := newTestRun()
		require.NoError(t, r.Start())
		switch terminal {
		case StateSuccess:
			require.NoError(t, r.Succeed())
		case StateError:
			require.NoError(t, r.Fail("boom"))
		case StateCanceled:
			require.NoError(t, r.Cancel())
		}

		assert.True(t, errors.Is(r.Start(), errors.ErrInvalidTransition), "Start after %s", terminal)
		assert.True(t, errors.Is(r.Succeed(), errors.ErrInvalidTransition), "Succeed after %s", terminal)
		assert.True(t, errors.Is(r.Fail("x"), errors.ErrInvalidTransition), "Fail after %s", terminal)
		assert.True(t, errors.Is(r.Cancel(), errors.ErrInvalidTransition), "Cancel after %s", terminal)
	}
}

func TestSucceedRequiresRunning(t *testing.T) {
	r := newTestRun()

	err := r.Succeed()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestStateTransitionTable(t *testing.T) {
	cases := []struct {
		from, to State
		legal    bool
	}{
		{StatePending, StateRunning, true},
		{StatePending, StateCanceled, true},
		{StatePending, StateError, true},
		{StatePending, StateSuccess, false},
		{StateRunning, StateSuccess, true},
		{StateRunning, StateError, true},
		{StateRunning, StateCanceled, true},
		{StateRunning, StatePending, false},
		{StateSuccess, StateRunning, false},
		{StateError, StateRunning, false},
		{StateCanceled, StatePending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.legal, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRecordStep(t *testing.T) {
	r := newTestRun()
	require.NoError(t, r.Start())

	r.RecordStep(StepOutcome{Step: 0, Command: "echo hi", ExitCode: 0})
	r.RecordStep(StepOutcome{Step: 1, Command: "false", ExitCode: 1})

	require.Len(t, r.Steps, 2)
	assert.Equal(t, 1, r.Steps[1].ExitCode)
}

func TestDeepCopyIsIndependent(t *testing.T) {
	r := newTestRun()
	require.NoError(t, r.Start())
	r.RecordStep(StepOutcome{Step: 0, Command: "echo hi"})
	r.Result = map[string]interface{}{"mean_accuracy": 0.95}

	cp := r.DeepCopy()
	cp.Arguments["greeting"] = "changed"
	cp.Steps[0].Command = "changed"
	cp.Result["mean_accuracy"] = 0.1

	assert.Equal(t, "Hello", r.Arguments["greeting"])
	assert.Equal(t, "echo hi", r.Steps[0].Command)
	assert.Equal(t, 0.95, r.Result["mean_accuracy"])
}
