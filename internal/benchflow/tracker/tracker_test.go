package tracker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchflow/benchflow/internal/benchflow/events"
	"github.com/benchflow/benchflow/internal/benchflow/run"
	"github.com/benchflow/benchflow/pkg/errors"
	"github.com/benchflow/benchflow/pkg/logger"
)

type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *captureBus) Subscribe(events.Handler) {}

func (b *captureBus) published() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.events...)
}

func newTestTracker() (*Tracker, *captureBus) {
	bus := &captureBus{}
	return New(bus, logger.New()), bus
}

func TestCreateAssignsSequenceNumbers(t *testing.T) {
	tr, _ := newTestTracker()

	first := tr.Create("r1", "hello-world", "/runs/r1", nil)
	second := tr.Create("r2", "hello-world", "/runs/r2", nil)

	assert.Equal(t, run.StatePending, first.State)
	assert.Less(t, first.CreatedSeq, second.CreatedSeq)
}

func TestGetReturnsSnapshot(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Create("r1", "hello-world", "/runs/r1", map[string]string{"greeting": "Hello"})

	snapshot, err := tr.Get("r1")
	require.NoError(t, err)
	snapshot.Arguments["greeting"] = "changed"

	again, err := tr.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", again.Arguments["greeting"])
}

func TestGetUnknownRun(t *testing.T) {
	tr, _ := newTestTracker()

	_, err := tr.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRunNotFound))
}

func TestTransitionsPublishEvents(t *testing.T) {
	tr, bus := newTestTracker()
	ctx := context.Background()
	tr.Create("r1", "hello-world", "/runs/r1", nil)

	require.NoError(t, tr.Start(ctx, "r1"))
	require.NoError(t, tr.Succeed(ctx, "r1"))

	published := bus.published()
	require.Len(t, published, 2)
	assert.Equal(t, events.RunStarted, published[0].Type)
	assert.Equal(t, events.RunSucceeded, published[1].Type)
	assert.Equal(t, run.StateSuccess, published[1].Run.State)
}

func TestFailCarriesMessages(t *testing.T) {
	tr, bus := newTestTracker()
	ctx := context.Background()
	tr.Create("r1", "hello-world", "/runs/r1", nil)
	require.NoError(t, tr.Start(ctx, "r1"))

	require.NoError(t, tr.Fail(ctx, "r1", "exit status 2"))

	published := bus.published()
	require.Len(t, published, 2)
	assert.Equal(t, events.RunFailed, published[1].Type)
	assert.Equal(t, []string{"exit status 2"}, published[1].Run.Messages)
}

func TestCancelTerminalRunFails(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	tr.Create("r1", "hello-world", "/runs/r1", nil)
	require.NoError(t, tr.Start(ctx, "r1"))
	require.NoError(t, tr.Succeed(ctx, "r1"))

	err := tr.Cancel(ctx, "r1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestListOrderedByCreation(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Create("r3", "t", "/runs/r3", nil)
	tr.Create("r1", "t", "/runs/r1", nil)
	tr.Create("r2", "t", "/runs/r2", nil)

	runs := tr.List()
	require.Len(t, runs, 3)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r1", runs[1].ID)
	assert.Equal(t, "r2", runs[2].ID)
}

func TestRecordStepAndSetResult(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	tr.Create("r1", "hello-world", "/runs/r1", nil)
	require.NoError(t, tr.Start(ctx, "r1"))

	require.NoError(t, tr.RecordStep("r1", run.StepOutcome{Step: 0, Command: "echo hi", ExitCode: 0}))
	require.NoError(t, tr.Succeed(ctx, "r1"))
	require.NoError(t, tr.SetResult("r1", map[string]interface{}{"mean_accuracy": 0.95}))

	snapshot, err := tr.Get("r1")
	require.NoError(t, err)
	require.Len(t, snapshot.Steps, 1)
	assert.Equal(t, 0.95, snapshot.Result["mean_accuracy"])
}

func TestConcurrentCreates(t *testing.T) {
	tr, _ := newTestTracker()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Create(string(rune('a'+i)), "t", "", nil)
		}(i)
	}
	wg.Wait()

	runs := tr.List()
	assert.Len(t, runs, 16)
	seen := make(map[int64]bool)
	for _, r := range runs {
		assert.False(t, seen[r.CreatedSeq], "duplicate sequence %d", r.CreatedSeq)
		seen[r.CreatedSeq] = true
	}
}
