// Package tracker is the authoritative registry of runs. It owns every state
// transition: the sequencer and the engine never mutate a run directly, they
// ask the tracker, which applies the transition under its lock and publishes
// the matching lifecycle event with a snapshot of the run.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/benchflow/benchflow/internal/benchflow/events"
	"github.com/benchflow/benchflow/internal/benchflow/run"
	"github.com/benchflow/benchflow/pkg/errors"
	"github.com/benchflow/benchflow/pkg/logger"
)

// Tracker stores runs in memory behind a mutex and assigns each run its
// creation sequence number.
type Tracker struct {
	runs   map[string]*run.Run
	seq    int64
	mutex  sync.RWMutex
	bus    events.Bus
	logger *logger.Logger
}

func New(bus events.Bus, log *logger.Logger) *Tracker {
	return &Tracker{
		runs:   make(map[string]*run.Run),
		bus:    bus,
		logger: log.WithField("component", "run-tracker"),
	}
}

// Create registers a new PENDING run and returns a snapshot of it.
func (t *Tracker) Create(id, templateName, dir string, args map[string]string) *run.Run {
	t.mutex.Lock()
	t.seq++
	r := run.New(id, templateName, dir, t.seq, args)
	t.runs[id] = r
	snapshot := r.DeepCopy()
	t.mutex.Unlock()

	t.logger.Info("run created", "runId", id, "template", templateName)
	return snapshot
}

// CreatePostproc registers a new PENDING post-processing run. Postproc runs
// never feed the leaderboard or a cohort.
func (t *Tracker) CreatePostproc(id, templateName, dir string) *run.Run {
	t.mutex.Lock()
	t.seq++
	r := run.New(id, templateName, dir, t.seq, nil)
	r.Postproc = true
	t.runs[id] = r
	snapshot := r.DeepCopy()
	t.mutex.Unlock()

	t.logger.Info("postproc run created", "runId", id, "template", templateName)
	return snapshot
}

// Get returns a snapshot of the run with the given id.
func (t *Tracker) Get(id string) (*run.Run, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	r, exists := t.runs[id]
	if !exists {
		return nil, errors.WrapRunError(id, "get", errors.ErrRunNotFound)
	}
	return r.DeepCopy(), nil
}

// List returns snapshots of all runs in creation order.
func (t *Tracker) List() []*run.Run {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	result := make([]*run.Run, 0, len(t.runs))
	for _, r := range t.runs {
		result = append(result, r.DeepCopy())
	}
	sortByCreation(result)
	return result
}

// Start transitions the run to RUNNING and publishes run.started.
func (t *Tracker) Start(ctx context.Context, id string) error {
	return t.transition(ctx, id, "start", func(r *run.Run) error {
		return r.Start()
	})
}

// Succeed transitions the run to SUCCESS and publishes run.succeeded.
func (t *Tracker) Succeed(ctx context.Context, id string) error {
	return t.transition(ctx, id, "succeed", func(r *run.Run) error {
		return r.Succeed()
	})
}

// Fail transitions the run to ERROR and publishes run.failed.
func (t *Tracker) Fail(ctx context.Context, id string, messages ...string) error {
	return t.transition(ctx, id, "fail", func(r *run.Run) error {
		return r.Fail(messages...)
	})
}

// Cancel transitions the run to CANCELED and publishes run.canceled. A run
// that is already terminal cannot be canceled.
func (t *Tracker) Cancel(ctx context.Context, id string, messages ...string) error {
	return t.transition(ctx, id, "cancel", func(r *run.Run) error {
		return r.Cancel(messages...)
	})
}

// RecordStep appends a step outcome to the run's execution record.
func (t *Tracker) RecordStep(id string, outcome run.StepOutcome) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	r, exists := t.runs[id]
	if !exists {
		return errors.WrapRunError(id, "record-step", errors.ErrRunNotFound)
	}
	r.RecordStep(outcome)
	return nil
}

// SetResult attaches extracted result values to the run. Extraction happens
// after the terminal transition; the values are reporting data and do not
// change the run's state.
func (t *Tracker) SetResult(id string, result map[string]interface{}) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	r, exists := t.runs[id]
	if !exists {
		return errors.WrapRunError(id, "set-result", errors.ErrRunNotFound)
	}
	r.Result = make(map[string]interface{}, len(result))
	for k, v := range result {
		r.Result[k] = v
	}
	return nil
}

func (t *Tracker) transition(ctx context.Context, id, operation string, apply func(*run.Run) error) error {
	t.mutex.Lock()
	r, exists := t.runs[id]
	if !exists {
		t.mutex.Unlock()
		return errors.WrapRunError(id, operation, errors.ErrRunNotFound)
	}
	if err := apply(r); err != nil {
		t.mutex.Unlock()
		return errors.WrapRunError(id, operation, err)
	}
	snapshot := r.DeepCopy()
	t.mutex.Unlock()

	t.logger.Info("run state changed", "runId", id, "state", string(snapshot.State))
	t.publish(ctx, snapshot)
	return nil
}

func (t *Tracker) publish(ctx context.Context, snapshot *run.Run) {
	eventType, ok := events.ForState(snapshot.State)
	if !ok || t.bus == nil {
		return
	}
	event := events.Event{
		Type:      eventType,
		RunID:     snapshot.ID,
		Run:       snapshot,
		Timestamp: time.Now(),
	}
	if err := t.bus.Publish(ctx, event); err != nil {
		t.logger.Warn("event handler failed", "runId", snapshot.ID, "event", string(eventType), "error", err)
	}
}

func sortByCreation(runs []*run.Run) {
	for i := 1; i < len(runs); i++ {
		for j := i; j > 0 && runs[j].CreatedSeq < runs[j-1].CreatedSeq; j-- {
			runs[j], runs[j-1] = runs[j-1], runs[j]
		}
	}
}
