// Package engine is the composition root: it wires templates, file staging,
// binding, run tracking, sequencing, result extraction, leaderboards, and
// post-processing cohorts. Submissions bind synchronously and execute
// asynchronously; everything downstream of a terminal state transition is
// driven by lifecycle events.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/benchflow/benchflow/internal/benchflow/binder"
	"github.com/benchflow/benchflow/internal/benchflow/events"
	"github.com/benchflow/benchflow/internal/benchflow/executor"
	"github.com/benchflow/benchflow/internal/benchflow/postproc"
	"github.com/benchflow/benchflow/internal/benchflow/results"
	"github.com/benchflow/benchflow/internal/benchflow/run"
	"github.com/benchflow/benchflow/internal/benchflow/sequencer"
	"github.com/benchflow/benchflow/internal/benchflow/store"
	"github.com/benchflow/benchflow/internal/benchflow/template"
	"github.com/benchflow/benchflow/internal/benchflow/tracker"
	"github.com/benchflow/benchflow/pkg/config"
	"github.com/benchflow/benchflow/pkg/errors"
	"github.com/benchflow/benchflow/pkg/logger"
)

// rundirParameter is the conventional inputs.parameters key naming the
// directory the aggregated runs are placed under inside a postproc run.
const rundirParameter = "rundir"

type registeredTemplate struct {
	template    *template.Template
	sourceDir   string
	leaderboard *results.Leaderboard

	cohort        *postproc.Cohort
	cohortMembers []string
}

// Engine coordinates the full lifecycle of workflow runs.
type Engine struct {
	cfg          *config.Config
	logger       *logger.Logger
	bus          *events.InMemoryBus
	tracker      *tracker.Tracker
	staging      *store.Staging
	runDirs      *store.RunDirs
	postprocDirs *store.RunDirs
	binder       *binder.Binder
	seq          *sequencer.Sequencer
	agg          *postproc.Aggregator

	mutex     sync.Mutex
	templates map[string]*registeredTemplate
	cancels   map[string]context.CancelFunc

	sem chan struct{}
	wg  sync.WaitGroup
}

// New builds an engine from configuration, using the local process executor.
func New(cfg *config.Config, log *logger.Logger) (*Engine, error) {
	return NewWithExecutor(cfg, executor.NewLocal(log), log)
}

// NewWithExecutor builds an engine with a caller-supplied executor.
func NewWithExecutor(cfg *config.Config, exec executor.Executor, log *logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	staging, err := store.NewStaging(cfg.StagingDir(), log)
	if err != nil {
		return nil, err
	}
	runDirs, err := store.NewRunDirs(cfg.RunsDir(), log)
	if err != nil {
		return nil, err
	}
	postprocDirs, err := store.NewRunDirs(cfg.PostprocDir(), log)
	if err != nil {
		return nil, err
	}

	bus := events.NewInMemoryBus()
	tr := tracker.New(bus, log)

	e := &Engine{
		cfg:          cfg,
		logger:       log.WithField("component", "engine"),
		bus:          bus,
		tracker:      tr,
		staging:      staging,
		runDirs:      runDirs,
		postprocDirs: postprocDirs,
		binder:       binder.New(staging),
		seq:          sequencer.New(tr, exec, cfg.Engine.CommandTimeout, log),
		agg:          postproc.NewAggregator(log),
		templates:    make(map[string]*registeredTemplate),
		cancels:      make(map[string]context.CancelFunc),
	}
	if cfg.Engine.MaxConcurrentRuns > 0 {
		e.sem = make(chan struct{}, cfg.Engine.MaxConcurrentRuns)
	}

	bus.Subscribe(events.HandlerFunc{
		Types: []events.EventType{events.RunSucceeded, events.RunFailed, events.RunCanceled},
		Func:  e.onTerminal,
	})
	return e, nil
}

// Staging exposes the upload staging area.
func (e *Engine) Staging() *store.Staging {
	return e.staging
}

// RegisterTemplate validates a template and makes it submittable. sourceDir
// is the directory the template's static input files live in.
func (e *Engine) RegisterTemplate(t *template.Template, sourceDir string) error {
	if err := t.Validate(); err != nil {
		return err
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	reg := &registeredTemplate{template: t, sourceDir: sourceDir}
	if t.Results != nil {
		reg.leaderboard = results.NewLeaderboard(t.Results)
	}
	e.templates[t.Name] = reg
	e.logger.Info("template registered", "template", t.Name)
	return nil
}

// Template returns a registered template by name.
func (e *Engine) Template(name string) (*template.Template, error) {
	reg, err := e.registered(name)
	if err != nil {
		return nil, err
	}
	return reg.template, nil
}

// Submit binds the template against the arguments, materializes the run
// working directory, and launches execution. Validation, binding and
// materialization errors surface synchronously; execution errors end up in
// the run record.
func (e *Engine) Submit(ctx context.Context, templateName string, args binder.Arguments) (*run.Run, error) {
	reg, err := e.registered(templateName)
	if err != nil {
		return nil, err
	}

	bound, err := e.binder.Bind(reg.template, args)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	runDir, err := e.runDirs.Create(id)
	if err != nil {
		return nil, err
	}
	wf := bound.Template.Workflow
	if err := e.runDirs.Materialize(runDir, reg.sourceDir, wf.Inputs.Files, bound.Stagings); err != nil {
		e.runDirs.Remove(id)
		return nil, err
	}

	argsText := make(map[string]string, len(bound.Arguments))
	for name, v := range bound.Arguments {
		argsText[name] = v.Text()
	}
	snapshot := e.tracker.Create(id, templateName, runDir, argsText)

	e.launch(ctx, id, wf, runDir)
	return snapshot, nil
}

// Cancel requests cooperative cancellation of a run. Pending runs are
// canceled immediately; running ones are interrupted at the current command.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	snapshot, err := e.tracker.Get(runID)
	if err != nil {
		return err
	}
	if snapshot.IsTerminal() {
		return errors.WrapRunError(runID, "cancel", errors.ErrInvalidTransition)
	}

	if snapshot.State == run.StatePending {
		// The sequencer observes the terminal state before starting.
		if err := e.tracker.Cancel(ctx, runID, "canceled by user"); err != nil &&
			!errors.Is(err, errors.ErrInvalidTransition) {
			return err
		}
	}

	e.mutex.Lock()
	cancel := e.cancels[runID]
	e.mutex.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// GetRun returns a snapshot of the run.
func (e *Engine) GetRun(runID string) (*run.Run, error) {
	return e.tracker.Get(runID)
}

// ListRuns returns snapshots of all runs in creation order.
func (e *Engine) ListRuns() []*run.Run {
	return e.tracker.List()
}

// Leaderboard returns the current ranking for a template.
func (e *Engine) Leaderboard(templateName string) ([]results.Entry, error) {
	reg, err := e.registered(templateName)
	if err != nil {
		return nil, err
	}
	if reg.leaderboard == nil {
		return nil, nil
	}
	return reg.leaderboard.Ranking(), nil
}

// StartCohort fixes the membership of the template's post-processing cohort.
// When every member run is terminal, the template's postproc workflow runs
// once over the successful members' collected results.
func (e *Engine) StartCohort(templateName string, runIDs []string) error {
	reg, err := e.registered(templateName)
	if err != nil {
		return err
	}
	if reg.template.Postproc == nil {
		return errors.NewTemplateError(templateName, "postproc", "template declares no post-processing workflow")
	}

	e.mutex.Lock()
	cohort := postproc.NewCohort(runIDs)
	reg.cohort = cohort
	reg.cohortMembers = append([]string(nil), runIDs...)
	e.mutex.Unlock()
	e.logger.Info("cohort started", "template", templateName, "members", len(runIDs))

	// Members that reached a terminal state before the cohort existed are
	// observed here; later ones arrive through terminal events.
	for _, id := range runIDs {
		r, err := e.tracker.Get(id)
		if err != nil || !r.IsTerminal() {
			continue
		}
		if cohort.Observe(id) {
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.runPostproc(context.Background(), reg)
			}()
		}
	}
	return nil
}

// Wait blocks until all launched runs have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) registered(name string) (*registeredTemplate, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	reg, exists := e.templates[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", errors.ErrTemplateNotFound, name)
	}
	return reg, nil
}

func (e *Engine) launch(ctx context.Context, runID string, wf template.WorkflowSpec, runDir string) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.mutex.Lock()
	e.cancels[runID] = cancel
	e.mutex.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			cancel()
			e.mutex.Lock()
			delete(e.cancels, runID)
			e.mutex.Unlock()
		}()

		if e.sem != nil {
			e.sem <- struct{}{}
			defer func() { <-e.sem }()
		}

		if _, err := e.seq.Execute(runCtx, runID, wf, runDir); err != nil {
			e.logger.Error("run execution failed internally", "runId", runID, "error", err)
		}
	}()
}

// onTerminal reacts to a run reaching a terminal state: extraction and
// leaderboard update for successful scored runs, then the cohort check.
func (e *Engine) onTerminal(ctx context.Context, event events.Event) error {
	r := event.Run
	if r.Postproc {
		e.logger.Info("postproc run finished", "runId", r.ID, "state", string(r.State))
		return nil
	}

	e.mutex.Lock()
	reg := e.templates[r.TemplateName]
	e.mutex.Unlock()
	if reg == nil {
		return nil
	}

	if r.Succeeded() && reg.leaderboard != nil {
		e.score(r, reg)
	}

	e.mutex.Lock()
	cohort := reg.cohort
	e.mutex.Unlock()
	if cohort != nil && cohort.Observe(r.ID) {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runPostproc(context.WithoutCancel(ctx), reg)
		}()
	}
	return nil
}

// score extracts the run's result values and places it on the leaderboard.
// Extraction failure is reporting-side only: it is logged and the run keeps
// its SUCCESS state. Per-column failures still rank the run with those
// values absent; only an unreadable result file leaves it unranked.
func (e *Engine) score(r *run.Run, reg *registeredTemplate) {
	values, err := results.Extract(r.Dir, reg.template.Results, r.ID)
	if err != nil {
		e.logger.Warn("result extraction failed", "runId", r.ID, "error", err)
	}
	if values == nil {
		return
	}
	if err := e.tracker.SetResult(r.ID, values); err != nil {
		e.logger.Warn("result attach failed", "runId", r.ID, "error", err)
	}
	reg.leaderboard.Add(results.Entry{
		RunID:      r.ID,
		CreatedSeq: r.CreatedSeq,
		Arguments:  r.Arguments,
		Values:     values,
	})
	e.logger.Info("run scored", "runId", r.ID, "template", r.TemplateName)
}

// runPostproc builds the aggregation directory inside a fresh postproc run
// directory and executes the template's post-processing workflow over it.
func (e *Engine) runPostproc(ctx context.Context, reg *registeredTemplate) {
	name := reg.template.Name
	pp := reg.template.Postproc.Spec()

	id := uuid.NewString()
	runDir, err := e.postprocDirs.Create(id)
	if err != nil {
		e.logger.Error("postproc directory creation failed", "template", name, "error", err)
		return
	}
	e.tracker.CreatePostproc(id, name, runDir)

	members := e.memberRuns(reg)
	rundir := pp.Inputs.Parameters[rundirParameter]
	if rundir == "" {
		rundir = "runs"
	}
	if err := e.agg.Build(filepath.Join(runDir, rundir), pp.Inputs.Files, members); err != nil {
		e.logger.Error("aggregation failed", "template", name, "error", err)
		if failErr := e.tracker.Fail(ctx, id, err.Error()); failErr != nil {
			e.logger.Error("postproc run not failed", "runId", id, "error", failErr)
		}
		return
	}
	// The postproc workflow's code ships with the template source tree;
	// copy the whole tree so its scripts resolve the same relative paths
	// they would in an ordinary run.
	if err := e.runDirs.Materialize(runDir, reg.sourceDir, []string{"."}, nil); err != nil {
		e.logger.Warn("postproc source materialization incomplete", "template", name, "error", err)
	}

	// Collected per-run files live under the aggregation directory, not at
	// the postproc run root.
	wf := pp
	wf.Inputs.Files = nil

	if _, err := e.seq.Execute(ctx, id, wf, runDir); err != nil {
		e.logger.Error("postproc execution failed internally", "runId", id, "error", err)
	}
}

// memberRuns returns snapshots of the cohort's member runs.
func (e *Engine) memberRuns(reg *registeredTemplate) []*run.Run {
	e.mutex.Lock()
	members := append([]string(nil), reg.cohortMembers...)
	e.mutex.Unlock()

	runs := make([]*run.Run, 0, len(members))
	for _, id := range members {
		if r, err := e.tracker.Get(id); err == nil {
			runs = append(runs, r)
		}
	}
	return runs
}
