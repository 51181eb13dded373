package binder

import (
	"fmt"

	"github.com/benchflow/benchflow/internal/benchflow/template"
	"github.com/benchflow/benchflow/pkg/errors"
)

// Arguments maps parameter names to raw submission values. Raw values may be
// strings (CLI), typed scalars (programmatic submission) or File Values.
type Arguments map[string]interface{}

// FileChecker reports whether uploaded content exists at a staging path. The
// binder uses it to reject file arguments whose upload went missing before
// the run could be created.
type FileChecker interface {
	Exists(stagedPath string) bool
}

// FileMapping records one file that must be materialized inside the run
// working directory before the first step starts. Source is the absolute
// staging path; an empty Source means the file comes from the template
// source tree instead. Target is relative to the run directory.
type FileMapping struct {
	Source string
	Target string
}

// BoundTemplate is the frozen product of bind-time resolution: a deep copy
// of the template with every $[[name]] replaced, the coerced argument
// snapshot, and the file stagings the run directory needs. Binding happens
// exactly once per run; the bound document never changes afterwards.
type BoundTemplate struct {
	Template  *template.Template
	Arguments map[string]Value
	Stagings  []FileMapping
}

// Binder performs bind-time resolution of templates against submissions.
type Binder struct {
	files FileChecker
}

func New(files FileChecker) *Binder {
	return &Binder{files: files}
}

// Bind validates args against the template's parameter declarations, fills
// defaults, and substitutes every bind-time placeholder document wide. It is
// a pure function of its inputs: binding the same template and arguments
// twice yields identical bound documents.
func (b *Binder) Bind(t *template.Template, args Arguments) (*BoundTemplate, error) {
	for name := range args {
		if _, ok := t.Parameter(name); !ok {
			return nil, errors.WrapArgumentError(name, errors.ErrUnknownParameter)
		}
	}

	values := make(map[string]Value, len(t.Parameters))
	for i := range t.Parameters {
		spec := &t.Parameters[i]
		raw, ok := args[spec.Name]
		if !ok {
			if !spec.HasDefault() {
				return nil, errors.WrapArgumentError(spec.Name, errors.ErrMissingArgument)
			}
			raw = spec.DefaultValue
		}
		v, err := Coerce(spec, raw)
		if err != nil {
			return nil, err
		}
		if v.IsFile() && v.StagedPath() != "" && b.files != nil && !b.files.Exists(v.StagedPath()) {
			return nil, errors.WrapArgumentError(spec.Name,
				fmt.Errorf("%w: %s", errors.ErrFileNotStaged, v.StagedPath()))
		}
		values[spec.Name] = v
	}

	resolve := func(name string) (string, bool) {
		v, ok := values[name]
		if !ok {
			return "", false
		}
		return v.Text(), true
	}

	resolved := cloneTemplate(t)
	substituteDocument(resolved, resolve)
	if err := checkResidualBindTime(resolved); err != nil {
		return nil, err
	}

	// Every declared parameter becomes a run-time binding. Explicit
	// inputs.parameters entries win so a template can remap a name.
	if resolved.Workflow.Inputs.Parameters == nil {
		resolved.Workflow.Inputs.Parameters = make(map[string]string, len(values))
	}
	for name, v := range values {
		if _, ok := resolved.Workflow.Inputs.Parameters[name]; !ok {
			resolved.Workflow.Inputs.Parameters[name] = v.Text()
		}
	}

	var stagings []FileMapping
	for i := range resolved.Parameters {
		spec := &resolved.Parameters[i]
		v := values[spec.Name]
		if v.IsFile() {
			stagings = append(stagings, FileMapping{Source: v.StagedPath(), Target: v.Target()})
		}
	}

	return &BoundTemplate{
		Template:  resolved,
		Arguments: values,
		Stagings:  stagings,
	}, nil
}

// ResolveCommands substitutes the run-time ${name} placeholders of one
// step's commands against the resolved inputs.parameters mapping. Called by
// the sequencer immediately before each step is dispatched; any name the
// mapping does not cover fails the resolution.
func ResolveCommands(params map[string]string, commands []string) ([]string, error) {
	resolve := func(name string) (string, bool) {
		v, ok := params[name]
		return v, ok
	}
	out := make([]string, len(commands))
	for i, cmd := range commands {
		resolved := template.SubstituteRunTime(cmd, resolve)
		if refs := template.RunTimeRefs(resolved); len(refs) > 0 {
			return nil, fmt.Errorf("%w: ${%s} in command %q",
				errors.ErrUnresolvedPlaceholder, refs[0], cmd)
		}
		out[i] = resolved
	}
	return out, nil
}

func cloneTemplate(t *template.Template) *template.Template {
	c := *t
	c.Parameters = append([]template.ParameterSpec(nil), t.Parameters...)
	c.ParameterGroups = append([]template.ParameterGroup(nil), t.ParameterGroups...)
	c.Workflow = cloneWorkflow(t.Workflow)
	if t.Postproc != nil {
		spec := cloneWorkflow(t.Postproc.Spec())
		c.Postproc = &template.PostprocSpec{
			Version:  spec.Version,
			Inputs:   spec.Inputs,
			Workflow: spec.Workflow,
			Outputs:  spec.Outputs,
		}
	}
	if t.Results != nil {
		rs := *t.Results
		rs.Columns = append([]template.ResultColumn(nil), t.Results.Columns...)
		rs.OrderBy = append([]template.SortKey(nil), t.Results.OrderBy...)
		c.Results = &rs
	}
	return &c
}

func cloneWorkflow(w template.WorkflowSpec) template.WorkflowSpec {
	c := w
	c.Inputs.Files = append([]string(nil), w.Inputs.Files...)
	c.Outputs.Files = append([]string(nil), w.Outputs.Files...)
	if w.Inputs.Parameters != nil {
		params := make(map[string]string, len(w.Inputs.Parameters))
		for k, v := range w.Inputs.Parameters {
			params[k] = v
		}
		c.Inputs.Parameters = params
	}
	steps := make([]template.Step, len(w.Workflow.Specification.Steps))
	for i, s := range w.Workflow.Specification.Steps {
		steps[i] = template.Step{
			Environment: s.Environment,
			Commands:    append([]string(nil), s.Commands...),
		}
	}
	c.Workflow.Specification.Steps = steps
	return c
}

// substituteDocument applies bind-time substitution to every string slot of
// the template that may carry a placeholder.
func substituteDocument(t *template.Template, resolve func(name string) (string, bool)) {
	substituteWorkflow(&t.Workflow, resolve)
	if t.Postproc != nil {
		spec := t.Postproc.Spec()
		substituteWorkflow(&spec, resolve)
		t.Postproc.Inputs = spec.Inputs
		t.Postproc.Workflow = spec.Workflow
		t.Postproc.Outputs = spec.Outputs
	}
}

func substituteWorkflow(w *template.WorkflowSpec, resolve func(name string) (string, bool)) {
	for i, f := range w.Inputs.Files {
		w.Inputs.Files[i] = template.SubstituteBindTime(f, resolve)
	}
	for k, v := range w.Inputs.Parameters {
		w.Inputs.Parameters[k] = template.SubstituteBindTime(v, resolve)
	}
	for i, f := range w.Outputs.Files {
		w.Outputs.Files[i] = template.SubstituteBindTime(f, resolve)
	}
	for i := range w.Workflow.Specification.Steps {
		step := &w.Workflow.Specification.Steps[i]
		step.Environment = template.SubstituteBindTime(step.Environment, resolve)
		for j, cmd := range step.Commands {
			step.Commands[j] = template.SubstituteBindTime(cmd, resolve)
		}
	}
}

func checkResidualBindTime(t *template.Template) error {
	var residual []string
	collect := func(s string) {
		residual = append(residual, template.BindTimeRefs(s)...)
	}
	walkWorkflow(&t.Workflow, collect)
	if t.Postproc != nil {
		spec := t.Postproc.Spec()
		walkWorkflow(&spec, collect)
	}
	if len(residual) > 0 {
		return fmt.Errorf("%w: $[[%s]]", errors.ErrUnresolvedPlaceholder, residual[0])
	}
	return nil
}

func walkWorkflow(w *template.WorkflowSpec, visit func(string)) {
	for _, f := range w.Inputs.Files {
		visit(f)
	}
	for _, v := range w.Inputs.Parameters {
		visit(v)
	}
	for _, f := range w.Outputs.Files {
		visit(f)
	}
	for _, step := range w.Workflow.Specification.Steps {
		visit(step.Environment)
		for _, cmd := range step.Commands {
			visit(cmd)
		}
	}
}
