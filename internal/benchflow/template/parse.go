package template

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/benchflow/benchflow/pkg/errors"
)

// ParseFile loads and validates a template document from disk. The file name
// (without extension) becomes the template name.
func ParseFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template file %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(data, name)
}

// Parse decodes a template document and statically validates it. Parsing
// never partially succeeds: either a complete valid Template is returned or
// none is.
func Parse(data []byte, name string) (*Template, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t Template
	if err := dec.Decode(&t); err != nil {
		return nil, errors.NewTemplateError(name, "", "malformed document: %v", err)
	}
	t.Name = name

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate applies the static validation rules: every placeholder reference
// resolves to a declared parameter, every dtype is recognized, the workflow
// type is supported, output paths are relative and non-empty, and the result
// schema is consistent with the declared outputs.
func (t *Template) Validate() error {
	if err := t.validateParameters(); err != nil {
		return err
	}
	if err := t.validateWorkflow("workflow", t.Workflow.Inputs, t.Workflow.Workflow, t.Workflow.Outputs); err != nil {
		return err
	}
	if err := t.validateReferences("workflow", t.Workflow.Inputs, t.Workflow.Workflow, t.Workflow.Outputs); err != nil {
		return err
	}
	if t.Postproc != nil {
		if err := t.validateWorkflow("postproc", t.Postproc.Inputs, t.Postproc.Workflow, t.Postproc.Outputs); err != nil {
			return err
		}
		if err := t.validateReferences("postproc", t.Postproc.Inputs, t.Postproc.Workflow, t.Postproc.Outputs); err != nil {
			return err
		}
		if len(t.Postproc.Inputs.Files) == 0 {
			return errors.NewTemplateError(t.Name, "postproc.inputs.files", "post-processing declares no files to collect")
		}
	}
	if t.Results != nil {
		if err := t.validateResults(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Template) validateParameters() error {
	seen := make(map[string]bool, len(t.Parameters))
	for i := range t.Parameters {
		p := &t.Parameters[i]
		if p.Name == "" {
			return errors.NewTemplateError(t.Name, "parameters", "parameter without a name")
		}
		if seen[p.Name] {
			return errors.NewTemplateError(t.Name, "parameters", "duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		if !knownDTypes[p.DType] {
			return errors.NewTemplateError(t.Name, "parameters", "parameter %q has unknown dtype %q", p.Name, p.DType)
		}
	}
	return nil
}

func (t *Template) validateWorkflow(section string, inputs InputsSpec, body WorkflowBody, outputs OutputsSpec) error {
	if body.Type != WorkflowTypeSerial {
		return errors.NewTemplateError(t.Name, section+".type", "unsupported workflow type %q", body.Type)
	}
	if len(body.Specification.Steps) == 0 {
		return errors.NewTemplateError(t.Name, section+".specification.steps", "workflow declares no steps")
	}
	for i, step := range body.Specification.Steps {
		if step.Environment == "" {
			return errors.NewTemplateError(t.Name, section+".specification.steps", "step %d has no environment", i)
		}
		if len(step.Commands) == 0 {
			return errors.NewTemplateError(t.Name, section+".specification.steps", "step %d has no commands", i)
		}
	}
	for _, f := range inputs.Files {
		if err := checkRelativePath(f); err != nil {
			return errors.NewTemplateError(t.Name, section+".inputs.files", "%v", err)
		}
	}
	for _, f := range outputs.Files {
		if err := checkRelativePath(f); err != nil {
			return errors.NewTemplateError(t.Name, section+".outputs.files", "%v", err)
		}
	}
	return nil
}

// validateReferences checks both placeholder namespaces. Bind-time
// references anywhere in the section must name a declared parameter;
// run-time references appear only in step commands and must name either a
// key of inputs.parameters or a declared parameter. Unresolved references
// are a validation error, not a runtime one.
func (t *Template) validateReferences(section string, inputs InputsSpec, body WorkflowBody, outputs OutputsSpec) error {
	var bindRefs []string
	for _, f := range inputs.Files {
		bindRefs = append(bindRefs, BindTimeRefs(f)...)
	}
	for _, v := range inputs.Parameters {
		bindRefs = append(bindRefs, BindTimeRefs(v)...)
	}
	for _, f := range outputs.Files {
		bindRefs = append(bindRefs, BindTimeRefs(f)...)
	}
	for _, step := range body.Specification.Steps {
		for _, cmd := range step.Commands {
			bindRefs = append(bindRefs, BindTimeRefs(cmd)...)
		}
	}
	for _, name := range bindRefs {
		if _, ok := t.Parameter(name); !ok {
			return errors.NewTemplateError(t.Name, section, "bind-time placeholder $[[%s]] has no declared parameter", name)
		}
	}

	for _, step := range body.Specification.Steps {
		for _, cmd := range step.Commands {
			for _, name := range RunTimeRefs(cmd) {
				if _, ok := inputs.Parameters[name]; ok {
					continue
				}
				if _, ok := t.Parameter(name); ok {
					continue
				}
				return errors.NewTemplateError(t.Name, section, "run-time placeholder ${%s} has no declared parameter", name)
			}
		}
	}

	// Run-time placeholders appear only inside step command strings.
	for _, f := range inputs.Files {
		if HasRunTimeRef(f) {
			return errors.NewTemplateError(t.Name, section+".inputs.files", "run-time placeholder in input file %q", f)
		}
	}
	for _, f := range outputs.Files {
		if HasRunTimeRef(f) {
			return errors.NewTemplateError(t.Name, section+".outputs.files", "run-time placeholder in output file %q", f)
		}
	}
	return nil
}

func (t *Template) validateResults() error {
	s := t.Results
	if s.File == "" {
		return errors.NewTemplateError(t.Name, "results.file", "result file must not be empty")
	}
	if err := checkRelativePath(s.File); err != nil {
		return errors.NewTemplateError(t.Name, "results.file", "%v", err)
	}
	if len(s.Columns) == 0 {
		return errors.NewTemplateError(t.Name, "results.schema", "result schema declares no columns")
	}

	names := make(map[string]bool, len(s.Columns))
	labels := make(map[string]bool, len(s.Columns))
	for _, col := range s.Columns {
		if col.Name == "" {
			return errors.NewTemplateError(t.Name, "results.schema", "column without a name")
		}
		if names[col.Name] {
			return errors.NewTemplateError(t.Name, "results.schema", "duplicate column %q", col.Name)
		}
		names[col.Name] = true
		if col.Label != "" {
			if labels[col.Label] {
				return errors.NewTemplateError(t.Name, "results.schema", "duplicate column label %q", col.Label)
			}
			labels[col.Label] = true
		}
		if !resultDTypes[col.DType] {
			return errors.NewTemplateError(t.Name, "results.schema", "column %q has unsupported dtype %q", col.Name, col.DType)
		}
	}

	for _, key := range s.OrderBy {
		if !names[key.Name] {
			return errors.NewTemplateError(t.Name, "results.orderBy", "sort key %q is not a schema column", key.Name)
		}
	}

	// The target file must be producible by the workflow: either declared
	// as an output, or an implied relative path under the run directory.
	// Relative-path validity was checked above; declared outputs get the
	// stronger missing-output check at run completion.
	return nil
}

// checkRelativePath rejects empty, absolute, and escaping paths. Declared
// inputs, outputs, and result files are always relative to the run working
// directory.
func checkRelativePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty file path")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("file path %q must be relative", path)
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("file path %q escapes the run directory", path)
	}
	return nil
}
