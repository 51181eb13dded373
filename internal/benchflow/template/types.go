// Package template defines the typed in-memory representation of a workflow
// template document and its static validation. A template declares a
// parameterized serial workflow, the parameters a submission must provide,
// optional result extraction rules, and an optional post-processing workflow
// executed over a cohort of completed runs.
package template

// DType identifies the data type of a parameter or result column.
type DType string

const (
	DTypeString DType = "string"
	DTypeInt    DType = "int"
	DTypeFloat  DType = "float"
	DTypeBool   DType = "bool"
	DTypeFile   DType = "file"
)

// knownDTypes is the closed set of recognized data types.
var knownDTypes = map[DType]bool{
	DTypeString: true,
	DTypeInt:    true,
	DTypeFloat:  true,
	DTypeBool:   true,
	DTypeFile:   true,
}

// resultDTypes are the data types permitted for result schema columns.
var resultDTypes = map[DType]bool{
	DTypeString: true,
	DTypeInt:    true,
	DTypeFloat:  true,
}

// WorkflowTypeSerial is the only workflow type currently supported. Richer
// workflow types are an extension point with the same resolution/dispatch
// contract.
const WorkflowTypeSerial = "serial"

// Template is the root of a parsed workflow template document. It is
// immutable once parsed; binding produces resolved copies.
type Template struct {
	// Name identifies the template in error messages and run records. It is
	// not part of the document; Parse sets it from the caller.
	Name string `yaml:"-"`

	Workflow        WorkflowSpec     `yaml:"workflow"`
	Parameters      []ParameterSpec  `yaml:"parameters"`
	ParameterGroups []ParameterGroup `yaml:"parameterGroups"`
	Postproc        *PostprocSpec    `yaml:"postproc"`
	Results         *ResultSchema    `yaml:"results"`
}

// WorkflowSpec is the executable part of a template: input staging, the
// ordered step list, and declared outputs.
type WorkflowSpec struct {
	Version  string       `yaml:"version"`
	Inputs   InputsSpec   `yaml:"inputs"`
	Workflow WorkflowBody `yaml:"workflow"`
	Outputs  OutputsSpec  `yaml:"outputs"`
}

// InputsSpec lists the files copied into a run's working directory and the
// parameter mapping that run-time placeholders resolve against. Both may
// contain bind-time placeholders.
type InputsSpec struct {
	Files      []string          `yaml:"files"`
	Parameters map[string]string `yaml:"parameters"`
}

// WorkflowBody carries the workflow type and its step specification.
type WorkflowBody struct {
	Type          string        `yaml:"type"`
	Specification Specification `yaml:"specification"`
}

// Specification holds the ordered step list for a serial workflow.
type Specification struct {
	Steps []Step `yaml:"steps"`
}

// Step is one unit of dispatch: an execution environment identifier and an
// ordered list of command template strings.
type Step struct {
	Environment string   `yaml:"environment"`
	Commands    []string `yaml:"commands"`
}

// OutputsSpec lists the files a successful run must leave behind, relative
// to the run working directory.
type OutputsSpec struct {
	Files []string `yaml:"files"`
}

// ParameterSpec declares one template parameter. Name is unique within a
// template; DefaultValue, Group, and Index are optional.
type ParameterSpec struct {
	Name         string      `yaml:"name"`
	Label        string      `yaml:"label"`
	DType        DType       `yaml:"dtype"`
	DefaultValue interface{} `yaml:"defaultValue"`
	Index        int         `yaml:"index"`
	Group        string      `yaml:"group"`
}

// HasDefault reports whether the parameter declares a default value.
func (p *ParameterSpec) HasDefault() bool {
	return p.DefaultValue != nil
}

// ParameterGroup names an optional display group for parameters.
type ParameterGroup struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	Index int    `yaml:"index"`
}

// PostprocSpec declares the secondary workflow executed once over the
// combined outputs of a cohort of runs. Its inputs.files name the result
// files collected from each successful run; the aggregation directory
// becomes the input files root of the post-processing run.
type PostprocSpec struct {
	Version  string       `yaml:"version"`
	Inputs   InputsSpec   `yaml:"inputs"`
	Workflow WorkflowBody `yaml:"workflow"`
	Outputs  OutputsSpec  `yaml:"outputs"`
}

// Spec returns the post-processing document as an executable WorkflowSpec.
// The two types share their layout; the sequencer only understands
// WorkflowSpec.
func (p *PostprocSpec) Spec() WorkflowSpec {
	return WorkflowSpec{
		Version:  p.Version,
		Inputs:   p.Inputs,
		Workflow: p.Workflow,
		Outputs:  p.Outputs,
	}
}

// ResultSchema declares how to extract comparable result records from a
// run's output and how to order them on the leaderboard.
type ResultSchema struct {
	File    string         `yaml:"file"`
	Columns []ResultColumn `yaml:"schema"`
	OrderBy []SortKey      `yaml:"orderBy"`
}

// ResultColumn declares one extracted value: its unique name, display label,
// slash-separated path into the result document, and data type. An empty
// path means the column name itself is the path.
type ResultColumn struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	Path  string `yaml:"path"`
	DType DType  `yaml:"dtype"`
}

// JSONPath returns the list of element keys referencing the column value in
// a nested result document.
func (c *ResultColumn) JSONPath() []string {
	if c.Path == "" {
		return []string{c.Name}
	}
	return splitPath(c.Path)
}

// SortKey is one entry of a leaderboard ordering. SortDesc defaults to true
// when not given.
type SortKey struct {
	Name     string `yaml:"name"`
	SortDesc *bool  `yaml:"sortDesc"`
}

// Descending reports the effective sort direction for the key.
func (k *SortKey) Descending() bool {
	if k.SortDesc == nil {
		return true
	}
	return *k.SortDesc
}

// EffectiveOrder returns the declared orderBy list, or the default order
// when none is declared: the first schema column, descending.
func (s *ResultSchema) EffectiveOrder() []SortKey {
	if len(s.OrderBy) > 0 {
		return s.OrderBy
	}
	if len(s.Columns) == 0 {
		return nil
	}
	return []SortKey{{Name: s.Columns[0].Name}}
}

// Parameter returns the declared parameter with the given name.
func (t *Template) Parameter(name string) (*ParameterSpec, bool) {
	for i := range t.Parameters {
		if t.Parameters[i].Name == name {
			return &t.Parameters[i], true
		}
	}
	return nil, false
}

// SortedParameters returns the declared parameters ordered by index, then by
// name for equal indexes. Intended for display surfaces.
func (t *Template) SortedParameters() []ParameterSpec {
	out := make([]ParameterSpec, len(t.Parameters))
	copy(out, t.Parameters)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(&out[j], &out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func less(a, b *ParameterSpec) bool {
	if a.Index != b.Index {
		return a.Index < b.Index
	}
	return a.Name < b.Name
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	return append(parts, path[start:])
}
