package binder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchflow/benchflow/internal/benchflow/template"
	"github.com/benchflow/benchflow/pkg/errors"
)

const helloWorldDoc = `workflow:
  version: "1.0"
  inputs:
    files:
      - code/helloworld.py
      - $[[names]]
    parameters:
      inputfile: $[[names]]
      outputfile: results/greetings.txt
      greeting: $[[greeting]]
      sleeptime: $[[sleeptime]]
  workflow:
    type: serial
    specification:
      steps:
        - environment: python:3.11
          commands:
            - python code/helloworld.py --inputfile ${inputfile} --outputfile ${outputfile} --greeting ${greeting} --sleeptime ${sleeptime}
  outputs:
    files:
      - results/greetings.txt
parameters:
  - name: names
    label: Names File
    dtype: file
    index: 0
  - name: greeting
    label: Greeting
    dtype: string
    defaultValue: Hi
    index: 1
  - name: sleeptime
    label: Sleep Time
    dtype: int
    defaultValue: 0
    index: 2
`

type stubFiles struct {
	known map[string]bool
}

func (s *stubFiles) Exists(path string) bool {
	return s.known[path]
}

func parseHelloWorld(t *testing.T) *template.Template {
	t.Helper()
	tmpl, err := template.Parse([]byte(helloWorldDoc), "hello-world")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return tmpl
}

func bindHelloWorld(t *testing.T, args Arguments) *BoundTemplate {
	t.Helper()
	files := &stubFiles{known: map[string]bool{"/staging/abc123": true}}
	bound, err := New(files).Bind(parseHelloWorld(t), args)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	return bound
}

func TestBindSubstitutesDocumentWide(t *testing.T) {
	bound := bindHelloWorld(t, Arguments{
		"names":    File("/staging/abc123", "data/names.txt"),
		"greeting": "Hello",
	})

	wf := bound.Template.Workflow
	assert.Equal(t, []string{"code/helloworld.py", "data/names.txt"}, wf.Inputs.Files)
	assert.Equal(t, "data/names.txt", wf.Inputs.Parameters["inputfile"])
	assert.Equal(t, "Hello", wf.Inputs.Parameters["greeting"])
	assert.Equal(t, "0", wf.Inputs.Parameters["sleeptime"])
}

func TestBindSeedsParametersWithoutExplicitMapping(t *testing.T) {
	const doc = `workflow:
  version: "1.0"
  workflow:
    type: serial
    specification:
      steps:
        - environment: alpine:3.20
          commands:
            - echo --greeting ${greeting}
parameters:
  - name: greeting
    label: Greeting
    dtype: string
`
	tmpl, err := template.Parse([]byte(doc), "greeter")
	require.NoError(t, err)

	bound, err := New(nil).Bind(tmpl, Arguments{"greeting": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", bound.Template.Workflow.Inputs.Parameters["greeting"])

	step := bound.Template.Workflow.Workflow.Specification.Steps[0]
	commands, err := ResolveCommands(bound.Template.Workflow.Inputs.Parameters, step.Commands)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo --greeting Hello"}, commands)
}

func TestBindAppliesDefaults(t *testing.T) {
	bound := bindHelloWorld(t, Arguments{
		"names": File("/staging/abc123", "data/names.txt"),
	})

	assert.Equal(t, "Hi", bound.Template.Workflow.Inputs.Parameters["greeting"])
	assert.Equal(t, "0", bound.Template.Workflow.Inputs.Parameters["sleeptime"])
}

func TestBindRejectsMissingArgument(t *testing.T) {
	files := &stubFiles{known: map[string]bool{}}
	_, err := New(files).Bind(parseHelloWorld(t), Arguments{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingArgument))
	name, ok := errors.GetParameter(err)
	require.True(t, ok)
	assert.Equal(t, "names", name)
}

func TestBindRejectsUnknownArgument(t *testing.T) {
	files := &stubFiles{known: map[string]bool{"/staging/abc123": true}}
	_, err := New(files).Bind(parseHelloWorld(t), Arguments{
		"names":   File("/staging/abc123", "data/names.txt"),
		"verbose": "true",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownParameter))
	name, ok := errors.GetParameter(err)
	require.True(t, ok)
	assert.Equal(t, "verbose", name)
}

func TestBindRejectsTypeMismatch(t *testing.T) {
	files := &stubFiles{known: map[string]bool{"/staging/abc123": true}}
	_, err := New(files).Bind(parseHelloWorld(t), Arguments{
		"names":     File("/staging/abc123", "data/names.txt"),
		"sleeptime": "not-a-number",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTypeMismatch))
	name, ok := errors.GetParameter(err)
	require.True(t, ok)
	assert.Equal(t, "sleeptime", name)
}

func TestBindRejectsUnstagedFile(t *testing.T) {
	files := &stubFiles{known: map[string]bool{}}
	_, err := New(files).Bind(parseHelloWorld(t), Arguments{
		"names": File("/staging/missing", "data/names.txt"),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFileNotStaged))
}

func TestBindRecordsFileStagings(t *testing.T) {
	bound := bindHelloWorld(t, Arguments{
		"names": File("/staging/abc123", "data/names.txt"),
	})

	require.Len(t, bound.Stagings, 1)
	assert.Equal(t, "/staging/abc123", bound.Stagings[0].Source)
	assert.Equal(t, "data/names.txt", bound.Stagings[0].Target)
}

func TestBindCoercesStringArguments(t *testing.T) {
	bound := bindHelloWorld(t, Arguments{
		"names":     File("/staging/abc123", "data/names.txt"),
		"sleeptime": "5",
	})

	assert.Equal(t, "5", bound.Template.Workflow.Inputs.Parameters["sleeptime"])
	assert.Equal(t, KindInt, bound.Arguments["sleeptime"].Kind())
}

func TestBindDoesNotMutateTemplate(t *testing.T) {
	tmpl := parseHelloWorld(t)
	files := &stubFiles{known: map[string]bool{"/staging/abc123": true}}
	_, err := New(files).Bind(tmpl, Arguments{
		"names": File("/staging/abc123", "data/names.txt"),
	})
	require.NoError(t, err)

	assert.Equal(t, "$[[names]]", tmpl.Workflow.Inputs.Parameters["inputfile"])
	assert.Equal(t, "$[[greeting]]", tmpl.Workflow.Inputs.Parameters["greeting"])
}

func TestBindIsDeterministic(t *testing.T) {
	args := Arguments{
		"names":    File("/staging/abc123", "data/names.txt"),
		"greeting": "Hello",
	}
	first := bindHelloWorld(t, args)
	second := bindHelloWorld(t, args)

	assert.Equal(t, first.Template, second.Template)
	assert.Equal(t, first.Stagings, second.Stagings)
}

func TestResolveCommandsHelloWorld(t *testing.T) {
	bound := bindHelloWorld(t, Arguments{
		"names":    File("/staging/abc123", "data/names.txt"),
		"greeting": "Hello",
	})

	step := bound.Template.Workflow.Workflow.Specification.Steps[0]
	commands, err := ResolveCommands(bound.Template.Workflow.Inputs.Parameters, step.Commands)
	require.NoError(t, err)
	require.Len(t, commands, 1)

	assert.Contains(t, commands[0], "--greeting Hello")
	assert.Contains(t, commands[0], "--sleeptime 0")
	assert.Contains(t, commands[0], "--inputfile data/names.txt")
	assert.False(t, strings.Contains(commands[0], "${"))
}

func TestResolveCommandsRejectsUnresolvedName(t *testing.T) {
	_, err := ResolveCommands(map[string]string{"a": "1"}, []string{"run --a ${a} --b ${b}"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnresolvedPlaceholder))
	assert.Contains(t, err.Error(), "${b}")
}

func TestCoerceValues(t *testing.T) {
	intSpec := &template.ParameterSpec{Name: "n", DType: template.DTypeInt}
	v, err := Coerce(intSpec, 7)
	require.NoError(t, err)
	assert.Equal(t, "7", v.Text())

	floatSpec := &template.ParameterSpec{Name: "f", DType: template.DTypeFloat}
	v, err = Coerce(floatSpec, "0.25")
	require.NoError(t, err)
	assert.Equal(t, "0.25", v.Text())

	boolSpec := &template.ParameterSpec{Name: "b", DType: template.DTypeBool}
	v, err = Coerce(boolSpec, "true")
	require.NoError(t, err)
	assert.Equal(t, "true", v.Text())

	_, err = Coerce(intSpec, 1.5)
	assert.True(t, errors.Is(err, errors.ErrTypeMismatch))
}

func TestCoerceFileDefaultIsSourceTreePath(t *testing.T) {
	spec := &template.ParameterSpec{Name: "names", DType: template.DTypeFile}
	v, err := Coerce(spec, "data/names.txt")
	require.NoError(t, err)

	assert.True(t, v.IsFile())
	assert.Empty(t, v.StagedPath())
	assert.Equal(t, "data/names.txt", v.Target())
}
