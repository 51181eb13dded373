// Package errors provides standardized error handling for the benchflow
// engine. It implements structured error types with proper wrapping and
// classification so that callers can distinguish template problems from bad
// submissions, execution failures, and reporting-only failures.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the engine error taxonomy
var (
	// Template errors: the document is malformed or unresolvable. Fatal,
	// rejected before any run is created.
	ErrTemplateInvalid = errors.New("invalid workflow template")

	// Submission errors: fatal to one run's creation, never dispatched.
	ErrMissingArgument  = errors.New("missing run argument")
	ErrTypeMismatch     = errors.New("argument type mismatch")
	ErrUnknownParameter = errors.New("unknown parameter")

	// Internal invariant violation: a placeholder survived its resolution
	// phase. Must never reach the executor.
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")

	// Execution errors.
	ErrStepFailed    = errors.New("step command failed")
	ErrMissingOutput = errors.New("declared output file missing")
	ErrRunCanceled   = errors.New("run canceled")

	// Reporting errors: never alter a run's lifecycle state.
	ErrResultExtraction = errors.New("result extraction failed")

	// Post-processing errors: fatal to the post-processing run only.
	ErrAggregationFailed = errors.New("cohort aggregation failed")

	// Store errors.
	ErrRunNotFound      = errors.New("run not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrFileNotStaged    = errors.New("file not staged")

	// Lifecycle errors.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// TemplateError reports a validation failure against a specific field or
// reference in a workflow template.
type TemplateError struct {
	Template string
	Field    string
	Err      error
}

func (e *TemplateError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("template %s: field %s: %v", e.Template, e.Field, e.Err)
	}
	return fmt.Sprintf("template %s: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// RunError represents an error related to a specific run.
type RunError struct {
	RunID     string
	Operation string
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: operation %s: %v", e.RunID, e.Operation, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// ArgumentError reports a bad submission argument by parameter name.
type ArgumentError struct {
	Parameter string
	Err       error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %s: %v", e.Parameter, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// ExtractionError reports a failure to extract one result column for a run.
type ExtractionError struct {
	RunID  string
	Column string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("run %s: result column %s: %v", e.RunID, e.Column, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Error wrapping constructors

func WrapTemplateError(template, field string, err error) error {
	if err == nil {
		return nil
	}
	return &TemplateError{Template: template, Field: field, Err: err}
}

func WrapRunError(runID, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &RunError{RunID: runID, Operation: operation, Err: err}
}

func WrapArgumentError(parameter string, err error) error {
	if err == nil {
		return nil
	}
	return &ArgumentError{Parameter: parameter, Err: err}
}

func WrapExtractionError(runID, column string, err error) error {
	if err == nil {
		return nil
	}
	return &ExtractionError{RunID: runID, Column: column, Err: fmt.Errorf("%w: %v", ErrResultExtraction, err)}
}

// NewTemplateError creates a validation error for a template field with a
// formatted detail message. The result matches errors.Is(err, ErrTemplateInvalid).
func NewTemplateError(template, field, format string, args ...interface{}) error {
	detail := fmt.Sprintf(format, args...)
	return &TemplateError{
		Template: template,
		Field:    field,
		Err:      fmt.Errorf("%w: %s", ErrTemplateInvalid, detail),
	}
}

// Classification helpers

// IsValidationError reports whether err is a template validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTemplateInvalid)
}

// IsSubmissionError reports whether err is fatal to run creation (bad
// arguments rather than bad template or bad execution).
func IsSubmissionError(err error) bool {
	return errors.Is(err, ErrMissingArgument) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrUnknownParameter)
}

// IsExecutionError reports whether err occurred while a run was executing.
func IsExecutionError(err error) bool {
	return errors.Is(err, ErrStepFailed) || errors.Is(err, ErrMissingOutput)
}

// IsReportingError reports whether err is confined to the reporting layer
// and therefore leaves the run's lifecycle state untouched.
func IsReportingError(err error) bool {
	return errors.Is(err, ErrResultExtraction)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrFileNotStaged)
}

// IsContextError reports whether err came from context cancellation.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Error extraction helpers

func GetRunID(err error) (string, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re.RunID, true
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.RunID, true
	}
	return "", false
}

func GetColumn(err error) (string, bool) {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Column, true
	}
	return "", false
}

func GetParameter(err error) (string, bool) {
	var ae *ArgumentError
	if errors.As(err, &ae) {
		return ae.Parameter, true
	}
	return "", false
}

// Re-exports so callers don't need to import both this package and stdlib
// errors for wrapping checks.

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func New(text string) error {
	return errors.New(text)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}
