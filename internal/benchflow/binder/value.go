// Package binder resolves a template's two placeholder namespaces against a
// submission's arguments: the bind-time pass substitutes $[[name]] document
// wide at run creation, the run-time pass substitutes ${name} in one step's
// command strings immediately before dispatch.
package binder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benchflow/benchflow/internal/benchflow/template"
	"github.com/benchflow/benchflow/pkg/errors"
)

// Kind discriminates the variants of a parameter Value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Value is the tagged-variant argument value type. Templates are dynamic
// documents; arguments are validated and coerced into this closed
// representation once, so downstream code never re-parses raw input.
type Value struct {
	kind Kind
	str  string
	i    int64
	f    float64
	b    bool

	// file variant: staged is the absolute storage path of uploaded
	// content (empty for files already in the template source tree),
	// target is the path the file takes inside the run directory.
	staged string
	target string
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

func Int(i int64) Value {
	return Value{kind: KindInt, i: i}
}

func Float(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// File creates a file-handle value. staged is the absolute staging path of
// the uploaded content; target is the relative path the file takes inside a
// run's working directory.
func File(staged, target string) Value {
	return Value{kind: KindFile, staged: staged, target: target}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsFile() bool {
	return v.kind == KindFile
}

// StagedPath returns the staging source of a file value, empty when the file
// is part of the template source tree.
func (v Value) StagedPath() string {
	return v.staged
}

// Target returns the in-run relative path of a file value.
func (v Value) Target() string {
	return v.target
}

// Text returns the canonical textual representation substituted into the
// template document. File values render their in-run target path, never the
// staging path: command strings are shell-facing and operate inside the run
// working directory.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindFile:
		return v.target
	default:
		return ""
	}
}

// Coerce validates a raw argument value against a parameter declaration and
// converts it into the closed Value representation. Scalar raws may arrive
// as strings (CLI submissions) or as already-typed values (YAML defaults).
func Coerce(spec *template.ParameterSpec, raw interface{}) (Value, error) {
	switch spec.DType {
	case template.DTypeString:
		return coerceString(raw)
	case template.DTypeInt:
		return coerceInt(spec.Name, raw)
	case template.DTypeFloat:
		return coerceFloat(spec.Name, raw)
	case template.DTypeBool:
		return coerceBool(spec.Name, raw)
	case template.DTypeFile:
		return coerceFile(spec.Name, raw)
	default:
		return Value{}, errors.WrapArgumentError(spec.Name,
			fmt.Errorf("%w: unknown dtype %q", errors.ErrTypeMismatch, spec.DType))
	}
}

func coerceString(raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case string:
		return String(v), nil
	case bool:
		return String(strconv.FormatBool(v)), nil
	case int:
		return String(strconv.Itoa(v)), nil
	case int64:
		return String(strconv.FormatInt(v, 10)), nil
	case float64:
		return String(strconv.FormatFloat(v, 'g', -1, 64)), nil
	default:
		return String(fmt.Sprintf("%v", v)), nil
	}
}

func coerceInt(name string, raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case int:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case float64:
		if v != float64(int64(v)) {
			return Value{}, mismatch(name, raw, "int")
		}
		return Int(int64(v)), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return Value{}, mismatch(name, raw, "int")
		}
		return Int(i), nil
	default:
		return Value{}, mismatch(name, raw, "int")
	}
}

func coerceFloat(name string, raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case float64:
		return Float(v), nil
	case int:
		return Float(float64(v)), nil
	case int64:
		return Float(float64(v)), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Value{}, mismatch(name, raw, "float")
		}
		return Float(f), nil
	default:
		return Value{}, mismatch(name, raw, "float")
	}
}

func coerceBool(name string, raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case bool:
		return Bool(v), nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Value{}, mismatch(name, raw, "bool")
		}
		return Bool(b), nil
	default:
		return Value{}, mismatch(name, raw, "bool")
	}
}

func coerceFile(name string, raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case Value:
		if v.kind != KindFile {
			return Value{}, mismatch(name, raw, "file")
		}
		return v, nil
	case string:
		// A plain string for a file parameter names a path inside the
		// template source tree (the shape file defaults take).
		return File("", v), nil
	default:
		return Value{}, mismatch(name, raw, "file")
	}
}

func mismatch(name string, raw interface{}, want string) error {
	return errors.WrapArgumentError(name,
		fmt.Errorf("%w: %v is not a valid %s", errors.ErrTypeMismatch, raw, want))
}
