// Package results turns the result files of successful runs into typed
// column values and maintains the ranking over all scored runs. Extraction
// is reporting-side work: it happens after a run reached SUCCESS and its
// failures never change the run's state.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/benchflow/benchflow/internal/benchflow/template"
	"github.com/benchflow/benchflow/pkg/errors"
)

// Extract reads the run's result file and resolves every schema column
// against it. Column failures are reported per column: a path that does not
// exist in the document or a value that cannot be coerced yields an
// extraction error for that column while the remaining columns are still
// returned; the leaderboard sorts runs with missing values last. A missing
// or malformed result file fails the whole extraction with a nil map.
func Extract(runDir string, schema *template.ResultSchema, runID string) (map[string]interface{}, error) {
	data, err := os.ReadFile(filepath.Join(runDir, schema.File))
	if err != nil {
		return nil, errors.WrapExtractionError(runID, "",
			fmt.Errorf("%w: read %s: %v", errors.ErrResultExtraction, schema.File, err))
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapExtractionError(runID, "",
			fmt.Errorf("%w: parse %s: %v", errors.ErrResultExtraction, schema.File, err))
	}

	values := make(map[string]interface{}, len(schema.Columns))
	var colErrs []error
	for i := range schema.Columns {
		col := &schema.Columns[i]
		raw, found := traverse(doc, col.JSONPath())
		if !found {
			colErrs = append(colErrs, errors.WrapExtractionError(runID, col.Name,
				fmt.Errorf("%w: column %s: path %s not found in %s",
					errors.ErrResultExtraction, col.Name, strings.Join(col.JSONPath(), "/"), schema.File)))
			continue
		}
		value, err := coerce(raw, col.DType)
		if err != nil {
			colErrs = append(colErrs, errors.WrapExtractionError(runID, col.Name,
				fmt.Errorf("%w: column %s: %v", errors.ErrResultExtraction, col.Name, err)))
			continue
		}
		values[col.Name] = value
	}
	return values, errors.Join(colErrs...)
}

// traverse walks a slash-separated path through nested JSON objects.
func traverse(doc interface{}, path []string) (interface{}, bool) {
	current := doc
	for _, key := range path {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func coerce(raw interface{}, dtype template.DType) (interface{}, error) {
	switch dtype {
	case template.DTypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case json.Number:
			return v.Float64()
		}
	case template.DTypeInt:
		switch v := raw.(type) {
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("%v is not an integer", v)
			}
			return int64(v), nil
		}
	case template.DTypeString:
		if v, ok := raw.(string); ok {
			return v, nil
		}
		return fmt.Sprintf("%v", raw), nil
	}
	return nil, fmt.Errorf("%v is not a valid %s", raw, dtype)
}
