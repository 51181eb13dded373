package results

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchflow/benchflow/internal/benchflow/template"
	"github.com/benchflow/benchflow/pkg/errors"
)

func accuracySchema() *template.ResultSchema {
	return &template.ResultSchema{
		File: "results/analytics.json",
		Columns: []template.ResultColumn{
			{Name: "mean_accuracy", Label: "Accuracy (mean)", Path: "accuracy/mean", DType: template.DTypeFloat},
			{Name: "mean_auc", Label: "AUC (mean)", Path: "auc/mean", DType: template.DTypeFloat},
		},
		OrderBy: []template.SortKey{{Name: "mean_accuracy"}},
	}
}

func writeResultFile(t *testing.T, runDir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "results"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "results", "analytics.json"), []byte(content), 0o644))
}

func TestExtractNestedPaths(t *testing.T) {
	runDir := t.TempDir()
	writeResultFile(t, runDir, `{"accuracy": {"mean": 0.95, "std": 0.01}, "auc": {"mean": 0.87}}`)

	values, err := Extract(runDir, accuracySchema(), "r1")
	require.NoError(t, err)

	assert.Equal(t, 0.95, values["mean_accuracy"])
	assert.Equal(t, 0.87, values["mean_auc"])
}

func TestExtractReportsMissingPathPerColumn(t *testing.T) {
	runDir := t.TempDir()
	writeResultFile(t, runDir, `{"accuracy": {"mean": 0.95}}`)

	values, err := Extract(runDir, accuracySchema(), "r1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrResultExtraction))
	column, ok := errors.GetColumn(err)
	require.True(t, ok)
	assert.Equal(t, "mean_auc", column)

	// The remaining columns still extract; the run stays rankable.
	require.NotNil(t, values)
	assert.Equal(t, 0.95, values["mean_accuracy"])
	_, ok = values["mean_auc"]
	assert.False(t, ok)
}

func TestExtractMissingFile(t *testing.T) {
	_, err := Extract(t.TempDir(), accuracySchema(), "r1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrResultExtraction))
	runID, ok := errors.GetRunID(err)
	require.True(t, ok)
	assert.Equal(t, "r1", runID)
}

func TestExtractMalformedJSON(t *testing.T) {
	runDir := t.TempDir()
	writeResultFile(t, runDir, `{not json`)

	_, err := Extract(runDir, accuracySchema(), "r1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrResultExtraction))
}

func TestExtractReportsTypeMismatchPerColumn(t *testing.T) {
	runDir := t.TempDir()
	writeResultFile(t, runDir, `{"accuracy": {"mean": "high"}, "auc": {"mean": 0.8}}`)

	values, err := Extract(runDir, accuracySchema(), "r1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrResultExtraction))
	column, ok := errors.GetColumn(err)
	require.True(t, ok)
	assert.Equal(t, "mean_accuracy", column)

	require.NotNil(t, values)
	assert.Equal(t, 0.8, values["mean_auc"])
	_, ok = values["mean_accuracy"]
	assert.False(t, ok)
}

func TestExtractIntColumn(t *testing.T) {
	runDir := t.TempDir()
	writeResultFile(t, runDir, `{"count": 42}`)

	schema := &template.ResultSchema{
		File:    "results/analytics.json",
		Columns: []template.ResultColumn{{Name: "count", Label: "Count", Path: "count", DType: template.DTypeInt}},
	}
	values, err := Extract(runDir, schema, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), values["count"])
}

func TestRankingDescendingByDefault(t *testing.T) {
	lb := NewLeaderboard(accuracySchema())
	lb.Add(Entry{RunID: "low", CreatedSeq: 1, Values: map[string]interface{}{"mean_accuracy": 0.81}})
	lb.Add(Entry{RunID: "high", CreatedSeq: 2, Values: map[string]interface{}{"mean_accuracy": 0.95}})
	lb.Add(Entry{RunID: "mid", CreatedSeq: 3, Values: map[string]interface{}{"mean_accuracy": 0.88}})

	ranking := lb.Ranking()
	require.Len(t, ranking, 3)
	assert.Equal(t, "high", ranking[0].RunID)
	assert.Equal(t, "mid", ranking[1].RunID)
	assert.Equal(t, "low", ranking[2].RunID)
}

func TestRankingAscendingKey(t *testing.T) {
	asc := false
	schema := accuracySchema()
	schema.OrderBy = []template.SortKey{{Name: "mean_accuracy", SortDesc: &asc}}

	lb := NewLeaderboard(schema)
	lb.Add(Entry{RunID: "high", CreatedSeq: 1, Values: map[string]interface{}{"mean_accuracy": 0.95}})
	lb.Add(Entry{RunID: "low", CreatedSeq: 2, Values: map[string]interface{}{"mean_accuracy": 0.81}})

	ranking := lb.Ranking()
	assert.Equal(t, "low", ranking[0].RunID)
	assert.Equal(t, "high", ranking[1].RunID)
}

func TestRankingMissingValuesSortLast(t *testing.T) {
	lb := NewLeaderboard(accuracySchema())
	lb.Add(Entry{RunID: "unscored", CreatedSeq: 1, Values: map[string]interface{}{}})
	lb.Add(Entry{RunID: "scored", CreatedSeq: 2, Values: map[string]interface{}{"mean_accuracy": 0.5}})

	ranking := lb.Ranking()
	assert.Equal(t, "scored", ranking[0].RunID)
	assert.Equal(t, "unscored", ranking[1].RunID)
}

func TestRankingTieBreaksByCreationOrder(t *testing.T) {
	lb := NewLeaderboard(accuracySchema())
	lb.Add(Entry{RunID: "second", CreatedSeq: 2, Values: map[string]interface{}{"mean_accuracy": 0.9}})
	lb.Add(Entry{RunID: "first", CreatedSeq: 1, Values: map[string]interface{}{"mean_accuracy": 0.9}})

	ranking := lb.Ranking()
	assert.Equal(t, "first", ranking[0].RunID)
	assert.Equal(t, "second", ranking[1].RunID)
}

func TestRankingMultipleKeys(t *testing.T) {
	schema := accuracySchema()
	schema.OrderBy = []template.SortKey{{Name: "mean_accuracy"}, {Name: "mean_auc"}}

	lb := NewLeaderboard(schema)
	lb.Add(Entry{RunID: "a", CreatedSeq: 1, Values: map[string]interface{}{"mean_accuracy": 0.9, "mean_auc": 0.7}})
	lb.Add(Entry{RunID: "b", CreatedSeq: 2, Values: map[string]interface{}{"mean_accuracy": 0.9, "mean_auc": 0.8}})

	ranking := lb.Ranking()
	assert.Equal(t, "b", ranking[0].RunID)
	assert.Equal(t, "a", ranking[1].RunID)
}

func TestRankingIsStableAcrossReads(t *testing.T) {
	lb := NewLeaderboard(accuracySchema())
	lb.Add(Entry{RunID: "a", CreatedSeq: 1, Values: map[string]interface{}{"mean_accuracy": 0.9}})
	lb.Add(Entry{RunID: "b", CreatedSeq: 2, Values: map[string]interface{}{"mean_accuracy": 0.8}})

	first := lb.Ranking()
	second := lb.Ranking()
	assert.Equal(t, first, second)
}
