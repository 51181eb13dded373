package postproc

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/benchflow/benchflow/internal/benchflow/run"
	"github.com/benchflow/benchflow/pkg/errors"
	"github.com/benchflow/benchflow/pkg/logger"
)

// RunsManifest is written into the aggregation directory so the
// post-processing workflow can enumerate the runs it is aggregating.
const RunsManifest = "runs.json"

// ManifestEntry describes one aggregated run in the manifest.
type ManifestEntry struct {
	ID        string            `json:"id"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// Aggregator assembles aggregation directories for post-processing runs.
type Aggregator struct {
	logger *logger.Logger
}

func NewAggregator(log *logger.Logger) *Aggregator {
	return &Aggregator{logger: log.WithField("component", "aggregator")}
}

// Build creates dest with one subdirectory per successful run, holding that
// run's copies of the declared input files, plus a manifest of the included
// runs. Failed and canceled runs contribute nothing. A successful run that
// is missing a declared input fails the aggregation.
func (a *Aggregator) Build(dest string, inputs []string, runs []*run.Run) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", errors.ErrAggregationFailed, dest, err)
	}

	manifest := make([]ManifestEntry, 0, len(runs))
	for _, r := range runs {
		if !r.Succeeded() {
			continue
		}
		runDest := filepath.Join(dest, r.ID)
		for _, input := range inputs {
			source := filepath.Join(r.Dir, input)
			if err := copyFile(source, filepath.Join(runDest, input)); err != nil {
				return fmt.Errorf("%w: run %s input %s: %v", errors.ErrAggregationFailed, r.ID, input, err)
			}
		}
		manifest = append(manifest, ManifestEntry{ID: r.ID, Arguments: r.Arguments})
		a.logger.Debug("run aggregated", "runId", r.ID)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode manifest: %v", errors.ErrAggregationFailed, err)
	}
	if err := os.WriteFile(filepath.Join(dest, RunsManifest), data, 0o644); err != nil {
		return fmt.Errorf("%w: write manifest: %v", errors.ErrAggregationFailed, err)
	}

	a.logger.Info("aggregation directory built", "dest", dest, "runs", len(manifest))
	return nil
}

func copyFile(source, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
