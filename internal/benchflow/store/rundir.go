package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/benchflow/benchflow/internal/benchflow/binder"
	"github.com/benchflow/benchflow/pkg/logger"
)

// RunDirs creates and populates per-run working directories under a common
// base directory.
type RunDirs struct {
	base   string
	logger *logger.Logger
}

func NewRunDirs(base string, log *logger.Logger) (*RunDirs, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create runs directory: %w", err)
	}
	return &RunDirs{
		base:   base,
		logger: log.WithField("component", "run-dirs"),
	}, nil
}

// Path returns the working directory for a run id without creating it.
func (d *RunDirs) Path(runID string) string {
	return filepath.Join(d.base, runID)
}

// Create makes the working directory for a run.
func (d *RunDirs) Create(runID string) (string, error) {
	dir := d.Path(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}
	return dir, nil
}

// Materialize assembles a run directory: every input file listed by the
// bound template is copied from the template source tree, except those a
// staging mapping overrides with uploaded content. Targets keep their
// relative layout inside the run directory.
func (d *RunDirs) Materialize(runDir, templateDir string, inputs []string, stagings []binder.FileMapping) error {
	staged := make(map[string]string, len(stagings))
	for _, m := range stagings {
		if m.Source != "" {
			staged[m.Target] = m.Source
		}
	}

	for _, target := range inputs {
		source, fromUpload := staged[target]
		if !fromUpload {
			source = filepath.Join(templateDir, target)
		}
		if err := copyInto(source, filepath.Join(runDir, target)); err != nil {
			return fmt.Errorf("materialize %s: %w", target, err)
		}
		d.logger.Debug("input materialized", "target", target, "fromUpload", fromUpload)
	}
	return nil
}

// Remove deletes a run directory and everything beneath it.
func (d *RunDirs) Remove(runID string) error {
	return os.RemoveAll(d.Path(runID))
}

func copyInto(source, dest string) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyTree(source, dest)
	}
	return copyFile(source, dest)
}

func copyTree(source, dest string) error {
	return filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
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
