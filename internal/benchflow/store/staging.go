// Package store manages the files behind workflow runs: uploaded content
// waiting in the staging area, and the per-run working directories assembled
// from template sources and staged uploads.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/benchflow/benchflow/pkg/logger"
)

// Staging holds uploaded files until a run submission claims them. Each
// upload gets a random name so concurrent uploads of the same filename never
// collide.
type Staging struct {
	dir    string
	logger *logger.Logger
}

func NewStaging(dir string, log *logger.Logger) (*Staging, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &Staging{
		dir:    dir,
		logger: log.WithField("component", "staging"),
	}, nil
}

// Stage writes the reader's content into the staging area and returns the
// absolute staged path.
func (s *Staging) Stage(r io.Reader) (string, error) {
	path := filepath.Join(s.dir, uuid.NewString())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close staged file: %w", err)
	}
	s.logger.Debug("file staged", "path", path)
	return path, nil
}

// StageFile copies a local file into the staging area.
func (s *Staging) StageFile(source string) (string, error) {
	f, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()
	return s.Stage(f)
}

// Exists reports whether staged content is present at the given path.
func (s *Staging) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes staged content. Claimed uploads are removed once the run
// directory has been materialized.
func (s *Staging) Remove(path string) error {
	return os.Remove(path)
}
