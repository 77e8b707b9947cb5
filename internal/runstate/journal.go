// Package runstate journals run outcomes to the local state directory.
// Records are purely observational: control flow never reads them back,
// and cleanup removes them at the end of the run.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/forgefleet/archforge/internal/models"
	"github.com/forgefleet/archforge/pkg/logger"
)

// Journal owns one run's state directory, <stateDir>/runs/<runID>.
type Journal struct {
	runID  string
	dir    string
	logger *logger.Logger
}

// NewJournal allocates a run ID and creates its directory.
func NewJournal(stateDir string, log *logger.Logger) (*Journal, error) {
	if log == nil {
		log = logger.Default()
	}
	runID := uuid.NewString()
	dir := filepath.Join(stateDir, "runs", runID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	return &Journal{
		runID:  runID,
		dir:    dir,
		logger: log.WithComponent("runstate").WithRun(runID),
	}, nil
}

// RunID returns the run's identifier.
func (j *Journal) RunID() string {
	return j.runID
}

// Dir returns the run's state directory.
func (j *Journal) Dir() string {
	return j.dir
}

// RecordTask writes one task's terminal record. The file is named by the
// sanitized architecture, which validation guarantees is unique per run.
func (j *Journal) RecordTask(task models.BuildTask) error {
	name := fmt.Sprintf("task-%s.json", models.SanitizeArch(task.Arch))
	return j.writeRecord(name, task)
}

// RecordRun writes the run-level record.
func (j *Journal) RecordRun(result models.RunResult) error {
	return j.writeRecord("run.json", result)
}

func (j *Journal) writeRecord(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	path := filepath.Join(j.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	j.logger.Debug("journal record written", "file", name)
	return nil
}

// Remove deletes the run's state directory and everything in it.
func (j *Journal) Remove() error {
	if err := os.RemoveAll(j.dir); err != nil {
		return fmt.Errorf("removing run directory: %w", err)
	}
	return nil
}
