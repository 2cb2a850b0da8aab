// internal/workflow/workflow.go
//
// Defines the on-disk layout used by reelscript.
// Run snapshots, journals and exported outputs live under .reelscript/runs/<run-id>/.

package workflow

import (
	"os"
	"path/filepath"
	"strings"
)

// Directory names within .reelscript/
const (
	RunsDir      = "runs"
	LogsDir      = "logs"
	WorkflowsDir = "workflows"
)

// File names for per-run files
const (
	FileState   = "state.json"
	FileJournal = "journal.log"
	FileProcess = "reelscript.log"
)

// Workflow resolves paths inside the .reelscript directory.
type Workflow struct {
	// Base path to the .reelscript directory
	dataDir string
}

// New creates a new Workflow layout rooted at dataDir.
func New(dataDir string) *Workflow {
	return &Workflow{
		dataDir: dataDir,
	}
}

// Dir returns the base data directory path
func (w *Workflow) Dir() string {
	return w.dataDir
}

// RunsDir returns the directory that holds one folder per run
func (w *Workflow) RunsDir() string {
	return filepath.Join(w.dataDir, RunsDir)
}

// RunDir returns the folder for a single run
func (w *Workflow) RunDir(runID string) string {
	return filepath.Join(w.RunsDir(), sanitizeRunID(runID))
}

// StatePath returns the engine snapshot path for a run
func (w *Workflow) StatePath(runID string) string {
	return filepath.Join(w.RunDir(runID), FileState)
}

// JournalPath returns the logbook path for a run
func (w *Workflow) JournalPath(runID string) string {
	return filepath.Join(w.RunDir(runID), FileJournal)
}

// LogsDir returns the process log directory
func (w *Workflow) LogsDir() string {
	return filepath.Join(w.dataDir, LogsDir)
}

// LogPath returns the process log file path
func (w *Workflow) LogPath() string {
	return filepath.Join(w.LogsDir(), FileProcess)
}

// DefinitionsDir returns the directory scanned for YAML chain definitions
func (w *Workflow) DefinitionsDir() string {
	return filepath.Join(w.dataDir, WorkflowsDir)
}

// Initialize creates the directory structure
func (w *Workflow) Initialize() error {
	dirs := []string{
		w.Dir(),
		w.RunsDir(),
		w.LogsDir(),
		w.DefinitionsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

// sanitizeRunID keeps run folders inside RunsDir even for hostile identifiers.
func sanitizeRunID(runID string) string {
	id := strings.TrimSpace(runID)
	id = strings.ReplaceAll(id, string(filepath.Separator), "-")
	id = strings.ReplaceAll(id, "/", "-")
	id = strings.Trim(id, ".")
	if id == "" {
		return "unnamed"
	}
	return id
}
