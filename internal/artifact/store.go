package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kingrea/reelscript/internal/workflow"
)

// FileState captures the readiness of an exported artifact on disk.
type FileState string

const (
	StateMissing FileState = "missing"
	StateReady   FileState = "ready"
	StateInvalid FileState = "invalid"
	StateError   FileState = "error"
)

// CheckResult captures Store.Check results.
type CheckResult struct {
	Ref      Ref
	Path     string
	State    FileState
	Metadata *Metadata
	Err      error
}

// Store exports finished run values under .reelscript/runs/<run-id>/. The
// pipeline never reads these files back; they exist for people and tooling.
type Store struct {
	workflow *workflow.Workflow
	now      func() time.Time
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for metadata timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = clock
	}
}

// NewStore builds a store for a data directory layout.
func NewStore(wf *workflow.Workflow, opts ...StoreOption) *Store {
	store := &Store{
		workflow: wf,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Path resolves where an artifact of a run is exported.
func (s *Store) Path(runID string, ref Ref) string {
	if s == nil || s.workflow == nil {
		return ""
	}
	return filepath.Join(s.workflow.RunDir(runID), ref.FileName())
}

// Write persists a value and its metadata based on the artifact kind.
func (s *Store) Write(runID string, ref Ref, value any, meta Metadata) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	path := s.Path(runID, ref)
	if path == "" {
		return "", fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
	}
	prepared := meta.WithDefaults(ref, s.now())
	if prepared.RunID == "" {
		prepared.RunID = runID
	}
	if err := prepared.ValidateFor(ref); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	content, err := EncodeDocument(ref, prepared, value)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Check inspects an exported artifact and returns its status and metadata.
func (s *Store) Check(runID string, ref Ref) (CheckResult, error) {
	path := s.Path(runID, ref)
	if path == "" {
		err := fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Ref: ref, Path: path, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	meta, _, err := DecodeDocument(ref, data)
	if err != nil {
		return invalidResult(ref, path, err)
	}
	if meta.ArtifactID != ref.ID {
		return invalidResult(ref, path, fmt.Errorf("artifact: metadata id %s does not match %s", meta.ArtifactID, ref.ID))
	}
	return CheckResult{Ref: ref, Path: path, State: StateReady, Metadata: &meta}, nil
}

// Export writes every canonical artifact present in state and reads each file
// back through Check. provenance returns the metadata for a ref.
func (s *Store) Export(runID string, state Reader, provenance func(Ref) Metadata) ([]string, error) {
	var paths []string
	for _, ref := range Refs() {
		value, ok := state.Get(ref.ID)
		if !ok {
			continue
		}
		var meta Metadata
		if provenance != nil {
			meta = provenance(ref)
		}
		path, err := s.Write(runID, ref, value, meta)
		if err != nil {
			return paths, fmt.Errorf("artifact: export %s: %w", ref.ID, err)
		}
		written, err := s.Check(runID, ref)
		if err == nil && written.State != StateReady {
			err = fmt.Errorf("artifact: %s is %s after write", ref.ID, written.State)
		}
		if err != nil {
			return paths, fmt.Errorf("artifact: verify export %s: %w", ref.ID, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func invalidResult(ref Ref, path string, err error) (CheckResult, error) {
	return CheckResult{Ref: ref, Path: path, State: StateInvalid, Err: err}, err
}
