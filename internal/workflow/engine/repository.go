package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/kingrea/reelscript/internal/workflow"
)

// ErrStateNotFound is returned when no persisted run state exists yet.
var ErrStateNotFound = errors.New("workflow engine: state not found")

// StateStore persists run state snapshots.
type StateStore interface {
	Load(runID string) (State, error)
	Save(State) error
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: map[string]State{}}
}

// Load returns the last snapshot saved for runID.
func (m *MemoryStore) Load(runID string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[runID]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state.clone(), nil
}

// Save records a copy of the snapshot.
func (m *MemoryStore) Save(state State) error {
	if state.RunID == "" {
		return fmt.Errorf("workflow engine: run id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.RunID] = state.clone()
	return nil
}

// Repository stores run state under .reelscript/runs/<run-id>/state.json.
type Repository struct {
	workflow *workflow.Workflow
}

// NewRepository creates a repository rooted at the data directory layout.
func NewRepository(wf *workflow.Workflow) *Repository {
	return &Repository{workflow: wf}
}

// Load reads the persisted state if present.
func (r *Repository) Load(runID string) (State, error) {
	data, err := os.ReadFile(r.workflow.StatePath(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, ErrStateNotFound
		}
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, err
	}
	return state, nil
}

// Save writes the run state to disk, replacing the file via rename.
func (r *Repository) Save(state State) error {
	if state.RunID == "" {
		return fmt.Errorf("workflow engine: run id is required")
	}
	path := r.workflow.StatePath(state.RunID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
