package artifact

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrAlreadyWritten is returned when a key is written twice within a run.
	ErrAlreadyWritten = errors.New("artifact: key already written")
	// ErrNotFound is returned when a typed accessor finds no value.
	ErrNotFound = errors.New("artifact: key not found")
	// ErrTypeMismatch is returned when a stored value has an unexpected type.
	ErrTypeMismatch = errors.New("artifact: unexpected value type")
)

// Reader is the read-only view of a run's state handed to tasks.
type Reader interface {
	Get(key string) (any, bool)
	Has(key string) bool
}

// Entry is one key/value pair in write order.
type Entry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// RunState is the write-once bag holding task outputs for a single run.
type RunState struct {
	mu     sync.RWMutex
	values map[string]any
	order  []string
}

// NewRunState returns an empty bag.
func NewRunState() *RunState {
	return &RunState{values: map[string]any{}}
}

// Put stores value under key. Each key may be written at most once.
func (s *RunState) Put(key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("artifact: key is required")
	}
	if value == nil {
		return fmt.Errorf("artifact: nil value for %s", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyWritten, key)
	}
	s.values[key] = value
	s.order = append(s.order, key)
	return nil
}

// Get returns the value stored under key.
func (s *RunState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

// Has reports whether key has been written.
func (s *RunState) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Keys returns the written keys in write order.
func (s *RunState) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.order...)
}

// Len returns how many keys have been written.
func (s *RunState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// CandidatesFrom reads the candidate list.
func CandidatesFrom(r Reader) ([]CandidateItem, error) {
	raw, ok := r.Get(Candidates.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, Candidates.ID)
	}
	items, ok := raw.([]CandidateItem)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %T", ErrTypeMismatch, Candidates.ID, raw)
	}
	return append([]CandidateItem{}, items...), nil
}

// SelectedFrom reads the selected item.
func SelectedFrom(r Reader) (SelectedItem, error) {
	raw, ok := r.Get(Selected.ID)
	if !ok {
		return SelectedItem{}, fmt.Errorf("%w: %s", ErrNotFound, Selected.ID)
	}
	item, ok := raw.(SelectedItem)
	if !ok {
		return SelectedItem{}, fmt.Errorf("%w: %s holds %T", ErrTypeMismatch, Selected.ID, raw)
	}
	return item, nil
}

// TextFrom reads a text artifact such as the extracted content.
func TextFrom(r Reader, ref Ref) (string, error) {
	raw, ok := r.Get(ref.ID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref.ID)
	}
	text, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s holds %T", ErrTypeMismatch, ref.ID, raw)
	}
	return text, nil
}
