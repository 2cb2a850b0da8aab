package listing

import (
	"context"
	"fmt"

	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/task"
)

const (
	taskID      = "list-videos"
	taskVersion = "1.0.0"
)

// ID is the registry identifier of the task.
const ID = taskID

// Lister fetches candidate items from a collection.
type Lister interface {
	ListItems(ctx context.Context, collectionID string, pageSize int) ([]artifact.CandidateItem, error)
}

// Task lists the videos of the configured playlist.
type Task struct {
	*task.Base
	lister       Lister
	collectionID string
	pageSize     int
}

// Option customizes the task.
type Option func(*Task)

// WithLister sets the listing adapter.
func WithLister(l Lister) Option {
	return func(t *Task) {
		t.lister = l
	}
}

// WithCollection sets the playlist id.
func WithCollection(id string) Option {
	return func(t *Task) {
		t.collectionID = id
	}
}

// WithPageSize sets the page size; the adapter clamps it to its limits.
func WithPageSize(n int) Option {
	return func(t *Task) {
		t.pageSize = n
	}
}

// Register installs the task factory into the registry. Chain definitions
// may override the playlist with `collection` and the page size with
// `page_size`.
func Register(reg *task.Registry, opts ...Option) {
	if reg == nil {
		return
	}
	reg.MustRegister(taskID, func(cfg task.Config) (task.Task, error) {
		t := New(opts...)
		if v, ok := cfg["collection"].(string); ok && v != "" {
			t.collectionID = v
		}
		if v, ok := cfg["page_size"].(int); ok && v > 0 {
			t.pageSize = v
		}
		return t, nil
	})
}

// New constructs the task with its IO contract.
func New(opts ...Option) *Task {
	info := task.Info{
		ID:          taskID,
		Name:        "List Videos",
		Description: "Lists the videos of a YouTube playlist.",
		Version:     taskVersion,
		Phase:       task.PhaseListing,
	}
	base := task.NewBase(info)
	base.SetOutput(artifact.Candidates)
	t := &Task{Base: &base}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run calls the adapter once; there are no retries.
func (t *Task) Run(ctx context.Context, rc *task.RunContext) (any, error) {
	if t.lister == nil {
		return nil, fmt.Errorf("%s: %w: no listing adapter configured", taskID, task.ErrConfigurationMissing)
	}
	items, err := t.lister.ListItems(ctx, t.collectionID, t.pageSize)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", taskID, task.ErrEmptyResult)
	}
	if rc != nil {
		rc.Logbook.Info("%s: %d candidates from %s", taskID, len(items), t.collectionID)
	}
	return items, nil
}
