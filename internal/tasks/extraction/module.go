package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kingrea/reelscript/internal/adapters/gemini"
	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/task"
)

const (
	taskID      = "extract-text"
	taskVersion = "1.0.0"

	defaultContentType = "video/*"
)

// ID is the registry identifier of the task.
const ID = taskID

// Stream yields text chunks until io.EOF.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Source opens a stream over the resource at locator.
type Source interface {
	Open(ctx context.Context, locator, contentType string) (Stream, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, locator, contentType string) (Stream, error)

// Open implements Source.
func (f SourceFunc) Open(ctx context.Context, locator, contentType string) (Stream, error) {
	return f(ctx, locator, contentType)
}

// FromGemini exposes a Gemini client as a Source.
func FromGemini(client *gemini.Client) Source {
	return SourceFunc(func(ctx context.Context, locator, contentType string) (Stream, error) {
		stream, err := client.StreamContent(ctx, locator, contentType)
		if err != nil {
			return nil, err
		}
		return stream, nil
	})
}

// Task extracts the text of the selected video.
type Task struct {
	*task.Base
	source      Source
	contentType string
}

// Option customizes the task.
type Option func(*Task)

// WithSource sets the extraction adapter.
func WithSource(s Source) Option {
	return func(t *Task) {
		t.source = s
	}
}

// WithContentType overrides the media type hint sent with the locator.
func WithContentType(ct string) Option {
	return func(t *Task) {
		if ct != "" {
			t.contentType = ct
		}
	}
}

// Register installs the task factory into the registry. Chain definitions
// may set `content_type`.
func Register(reg *task.Registry, opts ...Option) {
	if reg == nil {
		return
	}
	reg.MustRegister(taskID, func(cfg task.Config) (task.Task, error) {
		t := New(opts...)
		if v, ok := cfg["content_type"].(string); ok && v != "" {
			t.contentType = v
		}
		return t, nil
	})
}

// New constructs the task with its IO contract.
func New(opts ...Option) *Task {
	info := task.Info{
		ID:          taskID,
		Name:        "Extract Text",
		Description: "Extracts the transcription of the selected video.",
		Version:     taskVersion,
		Phase:       task.PhaseExtracting,
	}
	base := task.NewBase(info)
	base.SetInputs(artifact.Selected)
	base.SetOutput(artifact.ExtractedContent)
	t := &Task{Base: &base, contentType: defaultContentType}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run streams the transcription and returns the concatenated text.
func (t *Task) Run(ctx context.Context, rc *task.RunContext) (any, error) {
	if t.source == nil {
		return nil, fmt.Errorf("%s: %w: no extraction adapter configured", taskID, task.ErrConfigurationMissing)
	}
	if rc == nil || rc.State == nil {
		return nil, fmt.Errorf("%s: %w", taskID, task.ErrInputsMissing)
	}
	selected, err := artifact.SelectedFrom(rc.State)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", taskID, task.ErrInputsMissing, err)
	}
	if err := selected.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", taskID, task.ErrInputsMissing, err)
	}
	stream, err := t.source.Open(ctx, selected.Locator, t.contentType)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var (
		b      strings.Builder
		chunks int
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if task.Reason(err) == nil {
				err = fmt.Errorf("%s: %w: %v", taskID, task.ErrExtractionIncomplete, err)
			}
			rc.Logbook.Warn("%s: stream broke after %d chunks", taskID, chunks)
			return nil, err
		}
		b.WriteString(chunk)
		chunks++
	}
	rc.Logbook.Info("%s: %d chunks, %d bytes from %s", taskID, chunks, b.Len(), selected.Locator)
	return b.String(), nil
}
