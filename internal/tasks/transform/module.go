package transform

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kingrea/reelscript/internal/adapters/gemini"
	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/task"
)

const (
	taskID      = "generate-script"
	taskVersion = "1.0.0"

	// DefaultMaxContentChars bounds the extracted text in runes.
	DefaultMaxContentChars = 200000
)

// ID is the registry identifier of the task.
const ID = taskID

// Generator produces text from an instruction and content.
type Generator interface {
	Generate(ctx context.Context, req gemini.GenerateRequest) (string, error)
}

// Task turns extracted text into a voiceover script.
type Task struct {
	*task.Base
	generator Generator
	style     Style
	maxChars  int
}

// Option customizes the task.
type Option func(*Task)

// WithGenerator sets the generation adapter.
func WithGenerator(g Generator) Option {
	return func(t *Task) {
		t.generator = g
	}
}

// WithStyle sets the style directives.
func WithStyle(s Style) Option {
	return func(t *Task) {
		t.style = s
	}
}

// WithMaxContentChars sets the rune limit; zero disables it.
func WithMaxContentChars(n int) Option {
	return func(t *Task) {
		if n >= 0 {
			t.maxChars = n
		}
	}
}

// Register installs the task factory into the registry. Chain definitions may
// override `audience`, `tone`, `focus` and `max_words`.
func Register(reg *task.Registry, opts ...Option) {
	if reg == nil {
		return
	}
	reg.MustRegister(taskID, func(cfg task.Config) (task.Task, error) {
		t := New(opts...)
		if v, ok := cfg["audience"].(string); ok && v != "" {
			t.style.Audience = v
		}
		if v, ok := cfg["tone"].(string); ok && v != "" {
			t.style.Tone = v
		}
		if v, ok := cfg["focus"].(string); ok && v != "" {
			t.style.Focus = v
		}
		if v, ok := cfg["max_words"].(int); ok && v > 0 {
			t.style.MaxWords = v
		}
		return t, nil
	})
}

// New constructs the task with its IO contract.
func New(opts ...Option) *Task {
	info := task.Info{
		ID:          taskID,
		Name:        "Generate Script",
		Description: "Transforms extracted text into a voiceover script for short videos.",
		Version:     taskVersion,
		Phase:       task.PhaseTransforming,
	}
	base := task.NewBase(info)
	base.SetInputs(artifact.ExtractedContent)
	base.SetOutput(artifact.GeneratedArtifact)
	t := &Task{Base: &base, style: DefaultStyle(), maxChars: DefaultMaxContentChars}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run validates the text and calls the generator once.
func (t *Task) Run(ctx context.Context, rc *task.RunContext) (any, error) {
	if t.generator == nil {
		return nil, fmt.Errorf("%s: %w: no generation adapter configured", taskID, task.ErrConfigurationMissing)
	}
	if rc == nil || rc.State == nil {
		return nil, fmt.Errorf("%s: %w", taskID, task.ErrInputsMissing)
	}
	text, err := artifact.TextFrom(rc.State, artifact.ExtractedContent)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", taskID, task.ErrInputsMissing, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: %w", taskID, task.ErrEmptyContent)
	}
	if n := utf8.RuneCountInString(text); t.maxChars > 0 && n > t.maxChars {
		return nil, fmt.Errorf("%s: %w: %d characters exceeds %d", taskID, task.ErrContentTooLarge, n, t.maxChars)
	}
	script, err := t.generator.Generate(ctx, gemini.GenerateRequest{
		Instruction: t.style.Instruction(),
		Content:     text,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("%s: %w: empty script", taskID, task.ErrGenerationFailure)
	}
	rc.Logbook.Info("%s: %d words generated", taskID, len(strings.Fields(script)))
	return script, nil
}
