// Package tasks wires the built-in tasks into a registry and declares the
// default reel-script chain: list-videos -> choose-video -> extract-text ->
// generate-script.
package tasks

import (
	"github.com/kingrea/reelscript/internal/task"
	"github.com/kingrea/reelscript/internal/tasks/extraction"
	"github.com/kingrea/reelscript/internal/tasks/listing"
	"github.com/kingrea/reelscript/internal/tasks/selection"
	"github.com/kingrea/reelscript/internal/tasks/transform"
	"github.com/kingrea/reelscript/internal/workflow"
)

// DefaultWorkflowID names the built-in chain.
const DefaultWorkflowID = "reel-script"

// Dependencies are the adapters and settings the built-in tasks need.
type Dependencies struct {
	Lister       listing.Lister
	CollectionID string
	PageSize     int

	Source      extraction.Source
	ContentType string

	Generator       transform.Generator
	Style           transform.Style
	// MaxContentChars bounds the extracted text in runes; zero disables it.
	MaxContentChars int
}

// RegisterBuiltins installs all of the built-in task factories into the
// provided registry.
func RegisterBuiltins(reg *task.Registry, deps Dependencies) {
	if reg == nil {
		return
	}
	listing.Register(reg,
		listing.WithLister(deps.Lister),
		listing.WithCollection(deps.CollectionID),
		listing.WithPageSize(deps.PageSize),
	)
	selection.Register(reg)
	extraction.Register(reg,
		extraction.WithSource(deps.Source),
		extraction.WithContentType(deps.ContentType),
	)
	transform.Register(reg,
		transform.WithGenerator(deps.Generator),
		transform.WithStyle(deps.Style),
		transform.WithMaxContentChars(deps.MaxContentChars),
	)
}

// NewRegistry returns a registry holding the built-in tasks.
func NewRegistry(deps Dependencies) *task.Registry {
	reg := task.NewRegistry()
	RegisterBuiltins(reg, deps)
	return reg
}

// DefaultDefinition returns the four-step chain.
func DefaultDefinition() workflow.Definition {
	return workflow.Definition{
		ID:          DefaultWorkflowID,
		Name:        "Reel Script",
		Description: "Turns a random playlist video into a short-video voiceover script.",
		Tasks: []workflow.TaskRef{
			{ID: listing.ID, TaskID: listing.ID, Name: "List videos"},
			{ID: selection.ID, TaskID: selection.ID, Name: "Choose video", DependsOn: []string{listing.ID}},
			{ID: extraction.ID, TaskID: extraction.ID, Name: "Extract text", DependsOn: []string{selection.ID}},
			{ID: transform.ID, TaskID: transform.ID, Name: "Generate script", DependsOn: []string{extraction.ID}},
		},
	}
}
