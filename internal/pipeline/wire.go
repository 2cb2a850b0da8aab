package pipeline

import (
	"github.com/kingrea/reelscript/internal/adapters/gemini"
	"github.com/kingrea/reelscript/internal/adapters/youtube"
	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/config"
	"github.com/kingrea/reelscript/internal/logging"
	"github.com/kingrea/reelscript/internal/tasks"
	"github.com/kingrea/reelscript/internal/tasks/extraction"
	"github.com/kingrea/reelscript/internal/tasks/transform"
	"github.com/kingrea/reelscript/internal/workflow"
	"github.com/kingrea/reelscript/internal/workflow/engine"
)

// Dependencies builds the adapters the built-in tasks need from cfg.
// Missing credentials are not an error here; the affected task fails with
// task.ErrConfigurationMissing when a run reaches it.
func Dependencies(cfg *config.Config) tasks.Dependencies {
	project := cfg.Project
	lister := youtube.New(cfg.Credentials.YouTubeAPIKey, youtube.WithBaseURL(project.YouTube.BaseURL))
	client := gemini.New(cfg.Credentials.GoogleAPIKey, gemini.Config{
		BaseURL:         project.Gemini.BaseURL,
		ExtractionModel: project.Gemini.ExtractionModel,
		GenerationModel: project.Gemini.GenerationModel,
		Temperature:     gemini.Float(project.Gemini.Temperature),
		TopP:            gemini.Float(project.Gemini.TopP),
		MaxOutputTokens: project.Gemini.MaxOutputTokens,
	})
	return tasks.Dependencies{
		Lister:       lister,
		CollectionID: cfg.Credentials.PlaylistID,
		PageSize:     project.YouTube.PageSize,
		Source:       extraction.FromGemini(client),
		Generator:    client,
		Style: transform.Style{
			Audience: project.Script.Audience,
			Tone:     project.Script.Tone,
			MaxWords: project.Script.MaxWords,
			Focus:    project.Script.Focus,
		},
		MaxContentChars: project.Limits.MaxContentChars,
	}
}

// FromConfig wires a controller that persists run state, journals and
// exports under the project's data directory.
func FromConfig(cfg *config.Config, def workflow.Definition, logger *logging.Logger, opts ...Option) (*Controller, error) {
	wf := workflow.New(cfg.DataDir)
	if err := wf.Initialize(); err != nil {
		return nil, err
	}
	eng, err := engine.New(tasks.NewRegistry(Dependencies(cfg)), engine.NewRepository(wf), engine.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	timeouts := cfg.Project.Timeouts
	base := []Option{
		WithTimeouts(engine.Timeouts{
			Listing:    timeouts.Listing.Std(),
			Extraction: timeouts.Extraction.Std(),
			Transform:  timeouts.Transform.Std(),
		}),
		WithStore(artifact.NewStore(wf)),
		WithJournals(wf),
		WithLogger(logger),
	}
	return New(eng, def, append(base, opts...)...)
}
