// Package pipeline turns free-form requests into chain runs. It routes a
// prompt to a target key, seeds the alternate entry when a video is named,
// and runs independent requests concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/reelscript/internal/adapters/youtube"
	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/logbook"
	"github.com/kingrea/reelscript/internal/logging"
	"github.com/kingrea/reelscript/internal/workflow"
	"github.com/kingrea/reelscript/internal/workflow/engine"
)

// ErrBadRequest reports a request that cannot be routed to a run.
var ErrBadRequest = errors.New("pipeline: bad request")

const (
	seedTaskID = "request"
	// journalTail is how many journal lines a failed Result carries.
	journalTail = 8
)

// Options tune a single run.
type Options struct {
	// Seed makes the random selection reproducible.
	Seed *int64
	// Timeouts override the controller defaults per phase. Zero fields keep
	// the default.
	Timeouts engine.Timeouts
	// Video names the video to use instead of listing and selecting one.
	Video string
	// Export writes every produced value through the artifact store.
	Export bool
}

// Request is one unit of work handed to the controller.
type Request struct {
	Prompt  string
	Target  string
	Options Options
}

// Result is the outcome of a run. Err is only set by RunMany. Journal holds
// the last lines of the run journal when the run failed.
type Result struct {
	RunID    string
	Target   string
	Value    any
	State    engine.State
	Exported []string
	Journal  []string
	Err      error
}

// Controller owns the engine and the chain definition shared by every run.
type Controller struct {
	engine      *engine.Engine
	definition  workflow.Definition
	timeouts    engine.Timeouts
	store       *artifact.Store
	layout      *workflow.Workflow
	logger      *logging.Logger
	concurrency int
	newID       func() string
}

// Option customizes a Controller.
type Option func(*Controller)

// WithTimeouts replaces the default per-phase deadlines.
func WithTimeouts(t engine.Timeouts) Option {
	return func(c *Controller) {
		c.timeouts = engine.DefaultTimeouts().Merge(t)
	}
}

// WithStore enables Options.Export.
func WithStore(store *artifact.Store) Option {
	return func(c *Controller) {
		c.store = store
	}
}

// WithJournals writes each run's journal under the workflow layout.
func WithJournals(wf *workflow.Workflow) Option {
	return func(c *Controller) {
		c.layout = wf
	}
}

// WithLogger mirrors run summaries into the process log.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithConcurrency bounds how many runs RunMany drives at once. Zero or
// negative means unbounded.
func WithConcurrency(n int) Option {
	return func(c *Controller) {
		c.concurrency = n
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// New prepares a controller for def.
func New(eng *engine.Engine, def workflow.Definition, opts ...Option) (*Controller, error) {
	if eng == nil {
		return nil, errors.New("pipeline: engine is required")
	}
	normalized, err := def.Normalized()
	if err != nil {
		return nil, err
	}
	c := &Controller{
		engine:     eng,
		definition: normalized,
		timeouts:   engine.DefaultTimeouts(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Definition returns the chain every run follows.
func (c *Controller) Definition() workflow.Definition {
	return c.definition
}

// Run executes one request and returns the value at its target key. A failed
// run returns the engine's *task.Failure unmodified alongside the partial
// result.
func (c *Controller) Run(ctx context.Context, req Request) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target, err := resolveTarget(req)
	if err != nil {
		return Result{}, err
	}
	seed, err := seedEntries(req)
	if err != nil {
		return Result{}, err
	}
	runID := c.newID()
	book, err := c.journal(runID)
	if err != nil {
		return Result{}, err
	}
	start := engine.StartRequest{
		Definition: c.definition,
		Target:     target,
		Seed:       seed,
		Timeouts:   c.timeouts.Merge(req.Options.Timeouts),
		Logbook:    book,
		RunID:      runID,
	}
	if req.Options.Seed != nil {
		start.Rand = rand.New(rand.NewSource(*req.Options.Seed))
	}

	state, values, runErr := c.engine.Run(ctx, start)
	result := Result{RunID: runID, Target: target, State: state}
	if runErr != nil {
		c.logger.Printf("run %s: %s failed: %v", runID, target, runErr)
		result.Journal, _ = book.Tail(journalTail)
		return result, runErr
	}
	value, ok := values.Get(target)
	if !ok {
		return result, fmt.Errorf("pipeline: run %s finished without %s", runID, target)
	}
	result.Value = value
	if req.Options.Export {
		if c.store == nil {
			return result, fmt.Errorf("pipeline: %w: export requested without an artifact store", ErrBadRequest)
		}
		paths, err := c.store.Export(runID, values, provenance(state))
		result.Exported = paths
		if err != nil {
			return result, err
		}
	}
	c.logger.Printf("run %s: %s ready", runID, target)
	return result, nil
}

// RunMany executes independent requests concurrently. Results keep request
// order and each carries its own error; one failure does not cancel the rest.
func (c *Controller) RunMany(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := c.Run(ctx, req)
			res.Err = err
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// View returns the persisted snapshot of a run.
func (c *Controller) View(runID string) (engine.State, error) {
	return c.engine.View(runID)
}

func (c *Controller) journal(runID string) (*logbook.Logbook, error) {
	if c.layout == nil {
		return logbook.NewMemory(), nil
	}
	book, err := logbook.New(c.layout.JournalPath(runID))
	if err != nil {
		return nil, fmt.Errorf("pipeline: open journal: %w", err)
	}
	return book, nil
}

func resolveTarget(req Request) (string, error) {
	target := strings.TrimSpace(req.Target)
	if target == "" {
		target = ParseTarget(req.Prompt)
	}
	if _, ok := artifact.Lookup(target); !ok {
		return "", fmt.Errorf("pipeline: %w: unknown target %q", ErrBadRequest, target)
	}
	return target, nil
}

func seedEntries(req Request) ([]artifact.Entry, error) {
	if raw := strings.TrimSpace(req.Options.Video); raw != "" {
		item, ok := youtube.ParseLocator(raw)
		if !ok {
			return nil, fmt.Errorf("pipeline: %w: %q is not a YouTube video", ErrBadRequest, raw)
		}
		return []artifact.Entry{{Key: artifact.Selected.ID, Value: item}}, nil
	}
	if item, ok := youtube.FindLocator(req.Prompt); ok {
		return []artifact.Entry{{Key: artifact.Selected.ID, Value: item}}, nil
	}
	return nil, nil
}

func provenance(state engine.State) func(artifact.Ref) artifact.Metadata {
	return func(ref artifact.Ref) artifact.Metadata {
		meta := artifact.Metadata{Workflow: state.WorkflowID, RunID: state.RunID}
		if slices.Contains(state.Seeded, ref.ID) {
			meta.TaskID = seedTaskID
			meta.Version = "1"
			return meta
		}
		if node, ok := state.Producer(ref.ID); ok {
			meta.TaskID = node.ID
			meta.Version = node.Version
			meta.Inputs = append([]string(nil), node.Inputs...)
		}
		return meta
	}
}
