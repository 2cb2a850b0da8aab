package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/logbook"
	"github.com/kingrea/reelscript/internal/logging"
	"github.com/kingrea/reelscript/internal/task"
	"github.com/kingrea/reelscript/internal/workflow"
	"github.com/kingrea/reelscript/internal/workflow/resolver"
	"github.com/kingrea/reelscript/internal/workflow/scheduler"
)

// Engine coordinates the resolver and scheduler while persisting run state.
// One Engine may drive many runs concurrently; each run owns its resolver,
// run state and random source.
type Engine struct {
	registry *task.Registry
	repo     StateStore
	logger   *logging.Logger
	clock    func() time.Time
	newID    func() string
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithIDGenerator overrides how run IDs are minted.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// WithLogger mirrors phase transitions into the process log.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New wires an engine to the task registry and persistence store.
func New(registry *task.Registry, repo StateStore, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("workflow engine: task registry is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("workflow engine: state store is required")
	}
	engine := &Engine{
		registry: registry,
		repo:     repo,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Timeouts bounds each working phase. Zero means no deadline beyond the
// caller's context.
type Timeouts struct {
	Listing    time.Duration
	Selecting  time.Duration
	Extraction time.Duration
	Transform  time.Duration
}

// DefaultTimeouts returns the built-in per-phase deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Listing:    30 * time.Second,
		Extraction: 5 * time.Minute,
		Transform:  2 * time.Minute,
	}
}

// For returns the deadline for a phase.
func (t Timeouts) For(phase task.Phase) time.Duration {
	switch phase {
	case task.PhaseListing:
		return t.Listing
	case task.PhaseSelecting:
		return t.Selecting
	case task.PhaseExtracting:
		return t.Extraction
	case task.PhaseTransforming:
		return t.Transform
	default:
		return 0
	}
}

// Merge overlays non-zero values from override.
func (t Timeouts) Merge(override Timeouts) Timeouts {
	if override.Listing > 0 {
		t.Listing = override.Listing
	}
	if override.Selecting > 0 {
		t.Selecting = override.Selecting
	}
	if override.Extraction > 0 {
		t.Extraction = override.Extraction
	}
	if override.Transform > 0 {
		t.Transform = override.Transform
	}
	return t
}

// StartRequest describes one run.
type StartRequest struct {
	Definition workflow.Definition
	// Target is the state key the run must produce. Defaults to the
	// generated artifact.
	Target string
	// Seed entries are written before routing; their producers are skipped.
	Seed     []artifact.Entry
	Timeouts Timeouts
	Rand     *rand.Rand
	Logbook  *logbook.Logbook
	// RunID overrides the generated identifier.
	RunID string
}

// Run drives one chain run to done or failed. The returned run state holds
// every value written during the run. On failure the error is a
// *task.Failure wrapping a taxonomy sentinel.
func (e *Engine) Run(ctx context.Context, req StartRequest) (State, *artifact.RunState, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := resolver.New(req.Definition, e.registry)
	if err != nil {
		return State{}, nil, err
	}
	target := req.Target
	if target == "" {
		target = artifact.GeneratedArtifact.ID
	}
	runState := artifact.NewRunState()
	seeded := make([]string, 0, len(req.Seed))
	for _, entry := range req.Seed {
		if err := runState.Put(entry.Key, entry.Value); err != nil {
			return State{}, nil, fmt.Errorf("workflow engine: seed %s: %w", entry.Key, err)
		}
		seeded = append(seeded, entry.Key)
	}
	if err := res.Refresh(runState); err != nil {
		return State{}, nil, err
	}
	plan, err := res.Plan(target)
	if err != nil {
		return State{}, nil, err
	}
	sched, err := scheduler.New(res)
	if err != nil {
		return State{}, nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = e.newID()
	}
	rng := req.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(e.now().UnixNano()))
	}
	book := req.Logbook
	if book == nil {
		book = logbook.NewMemory()
	}
	now := e.now()
	r := &run{
		engine:   e,
		resolver: res,
		state: State{
			RunID:      runID,
			WorkflowID: res.Definition().ID,
			Target:     target,
			Phase:      task.PhaseIdle,
			Plan:       nodeIDs(plan),
			Seeded:     seeded,
			StartedAt:  now,
			UpdatedAt:  now,
		},
		values: runState,
		rc:     task.NewRunContext(runID, runState, rng, book),
		book:   book,
	}
	book.Info("run %s: target %s via %v", runID, target, r.state.Plan)
	if err := r.save(); err != nil {
		return r.state, runState, err
	}
	err = r.execute(ctx, sched, plan, req.Timeouts)
	return r.state.clone(), runState, err
}

// View returns the last persisted snapshot of a run.
func (e *Engine) View(runID string) (State, error) {
	return e.repo.Load(runID)
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

type run struct {
	engine   *Engine
	resolver *resolver.Resolver
	state    State
	values   *artifact.RunState
	rc       *task.RunContext
	book     *logbook.Logbook
}

func (r *run) execute(ctx context.Context, sched *scheduler.Scheduler, plan []*resolver.Node, timeouts Timeouts) error {
	for {
		if err := ctx.Err(); err != nil {
			return r.fail("", cancelled(err))
		}
		decision, err := sched.Next(scheduler.Request{Plan: plan, State: r.values})
		r.state.Skipped = decision.Skipped
		if err != nil {
			return r.fail("", err)
		}
		if decision.Done() {
			break
		}
		node := decision.Node
		info := node.Task.Info()
		if err := r.transition(info.Phase, node.ID, info.Name); err != nil {
			return err
		}
		started := r.engine.now()
		value, runErr := r.runTask(ctx, node, timeouts.For(info.Phase))
		record := TaskRun{Phase: info.Phase, StartedAt: started, FinishedAt: r.engine.now()}
		if err := ctx.Err(); err != nil {
			// The run was cancelled while the task was in flight; any result is dropped.
			runErr = cancelled(err)
		}
		if runErr != nil {
			classified := task.Classify(info.Phase, runErr)
			record.Error = classified.Error()
			r.recordRun(node.ID, record)
			return r.fail(node.ID, classified)
		}
		if value == nil {
			record.Error = "no value returned"
			r.recordRun(node.ID, record)
			return r.fail(node.ID, fmt.Errorf("workflow engine: task %s returned no value", node.ID))
		}
		out := node.Output().ID
		if err := r.values.Put(out, value); err != nil {
			record.Error = err.Error()
			r.recordRun(node.ID, record)
			return r.fail(node.ID, err)
		}
		record.Output = out
		r.recordRun(node.ID, record)
		r.book.Info("%s wrote %s in %s", node.ID, out, record.Duration().Round(time.Millisecond))
	}
	return r.transition(task.PhaseDone, "", "")
}

func (r *run) runTask(ctx context.Context, node *resolver.Node, timeout time.Duration) (any, error) {
	taskCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return node.Task.Run(taskCtx, r.rc)
}

func (r *run) recordRun(id string, record TaskRun) {
	if r.state.Runs == nil {
		r.state.Runs = make(map[string]TaskRun)
	}
	r.state.Runs[id] = record
}

// fail moves the run to failed and returns the failure for the caller.
func (r *run) fail(taskID string, err error) error {
	failure := &task.Failure{Phase: r.state.Phase, TaskID: taskID, Err: err}
	r.state.Error = err.Error()
	if reason := task.Reason(err); reason != nil {
		r.state.Reason = reason.Error()
	}
	r.state.Retryable = task.Retryable(err)
	r.state.FailedTask = taskID
	r.book.Error("%v", failure)
	if saveErr := r.transition(task.PhaseFailed, taskID, err.Error()); saveErr != nil {
		return errors.Join(failure, saveErr)
	}
	return failure
}

func (r *run) transition(to task.Phase, taskID, note string) error {
	now := r.engine.now()
	tr := Transition{From: r.state.Phase, To: to, TaskID: taskID, Note: note, At: now}
	r.state.Transitions = append(r.state.Transitions, tr)
	r.state.Phase = to
	r.state.UpdatedAt = now
	if taskID != "" {
		r.book.Info("phase %s -> %s (%s)", tr.From, tr.To, taskID)
	} else {
		r.book.Info("phase %s -> %s", tr.From, tr.To)
	}
	r.engine.logger.Printf("run %s: %s -> %s %s", r.state.RunID, tr.From, tr.To, taskID)
	return r.save()
}

func (r *run) save() error {
	if err := r.resolver.Refresh(r.values); err != nil {
		return err
	}
	r.state.Keys = r.values.Keys()
	r.state.Nodes = r.nodeStatuses()
	if err := r.engine.repo.Save(r.state); err != nil {
		return fmt.Errorf("workflow engine: persist state: %w", err)
	}
	return nil
}

func (r *run) nodeStatuses() []TaskStatus {
	nodes := r.resolver.Nodes()
	statuses := make([]TaskStatus, 0, len(nodes))
	for _, node := range nodes {
		info := node.Task.Info()
		status := TaskStatus{
			ID:           node.ID,
			TaskID:       info.ID,
			Name:         info.Name,
			Version:      info.Version,
			Phase:        info.Phase,
			Inputs:       refIDs(node.Task.Inputs()),
			Output:       node.Output().ID,
			State:        node.State,
			Dependencies: cloneStrings(node.Dependencies),
			BlockedBy:    cloneStrings(node.BlockedBy),
		}
		if last, ok := r.state.Runs[node.ID]; ok {
			copyRun := last
			status.LastRun = &copyRun
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %v", task.ErrCancelled, err)
}

func refIDs(refs []artifact.Ref) []string {
	if len(refs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids
}

func nodeIDs(nodes []*resolver.Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.ID)
	}
	return ids
}
