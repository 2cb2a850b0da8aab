package engine

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/logbook"
	"github.com/kingrea/reelscript/internal/task"
	"github.com/kingrea/reelscript/internal/workflow"
)

type runFunc func(ctx context.Context, rc *task.RunContext) (any, error)

type stubTask struct {
	task.Base
	run   runFunc
	calls *int32
}

func (s *stubTask) Run(ctx context.Context, rc *task.RunContext) (any, error) {
	atomic.AddInt32(s.calls, 1)
	return s.run(ctx, rc)
}

type harness struct {
	registry *task.Registry
	calls    map[string]*int32
	funcs    map[string]runFunc
}

func newHarness() *harness {
	h := &harness{
		registry: task.NewRegistry(),
		calls:    map[string]*int32{},
		funcs:    map[string]runFunc{},
	}
	items := []artifact.CandidateItem{
		{ID: "A", Locator: "https://www.youtube.com/watch?v=A"},
		{ID: "B", Locator: "https://www.youtube.com/watch?v=B"},
		{ID: "C", Locator: "https://www.youtube.com/watch?v=C"},
	}
	h.funcs["list"] = func(context.Context, *task.RunContext) (any, error) {
		return append([]artifact.CandidateItem{}, items...), nil
	}
	h.funcs["choose"] = func(_ context.Context, rc *task.RunContext) (any, error) {
		candidates, err := artifact.CandidatesFrom(rc.State)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, task.ErrNoCandidates
		}
		return candidates[rc.Rand.Intn(len(candidates))].Select(), nil
	}
	h.funcs["extract"] = func(_ context.Context, rc *task.RunContext) (any, error) {
		if _, err := artifact.SelectedFrom(rc.State); err != nil {
			return nil, err
		}
		var b strings.Builder
		for _, chunk := range []string{"Hello ", "world."} {
			b.WriteString(chunk)
		}
		return b.String(), nil
	}
	h.funcs["generate"] = func(_ context.Context, rc *task.RunContext) (any, error) {
		text, err := artifact.TextFrom(rc.State, artifact.ExtractedContent)
		if err != nil {
			return nil, err
		}
		return "SCRIPT:" + text, nil
	}
	stubs := []struct {
		id     string
		phase  task.Phase
		inputs []artifact.Ref
		output artifact.Ref
	}{
		{"list", task.PhaseListing, nil, artifact.Candidates},
		{"choose", task.PhaseSelecting, []artifact.Ref{artifact.Candidates}, artifact.Selected},
		{"extract", task.PhaseExtracting, []artifact.Ref{artifact.Selected}, artifact.ExtractedContent},
		{"generate", task.PhaseTransforming, []artifact.Ref{artifact.ExtractedContent}, artifact.GeneratedArtifact},
	}
	for _, s := range stubs {
		s := s
		var counter int32
		h.calls[s.id] = &counter
		h.registry.MustRegister(s.id, func(task.Config) (task.Task, error) {
			st := &stubTask{
				Base: task.NewBase(task.Info{ID: s.id, Name: s.id, Version: "1.0.0", Phase: s.phase}),
				run: func(ctx context.Context, rc *task.RunContext) (any, error) {
					return h.funcs[s.id](ctx, rc)
				},
				calls: &counter,
			}
			st.SetInputs(s.inputs...)
			st.SetOutput(s.output)
			return st, nil
		})
	}
	return h
}

func (h *harness) count(id string) int32 {
	return atomic.LoadInt32(h.calls[id])
}

func chain() workflow.Definition {
	return workflow.Definition{
		ID:   "reel-script",
		Name: "Reel Script",
		Tasks: []workflow.TaskRef{
			{ID: "list", TaskID: "list"},
			{ID: "choose", TaskID: "choose", DependsOn: []string{"list"}},
			{ID: "extract", TaskID: "extract", DependsOn: []string{"choose"}},
			{ID: "generate", TaskID: "generate", DependsOn: []string{"extract"}},
		},
	}
}

func newTestEngine(t *testing.T, h *harness, store StateStore) *Engine {
	t.Helper()
	clock := func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }
	eng, err := New(h.registry, store, WithClock(clock), WithIDGenerator(func() string { return "run-1" }))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

// seedPickingIndex finds a seed whose first Intn(n) draw is want.
func seedPickingIndex(t *testing.T, n, want int) int64 {
	t.Helper()
	for seed := int64(0); seed < 1000; seed++ {
		if rand.New(rand.NewSource(seed)).Intn(n) == want {
			return seed
		}
	}
	t.Fatalf("no seed picks index %d", want)
	return 0
}

func TestEngineRunsFullChain(t *testing.T) {
	h := newHarness()
	store := NewMemoryStore()
	eng := newTestEngine(t, h, store)
	seed := seedPickingIndex(t, 3, 1)

	state, values, err := eng.Run(context.Background(), StartRequest{
		Definition: chain(),
		Rand:       rand.New(rand.NewSource(seed)),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if state.Phase != task.PhaseDone {
		t.Fatalf("expected done, got %s", state.Phase)
	}
	selected, err := artifact.SelectedFrom(values)
	if err != nil || selected.ID != "B" {
		t.Fatalf("expected B selected, got %+v %v", selected, err)
	}
	text, _ := artifact.TextFrom(values, artifact.ExtractedContent)
	if text != "Hello world." {
		t.Fatalf("extracted = %q", text)
	}
	script, _ := artifact.TextFrom(values, artifact.GeneratedArtifact)
	if script != "SCRIPT:Hello world." {
		t.Fatalf("script = %q", script)
	}
	wantKeys := []string{"videos", "video", "extracted_text", "generated_script"}
	if strings.Join(values.Keys(), ",") != strings.Join(wantKeys, ",") {
		t.Fatalf("keys = %v", values.Keys())
	}
	wantPhases := []task.Phase{task.PhaseIdle, task.PhaseListing, task.PhaseSelecting, task.PhaseExtracting, task.PhaseTransforming, task.PhaseDone}
	gotPhases := state.Phases()
	if len(gotPhases) != len(wantPhases) {
		t.Fatalf("phases = %v", gotPhases)
	}
	for i := range wantPhases {
		if gotPhases[i] != wantPhases[i] {
			t.Fatalf("phases = %v", gotPhases)
		}
	}
	persisted, err := store.Load("run-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if persisted.Phase != task.PhaseDone || len(persisted.Keys) != 4 {
		t.Fatalf("persisted snapshot mismatch: %+v", persisted)
	}
	if run := persisted.Runs["extract"]; run.Output != artifact.ExtractedContent.ID {
		t.Fatalf("run record missing: %+v", persisted.Runs)
	}
}

func TestEngineSeedIsDeterministic(t *testing.T) {
	var picks []string
	for i := 0; i < 3; i++ {
		h := newHarness()
		eng := newTestEngine(t, h, NewMemoryStore())
		_, values, err := eng.Run(context.Background(), StartRequest{
			Definition: chain(),
			Target:     artifact.Selected.ID,
			Rand:       rand.New(rand.NewSource(42)),
		})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		selected, _ := artifact.SelectedFrom(values)
		picks = append(picks, selected.ID)
	}
	if picks[0] != picks[1] || picks[1] != picks[2] {
		t.Fatalf("seeded selection differs: %v", picks)
	}
}

func TestEngineEmptyListingFailsInListing(t *testing.T) {
	h := newHarness()
	h.funcs["list"] = func(context.Context, *task.RunContext) (any, error) {
		return nil, task.ErrEmptyResult
	}
	eng := newTestEngine(t, h, NewMemoryStore())

	state, values, err := eng.Run(context.Background(), StartRequest{Definition: chain()})
	var failure *task.Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *task.Failure, got %v", err)
	}
	if failure.Phase != task.PhaseListing || !errors.Is(err, task.ErrEmptyResult) {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if state.Phase != task.PhaseFailed {
		t.Fatalf("expected failed, got %s", state.Phase)
	}
	for _, phase := range state.Phases() {
		if phase == task.PhaseSelecting {
			t.Fatalf("selecting must never be entered: %v", state.Phases())
		}
	}
	if h.count("choose") != 0 || values.Len() != 0 {
		t.Fatalf("nothing after listing should run")
	}
	if state.Retryable {
		t.Fatalf("empty result is not retryable")
	}
}

func TestEngineEmptyCandidatesWritesNoSelection(t *testing.T) {
	h := newHarness()
	h.funcs["list"] = func(context.Context, *task.RunContext) (any, error) {
		return []artifact.CandidateItem{}, nil
	}
	eng := newTestEngine(t, h, NewMemoryStore())
	_, values, err := eng.Run(context.Background(), StartRequest{Definition: chain()})
	if !errors.Is(err, task.ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	if values.Has(artifact.Selected.ID) {
		t.Fatalf("selection must not be written")
	}
}

func TestEngineTargetVideosStopsAfterListing(t *testing.T) {
	h := newHarness()
	eng := newTestEngine(t, h, NewMemoryStore())
	state, values, err := eng.Run(context.Background(), StartRequest{Definition: chain(), Target: artifact.Candidates.ID})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if state.Phase != task.PhaseDone {
		t.Fatalf("expected done, got %s", state.Phase)
	}
	if h.count("extract") != 0 || h.count("generate") != 0 || h.count("choose") != 0 {
		t.Fatalf("downstream tasks must not run")
	}
	if values.Len() != 1 {
		t.Fatalf("expected only videos, got %v", values.Keys())
	}
}

func TestEngineMidStreamFailureLeavesNoExtractedText(t *testing.T) {
	h := newHarness()
	h.funcs["extract"] = func(context.Context, *task.RunContext) (any, error) {
		return nil, task.ErrExtractionIncomplete
	}
	eng := newTestEngine(t, h, NewMemoryStore())
	state, values, err := eng.Run(context.Background(), StartRequest{Definition: chain()})
	if !errors.Is(err, task.ErrExtractionIncomplete) {
		t.Fatalf("expected extraction incomplete, got %v", err)
	}
	if values.Has(artifact.ExtractedContent.ID) {
		t.Fatalf("extracted_text must be absent")
	}
	if h.count("generate") != 0 {
		t.Fatalf("transform must not run")
	}
	if !state.Retryable || state.FailedTask != "extract" {
		t.Fatalf("unexpected failure snapshot: %+v", state)
	}
}

func TestEngineAlternateEntrySkipsListing(t *testing.T) {
	h := newHarness()
	eng := newTestEngine(t, h, NewMemoryStore())
	seed := []artifact.Entry{{Key: artifact.Selected.ID, Value: artifact.SelectedItem{ID: "Z", Locator: "https://www.youtube.com/watch?v=Z"}}}
	state, values, err := eng.Run(context.Background(), StartRequest{Definition: chain(), Seed: seed})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.count("list") != 0 || h.count("choose") != 0 {
		t.Fatalf("listing and selection must be skipped")
	}
	if strings.Join(state.Plan, ",") != "extract,generate" {
		t.Fatalf("plan = %v", state.Plan)
	}
	if values.Has(artifact.Candidates.ID) {
		t.Fatalf("videos must be absent on the alternate entry")
	}
	if state.Phases()[1] != task.PhaseExtracting {
		t.Fatalf("phases = %v", state.Phases())
	}
}

func TestEngineTimeoutBecomesTaxonomyFailure(t *testing.T) {
	h := newHarness()
	h.funcs["list"] = func(ctx context.Context, _ *task.RunContext) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	eng := newTestEngine(t, h, NewMemoryStore())
	_, _, err := eng.Run(context.Background(), StartRequest{
		Definition: chain(),
		Timeouts:   Timeouts{Listing: 10 * time.Millisecond},
	})
	if !errors.Is(err, task.ErrSourceUnavailable) {
		t.Fatalf("expected source unavailable on listing timeout, got %v", err)
	}
}

func TestEngineCancellationDiscardsResult(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	h.funcs["extract"] = func(context.Context, *task.RunContext) (any, error) {
		cancel()
		return "late text", nil
	}
	eng := newTestEngine(t, h, NewMemoryStore())
	state, values, err := eng.Run(ctx, StartRequest{Definition: chain()})
	if !errors.Is(err, task.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if values.Has(artifact.ExtractedContent.ID) {
		t.Fatalf("result that arrived after cancel must be discarded")
	}
	if state.Phase != task.PhaseFailed {
		t.Fatalf("expected failed, got %s", state.Phase)
	}
	if h.count("generate") != 0 {
		t.Fatalf("no task may start after cancellation")
	}
}

func TestEngineJournalsTransitions(t *testing.T) {
	h := newHarness()
	book := logbook.NewMemory()
	eng := newTestEngine(t, h, NewMemoryStore())
	if _, _, err := eng.Run(context.Background(), StartRequest{Definition: chain(), Target: artifact.Candidates.ID, Logbook: book}); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines, _ := book.Tail(20)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "idle -> listing") || !strings.Contains(joined, "listing -> done") {
		t.Fatalf("journal missing transitions:\n%s", joined)
	}
}

func TestRepositoryPersistsState(t *testing.T) {
	h := newHarness()
	wf := workflow.New(t.TempDir())
	repo := NewRepository(wf)
	eng := newTestEngine(t, h, repo)
	if _, _, err := eng.Run(context.Background(), StartRequest{Definition: chain(), Target: artifact.Candidates.ID}); err != nil {
		t.Fatalf("run: %v", err)
	}
	loaded, err := eng.View("run-1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if loaded.Phase != task.PhaseDone || loaded.Target != artifact.Candidates.ID {
		t.Fatalf("unexpected persisted state: %+v", loaded)
	}
	if _, err := repo.Load("missing"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestNewRequiresRegistryAndStore(t *testing.T) {
	if _, err := New(nil, NewMemoryStore()); err == nil {
		t.Fatalf("expected registry error")
	}
	if _, err := New(task.NewRegistry(), nil); err == nil {
		t.Fatalf("expected store error")
	}
}
