package resolver

import (
	"context"
	"strings"
	"testing"

	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/task"
	"github.com/kingrea/reelscript/internal/workflow"
)

func TestResolverRefreshSetsStates(t *testing.T) {
	res := buildResolver(t, chainDefinition())
	state := artifact.NewRunState()
	mustPut(t, state, artifact.Candidates.ID, []artifact.CandidateItem{{ID: "A", Locator: "u1"}})

	if err := res.Refresh(state); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	list := mustNode(t, res, "list")
	choose := mustNode(t, res, "choose")
	extract := mustNode(t, res, "extract")

	if list.State != NodeStateComplete {
		t.Fatalf("expected list complete, got %s", list.State)
	}
	if choose.State != NodeStateReady {
		t.Fatalf("expected choose ready, got %s", choose.State)
	}
	if extract.State != NodeStateBlocked {
		t.Fatalf("expected extract blocked, got %s", extract.State)
	}
	if len(extract.BlockedBy) != 1 || extract.BlockedBy[0] != "choose" {
		t.Fatalf("extract blocked by %+v", extract.BlockedBy)
	}

	var ready []string
	for _, node := range res.Nodes() {
		if node.State == NodeStateReady {
			ready = append(ready, node.ID)
		}
	}
	if len(ready) != 1 || ready[0] != "choose" {
		t.Fatalf("unexpected ready set: %v", ready)
	}
}

func TestResolverPlanRoutesTargetToChainPrefix(t *testing.T) {
	res := buildResolver(t, chainDefinition())
	if err := res.Refresh(artifact.NewRunState()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	cases := map[string][]string{
		"videos":           {"list"},
		"video":            {"list", "choose"},
		"extracted_text":   {"list", "choose", "extract"},
		"generated_script": {"list", "choose", "extract", "generate"},
	}
	for target, want := range cases {
		plan, err := res.Plan(target)
		if err != nil {
			t.Fatalf("plan %s: %v", target, err)
		}
		if got := nodeIDs(plan); strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("plan %s = %v, want %v", target, got, want)
		}
	}
	if _, err := res.Plan("unknown"); err == nil {
		t.Fatalf("expected error for unknown target")
	}
}

func TestResolverPlanSkipsSeededUpstream(t *testing.T) {
	res := buildResolver(t, chainDefinition())
	state := artifact.NewRunState()
	mustPut(t, state, artifact.Selected.ID, artifact.SelectedItem{ID: "B", Locator: "u2"})
	if err := res.Refresh(state); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	plan, err := res.Plan(artifact.GeneratedArtifact.ID)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if got := nodeIDs(plan); strings.Join(got, ",") != "extract,generate" {
		t.Fatalf("seeded plan = %v", got)
	}
	if extract := mustNode(t, res, "extract"); extract.State != NodeStateReady {
		t.Fatalf("extract should be ready with a seeded video, got %s", extract.State)
	}
}

func TestResolverRejectsInputWithoutUpstreamProducer(t *testing.T) {
	def := workflow.Definition{
		ID:   "broken",
		Name: "Broken",
		Tasks: []workflow.TaskRef{
			{ID: "list", TaskID: "stub-list"},
			{ID: "extract", TaskID: "stub-extract"},
		},
	}
	registry := newStubRegistry()
	_, err := New(def, registry)
	if err == nil {
		t.Fatalf("expected error when extract's input has no producer")
	}

	def.Tasks = append(def.Tasks, workflow.TaskRef{ID: "choose", TaskID: "stub-choose", DependsOn: []string{"list"}})
	_, err = New(def, registry)
	if err == nil || !strings.Contains(err.Error(), "not a dependency") {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestResolverRejectsDuplicateProducers(t *testing.T) {
	def := workflow.Definition{
		ID:   "dup",
		Name: "Duplicate",
		Tasks: []workflow.TaskRef{
			{ID: "first", TaskID: "stub-list"},
			{ID: "second", TaskID: "stub-list"},
		},
	}
	if _, err := New(def, newStubRegistry()); err == nil {
		t.Fatalf("expected duplicate producer error")
	}
}

func TestResolverRequiresRegistry(t *testing.T) {
	if _, err := New(chainDefinition(), nil); err == nil {
		t.Fatalf("expected registry error")
	}
}

func chainDefinition() workflow.Definition {
	return workflow.Definition{
		ID:   "stub-chain",
		Name: "Stub Chain",
		Tasks: []workflow.TaskRef{
			{ID: "list", TaskID: "stub-list"},
			{ID: "choose", TaskID: "stub-choose", DependsOn: []string{"list"}},
			{ID: "extract", TaskID: "stub-extract", DependsOn: []string{"choose"}},
			{ID: "generate", TaskID: "stub-generate", DependsOn: []string{"extract"}},
		},
	}
}

func buildResolver(t *testing.T, def workflow.Definition) *Resolver {
	t.Helper()
	res, err := New(def, newStubRegistry())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return res
}

func newStubRegistry() *task.Registry {
	reg := task.NewRegistry()
	stubs := []struct {
		id     string
		phase  task.Phase
		inputs []artifact.Ref
		output artifact.Ref
	}{
		{"stub-list", task.PhaseListing, nil, artifact.Candidates},
		{"stub-choose", task.PhaseSelecting, []artifact.Ref{artifact.Candidates}, artifact.Selected},
		{"stub-extract", task.PhaseExtracting, []artifact.Ref{artifact.Selected}, artifact.ExtractedContent},
		{"stub-generate", task.PhaseTransforming, []artifact.Ref{artifact.ExtractedContent}, artifact.GeneratedArtifact},
	}
	for _, s := range stubs {
		s := s
		reg.MustRegister(s.id, func(task.Config) (task.Task, error) {
			st := &stubTask{Base: task.NewBase(task.Info{ID: s.id, Name: s.id, Version: "1.0.0", Phase: s.phase})}
			st.SetInputs(s.inputs...)
			st.SetOutput(s.output)
			return st, nil
		})
	}
	return reg
}

type stubTask struct {
	task.Base
}

func (s *stubTask) Run(context.Context, *task.RunContext) (any, error) {
	return nil, nil
}

func mustNode(t *testing.T, res *Resolver, id string) *Node {
	t.Helper()
	for _, node := range res.Nodes() {
		if node.ID == id {
			return node
		}
	}
	t.Fatalf("node %s not found", id)
	return nil
}

func mustPut(t *testing.T, state *artifact.RunState, key string, value any) {
	t.Helper()
	if err := state.Put(key, value); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

func nodeIDs(nodes []*Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}
