package resolver

import (
	"fmt"
	"sort"

	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/task"
	"github.com/kingrea/reelscript/internal/workflow"
)

// NodeState represents the resolver's understanding of a task's readiness.
type NodeState string

const (
	NodeStateUnknown  NodeState = "unknown"
	NodeStatePending  NodeState = "pending"
	NodeStateReady    NodeState = "ready"
	NodeStateBlocked  NodeState = "blocked"
	NodeStateComplete NodeState = "complete"
)

// Node captures a chain task instance plus its dependency metadata.
type Node struct {
	ID           string
	Ref          workflow.TaskRef
	Task         task.Task
	Dependencies []string
	Dependents   []string

	State     NodeState
	BlockedBy []string
}

// Output returns the state key the node's task produces.
func (n *Node) Output() artifact.Ref {
	return n.Task.Output()
}

// Resolver builds and evaluates the chain dependency graph.
type Resolver struct {
	definition workflow.Definition
	nodes      map[string]*Node
	orderedIDs []string
	producers  map[string]string
}

// New constructs a resolver for the provided chain definition. Tasks are
// instantiated via the registry immediately so the engine can run them.
func New(def workflow.Definition, registry *task.Registry) (*Resolver, error) {
	if registry == nil {
		return nil, fmt.Errorf("workflow: task registry is required")
	}
	normalized, err := def.Normalized()
	if err != nil {
		return nil, err
	}
	nodes := make(map[string]*Node, len(normalized.Tasks))
	ordered := make([]string, 0, len(normalized.Tasks))
	producers := make(map[string]string, len(normalized.Tasks))
	for _, ref := range normalized.Tasks {
		id := ref.InstanceID()
		t, err := registry.Resolve(ref.TaskID, task.Config(ref.Config))
		if err != nil {
			return nil, fmt.Errorf("workflow %s task %s: %w", normalized.ID, id, err)
		}
		out := t.Output().ID
		if owner, exists := producers[out]; exists {
			return nil, fmt.Errorf("workflow %s: %s and %s both produce %s", normalized.ID, owner, id, out)
		}
		producers[out] = id
		nodes[id] = &Node{
			ID:           id,
			Ref:          ref,
			Task:         t,
			Dependencies: normalized.Dependencies(id),
			State:        NodeStateUnknown,
		}
		ordered = append(ordered, id)
	}
	for _, node := range nodes {
		for _, depID := range node.Dependencies {
			dep, ok := nodes[depID]
			if !ok {
				return nil, fmt.Errorf("workflow %s: dependency %s referenced by %s not declared", normalized.ID, depID, node.ID)
			}
			dep.Dependents = append(dep.Dependents, node.ID)
		}
	}
	for _, node := range nodes {
		if len(node.Dependents) > 1 {
			sort.Strings(node.Dependents)
		}
	}
	r := &Resolver{
		definition: normalized,
		nodes:      nodes,
		orderedIDs: ordered,
		producers:  producers,
	}
	if err := r.checkInputs(); err != nil {
		return nil, err
	}
	return r, nil
}

// checkInputs verifies every input key is produced by a transitive dependency
// of the consuming task.
func (r *Resolver) checkInputs() error {
	for _, id := range r.orderedIDs {
		node := r.nodes[id]
		upstream := r.upstream(id)
		for _, in := range node.Task.Inputs() {
			producer, ok := r.producers[in.ID]
			if !ok {
				return fmt.Errorf("workflow %s: task %s needs %s but no task produces it", r.definition.ID, id, in.ID)
			}
			if _, ok := upstream[producer]; !ok {
				return fmt.Errorf("workflow %s: task %s needs %s from %s which is not a dependency", r.definition.ID, id, in.ID, producer)
			}
		}
	}
	return nil
}

func (r *Resolver) upstream(id string) map[string]struct{} {
	seen := map[string]struct{}{}
	var walk func(string)
	walk = func(current string) {
		for _, dep := range r.nodes[current].Dependencies {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			walk(dep)
		}
	}
	walk(id)
	return seen
}

// Definition returns a clone of the resolver's chain definition.
func (r *Resolver) Definition() workflow.Definition {
	return r.definition.Clone()
}

// Nodes returns the nodes in chain declaration order.
func (r *Resolver) Nodes() []*Node {
	out := make([]*Node, 0, len(r.orderedIDs))
	for _, id := range r.orderedIDs {
		if node, ok := r.nodes[id]; ok {
			out = append(out, node)
		}
	}
	return out
}

// ProducerOf returns the node that writes key.
func (r *Resolver) ProducerOf(key string) (*Node, bool) {
	id, ok := r.producers[key]
	if !ok {
		return nil, false
	}
	return r.nodes[id], true
}

// Refresh re-evaluates completion and readiness against the run state. A node
// is complete once its output key is present.
func (r *Resolver) Refresh(state artifact.Reader) error {
	if state == nil {
		return fmt.Errorf("workflow: run state is required")
	}
	for _, node := range r.nodes {
		node.BlockedBy = nil
		if state.Has(node.Output().ID) {
			node.State = NodeStateComplete
		} else {
			node.State = NodeStatePending
		}
	}
	for _, node := range r.nodes {
		if node.State == NodeStateComplete {
			continue
		}
		blockers := r.blockers(node, state)
		if len(blockers) == 0 {
			node.State = NodeStateReady
		} else {
			node.State = NodeStateBlocked
			node.BlockedBy = blockers
		}
	}
	return nil
}

// Queue returns tasks that must run to satisfy the requested targets. If no
// targets are provided, every incomplete task is considered. Dependencies are
// returned before the tasks that require them. Complete tasks are skipped
// along with everything upstream of them, which is how a seeded state enters
// the chain midway.
func (r *Resolver) Queue(targets ...string) ([]*Node, error) {
	if len(targets) == 0 {
		targets = append([]string{}, r.orderedIDs...)
	}
	visited := make(map[string]bool, len(r.nodes))
	ordered := make([]*Node, 0, len(r.nodes))
	var visit func(string) error
	visit = func(id string) error {
		if visited[id] {
			return nil
		}
		node, ok := r.nodes[id]
		if !ok {
			return fmt.Errorf("workflow: unknown task %s", id)
		}
		visited[id] = true
		if node.State == NodeStateComplete {
			return nil
		}
		for _, dep := range node.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		ordered = append(ordered, node)
		return nil
	}
	for _, id := range targets {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// Plan routes a target state key to the chain prefix that produces it.
func (r *Resolver) Plan(targetKey string) ([]*Node, error) {
	producer, ok := r.ProducerOf(targetKey)
	if !ok {
		return nil, fmt.Errorf("workflow %s: no task produces %q", r.definition.ID, targetKey)
	}
	return r.Queue(producer.ID)
}

func (r *Resolver) blockers(node *Node, state artifact.Reader) []string {
	var blockers []string
	for _, depID := range node.Dependencies {
		dep, ok := r.nodes[depID]
		if !ok || dep.State != NodeStateComplete {
			blockers = append(blockers, depID)
		}
	}
	for _, in := range node.Task.Inputs() {
		if !state.Has(in.ID) {
			if producer, ok := r.producers[in.ID]; ok && !contains(blockers, producer) {
				blockers = append(blockers, producer)
			}
		}
	}
	return blockers
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
