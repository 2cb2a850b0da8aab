package scheduler

import (
	"fmt"

	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/task"
	"github.com/kingrea/reelscript/internal/workflow/resolver"
)

// Scheduler picks the next task of a run from a dependency resolver's plan.
type Scheduler struct {
	resolver *resolver.Resolver
}

// New wires a Scheduler to a resolver snapshot.
func New(res *resolver.Resolver) (*Scheduler, error) {
	if res == nil {
		return nil, fmt.Errorf("workflow: scheduler requires a resolver")
	}
	return &Scheduler{resolver: res}, nil
}

// Request carries the routed plan and the current run state.
type Request struct {
	Plan  []*resolver.Node
	State artifact.Reader
}

// Decision describes the scheduler's choice. Node is nil once every planned
// task has produced its output.
type Decision struct {
	Node    *resolver.Node
	Skipped map[string]SkipReason
}

// Done reports whether the plan is exhausted.
func (d Decision) Done() bool {
	return d.Node == nil
}

// SkipReason explains why a node was passed over.
type SkipReason struct {
	Reason SkipReasonCode `json:"reason"`
	Detail string         `json:"detail,omitempty"`
}

// SkipReasonCode enumerates scheduler skip reasons.
type SkipReasonCode string

const (
	SkipReasonComplete SkipReasonCode = "complete"
	SkipReasonNotReady SkipReasonCode = "not-ready"
)

// Next refreshes the resolver against the run state and returns the first
// planned node whose output is still absent. A node whose inputs are missing
// at that point yields task.ErrInputsMissing.
func (s *Scheduler) Next(req Request) (Decision, error) {
	if req.State == nil {
		return Decision{}, fmt.Errorf("workflow: scheduler requires run state")
	}
	if err := s.resolver.Refresh(req.State); err != nil {
		return Decision{}, err
	}
	result := Decision{}
	rq := newRunnableQueue(req.Plan)
	for rq.Len() > 0 {
		node := rq.Pop()
		if node == nil {
			break
		}
		if node.State == resolver.NodeStateComplete {
			result.addSkip(node.ID, SkipReason{Reason: SkipReasonComplete, Detail: node.Output().ID + " present"})
			continue
		}
		if missing := missingInputs(node, req.State); len(missing) > 0 {
			result.addSkip(node.ID, SkipReason{Reason: SkipReasonNotReady, Detail: string(node.State)})
			return result, fmt.Errorf("workflow: %s: %w: %v", node.ID, task.ErrInputsMissing, missing)
		}
		result.Node = node
		return result, nil
	}
	return result, nil
}

func missingInputs(node *resolver.Node, state artifact.Reader) []string {
	var missing []string
	for _, in := range node.Task.Inputs() {
		if !state.Has(in.ID) {
			missing = append(missing, in.ID)
		}
	}
	return missing
}

func (d *Decision) addSkip(id string, reason SkipReason) {
	if id == "" {
		return
	}
	if d.Skipped == nil {
		d.Skipped = make(map[string]SkipReason)
	}
	d.Skipped[id] = reason
}

type runnableQueue struct {
	nodes []*resolver.Node
}

func newRunnableQueue(nodes []*resolver.Node) *runnableQueue {
	if len(nodes) == 0 {
		return &runnableQueue{}
	}
	copyNodes := make([]*resolver.Node, len(nodes))
	copy(copyNodes, nodes)
	return &runnableQueue{nodes: copyNodes}
}

func (q *runnableQueue) Len() int {
	return len(q.nodes)
}

func (q *runnableQueue) Pop() *resolver.Node {
	if len(q.nodes) == 0 {
		return nil
	}
	node := q.nodes[0]
	q.nodes = q.nodes[1:]
	return node
}
