package engine

import (
	"time"

	"github.com/kingrea/reelscript/internal/task"
	"github.com/kingrea/reelscript/internal/workflow/resolver"
	"github.com/kingrea/reelscript/internal/workflow/scheduler"
)

// State captures the persisted snapshot of a run.
type State struct {
	RunID      string     `json:"run_id"`
	WorkflowID string     `json:"workflow_id"`
	Target     string     `json:"target"`
	Phase      task.Phase `json:"phase"`
	// Error and Reason are set once the run is failed.
	Error       string                          `json:"error,omitempty"`
	Reason      string                          `json:"reason,omitempty"`
	Retryable   bool                            `json:"retryable,omitempty"`
	FailedTask  string                          `json:"failed_task,omitempty"`
	Plan        []string                        `json:"plan"`
	Seeded      []string                        `json:"seeded,omitempty"`
	Keys        []string                        `json:"keys"`
	Nodes       []TaskStatus                    `json:"nodes"`
	Skipped     map[string]scheduler.SkipReason `json:"skipped,omitempty"`
	Runs        map[string]TaskRun              `json:"runs,omitempty"`
	Transitions []Transition                    `json:"transitions"`
	StartedAt   time.Time                       `json:"started_at"`
	UpdatedAt   time.Time                       `json:"updated_at"`
}

// Terminal reports whether the run has finished.
func (s State) Terminal() bool {
	return s.Phase.Terminal()
}

// TaskStatus exposes resolver metadata for a chain node.
type TaskStatus struct {
	ID           string             `json:"id"`
	TaskID       string             `json:"task_id"`
	Name         string             `json:"name"`
	Version      string             `json:"version"`
	Phase        task.Phase         `json:"phase"`
	Inputs       []string           `json:"inputs,omitempty"`
	Output       string             `json:"output"`
	State        resolver.NodeState `json:"state"`
	Dependencies []string           `json:"dependencies,omitempty"`
	BlockedBy    []string           `json:"blocked_by,omitempty"`
	LastRun      *TaskRun           `json:"last_run,omitempty"`
}

// TaskRun persists the runtime result of one task execution.
type TaskRun struct {
	Phase      task.Phase `json:"phase"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Duration reports how long the task ran.
func (r TaskRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Transition records one phase change.
type Transition struct {
	From   task.Phase `json:"from"`
	To     task.Phase `json:"to"`
	TaskID string     `json:"task_id,omitempty"`
	Note   string     `json:"note,omitempty"`
	At     time.Time  `json:"at"`
}

// Producer returns the status of the node that writes key.
func (s State) Producer(key string) (TaskStatus, bool) {
	for _, node := range s.Nodes {
		if node.Output == key {
			return node, true
		}
	}
	return TaskStatus{}, false
}

// Phases returns the visited phases in order, starting at idle.
func (s State) Phases() []task.Phase {
	phases := []task.Phase{task.PhaseIdle}
	for _, tr := range s.Transitions {
		phases = append(phases, tr.To)
	}
	return phases
}

func (s State) clone() State {
	out := s
	out.Plan = cloneStrings(s.Plan)
	out.Seeded = cloneStrings(s.Seeded)
	out.Keys = cloneStrings(s.Keys)
	if len(s.Nodes) > 0 {
		out.Nodes = make([]TaskStatus, len(s.Nodes))
		for i, node := range s.Nodes {
			node.Inputs = cloneStrings(node.Inputs)
			node.Dependencies = cloneStrings(node.Dependencies)
			node.BlockedBy = cloneStrings(node.BlockedBy)
			if node.LastRun != nil {
				run := *node.LastRun
				node.LastRun = &run
			}
			out.Nodes[i] = node
		}
	}
	if len(s.Skipped) > 0 {
		out.Skipped = make(map[string]scheduler.SkipReason, len(s.Skipped))
		for id, reason := range s.Skipped {
			out.Skipped[id] = reason
		}
	}
	if len(s.Runs) > 0 {
		out.Runs = make(map[string]TaskRun, len(s.Runs))
		for id, run := range s.Runs {
			out.Runs[id] = run
		}
	}
	out.Transitions = append([]Transition(nil), s.Transitions...)
	return out
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
