package task

import (
	"context"
	"fmt"

	"github.com/kingrea/reelscript/internal/artifact"
)

// Phase names the orchestrator state a task runs in.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseListing      Phase = "listing"
	PhaseSelecting    Phase = "selecting"
	PhaseExtracting   Phase = "extracting"
	PhaseTransforming Phase = "transforming"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Info describes a task's identity and the phase it runs in.
type Info struct {
	ID          string
	Name        string
	Description string
	Version     string
	Phase       Phase
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("task: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("task: name is required for %s", i.ID)
	}
	if i.Version == "" {
		return fmt.Errorf("task: version is required for %s", i.ID)
	}
	switch i.Phase {
	case PhaseListing, PhaseSelecting, PhaseExtracting, PhaseTransforming:
		return nil
	default:
		return fmt.Errorf("task: %s declares non-working phase %q", i.ID, i.Phase)
	}
}

// Task is implemented by every unit of orchestrated work. Inputs must all be
// present in the run state before Run is called; the value Run returns is
// written under Output by the orchestrator, never by the task itself.
type Task interface {
	Info() Info
	Inputs() []artifact.Ref
	Output() artifact.Ref
	Run(ctx context.Context, rc *RunContext) (any, error)
}
