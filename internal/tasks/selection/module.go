package selection

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/task"
)

const (
	taskID      = "choose-video"
	taskVersion = "1.0.0"
)

// ID is the registry identifier of the task.
const ID = taskID

// Task chooses one candidate.
type Task struct {
	*task.Base
}

// Register installs the task factory into the registry.
func Register(reg *task.Registry) {
	if reg == nil {
		return
	}
	reg.MustRegister(taskID, func(task.Config) (task.Task, error) {
		return New(), nil
	})
}

// New constructs the task with its IO contract.
func New() *Task {
	info := task.Info{
		ID:          taskID,
		Name:        "Choose Video",
		Description: "Chooses a random video from the listed candidates.",
		Version:     taskVersion,
		Phase:       task.PhaseSelecting,
	}
	base := task.NewBase(info)
	base.SetInputs(artifact.Candidates)
	base.SetOutput(artifact.Selected)
	return &Task{Base: &base}
}

// Run picks uniformly from the candidates. A run without a random source is
// seeded from the clock.
func (t *Task) Run(_ context.Context, rc *task.RunContext) (any, error) {
	if rc == nil || rc.State == nil {
		return nil, fmt.Errorf("%s: %w", taskID, task.ErrInputsMissing)
	}
	candidates, err := artifact.CandidatesFrom(rc.State)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", taskID, task.ErrInputsMissing, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: %w", taskID, task.ErrNoCandidates)
	}
	rng := rc.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	chosen := candidates[rng.Intn(len(candidates))].Select()
	if err := chosen.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", taskID, task.ErrNoCandidates, err)
	}
	rc.Logbook.Info("%s: chose %s (%s)", taskID, chosen.ID, chosen.Locator)
	return chosen, nil
}
