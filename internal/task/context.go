package task

import (
	"math/rand"

	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/logbook"
)

// RunContext carries the per-run dependencies into every task.
type RunContext struct {
	RunID   string
	State   artifact.Reader
	Rand    *rand.Rand
	Logbook *logbook.Logbook
}

// NewRunContext builds a RunContext over a read-only view of state.
func NewRunContext(runID string, state artifact.Reader, rng *rand.Rand, book *logbook.Logbook) *RunContext {
	return &RunContext{
		RunID:   runID,
		State:   state,
		Rand:    rng,
		Logbook: book,
	}
}
