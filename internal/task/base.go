package task

import "github.com/kingrea/reelscript/internal/artifact"

// Base provides common plumbing for tasks (identity + IO contracts).
type Base struct {
	info   Info
	inputs []artifact.Ref
	output artifact.Ref
}

// NewBase seeds the helper with task info.
func NewBase(info Info) Base {
	return Base{info: info}
}

// SetInputs declares the required state keys in order.
func (b *Base) SetInputs(refs ...artifact.Ref) {
	b.inputs = append([]artifact.Ref{}, refs...)
}

// SetOutput declares the produced state key.
func (b *Base) SetOutput(ref artifact.Ref) {
	b.output = ref
}

// Info implements Task.Info.
func (b *Base) Info() Info {
	return b.info
}

// Inputs implements Task.Inputs.
func (b *Base) Inputs() []artifact.Ref {
	return append([]artifact.Ref{}, b.inputs...)
}

// Output implements Task.Output.
func (b *Base) Output() artifact.Ref {
	return b.output
}
