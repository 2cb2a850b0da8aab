// Package engine ties the resolver and scheduler together. It drives one run
// of a task chain through its phases, writes each task's output into the run
// state, and persists a snapshot after every transition.
package engine
