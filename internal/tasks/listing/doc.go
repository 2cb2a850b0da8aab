// Package listing hosts the list-videos task. It asks the listing adapter for
// one page of a playlist and hands the ordered candidates to the run state
// under `videos`.
//
// Inputs: none. Output: `artifact.Candidates` ([]artifact.CandidateItem).
//
// A playlist with no playable entries fails the run in the listing phase with
// task.ErrEmptyResult; selection is never entered.
package listing
