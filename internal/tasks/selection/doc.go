// Package selection hosts the choose-video task: one candidate from `videos`
// is picked uniformly at random with the run's random source and written as
// the run's `video`.
package selection
