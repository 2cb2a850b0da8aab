// Package scheduler turns resolver snapshots into the next task to execute.
// Runs are strictly sequential, so the scheduler hands out one node at a time
// and explains why the nodes ahead of it were passed over.
package scheduler
