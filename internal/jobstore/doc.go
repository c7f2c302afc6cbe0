// Package jobstore records the execution state of the batches of running
// jobs: their status and, for failed batches, the error.
//
// # Concurrency Model
//
// Batches of one job may run on several workers at once, and a monitor may
// read statuses while they change. Each batch's state is independent, so the
// store keeps it in sync.Map values rather than behind a single lock.
package jobstore
