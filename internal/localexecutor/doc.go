// Package localexecutor runs jobs in the current process. Batches execute
// on a pool of workers as soon as their requirements complete; with one
// worker they execute in plan order. A job runs in the foreground, blocking
// Execute, or in the background, where it is tracked by a JobPool until it
// finishes.
package localexecutor
