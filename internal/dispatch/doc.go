// Package dispatch turns a request to run task nodes into a job.
//
// A Dispatcher validates the requested nodes, creates a numbered job
// directory, builds tasks for the frames selected by its Config, folds them
// into a plan with the scheduler package and hands the resulting job to an
// executor backend. Backends are looked up by name in a Registry, which also
// owns the pre- and post-dispatch hooks.
package dispatch
