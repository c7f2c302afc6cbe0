// Package testutil holds helpers shared by integration tests: a thread-safe
// log buffer, a recording node type and a harness that runs scripts through
// the full application.
package testutil
