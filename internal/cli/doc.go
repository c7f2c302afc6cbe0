// Package cli turns command-line flags into an app.Config. It validates
// frame settings up front and reports usage problems as an ExitError that
// carries the process exit code.
package cli
