// Package app contains the application wiring. It builds the node type and
// dispatcher registries, loads scripts into a session and dispatches the
// requested nodes, decoupled from any specific entrypoint like a CLI.
package app
