// Package registry maps node type names used in scripts to the Go factories
// that build those nodes.
//
// Modules register their node types at startup. The registry is then
// validated once, so that a factory which builds a node of a different type
// than it was registered under is caught before any script is loaded.
package registry
