// Package dag is a small directed graph used to validate requirement
// relationships before execution. Vertices are kept in insertion order so
// that cycle reports are deterministic.
package dag
