// Package execctx provides the execution Context: a copy-on-write mapping of
// names to cty values that parameterizes a computation.
//
// Contexts are cheap to create. A child context overlays a few bindings on
// its parent and falls through to the parent for everything else. Contexts
// compare by value: two contexts are equal when their hashes are equal, and
// keys prefixed with "ui:" never contribute to the hash.
package execctx
