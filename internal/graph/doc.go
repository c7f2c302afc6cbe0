// Package graph implements the node graph: an ownership tree of nodes and
// plugs, the connections between plugs, and dirty propagation.
//
// # Ownership
//
// A Graph is an arena that owns every component created through it. Parent,
// child, input and output links are non-owning ID handles resolved through
// the arena, so components never hold pointers to each other and the order of
// destruction is explicit (see Graph.Destroy).
//
// # Connections
//
// A Plug has at most one input and any number of outputs. Plug.SetInput
// enforces the acceptance rules of both endpoints, type compatibility, and the
// absence of dependency cycles before any mutation happens. Connecting compound
// plugs wires their children as a unit.
//
// # Dirty propagation
//
// When a plug changes, every plug that depends on it is collected into a
// dirty scope carried by the context.Context of the call. The call that opened
// the scope emits one "dirtied" notification per collected plug, in insertion
// order, once the traversal is complete. Independent goroutines use independent
// contexts and therefore never share a scope. A single Graph is not safe for
// concurrent mutation; callers must serialize edits.
package graph
