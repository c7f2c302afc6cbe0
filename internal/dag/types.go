package dag

import "sync"

// Graph is a collection of nodes and their dependencies.
// All operations on the graph are concurrency-safe.
type Graph[K comparable] struct {
	// mutex protects the nodes map during concurrent access.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by their unique ID.
	nodes map[K]*node[K]
	// order records insertion order.
	order []K
}

// node represents a single vertex in the graph.
type node[K comparable] struct {
	id K
	// deps holds the nodes that this node depends on (predecessors), in the
	// order the edges were added.
	deps []*node[K]
	// dependents holds the nodes that depend on this node (successors).
	dependents []*node[K]
}

// CycleError reports a node that takes part in a cycle.
type CycleError[K comparable] struct {
	Node K
}

func (e *CycleError[K]) Error() string {
	return "cycle detected involving node '" + fmtKey(e.Node) + "'"
}
