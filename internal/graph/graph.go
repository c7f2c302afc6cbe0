package graph

import (
	"context"
	"fmt"
)

// ID is a non-owning handle to a component in a Graph arena. The zero ID
// refers to nothing.
type ID uint64

// Graph owns every component created through it.
type Graph struct {
	nextID      ID
	items       map[ID]Component
	root        *Node
	plugDirtied Signal[*Plug]
}

// scriptRoot is the behaviour of the root node of a Graph.
type scriptRoot struct{}

func (scriptRoot) TypeName() string { return "Script" }

// New creates a graph whose root node is called rootName. The root node is
// the script every dispatched node must belong to.
func New(rootName string) *Graph {
	g := &Graph{items: make(map[ID]Component)}
	g.root = g.NewNode(rootName, scriptRoot{})
	return g
}

// Root returns the script root node.
func (g *Graph) Root() *Node {
	return g.root
}

// Lookup resolves a handle. It returns nil for unknown or destroyed IDs.
func (g *Graph) Lookup(id ID) Component {
	if id == 0 {
		return nil
	}
	return g.items[id]
}

// Len returns the number of live components in the arena.
func (g *Graph) Len() int {
	return len(g.items)
}

// PlugDirtiedSignal is emitted for every dirtied plug in the graph, after the
// owning node's own signal.
func (g *Graph) PlugDirtiedSignal() *Signal[*Plug] {
	return &g.plugDirtied
}

// Descendant resolves a dotted path relative to the root node.
func (g *Graph) Descendant(path string) Component {
	return g.root.Descendant(path)
}

// Destroy releases a detached component and all of its descendants from the
// arena. Components that still have a parent must be removed first.
func (g *Graph) Destroy(ctx context.Context, c Component) error {
	b := c.core()
	if b.graph != g {
		return fmt.Errorf("%w: %s belongs to a different graph", ErrInvalidOperation, c.Name())
	}
	if b.parent != 0 || c == Component(g.root) {
		return fmt.Errorf("%w: cannot destroy %s while it is parented", ErrInvalidOperation, c.FullName())
	}
	if err := disconnectExternal(ctx, c); err != nil {
		return err
	}
	Walk(c, true, func(d Component) WalkAction {
		delete(g.items, d.ID())
		return Continue
	})
	delete(g.items, b.id)
	return nil
}

func (g *Graph) register(c Component) ID {
	g.nextID++
	g.items[g.nextID] = c
	return g.nextID
}

func mustValidName(name string) {
	if !validName(name) {
		panic(fmt.Sprintf("graph: invalid component name %q", name))
	}
}
