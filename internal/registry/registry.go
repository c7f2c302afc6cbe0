package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/nodeflow/internal/graph"
)

// Module is the interface that all core modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Factory builds a detached node called name, with all of its plugs.
type Factory func(ctx context.Context, g *graph.Graph, name string) (*graph.Node, error)

// NodeType describes a node type that scripts can instantiate.
type NodeType struct {
	Name        string
	Description string
	New         Factory
}

// SetupHook runs for every node created through the registry, after the
// factory returns and before the node is parented.
type SetupHook func(ctx context.Context, n *graph.Node) error

// Registry holds the node types of a single application instance.
type Registry struct {
	types map[string]*NodeType
	setup []SetupHook
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{types: make(map[string]*NodeType)}
}

// RegisterNodeType adds a node type. Registering a name twice panics.
func (r *Registry) RegisterNodeType(t *NodeType) {
	if _, exists := r.types[t.Name]; exists {
		panic(fmt.Sprintf("node type with name '%s' already registered", t.Name))
	}
	slog.Debug("Registering node type.", "name", t.Name)
	r.types[t.Name] = t
}

// OnNodeCreated adds a hook that runs for every created node.
func (r *Registry) OnNodeCreated(h SetupHook) {
	r.setup = append(r.setup, h)
}

// NodeType returns the registered type called name.
func (r *Registry) NodeType(name string) (*NodeType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// TypeNames lists the registered types in sorted order.
func (r *Registry) TypeNames() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds a node of the named type and runs the setup hooks on it.
func (r *Registry) Create(ctx context.Context, g *graph.Graph, typeName, name string) (*graph.Node, error) {
	t, ok := r.types[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown node type '%s'", typeName)
	}
	n, err := t.New(ctx, g, name)
	if err != nil {
		return nil, fmt.Errorf("creating %s node '%s': %w", typeName, name, err)
	}
	for _, h := range r.setup {
		if err := h(ctx, n); err != nil {
			return nil, fmt.Errorf("setting up %s node '%s': %w", typeName, name, err)
		}
	}
	return n, nil
}
