package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vk/nodeflow/internal/executor"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/task"
	"github.com/zclconf/go-cty/cty"
)

// PreDispatchHook runs before any task is built. Returning true cancels the
// dispatch.
type PreDispatchHook func(ctx context.Context, d *Dispatcher, nodes []*graph.Node) bool

// DispatchHook runs once the job directory exists, before tasks are built.
type DispatchHook func(ctx context.Context, d *Dispatcher, nodes []*graph.Node)

// PostDispatchHook runs after every dispatch that got past validation.
// success is false when the dispatch was cancelled or failed.
type PostDispatchHook func(ctx context.Context, d *Dispatcher, nodes []*graph.Node, success bool)

// Registry holds the executor backends available to dispatchers and the
// dispatch hooks. It is created once at startup and passed to whatever needs
// it.
type Registry struct {
	mu          sync.RWMutex
	backends    map[string]executor.Executor
	defaultName string
	pre         []PreDispatchHook
	during      []DispatchHook
	post        []PostDispatchHook
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]executor.Executor)}
}

// Register adds a backend under its name. The first backend registered
// becomes the default. Registering a name twice panics.
func (r *Registry) Register(b executor.Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := b.Name()
	if _, exists := r.backends[name]; exists {
		panic(fmt.Sprintf("dispatcher with name '%s' already registered", name))
	}
	slog.Debug("Registering dispatcher.", "name", name)
	r.backends[name] = b
	if r.defaultName == "" {
		r.defaultName = name
	}
}

// Names returns the registered dispatcher names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the name used when no dispatcher is requested.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// SetDefault changes the default dispatcher.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDispatcher, name)
	}
	r.defaultName = name
	return nil
}

// New creates a dispatcher for the named backend. An empty name selects the
// default.
func (r *Registry) New(name string, cfg Config) (*Dispatcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultName
	}
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDispatcher, name)
	}
	return &Dispatcher{name: name, cfg: cfg, backend: b, registry: r}, nil
}

// OnPreDispatch registers a hook that may cancel dispatches.
func (r *Registry) OnPreDispatch(h PreDispatchHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pre = append(r.pre, h)
}

// OnDispatch registers a hook that runs once the job directory exists.
func (r *Registry) OnDispatch(h DispatchHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.during = append(r.during, h)
}

// OnPostDispatch registers a hook that runs after dispatches.
func (r *Registry) OnPostDispatch(h PostDispatchHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.post = append(r.post, h)
}

// SetupPlugs adds the "dispatcher" plug to a task node. It holds a batchSize
// setting unless the node executes its frames in sequence, plus whatever
// each registered backend contributes.
func (r *Registry) SetupPlugs(ctx context.Context, n *graph.Node) error {
	g := n.Graph()
	disp := n.Plug(task.DispatcherPlugName)
	attach := disp == nil
	if attach {
		disp = g.NewCompoundPlug(task.DispatcherPlugName, graph.In, graph.Default)
	}
	if !task.RequiresSequenceExecution(n) && disp.Child(task.BatchSizePlugName) == nil {
		bs := g.NewPlug(task.BatchSizePlugName, graph.In, cty.Number, cty.NumberIntVal(1), graph.Default)
		if err := disp.AddChild(ctx, bs); err != nil {
			return err
		}
	}
	for _, name := range r.Names() {
		r.mu.RLock()
		b := r.backends[name]
		r.mu.RUnlock()
		if err := b.SetupPlugs(ctx, disp); err != nil {
			return fmt.Errorf("setting up %s plugs on %s: %w", name, n.FullName(), err)
		}
	}
	if attach {
		return n.AddPlug(ctx, disp)
	}
	return nil
}

func (r *Registry) preDispatch(ctx context.Context, d *Dispatcher, nodes []*graph.Node) bool {
	r.mu.RLock()
	hooks := append([]PreDispatchHook(nil), r.pre...)
	r.mu.RUnlock()
	cancelled := false
	for _, h := range hooks {
		if h(ctx, d, nodes) {
			cancelled = true
		}
	}
	return cancelled
}

func (r *Registry) dispatching(ctx context.Context, d *Dispatcher, nodes []*graph.Node) {
	r.mu.RLock()
	hooks := append([]DispatchHook(nil), r.during...)
	r.mu.RUnlock()
	for _, h := range hooks {
		h(ctx, d, nodes)
	}
}

func (r *Registry) postDispatch(ctx context.Context, d *Dispatcher, nodes []*graph.Node, success bool) {
	r.mu.RLock()
	hooks := append([]PostDispatchHook(nil), r.post...)
	r.mu.RUnlock()
	for _, h := range hooks {
		h(ctx, d, nodes, success)
	}
}
