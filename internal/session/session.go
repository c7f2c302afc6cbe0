package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/nodeflow/internal/compute"
	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/vk/nodeflow/internal/task"
	"github.com/zclconf/go-cty/cty"
)

// Context entries describing the script frame range.
const (
	FrameRangeStartEntry = "frameRange:start"
	FrameRangeEndEntry   = "frameRange:end"
)

// Options configures a new Session.
type Options struct {
	// Name of the script root node. Defaults to "script".
	Name string
	// CacheSize bounds the number of computed values kept in memory.
	CacheSize int
}

// Session is a script and the state needed to compute and dispatch it.
type Session struct {
	mu        sync.Mutex
	graph     *graph.Graph
	cache     *compute.Cache
	types     *registry.Registry
	fileName  string
	start     int64
	end       int64
	frame     float64
	variables map[string]string
	context   *execctx.Context
}

// New creates an empty session whose nodes are built by types.
func New(types *registry.Registry, opts Options) (*Session, error) {
	name := opts.Name
	if name == "" {
		name = "script"
	}
	g := graph.New(name)
	cache, err := compute.New(g, opts.CacheSize)
	if err != nil {
		return nil, err
	}
	s := &Session{
		graph:     g,
		cache:     cache,
		types:     types,
		start:     1,
		end:       100,
		frame:     1,
		variables: make(map[string]string),
	}
	s.rebuildContext()
	return s, nil
}

// Close detaches the computation cache.
func (s *Session) Close() {
	s.cache.Close()
}

// Graph returns the node graph.
func (s *Session) Graph() *graph.Graph { return s.graph }

// Root returns the script root node.
func (s *Session) Root() *graph.Node { return s.graph.Root() }

// Evaluator returns the computation cache of the session.
func (s *Session) Evaluator() task.Evaluator { return s.cache }

// Cache returns the computation cache of the session.
func (s *Session) Cache() *compute.Cache { return s.cache }

// Types returns the node type registry.
func (s *Session) Types() *registry.Registry { return s.types }

// FileName returns the path the script was last loaded from or saved to.
func (s *Session) FileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileName
}

// SetFileName changes the path reported by FileName.
func (s *Session) SetFileName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileName = name
}

// Context returns the root context: the current frame, the frame range and
// the script variables. It must not be modified; use Child to extend it.
func (s *Session) Context() *execctx.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// FrameRange returns the first and last frame of the script.
func (s *Session) FrameRange() (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start, s.end
}

// SetFrameRange changes the script frame range.
func (s *Session) SetFrameRange(start, end int64) error {
	if end < start {
		return fmt.Errorf("%w: frame range %d-%d ends before it starts", graph.ErrInvalidOperation, start, end)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start, s.end = start, end
	s.rebuildContext()
	return nil
}

// Frame returns the current frame.
func (s *Session) Frame() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// SetFrame changes the current frame.
func (s *Session) SetFrame(frame float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
	s.rebuildContext()
}

// SetVariable binds a script variable, visible to substitutions.
func (s *Session) SetVariable(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variables[name] = value
	s.rebuildContext()
}

// SetVariables binds several script variables at once.
func (s *Session) SetVariables(vars map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range vars {
		s.variables[k] = v
	}
	s.rebuildContext()
}

// Variables returns a copy of the script variables.
func (s *Session) Variables() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.variables))
	for k, v := range s.variables {
		out[k] = v
	}
	return out
}

// Substitute expands variables and frame padding in str using the root
// context.
func (s *Session) Substitute(str string) string {
	return s.Context().Substitute(str)
}

// Edit runs fn with exclusive access to the graph. Dirty notifications for
// everything fn changes are delivered once fn returns.
func (s *Session) Edit(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, done := graph.WithDirtyScope(ctx)
	err := fn(ctx)
	if derr := done(); err == nil {
		err = derr
	}
	return err
}

// CreateNode builds a node of the named type and adds it to the root. The
// returned node may have been renamed to keep sibling names unique.
func (s *Session) CreateNode(ctx context.Context, typeName, name string) (*graph.Node, error) {
	var n *graph.Node
	err := s.Edit(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.createNode(ctx, typeName, name)
		return err
	})
	return n, err
}

func (s *Session) createNode(ctx context.Context, typeName, name string) (*graph.Node, error) {
	return s.createNodeIn(ctx, s.graph.Root(), typeName, name)
}

func (s *Session) createNodeIn(ctx context.Context, parent *graph.Node, typeName, name string) (*graph.Node, error) {
	if s.types == nil {
		return nil, fmt.Errorf("session has no node type registry")
	}
	n, err := s.types.Create(ctx, s.graph, typeName, name)
	if err != nil {
		return nil, err
	}
	if err := parent.AddChild(ctx, n); err != nil {
		return nil, err
	}
	if n.Name() != name {
		ctxlog.FromContext(ctx).Warn("Node renamed to keep names unique.", "requested", name, "name", n.Name())
	}
	return n, nil
}

// Nodes resolves dotted node paths relative to the root.
func (s *Session) Nodes(paths ...string) ([]*graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*graph.Node, 0, len(paths))
	for _, p := range paths {
		n, ok := s.graph.Descendant(p).(*graph.Node)
		if !ok {
			return nil, fmt.Errorf("no node named '%s' in %s", p, s.graph.Root().Name())
		}
		out = append(out, n)
	}
	return out, nil
}

// TaskNodes returns the task nodes directly below the root, in order.
func (s *Session) TaskNodes() []*graph.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*graph.Node
	for _, n := range s.graph.Root().Nodes() {
		if task.IsTaskNode(n) {
			out = append(out, n)
		}
	}
	return out
}

// rebuildContext must be called with mu held.
func (s *Session) rebuildContext() {
	c := execctx.New()
	for k, v := range s.variables {
		c.Set(k, cty.StringVal(v))
	}
	c.Set(FrameRangeStartEntry, cty.NumberIntVal(s.start))
	c.Set(FrameRangeEndEntry, cty.NumberIntVal(s.end))
	c.SetFrame(s.frame)
	s.context = c
}
