package graph

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vk/nodeflow/internal/nodeid"
)

// Component is implemented by *Node and *Plug.
type Component interface {
	ID() ID
	Name() string
	Graph() *Graph
	Parent() Component
	Children() []Component
	FullName() string
	core() *base
}

// base holds the state shared by every component.
type base struct {
	graph    *Graph
	id       ID
	name     string
	parent   ID
	children []ID
	self     Component

	childAdded   Signal[Component]
	childRemoved Signal[Component]
	nameChanged  Signal[Component]
}

func (b *base) init(g *Graph, name string, self Component) {
	mustValidName(name)
	b.graph = g
	b.name = name
	b.self = self
	b.id = g.register(self)
}

func (b *base) core() *base { return b }

// ID returns the arena handle of the component.
func (b *base) ID() ID { return b.id }

// Name returns the component name, unique among its siblings.
func (b *base) Name() string { return b.name }

// Graph returns the owning arena.
func (b *base) Graph() *Graph { return b.graph }

// Parent returns the parent, or nil for detached components and the root.
func (b *base) Parent() Component {
	return b.graph.Lookup(b.parent)
}

// Children returns the children in insertion order.
func (b *base) Children() []Component {
	out := make([]Component, 0, len(b.children))
	for _, id := range b.children {
		out = append(out, b.graph.Lookup(id))
	}
	return out
}

// Child returns the direct child called name.
func (b *base) Child(name string) Component {
	for _, id := range b.children {
		if c := b.graph.Lookup(id); c.Name() == name {
			return c
		}
	}
	return nil
}

// Descendant resolves a dotted path relative to this component. It returns
// nil when the path is malformed or names nothing.
func (b *base) Descendant(path string) Component {
	addr, err := nodeid.Parse(path)
	if err != nil {
		return nil
	}
	var cur Component = b.self
	for _, name := range addr.Names() {
		cur = cur.core().Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// FullName returns the dotted path from the topmost ancestor.
func (b *base) FullName() string {
	return b.Address().String()
}

// Address returns the structured path from the topmost ancestor.
func (b *base) Address() *nodeid.Address {
	var names []string
	for c := b.self; c != nil; c = c.Parent() {
		names = append(names, c.Name())
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return nodeid.FromNames(names...)
}

// RelativeName returns the dotted path from ancestor. A nil ancestor yields
// the full name.
func (b *base) RelativeName(ancestor Component) string {
	if ancestor == nil {
		return b.FullName()
	}
	rel, err := b.Address().Relative(ancestor.core().Address())
	if err != nil {
		return b.FullName()
	}
	return rel.String()
}

// IsAncestorOf reports whether c is strictly below this component.
func (b *base) IsAncestorOf(c Component) bool {
	for p := c.Parent(); p != nil; p = p.Parent() {
		if p.core() == b {
			return true
		}
	}
	return false
}

// ChildAddedSignal is emitted after a child is parented here.
func (b *base) ChildAddedSignal() *Signal[Component] { return &b.childAdded }

// ChildRemovedSignal is emitted after a child is unparented from here.
func (b *base) ChildRemovedSignal() *Signal[Component] { return &b.childRemoved }

// NameChangedSignal is emitted after SetName changes the name.
func (b *base) NameChangedSignal() *Signal[Component] { return &b.nameChanged }

// SetName renames the component, making the name unique among its siblings.
// It returns the name actually applied.
func (b *base) SetName(ctx context.Context, name string) (string, error) {
	if !validName(name) {
		return b.name, fmt.Errorf("%w: invalid name %q", ErrInvalidOperation, name)
	}
	if p := b.Parent(); p != nil {
		name = p.core().uniqueName(name, b.id)
	}
	if name == b.name {
		return name, nil
	}
	b.name = name
	b.nameChanged.Emit(ctx, b.self)
	return name, nil
}

// AddChild parents child here, removing it from its previous parent. The
// acceptance predicates of both components must approve. A name clash with a
// sibling is resolved by adding a numeric suffix.
func (b *base) AddChild(ctx context.Context, child Component) error {
	cb := child.core()
	switch {
	case cb.graph != b.graph:
		return fmt.Errorf("%w: %s belongs to a different graph", ErrInvalidOperation, child.Name())
	case cb == b:
		return fmt.Errorf("%w: %s cannot be its own child", ErrInvalidOperation, b.FullName())
	case cb.IsAncestorOf(b.self):
		return fmt.Errorf("%w: %s is an ancestor of %s", ErrInvalidOperation, child.FullName(), b.FullName())
	}
	if cb.parent == b.id {
		return nil
	}
	if err := acceptsChild(b.self, child); err != nil {
		return fmt.Errorf("%w: %s does not accept child %s: %v", ErrInvalidOperation, b.FullName(), child.Name(), err)
	}
	if err := acceptsParent(child, b.self); err != nil {
		return fmt.Errorf("%w: %s does not accept parent %s: %v", ErrInvalidOperation, child.Name(), b.FullName(), err)
	}

	if old := child.Parent(); old != nil {
		old.core().detach(ctx, child)
	}
	cb.name = b.uniqueName(cb.name, cb.id)
	cb.parent = b.id
	b.children = append(b.children, cb.id)
	b.childAdded.Emit(ctx, child)

	if p, ok := child.(*Plug); ok && p.Node() != nil {
		return b.graph.propagateDirtiness(ctx, p)
	}
	return nil
}

// RemoveChild unparents child. External connections of the child are broken
// first, so the removal leaves no dangling edges.
func (b *base) RemoveChild(ctx context.Context, child Component) error {
	if child.core().parent != b.id {
		return fmt.Errorf("%w: %s is not a child of %s", ErrInvalidOperation, child.Name(), b.FullName())
	}
	if err := disconnectExternal(ctx, child); err != nil {
		return err
	}
	if p, ok := child.(*Plug); ok && p.Node() != nil {
		if err := b.graph.propagateDirtiness(ctx, p); err != nil {
			return err
		}
	}
	b.detach(ctx, child)
	return nil
}

func (b *base) detach(ctx context.Context, child Component) {
	cb := child.core()
	for i, id := range b.children {
		if id == cb.id {
			b.children = append(b.children[:i:i], b.children[i+1:]...)
			break
		}
	}
	cb.parent = 0
	b.childRemoved.Emit(ctx, child)
}

// uniqueName returns name, or name with the next free numeric suffix when a
// sibling other than self already uses it.
func (b *base) uniqueName(name string, self ID) string {
	clash := false
	for _, id := range b.children {
		if id != self && b.graph.Lookup(id).Name() == name {
			clash = true
			break
		}
	}
	if !clash {
		return name
	}
	prefix := strings.TrimRight(name, "0123456789")
	highest := 0
	for _, id := range b.children {
		if id == self {
			continue
		}
		sibling := b.graph.Lookup(id).Name()
		if !strings.HasPrefix(sibling, prefix) {
			continue
		}
		if n, err := strconv.Atoi(sibling[len(prefix):]); err == nil && n > highest {
			highest = n
		}
	}
	return prefix + strconv.Itoa(highest+1)
}

func validName(name string) bool {
	return nodeid.ValidName(name)
}

func acceptsChild(parent, child Component) error {
	switch p := parent.(type) {
	case *Node:
		switch child.(type) {
		case *Plug, *Node:
		default:
			return fmt.Errorf("unsupported child type %T", child)
		}
		if p.childAcceptor != nil && !p.childAcceptor.AcceptsChild(p, child) {
			return fmt.Errorf("rejected by %s", p.TypeName())
		}
	case *Plug:
		c, ok := child.(*Plug)
		if !ok {
			return fmt.Errorf("plugs only accept plug children")
		}
		if !p.compound {
			return fmt.Errorf("%s is not a compound plug", p.Name())
		}
		if c.direction != p.direction {
			return fmt.Errorf("child direction %s does not match %s", c.direction, p.direction)
		}
	}
	return nil
}

func acceptsParent(child, parent Component) error {
	switch c := child.(type) {
	case *Node:
		if c.IsScriptRoot() {
			return fmt.Errorf("a script root cannot be parented")
		}
		if _, ok := parent.(*Node); !ok {
			return fmt.Errorf("nodes can only be parented to nodes")
		}
	case *Plug:
		switch parent.(type) {
		case *Node, *Plug:
		default:
			return fmt.Errorf("unsupported parent type %T", parent)
		}
	}
	return nil
}

// disconnectExternal breaks every connection between the subtree rooted at
// c and plugs outside it.
func disconnectExternal(ctx context.Context, c Component) error {
	ctx, done := WithDirtyScope(ctx)
	inside := func(p *Plug) bool {
		return p.core() == c.core() || c.core().IsAncestorOf(p)
	}
	var plugs []*Plug
	if p, ok := c.(*Plug); ok {
		plugs = append(plugs, p)
	}
	plugs = append(plugs, Descendants[*Plug](c, true)...)
	for _, p := range plugs {
		if in := p.Input(); in != nil && !inside(in) {
			if err := p.setInput(ctx, nil, false, true); err != nil {
				done()
				return err
			}
		}
		for _, out := range p.Outputs() {
			if !inside(out) {
				if err := out.setInput(ctx, nil, false, true); err != nil {
					done()
					return err
				}
			}
		}
	}
	return done()
}
