package graph

import "context"

// Behavior gives a Node its type. Optional capabilities are detected once,
// when the node is created: Affector, InputAcceptor and ChildAcceptor.
type Behavior interface {
	TypeName() string
}

// Affector declares which output plugs of a node depend on an input plug.
// Affects must report leaf plugs only and must not have side effects.
type Affector interface {
	Affects(input *Plug) []*Plug
}

// InputAcceptor lets a node veto connections to its plugs.
type InputAcceptor interface {
	AcceptsInput(plug, input *Plug) bool
}

// ChildAcceptor lets a node veto new children.
type ChildAcceptor interface {
	AcceptsChild(parent *Node, child Component) bool
}

// Node owns plugs and other nodes.
type Node struct {
	base
	behavior      Behavior
	affector      Affector
	inputAcceptor InputAcceptor
	childAcceptor ChildAcceptor

	plugSet          Signal[*Plug]
	plugInputChanged Signal[*Plug]
	plugFlagsChanged Signal[*Plug]
	plugDirtied      Signal[*Plug]
}

// NewNode creates a detached node. It panics if name is not a valid
// component name.
func (g *Graph) NewNode(name string, b Behavior) *Node {
	n := &Node{behavior: b}
	if a, ok := b.(Affector); ok {
		n.affector = a
	}
	if a, ok := b.(InputAcceptor); ok {
		n.inputAcceptor = a
	}
	if a, ok := b.(ChildAcceptor); ok {
		n.childAcceptor = a
	}
	n.init(g, name, n)
	return n
}

// Behavior returns the behaviour the node was created with.
func (n *Node) Behavior() Behavior { return n.behavior }

// TypeName returns the behaviour type name.
func (n *Node) TypeName() string { return n.behavior.TypeName() }

// IsScriptRoot reports whether n is the root of its graph.
func (n *Node) IsScriptRoot() bool { return n.graph.root == n }

// Script returns the graph root if n is attached to it, or nil.
func (n *Node) Script() *Node {
	var top Component = n
	for p := top.Parent(); p != nil; p = p.Parent() {
		top = p
	}
	if r, ok := top.(*Node); ok && r.IsScriptRoot() {
		return r
	}
	return nil
}

// Affects returns the outputs that depend on input, or nil when the node
// declares no dependencies.
func (n *Node) Affects(input *Plug) []*Plug {
	if n.affector == nil {
		return nil
	}
	return n.affector.Affects(input)
}

// Plug returns the plug at the dotted path below n, or nil.
func (n *Node) Plug(path string) *Plug {
	p, _ := n.Descendant(path).(*Plug)
	return p
}

// Plugs returns the direct child plugs.
func (n *Node) Plugs() []*Plug {
	return Descendants[*Plug](n, false)
}

// Nodes returns the direct child nodes.
func (n *Node) Nodes() []*Node {
	return Descendants[*Node](n, false)
}

// AddPlug parents p to n.
func (n *Node) AddPlug(ctx context.Context, p *Plug) error {
	return n.AddChild(ctx, p)
}

// PlugSetSignal is emitted when a plug value is set, for the plug, its
// compound ancestors and downstream plugs.
func (n *Node) PlugSetSignal() *Signal[*Plug] { return &n.plugSet }

// PlugInputChangedSignal is emitted after a plug input changes, before
// dirtiness is propagated.
func (n *Node) PlugInputChangedSignal() *Signal[*Plug] { return &n.plugInputChanged }

// PlugFlagsChangedSignal is emitted after plug flags change.
func (n *Node) PlugFlagsChangedSignal() *Signal[*Plug] { return &n.plugFlagsChanged }

// PlugDirtiedSignal is emitted once per dirtied plug.
func (n *Node) PlugDirtiedSignal() *Signal[*Plug] { return &n.plugDirtied }
