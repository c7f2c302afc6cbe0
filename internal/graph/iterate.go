package graph

// WalkAction controls a Walk.
type WalkAction int

const (
	// Continue descends into the children of the visited component.
	Continue WalkAction = iota
	// SkipChildren prunes the subtree below the visited component.
	SkipChildren
	// Stop ends the walk.
	Stop
)

// Walk visits the descendants of root depth-first, in child order. root
// itself is not visited. When recursive is false only direct children are
// visited.
func Walk(root Component, recursive bool, fn func(Component) WalkAction) {
	walk(root, recursive, fn)
}

func walk(c Component, recursive bool, fn func(Component) WalkAction) bool {
	for _, child := range c.Children() {
		switch fn(child) {
		case Stop:
			return false
		case SkipChildren:
			continue
		}
		if recursive && !walk(child, recursive, fn) {
			return false
		}
	}
	return true
}

// Descendants returns the descendants of root that are of type T.
func Descendants[T Component](root Component, recursive bool) []T {
	return Filter[T](root, recursive, nil)
}

// Filter returns the descendants of root of type T accepted by pred. A nil
// pred accepts everything.
func Filter[T Component](root Component, recursive bool, pred func(T) bool) []T {
	var out []T
	Walk(root, recursive, func(c Component) WalkAction {
		if t, ok := c.(T); ok && (pred == nil || pred(t)) {
			out = append(out, t)
		}
		return Continue
	})
	return out
}

// InputPlugs returns the direct input plugs of n.
func InputPlugs(n *Node) []*Plug {
	return Filter(n, false, func(p *Plug) bool { return p.direction == In })
}

// OutputPlugs returns the direct output plugs of n.
func OutputPlugs(n *Node) []*Plug {
	return Filter(n, false, func(p *Plug) bool { return p.direction == Out })
}

// LeafPlugs returns every leaf plug of n, excluding plugs of child nodes.
func LeafPlugs(n *Node, dir Direction) []*Plug {
	var out []*Plug
	Walk(n, true, func(c Component) WalkAction {
		switch v := c.(type) {
		case *Node:
			return SkipChildren
		case *Plug:
			if v.IsLeaf() && v.direction == dir {
				out = append(out, v)
			}
		}
		return Continue
	})
	return out
}
