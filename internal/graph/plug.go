package graph

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Direction of a plug.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// Flags control plug behaviour.
type Flags uint32

const (
	// Serialisable plugs are written when a script is saved.
	Serialisable Flags = 1 << iota
	// AcceptsInputs plugs may be connected.
	AcceptsInputs
	// ReadOnly plugs reject SetValue.
	ReadOnly
	// Dynamic plugs were added at runtime rather than by the node type.
	Dynamic
	// Cacheable output values are memoized by the computation cache.
	Cacheable

	None    Flags = 0
	Default       = Serialisable | AcceptsInputs | Cacheable
)

// Plug is a typed parameter or output slot.
type Plug struct {
	base
	direction  Direction
	flags      Flags
	compound   bool
	typ        cty.Type
	def        cty.Value
	value      cty.Value
	input      ID
	outputs    []ID
	dirtyCount uint64
}

// NewPlug creates a detached leaf plug. def is converted to typ; a nil def
// becomes a typed null. It panics on an invalid name or an inconvertible
// default, both of which are programming errors.
func (g *Graph) NewPlug(name string, dir Direction, typ cty.Type, def cty.Value, flags Flags) *Plug {
	if def == cty.NilVal {
		def = cty.NullVal(typ)
	}
	conv, err := convert.Convert(def, typ)
	if err != nil {
		panic(fmt.Sprintf("graph: default for plug %q: %v", name, err))
	}
	p := &Plug{direction: dir, flags: flags, typ: typ, def: conv, value: conv}
	p.init(g, name, p)
	return p
}

// NewCompoundPlug creates a detached plug that groups child plugs.
func (g *Graph) NewCompoundPlug(name string, dir Direction, flags Flags) *Plug {
	p := &Plug{direction: dir, flags: flags, compound: true, typ: cty.DynamicPseudoType}
	p.init(g, name, p)
	return p
}

// Direction returns In or Out.
func (p *Plug) Direction() Direction { return p.direction }

// Type returns the declared value type. Compound plugs report
// cty.DynamicPseudoType.
func (p *Plug) Type() cty.Type { return p.typ }

// Default returns the default value of a leaf plug.
func (p *Plug) Default() cty.Value { return p.def }

// IsCompound reports whether p was created to hold child plugs.
func (p *Plug) IsCompound() bool { return p.compound }

// IsLeaf reports whether p has no child plugs.
func (p *Plug) IsLeaf() bool { return len(p.children) == 0 }

// DirtyCount increases every time the plug is dirtied.
func (p *Plug) DirtyCount() uint64 { return p.dirtyCount }

// Flags returns the current flags.
func (p *Plug) Flags() Flags { return p.flags }

// HasFlags reports whether all of f are set.
func (p *Plug) HasFlags(f Flags) bool { return p.flags&f == f }

// SetFlags turns f on or off and emits flags-changed if anything changed.
func (p *Plug) SetFlags(ctx context.Context, f Flags, enable bool) {
	next := p.flags &^ f
	if enable {
		next = p.flags | f
	}
	if next == p.flags {
		return
	}
	p.flags = next
	if n := p.Node(); n != nil {
		n.plugFlagsChanged.Emit(ctx, p)
	}
}

// Node returns the nearest node ancestor.
func (p *Plug) Node() *Node {
	for c := p.Parent(); c != nil; c = c.Parent() {
		if n, ok := c.(*Node); ok {
			return n
		}
	}
	return nil
}

// ParentPlug returns the compound plug p belongs to, or nil.
func (p *Plug) ParentPlug() *Plug {
	pp, _ := p.Parent().(*Plug)
	return pp
}

// PlugChildren returns the child plugs in order.
func (p *Plug) PlugChildren() []*Plug {
	out := make([]*Plug, 0, len(p.children))
	for _, id := range p.children {
		out = append(out, p.graph.Lookup(id).(*Plug))
	}
	return out
}

// Leaves returns all leaf plugs below p, or p itself if it is a leaf.
func (p *Plug) Leaves() []*Plug {
	if p.IsLeaf() {
		return []*Plug{p}
	}
	var out []*Plug
	for _, c := range p.PlugChildren() {
		out = append(out, c.Leaves()...)
	}
	return out
}

// Input returns the upstream plug, or nil.
func (p *Plug) Input() *Plug {
	in, _ := p.graph.Lookup(p.input).(*Plug)
	return in
}

// Outputs returns the downstream plugs in connection order.
func (p *Plug) Outputs() []*Plug {
	out := make([]*Plug, 0, len(p.outputs))
	for _, id := range p.outputs {
		if o, ok := p.graph.Lookup(id).(*Plug); ok {
			out = append(out, o)
		}
	}
	return out
}

// Source follows inputs upstream to the plug that provides the value.
func (p *Plug) Source() *Plug {
	src := p
	for in := src.Input(); in != nil; in = src.Input() {
		src = in
	}
	return src
}

// Value returns the static value of the plug. Compound plugs return an
// object of their children's static values. It does not follow inputs and
// does not compute anything; see the compute package for that.
func (p *Plug) Value() cty.Value {
	if !p.compound {
		return p.value
	}
	attrs := make(map[string]cty.Value, len(p.children))
	for _, c := range p.PlugChildren() {
		attrs[c.name] = c.Value()
	}
	return cty.ObjectVal(attrs)
}

// SetValue stores a static value on a leaf plug and dirties dependents.
// Setting the current value again is a no-op.
func (p *Plug) SetValue(ctx context.Context, v cty.Value) error {
	switch {
	case p.compound:
		return fmt.Errorf("%w: cannot set a value on compound plug %s", ErrInvalidOperation, p.FullName())
	case p.HasFlags(ReadOnly):
		return fmt.Errorf("%w: plug %s is read-only", ErrInvalidOperation, p.FullName())
	case p.input != 0:
		return fmt.Errorf("%w: plug %s has an input", ErrInvalidOperation, p.FullName())
	}
	conv, err := convert.Convert(v, p.typ)
	if err != nil {
		return fmt.Errorf("%w: value for %s: %v", ErrInvalidOperation, p.FullName(), err)
	}
	if conv.RawEquals(p.value) {
		return nil
	}
	p.value = conv
	p.emitPlugSet(ctx)
	return p.graph.propagateDirtiness(ctx, p)
}

// ResetDefault restores the default value.
func (p *Plug) ResetDefault(ctx context.Context) error {
	if p.compound {
		for _, c := range p.PlugChildren() {
			if err := c.ResetDefault(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	return p.SetValue(ctx, p.def)
}

// IsSetToDefault reports whether every leaf below p holds its default and
// has no input.
func (p *Plug) IsSetToDefault() bool {
	for _, l := range p.Leaves() {
		if l.input != 0 || !l.value.RawEquals(l.def) {
			return false
		}
	}
	return true
}

func (p *Plug) emitPlugSet(ctx context.Context) {
	for cur := p; cur != nil; cur = cur.ParentPlug() {
		if n := cur.Node(); n != nil {
			n.plugSet.Emit(ctx, cur)
		}
	}
	for _, o := range p.Outputs() {
		o.emitPlugSet(ctx)
	}
}
