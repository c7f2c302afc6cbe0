package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// AcceptsInput reports whether SetInput(input) would succeed.
func (p *Plug) AcceptsInput(input *Plug) bool {
	return p.checkInput(input) == nil
}

// checkInput returns the reason input is rejected, or nil.
func (p *Plug) checkInput(input *Plug) error {
	// A disconnection is always accepted.
	if input == nil {
		return nil
	}
	if !p.HasFlags(AcceptsInputs) {
		return errors.New("plug does not accept inputs")
	}
	if input == p {
		return errors.New("a plug cannot be its own input")
	}
	if input.graph != p.graph {
		return errors.New("plugs belong to different graphs")
	}
	if input.id == p.input {
		return nil
	}
	if n := p.Node(); n != nil {
		if p.direction == Out {
			if in := input.Node(); in == nil || (in != n && !n.IsAncestorOf(in)) {
				return errors.New("an output plug only accepts inputs from its own node or from nodes inside it")
			}
		}
		if n.inputAcceptor != nil && !n.inputAcceptor.AcceptsInput(p, input) {
			return fmt.Errorf("rejected by %s", n.TypeName())
		}
	}
	for _, o := range p.Outputs() {
		if !typesCompatible(input, o) {
			return fmt.Errorf("downstream plug %s would not accept %s", o.FullName(), input.FullName())
		}
	}

	ours, theirs := p.PlugChildren(), input.PlugChildren()
	if p.compound != input.compound {
		return errors.New("cannot connect compound and leaf plugs")
	}
	if len(ours) > len(theirs) {
		return fmt.Errorf("input has %d children, need at least %d", len(theirs), len(ours))
	}
	for i, c := range ours {
		if err := c.checkInput(theirs[i]); err != nil {
			return fmt.Errorf("child %s: %w", c.Name(), err)
		}
	}
	if !p.compound {
		if !typesCompatible(input, p) {
			return fmt.Errorf("type %s is not compatible with %s", input.typ.FriendlyName(), p.typ.FriendlyName())
		}
		if dependsOn(input, p) {
			return errors.New("connection would create a cycle")
		}
	}
	return nil
}

func typesCompatible(from, to *Plug) bool {
	if from.compound || to.compound {
		return from.compound == to.compound
	}
	if to.typ.Equals(cty.DynamicPseudoType) || from.typ.Equals(to.typ) {
		return true
	}
	return convert.GetConversion(from.typ, to.typ) != nil
}

// upstream returns the plugs whose values p depends on: its input, or for an
// unconnected output, the node inputs that affect it.
func upstream(p *Plug) []*Plug {
	if in := p.Input(); in != nil {
		return []*Plug{in}
	}
	if p.direction != Out {
		return nil
	}
	n := p.Node()
	if n == nil || n.affector == nil {
		return nil
	}
	var deps []*Plug
	for _, candidate := range LeafPlugs(n, In) {
		for _, a := range n.affector.Affects(candidate) {
			if a == p {
				deps = append(deps, candidate)
				break
			}
		}
	}
	return deps
}

// dependsOn reports whether from transitively depends on target.
func dependsOn(from, target *Plug) bool {
	visited := make(map[ID]bool)
	var visit func(p *Plug) bool
	visit = func(p *Plug) bool {
		if p == target {
			return true
		}
		if visited[p.id] {
			return false
		}
		visited[p.id] = true
		for _, u := range upstream(p) {
			if visit(u) {
				return true
			}
		}
		return false
	}
	return visit(from)
}

// SetInput connects input to p, or disconnects p when input is nil. For
// compound plugs the children are wired to the corresponding children of
// input. Nothing is changed when the connection is rejected.
func (p *Plug) SetInput(ctx context.Context, input *Plug) error {
	if err := p.checkInput(input); err != nil {
		from := "<nil>"
		if input != nil {
			from = input.FullName()
		}
		return fmt.Errorf("%w: cannot connect %s to %s: %v", ErrInvalidOperation, from, p.FullName(), err)
	}
	if input != nil && input.id == p.input {
		return nil
	}
	if input == nil && p.input == 0 && allDescendantInputsNil(p) {
		return nil
	}
	ctx, done := WithDirtyScope(ctx)
	if err := p.setInput(ctx, input, true, true); err != nil {
		done()
		return err
	}
	return done()
}

func allDescendantInputsNil(p *Plug) bool {
	for _, c := range p.PlugChildren() {
		if c.input != 0 || !allDescendantInputsNil(c) {
			return false
		}
	}
	return true
}

func (p *Plug) setInput(ctx context.Context, input *Plug, setChildren, updateParent bool) error {
	if setChildren {
		var theirs []*Plug
		if input != nil {
			theirs = input.PlugChildren()
		}
		for i, c := range p.PlugChildren() {
			var ci *Plug
			if input != nil {
				ci = theirs[i]
			}
			if err := c.setInput(ctx, ci, true, false); err != nil {
				return err
			}
		}
	}

	var newID ID
	if input != nil {
		newID = input.id
	}
	if newID != p.input {
		if old := p.Input(); old != nil {
			old.removeOutput(p.id)
		}
		p.input = newID
		if input != nil {
			input.outputs = append(input.outputs, p.id)
		}
		if n := p.Node(); n != nil {
			n.plugInputChanged.Emit(ctx, p)
		}
		if err := p.graph.propagateDirtiness(ctx, p); err != nil {
			return err
		}
	}

	if updateParent {
		if pp := p.ParentPlug(); pp != nil {
			return pp.updateInputFromChildInputs(ctx)
		}
	}
	return nil
}

func (p *Plug) removeOutput(id ID) {
	for i, o := range p.outputs {
		if o == id {
			p.outputs = append(p.outputs[:i:i], p.outputs[i+1:]...)
			return
		}
	}
}

// updateInputFromChildInputs connects p to a compound plug when every child
// of p is connected to the matching child of that plug, and disconnects p
// otherwise.
func (p *Plug) updateInputFromChildInputs(ctx context.Context) error {
	var candidate *Plug
	children := p.PlugChildren()
	for i, c := range children {
		in := c.Input()
		if in == nil {
			candidate = nil
			break
		}
		parent := in.ParentPlug()
		if parent == nil || (i > 0 && parent != candidate) {
			candidate = nil
			break
		}
		siblings := parent.PlugChildren()
		if i >= len(siblings) || siblings[i] != in {
			candidate = nil
			break
		}
		candidate = parent
	}
	if candidate == p {
		candidate = nil
	}
	if candidate != nil && len(candidate.PlugChildren()) != len(children) {
		candidate = nil
	}
	if candidate == p.Input() {
		return nil
	}
	return p.setInput(ctx, candidate, false, true)
}
