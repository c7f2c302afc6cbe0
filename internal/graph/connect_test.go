package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestSetInput_Basic(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	src := newAdder(t, ctx, g, "src")
	dst := newAdder(t, ctx, g, "dst")

	var changed []string
	dst.PlugInputChangedSignal().Connect(func(_ context.Context, p *Plug) { changed = append(changed, p.Name()) })

	require.NoError(t, dst.Plug("a").SetInput(ctx, src.Plug("sum")))
	assert.Same(t, src.Plug("sum"), dst.Plug("a").Input())
	assert.Equal(t, []*Plug{dst.Plug("a")}, src.Plug("sum").Outputs())
	assert.Equal(t, []string{"a"}, changed)

	// A second output on the same source is fine.
	require.NoError(t, dst.Plug("b").SetInput(ctx, src.Plug("sum")))
	assert.Len(t, src.Plug("sum").Outputs(), 2)

	require.NoError(t, dst.Plug("a").SetInput(ctx, nil))
	assert.Nil(t, dst.Plug("a").Input())
	assert.Equal(t, []*Plug{dst.Plug("b")}, src.Plug("sum").Outputs())
	assert.Same(t, src.Plug("sum"), dst.Plug("b").Source())
}

func TestSetInput_Rejections(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	src := newAdder(t, ctx, g, "src")
	dst := newAdder(t, ctx, g, "dst")

	text := g.NewPlug("text", Out, cty.String, cty.NilVal, Default)
	require.NoError(t, src.AddPlug(ctx, text))
	locked := g.NewPlug("locked", In, cty.Number, cty.NilVal, Serialisable)
	require.NoError(t, dst.AddPlug(ctx, locked))
	group := g.NewCompoundPlug("group", In, Default)
	require.NoError(t, dst.AddPlug(ctx, group))

	pick := g.NewNode("pick", picky{})
	require.NoError(t, g.Root().AddChild(ctx, pick))
	pickIn := g.NewPlug("in", In, cty.DynamicPseudoType, cty.NilVal, Default)
	require.NoError(t, pick.AddPlug(ctx, pickIn))
	forbidden := g.NewPlug("forbidden", Out, cty.Number, cty.NilVal, Default)
	require.NoError(t, src.AddPlug(ctx, forbidden))

	testCases := []struct {
		name  string
		plug  *Plug
		input *Plug
	}{
		{name: "self", plug: dst.Plug("a"), input: dst.Plug("a")},
		{name: "incompatible type", plug: dst.Plug("a"), input: text},
		{name: "accepts-inputs unset", plug: locked, input: src.Plug("sum")},
		{name: "compound to leaf", plug: group, input: src.Plug("sum")},
		{name: "output from foreign node", plug: dst.Plug("sum"), input: src.Plug("sum")},
		{name: "node veto", plug: pickIn, input: forbidden},
		{name: "cycle through affects", plug: src.Plug("a"), input: src.Plug("sum")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.plug.Input()
			assert.False(t, tc.plug.AcceptsInput(tc.input))
			err := tc.plug.SetInput(ctx, tc.input)
			require.ErrorIs(t, err, ErrInvalidOperation)
			assert.Same(t, before, tc.plug.Input())
		})
	}

	t.Run("disconnect always accepted", func(t *testing.T) {
		assert.True(t, locked.AcceptsInput(nil))
		assert.NoError(t, locked.SetInput(ctx, nil))
	})
}

func TestSetInput_CycleAcrossNodes(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	a := newAdder(t, ctx, g, "a")
	b := newAdder(t, ctx, g, "b")
	c := newAdder(t, ctx, g, "c")
	require.NoError(t, b.Plug("a").SetInput(ctx, a.Plug("sum")))
	require.NoError(t, c.Plug("a").SetInput(ctx, b.Plug("sum")))

	err := a.Plug("b").SetInput(ctx, c.Plug("sum"))
	require.ErrorIs(t, err, ErrInvalidOperation)
	assert.Contains(t, err.Error(), "cycle")
}

func TestSetInput_NumberToString(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	src := newAdder(t, ctx, g, "src")
	n := g.NewNode("n", plain{})
	require.NoError(t, g.Root().AddChild(ctx, n))
	text := g.NewPlug("text", In, cty.String, cty.NilVal, Default)
	require.NoError(t, n.AddPlug(ctx, text))

	assert.NoError(t, text.SetInput(ctx, src.Plug("sum")), "number converts safely to string")
}

func newVectorNode(t *testing.T, ctx context.Context, g *Graph, name string, dir Direction) (*Node, *Plug) {
	t.Helper()
	n := g.NewNode(name, plain{})
	require.NoError(t, g.Root().AddChild(ctx, n))
	v := g.NewCompoundPlug("v", dir, Default)
	for _, axis := range []string{"x", "y"} {
		require.NoError(t, v.core().AddChild(ctx, g.NewPlug(axis, dir, cty.Number, cty.NumberIntVal(0), Default)))
	}
	require.NoError(t, n.AddPlug(ctx, v))
	return n, v
}

func TestSetInput_CompoundWiresChildren(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	_, out := newVectorNode(t, ctx, g, "src", Out)
	_, in := newVectorNode(t, ctx, g, "dst", In)

	require.NoError(t, in.SetInput(ctx, out))
	assert.Same(t, out, in.Input())
	for i, c := range in.PlugChildren() {
		assert.Same(t, out.PlugChildren()[i], c.Input())
	}

	// Breaking one child connection breaks the parent connection.
	require.NoError(t, in.PlugChildren()[0].SetInput(ctx, nil))
	assert.Nil(t, in.Input())
	assert.Same(t, out.PlugChildren()[1], in.PlugChildren()[1].Input())

	// Reconnecting the child restores the parent connection.
	require.NoError(t, in.PlugChildren()[0].SetInput(ctx, out.PlugChildren()[0]))
	assert.Same(t, out, in.Input())

	// Disconnecting the parent disconnects every child.
	require.NoError(t, in.SetInput(ctx, nil))
	for _, c := range in.PlugChildren() {
		assert.Nil(t, c.Input())
	}
}

func TestSetInput_CompoundChildCountMismatch(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	_, out := newVectorNode(t, ctx, g, "src", Out)
	_, in := newVectorNode(t, ctx, g, "dst", In)
	require.NoError(t, in.core().AddChild(ctx, g.NewPlug("z", In, cty.Number, cty.NilVal, Default)))

	err := in.SetInput(ctx, out)
	require.ErrorIs(t, err, ErrInvalidOperation)
	for _, c := range in.PlugChildren() {
		assert.Nil(t, c.Input(), "no partial wiring")
	}
}

func TestSetValue(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	n := newAdder(t, ctx, g, "n")
	a := n.Plug("a")

	var set []string
	n.PlugSetSignal().Connect(func(_ context.Context, p *Plug) { set = append(set, p.Name()) })

	require.NoError(t, a.SetValue(ctx, cty.NumberIntVal(4)))
	assert.True(t, a.Value().RawEquals(cty.NumberIntVal(4)))
	assert.Equal(t, []string{"a"}, set)
	assert.False(t, a.IsSetToDefault())

	require.NoError(t, a.SetValue(ctx, cty.NumberIntVal(4)))
	assert.Len(t, set, 1, "setting the same value is a no-op")

	require.NoError(t, a.SetValue(ctx, cty.StringVal("5")), "strings convert to numbers on set")
	assert.True(t, a.Value().RawEquals(cty.NumberIntVal(5)))

	assert.ErrorIs(t, a.SetValue(ctx, cty.StringVal("five")), ErrInvalidOperation)

	a.SetFlags(ctx, ReadOnly, true)
	assert.ErrorIs(t, a.SetValue(ctx, cty.NumberIntVal(1)), ErrInvalidOperation)
	a.SetFlags(ctx, ReadOnly, false)

	src := newAdder(t, ctx, g, "src")
	require.NoError(t, a.SetInput(ctx, src.Plug("sum")))
	assert.ErrorIs(t, a.SetValue(ctx, cty.NumberIntVal(1)), ErrInvalidOperation)

	require.NoError(t, a.SetInput(ctx, nil))
	require.NoError(t, a.ResetDefault(ctx))
	assert.True(t, a.IsSetToDefault())
}

func TestSetFlags(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	n := newAdder(t, ctx, g, "n")
	var changed int
	n.PlugFlagsChangedSignal().Connect(func(context.Context, *Plug) { changed++ })

	p := n.Plug("a")
	p.SetFlags(ctx, Dynamic, true)
	p.SetFlags(ctx, Dynamic, true)
	assert.True(t, p.HasFlags(Dynamic|Serialisable))
	p.SetFlags(ctx, Dynamic, false)
	assert.False(t, p.HasFlags(Dynamic))
	assert.Equal(t, 2, changed)
}
