package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestDirty_AffectsAndDownstream(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	a := newAdder(t, ctx, g, "a")
	b := newAdder(t, ctx, g, "b")
	require.NoError(t, b.Plug("a").SetInput(ctx, a.Plug("sum")))

	rec := recordDirty(g)
	sumBefore := b.Plug("sum").DirtyCount()
	otherBefore := a.Plug("b").DirtyCount()
	require.NoError(t, a.Plug("a").SetValue(ctx, cty.NumberIntVal(1)))

	assert.Equal(t, []string{"a.a", "a.sum", "b.a", "b.sum"}, rec.names)
	assert.Equal(t, sumBefore+1, b.Plug("sum").DirtyCount())
	assert.Equal(t, otherBefore, a.Plug("b").DirtyCount())
}

func TestDirty_ExactlyOncePerScope(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	n := newAdder(t, ctx, g, "n")
	rec := recordDirty(g)

	scoped, done := WithDirtyScope(ctx)
	require.NoError(t, n.Plug("a").SetValue(scoped, cty.NumberIntVal(1)))
	require.NoError(t, n.Plug("a").SetValue(scoped, cty.NumberIntVal(2)))
	require.NoError(t, n.Plug("b").SetValue(scoped, cty.NumberIntVal(3)))
	assert.Empty(t, rec.names, "nothing is emitted before the scope closes")
	assert.True(t, DirtyScopeActive(scoped))

	require.NoError(t, done())
	assert.Equal(t, 1, rec.count("n.sum"))
	assert.Equal(t, 1, rec.count("n.a"))
	assert.Equal(t, []string{"n.a", "n.sum", "n.b"}, rec.names)
	assert.False(t, DirtyScopeActive(scoped))
}

func TestDirty_NestedScopes(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	n := newAdder(t, ctx, g, "n")
	rec := recordDirty(g)

	outer, outerDone := WithDirtyScope(ctx)
	inner, innerDone := WithDirtyScope(outer)
	require.NoError(t, n.Plug("a").SetValue(inner, cty.NumberIntVal(1)))
	require.NoError(t, innerDone())
	assert.Empty(t, rec.names, "only the outermost scope emits")
	require.NoError(t, outerDone())
	assert.Equal(t, 1, rec.count("n.sum"))
}

func TestDirty_CompoundAncestors(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	n, v := newVectorNode(t, ctx, g, "n", In)

	var dirtied []string
	n.PlugDirtiedSignal().Connect(func(_ context.Context, p *Plug) { dirtied = append(dirtied, p.RelativeName(n)) })

	require.NoError(t, v.PlugChildren()[0].SetValue(ctx, cty.NumberIntVal(3)))
	assert.Equal(t, []string{"v.x", "v"}, dirtied, "the compound parent is notified with its child")
}

func TestDirty_CompoundPlugDirtiesLeaves(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	_, out := newVectorNode(t, ctx, g, "src", Out)
	_, in := newVectorNode(t, ctx, g, "dst", In)
	rec := recordDirty(g)

	require.NoError(t, in.SetInput(ctx, out))
	assert.Equal(t, 1, rec.count("dst.v"))
	assert.Equal(t, 1, rec.count("dst.v.x"))
	assert.Equal(t, 1, rec.count("dst.v.y"))
}

func TestDirty_NonLeafAffectsIsProgrammingError(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	n := g.NewNode("broken", compoundAffector{})
	require.NoError(t, g.Root().AddChild(ctx, n))
	in := g.NewPlug("in", In, cty.Number, cty.NumberIntVal(0), Default)
	require.NoError(t, n.AddPlug(ctx, in))
	group := g.NewCompoundPlug("group", Out, Default)
	require.NoError(t, group.core().AddChild(ctx, g.NewPlug("x", Out, cty.Number, cty.NilVal, Default)))
	require.NoError(t, n.AddPlug(ctx, group))

	rec := recordDirty(g)
	err := in.SetValue(ctx, cty.NumberIntVal(1))
	require.ErrorIs(t, err, ErrProgramming)
	assert.Empty(t, rec.names, "the half-finished traversal is discarded")

	// The next traversal starts clean.
	other := g.NewPlug("other", Out, cty.Number, cty.NilVal, Default)
	require.NoError(t, n.AddPlug(ctx, other))
	assert.Equal(t, []string{"broken.other"}, rec.names)
}

func TestDirty_ListenerEditsAreDelivered(t *testing.T) {
	ctx := context.Background()
	g := New("script")
	a := newAdder(t, ctx, g, "a")
	b := newAdder(t, ctx, g, "b")
	rec := recordDirty(g)

	// A listener that mirrors a.a into b.a while dirtiness is being emitted.
	a.PlugDirtiedSignal().Connect(func(ctx context.Context, p *Plug) {
		if p == a.Plug("a") {
			require.NoError(t, b.Plug("a").SetValue(ctx, p.Value()))
		}
	})

	require.NoError(t, a.Plug("a").SetValue(ctx, cty.NumberIntVal(9)))
	assert.Equal(t, []string{"a.a", "a.sum", "b.a", "b.sum"}, rec.names)
	assert.True(t, b.Plug("a").Value().RawEquals(cty.NumberIntVal(9)))
}

func TestDirty_IndependentContexts(t *testing.T) {
	ctx := context.Background()
	g1 := New("one")
	g2 := New("two")
	n1 := newAdder(t, ctx, g1, "n")
	n2 := newAdder(t, ctx, g2, "n")
	rec1 := recordDirty(g1)
	rec2 := recordDirty(g2)

	s1, done1 := WithDirtyScope(ctx)
	require.NoError(t, n1.Plug("a").SetValue(s1, cty.NumberIntVal(1)))
	require.NoError(t, n2.Plug("a").SetValue(ctx, cty.NumberIntVal(1)))
	assert.Empty(t, rec1.names)
	assert.Equal(t, 2, len(rec2.names), "an unrelated context emits immediately")
	require.NoError(t, done1())
	assert.Equal(t, 2, len(rec1.names))
}

func TestSignal_DisconnectDuringEmit(t *testing.T) {
	var s Signal[int]
	var calls []string
	var second Connection
	s.Connect(func(context.Context, int) {
		calls = append(calls, "first")
		second.Disconnect()
	})
	second = s.Connect(func(context.Context, int) { calls = append(calls, "second") })
	s.Connect(func(context.Context, int) { calls = append(calls, "third") })

	s.Emit(context.Background(), 1)
	assert.Equal(t, []string{"first", "third"}, calls)
	assert.Equal(t, 2, s.Len())
	second.Disconnect()
	assert.Equal(t, 2, s.Len())
}
