package env_vars

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nodeflow/internal/compute"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

func setup(t *testing.T) (context.Context, *graph.Node, *compute.Cache) {
	t.Helper()
	ctx := context.Background()
	r := registry.New()
	(&Module{}).Register(r)
	require.NoError(t, r.ValidateRegistry(ctx))

	g := graph.New("script")
	cache, err := compute.New(g, 0)
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	n, err := r.Create(ctx, g, "Environment", "env")
	require.NoError(t, err)
	require.NoError(t, g.Root().AddChild(ctx, n))
	return ctx, n, cache
}

func TestEnvironment_Value(t *testing.T) {
	ctx, n, cache := setup(t)
	t.Setenv("NODEFLOW_TEST_VALUE", "one")
	require.NoError(t, n.Plug("name").SetValue(ctx, cty.StringVal("NODEFLOW_TEST_VALUE")))

	c := execctx.New()
	v, err := cache.Value(ctx, n.Plug("value"), c)
	require.NoError(t, err)
	assert.Equal(t, "one", v.AsString())
	h1, err := cache.Hash(ctx, n.Plug("value"), c)
	require.NoError(t, err)

	t.Setenv("NODEFLOW_TEST_VALUE", "two")
	h2, err := cache.Hash(ctx, n.Plug("value"), c)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "a changed variable changes the hash")
	v, err = cache.Value(ctx, n.Plug("value"), c)
	require.NoError(t, err)
	assert.Equal(t, "two", v.AsString())
}

func TestEnvironment_Fallback(t *testing.T) {
	ctx, n, cache := setup(t)
	require.NoError(t, n.Plug("name").SetValue(ctx, cty.StringVal("NODEFLOW_TEST_UNSET")))
	require.NoError(t, n.Plug("fallback").SetValue(ctx, cty.StringVal("default")))

	v, err := cache.Value(ctx, n.Plug("value"), execctx.New())
	require.NoError(t, err)
	assert.Equal(t, "default", v.AsString())
}

func TestEnvironment_NameIsNotConnectable(t *testing.T) {
	_, n, _ := setup(t)
	assert.False(t, n.Plug("name").HasFlags(graph.AcceptsInputs))
}
