package textwriter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nodeflow/internal/compute"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/vk/nodeflow/internal/task"
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

	n, err := r.Create(ctx, g, "TextWriter", "writer")
	require.NoError(t, err)
	require.NoError(t, g.Root().AddChild(ctx, n))
	return ctx, n, cache
}

func frames(base *execctx.Context, fs ...float64) []*execctx.Context {
	var out []*execctx.Context
	for _, f := range fs {
		out = append(out, base.WithFrame(f))
	}
	return out
}

func TestTextWriter_WritesOneFilePerFrame(t *testing.T) {
	ctx, n, cache := setup(t)
	dir := t.TempDir()
	require.NoError(t, n.Plug("fileName").SetValue(ctx, cty.StringVal("${dir}/sub/out.###.txt")))
	require.NoError(t, n.Plug("text").SetValue(ctx, cty.StringVal("frame $frame of ${shot}")))

	base := execctx.New().With("dir", cty.StringVal(dir)).With("shot", cty.StringVal("s01"))
	exe, err := task.ExecutableOf(n)
	require.NoError(t, err)
	require.NoError(t, exe.Execute(ctx, n, frames(base, 1, 2), cache))

	for name, want := range map[string]string{
		"out.001.txt": "frame 1 of s01\n",
		"out.002.txt": "frame 2 of s01\n",
	} {
		got, err := os.ReadFile(filepath.Join(dir, "sub", name))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestTextWriter_AppendMode(t *testing.T) {
	ctx, n, cache := setup(t)
	file := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, n.Plug("fileName").SetValue(ctx, cty.StringVal(file)))
	require.NoError(t, n.Plug("text").SetValue(ctx, cty.StringVal("#")))
	require.NoError(t, n.Plug("mode").SetValue(ctx, cty.StringVal(ModeAppend)))

	exe, err := task.ExecutableOf(n)
	require.NoError(t, err)
	require.NoError(t, exe.Execute(ctx, n, frames(execctx.New(), 1, 2, 3), cache))

	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", string(got))
}

func TestTextWriter_UnknownMode(t *testing.T) {
	ctx, n, cache := setup(t)
	require.NoError(t, n.Plug("fileName").SetValue(ctx, cty.StringVal(filepath.Join(t.TempDir(), "x.txt"))))
	require.NoError(t, n.Plug("mode").SetValue(ctx, cty.StringVal("rw")))

	exe, err := task.ExecutableOf(n)
	require.NoError(t, err)
	err = exe.Execute(ctx, n, frames(execctx.New(), 1), cache)
	assert.ErrorContains(t, err, "unknown mode 'rw'")
}

func TestTextWriter_ExecutionHash(t *testing.T) {
	ctx, n, cache := setup(t)
	exe, err := task.ExecutableOf(n)
	require.NoError(t, err)

	hash := func(c *execctx.Context) hashing.Hash {
		h, err := exe.ExecutionHash(ctx, n, c, cache)
		require.NoError(t, err)
		return h
	}

	assert.Equal(t, hashing.Zero, hash(execctx.New().WithFrame(1)), "no file name means no work")

	require.NoError(t, n.Plug("fileName").SetValue(ctx, cty.StringVal("out.txt")))
	assert.False(t, hash(execctx.New().WithFrame(1)).IsZero())
	assert.Equal(t, hash(execctx.New().WithFrame(1)), hash(execctx.New().WithFrame(2)),
		"a frame independent file is the same work on every frame")

	require.NoError(t, n.Plug("fileName").SetValue(ctx, cty.StringVal("out.#.txt")))
	assert.NotEqual(t, hash(execctx.New().WithFrame(1)), hash(execctx.New().WithFrame(2)))
}
