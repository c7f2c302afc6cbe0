package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nodeflow/internal/dispatch"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/localexecutor"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/vk/nodeflow/internal/task"
	"github.com/zclconf/go-cty/cty"
)

var _ dispatch.Session = (*Session)(nil)

type number struct{}

func (number) TypeName() string { return "Number" }

type step struct{}

func (step) TypeName() string { return "Step" }

func (step) ExecutionHash(_ context.Context, n *graph.Node, c *execctx.Context, _ task.Evaluator) (hashing.Hash, error) {
	return hashing.New().String(n.FullName()).Float(c.Frame()).Sum(), nil
}

func (step) Requirements(_ context.Context, n *graph.Node, c *execctx.Context, _ task.Evaluator) ([]*task.Task, error) {
	return task.PreTaskRequirements(n, c), nil
}

func (step) Execute(context.Context, *graph.Node, []*execctx.Context, task.Evaluator) error {
	return nil
}

type testModule struct{}

func (testModule) Register(r *registry.Registry) {
	r.RegisterNodeType(&registry.NodeType{Name: "Number", New: func(ctx context.Context, g *graph.Graph, name string) (*graph.Node, error) {
		n := g.NewNode(name, number{})
		settings := g.NewCompoundPlug("settings", graph.In, graph.Default)
		if err := settings.AddChild(ctx, g.NewPlug("scale", graph.In, cty.Number, cty.NumberIntVal(1), graph.Default)); err != nil {
			return nil, err
		}
		if err := settings.AddChild(ctx, g.NewPlug("label", graph.In, cty.String, cty.StringVal(""), graph.Default)); err != nil {
			return nil, err
		}
		for _, p := range []*graph.Plug{
			g.NewPlug("value", graph.In, cty.Number, cty.Zero, graph.Default),
			settings,
			g.NewPlug("out", graph.Out, cty.Number, cty.Zero, graph.Default),
		} {
			if err := n.AddPlug(ctx, p); err != nil {
				return nil, err
			}
		}
		return n, nil
	}})
	r.RegisterNodeType(&registry.NodeType{Name: "Step", New: func(ctx context.Context, g *graph.Graph, name string) (*graph.Node, error) {
		n := g.NewNode(name, step{})
		return n, task.AddTaskPlugs(ctx, n)
	}})
}

func newSession(t *testing.T) *Session {
	t.Helper()
	types := registry.New()
	testModule{}.Register(types)
	dispatchers := dispatch.NewRegistry()
	dispatchers.Register(localexecutor.New(localexecutor.Options{}))
	types.OnNodeCreated(func(ctx context.Context, n *graph.Node) error {
		if task.IsTaskNode(n) {
			return dispatchers.SetupPlugs(ctx, n)
		}
		return nil
	})

	s, err := New(types, Options{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSession_Defaults(t *testing.T) {
	s := newSession(t)
	start, end := s.FrameRange()
	assert.Equal(t, int64(1), start)
	assert.Equal(t, int64(100), end)
	assert.Equal(t, float64(1), s.Frame())
	assert.Equal(t, "script", s.Root().Name())
	assert.Equal(t, "", s.FileName())

	c := s.Context()
	assert.Equal(t, float64(1), c.Frame())
	assert.True(t, c.GetOr(FrameRangeEndEntry, cty.NilVal).RawEquals(cty.NumberIntVal(100)))
}

func TestSession_ContextAndSubstitution(t *testing.T) {
	s := newSession(t)
	s.SetVariable("project", "demo")
	s.SetVariables(map[string]string{"shot": "sh010", "path": "${project}/${shot}"})
	s.SetFrame(7)

	assert.Equal(t, "demo/sh010/out.0007.txt", s.Substitute("$path/out.####.txt"))
	assert.Equal(t, map[string]string{"project": "demo", "shot": "sh010", "path": "${project}/${shot}"}, s.Variables())

	before := s.Context()
	require.NoError(t, s.SetFrameRange(10, 20))
	assert.Equal(t, float64(7), before.Frame(), "earlier contexts are not modified")
	assert.True(t, s.Context().GetOr(FrameRangeStartEntry, cty.NilVal).RawEquals(cty.NumberIntVal(10)))

	err := s.SetFrameRange(5, 1)
	require.ErrorIs(t, err, graph.ErrInvalidOperation)
}

func TestSession_EditDefersDirtyNotifications(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	n, err := s.CreateNode(ctx, "Number", "a")
	require.NoError(t, err)

	var dirtied []string
	conn := s.Graph().PlugDirtiedSignal().Connect(func(_ context.Context, p *graph.Plug) {
		dirtied = append(dirtied, p.RelativeName(n))
	})
	defer conn.Disconnect()

	err = s.Edit(ctx, func(ctx context.Context) error {
		require.NoError(t, n.Plug("value").SetValue(ctx, cty.NumberIntVal(3)))
		require.NoError(t, n.Plug("value").SetValue(ctx, cty.NumberIntVal(4)))
		assert.Empty(t, dirtied, "nothing is delivered inside the edit")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"value"}, dirtied, "each plug is dirtied once per edit")
}

func TestSession_CreateNodeAndLookup(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)

	a, err := s.CreateNode(ctx, "Number", "n")
	require.NoError(t, err)
	b, err := s.CreateNode(ctx, "Number", "n")
	require.NoError(t, err)
	assert.Equal(t, "n", a.Name())
	assert.Equal(t, "n1", b.Name())

	step, err := s.CreateNode(ctx, "Step", "render")
	require.NoError(t, err)
	assert.NotNil(t, step.Plug("dispatcher.batchSize"), "task nodes get dispatcher plugs")
	assert.Equal(t, []*graph.Node{step}, s.TaskNodes())

	nodes, err := s.Nodes("n1", "render")
	require.NoError(t, err)
	assert.Equal(t, []*graph.Node{b, step}, nodes)

	_, err = s.Nodes("missing")
	assert.ErrorContains(t, err, "no node named 'missing'")
	_, err = s.Nodes("n.value")
	assert.Error(t, err, "plugs are not nodes")

	_, err = s.CreateNode(ctx, "Unknown", "x")
	assert.ErrorContains(t, err, "unknown node type 'Unknown'")
}

func TestScript_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	require.NoError(t, s.SetFrameRange(1, 24))
	s.SetFrame(12)
	s.SetVariable("project", "demo")

	a, err := s.CreateNode(ctx, "Number", "a")
	require.NoError(t, err)
	b, err := s.CreateNode(ctx, "Number", "b")
	require.NoError(t, err)
	first, err := s.CreateNode(ctx, "Step", "first")
	require.NoError(t, err)
	second, err := s.CreateNode(ctx, "Step", "second")
	require.NoError(t, err)

	require.NoError(t, s.Edit(ctx, func(ctx context.Context) error {
		require.NoError(t, a.Plug("value").SetValue(ctx, cty.NumberIntVal(5)))
		require.NoError(t, a.Plug("settings.label").SetValue(ctx, cty.StringVal("$project/#")))
		require.NoError(t, b.Plug("value").SetInput(ctx, a.Plug("out")))
		require.NoError(t, first.Plug("dispatcher.batchSize").SetValue(ctx, cty.NumberIntVal(4)))
		slot, err := task.FreePreTask(ctx, second)
		require.NoError(t, err)
		require.NoError(t, slot.SetInput(ctx, first.Plug(task.TaskPlugName)))
		extra, err := task.FreePreTask(ctx, second)
		require.NoError(t, err)
		return extra.SetInput(ctx, a.Plug("out"))
	}))

	src := s.Bytes()
	text := string(src)
	assert.Contains(t, text, `node "Number" "a"`)
	assert.Contains(t, text, `"preTasks.preTask1" = "a.out"`)
	assert.NotContains(t, text, "scale", "default values are not written")

	path := filepath.Join(t.TempDir(), "shot.hcl")
	require.NoError(t, s.Save(ctx, path))
	assert.Equal(t, "", s.FileName(), "saving a copy keeps the file name")

	loaded := newSession(t)
	require.NoError(t, loaded.Load(ctx, path))
	assert.Equal(t, path, loaded.FileName())
	assert.Equal(t, text, string(loaded.Bytes()))

	start, end := loaded.FrameRange()
	assert.Equal(t, []int64{1, 24}, []int64{start, end})
	assert.Equal(t, float64(12), loaded.Frame())
	assert.Equal(t, map[string]string{"project": "demo"}, loaded.Variables())

	nodes, err := loaded.Nodes("a", "b", "first", "second")
	require.NoError(t, err)
	assert.True(t, nodes[0].Plug("settings.label").Value().RawEquals(cty.StringVal("$project/#")))
	assert.Same(t, nodes[0].Plug("out"), nodes[1].Plug("value").Input())
	assert.True(t, nodes[2].Plug("dispatcher.batchSize").Value().RawEquals(cty.NumberIntVal(4)))
	assert.Equal(t, []*graph.Node{nodes[2]}, task.PreTaskNodes(nodes[3]))
	assert.Len(t, nodes[3].Plug(task.PreTasksPlugName).PlugChildren(), 2)
}

func TestScript_NestedNodesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	group, err := s.CreateNode(ctx, "Number", "group")
	require.NoError(t, err)
	after, err := s.CreateNode(ctx, "Step", "after")
	require.NoError(t, err)
	require.NoError(t, s.Edit(ctx, func(ctx context.Context) error {
		inner, err := s.createNodeIn(ctx, group, "Step", "inner")
		if err != nil {
			return err
		}
		leaf, err := s.createNodeIn(ctx, inner, "Number", "leaf")
		if err != nil {
			return err
		}
		if err := leaf.Plug("value").SetValue(ctx, cty.NumberIntVal(7)); err != nil {
			return err
		}
		slot, err := task.FreePreTask(ctx, after)
		if err != nil {
			return err
		}
		return slot.SetInput(ctx, inner.Plug(task.TaskPlugName))
	}))

	text := string(s.Bytes())
	assert.Contains(t, text, `node "Step" "group.inner"`)
	assert.Contains(t, text, `node "Number" "group.inner.leaf"`)
	assert.Contains(t, text, `"preTasks.preTask0" = "group.inner.task"`)

	loaded := newSession(t)
	require.NoError(t, loaded.LoadBytes(ctx, []byte(text), "nested.hcl"))
	assert.Equal(t, text, string(loaded.Bytes()))

	nodes, err := loaded.Nodes("group.inner", "group.inner.leaf", "after")
	require.NoError(t, err)
	assert.Equal(t, "group", nodes[0].Parent().(*graph.Node).Name())
	assert.True(t, nodes[1].Plug("value").Value().RawEquals(cty.NumberIntVal(7)))
	assert.Equal(t, []*graph.Node{nodes[0]}, task.PreTaskNodes(nodes[2]))
}

func TestScript_LoadBytes(t *testing.T) {
	ctx := context.Background()
	src := `
session {
  frame_start = 5
  frame_end   = 8
  variables = {
    root = "/tmp/out"
  }
}

node "Number" "n" {
  value    = 2
  settings = { scale = 3 }
}

node "Step" "write" {
  connect = {
    "preTasks.preTask2"   = "render.task"
    "postTasks.postTask1" = "cleanup.task"
  }
}

node "Step" "render" {}
node "Step" "cleanup" {}
`
	s := newSession(t)
	require.NoError(t, s.LoadBytes(ctx, []byte(src), "inline.hcl"))

	start, end := s.FrameRange()
	assert.Equal(t, []int64{5, 8}, []int64{start, end})
	assert.Equal(t, "/tmp/out/x", s.Substitute("${root}/x"))

	nodes, err := s.Nodes("n", "write", "render", "cleanup")
	require.NoError(t, err)
	assert.True(t, nodes[0].Plug("settings.scale").Value().RawEquals(cty.NumberIntVal(3)))
	assert.Len(t, nodes[1].Plug(task.PreTasksPlugName).PlugChildren(), 3, "missing pre-task slots are added")
	assert.Equal(t, []*graph.Node{nodes[2]}, task.PreTaskNodes(nodes[1]))
	assert.Len(t, nodes[1].Plug(task.PostTasksPlugName).PlugChildren(), 2, "missing post-task slots are added")
	assert.Equal(t, []*graph.Node{nodes[3]}, task.PostTaskNodes(nodes[1]))
}

func TestScript_LoadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "syntax", src: `node "Number" {`, wantErr: "failed to parse HCL"},
		{name: "unknown type", src: `node "Nope" "x" {}`, wantErr: "unknown node type 'Nope'"},
		{name: "unknown plug", src: `node "Number" "x" { colour = 1 }`, wantErr: "has no plug 'colour'"},
		{name: "bad value", src: `node "Number" "x" { value = "many" }`, wantErr: "value for script.x.value"},
		{name: "unknown child", src: `node "Number" "x" { settings = { size = 1 } }`, wantErr: "has no child plug 'size'"},
		{name: "missing source", src: `node "Number" "x" { connect = { value = "y.out" } }`, wantErr: "no plug 'y.out'"},
		{name: "malformed source", src: `node "Number" "x" { connect = { value = "out" } }`, wantErr: "source of 'value': invalid component path \"out\""},
		{name: "missing parent", src: `node "Number" "ghost.x" {}`, wantErr: "no parent node 'ghost'"},
		{name: "missing target", src: `node "Number" "x" { connect = { nope = "x.out" } }`, wantErr: "has no plug 'nope'"},
		{name: "reversed frame range", src: `session { 
  frame_start = 9
  frame_end = 1
}`, wantErr: "ends before it starts"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSession(t)
			err := s.LoadBytes(context.Background(), []byte(tc.src), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestScript_LoadMissingFile(t *testing.T) {
	s := newSession(t)
	err := s.Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	assert.ErrorContains(t, err, "failed to parse HCL file")
	assert.Equal(t, "", s.FileName())
}
