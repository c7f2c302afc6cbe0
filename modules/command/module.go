// Package command provides SystemCommand, a task node that runs a shell
// command once per frame.
package command

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/dispatch"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/vk/nodeflow/internal/task"
	"github.com/zclconf/go-cty/cty"
)

// DefaultShell runs commands when the shell plug is empty.
const DefaultShell = "sh"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node type with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNodeType(&registry.NodeType{
		Name:        "SystemCommand",
		Description: "Runs a substituted shell command for every frame.",
		New:         New,
	})
}

// SystemCommand runs command through shell -c.
type SystemCommand struct{}

func (SystemCommand) TypeName() string { return "SystemCommand" }

func (SystemCommand) ExecutionHash(ctx context.Context, n *graph.Node, c *execctx.Context, ev task.Evaluator) (hashing.Hash, error) {
	cmd, err := commandLine(ctx, n, c, ev)
	if err != nil || cmd == "" {
		return hashing.Zero, err
	}
	h := hashing.New()
	if err := task.HashInputs(ctx, n, c, ev, h); err != nil {
		return hashing.Zero, err
	}
	return h.String(cmd).Sum(), nil
}

func (SystemCommand) Requirements(_ context.Context, n *graph.Node, c *execctx.Context, _ task.Evaluator) ([]*task.Task, error) {
	return task.PreTaskRequirements(n, c), nil
}

func (SystemCommand) Execute(ctx context.Context, n *graph.Node, contexts []*execctx.Context, ev task.Evaluator) error {
	logger := ctxlog.FromContext(ctx).With("node", n.FullName())
	for _, c := range contexts {
		line, err := commandLine(ctx, n, c, ev)
		if err != nil {
			return err
		}
		shell, err := task.StringValue(ctx, ev, n, "shell", c)
		if err != nil {
			return err
		}
		if shell == "" {
			shell = DefaultShell
		}

		cmd := exec.CommandContext(ctx, shell, "-c", line)
		cmd.Dir = c.String(dispatch.JobDirectoryEntry, "")
		cmd.Env = append(os.Environ(), "FRAME="+strconv.FormatFloat(c.Frame(), 'f', -1, 64))

		logger.Debug("Running command.", "command", line, "frame", c.Frame(), "dir", cmd.Dir)
		out, err := cmd.CombinedOutput()
		if len(out) > 0 {
			logger.Debug("Command output.", "output", strings.TrimRight(string(out), "\n"))
		}
		if err != nil {
			return fmt.Errorf("command '%s' failed on frame %v: %w", line, c.Frame(), err)
		}
	}
	return nil
}

func commandLine(ctx context.Context, n *graph.Node, c *execctx.Context, ev task.Evaluator) (string, error) {
	s, err := task.StringValue(ctx, ev, n, "command", c)
	if err != nil {
		return "", err
	}
	return c.Substitute(s), nil
}

// New builds a SystemCommand node.
func New(ctx context.Context, g *graph.Graph, name string) (*graph.Node, error) {
	n := g.NewNode(name, SystemCommand{})
	if err := task.AddTaskPlugs(ctx, n); err != nil {
		return nil, err
	}
	for _, p := range []*graph.Plug{
		g.NewPlug("command", graph.In, cty.String, cty.StringVal(""), graph.Default),
		g.NewPlug("shell", graph.In, cty.String, cty.StringVal(DefaultShell), graph.Default),
	} {
		if err := n.AddPlug(ctx, p); err != nil {
			return nil, err
		}
	}
	return n, nil
}
