// Package textwriter provides TextWriter, a task node that writes text to a
// file once per frame. Both the file name and the text are substituted in
// the frame context, so "out.####.txt" writes one file per frame.
package textwriter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/registry"
	"github.com/vk/nodeflow/internal/task"
	"github.com/zclconf/go-cty/cty"
)

// Modes accepted by the mode plug.
const (
	ModeWrite  = "w"
	ModeAppend = "a"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node type with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNodeType(&registry.NodeType{
		Name:        "TextWriter",
		Description: "Writes substituted text to a file for every frame.",
		New:         New,
	})
}

// TextWriter writes or appends text to fileName.
type TextWriter struct{}

func (TextWriter) TypeName() string { return "TextWriter" }

// ExecutionHash covers the substituted file name and text. A writer without
// a file name has nothing to do and hashes to zero.
func (TextWriter) ExecutionHash(ctx context.Context, n *graph.Node, c *execctx.Context, ev task.Evaluator) (hashing.Hash, error) {
	fileName, text, err := values(ctx, n, c, ev)
	if err != nil || fileName == "" {
		return hashing.Zero, err
	}
	h := hashing.New()
	if err := task.HashInputs(ctx, n, c, ev, h); err != nil {
		return hashing.Zero, err
	}
	return h.String(fileName).String(text).Sum(), nil
}

func (TextWriter) Requirements(_ context.Context, n *graph.Node, c *execctx.Context, _ task.Evaluator) ([]*task.Task, error) {
	return task.PreTaskRequirements(n, c), nil
}

func (TextWriter) Execute(ctx context.Context, n *graph.Node, contexts []*execctx.Context, ev task.Evaluator) error {
	logger := ctxlog.FromContext(ctx).With("node", n.FullName())
	for _, c := range contexts {
		fileName, text, err := values(ctx, n, c, ev)
		if err != nil {
			return err
		}
		mode, err := task.StringValue(ctx, ev, n, "mode", c)
		if err != nil {
			return err
		}
		if err := write(fileName, text, mode); err != nil {
			return err
		}
		logger.Debug("Wrote text file.", "file", fileName, "frame", c.Frame(), "bytes", len(text)+1)
	}
	return nil
}

func values(ctx context.Context, n *graph.Node, c *execctx.Context, ev task.Evaluator) (string, string, error) {
	fileName, err := task.StringValue(ctx, ev, n, "fileName", c)
	if err != nil {
		return "", "", err
	}
	text, err := task.StringValue(ctx, ev, n, "text", c)
	if err != nil {
		return "", "", err
	}
	return c.Substitute(fileName), c.Substitute(text), nil
}

func write(fileName, text, mode string) error {
	flags := os.O_CREATE | os.O_WRONLY
	switch mode {
	case "", ModeWrite:
		flags |= os.O_TRUNC
	case ModeAppend:
		flags |= os.O_APPEND
	default:
		return fmt.Errorf("unknown mode '%s' (want %q or %q)", mode, ModeWrite, ModeAppend)
	}
	if err := os.MkdirAll(filepath.Dir(fileName), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", fileName, err)
	}
	f, err := os.OpenFile(fileName, flags, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open '%s': %w", fileName, err)
	}
	if _, err := fmt.Fprintln(f, text); err != nil {
		f.Close()
		return fmt.Errorf("failed to write '%s': %w", fileName, err)
	}
	return f.Close()
}

// New builds a TextWriter node.
func New(ctx context.Context, g *graph.Graph, name string) (*graph.Node, error) {
	n := g.NewNode(name, TextWriter{})
	if err := task.AddTaskPlugs(ctx, n); err != nil {
		return nil, err
	}
	for _, p := range []*graph.Plug{
		g.NewPlug("fileName", graph.In, cty.String, cty.StringVal(""), graph.Default),
		g.NewPlug("text", graph.In, cty.String, cty.StringVal(""), graph.Default),
		g.NewPlug("mode", graph.In, cty.String, cty.StringVal(ModeWrite), graph.Default),
	} {
		if err := n.AddPlug(ctx, p); err != nil {
			return nil, err
		}
	}
	return n, nil
}
