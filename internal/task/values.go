package task

import (
	"context"
	"fmt"

	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// PlugValue evaluates the plug at path below n in context c.
func PlugValue(ctx context.Context, ev Evaluator, n *graph.Node, path string, c *execctx.Context) (cty.Value, error) {
	p := n.Plug(path)
	if p == nil {
		return cty.NilVal, fmt.Errorf("%s has no plug '%s'", n.FullName(), path)
	}
	return ev.Value(ctx, p, c)
}

// StringValue evaluates a string plug. Null values read as "".
func StringValue(ctx context.Context, ev Evaluator, n *graph.Node, path string, c *execctx.Context) (string, error) {
	v, err := PlugValue(ctx, ev, n, path, c)
	if err != nil || v.IsNull() {
		return "", err
	}
	var s string
	if err := gocty.FromCtyValue(v, &s); err != nil {
		return "", fmt.Errorf("plug %s.%s: %w", n.FullName(), path, err)
	}
	return s, nil
}

// BoolValue evaluates a bool plug. Null values read as false.
func BoolValue(ctx context.Context, ev Evaluator, n *graph.Node, path string, c *execctx.Context) (bool, error) {
	v, err := PlugValue(ctx, ev, n, path, c)
	if err != nil || v.IsNull() {
		return false, err
	}
	var b bool
	if err := gocty.FromCtyValue(v, &b); err != nil {
		return false, fmt.Errorf("plug %s.%s: %w", n.FullName(), path, err)
	}
	return b, nil
}
