package session

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/nodeid"
	"github.com/vk/nodeflow/internal/task"
	"github.com/zclconf/go-cty/cty"
)

// ConnectAttribute is the node attribute mapping plug paths to the plugs
// that drive them. Source paths are relative to the script root.
const ConnectAttribute = "connect"

// scriptFile is a struct used to decode all top-level blocks of a script.
type scriptFile struct {
	Session *sessionBlock `hcl:"session,block"`
	Nodes   []*nodeBlock  `hcl:"node,block"`
}

type sessionBlock struct {
	FrameStart *int64            `hcl:"frame_start,optional"`
	FrameEnd   *int64            `hcl:"frame_end,optional"`
	Frame      *float64          `hcl:"frame,optional"`
	Variables  map[string]string `hcl:"variables,optional"`
}

type nodeBlock struct {
	Type string   `hcl:"type,label"`
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// Load reads scripts and adds their nodes to the session. A session block
// in a later file overrides earlier ones. When exactly one file is loaded
// it becomes the session file name.
func (s *Session) Load(ctx context.Context, paths ...string) error {
	logger := ctxlog.FromContext(ctx)
	parser := hclparse.NewParser()
	for _, path := range paths {
		f, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
		}
		if err := s.apply(ctx, f.Body); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		logger.Debug("Loaded script.", "file", path)
	}
	if len(paths) == 1 {
		s.SetFileName(paths[0])
	}
	logger.Info("Script loaded.", "files", len(paths), "nodes", len(s.Root().Nodes()))
	return nil
}

// LoadBytes adds the nodes of an in-memory script. filename is only used in
// diagnostics.
func (s *Session) LoadBytes(ctx context.Context, src []byte, filename string) error {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL %s: %w", filename, diags)
	}
	return s.apply(ctx, f.Body)
}

func (s *Session) apply(ctx context.Context, body hcl.Body) error {
	var root scriptFile
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode script: %w", diags)
	}
	if sb := root.Session; sb != nil {
		if err := s.applySession(sb); err != nil {
			return err
		}
	}

	return s.Edit(ctx, func(ctx context.Context) error {
		created := make(map[string]*graph.Node, len(root.Nodes))
		attrs := make([]hcl.Attributes, len(root.Nodes))
		for i, nb := range root.Nodes {
			a, diags := nb.Body.JustAttributes()
			if diags.HasErrors() {
				return fmt.Errorf("node '%s': %w", nb.Name, diags)
			}
			attrs[i] = a
			parent, name, err := s.blockParent(created, nb.Name)
			if err != nil {
				return err
			}
			n, err := s.createNodeIn(ctx, parent, nb.Type, name)
			if err != nil {
				return err
			}
			created[nb.Name] = n
		}

		for i, nb := range root.Nodes {
			n := created[nb.Name]
			for _, attr := range sortedAttributes(attrs[i]) {
				if attr.Name == ConnectAttribute {
					continue
				}
				if err := setAttribute(ctx, n, attr); err != nil {
					return err
				}
			}
		}

		for i, nb := range root.Nodes {
			attr, ok := attrs[i][ConnectAttribute]
			if !ok {
				continue
			}
			if err := s.connect(ctx, created, created[nb.Name], attr); err != nil {
				return err
			}
		}
		return nil
	})
}

// blockParent splits a node block name such as "group.render" into the
// parent node and the name of the node to create below it.
func (s *Session) blockParent(created map[string]*graph.Node, path string) (*graph.Node, string, error) {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return s.graph.Root(), path, nil
	}
	parentPath := path[:i]
	parent := created[parentPath]
	if parent == nil {
		parent, _ = s.graph.Root().Descendant(parentPath).(*graph.Node)
	}
	if parent == nil {
		return nil, "", fmt.Errorf("node '%s': no parent node '%s'", path, parentPath)
	}
	return parent, path[i+1:], nil
}

func (s *Session) applySession(sb *sessionBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, end := s.start, s.end
	if sb.FrameStart != nil {
		start = *sb.FrameStart
	}
	if sb.FrameEnd != nil {
		end = *sb.FrameEnd
	}
	if end < start {
		return fmt.Errorf("%w: frame range %d-%d ends before it starts", graph.ErrInvalidOperation, start, end)
	}
	s.start, s.end = start, end
	if sb.Frame != nil {
		s.frame = *sb.Frame
	}
	for k, v := range sb.Variables {
		s.variables[k] = v
	}
	s.rebuildContext()
	return nil
}

func setAttribute(ctx context.Context, n *graph.Node, attr *hcl.Attribute) error {
	v, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return fmt.Errorf("%s: %w", n.FullName(), diags)
	}
	p, ok := n.Child(attr.Name).(*graph.Plug)
	if !ok {
		return fmt.Errorf("%s: %s node has no plug '%s' (%s)", n.FullName(), n.TypeName(), attr.Name, attr.NameRange)
	}
	return setPlugValue(ctx, p, v)
}

// setPlugValue sets a leaf plug, or the children of a compound plug from
// the attributes of an object.
func setPlugValue(ctx context.Context, p *graph.Plug, v cty.Value) error {
	if !p.IsCompound() {
		return p.SetValue(ctx, v)
	}
	if v.IsNull() || !(v.Type().IsObjectType() || v.Type().IsMapType()) {
		return fmt.Errorf("%w: %s expects an object of child values", graph.ErrInvalidOperation, p.FullName())
	}
	for k, cv := range v.AsValueMap() {
		child, ok := p.Child(k).(*graph.Plug)
		if !ok {
			return fmt.Errorf("%w: %s has no child plug '%s'", graph.ErrInvalidOperation, p.FullName(), k)
		}
		if err := setPlugValue(ctx, child, cv); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) connect(ctx context.Context, created map[string]*graph.Node, n *graph.Node, attr *hcl.Attribute) error {
	v, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return fmt.Errorf("%s: %w", n.FullName(), diags)
	}
	if v.IsNull() || !(v.Type().IsObjectType() || v.Type().IsMapType()) {
		return fmt.Errorf("%s: %s must map plug paths to source plugs", n.FullName(), ConnectAttribute)
	}
	conns := v.AsValueMap()
	keys := make([]string, 0, len(conns))
	for k := range conns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, dstPath := range keys {
		srcVal := conns[dstPath]
		if srcVal.IsNull() || !srcVal.Type().Equals(cty.String) {
			return fmt.Errorf("%s: source of '%s' must be a string", n.FullName(), dstPath)
		}
		dst, err := connectionTarget(ctx, n, dstPath)
		if err != nil {
			return err
		}
		src, err := s.resolvePlug(created, srcVal.AsString())
		if err != nil {
			return fmt.Errorf("%s: source of '%s': %w", n.FullName(), dstPath, err)
		}
		if src == nil {
			return fmt.Errorf("%s: no plug '%s' to connect to '%s'", n.FullName(), srcVal.AsString(), dstPath)
		}
		if err := dst.SetInput(ctx, src); err != nil {
			return err
		}
	}
	return nil
}

// connectionTarget finds the plug at path below n. Missing pre-task and
// post-task slots are added, since saved scripts record only the slots in use.
func connectionTarget(ctx context.Context, n *graph.Node, path string) (*graph.Plug, error) {
	if p := n.Plug(path); p != nil {
		return p, nil
	}
	slots := []struct {
		parent string
		add    func(context.Context, *graph.Node) (*graph.Plug, error)
	}{
		{task.PreTasksPlugName, task.AddPreTask},
		{task.PostTasksPlugName, task.AddPostTask},
	}
	for _, slot := range slots {
		parent := n.Plug(slot.parent)
		if parent == nil || !strings.HasPrefix(path, slot.parent+".") {
			continue
		}
		for i := len(parent.PlugChildren()); i < maxTaskSlots; i++ {
			if _, err := slot.add(ctx, n); err != nil {
				return nil, err
			}
			if p := n.Plug(path); p != nil {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("%s has no plug '%s'", n.FullName(), path)
}

const maxTaskSlots = 1024

// resolvePlug resolves "node.plug.path", honouring renames of nodes created
// by the current load.
func (s *Session) resolvePlug(created map[string]*graph.Node, path string) (*graph.Plug, error) {
	addr, err := nodeid.Parse(path)
	if err != nil {
		return nil, err
	}
	if addr.Len() < 2 {
		return nil, fmt.Errorf("%w %q: want node.plug", nodeid.ErrInvalidPath, path)
	}
	names := addr.Names()
	// The longest prefix naming a node wins, so plugs of nested nodes resolve.
	for i := len(names) - 1; i >= 1; i-- {
		nodePath := strings.Join(names[:i], ".")
		n := created[nodePath]
		if n == nil {
			n, _ = s.graph.Root().Descendant(nodePath).(*graph.Node)
		}
		if n != nil {
			return n.Plug(strings.Join(names[i:], ".")), nil
		}
	}
	return nil, nil
}

func sortedAttributes(attrs hcl.Attributes) []*hcl.Attribute {
	out := make([]*hcl.Attribute, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Save writes the session to path. The session file name is unchanged.
func (s *Session) Save(ctx context.Context, path string) error {
	src := s.Bytes()
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return fmt.Errorf("failed to save script: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Saved script.", "file", path, "bytes", len(src))
	return nil
}

// Bytes serialises the session block and every node, nested ones included.
// Only plugs flagged Serialisable that differ from their defaults are written.
func (s *Session) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := hclwrite.NewEmptyFile()
	body := f.Body()
	sb := body.AppendNewBlock("session", nil).Body()
	sb.SetAttributeValue("frame_start", cty.NumberIntVal(s.start))
	sb.SetAttributeValue("frame_end", cty.NumberIntVal(s.end))
	sb.SetAttributeValue("frame", cty.NumberFloatVal(s.frame))
	if len(s.variables) > 0 {
		vars := make(map[string]cty.Value, len(s.variables))
		for k, v := range s.variables {
			vars[k] = cty.StringVal(v)
		}
		sb.SetAttributeValue("variables", cty.ObjectVal(vars))
	}

	root := s.graph.Root()
	for _, n := range root.Nodes() {
		writeNode(body, n, root)
	}
	return f.Bytes()
}

// writeNode appends a block for n, then one for each node below it. Nested
// blocks are named by their path from root and follow their parent.
func writeNode(body *hclwrite.Body, n, root *graph.Node) {
	body.AppendNewline()
	nb := body.AppendNewBlock("node", []string{n.TypeName(), n.RelativeName(root)}).Body()
	for _, p := range n.Plugs() {
		if v, ok := serialisedValue(p); ok {
			nb.SetAttributeValue(p.Name(), v)
		}
	}
	if conns := connections(n, root); len(conns) > 0 {
		nb.SetAttributeValue(ConnectAttribute, cty.ObjectVal(conns))
	}
	for _, child := range n.Nodes() {
		writeNode(body, child, root)
	}
}

func serialisedValue(p *graph.Plug) (cty.Value, bool) {
	if p.Direction() != graph.In || !p.HasFlags(graph.Serialisable) {
		return cty.NilVal, false
	}
	if !p.IsCompound() {
		if p.Input() != nil || p.IsSetToDefault() || p.Value().IsNull() {
			return cty.NilVal, false
		}
		return p.Value(), true
	}
	attrs := make(map[string]cty.Value)
	for _, c := range p.PlugChildren() {
		if v, ok := serialisedValue(c); ok {
			attrs[c.Name()] = v
		}
	}
	if len(attrs) == 0 {
		return cty.NilVal, false
	}
	return cty.ObjectVal(attrs), true
}

func connections(n, root *graph.Node) map[string]cty.Value {
	out := make(map[string]cty.Value)
	for _, p := range graph.Descendants[*graph.Plug](n, true) {
		if p.Node() != n || !p.IsLeaf() {
			continue
		}
		if in := p.Input(); in != nil {
			out[p.RelativeName(n)] = cty.StringVal(in.RelativeName(root))
		}
	}
	return out
}
