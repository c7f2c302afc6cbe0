package execctx

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/nodeflow/internal/hashing"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

const (
	// FrameName is the key holding the current frame number.
	FrameName = "frame"
	// UIPrefix marks annotations that must never affect hashing.
	UIPrefix = "ui:"
)

// ErrNotFound is returned by Get when a name is not bound.
var ErrNotFound = errors.New("context entry not found")

// Context is a layered name to value mapping.
type Context struct {
	parent *Context
	values map[string]cty.Value
}

// New returns an empty root context.
func New() *Context {
	return &Context{}
}

// Child returns a context that overlays new bindings on c.
func (c *Context) Child() *Context {
	return &Context{parent: c}
}

// Set binds name in this layer. Parents are never modified.
func (c *Context) Set(name string, v cty.Value) {
	if c.values == nil {
		c.values = make(map[string]cty.Value)
	}
	c.values[name] = v
}

// With is the copy-on-write form of Set.
func (c *Context) With(name string, v cty.Value) *Context {
	child := c.Child()
	child.Set(name, v)
	return child
}

// Lookup returns the value bound to name and whether it was found.
func (c *Context) Lookup(name string) (cty.Value, bool) {
	for l := c; l != nil; l = l.parent {
		if v, ok := l.values[name]; ok {
			return v, true
		}
	}
	return cty.NilVal, false
}

// Get returns the value bound to name or an ErrNotFound error.
func (c *Context) Get(name string) (cty.Value, error) {
	v, ok := c.Lookup(name)
	if !ok {
		return cty.NilVal, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return v, nil
}

// GetOr returns the value bound to name, or def when absent.
func (c *Context) GetOr(name string, def cty.Value) cty.Value {
	if v, ok := c.Lookup(name); ok {
		return v
	}
	return def
}

// Names lists every visible name in sorted order.
func (c *Context) Names() []string {
	seen := make(map[string]struct{})
	for l := c; l != nil; l = l.parent {
		for k := range l.values {
			seen[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Hash returns a structural digest of the visible bindings. Names in exclude
// and names with the "ui:" prefix are skipped.
func (c *Context) Hash(exclude ...string) hashing.Hash {
	b := hashing.New()
	for _, name := range c.Names() {
		if strings.HasPrefix(name, UIPrefix) || contains(exclude, name) {
			continue
		}
		v, _ := c.Lookup(name)
		b.String(name).Value(v)
	}
	return b.Sum()
}

// Equal reports value equality, independent of layering.
func (c *Context) Equal(other *Context) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Hash() == other.Hash()
}

// Flatten returns a single-layer copy.
func (c *Context) Flatten() *Context {
	out := New()
	for _, name := range c.Names() {
		v, _ := c.Lookup(name)
		out.Set(name, v)
	}
	return out
}

// Frame returns the current frame, or 0 when unset.
func (c *Context) Frame() float64 {
	v, ok := c.Lookup(FrameName)
	if !ok || v.IsNull() || !v.IsKnown() || !v.Type().Equals(cty.Number) {
		return 0
	}
	var f float64
	if err := gocty.FromCtyValue(v, &f); err != nil {
		return 0
	}
	return f
}

// SetFrame binds the frame key.
func (c *Context) SetFrame(frame float64) {
	c.Set(FrameName, cty.NumberFloatVal(frame))
}

// WithFrame returns a child context bound to frame.
func (c *Context) WithFrame(frame float64) *Context {
	return c.With(FrameName, cty.NumberFloatVal(frame))
}

// String returns a string binding, or def when absent or not a string.
func (c *Context) String(name, def string) string {
	v, ok := c.Lookup(name)
	if !ok || v.IsNull() || !v.IsKnown() || !v.Type().Equals(cty.String) {
		return def
	}
	return v.AsString()
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
