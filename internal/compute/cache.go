package compute

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// DefaultSize is the number of computed values kept when New is given a
// non-positive size.
const DefaultSize = 1024

// Stats counts value lookups.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Computes uint64
}

// plugHashes memoizes the hashes of one plug for one dirty generation.
type plugHashes struct {
	dirtyCount uint64
	byContext  map[hashing.Hash]hashing.Hash
}

// Cache hashes and evaluates plugs of one graph. It is safe for concurrent
// use by readers, provided the graph itself is not mutated concurrently.
// Concurrent computation of the same plug in the same context is not
// coalesced; both callers compute and store the same result.
type Cache struct {
	mu     sync.Mutex
	hashes map[graph.ID]*plugHashes
	values *lru.Cache[hashing.Hash, cty.Value]
	stats  Stats
	conn   graph.Connection
}

// New creates a Cache holding up to size computed values and subscribes it
// to the dirty notifications of g.
func New(g *graph.Graph, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	values, err := lru.New[hashing.Hash, cty.Value](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create value cache: %w", err)
	}
	c := &Cache{
		hashes: make(map[graph.ID]*plugHashes),
		values: values,
	}
	c.conn = g.PlugDirtiedSignal().Connect(func(_ context.Context, p *graph.Plug) {
		c.invalidate(p)
	})
	return c, nil
}

// Close detaches the Cache from its graph.
func (c *Cache) Close() {
	c.conn.Disconnect()
}

// Stats returns a snapshot of the lookup counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Purge drops every memoized hash and value.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes = make(map[graph.ID]*plugHashes)
	c.values.Purge()
}

func (c *Cache) invalidate(p *graph.Plug) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hashes, p.ID())
}

func (c *Cache) cachedHash(p *graph.Plug, ctxHash hashing.Hash) (hashing.Hash, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ph, ok := c.hashes[p.ID()]
	if !ok || ph.dirtyCount != p.DirtyCount() {
		return hashing.Hash{}, false
	}
	h, ok := ph.byContext[ctxHash]
	return h, ok
}

func (c *Cache) storeHash(p *graph.Plug, ctxHash, h hashing.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ph, ok := c.hashes[p.ID()]
	if !ok || ph.dirtyCount != p.DirtyCount() {
		ph = &plugHashes{dirtyCount: p.DirtyCount(), byContext: make(map[hashing.Hash]hashing.Hash)}
		c.hashes[p.ID()] = ph
	}
	ph.byContext[ctxHash] = h
}

// Hash returns the structural digest of p in context c. It changes whenever
// anything p's value depends on changes, and is stable otherwise.
func (c *Cache) Hash(ctx context.Context, p *graph.Plug, ec *execctx.Context) (hashing.Hash, error) {
	h, _, err := c.hash(ctx, p, ec)
	return h, err
}

// hash also reports whether the digest depends on a plug without the
// Cacheable flag. Such digests are never memoized.
func (c *Cache) hash(ctx context.Context, p *graph.Plug, ec *execctx.Context) (hashing.Hash, bool, error) {
	ctxHash := ec.Hash()
	if h, ok := c.cachedHash(p, ctxHash); ok {
		return h, false, nil
	}
	h, volatile, err := c.computeHash(ctx, p, ec)
	if err != nil {
		return hashing.Hash{}, false, err
	}
	volatile = volatile || !p.HasFlags(graph.Cacheable)
	if !volatile {
		c.storeHash(p, ctxHash, h)
	}
	return h, volatile, nil
}

func (c *Cache) computeHash(ctx context.Context, p *graph.Plug, ec *execctx.Context) (hashing.Hash, bool, error) {
	if in := p.Input(); in != nil {
		h, volatile, err := c.hash(ctx, in, ec)
		if err != nil {
			return hashing.Hash{}, false, err
		}
		if in.Type().Equals(p.Type()) {
			return h, volatile, nil
		}
		return hashing.New().Hash(h).String(p.Type().FriendlyName()).Sum(), volatile, nil
	}

	b := hashing.New()
	volatile := false
	if p.IsCompound() {
		b.String("compound")
		for _, child := range p.PlugChildren() {
			h, v, err := c.hash(ctx, child, ec)
			if err != nil {
				return hashing.Hash{}, false, err
			}
			volatile = volatile || v
			b.String(child.Name()).Hash(h)
		}
		return b.Sum(), volatile, nil
	}

	n := p.Node()
	comp, ok := computerOf(n)
	if p.Direction() == graph.In || !ok {
		b.String("value").Value(p.Value())
		return b.Sum(), false, nil
	}

	b.String(n.TypeName()).String(p.RelativeName(n))
	for _, q := range affecting(n, p) {
		h, v, err := c.hash(ctx, q, ec)
		if err != nil {
			return hashing.Hash{}, false, err
		}
		volatile = volatile || v
		b.String(q.RelativeName(n)).Hash(h)
	}
	if err := comp.HashOutput(ctx, p, ec, b); err != nil {
		return hashing.Hash{}, false, fmt.Errorf("hashing %s: %w", p.FullName(), err)
	}
	return b.Sum(), volatile, nil
}

// Value returns the value of p in context c, computing it on a cache miss.
func (c *Cache) Value(ctx context.Context, p *graph.Plug, ec *execctx.Context) (cty.Value, error) {
	if in := p.Input(); in != nil {
		v, err := c.Value(ctx, in, ec)
		if err != nil {
			return cty.NilVal, err
		}
		return convertTo(v, p)
	}

	if p.IsCompound() {
		attrs := make(map[string]cty.Value)
		for _, child := range p.PlugChildren() {
			v, err := c.Value(ctx, child, ec)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[child.Name()] = v
		}
		return cty.ObjectVal(attrs), nil
	}

	n := p.Node()
	comp, ok := computerOf(n)
	if p.Direction() == graph.In || !ok {
		return p.Value(), nil
	}

	h, err := c.Hash(ctx, p, ec)
	if err != nil {
		return cty.NilVal, err
	}
	cacheable := p.HasFlags(graph.Cacheable)
	if cacheable {
		if v, ok := c.values.Get(h); ok {
			c.count(func(s *Stats) { s.Hits++ })
			return v, nil
		}
	}
	c.count(func(s *Stats) { s.Misses++; s.Computes++ })

	ctxlog.FromContext(ctx).Debug("Computing plug.", "plug", p.FullName(), "hash", h.Short())
	v, err := comp.Compute(ctx, p, ec, Inputs{ctx: ctx, cache: c, node: n, c: ec})
	if err != nil {
		return cty.NilVal, fmt.Errorf("computing %s: %w", p.FullName(), err)
	}
	v, err = convertTo(v, p)
	if err != nil {
		return cty.NilVal, err
	}
	if cacheable {
		c.values.Add(h, v)
	}
	return v, nil
}

func (c *Cache) count(fn func(*Stats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.stats)
}

func computerOf(n *graph.Node) (Computer, bool) {
	if n == nil {
		return nil, false
	}
	comp, ok := n.Behavior().(Computer)
	return comp, ok
}

// affecting returns the input leaves of n whose Affects include out.
func affecting(n *graph.Node, out *graph.Plug) []*graph.Plug {
	var result []*graph.Plug
	for _, q := range graph.LeafPlugs(n, graph.In) {
		for _, a := range n.Affects(q) {
			if a == out {
				result = append(result, q)
				break
			}
		}
	}
	return result
}

func convertTo(v cty.Value, p *graph.Plug) (cty.Value, error) {
	if v == cty.NilVal || p.Type() == cty.DynamicPseudoType || p.IsCompound() {
		return v, nil
	}
	out, err := convert.Convert(v, p.Type())
	if err != nil {
		return cty.NilVal, fmt.Errorf("value for %s: %w", p.FullName(), err)
	}
	return out, nil
}
