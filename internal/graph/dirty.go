package graph

import (
	"context"
	"fmt"
)

// dirtyScope accumulates dirtied plugs for one logical traversal.
// Idle -> Accumulating -> Emitting -> Idle. While Emitting, listeners may
// dirty further plugs; they are collected for the next emission round.
type dirtyScope struct {
	depth    int
	emitting bool
	order    []*Plug
	queued   map[ID]struct{}
	visited  map[ID]struct{}
}

type dirtyScopeKey struct{}

func scopeFrom(ctx context.Context) *dirtyScope {
	s, _ := ctx.Value(dirtyScopeKey{}).(*dirtyScope)
	return s
}

// WithDirtyScope opens a dirty scope, or joins the one already carried by
// ctx. Plugs dirtied through the returned context are collected, and the
// returned function emits them when the outermost scope closes. The function
// must be called exactly once.
func WithDirtyScope(ctx context.Context) (context.Context, func() error) {
	s := scopeFrom(ctx)
	if s == nil {
		s = &dirtyScope{}
		ctx = context.WithValue(ctx, dirtyScopeKey{}, s)
	}
	s.depth++
	return ctx, func() error {
		s.depth--
		if s.depth > 0 || s.emitting {
			return nil
		}
		return s.emit(ctx)
	}
}

// DirtyScopeActive reports whether ctx carries an open dirty scope.
func DirtyScopeActive(ctx context.Context) bool {
	s := scopeFrom(ctx)
	return s != nil && s.depth > 0
}

// propagateDirtiness dirties p and everything that depends on it.
func (g *Graph) propagateDirtiness(ctx context.Context, p *Plug) error {
	ctx, done := WithDirtyScope(ctx)
	s := scopeFrom(ctx)
	if err := s.insert(p); err != nil {
		s.clear()
		done()
		return err
	}
	return done()
}

func (s *dirtyScope) queue(p *Plug) {
	if s.queued == nil {
		s.queued = make(map[ID]struct{})
	}
	if _, ok := s.queued[p.id]; ok {
		return
	}
	s.queued[p.id] = struct{}{}
	s.order = append(s.order, p)
}

func (s *dirtyScope) insert(p *Plug) error {
	if !p.IsLeaf() {
		for _, l := range p.Leaves() {
			if err := s.insert(l); err != nil {
				return err
			}
		}
		s.queue(p)
		return nil
	}

	if s.visited == nil {
		s.visited = make(map[ID]struct{})
	}
	if _, ok := s.visited[p.id]; ok {
		return nil
	}
	s.visited[p.id] = struct{}{}

	s.queue(p)
	for a := p.ParentPlug(); a != nil; a = a.ParentPlug() {
		s.queue(a)
	}

	if n := p.Node(); n != nil {
		for _, affected := range n.Affects(p) {
			if !affected.IsLeaf() {
				return fmt.Errorf("%w: %s.Affects(%s) returned non-leaf plug %s",
					ErrProgramming, n.TypeName(), p.FullName(), affected.FullName())
			}
			if err := s.insert(affected); err != nil {
				return err
			}
		}
	}

	for _, o := range p.Outputs() {
		if err := s.insert(o); err != nil {
			return err
		}
	}
	return nil
}

func (s *dirtyScope) clear() {
	s.order = nil
	s.queued = nil
	s.visited = nil
}

// maxEmitRounds bounds how often listeners may re-dirty plugs while a scope
// is emitting.
const maxEmitRounds = 64

// emit notifies every queued plug once. Plugs dirtied by listeners during
// emission are queued again and delivered in a following round.
func (s *dirtyScope) emit(ctx context.Context) error {
	s.emitting = true
	defer func() {
		s.emitting = false
		s.clear()
	}()

	for round := 0; len(s.order) > 0; round++ {
		if round == maxEmitRounds {
			return fmt.Errorf("%w: dirty propagation did not settle after %d rounds", ErrProgramming, round)
		}
		plugs := s.order
		s.clear()
		for _, p := range plugs {
			p.dirtyCount++
		}
		for _, p := range plugs {
			if n := p.Node(); n != nil {
				n.plugDirtied.Emit(ctx, p)
			}
			p.graph.plugDirtied.Emit(ctx, p)
		}
	}
	return nil
}
