package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/dag"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/hashing"
	"github.com/vk/nodeflow/internal/task"
)

// ErrCycle is returned when merged tasks require each other.
var ErrCycle = errors.New("cyclic task requirements")

// Plan is the ordered result of Build.
type Plan struct {
	Descriptions []*Description
}

// Len returns the number of descriptions.
func (p *Plan) Len() int { return len(p.Descriptions) }

// Index returns the position of d in the plan, or -1.
func (p *Plan) Index(d *Description) int {
	return slices.Index(p.Descriptions, d)
}

// builder holds the state of one Build call.
type builder struct {
	ev           task.Evaluator
	descriptions []*Description
	byHash       map[hashing.Hash][]*Description
	batches      map[hashing.Hash]*Description
	resolving    map[resolveKey]bool
	walkingPosts map[resolveKey]bool
}

// resolveKey identifies a task while its requirements are being resolved.
type resolveKey struct {
	node    *graph.Node
	context hashing.Hash
}

// Build resolves tasks into a deduplicated plan in which every description
// appears after everything it requires.
func Build(ctx context.Context, tasks []*task.Task, ev task.Evaluator) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)
	b := &builder{
		ev:           ev,
		byHash:       make(map[hashing.Hash][]*Description),
		batches:      make(map[hashing.Hash]*Description),
		resolving:    make(map[resolveKey]bool),
		walkingPosts: make(map[resolveKey]bool),
	}
	for _, t := range tasks {
		if _, err := b.uniqueDescription(ctx, t); err != nil {
			return nil, err
		}
	}
	ordered, err := sortDescriptions(b.descriptions)
	if err != nil {
		return nil, err
	}
	for _, d := range ordered {
		if d.sequential {
			slices.Sort(d.Frames)
		}
	}
	logger.Debug("Execution plan built.", "requested", len(tasks), "descriptions", len(ordered))
	return &Plan{Descriptions: ordered}, nil
}

func cycleError(n *graph.Node) error {
	return fmt.Errorf("%w: dispatched tasks cannot have cyclic dependencies but %s is involved in a cycle",
		ErrCycle, n.FullName())
}

// uniqueDescription returns the description t belongs to, then makes every
// post-task of t require that description.
func (b *builder) uniqueDescription(ctx context.Context, t *task.Task) (*Description, error) {
	rk := resolveKey{node: t.Node(), context: t.Context().Hash()}
	if b.resolving[rk] {
		return nil, cycleError(t.Node())
	}
	b.resolving[rk] = true
	d, err := b.describe(ctx, t)
	delete(b.resolving, rk)
	if err != nil {
		return nil, err
	}

	// Post-tasks are walked outside the recursion guard since they may
	// require t. Cycles through them are caught by sortDescriptions.
	if b.walkingPosts[rk] {
		return d, nil
	}
	b.walkingPosts[rk] = true
	defer delete(b.walkingPosts, rk)
	for _, pt := range task.PostTasks(t.Node(), t.Context()) {
		pd, err := b.uniqueDescription(ctx, pt)
		if err != nil {
			return nil, err
		}
		if pd == d {
			return nil, cycleError(t.Node())
		}
		pd.addRequirements([]*Description{d})
	}
	return d, nil
}

func (b *builder) describe(ctx context.Context, t *task.Task) (*Description, error) {
	exec, err := t.Executable()
	if err != nil {
		return nil, err
	}
	reqTasks, err := exec.Requirements(ctx, t.Node(), t.Context(), b.ev)
	if err != nil {
		return nil, fmt.Errorf("requirements of %s: %w", t, err)
	}
	var reqs []*Description
	for _, rt := range reqTasks {
		rd, err := b.uniqueDescription(ctx, rt)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(reqs, rd) {
			reqs = append(reqs, rd)
		}
	}

	h, err := t.Hash(ctx, b.ev)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", t, err)
	}

	for _, d := range b.byHash[h] {
		if d.Task.Node() != t.Node() {
			continue
		}
		if h.IsZero() {
			if sameRequirements(d.Requirements, reqs) {
				return d, nil
			}
			continue
		}
		d.addRequirements(reqs)
		return d, nil
	}

	if h.IsZero() {
		return b.add(&Description{Task: t, Hash: h, Requirements: reqs}), nil
	}

	sequential := task.RequiresSequenceExecution(t.Node())
	batchSize := 1
	if !sequential {
		if batchSize, err = task.BatchSize(ctx, t.Node(), t.Context(), b.ev); err != nil {
			return nil, err
		}
	}

	var key hashing.Hash
	if sequential || batchSize > 1 {
		key = hashing.New().
			String(t.Node().FullName()).
			Hash(t.Context().Hash(execctx.FrameName)).
			Sum()
		if d, ok := b.batches[key]; ok && b.canJoin(d, t, reqs) {
			if !d.hasFrame(t.Frame()) {
				d.Frames = append(d.Frames, t.Frame())
			}
			d.addRequirements(reqs)
			b.byHash[h] = append(b.byHash[h], d)
			return d, nil
		}
	}

	d := b.add(&Description{
		Task:         t,
		Hash:         h,
		Frames:       []float64{t.Frame()},
		Requirements: reqs,
		batchKey:     key,
		batchSize:    batchSize,
		sequential:   sequential,
	})
	if key != (hashing.Hash{}) {
		b.batches[key] = d
	}
	return d, nil
}

// canJoin reports whether t may be folded into the batch d.
func (b *builder) canJoin(d *Description, t *task.Task, reqs []*Description) bool {
	if !d.sequential && len(d.Frames) >= d.batchSize {
		return false
	}
	// A batch cannot contain a frame that requires the batch itself.
	for _, r := range reqs {
		if r == d || r.Requires(d) {
			return false
		}
	}
	return true
}

func (b *builder) add(d *Description) *Description {
	b.descriptions = append(b.descriptions, d)
	b.byHash[d.Hash] = append(b.byHash[d.Hash], d)
	return d
}

// sortDescriptions returns descriptions with every requirement ahead of its
// dependents. A requirement that comes too late moves to just before its
// first dependent, and an already ordered list is returned unchanged.
// Cycles are reported as ErrCycle.
func sortDescriptions(descriptions []*Description) ([]*Description, error) {
	g := dag.New[int]()
	index := make(map[*Description]int, len(descriptions))
	for i, d := range descriptions {
		index[d] = i
		g.AddNode(i)
	}
	for i, d := range descriptions {
		for _, r := range d.Requirements {
			if err := g.AddEdge(index[r], i); err != nil {
				return nil, err
			}
		}
	}
	var cycle *dag.CycleError[int]
	if err := g.DetectCycles(); errors.As(err, &cycle) {
		return nil, cycleError(descriptions[cycle.Node].Task.Node())
	} else if err != nil {
		return nil, err
	}

	out := make([]*Description, 0, g.Len())
	placed := make([]bool, len(descriptions))
	var place func(i int) error
	place = func(i int) error {
		if placed[i] {
			return nil
		}
		placed[i] = true
		reqs, err := g.Dependencies(i)
		if err != nil {
			return err
		}
		for _, r := range reqs {
			if err := place(r); err != nil {
				return err
			}
		}
		out = append(out, descriptions[i])
		return nil
	}
	for i := range descriptions {
		if err := place(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}
