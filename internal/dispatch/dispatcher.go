package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/execctx"
	"github.com/vk/nodeflow/internal/executor"
	"github.com/vk/nodeflow/internal/framelist"
	"github.com/vk/nodeflow/internal/graph"
	"github.com/vk/nodeflow/internal/scheduler"
	"github.com/vk/nodeflow/internal/task"
	"github.com/zclconf/go-cty/cty"
)

// Context entries set on the job context.
const (
	JobDirectoryEntry   = "dispatcher:jobDirectory"
	ScriptFileNameEntry = "dispatcher:scriptFileName"
)

// Session is what a Dispatcher needs from the session owning the nodes.
type Session interface {
	// Root returns the script root every dispatched node must belong to.
	Root() *graph.Node
	// Context returns the current context, including the frame.
	Context() *execctx.Context
	// FrameRange returns the first and last frame of the script.
	FrameRange() (start, end int64)
	// FileName returns the path the script was loaded from, or "".
	FileName() string
	Evaluator() task.Evaluator
	// Save writes the script to path.
	Save(ctx context.Context, path string) error
}

// Config holds the settings of a Dispatcher. String fields are substituted
// in the job context before use.
type Config struct {
	JobName       string
	JobsDirectory string
	FramesMode    FramesMode
	FrameRange    string
}

// Dispatcher builds jobs from task nodes and executes them with a backend.
// A Dispatcher is not safe for concurrent use.
type Dispatcher struct {
	name         string
	cfg          Config
	backend      executor.Executor
	registry     *Registry
	jobDirectory string
}

// Name returns the name the dispatcher was created with.
func (d *Dispatcher) Name() string { return d.name }

// Config returns the dispatcher settings.
func (d *Dispatcher) Config() Config { return d.cfg }

// SetConfig replaces the dispatcher settings.
func (d *Dispatcher) SetConfig(cfg Config) { d.cfg = cfg }

// Backend returns the executor jobs are handed to.
func (d *Dispatcher) Backend() executor.Executor { return d.backend }

// JobDirectory returns the directory of the last dispatch, or "" when the
// last dispatch did not get that far.
func (d *Dispatcher) JobDirectory() string { return d.jobDirectory }

// Dispatch runs nodes for the frames selected by the configuration. Nodes
// must be task nodes, or boxes whose outputs are driven by task nodes, and
// must all belong to the root of sess. A pre-dispatch hook may cancel the
// dispatch, in which case nil is returned and nothing is executed.
func (d *Dispatcher) Dispatch(ctx context.Context, sess Session, nodes []*graph.Node) (err error) {
	d.jobDirectory = ""
	ctx = ctxlog.With(ctx, "dispatcher", d.name)
	logger := ctxlog.FromContext(ctx)

	taskNodes, err := d.taskNodes(sess, nodes)
	if err != nil {
		return err
	}

	// Nested dispatches run inside an outer job and stay silent.
	nested := sess.Context().String(JobDirectoryEntry, "") != ""
	if !nested {
		if d.registry.preDispatch(ctx, d, taskNodes) {
			logger.Info("Dispatch cancelled by a pre-dispatch hook.")
			d.registry.postDispatch(ctx, d, taskNodes, false)
			return nil
		}
		defer func() {
			d.registry.postDispatch(ctx, d, taskNodes, err == nil)
		}()
	}

	jobCtx := sess.Context().Child()
	if err := d.createJobDirectory(sess, jobCtx); err != nil {
		return err
	}
	ctx = ctxlog.With(ctx, "jobDirectory", d.jobDirectory)
	logger = ctxlog.FromContext(ctx)
	if !nested {
		d.registry.dispatching(ctx, d, taskNodes)
	}

	frames, err := d.frames(sess, jobCtx)
	if err != nil {
		return err
	}
	tasks := make([]*task.Task, 0, len(frames)*len(taskNodes))
	for _, f := range frames {
		frameCtx := jobCtx.WithFrame(float64(f))
		for _, n := range taskNodes {
			tasks = append(tasks, task.New(n, frameCtx))
		}
	}
	logger.Debug("Building plan.", "tasks", len(tasks), "frames", framelist.Format(frames))

	ev := sess.Evaluator()
	plan, err := scheduler.Build(ctx, tasks, ev)
	if err != nil {
		return err
	}

	scriptFile := jobCtx.String(ScriptFileNameEntry, "")
	if _, statErr := os.Stat(scriptFile); errors.Is(statErr, fs.ErrNotExist) {
		if err := sess.Save(ctx, scriptFile); err != nil {
			return fmt.Errorf("saving script to job directory: %w", err)
		}
	}

	if plan.Len() == 0 {
		logger.Info("Nothing to dispatch.")
		return nil
	}
	job := executor.NewJob(d.jobName(sess, jobCtx), d.jobDirectory, jobCtx, plan, ev)
	logger.Info("Dispatching job.", "job", job.Name, "batches", len(job.Batches), "backend", d.backend.Name())
	return d.backend.Execute(ctx, job)
}

// taskNodes validates nodes and expands boxes into the task nodes that drive
// their outputs.
func (d *Dispatcher) taskNodes(sess Session, nodes []*graph.Node) ([]*graph.Node, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s: must specify at least one node to dispatch", ErrPreconditionViolation, d.name)
	}
	root := sess.Root()
	seen := make(map[*graph.Node]bool)
	var out []*graph.Node
	add := func(n *graph.Node) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range nodes {
		if n.Script() != root || n == root {
			return nil, fmt.Errorf("%w: %s: %s does not belong to script %s", ErrPreconditionViolation, d.name, n.FullName(), root.FullName())
		}
		if task.IsTaskNode(n) {
			add(n)
			continue
		}
		inner := boxTaskNodes(n)
		if len(inner) == 0 {
			return nil, fmt.Errorf("%w: %s: %s is neither a task node nor a box containing task nodes", ErrPreconditionViolation, d.name, n.FullName())
		}
		for _, t := range inner {
			add(t)
		}
	}
	return out, nil
}

// boxTaskNodes returns the task nodes inside box that drive its outputs.
func boxTaskNodes(box *graph.Node) []*graph.Node {
	if len(box.Nodes()) == 0 {
		return nil
	}
	var out []*graph.Node
	for _, p := range graph.Filter(box, true, func(p *graph.Plug) bool {
		return p.Direction() == graph.Out && p.Node() == box
	}) {
		src := p.Source().Node()
		if src != nil && src != box && box.IsAncestorOf(src) && task.IsTaskNode(src) {
			out = append(out, src)
		}
	}
	return out
}

// createJobDirectory creates the next numbered directory below the jobs
// directory and records it, with the path the script is saved to, in c.
// Nested dispatches reuse the outer job directory when the settings allow.
func (d *Dispatcher) createJobDirectory(sess Session, c *execctx.Context) error {
	dir := c.Substitute(d.cfg.JobsDirectory)
	if name := c.Substitute(d.cfg.JobName); name != "" {
		dir = filepath.Join(dir, name)
	}

	if outer := c.String(JobDirectoryEntry, ""); outer != "" {
		if dir == "" || filepath.Clean(dir) == filepath.Dir(filepath.Clean(outer)) {
			d.jobDirectory = outer
			return nil
		}
	}

	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving job directory: %w", err)
		}
		dir = wd
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating jobs directory %s: %w", dir, err)
	}
	numbered, err := nextNumberedDirectory(dir)
	if err != nil {
		return err
	}
	d.jobDirectory = numbered
	c.Set(JobDirectoryEntry, cty.StringVal(numbered))

	scriptName := "untitled.hcl"
	if fn := sess.FileName(); fn != "" {
		scriptName = filepath.Base(fn)
	}
	c.Set(ScriptFileNameEntry, cty.StringVal(filepath.Join(numbered, scriptName)))
	return nil
}

// nextNumberedDirectory creates dir/NNNNNN one past the highest numbered
// entry. Creation is retried with the next number when another process
// claims the same one.
func nextNumberedDirectory(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading jobs directory %s: %w", dir, err)
	}
	highest := int64(-1)
	for _, e := range entries {
		if n, ok := leadingNumber(e.Name()); ok && n > highest {
			highest = n
		}
	}
	for i := highest + 1; ; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%06d", i))
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("creating job directory %s: %w", path, err)
		}
	}
}

func leadingNumber(s string) (int64, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	return n, err == nil
}

func (d *Dispatcher) frames(sess Session, c *execctx.Context) ([]int64, error) {
	switch d.cfg.FramesMode {
	case CurrentFrame:
		return []int64{int64(math.Round(c.Frame()))}, nil
	case ScriptRange:
		start, end := sess.FrameRange()
		if end < start {
			return nil, fmt.Errorf("%w: script frame range %d-%d ends before it starts", framelist.ErrConfiguration, start, end)
		}
		frames := make([]int64, 0, end-start+1)
		for f := start; f <= end; f++ {
			frames = append(frames, f)
		}
		return frames, nil
	case CustomRange:
		frames, err := framelist.Parse(c.Substitute(d.cfg.FrameRange))
		if err != nil {
			return nil, fmt.Errorf("%s: custom frame range is not a valid frame list: %w", d.name, err)
		}
		return frames, nil
	default:
		return nil, fmt.Errorf("%w: unknown frames mode %d", framelist.ErrConfiguration, int(d.cfg.FramesMode))
	}
}

func (d *Dispatcher) jobName(sess Session, c *execctx.Context) string {
	if name := c.Substitute(d.cfg.JobName); name != "" {
		return name
	}
	if fn := sess.FileName(); fn != "" {
		return strings.TrimSuffix(filepath.Base(fn), filepath.Ext(fn))
	}
	return "untitled"
}
