package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/dispatch"
	"github.com/vk/nodeflow/internal/graph"
)

// Event names emitted by a Monitor.
const (
	EventPreDispatch  = "dispatch:pre"
	EventDispatch     = "dispatch:start"
	EventPostDispatch = "dispatch:post"
)

// Emitter sends a named event with a JSON encodable payload.
type Emitter interface {
	Emit(event string, payload any)
	Close()
}

// Event is the payload of every monitor event.
type Event struct {
	Dispatcher   string   `json:"dispatcher"`
	Nodes        []string `json:"nodes"`
	JobName      string   `json:"jobName,omitempty"`
	JobDirectory string   `json:"jobDirectory,omitempty"`
	Success      *bool    `json:"success,omitempty"`
	Time         string   `json:"time"`
}

// Monitor turns dispatch hooks into events.
type Monitor struct {
	mu      sync.Mutex
	emitter Emitter
	now     func() time.Time
	sent    int
}

// New creates a Monitor that emits through e.
func New(e Emitter) *Monitor {
	return &Monitor{emitter: e, now: time.Now}
}

// Attach registers the monitor's hooks. The pre-dispatch hook never cancels.
func (m *Monitor) Attach(r *dispatch.Registry) {
	r.OnPreDispatch(func(ctx context.Context, d *dispatch.Dispatcher, nodes []*graph.Node) bool {
		m.emit(ctx, EventPreDispatch, m.event(d, nodes))
		return false
	})
	r.OnDispatch(func(ctx context.Context, d *dispatch.Dispatcher, nodes []*graph.Node) {
		ev := m.event(d, nodes)
		ev.JobName = d.Config().JobName
		ev.JobDirectory = d.JobDirectory()
		m.emit(ctx, EventDispatch, ev)
	})
	r.OnPostDispatch(func(ctx context.Context, d *dispatch.Dispatcher, nodes []*graph.Node, success bool) {
		ev := m.event(d, nodes)
		ev.JobDirectory = d.JobDirectory()
		ev.Success = &success
		m.emit(ctx, EventPostDispatch, ev)
	})
}

// Sent returns the number of events emitted so far.
func (m *Monitor) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

// Close closes the underlying emitter.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitter.Close()
}

func (m *Monitor) event(d *dispatch.Dispatcher, nodes []*graph.Node) Event {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.FullName())
	}
	return Event{
		Dispatcher: d.Name(),
		Nodes:      names,
		Time:       m.now().UTC().Format(time.RFC3339),
	}
}

func (m *Monitor) emit(ctx context.Context, name string, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctxlog.FromContext(ctx).Debug("Emitting monitor event.", "event", name, "dispatcher", ev.Dispatcher)
	m.emitter.Emit(name, ev)
	m.sent++
}
