package editor

import (
	"sync"
	"time"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/debounce"
	"github.com/goliatone/go-stepflow/graph"
)

type canvasConfig struct {
	wait         time.Duration
	historyLimit int
	layout       []graph.LayoutOption
	logger       stepflow.Logger
}

// CanvasOption configures a Canvas.
type CanvasOption func(*canvasConfig)

// WithDebounce sets the quiet period for draft serialization and drag
// history. Zero serializes on every edit.
func WithDebounce(wait time.Duration) CanvasOption {
	return func(c *canvasConfig) {
		c.wait = wait
	}
}

// WithHistoryLimit caps the undo and redo stacks.
func WithHistoryLimit(n int) CanvasOption {
	return func(c *canvasConfig) {
		c.historyLimit = n
	}
}

// WithLayoutOptions configures automatic layout.
func WithLayoutOptions(opts ...graph.LayoutOption) CanvasOption {
	return func(c *canvasConfig) {
		c.layout = append(c.layout, opts...)
	}
}

// WithCanvasLogger sets the canvas logger.
func WithCanvasLogger(l stepflow.Logger) CanvasOption {
	return func(c *canvasConfig) {
		c.logger = l
	}
}

// Canvas is the editable graph of a session. Every structural edit is
// recorded in History and written back to the session draft after the
// debounce quiet period.
type Canvas struct {
	mu      sync.Mutex
	session *Session
	history *History
	graph   graph.Graph
	serial  *debounce.Debouncer
	layout  []graph.LayoutOption
	logger  stepflow.Logger
}

// NewCanvas builds the graph of the session's active definition.
func NewCanvas(session *Session, opts ...CanvasOption) *Canvas {
	cfg := canvasConfig{wait: debounce.DefaultWait, historyLimit: DefaultHistoryLimit}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	c := &Canvas{
		session: session,
		history: NewHistory(cfg.historyLimit, cfg.wait),
		serial:  debounce.New(cfg.wait),
		layout:  cfg.layout,
		logger:  stepflow.NormalizeLogger(cfg.logger),
	}
	c.graph = graph.ToGraph(session.Active(), c.layout...)
	session.attach(c)
	return c
}

// Graph returns a copy of the current graph.
func (c *Canvas) Graph() graph.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.Clone()
}

// History exposes the undo/redo stacks.
func (c *Canvas) History() *History {
	return c.history
}

// AddNode adds a step.
func (c *Canvas) AddNode(n graph.Node) error {
	return c.edit(false, func(g *graph.Graph) error { return g.AddNode(n) })
}

// RemoveNode removes a step and its edges.
func (c *Canvas) RemoveNode(id string) error {
	return c.edit(false, func(g *graph.Graph) error { return g.RemoveNode(id) })
}

// Connect adds or retargets a transition.
func (c *Canvas) Connect(source, target, event string) (graph.Edge, error) {
	var edge graph.Edge
	err := c.edit(false, func(g *graph.Graph) error {
		var err error
		edge, err = g.Connect(source, target, event)
		return err
	})
	return edge, err
}

// Disconnect removes a transition.
func (c *Canvas) Disconnect(edgeID string) error {
	return c.edit(false, func(g *graph.Graph) error { return g.Disconnect(edgeID) })
}

// SetEdge replaces the guard and actions of a transition.
func (c *Canvas) SetEdge(edgeID, guard string, actions []string) error {
	return c.edit(false, func(g *graph.Graph) error { return g.SetEdge(edgeID, guard, actions) })
}

// MoveNode repositions a step. Moves are continuous: a drag burst becomes a
// single undo step.
func (c *Canvas) MoveNode(id string, pos graph.Position) error {
	return c.edit(true, func(g *graph.Graph) error { return g.MoveNode(id, pos) })
}

// UpdateNodeData edits a step's metadata.
func (c *Canvas) UpdateNodeData(id string, fn func(*graph.NodeData)) error {
	return c.edit(false, func(g *graph.Graph) error { return g.UpdateNodeData(id, fn) })
}

// SetInitial changes the start step.
func (c *Canvas) SetInitial(id string) error {
	return c.edit(false, func(g *graph.Graph) error {
		if _, ok := g.Node(id); !ok {
			return stepflow.NewError(stepflow.ErrStepNotFound, "initial step must exist", nil, map[string]any{"node": id})
		}
		g.Initial = id
		return nil
	})
}

// AutoLayout recomputes every node position.
func (c *Canvas) AutoLayout() error {
	return c.edit(false, func(g *graph.Graph) error {
		graph.Layout(g, c.layout...)
		return nil
	})
}

func (c *Canvas) edit(continuous bool, fn func(*graph.Graph) error) error {
	if c.session.IsReadOnly() {
		return stepflow.NewError(stepflow.ErrReadOnly, "canvas is read only", nil, nil)
	}
	c.mu.Lock()
	before := SnapshotOf(c.graph)
	if err := fn(&c.graph); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if continuous {
		c.history.RecordDebounced(before)
	} else {
		c.history.Record(before)
	}
	c.serial.Trigger(c.serialize)
	return nil
}

// Undo restores the previous graph. It reports false when there is nothing
// to undo.
func (c *Canvas) Undo() (bool, error) {
	return c.travel(c.history.Undo)
}

// Redo re-applies an undone edit. It reports false when there is nothing to
// redo.
func (c *Canvas) Redo() (bool, error) {
	return c.travel(c.history.Redo)
}

func (c *Canvas) travel(step func(Snapshot) (Snapshot, bool)) (bool, error) {
	if c.session.IsReadOnly() {
		return false, stepflow.NewError(stepflow.ErrReadOnly, "canvas is read only", nil, nil)
	}
	c.mu.Lock()
	snap, ok := step(SnapshotOf(c.graph))
	if ok {
		restored := snap.clone()
		c.graph.Initial, c.graph.Nodes, c.graph.Edges = restored.Initial, restored.Nodes, restored.Edges
	}
	c.mu.Unlock()
	if ok {
		c.serial.Trigger(c.serialize)
	}
	return ok, nil
}

func (c *Canvas) serialize() {
	c.mu.Lock()
	def := graph.ToDefinition(c.graph)
	c.mu.Unlock()
	if err := c.session.UpdateDraft(def); err != nil {
		c.logger.Debug("canvas serialization dropped: %v", err)
	}
}

// Flush writes pending history and serialization immediately.
func (c *Canvas) Flush() {
	c.history.Flush()
	c.serial.Flush()
}

// Reload rebuilds the graph from the session and clears history. Call it
// after ApplySource or DiscardChanges.
func (c *Canvas) Reload() {
	c.serial.Cancel()
	c.history.Reset()
	def := c.session.Active()
	c.mu.Lock()
	c.graph = graph.ToGraph(def, c.layout...)
	c.mu.Unlock()
}

// Close stops pending timers without writing them and detaches the canvas
// from its session.
func (c *Canvas) Close() {
	c.session.detach(c)
	c.serial.Stop()
	c.history.Close()
}
