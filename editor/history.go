package editor

import (
	"sync"
	"time"

	"github.com/goliatone/go-stepflow/debounce"
	"github.com/goliatone/go-stepflow/graph"
)

// DefaultHistoryLimit caps each of the undo and redo stacks.
const DefaultHistoryLimit = 50

// Snapshot is one undo step: the start step and the node and edge lists at
// a point in time.
type Snapshot struct {
	Initial string
	Nodes   []graph.Node
	Edges   []graph.Edge
}

// SnapshotOf captures a deep copy of g's start step, nodes and edges.
func SnapshotOf(g graph.Graph) Snapshot {
	c := g.Clone()
	return Snapshot{Initial: c.Initial, Nodes: c.Nodes, Edges: c.Edges}
}

func (s Snapshot) clone() Snapshot {
	return SnapshotOf(graph.Graph{Initial: s.Initial, Nodes: s.Nodes, Edges: s.Edges})
}

// History is a pair of bounded stacks. Record pushes the state before an
// action; Undo and Redo swap the caller's current state with the top of the
// respective stack.
type History struct {
	mu       sync.Mutex
	past     []Snapshot
	future   []Snapshot
	limit    int
	debounce *debounce.Debouncer
	pending  *Snapshot
}

// NewHistory builds a history capped at limit entries per stack. Continuous
// actions recorded through RecordDebounced collapse after wait.
func NewHistory(limit int, wait time.Duration) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit, debounce: debounce.New(wait)}
}

// Record pushes before onto the undo stack and clears the redo stack. A
// pending debounced record is committed first so ordering is kept.
func (h *History) Record(before Snapshot) {
	h.debounce.Cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending != nil {
		h.pushPastLocked(*h.pending)
		h.pending = nil
	}
	h.pushPastLocked(before.clone())
}

func (h *History) pushPastLocked(s Snapshot) {
	h.past = append(h.past, s)
	if over := len(h.past) - h.limit; over > 0 {
		h.past = append([]Snapshot(nil), h.past[over:]...)
	}
	h.future = nil
}

// RecordDebounced records before once for a burst of continuous changes:
// the first call of a burst keeps its snapshot, later calls only extend the
// quiet period.
func (h *History) RecordDebounced(before Snapshot) {
	h.mu.Lock()
	if h.pending == nil {
		s := before.clone()
		h.pending = &s
	}
	h.mu.Unlock()
	h.debounce.Trigger(h.commitPending)
}

func (h *History) commitPending() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return
	}
	h.pushPastLocked(*h.pending)
	h.pending = nil
}

// Flush commits a pending debounced record immediately.
func (h *History) Flush() {
	if !h.debounce.Flush() {
		h.commitPending()
	}
}

// Undo returns the previous state and stores current for Redo. It reports
// false, changing nothing, when there is nothing to undo.
func (h *History) Undo(current Snapshot) (Snapshot, bool) {
	h.Flush()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.past) == 0 {
		return Snapshot{}, false
	}
	prev := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append(h.future, current.clone())
	if over := len(h.future) - h.limit; over > 0 {
		h.future = append([]Snapshot(nil), h.future[over:]...)
	}
	return prev, true
}

// Redo mirrors Undo.
func (h *History) Redo(current Snapshot) (Snapshot, bool) {
	h.Flush()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.future) == 0 {
		return Snapshot{}, false
	}
	next := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, current.clone())
	if over := len(h.past) - h.limit; over > 0 {
		h.past = append([]Snapshot(nil), h.past[over:]...)
	}
	return next, true
}

// CanUndo reports whether Undo would change anything.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0 || h.pending != nil
}

// CanRedo reports whether Redo would change anything.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// Len returns the sizes of the undo and redo stacks.
func (h *History) Len() (past, future int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past), len(h.future)
}

// Reset empties both stacks and drops pending records.
func (h *History) Reset() {
	h.debounce.Cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.past, h.future, h.pending = nil, nil, nil
}

// Close stops the debounce timer.
func (h *History) Close() {
	h.debounce.Stop()
}
