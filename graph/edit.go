package graph

import (
	"fmt"
	"strings"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/workflow"
)

// AddNode appends a node. The id must be unique and non-empty.
func (g *Graph) AddNode(n Node) error {
	id := strings.TrimSpace(n.ID)
	if id == "" {
		return stepflow.NewError(stepflow.ErrInvalidDefinition, "node id is required", nil, nil)
	}
	if g.nodeIndex(id) >= 0 {
		return stepflow.NewError(stepflow.ErrInvalidDefinition,
			fmt.Sprintf("node %q already exists", id), nil, map[string]any{"node": id})
	}
	n.ID = id
	if n.Type == "" {
		n.Type = nodeType(n.Data.Meta.NodeType)
	}
	if n.Data.Label == "" {
		n.Data.Label = id
	}
	if n.Data.StateType == "" {
		n.Data.StateType = workflow.StateAtomic
	}
	n.Data.Meta = n.Data.Meta.Clone()
	n.Data.Meta.X, n.Data.Meta.Y = nil, nil
	g.Nodes = append(g.Nodes, n)
	if g.Initial == "" {
		g.Initial = id
	}
	return nil
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id string) error {
	i := g.nodeIndex(id)
	if i < 0 {
		return stepNotFound(id)
	}
	g.Nodes = append(g.Nodes[:i:i], g.Nodes[i+1:]...)
	kept := g.Edges[:0:0]
	for _, e := range g.Edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	g.Edges = kept
	return nil
}

// Connect adds a transition from source to target on event. An existing
// transition for the same source and event is retargeted in place.
func (g *Graph) Connect(source, target, event string) (Edge, error) {
	if g.nodeIndex(source) < 0 {
		return Edge{}, stepNotFound(source)
	}
	if g.nodeIndex(target) < 0 {
		return Edge{}, stepNotFound(target)
	}
	if strings.TrimSpace(event) == "" {
		event = workflow.EventNext
	}
	id := EdgeID(source, event)
	if i := g.edgeIndex(id); i >= 0 {
		g.Edges[i].Target = target
		return g.Edges[i], nil
	}
	edge := Edge{ID: id, Source: source, Target: target, Label: event}
	g.Edges = append(g.Edges, edge)
	return edge, nil
}

// Disconnect removes the edge with id.
func (g *Graph) Disconnect(id string) error {
	i := g.edgeIndex(id)
	if i < 0 {
		return stepflow.NewError(stepflow.ErrStepNotFound,
			fmt.Sprintf("edge %q not found", id), nil, map[string]any{"edge": id})
	}
	g.Edges = append(g.Edges[:i:i], g.Edges[i+1:]...)
	return nil
}

// SetEdge replaces guard and actions of an edge.
func (g *Graph) SetEdge(id, guard string, actions []string) error {
	i := g.edgeIndex(id)
	if i < 0 {
		return stepflow.NewError(stepflow.ErrStepNotFound,
			fmt.Sprintf("edge %q not found", id), nil, map[string]any{"edge": id})
	}
	g.Edges[i].Guard = guard
	if actions == nil {
		g.Edges[i].Actions = nil
	} else {
		g.Edges[i].Actions = append([]string{}, actions...)
	}
	return nil
}

// MoveNode sets the position of a node.
func (g *Graph) MoveNode(id string, pos Position) error {
	i := g.nodeIndex(id)
	if i < 0 {
		return stepNotFound(id)
	}
	g.Nodes[i].Position = pos
	return nil
}

// UpdateNodeData applies fn to a copy of the node data and stores the result.
func (g *Graph) UpdateNodeData(id string, fn func(*NodeData)) error {
	i := g.nodeIndex(id)
	if i < 0 {
		return stepNotFound(id)
	}
	data := g.Nodes[i].Data
	data.Meta = data.Meta.Clone()
	fn(&data)
	data.Meta.X, data.Meta.Y = nil, nil
	g.Nodes[i].Data = data
	g.Nodes[i].Type = nodeType(data.Meta.NodeType)
	return nil
}

func stepNotFound(id string) error {
	return stepflow.NewError(stepflow.ErrStepNotFound,
		fmt.Sprintf("node %q not found", id), nil, map[string]any{"node": id})
}
