package graph

import (
	"strings"

	"github.com/goliatone/go-stepflow/workflow"
)

// DefaultNodeType is used for nodes whose step declares no render hint.
const DefaultNodeType = "step"

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the editable payload of a node. Meta never carries
// coordinates here; they live in Node.Position.
type NodeData struct {
	Label     string             `json:"label"`
	StateType workflow.StateType `json:"stateType,omitempty"`
	Meta      workflow.Meta      `json:"meta"`
}

// Node is one step on the canvas.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Edge is one transition on the canvas. Label is the event name.
type Edge struct {
	ID      string   `json:"id"`
	Source  string   `json:"source"`
	Target  string   `json:"target"`
	Label   string   `json:"label"`
	Guard   string   `json:"guard,omitempty"`
	Actions []string `json:"actions,omitempty"`
}

// Graph is the editable node/edge form of a workflow definition.
type Graph struct {
	ID      string `json:"id,omitempty"`
	Initial string `json:"initial"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// EdgeID is the stable identifier of the transition event leaving source.
func EdgeID(source, event string) string {
	return source + "::" + event
}

// ToGraph converts a definition into nodes and edges. Persisted coordinates
// are used when any step has them; otherwise every node is laid out.
func ToGraph(def *workflow.Definition, opts ...LayoutOption) Graph {
	g := Graph{}
	if def == nil {
		return g
	}
	g.ID = def.ID
	g.Initial = def.Initial

	usePersisted := def.HasCoordinates()
	var missing bool
	def.States.Range(func(key string, state *workflow.StateNode) bool {
		if state == nil {
			state = &workflow.StateNode{}
		}
		meta := state.Meta.Clone()
		x, y := meta.Position()
		if !meta.HasPosition() {
			missing = true
		}
		meta.X, meta.Y = nil, nil
		g.Nodes = append(g.Nodes, Node{
			ID:       key,
			Type:     nodeType(meta.NodeType),
			Position: Position{X: x, Y: y},
			Data:     NodeData{Label: key, StateType: state.Type, Meta: meta},
		})
		state.On.Range(func(event string, tr workflow.Transition) bool {
			edge := Edge{
				ID:     EdgeID(key, event),
				Source: key,
				Target: tr.Target,
				Label:  event,
				Guard:  tr.Guard,
			}
			if tr.Actions != nil {
				edge.Actions = append([]string{}, tr.Actions...)
			}
			g.Edges = append(g.Edges, edge)
			return true
		})
		return true
	})

	switch {
	case !usePersisted:
		Layout(&g, opts...)
	case missing:
		fillMissing(&g, def, opts...)
	}
	return g
}

// fillMissing lays the graph out and copies computed positions only onto
// nodes whose step had no persisted coordinates.
func fillMissing(g *Graph, def *workflow.Definition, opts ...LayoutOption) {
	computed := g.Clone()
	Layout(&computed, opts...)
	for i := range g.Nodes {
		state, ok := def.Step(g.Nodes[i].ID)
		if ok && state.Meta.HasPosition() {
			continue
		}
		g.Nodes[i].Position = computed.Nodes[i].Position
	}
}

// ToDefinition rebuilds a definition. Each node's transitions come from its
// outgoing edges in edge order; node metadata is carried through and node
// positions become the persisted coordinates.
func ToDefinition(g Graph) *workflow.Definition {
	def := &workflow.Definition{ID: g.ID, Initial: g.Initial}
	nodes := make(map[string]*workflow.StateNode, len(g.Nodes))
	for _, n := range g.Nodes {
		meta := n.Data.Meta.Clone()
		meta.SetPosition(n.Position.X, n.Position.Y)
		state := &workflow.StateNode{Type: n.Data.StateType, Meta: meta}
		nodes[n.ID] = state
		def.States.Set(n.ID, state)
	}
	for _, e := range g.Edges {
		state, ok := nodes[e.Source]
		if !ok {
			continue
		}
		tr := workflow.Transition{Target: e.Target, Guard: e.Guard}
		if e.Actions != nil {
			tr.Actions = append([]string{}, e.Actions...)
		}
		state.On.Set(e.Label, tr)
	}
	return def
}

// Clone returns a deep copy.
func (g Graph) Clone() Graph {
	out := Graph{ID: g.ID, Initial: g.Initial}
	if g.Nodes != nil {
		out.Nodes = make([]Node, len(g.Nodes))
		for i, n := range g.Nodes {
			n.Data.Meta = n.Data.Meta.Clone()
			out.Nodes[i] = n
		}
	}
	if g.Edges != nil {
		out.Edges = make([]Edge, len(g.Edges))
		for i, e := range g.Edges {
			if e.Actions != nil {
				e.Actions = append([]string{}, e.Actions...)
			}
			out.Edges[i] = e
		}
	}
	return out
}

// Node returns the node with id.
func (g *Graph) Node(id string) (Node, bool) {
	if i := g.nodeIndex(id); i >= 0 {
		return g.Nodes[i], true
	}
	return Node{}, false
}

func (g *Graph) nodeIndex(id string) int {
	for i, n := range g.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (g *Graph) edgeIndex(id string) int {
	for i, e := range g.Edges {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func nodeType(hint string) string {
	if hint = strings.TrimSpace(hint); hint != "" {
		return hint
	}
	return DefaultNodeType
}
