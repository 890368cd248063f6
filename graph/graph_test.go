package graph

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/workflow"
)

func parse(t *testing.T, src string) *workflow.Definition {
	t.Helper()
	def, err := workflow.Parse([]byte(src))
	require.NoError(t, err)
	return def
}

const positioned = `{
  "id": "review",
  "initial": "draft",
  "states": {
    "draft": {
      "type": "initial",
      "meta": {"x": 10, "y": 20, "description": "Write it", "nodeType": "form",
               "form_schema": [{"name": "title", "component": "text", "hidden": "host.skip == true"}]},
      "on": {"NEXT": "review", "ABANDON": {"target": "closed", "actions": ["log"]}}
    },
    "review": {
      "meta": {"x": 10, "y": 180, "color": "#f80", "job_config": {"queue": "reviews"}},
      "on": {"NEXT": {"target": "closed", "guard": "host.approved == true"}, "REJECT": "draft"}
    },
    "closed": {"type": "final", "meta": {"x": 10, "y": 340}, "on": {}}
  }
}`

const unpositioned = `{
  "initial": "a",
  "states": {
    "a": {"on": {"NEXT": "b", "ALT": "c"}},
    "b": {"on": {"NEXT": "d"}},
    "c": {"on": {"NEXT": "d"}},
    "d": {"on": {"NEXT": "e", "BACK": "a"}},
    "e": {"type": "final", "on": {}}
  }
}`

func TestRoundTripWithCoordinates(t *testing.T) {
	def := parse(t, positioned)
	g := ToGraph(def)

	require.Len(t, g.Nodes, 3)
	assert.Equal(t, Position{X: 10, Y: 180}, g.Nodes[1].Position)
	assert.Equal(t, "form", g.Nodes[0].Type)
	assert.Equal(t, DefaultNodeType, g.Nodes[1].Type)
	assert.Nil(t, g.Nodes[0].Data.Meta.X)

	require.Len(t, g.Edges, 4)
	assert.Equal(t, Edge{ID: "draft::NEXT", Source: "draft", Target: "review", Label: "NEXT"}, g.Edges[0])
	assert.Equal(t, []string{"log"}, g.Edges[1].Actions)
	assert.Equal(t, "host.approved == true", g.Edges[2].Guard)

	back := ToDefinition(g)
	if !reflect.DeepEqual(def, back) {
		t.Fatalf("round trip mismatch:\nwant %#v\ngot  %#v", def, back)
	}
}

func TestToGraphDoesNotAliasDefinition(t *testing.T) {
	def := parse(t, positioned)
	g := ToGraph(def)
	g.Nodes[1].Data.Meta.JobConfig["queue"] = "other"
	g.Edges[1].Actions[0] = "changed"

	review, _ := def.Step("review")
	assert.Equal(t, "reviews", review.Meta.JobConfig["queue"])
	draft, _ := def.Step("draft")
	abandon, _ := draft.On.Get("ABANDON")
	assert.Equal(t, []string{"log"}, abandon.Actions)
}

func TestLayoutIsDeterministic(t *testing.T) {
	first := ToGraph(parse(t, unpositioned))
	for i := 0; i < 20; i++ {
		again := ToGraph(parse(t, unpositioned))
		require.Equal(t, first.Nodes, again.Nodes)
	}
}

func TestLayoutRanksFollowLongestPath(t *testing.T) {
	g := ToGraph(parse(t, unpositioned))
	pos := map[string]Position{}
	for _, n := range g.Nodes {
		pos[n.ID] = n.Position
	}

	assert.Equal(t, 0.0, pos["a"].Y)
	assert.Equal(t, DefaultRankSeparation, pos["b"].Y)
	assert.Equal(t, DefaultRankSeparation, pos["c"].Y)
	assert.Equal(t, 2*DefaultRankSeparation, pos["d"].Y)
	assert.Equal(t, 3*DefaultRankSeparation, pos["e"].Y)

	// b was inserted before c so it stays on the left.
	assert.Less(t, pos["b"].X, pos["c"].X)
	assert.Equal(t, -pos["b"].X, pos["c"].X)
}

func TestLayoutLeftToRight(t *testing.T) {
	g := ToGraph(parse(t, unpositioned), WithDirection(LeftToRight), WithRankSeparation(100), WithNodeSeparation(40))
	n, ok := g.Node("d")
	require.True(t, ok)
	assert.Equal(t, Position{X: 200, Y: 0}, n.Position)
}

func TestLayoutHandlesCyclesAndIsolatedNodes(t *testing.T) {
	def := parse(t, `{
	  "initial": "x",
	  "states": {
	    "lonely": {"on": {}},
	    "x": {"on": {"NEXT": "y"}},
	    "y": {"on": {"NEXT": "x"}}
	  }
	}`)
	g := ToGraph(def)
	y, _ := g.Node("y")
	x, _ := g.Node("x")
	lonely, _ := g.Node("lonely")
	assert.Equal(t, 0.0, x.Position.Y)
	assert.Equal(t, DefaultRankSeparation, y.Position.Y)
	assert.Equal(t, 0.0, lonely.Position.Y)
	assert.Less(t, lonely.Position.X, x.Position.X)
}

func TestPartialCoordinatesKeepPersistedPositions(t *testing.T) {
	def := parse(t, `{
	  "initial": "a",
	  "states": {
	    "a": {"meta": {"x": 500, "y": 500}, "on": {"NEXT": "b"}},
	    "b": {"on": {}}
	  }
	}`)
	g := ToGraph(def)
	a, _ := g.Node("a")
	b, _ := g.Node("b")
	assert.Equal(t, Position{X: 500, Y: 500}, a.Position)
	assert.Equal(t, Position{X: 0, Y: DefaultRankSeparation}, b.Position)
}

func TestEditOperations(t *testing.T) {
	g := ToGraph(parse(t, positioned))

	require.NoError(t, g.AddNode(Node{ID: "archive"}))
	err := g.AddNode(Node{ID: "archive"})
	require.Error(t, err)
	assert.Equal(t, stepflow.ErrCodeInvalidDefinition, stepflow.ErrorCode(err))

	edge, err := g.Connect("closed", "archive", "")
	require.NoError(t, err)
	assert.Equal(t, "closed::NEXT", edge.ID)

	edge, err = g.Connect("closed", "draft", "NEXT")
	require.NoError(t, err)
	assert.Equal(t, "draft", edge.Target)
	assert.Len(t, g.Edges, 5)

	require.NoError(t, g.SetEdge("closed::NEXT", "host.reopen == true", []string{"audit"}))
	require.NoError(t, g.MoveNode("archive", Position{X: 1, Y: 2}))
	require.NoError(t, g.UpdateNodeData("archive", func(d *NodeData) {
		d.Meta.Description = "cold storage"
		d.Meta.NodeType = "job"
	}))
	n, _ := g.Node("archive")
	assert.Equal(t, "job", n.Type)
	assert.Equal(t, workflow.StateAtomic, n.Data.StateType)

	require.NoError(t, g.RemoveNode("draft"))
	for _, e := range g.Edges {
		assert.NotEqual(t, "draft", e.Source)
		assert.NotEqual(t, "draft", e.Target)
	}

	err = g.MoveNode("ghost", Position{})
	assert.Equal(t, stepflow.ErrCodeStepNotFound, stepflow.ErrorCode(err))
	_, err = g.Connect("review", "ghost", "NEXT")
	assert.Equal(t, stepflow.ErrCodeStepNotFound, stepflow.ErrorCode(err))
	assert.Error(t, g.Disconnect("nope"))
	require.NoError(t, g.Disconnect("review::NEXT"))
	assert.Empty(t, g.Edges)
}
