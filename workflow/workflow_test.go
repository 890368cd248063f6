package workflow

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepflow "github.com/goliatone/go-stepflow"
)

const onboardingJSON = `{
  "id": "onboarding",
  "initial": "profile",
  "states": {
    "profile": {
      "type": "initial",
      "meta": {
        "x": 0, "y": 0,
        "description": "Who are you",
        "nodeType": "form",
        "form_schema": [
          {"name": "age", "label": "Age", "component": "number", "required": true},
          {"name": "country", "label": "Country", "component": "select",
           "options": [{"label": "United States", "value": "US"}],
           "disabled": "host.age < 18"}
        ]
      },
      "on": {"NEXT": "plan", "SKIP": {"target": "done", "guard": "host.age >= 65", "actions": ["notify"]}}
    },
    "plan": {
      "type": "atomic",
      "meta": {"x": 0, "y": 120, "color": "#00f", "job_config": {"queue": "billing", "retries": 2}},
      "on": {"NEXT": {"target": "done", "guard": "host.country == 'US'"}}
    },
    "done": {"type": "final", "meta": {"x": 0, "y": 240}, "on": {}}
  }
}`

func mustParse(t *testing.T, src string) *Definition {
	t.Helper()
	def, err := Parse([]byte(src))
	require.NoError(t, err)
	return def
}

func TestParsePreservesDocumentOrder(t *testing.T) {
	def := mustParse(t, onboardingJSON)

	assert.Equal(t, "onboarding", def.ID)
	assert.Equal(t, []string{"profile", "plan", "done"}, def.States.Keys())

	profile, ok := def.Step("profile")
	require.True(t, ok)
	assert.Equal(t, StateInitial, profile.Type)
	assert.Equal(t, []string{"NEXT", "SKIP"}, profile.On.Keys())

	next, _ := profile.On.Get("NEXT")
	assert.Equal(t, Transition{Target: "plan"}, next)
	skip, _ := profile.On.Get("SKIP")
	assert.Equal(t, "host.age >= 65", skip.Guard)
	assert.Equal(t, []string{"notify"}, skip.Actions)

	require.Len(t, profile.Meta.FormSchema, 2)
	age := profile.Meta.FormSchema[0]
	require.NotNil(t, age.Required)
	require.NotNil(t, age.Required.Literal)
	assert.True(t, *age.Required.Literal)
	assert.Equal(t, "host.age < 18", profile.Meta.FormSchema[1].Disabled.Expr)
}

func TestParseYAMLMatchesJSON(t *testing.T) {
	yamlSrc := `
id: onboarding
initial: profile
states:
  profile:
    type: initial
    meta: {x: 0, y: 0}
    on:
      NEXT: done
  done:
    type: final
    meta: {x: 0, y: 120}
`
	def := mustParse(t, yamlSrc)
	assert.Equal(t, []string{"profile", "done"}, def.States.Keys())
	tr, ok := def.Next("profile")
	require.True(t, ok)
	assert.Equal(t, "done", tr.Target)
	assert.True(t, def.IsTerminal("done"))
}

func TestJSONRoundTripKeepsOrderAndBareTransitions(t *testing.T) {
	def := mustParse(t, onboardingJSON)

	out, err := MarshalIndent(def)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(out, &generic))
	states := generic["states"].(map[string]any)
	profileOn := states["profile"].(map[string]any)["on"].(map[string]any)
	assert.Equal(t, "plan", profileOn["NEXT"])

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, def.States.Keys(), again.States.Keys())
	if !reflect.DeepEqual(def, again) {
		t.Fatalf("round trip mismatch:\nwant %#v\ngot  %#v", def, again)
	}
}

func TestStartStepResolution(t *testing.T) {
	assert.Equal(t, "profile", mustParse(t, onboardingJSON).StartStep())

	noInitial := mustParse(t, `{"states": {"b": {"on": {}}, "a": {"on": {}}}}`)
	assert.Equal(t, "b", noInitial.StartStep())

	assert.Equal(t, FallbackStep, (&Definition{}).StartStep())
	var nilDef *Definition
	assert.Equal(t, FallbackStep, nilDef.StartStep())
}

func TestTerminalSteps(t *testing.T) {
	def := mustParse(t, onboardingJSON)
	assert.False(t, def.IsTerminal("profile"))
	assert.False(t, def.IsTerminal("plan"))
	assert.True(t, def.IsTerminal("done"))

	dead := mustParse(t, `{"initial": "a", "states": {"a": {"type": "atomic", "on": {"OTHER": "a"}}}}`)
	assert.True(t, dead.IsTerminal("a"))
}

func TestCloneIsIndependent(t *testing.T) {
	def := mustParse(t, onboardingJSON)
	clone := def.Clone()
	require.True(t, reflect.DeepEqual(def, clone))

	node, _ := clone.Step("plan")
	node.Meta.JobConfig["queue"] = "changed"
	node.Meta.SetPosition(99, 99)
	node.On.Set("NEXT", Transition{Target: "profile"})
	clone.States.Delete("done")

	original, _ := def.Step("plan")
	assert.Equal(t, "billing", original.Meta.JobConfig["queue"])
	x, _ := original.Meta.Position()
	assert.Equal(t, float64(0), x)
	tr, _ := def.Next("plan")
	assert.Equal(t, "done", tr.Target)
	assert.True(t, def.HasStep("done"))
}

func TestOrderedMapDeleteAndReinsert(t *testing.T) {
	var m OrderedMap[int]
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)
	m.Set("a", 10)
	assert.Equal(t, []string{"a", "b", "c"}, m.Keys())

	m.Delete("b")
	m.Set("b", 20)
	assert.Equal(t, []string{"a", "c", "b"}, m.Keys())

	m.Delete("a")
	m.Delete("c")
	m.Delete("b")
	assert.Equal(t, OrderedMap[int]{}, m)
}

func TestParseStrictRequiresTopLevelKeys(t *testing.T) {
	_, err := ParseStrict([]byte(`{"id": "x", "states": {}}`))
	require.Error(t, err)
	assert.Equal(t, stepflow.ErrCodeInvalidSource, stepflow.ErrorCode(err))
	assert.Contains(t, err.Error(), "initial")

	_, err = ParseStrict([]byte(`{"initial": "a", "states": {`))
	require.Error(t, err)
	assert.Equal(t, stepflow.ErrCodeInvalidSource, stepflow.ErrorCode(err))

	_, err = ParseStrict([]byte(`[1, 2]`))
	require.Error(t, err)

	def, err := ParseStrict([]byte(`{"initial": "start", "states": {}}`))
	require.NoError(t, err)
	assert.Equal(t, "start", def.Initial)
}

func TestValidateCleanDefinition(t *testing.T) {
	ok, diags := CanPublish(mustParse(t, onboardingJSON))
	assert.True(t, ok)
	assert.Empty(t, diags)
	assert.NoError(t, Check(mustParse(t, onboardingJSON)))
}

func TestValidateReportsProblems(t *testing.T) {
	def := mustParse(t, `{
	  "initial": "a",
	  "states": {
	    "a": {"on": {"NEXT": {"target": "b", "guard": "host.x >"}}},
	    "b": {"meta": {"form_schema": [
	      {"name": "x", "component": "text", "hidden": "window.alert"},
	      {"name": "x", "component": "text"}
	    ]}, "on": {"NEXT": "ghost"}},
	    "orphan": {"type": "final", "on": {}},
	    "stuck": {"on": {}}
	  }
	}`)

	diags := Validate(def)
	codes := map[string]string{}
	for _, d := range diags {
		codes[d.Code] = d.Severity
	}
	assert.Equal(t, SeverityError, codes[DiagCodeInvalidGuard])
	assert.Equal(t, SeverityError, codes[DiagCodeInvalidRule])
	assert.Equal(t, SeverityError, codes[DiagCodeDanglingTarget])
	assert.Equal(t, SeverityWarning, codes[DiagCodeDuplicateField])
	assert.Equal(t, SeverityWarning, codes[DiagCodeUnreachable])
	assert.Equal(t, SeverityWarning, codes[DiagCodeDeadEnd])

	again := Validate(def)
	assert.Equal(t, diags, again)

	err := Check(def)
	require.Error(t, err)
	assert.Equal(t, stepflow.ErrCodePublishRejected, stepflow.ErrorCode(err))
}

func TestValidateUnknownInitialAndDepth(t *testing.T) {
	deep := FieldSpec{Name: "leaf", Component: "text"}
	for i := 0; i < MaxFieldDepth+1; i++ {
		deep = FieldSpec{Component: "group", Columns: []FieldSpec{deep}}
	}
	def := &Definition{Initial: "missing"}
	def.States.Set("a", &StateNode{Type: StateFinal, Meta: Meta{FormSchema: []FieldSpec{deep}}})

	diags := Validate(def)
	var sawInitial, sawDepth bool
	for _, d := range diags {
		sawInitial = sawInitial || d.Code == DiagCodeUnknownInitial
		sawDepth = sawDepth || d.Code == DiagCodeFieldDepth
	}
	assert.True(t, sawInitial)
	assert.True(t, sawDepth)
}

func TestSkeletonIsWellFormed(t *testing.T) {
	sk := NewSkeleton()
	assert.True(t, sk.IsWellFormed())
	assert.Equal(t, "start", sk.StartStep())

	assert.False(t, (&Definition{}).IsWellFormed())
	bad := &Definition{Initial: "nope"}
	bad.States.Set("a", &StateNode{})
	assert.False(t, bad.IsWellFormed())
}
