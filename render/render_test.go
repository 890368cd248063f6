package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/workflow"
)

func TestKindOf(t *testing.T) {
	cases := map[string]Kind{
		"text":     KindPrimitive,
		" Select ": KindPrimitive,
		"GROUP":    KindGroup,
		"datagrid": KindGrid,
		"summary":  KindResult,
		"divider":  KindEmpty,
		"map-view": KindFallback,
		"":         KindFallback,
	}
	for component, want := range cases {
		if got := KindOf(component); got != want {
			t.Fatalf("KindOf(%q) = %s, want %s", component, got, want)
		}
	}
}

func TestBuildDegradesUnknownComponents(t *testing.T) {
	reg, err := NewStaticRegistry(Widget{Component: "signature", Kind: KindPrimitive, Name: "SignaturePad"})
	require.NoError(t, err)

	fields, err := Build([]workflow.FieldSpec{
		{Name: "sig", Component: "signature"},
		{Name: "map", Component: "map-view"},
		{Name: "contact", Component: "group", Columns: []workflow.FieldSpec{
			{Name: "email", Component: "email"},
		}},
	}, reg)
	require.NoError(t, err)
	require.Len(t, fields, 3)

	assert.IsType(t, Primitive{}, fields[0])
	fb, ok := fields[1].(Fallback)
	require.True(t, ok)
	assert.Equal(t, ReasonUnknownComponent, fb.Reason)
	group, ok := fields[2].(Group)
	require.True(t, ok)
	require.Len(t, group.Children, 1)
	assert.Equal(t, "email", group.Children[0].Spec().Name)
}

func deepSchema(levels int) []workflow.FieldSpec {
	leaf := workflow.FieldSpec{Name: "leaf", Component: "text"}
	for i := 0; i < levels; i++ {
		leaf = workflow.FieldSpec{Name: "g", Component: "group", Columns: []workflow.FieldSpec{leaf}}
	}
	return []workflow.FieldSpec{leaf}
}

func TestBuildDepthGuard(t *testing.T) {
	fields, err := Build(deepSchema(workflow.MaxFieldDepth+4), nil)
	require.Error(t, err)
	assert.Equal(t, stepflow.ErrCodeFieldDepth, stepflow.ErrorCode(err))

	deepest := 0
	var fallback Field
	Walk(fields, workflow.MaxFieldDepth+1, func(f Field, depth int) bool {
		if depth > deepest {
			deepest = depth
		}
		if f.Kind() == KindFallback {
			fallback = f
		}
		return true
	})
	assert.Equal(t, workflow.MaxFieldDepth+1, deepest)
	require.NotNil(t, fallback)
	assert.Equal(t, ReasonTooDeep, fallback.(Fallback).Reason)

	_, err = Build(deepSchema(workflow.MaxFieldDepth-1), nil)
	assert.NoError(t, err)
}

func TestWalkSkipsChildren(t *testing.T) {
	fields, err := Build([]workflow.FieldSpec{
		{Name: "a", Component: "group", Columns: []workflow.FieldSpec{{Name: "a1", Component: "text"}}},
		{Name: "b", Component: "group", Columns: []workflow.FieldSpec{{Name: "b1", Component: "text"}}},
	}, nil)
	require.NoError(t, err)

	var seen []string
	Walk(fields, 0, func(f Field, _ int) bool {
		seen = append(seen, f.Spec().Name)
		return f.Spec().Name != "a"
	})
	assert.Equal(t, []string{"a", "b", "b1"}, seen)
}

var schema = []workflow.FieldSpec{
	{Name: "age", Component: "number", Required: workflow.Always(true)},
	{Name: "country", Component: "select", Options: []workflow.Option{{Label: "US", Value: "US"}, {Label: "CA", Value: "CA"}}},
	{Name: "ssn", Component: "text", Hidden: workflow.When("host.country != 'US'"), Required: workflow.When("formData.age >= 18")},
	{Name: "guardian", Component: "group", Hidden: workflow.When("host.age >= 18"), Columns: []workflow.FieldSpec{
		{Name: "guardian_name", Component: "text", Required: workflow.Always(true)},
	}},
	{Name: "notes", Component: "textarea", Disabled: workflow.When("host.locked")},
	{Name: "broken", Component: "text", Hidden: workflow.When("host.age >>> 1"), Disabled: workflow.When("window.x")},
	{Name: "dependents", Component: "grid", Required: workflow.Always(true), Columns: []workflow.FieldSpec{
		{Name: "dep_name", Component: "text"},
	}},
}

func TestRenderEvaluatesRules(t *testing.T) {
	r := NewRenderer(nil)
	view, err := r.Render(schema, map[string]any{"age": 20, "country": "US", "locked": true, "dependents": []any{}})
	require.NoError(t, err)

	ssn, ok := view.Field("ssn")
	require.True(t, ok)
	assert.True(t, ssn.Visible)
	assert.True(t, ssn.Required)

	guardian, _ := view.Field("guardian")
	assert.False(t, guardian.Visible)
	child, _ := view.Field("guardian_name")
	assert.False(t, child.Visible)
	assert.False(t, child.Required)

	notes, _ := view.Field("notes")
	assert.True(t, notes.Disabled)

	age, _ := view.Field("age")
	assert.Equal(t, 20, age.Value)

	country, _ := view.Field("country")
	assert.Len(t, country.Options, 2)

	assert.Equal(t, []string{"ssn", "dependents"}, view.MissingRequired())
}

func TestRenderRuleFailurePolicy(t *testing.T) {
	view, err := NewRenderer(nil).Render(schema, map[string]any{"age": 10})
	require.NoError(t, err)

	broken, _ := view.Field("broken")
	assert.False(t, broken.Visible, "unevaluable hidden rule hides")
	assert.False(t, broken.Disabled, "unevaluable disabled rule leaves the field enabled")

	ssn, _ := view.Field("ssn")
	assert.False(t, ssn.Visible)
	guardian, _ := view.Field("guardian_name")
	assert.True(t, guardian.Visible)
	assert.True(t, guardian.Required)
	assert.Equal(t, []string{"guardian_name", "dependents"}, view.MissingRequired())
}

func TestRenderUsesRegistry(t *testing.T) {
	reg, err := NewStaticRegistry(
		Widget{Component: "email", Name: "EmailInput"},
		Widget{Component: "rating", Kind: KindPrimitive},
	)
	require.NoError(t, err)

	view, err := NewRenderer(reg).Render([]workflow.FieldSpec{
		{Name: "email", Component: "Email"},
		{Name: "stars", Component: "rating"},
		{Name: "chart", Component: "chart"},
	}, map[string]any{"stars": 4})
	require.NoError(t, err)

	assert.Equal(t, "EmailInput", view.Fields[0].Widget)
	assert.Equal(t, KindPrimitive, view.Fields[1].Kind)
	assert.Equal(t, "rating", view.Fields[1].Widget)
	assert.Equal(t, 4, view.Fields[1].Value)
	assert.Equal(t, KindFallback, view.Fields[2].Kind)
	assert.Equal(t, ReasonUnknownComponent, view.Fields[2].Reason)
}

func TestRenderReturnsDepthErrorWithView(t *testing.T) {
	view, err := NewRenderer(nil, WithMaxDepth(2)).Render(deepSchema(3), nil)
	require.Error(t, err)
	assert.Equal(t, stepflow.ErrCodeFieldDepth, stepflow.ErrorCode(err))
	require.Len(t, view.Fields, 1)
	assert.Equal(t, KindFallback, view.Fields[0].Children[0].Children[0].Kind)
}

func TestStaticRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewStaticRegistry(Widget{Component: "x"}, Widget{Component: "X"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "already registered"))

	_, err = NewStaticRegistry(Widget{})
	require.Error(t, err)
}

func TestDependencies(t *testing.T) {
	idx := Dependencies(schema)
	assert.ElementsMatch(t, []string{"ssn", "guardian", "broken"}, idx.Dependents("age"))
	assert.Equal(t, []string{"ssn"}, idx.Dependents("country"))
	assert.Equal(t, []string{"notes"}, idx.Dependents("locked"))
	assert.Empty(t, idx.Dependents("notes"))
}
