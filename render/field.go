package render

import (
	"fmt"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/workflow"
)

// Fallback reasons.
const (
	ReasonUnknownComponent = "unknown component"
	ReasonTooDeep          = "nesting too deep"
)

// Field is one node of the rendering tree. The set of implementations is
// closed: Primitive, Group, Grid, Result, Empty and Fallback.
type Field interface {
	Kind() Kind
	Spec() workflow.FieldSpec
	isField()
}

type node struct {
	spec workflow.FieldSpec
}

func (n node) Spec() workflow.FieldSpec { return n.spec }
func (node) isField()                   {}

// Primitive is a single input bound to one data key.
type Primitive struct{ node }

// Group lays out child fields; it binds no value of its own.
type Group struct {
	node
	Children []Field
}

// Grid is a repeating set of rows; Columns describe one row.
type Grid struct {
	node
	Columns []Field
}

// Result displays computed or submitted values.
type Result struct{ node }

// Empty occupies space without content.
type Empty struct{ node }

// Fallback stands in for a field that could not be resolved.
type Fallback struct {
	node
	Reason string
}

func (Primitive) Kind() Kind { return KindPrimitive }
func (Group) Kind() Kind     { return KindGroup }
func (Grid) Kind() Kind      { return KindGrid }
func (Result) Kind() Kind    { return KindResult }
func (Empty) Kind() Kind     { return KindEmpty }
func (Fallback) Kind() Kind  { return KindFallback }

// Build converts specs into fields, resolving component keys through the
// built-in table and then reg, which may be nil. Fields nested deeper than
// workflow.MaxFieldDepth become Fallback and an ErrFieldDepth error is
// returned alongside the tree.
func Build(specs []workflow.FieldSpec, reg Registry) ([]Field, error) {
	b := builder{reg: reg, maxDepth: workflow.MaxFieldDepth}
	fields := b.build(specs, 1)
	return fields, b.err
}

type builder struct {
	reg      Registry
	maxDepth int
	err      error
}

func (b *builder) build(specs []workflow.FieldSpec, depth int) []Field {
	if len(specs) == 0 {
		return nil
	}
	out := make([]Field, 0, len(specs))
	for _, spec := range specs {
		out = append(out, b.field(spec, depth))
	}
	return out
}

func (b *builder) field(spec workflow.FieldSpec, depth int) Field {
	if depth > b.maxDepth {
		if b.err == nil {
			b.err = stepflow.NewError(stepflow.ErrFieldDepth,
				fmt.Sprintf("field %q nests deeper than %d levels", spec.Name, b.maxDepth),
				nil, map[string]any{"field": spec.Name, "depth": depth})
		}
		return Fallback{node: node{spec: spec}, Reason: ReasonTooDeep}
	}
	n := node{spec: spec}
	switch resolveKind(spec.Component, b.reg) {
	case KindPrimitive:
		return Primitive{n}
	case KindGroup:
		return Group{node: n, Children: b.build(spec.Columns, depth+1)}
	case KindGrid:
		return Grid{node: n, Columns: b.build(spec.Columns, depth+1)}
	case KindResult:
		return Result{n}
	case KindEmpty:
		return Empty{n}
	default:
		return Fallback{node: n, Reason: ReasonUnknownComponent}
	}
}

// Children returns the nested fields of a Group or Grid.
func Children(f Field) []Field {
	switch v := f.(type) {
	case Group:
		return v.Children
	case Grid:
		return v.Columns
	default:
		return nil
	}
}

// Visitor is called for every field in depth-first order. Returning false
// skips the field's children.
type Visitor func(f Field, depth int) bool

// Walk visits fields depth first, never descending past maxDepth (a value of
// zero or less means workflow.MaxFieldDepth).
func Walk(fields []Field, maxDepth int, visit Visitor) {
	if maxDepth <= 0 {
		maxDepth = workflow.MaxFieldDepth
	}
	var walk func([]Field, int)
	walk = func(list []Field, depth int) {
		if depth > maxDepth {
			return
		}
		for _, f := range list {
			if !visit(f, depth) {
				continue
			}
			walk(Children(f), depth+1)
		}
	}
	walk(fields, 1)
}
