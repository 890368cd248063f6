package render

import (
	"strings"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/expr"
	"github.com/goliatone/go-stepflow/workflow"
)

// FieldView is the evaluated state of one field.
type FieldView struct {
	Name      string
	Label     string
	Component string
	Kind      Kind
	Widget    string
	Visible   bool
	Disabled  bool
	Required  bool
	Value     any
	Options   []workflow.Option
	Children  []FieldView
	Reason    string
}

// View is the rendered form of one step.
type View struct {
	Fields []FieldView
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithEvaluator shares an expression evaluator (and its program cache).
func WithEvaluator(e *expr.Evaluator) Option {
	return func(r *Renderer) {
		if e != nil {
			r.eval = e
		}
	}
}

// WithMaxDepth overrides the nesting limit.
func WithMaxDepth(depth int) Option {
	return func(r *Renderer) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithLogger sets the renderer logger.
func WithLogger(l stepflow.Logger) Option {
	return func(r *Renderer) {
		r.logger = stepflow.NormalizeLogger(l)
	}
}

// Renderer evaluates field rules against form data.
//
// Rule failures resolve per attribute: a hidden rule that cannot be
// evaluated hides the field, while disabled and required rules that cannot be
// evaluated leave the field enabled and optional.
type Renderer struct {
	reg      Registry
	eval     *expr.Evaluator
	maxDepth int
	logger   stepflow.Logger
}

// NewRenderer builds a renderer over reg, which may be nil.
func NewRenderer(reg Registry, opts ...Option) *Renderer {
	r := &Renderer{
		reg:      reg,
		eval:     expr.NewEvaluator(),
		maxDepth: workflow.MaxFieldDepth,
		logger:   stepflow.NormalizeLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Render evaluates specs against data. A schema nested too deep still
// renders, with the excess replaced by Fallback fields, and the depth error
// is returned with the view.
func (r *Renderer) Render(specs []workflow.FieldSpec, data map[string]any) (View, error) {
	b := builder{reg: r.reg, maxDepth: r.maxDepth}
	fields := b.build(specs, 1)
	if b.err != nil {
		r.logger.Warn("field schema truncated: %v", b.err)
	}
	return View{Fields: r.views(fields, data, state{bind: true})}, b.err
}

type state struct {
	hidden   bool
	disabled bool
	bind     bool
}

func (r *Renderer) views(fields []Field, data map[string]any, parent state) []FieldView {
	if len(fields) == 0 {
		return nil
	}
	out := make([]FieldView, 0, len(fields))
	for _, f := range fields {
		out = append(out, r.view(f, data, parent))
	}
	return out
}

func (r *Renderer) view(f Field, data map[string]any, parent state) FieldView {
	spec := f.Spec()
	hidden := parent.hidden || r.condition(spec.Name, "hidden", spec.Hidden, data, true)
	disabled := parent.disabled || r.condition(spec.Name, "disabled", spec.Disabled, data, false)
	required := !hidden && r.condition(spec.Name, "required", spec.Required, data, false)

	v := FieldView{
		Name:      spec.Name,
		Label:     spec.Label,
		Component: spec.Component,
		Kind:      f.Kind(),
		Visible:   !hidden,
		Disabled:  disabled,
		Required:  required,
		Options:   append([]workflow.Option(nil), spec.Options...),
	}
	if r.reg != nil {
		if w, ok := r.reg.Lookup(spec.Component); ok {
			v.Widget = w.Name
		}
	}
	switch t := f.(type) {
	case Primitive, Result:
		if parent.bind {
			v.Value = data[spec.Name]
		}
	case Grid:
		if parent.bind {
			v.Value = data[spec.Name]
		}
		// Columns describe a row template; they carry no value.
		v.Children = r.views(t.Columns, data, state{hidden: hidden, disabled: disabled})
	case Group:
		v.Children = r.views(t.Children, data, state{hidden: hidden, disabled: disabled, bind: parent.bind})
	case Fallback:
		v.Reason = t.Reason
	}
	return v
}

func (r *Renderer) condition(field, attr string, c *workflow.Condition, data map[string]any, onError bool) bool {
	switch {
	case c == nil:
		return false
	case c.IsExpr():
		ok, err := r.eval.Check(c.Expr, data)
		if err != nil {
			r.logger.Debug("field %s %s rule %q failed, using %t: %v", field, attr, c.Expr, onError, err)
			return onError
		}
		return ok
	case c.Literal != nil:
		return *c.Literal
	default:
		return false
	}
}

// Field finds a field view by name anywhere in the tree.
func (v View) Field(name string) (FieldView, bool) {
	var found FieldView
	ok := false
	walkViews(v.Fields, func(f FieldView) bool {
		if !ok && f.Name == name {
			found, ok = f, true
		}
		return !ok
	})
	return found, ok
}

// MissingRequired lists visible, required, value-bearing fields without a
// value, in tree order.
func (v View) MissingRequired() []string {
	var missing []string
	walkViews(v.Fields, func(f FieldView) bool {
		if !f.Visible {
			return false
		}
		switch f.Kind {
		case KindPrimitive:
			if f.Required && isBlank(f.Component, f.Value) {
				missing = append(missing, f.Name)
			}
		case KindGrid:
			if f.Required && isBlank(f.Component, f.Value) {
				missing = append(missing, f.Name)
			}
			return false
		}
		return true
	})
	return missing
}

func walkViews(views []FieldView, fn func(FieldView) bool) {
	for _, v := range views {
		if fn(v) {
			walkViews(v.Children, fn)
		}
	}
}

func isBlank(component string, value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case bool:
		c := normalizeComponent(component)
		return !v && (c == "checkbox" || c == "switch")
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case []map[string]any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

// Dependencies indexes which fields' rules read which data keys, so a change
// to one key re-evaluates only its dependents.
func Dependencies(specs []workflow.FieldSpec) expr.DependencyIndex {
	idx := expr.DependencyIndex{}
	var walk func([]workflow.FieldSpec, int)
	walk = func(list []workflow.FieldSpec, depth int) {
		if depth > workflow.MaxFieldDepth {
			return
		}
		for _, f := range list {
			for _, c := range []*workflow.Condition{f.Hidden, f.Disabled, f.Required} {
				if c.IsExpr() {
					idx.Add(f.Name, c.Expr)
				}
			}
			walk(f.Columns, depth+1)
		}
	}
	walk(specs, 1)
	return idx
}
