package workflow

import (
	"fmt"
	"sort"
	"strings"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/expr"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

const (
	DiagCodeMissingInitial = "WF001_MISSING_INITIAL"
	DiagCodeUnknownInitial = "WF002_UNKNOWN_INITIAL"
	DiagCodeDanglingTarget = "WF003_DANGLING_TARGET"
	DiagCodeInvalidGuard   = "WF004_INVALID_GUARD"
	DiagCodeInvalidRule    = "WF005_INVALID_RULE"
	DiagCodeDeadEnd        = "WF006_DEAD_END"
	DiagCodeUnreachable    = "WF007_UNREACHABLE"
	DiagCodeDuplicateField = "WF008_DUPLICATE_FIELD"
	DiagCodeFieldDepth     = "WF009_FIELD_DEPTH"
	DiagCodeMissingField   = "WF010_MISSING_FIELD_NAME"
)

// MaxFieldDepth bounds nesting of FieldSpec.Columns.
const MaxFieldDepth = 16

// Diagnostic is one deterministic validation finding.
type Diagnostic struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Path     string `json:"path"`
	NodeID   string `json:"node_id,omitempty"`
	Field    string `json:"field,omitempty"`
}

func sortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.NodeID != b.NodeID {
			return a.NodeID < b.NodeID
		}
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
}

// Validate reports problems that block or should be looked at before
// publishing. Errors block publish; warnings do not.
func Validate(def *Definition) []Diagnostic {
	diags := make([]Diagnostic, 0)
	if def == nil {
		return append(diags, Diagnostic{
			Code:     DiagCodeMissingInitial,
			Severity: SeverityError,
			Message:  "definition is required",
			Path:     "$",
		})
	}

	initial := strings.TrimSpace(def.Initial)
	switch {
	case initial == "":
		diags = append(diags, Diagnostic{
			Code:     DiagCodeMissingInitial,
			Severity: SeverityError,
			Message:  "initial step is required",
			Path:     "$.initial",
		})
	case !def.HasStep(initial):
		diags = append(diags, Diagnostic{
			Code:     DiagCodeUnknownInitial,
			Severity: SeverityError,
			Message:  fmt.Sprintf("initial step %q is not defined", initial),
			Path:     "$.initial",
			NodeID:   initial,
		})
	}

	def.States.Range(func(key string, node *StateNode) bool {
		if node == nil {
			return true
		}
		base := "$.states." + key
		node.On.Range(func(event string, tr Transition) bool {
			path := base + ".on." + event
			if !def.HasStep(tr.Target) {
				diags = append(diags, Diagnostic{
					Code:     DiagCodeDanglingTarget,
					Severity: SeverityError,
					Message:  fmt.Sprintf("transition %s targets unknown step %q", event, tr.Target),
					Path:     path,
					NodeID:   key,
				})
			}
			if strings.TrimSpace(tr.Guard) != "" {
				if err := expr.Validate(tr.Guard); err != nil {
					diags = append(diags, Diagnostic{
						Code:     DiagCodeInvalidGuard,
						Severity: SeverityError,
						Message:  fmt.Sprintf("guard %q: %v", tr.Guard, err),
						Path:     path + ".guard",
						NodeID:   key,
					})
				}
			}
			return true
		})
		if node.Type != StateFinal && !node.On.Has(EventNext) {
			diags = append(diags, Diagnostic{
				Code:     DiagCodeDeadEnd,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("step %q has no %s transition and will be treated as terminal", key, EventNext),
				Path:     base,
				NodeID:   key,
			})
		}
		diags = append(diags, validateFields(key, base+".meta.form_schema", node.Meta.FormSchema)...)
		return true
	})

	if def.HasStep(initial) {
		reached := Reachable(def, initial)
		def.States.Range(func(key string, _ *StateNode) bool {
			if _, ok := reached[key]; !ok {
				diags = append(diags, Diagnostic{
					Code:     DiagCodeUnreachable,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("step %q is not reachable from %q", key, initial),
					Path:     "$.states." + key,
					NodeID:   key,
				})
			}
			return true
		})
	}

	sortDiagnostics(diags)
	return diags
}

func validateFields(step, path string, fields []FieldSpec) []Diagnostic {
	var diags []Diagnostic
	seen := map[string]bool{}
	var walk func(fields []FieldSpec, path string, depth int)
	walk = func(fields []FieldSpec, path string, depth int) {
		if depth > MaxFieldDepth {
			diags = append(diags, Diagnostic{
				Code:     DiagCodeFieldDepth,
				Severity: SeverityError,
				Message:  fmt.Sprintf("fields nest deeper than %d levels", MaxFieldDepth),
				Path:     path,
				NodeID:   step,
			})
			return
		}
		for i, f := range fields {
			fieldPath := fmt.Sprintf("%s[%d]", path, i)
			name := strings.TrimSpace(f.Name)
			if name == "" && len(f.Columns) == 0 {
				diags = append(diags, Diagnostic{
					Code:     DiagCodeMissingField,
					Severity: SeverityError,
					Message:  "field name is required",
					Path:     fieldPath,
					NodeID:   step,
				})
			}
			if name != "" {
				if seen[name] {
					diags = append(diags, Diagnostic{
						Code:     DiagCodeDuplicateField,
						Severity: SeverityWarning,
						Message:  fmt.Sprintf("field %q is declared more than once", name),
						Path:     fieldPath,
						NodeID:   step,
						Field:    name,
					})
				}
				seen[name] = true
			}
			for _, rule := range []struct {
				attr string
				cond *Condition
			}{{"hidden", f.Hidden}, {"disabled", f.Disabled}, {"required", f.Required}} {
				if !rule.cond.IsExpr() {
					continue
				}
				if err := expr.Validate(rule.cond.Expr); err != nil {
					diags = append(diags, Diagnostic{
						Code:     DiagCodeInvalidRule,
						Severity: SeverityError,
						Message:  fmt.Sprintf("%s rule %q: %v", rule.attr, rule.cond.Expr, err),
						Path:     fieldPath + "." + rule.attr,
						NodeID:   step,
						Field:    name,
					})
				}
			}
			walk(f.Columns, fieldPath+".columns", depth+1)
		}
	}
	walk(fields, path, 1)
	return diags
}

// Reachable returns the steps reachable from start over any event.
func Reachable(def *Definition, start string) map[string]struct{} {
	seen := map[string]struct{}{}
	queue := []string{start}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if _, ok := seen[key]; ok {
			continue
		}
		node, ok := def.Step(key)
		if !ok {
			continue
		}
		seen[key] = struct{}{}
		node.On.Range(func(_ string, tr Transition) bool {
			if _, ok := seen[tr.Target]; !ok {
				queue = append(queue, tr.Target)
			}
			return true
		})
	}
	return seen
}

// HasErrors reports whether any diagnostic blocks publishing.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CanPublish validates def and reports whether it is publishable.
func CanPublish(def *Definition) (bool, []Diagnostic) {
	diags := Validate(def)
	return !HasErrors(diags), diags
}

// Check returns a publish-rejected error carrying the blocking diagnostics,
// or nil.
func Check(def *Definition) error {
	ok, diags := CanPublish(def)
	if ok {
		return nil
	}
	blocking := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		if d.Severity == SeverityError {
			blocking = append(blocking, d)
		}
	}
	first := blocking[0]
	return stepflow.NewError(stepflow.ErrPublishRejected,
		fmt.Sprintf("%s (%s)", first.Message, first.Code), nil,
		map[string]any{"diagnostics": blocking})
}
