package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldSpec describes one form field of a step. Columns nests child fields
// for groups, tab sets and data grids.
type FieldSpec struct {
	Name       string           `json:"name" yaml:"name"`
	Label      string           `json:"label,omitempty" yaml:"label,omitempty"`
	Component  string           `json:"component" yaml:"component"`
	Hidden     *Condition       `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Disabled   *Condition       `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Required   *Condition       `json:"required,omitempty" yaml:"required,omitempty"`
	Rules      []map[string]any `json:"rules,omitempty" yaml:"rules,omitempty"`
	Options    []Option         `json:"options,omitempty" yaml:"options,omitempty"`
	Columns    []FieldSpec      `json:"columns,omitempty" yaml:"columns,omitempty"`
	FieldProps map[string]any   `json:"fieldProps,omitempty" yaml:"fieldProps,omitempty"`
}

// Option is one choice of a select-like field.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

// Condition is either a literal boolean or an expression string.
type Condition struct {
	Literal *bool
	Expr    string
}

// Always returns a literal condition.
func Always(v bool) *Condition {
	return &Condition{Literal: &v}
}

// When returns an expression condition.
func When(expr string) *Condition {
	return &Condition{Expr: expr}
}

// IsExpr reports whether the condition needs evaluation.
func (c *Condition) IsExpr() bool {
	return c != nil && strings.TrimSpace(c.Expr) != ""
}

// String renders the condition for diagnostics.
func (c *Condition) String() string {
	switch {
	case c == nil:
		return "<unset>"
	case c.IsExpr():
		return c.Expr
	case c.Literal != nil:
		return fmt.Sprintf("%t", *c.Literal)
	default:
		return "<unset>"
	}
}

func (c *Condition) set(raw any) error {
	switch v := raw.(type) {
	case nil:
		*c = Condition{}
	case bool:
		*c = Condition{Literal: &v}
	case string:
		*c = Condition{Expr: v}
	default:
		return fmt.Errorf("condition must be a boolean or an expression string, got %T", raw)
	}
	return nil
}

// UnmarshalYAML accepts true/false or an expression string.
func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: condition must be a scalar", node.Line)
	}
	if node.Tag == "!!bool" {
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		return c.set(b)
	}
	return c.set(node.Value)
}

// UnmarshalJSON accepts true/false or an expression string.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return c.set(raw)
}

// MarshalJSON emits the literal or the expression.
func (c Condition) MarshalJSON() ([]byte, error) {
	if strings.TrimSpace(c.Expr) != "" {
		return json.Marshal(c.Expr)
	}
	if c.Literal != nil {
		return json.Marshal(*c.Literal)
	}
	return []byte("null"), nil
}

// MarshalYAML emits the literal or the expression.
func (c Condition) MarshalYAML() (any, error) {
	if strings.TrimSpace(c.Expr) != "" {
		return c.Expr, nil
	}
	if c.Literal != nil {
		return *c.Literal, nil
	}
	return nil, nil
}
