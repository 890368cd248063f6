package workflow

// Clone returns a deep copy. Nil and empty collections are kept distinct so
// a clone compares equal to its source.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	return &Definition{
		ID:      d.ID,
		Initial: d.Initial,
		States:  d.States.CloneWith(func(n *StateNode) *StateNode { return n.Clone() }),
	}
}

// Clone returns a deep copy of the step.
func (n *StateNode) Clone() *StateNode {
	if n == nil {
		return nil
	}
	return &StateNode{
		Type: n.Type,
		Meta: n.Meta.Clone(),
		On:   n.On.CloneWith(func(t Transition) Transition { return t.Clone() }),
	}
}

// Clone returns a deep copy of the metadata.
func (m Meta) Clone() Meta {
	out := m
	if m.X != nil {
		x := *m.X
		out.X = &x
	}
	if m.Y != nil {
		y := *m.Y
		out.Y = &y
	}
	out.FormSchema = CloneFields(m.FormSchema)
	out.JobConfig = CloneMap(m.JobConfig)
	return out
}

// Clone returns a deep copy of the transition.
func (t Transition) Clone() Transition {
	out := t
	if t.Actions != nil {
		out.Actions = append([]string{}, t.Actions...)
	}
	return out
}

// CloneFields deep copies a field list.
func CloneFields(fields []FieldSpec) []FieldSpec {
	if fields == nil {
		return nil
	}
	out := make([]FieldSpec, len(fields))
	for i, f := range fields {
		out[i] = f.Clone()
	}
	return out
}

// Clone returns a deep copy of the field.
func (f FieldSpec) Clone() FieldSpec {
	out := f
	out.Hidden = f.Hidden.clone()
	out.Disabled = f.Disabled.clone()
	out.Required = f.Required.clone()
	if f.Rules != nil {
		out.Rules = make([]map[string]any, len(f.Rules))
		for i, rule := range f.Rules {
			out.Rules[i] = CloneMap(rule)
		}
	}
	if f.Options != nil {
		out.Options = make([]Option, len(f.Options))
		for i, opt := range f.Options {
			out.Options[i] = Option{Label: opt.Label, Value: cloneValue(opt.Value)}
		}
	}
	out.Columns = CloneFields(f.Columns)
	out.FieldProps = CloneMap(f.FieldProps)
	return out
}

func (c *Condition) clone() *Condition {
	if c == nil {
		return nil
	}
	out := &Condition{Expr: c.Expr}
	if c.Literal != nil {
		v := *c.Literal
		out.Literal = &v
	}
	return out
}

// CloneMap deep copies a decoded document map.
func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return CloneMap(typed)
	case []any:
		if typed == nil {
			return []any(nil)
		}
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		if typed == nil {
			return []string(nil)
		}
		return append([]string{}, typed...)
	default:
		return v
	}
}
